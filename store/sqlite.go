package store

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Beutife/Ghost-Wallet/types"
)

var _ Store = (*SQLStore)(nil)

// SQLStore persists records with gorm on SQLite. Amounts are stored as
// decimal strings and compared in application code, never as floats.
type SQLStore struct {
	db *gorm.DB
}

func OpenSQLite(path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&walletRow{}, &sessionRow{}, &proofRow{}, &sponsorshipRow{}, &transactionRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate schema")
	}
	log.Infof("sqlite store opened at %s", path)
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLStore) create(ctx context.Context, row interface{}) error {
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		if isDuplicate(err) {
			return ErrAlreadyExists
		}
		return errors.Wrap(err, "insert")
	}
	return nil
}

func (s *SQLStore) first(ctx context.Context, dst interface{}, query string, args ...interface{}) error {
	err := s.db.WithContext(ctx).Where(query, args...).First(dst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// compareAndSwap writes row only where keyColumn = key and version = expect.
func (s *SQLStore) compareAndSwap(ctx context.Context, model, row interface{}, keyColumn string, key interface{}, expect uint64) error {
	res := s.db.WithContext(ctx).Model(model).
		Where(keyColumn+" = ? AND version = ?", key, expect).
		Select("*").
		Updates(row)
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return ErrAlreadyExists
		}
		return errors.Wrap(res.Error, "update")
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(model).Where(keyColumn+" = ?", key).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrVersionConflict
}

// amounts

func amountColumn(v big.Int) string { return types.AmountString(v) }

func amountFromColumn(s string) big.Int {
	if s == "" {
		return big.Zero()
	}
	v, err := big.FromString(s)
	if err != nil {
		log.Errorf("corrupt amount column %q: %v", s, err)
		return big.Zero()
	}
	return v
}

// optionalAmountColumn keeps an unset amount distinct from zero.
func optionalAmountColumn(v big.Int) string {
	if v.Nil() {
		return ""
	}
	return v.String()
}

func optionalAmountFromColumn(s string) big.Int {
	if s == "" {
		return big.Int{}
	}
	return amountFromColumn(s)
}

func hashColumn(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}

func hashFromColumn(s string) common.Hash {
	if s == "" {
		return common.Hash{}
	}
	return common.HexToHash(s)
}

// wallets

type walletRow struct {
	Address               string `gorm:"primaryKey;size:42"`
	Owner                 string `gorm:"index;size:42"`
	Network               string
	Label                 string
	CreatedAt             time.Time
	DeploymentTxHash      string
	Destroyed             bool `gorm:"index"`
	DestroyedAt           time.Time
	DestroyedTxHash       string
	LastKnownBalance      string
	TotalTransactions     int64
	TotalValueTransferred string
	Keys                  []types.EphemeralKey `gorm:"serializer:json"`
	SpendingLimit         *types.SpendingLimit `gorm:"serializer:json"`
	Version               uint64
}

func (walletRow) TableName() string { return "ghost_wallets" }

func toWalletRow(w *types.GhostWallet) *walletRow {
	return &walletRow{
		Address:               w.Address.Hex(),
		Owner:                 w.Owner.Hex(),
		Network:               string(w.Network),
		Label:                 w.Label,
		CreatedAt:             w.CreatedAt,
		DeploymentTxHash:      hashColumn(w.DeploymentTxHash),
		Destroyed:             w.Destroyed,
		DestroyedAt:           w.DestroyedAt,
		DestroyedTxHash:       hashColumn(w.DestroyedTxHash),
		LastKnownBalance:      amountColumn(w.LastKnownBalance),
		TotalTransactions:     w.TotalTransactions,
		TotalValueTransferred: amountColumn(w.TotalValueTransferred),
		Keys:                  w.Keys,
		SpendingLimit:         w.SpendingLimit,
		Version:               w.Version,
	}
}

func (r *walletRow) wallet() *types.GhostWallet {
	return &types.GhostWallet{
		Address:               common.HexToAddress(r.Address),
		Owner:                 common.HexToAddress(r.Owner),
		Network:               types.Network(r.Network),
		Label:                 r.Label,
		CreatedAt:             r.CreatedAt,
		DeploymentTxHash:      hashFromColumn(r.DeploymentTxHash),
		Destroyed:             r.Destroyed,
		DestroyedAt:           r.DestroyedAt,
		DestroyedTxHash:       hashFromColumn(r.DestroyedTxHash),
		LastKnownBalance:      amountFromColumn(r.LastKnownBalance),
		TotalTransactions:     r.TotalTransactions,
		TotalValueTransferred: amountFromColumn(r.TotalValueTransferred),
		Keys:                  r.Keys,
		SpendingLimit:         r.SpendingLimit,
		Version:               r.Version,
	}
}

func (s *SQLStore) CreateWallet(ctx context.Context, w *types.GhostWallet) error {
	row := toWalletRow(w)
	row.Version = 1
	if err := s.create(ctx, row); err != nil {
		return err
	}
	w.Version = 1
	return nil
}

func (s *SQLStore) GetWallet(ctx context.Context, addr common.Address) (*types.GhostWallet, error) {
	var row walletRow
	if err := s.first(ctx, &row, "address = ?", addr.Hex()); err != nil {
		return nil, err
	}
	return row.wallet(), nil
}

func (s *SQLStore) UpdateWallet(ctx context.Context, w *types.GhostWallet) error {
	row := toWalletRow(w)
	row.Version = w.Version + 1
	if err := s.compareAndSwap(ctx, &walletRow{}, row, "address", row.Address, w.Version); err != nil {
		return err
	}
	w.Version++
	return nil
}

func (s *SQLStore) ListWalletsByOwner(ctx context.Context, owner common.Address, includeDestroyed bool) ([]*types.GhostWallet, error) {
	q := s.db.WithContext(ctx).Where("owner = ?", owner.Hex())
	if !includeDestroyed {
		q = q.Where("destroyed = ?", false)
	}
	var rows []*walletRow
	if err := q.Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*types.GhostWallet, len(rows))
	for i, r := range rows {
		out[i] = r.wallet()
	}
	return out, nil
}

// sessions

type sessionRow struct {
	Token               string `gorm:"primaryKey"`
	WalletAddress       string `gorm:"index;size:42"`
	EphemeralKeyAddress string `gorm:"index;size:42"`
	StartedAt           time.Time
	ExpiresAt           time.Time `gorm:"index"`
	DurationSecs        int64
	Status              string `gorm:"index"`
	EndedAt             time.Time
	LastActivityAt      time.Time
	TransactionCount    int64
	OnChainAdded        bool
	AddKeyTxHash        string
	OnChainRevoked      bool
	RevokeKeyTxHash     string
	Version             uint64
}

func (sessionRow) TableName() string { return "sessions" }

func toSessionRow(s *types.Session) *sessionRow {
	return &sessionRow{
		Token:               s.Token,
		WalletAddress:       s.WalletAddress.Hex(),
		EphemeralKeyAddress: s.EphemeralKeyAddress.Hex(),
		StartedAt:           s.StartedAt,
		ExpiresAt:           s.ExpiresAt,
		DurationSecs:        s.DurationSecs,
		Status:              string(s.Status),
		EndedAt:             s.EndedAt,
		LastActivityAt:      s.LastActivityAt,
		TransactionCount:    s.TransactionCount,
		OnChainAdded:        s.OnChainAdded,
		AddKeyTxHash:        hashColumn(s.AddKeyTxHash),
		OnChainRevoked:      s.OnChainRevoked,
		RevokeKeyTxHash:     hashColumn(s.RevokeKeyTxHash),
		Version:             s.Version,
	}
}

func (r *sessionRow) session() *types.Session {
	return &types.Session{
		Token:               r.Token,
		WalletAddress:       common.HexToAddress(r.WalletAddress),
		EphemeralKeyAddress: common.HexToAddress(r.EphemeralKeyAddress),
		StartedAt:           r.StartedAt,
		ExpiresAt:           r.ExpiresAt,
		DurationSecs:        r.DurationSecs,
		Status:              types.SessionStatus(r.Status),
		EndedAt:             r.EndedAt,
		LastActivityAt:      r.LastActivityAt,
		TransactionCount:    r.TransactionCount,
		OnChainAdded:        r.OnChainAdded,
		AddKeyTxHash:        hashFromColumn(r.AddKeyTxHash),
		OnChainRevoked:      r.OnChainRevoked,
		RevokeKeyTxHash:     hashFromColumn(r.RevokeKeyTxHash),
		Version:             r.Version,
	}
}

func (s *SQLStore) CreateSession(ctx context.Context, sess *types.Session) error {
	row := toSessionRow(sess)
	row.Version = 1
	if err := s.create(ctx, row); err != nil {
		return err
	}
	sess.Version = 1
	return nil
}

func (s *SQLStore) GetSession(ctx context.Context, token string) (*types.Session, error) {
	var row sessionRow
	if err := s.first(ctx, &row, "token = ?", token); err != nil {
		return nil, err
	}
	return row.session(), nil
}

func (s *SQLStore) UpdateSession(ctx context.Context, sess *types.Session) error {
	row := toSessionRow(sess)
	row.Version = sess.Version + 1
	if err := s.compareAndSwap(ctx, &sessionRow{}, row, "token", row.Token, sess.Version); err != nil {
		return err
	}
	sess.Version++
	return nil
}

func (s *SQLStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*types.Session, error) {
	q := s.db.WithContext(ctx)
	if filter.Wallet != (common.Address{}) {
		q = q.Where("wallet_address = ?", filter.Wallet.Hex())
	}
	if filter.Key != (common.Address{}) {
		q = q.Where("ephemeral_key_address = ?", filter.Key.Hex())
	}
	if len(filter.Status) > 0 {
		q = q.Where("status IN ?", stringsOf(filter.Status))
	}
	if !filter.ExpiresBefore.IsZero() {
		q = q.Where("expires_at <= ?", filter.ExpiresBefore)
	}
	var rows []*sessionRow
	if err := q.Order("started_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*types.Session, len(rows))
	for i, r := range rows {
		out[i] = r.session()
	}
	return out, nil
}

func (s *SQLStore) DeleteSessionsEndedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res := s.db.WithContext(ctx).
		Where("status <> ? AND ended_at < ?", string(types.SessionActive), cutoff).
		Delete(&sessionRow{})
	return int(res.RowsAffected), res.Error
}

// proofs

type proofRow struct {
	Hash                 string `gorm:"primaryKey"`
	Type                 string
	Nonce                string
	WalletAddress        string
	PublicSignals        []string `gorm:"serializer:json"`
	Network              string
	SubmittedAt          time.Time `gorm:"index"`
	ExpiresAt            time.Time `gorm:"index"`
	Verified             bool
	IsValid              bool
	VerificationAttempts int
	VerificationError    string
	Used                 bool `gorm:"index"`
	UsedAt               time.Time
	UsedForTxHash        string
	SessionToken         string
	FlaggedForCleanup    bool
	Version              uint64
}

func (proofRow) TableName() string { return "proofs" }

func toProofRow(p *types.Proof) *proofRow {
	row := &proofRow{
		Hash:                 p.Hash,
		Type:                 string(p.Type),
		Nonce:                p.Nonce,
		PublicSignals:        p.PublicSignals,
		Network:              string(p.Network),
		SubmittedAt:          p.SubmittedAt,
		ExpiresAt:            p.ExpiresAt,
		Verified:             p.Verified,
		IsValid:              p.IsValid,
		VerificationAttempts: p.VerificationAttempts,
		VerificationError:    p.VerificationError,
		Used:                 p.Used,
		UsedAt:               p.UsedAt,
		UsedForTxHash:        hashColumn(p.UsedForTxHash),
		SessionToken:         p.SessionToken,
		FlaggedForCleanup:    p.FlaggedForCleanup,
		Version:              p.Version,
	}
	if p.WalletAddress != (common.Address{}) {
		row.WalletAddress = p.WalletAddress.Hex()
	}
	return row
}

func (r *proofRow) proof() *types.Proof {
	p := &types.Proof{
		Hash:                 r.Hash,
		Type:                 types.ProofType(r.Type),
		Nonce:                r.Nonce,
		PublicSignals:        r.PublicSignals,
		Network:              types.Network(r.Network),
		SubmittedAt:          r.SubmittedAt,
		ExpiresAt:            r.ExpiresAt,
		Verified:             r.Verified,
		IsValid:              r.IsValid,
		VerificationAttempts: r.VerificationAttempts,
		VerificationError:    r.VerificationError,
		Used:                 r.Used,
		UsedAt:               r.UsedAt,
		UsedForTxHash:        hashFromColumn(r.UsedForTxHash),
		SessionToken:         r.SessionToken,
		FlaggedForCleanup:    r.FlaggedForCleanup,
		Version:              r.Version,
	}
	if r.WalletAddress != "" {
		p.WalletAddress = common.HexToAddress(r.WalletAddress)
	}
	return p
}

func (s *SQLStore) CreateProof(ctx context.Context, p *types.Proof) error {
	row := toProofRow(p)
	row.Version = 1
	if err := s.create(ctx, row); err != nil {
		return err
	}
	p.Version = 1
	return nil
}

func (s *SQLStore) GetProof(ctx context.Context, hash string) (*types.Proof, error) {
	var row proofRow
	if err := s.first(ctx, &row, "hash = ?", hash); err != nil {
		return nil, err
	}
	return row.proof(), nil
}

func (s *SQLStore) UpdateProof(ctx context.Context, p *types.Proof) error {
	row := toProofRow(p)
	row.Version = p.Version + 1
	if err := s.compareAndSwap(ctx, &proofRow{}, row, "hash", row.Hash, p.Version); err != nil {
		return err
	}
	p.Version++
	return nil
}

func (s *SQLStore) PurgeProofs(ctx context.Context, purge ProofPurge) (int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if purge.Flagged {
		conds = append(conds, "flagged_for_cleanup = ?")
		args = append(args, true)
	}
	if !purge.SubmittedBefore.IsZero() {
		conds = append(conds, "submitted_at < ?")
		args = append(args, purge.SubmittedBefore)
	}
	if !purge.ExpiredBy.IsZero() {
		conds = append(conds, "expires_at <= ?")
		args = append(args, purge.ExpiredBy)
	}
	if len(conds) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("used = ?", false).
		Where("("+strings.Join(conds, " OR ")+")", args...).
		Delete(&proofRow{})
	return int(res.RowsAffected), res.Error
}

// sponsorships

type sponsorshipRow struct {
	ID               string  `gorm:"primaryKey"`
	TxHash           *string `gorm:"uniqueIndex"`
	UserWallet       string  `gorm:"index;size:42"`
	Paymaster        string  `gorm:"index;size:42"`
	OperationType    string
	SessionToken     string
	Network          string
	EstimatedGasCost string
	GasUsed          string
	GasPrice         string
	GasCost          string
	Status           string `gorm:"index"`
	Reverted         bool
	BlockNumber      uint64
	BlockTimestamp   time.Time
	ErrorMessage     string
	BalanceBefore    string
	BalanceAfter     string
	Refunded         bool
	RefundAmount     string
	RefundTxHash     string
	SponsoredAt      time.Time `gorm:"index"`
	ConfirmedAt      time.Time
	Version          uint64
}

func (sponsorshipRow) TableName() string { return "paymaster_sponsorships" }

func toSponsorshipRow(s *types.Sponsorship) *sponsorshipRow {
	row := &sponsorshipRow{
		ID:               s.ID,
		UserWallet:       s.UserWallet.Hex(),
		Paymaster:        s.Paymaster.Hex(),
		OperationType:    string(s.OperationType),
		SessionToken:     s.SessionToken,
		Network:          string(s.Network),
		EstimatedGasCost: amountColumn(s.EstimatedGasCost),
		GasUsed:          amountColumn(s.GasUsed),
		GasPrice:         amountColumn(s.GasPrice),
		GasCost:          amountColumn(s.GasCost),
		Status:           string(s.Status),
		Reverted:         s.Reverted,
		BlockNumber:      s.BlockNumber,
		BlockTimestamp:   s.BlockTimestamp,
		ErrorMessage:     s.ErrorMessage,
		BalanceBefore:    amountColumn(s.BalanceBefore),
		BalanceAfter:     optionalAmountColumn(s.BalanceAfter),
		Refunded:         s.Refunded,
		RefundAmount:     amountColumn(s.RefundAmount),
		RefundTxHash:     hashColumn(s.RefundTxHash),
		SponsoredAt:      s.SponsoredAt,
		ConfirmedAt:      s.ConfirmedAt,
		Version:          s.Version,
	}
	if s.TxHash != (common.Hash{}) {
		h := s.TxHash.Hex()
		row.TxHash = &h
	}
	return row
}

func (r *sponsorshipRow) sponsorship() *types.Sponsorship {
	s := &types.Sponsorship{
		ID:               r.ID,
		UserWallet:       common.HexToAddress(r.UserWallet),
		Paymaster:        common.HexToAddress(r.Paymaster),
		OperationType:    types.OperationType(r.OperationType),
		SessionToken:     r.SessionToken,
		Network:          types.Network(r.Network),
		EstimatedGasCost: amountFromColumn(r.EstimatedGasCost),
		GasUsed:          amountFromColumn(r.GasUsed),
		GasPrice:         amountFromColumn(r.GasPrice),
		GasCost:          amountFromColumn(r.GasCost),
		Status:           types.SponsorshipStatus(r.Status),
		Reverted:         r.Reverted,
		BlockNumber:      r.BlockNumber,
		BlockTimestamp:   r.BlockTimestamp,
		ErrorMessage:     r.ErrorMessage,
		BalanceBefore:    amountFromColumn(r.BalanceBefore),
		BalanceAfter:     optionalAmountFromColumn(r.BalanceAfter),
		Refunded:         r.Refunded,
		RefundAmount:     amountFromColumn(r.RefundAmount),
		RefundTxHash:     hashFromColumn(r.RefundTxHash),
		SponsoredAt:      r.SponsoredAt,
		ConfirmedAt:      r.ConfirmedAt,
		Version:          r.Version,
	}
	if r.TxHash != nil {
		s.TxHash = common.HexToHash(*r.TxHash)
	}
	return s
}

func (s *SQLStore) CreateSponsorship(ctx context.Context, sp *types.Sponsorship) error {
	row := toSponsorshipRow(sp)
	row.Version = 1
	if err := s.create(ctx, row); err != nil {
		return err
	}
	sp.Version = 1
	return nil
}

func (s *SQLStore) GetSponsorship(ctx context.Context, id string) (*types.Sponsorship, error) {
	var row sponsorshipRow
	if err := s.first(ctx, &row, "id = ?", id); err != nil {
		return nil, err
	}
	return row.sponsorship(), nil
}

func (s *SQLStore) GetSponsorshipByTxHash(ctx context.Context, txHash common.Hash) (*types.Sponsorship, error) {
	var row sponsorshipRow
	if err := s.first(ctx, &row, "tx_hash = ?", txHash.Hex()); err != nil {
		return nil, err
	}
	return row.sponsorship(), nil
}

func (s *SQLStore) UpdateSponsorship(ctx context.Context, sp *types.Sponsorship) error {
	row := toSponsorshipRow(sp)
	row.Version = sp.Version + 1
	if err := s.compareAndSwap(ctx, &sponsorshipRow{}, row, "id", row.ID, sp.Version); err != nil {
		return err
	}
	sp.Version++
	return nil
}

func (s *SQLStore) ListSponsorships(ctx context.Context, filter SponsorshipFilter) ([]*types.Sponsorship, error) {
	q := s.db.WithContext(ctx)
	if filter.Paymaster != (common.Address{}) {
		q = q.Where("paymaster = ?", filter.Paymaster.Hex())
	}
	if filter.Wallet != (common.Address{}) {
		q = q.Where("user_wallet = ?", filter.Wallet.Hex())
	}
	if len(filter.Status) > 0 {
		q = q.Where("status IN ?", stringsOf(filter.Status))
	}
	if filter.NewestFirst {
		q = q.Order("sponsored_at desc")
	} else {
		q = q.Order("sponsored_at asc")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []*sponsorshipRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*types.Sponsorship, len(rows))
	for i, r := range rows {
		out[i] = r.sponsorship()
	}
	return out, nil
}

// transactions

type transactionRow struct {
	TxHash            string `gorm:"primaryKey"`
	WalletAddress     string `gorm:"index;size:42"`
	Type              string
	Caller            string
	SessionKey        bool
	To                string
	Value             string
	BatchSize         int
	KeyAddress        string
	KeyExpiresAt      time.Time
	SponsorshipID     string
	Reservation       string
	ReservationWindow time.Time
	Status            string `gorm:"index"`
	BlockNumber       uint64
	BlockTimestamp    time.Time
	GasUsed           string
	GasPrice          string
	ErrorMessage      string
	SubmittedAt       time.Time `gorm:"index"`
	ConfirmedAt       time.Time
	Version           uint64
}

func (transactionRow) TableName() string { return "transactions" }

func toTransactionRow(tx *types.Transaction) *transactionRow {
	return &transactionRow{
		TxHash:            tx.TxHash.Hex(),
		WalletAddress:     tx.WalletAddress.Hex(),
		Type:              string(tx.Type),
		Caller:            tx.Caller.Hex(),
		SessionKey:        tx.SessionKey,
		To:                tx.To.Hex(),
		Value:             amountColumn(tx.Value),
		BatchSize:         tx.BatchSize,
		KeyAddress:        tx.KeyAddress.Hex(),
		KeyExpiresAt:      tx.KeyExpiresAt,
		SponsorshipID:     tx.SponsorshipID,
		Reservation:       amountColumn(tx.Reservation),
		ReservationWindow: tx.ReservationWindow,
		Status:            string(tx.Status),
		BlockNumber:       tx.BlockNumber,
		BlockTimestamp:    tx.BlockTimestamp,
		GasUsed:           amountColumn(tx.GasUsed),
		GasPrice:          amountColumn(tx.GasPrice),
		ErrorMessage:      tx.ErrorMessage,
		SubmittedAt:       tx.SubmittedAt,
		ConfirmedAt:       tx.ConfirmedAt,
		Version:           tx.Version,
	}
}

func (r *transactionRow) transaction() *types.Transaction {
	return &types.Transaction{
		TxHash:            common.HexToHash(r.TxHash),
		WalletAddress:     common.HexToAddress(r.WalletAddress),
		Type:              types.TxType(r.Type),
		Caller:            common.HexToAddress(r.Caller),
		SessionKey:        r.SessionKey,
		To:                common.HexToAddress(r.To),
		Value:             amountFromColumn(r.Value),
		BatchSize:         r.BatchSize,
		KeyAddress:        common.HexToAddress(r.KeyAddress),
		KeyExpiresAt:      r.KeyExpiresAt,
		SponsorshipID:     r.SponsorshipID,
		Reservation:       amountFromColumn(r.Reservation),
		ReservationWindow: r.ReservationWindow,
		Status:            types.TxStatus(r.Status),
		BlockNumber:       r.BlockNumber,
		BlockTimestamp:    r.BlockTimestamp,
		GasUsed:           amountFromColumn(r.GasUsed),
		GasPrice:          amountFromColumn(r.GasPrice),
		ErrorMessage:      r.ErrorMessage,
		SubmittedAt:       r.SubmittedAt,
		ConfirmedAt:       r.ConfirmedAt,
		Version:           r.Version,
	}
}

func (s *SQLStore) CreateTransaction(ctx context.Context, tx *types.Transaction) error {
	row := toTransactionRow(tx)
	row.Version = 1
	if err := s.create(ctx, row); err != nil {
		return err
	}
	tx.Version = 1
	return nil
}

func (s *SQLStore) GetTransaction(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	var row transactionRow
	if err := s.first(ctx, &row, "tx_hash = ?", hash.Hex()); err != nil {
		return nil, err
	}
	return row.transaction(), nil
}

func (s *SQLStore) UpdateTransaction(ctx context.Context, tx *types.Transaction) error {
	row := toTransactionRow(tx)
	row.Version = tx.Version + 1
	if err := s.compareAndSwap(ctx, &transactionRow{}, row, "tx_hash", row.TxHash, tx.Version); err != nil {
		return err
	}
	tx.Version++
	return nil
}

func (s *SQLStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]*types.Transaction, error) {
	q := s.db.WithContext(ctx)
	if filter.Wallet != (common.Address{}) {
		q = q.Where("wallet_address = ?", filter.Wallet.Hex())
	}
	if len(filter.Status) > 0 {
		q = q.Where("status IN ?", stringsOf(filter.Status))
	}
	q = q.Order("submitted_at desc")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []*transactionRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*types.Transaction, len(rows))
	for i, r := range rows {
		out[i] = r.transaction()
	}
	return out, nil
}

func stringsOf[T ~string](vs []T) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = string(v)
	}
	return out
}
