package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Beutife/Ghost-Wallet/types"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps everything in process. Records are copied on the way in
// and out, so callers never share state with the store.
type MemoryStore struct {
	lk sync.RWMutex

	wallets      map[common.Address]*types.GhostWallet
	sessions     map[string]*types.Session
	proofs       map[string]*types.Proof
	sponsorships map[string]*types.Sponsorship
	sponsorByTx  map[common.Hash]string
	txs          map[common.Hash]*types.Transaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:      make(map[common.Address]*types.GhostWallet),
		sessions:     make(map[string]*types.Session),
		proofs:       make(map[string]*types.Proof),
		sponsorships: make(map[string]*types.Sponsorship),
		sponsorByTx:  make(map[common.Hash]string),
		txs:          make(map[common.Hash]*types.Transaction),
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateWallet(_ context.Context, w *types.GhostWallet) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	if _, ok := m.wallets[w.Address]; ok {
		return ErrAlreadyExists
	}
	w.Version = 1
	m.wallets[w.Address] = w.Clone()
	return nil
}

func (m *MemoryStore) GetWallet(_ context.Context, addr common.Address) (*types.GhostWallet, error) {
	m.lk.RLock()
	defer m.lk.RUnlock()
	w, ok := m.wallets[addr]
	if !ok {
		return nil, ErrNotFound
	}
	return w.Clone(), nil
}

func (m *MemoryStore) UpdateWallet(_ context.Context, w *types.GhostWallet) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	cur, ok := m.wallets[w.Address]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != w.Version {
		return ErrVersionConflict
	}
	w.Version++
	m.wallets[w.Address] = w.Clone()
	return nil
}

func (m *MemoryStore) ListWalletsByOwner(_ context.Context, owner common.Address, includeDestroyed bool) ([]*types.GhostWallet, error) {
	m.lk.RLock()
	defer m.lk.RUnlock()
	var out []*types.GhostWallet
	for _, w := range m.wallets {
		if w.Owner != owner || (w.Destroyed && !includeDestroyed) {
			continue
		}
		out = append(out, w.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s *types.Session) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	if _, ok := m.sessions[s.Token]; ok {
		return ErrAlreadyExists
	}
	s.Version = 1
	m.sessions[s.Token] = s.Clone()
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, token string) (*types.Session, error) {
	m.lk.RLock()
	defer m.lk.RUnlock()
	s, ok := m.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) UpdateSession(_ context.Context, s *types.Session) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	cur, ok := m.sessions[s.Token]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != s.Version {
		return ErrVersionConflict
	}
	s.Version++
	m.sessions[s.Token] = s.Clone()
	return nil
}

func (m *MemoryStore) ListSessions(_ context.Context, filter SessionFilter) ([]*types.Session, error) {
	m.lk.RLock()
	defer m.lk.RUnlock()
	var out []*types.Session
	for _, s := range m.sessions {
		if filter.Wallet != (common.Address{}) && s.WalletAddress != filter.Wallet {
			continue
		}
		if filter.Key != (common.Address{}) && s.EphemeralKeyAddress != filter.Key {
			continue
		}
		if len(filter.Status) > 0 && !containsStatus(filter.Status, s.Status) {
			continue
		}
		if !filter.ExpiresBefore.IsZero() && s.ExpiresAt.After(filter.ExpiresBefore) {
			continue
		}
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteSessionsEndedBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	n := 0
	for token, s := range m.sessions {
		if s.Status.Terminal() && s.EndedAt.Before(cutoff) {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CreateProof(_ context.Context, p *types.Proof) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	if _, ok := m.proofs[p.Hash]; ok {
		return ErrAlreadyExists
	}
	p.Version = 1
	m.proofs[p.Hash] = p.Clone()
	return nil
}

func (m *MemoryStore) GetProof(_ context.Context, hash string) (*types.Proof, error) {
	m.lk.RLock()
	defer m.lk.RUnlock()
	p, ok := m.proofs[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryStore) UpdateProof(_ context.Context, p *types.Proof) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	cur, ok := m.proofs[p.Hash]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != p.Version {
		return ErrVersionConflict
	}
	p.Version++
	m.proofs[p.Hash] = p.Clone()
	return nil
}

func (m *MemoryStore) PurgeProofs(_ context.Context, purge ProofPurge) (int, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	n := 0
	for hash, p := range m.proofs {
		if purgeable(p, purge) {
			delete(m.proofs, hash)
			n++
		}
	}
	return n, nil
}

func purgeable(p *types.Proof, purge ProofPurge) bool {
	if p.Used {
		return false
	}
	switch {
	case purge.Flagged && p.FlaggedForCleanup:
		return true
	case !purge.SubmittedBefore.IsZero() && p.SubmittedAt.Before(purge.SubmittedBefore):
		return true
	case !purge.ExpiredBy.IsZero() && !p.ExpiresAt.After(purge.ExpiredBy):
		return true
	}
	return false
}

func (m *MemoryStore) CreateSponsorship(_ context.Context, s *types.Sponsorship) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	if _, ok := m.sponsorships[s.ID]; ok {
		return ErrAlreadyExists
	}
	if s.TxHash != (common.Hash{}) {
		if _, ok := m.sponsorByTx[s.TxHash]; ok {
			return ErrAlreadyExists
		}
		m.sponsorByTx[s.TxHash] = s.ID
	}
	s.Version = 1
	m.sponsorships[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) GetSponsorship(_ context.Context, id string) (*types.Sponsorship, error) {
	m.lk.RLock()
	defer m.lk.RUnlock()
	s, ok := m.sponsorships[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) GetSponsorshipByTxHash(_ context.Context, txHash common.Hash) (*types.Sponsorship, error) {
	m.lk.RLock()
	defer m.lk.RUnlock()
	id, ok := m.sponsorByTx[txHash]
	if !ok {
		return nil, ErrNotFound
	}
	return m.sponsorships[id].Clone(), nil
}

func (m *MemoryStore) UpdateSponsorship(_ context.Context, s *types.Sponsorship) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	cur, ok := m.sponsorships[s.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != s.Version {
		return ErrVersionConflict
	}
	if s.TxHash != cur.TxHash {
		if id, ok := m.sponsorByTx[s.TxHash]; ok && id != s.ID {
			return ErrAlreadyExists
		}
		delete(m.sponsorByTx, cur.TxHash)
		if s.TxHash != (common.Hash{}) {
			m.sponsorByTx[s.TxHash] = s.ID
		}
	}
	s.Version++
	m.sponsorships[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) ListSponsorships(_ context.Context, filter SponsorshipFilter) ([]*types.Sponsorship, error) {
	m.lk.RLock()
	defer m.lk.RUnlock()
	var out []*types.Sponsorship
	for _, s := range m.sponsorships {
		if filter.Paymaster != (common.Address{}) && s.Paymaster != filter.Paymaster {
			continue
		}
		if filter.Wallet != (common.Address{}) && s.UserWallet != filter.Wallet {
			continue
		}
		if len(filter.Status) > 0 && !containsStatus(filter.Status, s.Status) {
			continue
		}
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.NewestFirst {
			return out[i].SponsoredAt.After(out[j].SponsoredAt)
		}
		return out[i].SponsoredAt.Before(out[j].SponsoredAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) CreateTransaction(_ context.Context, tx *types.Transaction) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	if _, ok := m.txs[tx.TxHash]; ok {
		return ErrAlreadyExists
	}
	tx.Version = 1
	m.txs[tx.TxHash] = tx.Clone()
	return nil
}

func (m *MemoryStore) GetTransaction(_ context.Context, hash common.Hash) (*types.Transaction, error) {
	m.lk.RLock()
	defer m.lk.RUnlock()
	tx, ok := m.txs[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return tx.Clone(), nil
}

func (m *MemoryStore) UpdateTransaction(_ context.Context, tx *types.Transaction) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	cur, ok := m.txs[tx.TxHash]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != tx.Version {
		return ErrVersionConflict
	}
	tx.Version++
	m.txs[tx.TxHash] = tx.Clone()
	return nil
}

func (m *MemoryStore) ListTransactions(_ context.Context, filter TransactionFilter) ([]*types.Transaction, error) {
	m.lk.RLock()
	defer m.lk.RUnlock()
	var out []*types.Transaction
	for _, tx := range m.txs {
		if filter.Wallet != (common.Address{}) && tx.WalletAddress != filter.Wallet {
			continue
		}
		if len(filter.Status) > 0 && !containsStatus(filter.Status, tx.Status) {
			continue
		}
		out = append(out, tx.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func containsStatus[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
