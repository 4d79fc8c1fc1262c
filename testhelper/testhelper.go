package testhelper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/filecoin-project/go-state-types/big"

	"github.com/Beutife/Ghost-Wallet/types"
)

var _ types.Ledger = (*MockLedger)(nil)

// MockLedger accepts every submission unless told otherwise and never mines
// on its own: tests decide the outcome through Mine or SetReceipt.
type MockLedger struct {
	lk sync.Mutex

	nonce     uint64
	ops       map[common.Hash]*types.Operation
	order     []common.Hash
	receipts  map[common.Hash]*types.Receipt
	balances  map[common.Address]big.Int
	gasPrice  big.Int
	submitErr []error
	balErr    error
	revert    map[types.TxType]bool

	// AutoMine makes WaitForReceipt return a successful receipt for any
	// submitted hash that has no explicit receipt.
	AutoMine bool
}

func NewMockLedger() *MockLedger {
	return &MockLedger{
		ops:      make(map[common.Hash]*types.Operation),
		receipts: make(map[common.Hash]*types.Receipt),
		balances: make(map[common.Address]big.Int),
		revert:   make(map[types.TxType]bool),
		gasPrice: big.NewInt(30_000_000_000),
	}
}

func (m *MockLedger) Submit(ctx context.Context, op *types.Operation) (common.Hash, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	if len(m.submitErr) > 0 {
		err := m.submitErr[0]
		m.submitErr = m.submitErr[1:]
		return common.Hash{}, err
	}
	m.nonce++
	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("mock-tx-%d", m.nonce)))
	cp := *op
	m.ops[hash] = &cp
	m.order = append(m.order, hash)
	return hash, nil
}

func (m *MockLedger) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	if r, ok := m.receipts[txHash]; ok {
		cp := *r
		return &cp, nil
	}
	if op, ok := m.ops[txHash]; ok && m.AutoMine {
		status := types.ReceiptSuccess
		if m.revert[op.Type] {
			status = types.ReceiptReverted
		}
		r := m.receiptLocked(txHash, op, status)
		m.receipts[txHash] = r
		return r, nil
	}
	return nil, types.NewError(types.KindLedger, types.CodeReceiptTimeout, "no receipt for %s", txHash.Hex())
}

func (m *MockLedger) BalanceOf(ctx context.Context, addr common.Address) (big.Int, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	if m.balErr != nil {
		return big.Int{}, m.balErr
	}
	return types.OrZero(m.balances[addr]), nil
}

// FailBalance makes every BalanceOf call fail with err until it is reset with nil.
func (m *MockLedger) FailBalance(err error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.balErr = err
}

func (m *MockLedger) GasPrice(ctx context.Context) (big.Int, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	return m.gasPrice, nil
}

func (m *MockLedger) SetBalance(addr common.Address, v big.Int) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.balances[addr] = v
}

func (m *MockLedger) SetGasPrice(v big.Int) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.gasPrice = v
}

// FailNextSubmit queues err for the next Submit call.
func (m *MockLedger) FailNextSubmit(err error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.submitErr = append(m.submitErr, err)
}

// RevertType makes auto mined receipts of t revert.
func (m *MockLedger) RevertType(t types.TxType, revert bool) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.revert[t] = revert
}

func (m *MockLedger) SetReceipt(r *types.Receipt) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.receipts[r.TxHash] = r
}

// Mine records a receipt with the given status for a submitted hash.
func (m *MockLedger) Mine(txHash common.Hash, status types.ReceiptStatus) *types.Receipt {
	m.lk.Lock()
	defer m.lk.Unlock()
	r := m.receiptLocked(txHash, m.ops[txHash], status)
	m.receipts[txHash] = r
	return r
}

func (m *MockLedger) receiptLocked(txHash common.Hash, op *types.Operation, status types.ReceiptStatus) *types.Receipt {
	gas := uint64(21000)
	if op != nil && op.GasLimit > 0 {
		gas = op.GasLimit / 2
	}
	return &types.Receipt{
		TxHash:         txHash,
		Status:         status,
		BlockNumber:    100 + m.nonce,
		BlockTimestamp: time.Unix(1_700_000_000, 0).UTC(),
		GasUsed:        big.NewIntUnsigned(gas),
		GasPrice:       m.gasPrice,
	}
}

// Operations returns submitted operations in submission order.
func (m *MockLedger) Operations() []*types.Operation {
	m.lk.Lock()
	defer m.lk.Unlock()
	out := make([]*types.Operation, 0, len(m.order))
	for _, h := range m.order {
		out = append(out, m.ops[h])
	}
	return out
}

func (m *MockLedger) Hashes() []common.Hash {
	m.lk.Lock()
	defer m.lk.Unlock()
	return append([]common.Hash(nil), m.order...)
}

func (m *MockLedger) LastHash() common.Hash {
	m.lk.Lock()
	defer m.lk.Unlock()
	if len(m.order) == 0 {
		return common.Hash{}
	}
	return m.order[len(m.order)-1]
}

var _ types.Clock = (*FakeClock)(nil)

type FakeClock struct {
	lk  sync.Mutex
	now time.Time
}

func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.lk.Lock()
	defer c.lk.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func (c *FakeClock) Set(now time.Time) {
	c.lk.Lock()
	defer c.lk.Unlock()
	c.now = now.UTC()
}

var _ types.AlertSink = (*AlertRecorder)(nil)

type AlertRecorder struct {
	lk     sync.Mutex
	alerts []*types.Alert
}

func (a *AlertRecorder) Emit(_ context.Context, alert *types.Alert) {
	a.lk.Lock()
	defer a.lk.Unlock()
	a.alerts = append(a.alerts, alert)
}

func (a *AlertRecorder) Alerts() []*types.Alert {
	a.lk.Lock()
	defer a.lk.Unlock()
	return append([]*types.Alert(nil), a.alerts...)
}

func (a *AlertRecorder) Count(kind types.AlertKind) int {
	a.lk.Lock()
	defer a.lk.Unlock()
	n := 0
	for _, al := range a.alerts {
		if al.Kind == kind {
			n++
		}
	}
	return n
}

var _ types.EventFeed = (*MockFeed)(nil)

// MockFeed forwards published events to the single active subscriber.
type MockFeed struct {
	in chan *types.LedgerEvent
}

func NewMockFeed() *MockFeed {
	return &MockFeed{in: make(chan *types.LedgerEvent, 16)}
}

func (f *MockFeed) Publish(ev *types.LedgerEvent) {
	f.in <- ev
}

func (f *MockFeed) Subscribe(ctx context.Context) (<-chan *types.LedgerEvent, error) {
	out := make(chan *types.LedgerEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-f.in:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Wei converts a decimal string, panicking on bad input.
func Wei(s string) big.Int {
	v, err := big.FromString(s)
	if err != nil {
		panic(err)
	}
	return v
}
