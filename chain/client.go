// Package chain talks to an Ethereum JSON-RPC node: it submits wallet
// contract calls signed by the relayer key, waits for receipts and follows
// contract logs as the ledger event feed.
package chain

import (
	"context"
	"crypto/ecdsa"
	gobig "math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/filecoin-project/go-state-types/big"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"github.com/Beutife/Ghost-Wallet/types"
)

var log = logging.Logger("chain")

var (
	_ types.Ledger    = (*Client)(nil)
	_ types.EventFeed = (*Client)(nil)
)

// Backend is the part of ethclient.Client the adapter uses.
type Backend interface {
	ChainID(ctx context.Context) (*gobig.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*gobig.Int, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *gobig.Int) (*gobig.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *gobig.Int) (*ethtypes.Header, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- ethtypes.Log) (ethereum.Subscription, error)
}

type Config struct {
	RPCURL string
	// WSURL is used for log subscriptions when set.
	WSURL          string
	ChainID        int64
	RelayerKey     string
	Confirmations  uint64
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
}

type Client struct {
	eth     Backend
	logs    Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *gobig.Int
	signer  ethtypes.Signer
	cfg     Config

	closers []func()

	// serializes nonce assignment
	sendLk sync.Mutex
}

// Dial connects to the node named in cfg.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.RelayerKey == "" {
		return nil, errors.New("relayer key is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.RelayerKey, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "parse relayer key")
	}
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", cfg.RPCURL)
	}
	closers := []func(){eth.Close}

	var logs Backend = eth
	if cfg.WSURL != "" {
		ws, err := ethclient.DialContext(ctx, cfg.WSURL)
		if err != nil {
			log.Warnf("dial %s failed, subscribing through %s: %v", cfg.WSURL, cfg.RPCURL, err)
		} else {
			logs = ws
			closers = append(closers, ws.Close)
		}
	}

	chainID := gobig.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		if chainID, err = eth.ChainID(ctx); err != nil {
			eth.Close()
			return nil, errors.Wrap(err, "get chain id")
		}
	}
	c := NewClient(eth, logs, key, chainID, cfg)
	c.closers = closers
	log.Infof("connected to chain %s as relayer %s", chainID, c.from.Hex())
	return c, nil
}

// NewClient builds a client over existing backends; logs may equal eth.
func NewClient(eth, logs Backend, key *ecdsa.PrivateKey, chainID *gobig.Int, cfg Config) *Client {
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if logs == nil {
		logs = eth
	}
	return &Client{
		eth:     eth,
		logs:    logs,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		signer:  ethtypes.LatestSignerForChainID(chainID),
		cfg:     cfg,
	}
}

func (c *Client) Relayer() common.Address { return c.from }

func (c *Client) Close() {
	for _, closer := range c.closers {
		closer()
	}
}

// Check reports whether the node answers.
func (c *Client) Check(ctx context.Context) error {
	_, err := c.eth.BlockNumber(ctx)
	return err
}

func (c *Client) Submit(ctx context.Context, op *types.Operation) (common.Hash, error) {
	data, err := EncodeCall(op)
	if err != nil {
		return common.Hash{}, types.WrapError(err, types.KindValidation, types.CodeInvalidAmount, "encode %s", op.Type)
	}

	c.sendLk.Lock()
	defer c.sendLk.Unlock()

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, types.WrapError(err, types.KindLedger, types.CodeBlockchain, "get nonce of %s", c.from.Hex())
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, types.WrapError(err, types.KindLedger, types.CodeBlockchain, "suggest gas price")
	}
	to := op.Wallet
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      op.GasLimit,
		To:       &to,
		Value:    new(gobig.Int),
		Data:     data,
	})
	signed, err := ethtypes.SignTx(tx, c.signer, c.key)
	if err != nil {
		return common.Hash{}, types.WrapError(err, types.KindInternal, types.CodeInvalidSignature, "sign %s", op.Type)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, types.WrapError(err, types.KindLedger, types.CodeBlockchain, "send %s to %s", op.Type, to.Hex())
	}
	log.Debugw("transaction sent", "tx", signed.Hash().Hex(), "type", op.Type, "nonce", nonce)
	return signed.Hash(), nil
}

// WaitForReceipt polls until the transaction has the configured number of
// confirmations, ctx is done or ReceiptTimeout passed.
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReceiptTimeout)
	defer cancel()
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		r, err := c.eth.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			ok, err := c.confirmed(ctx, r)
			if err != nil {
				return nil, err
			}
			if ok {
				return c.toReceipt(ctx, r)
			}
		case errors.Is(err, ethereum.NotFound):
		case ctx.Err() != nil:
		default:
			return nil, types.WrapError(err, types.KindLedger, types.CodeBlockchain, "get receipt of %s", txHash.Hex())
		}

		select {
		case <-ctx.Done():
			return nil, types.NewError(types.KindLedger, types.CodeReceiptTimeout, "no receipt for %s yet", txHash.Hex())
		case <-ticker.C:
		}
	}
}

func (c *Client) confirmed(ctx context.Context, r *ethtypes.Receipt) (bool, error) {
	if c.cfg.Confirmations <= 1 {
		return true, nil
	}
	head, err := c.eth.BlockNumber(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, types.WrapError(err, types.KindLedger, types.CodeBlockchain, "get block number")
	}
	mined := r.BlockNumber.Uint64()
	return head >= mined && head-mined+1 >= c.cfg.Confirmations, nil
}

func (c *Client) toReceipt(ctx context.Context, r *ethtypes.Receipt) (*types.Receipt, error) {
	out := &types.Receipt{
		TxHash:      r.TxHash,
		Status:      types.ReceiptSuccess,
		BlockNumber: r.BlockNumber.Uint64(),
		GasUsed:     big.NewIntUnsigned(r.GasUsed),
		GasPrice:    fromGo(r.EffectiveGasPrice),
	}
	if r.Status != ethtypes.ReceiptStatusSuccessful {
		out.Status = types.ReceiptReverted
	}
	header, err := c.eth.HeaderByNumber(ctx, r.BlockNumber)
	if err != nil {
		log.Warnf("failed to get header %s: %v", r.BlockNumber, err)
	} else {
		out.BlockTimestamp = time.Unix(int64(header.Time), 0).UTC()
	}
	for _, l := range r.Logs {
		ev, err := DecodeLog(*l)
		if err != nil {
			continue
		}
		out.Events = append(out.Events, ev)
	}
	return out, nil
}

func (c *Client) BalanceOf(ctx context.Context, addr common.Address) (big.Int, error) {
	bal, err := c.eth.BalanceAt(ctx, addr, nil)
	if err != nil {
		return big.Int{}, types.WrapError(err, types.KindLedger, types.CodeBlockchain, "get balance of %s", addr.Hex())
	}
	return fromGo(bal), nil
}

func (c *Client) GasPrice(ctx context.Context) (big.Int, error) {
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return big.Int{}, types.WrapError(err, types.KindLedger, types.CodeBlockchain, "suggest gas price")
	}
	return fromGo(price), nil
}

// Subscribe follows every known event from the current head on. The channel
// closes when ctx is done or the subscription fails.
func (c *Client) Subscribe(ctx context.Context) (<-chan *types.LedgerEvent, error) {
	logs := make(chan ethtypes.Log, 64)
	sub, err := c.logs.SubscribeFilterLogs(ctx, ethereum.FilterQuery{Topics: [][]common.Hash{EventTopics()}}, logs)
	if err != nil {
		return nil, types.WrapError(err, types.KindLedger, types.CodeBlockchain, "subscribe contract logs")
	}

	out := make(chan *types.LedgerEvent, 64)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					log.Errorf("log subscription failed: %v", err)
				}
				return
			case l := <-logs:
				if l.Removed {
					log.Warnf("log of %s removed by reorg", l.TxHash.Hex())
					continue
				}
				ev, err := DecodeLog(l)
				if err != nil {
					if !errors.Is(err, ErrUnknownEvent) {
						log.Warnf("decode log of %s: %v", l.TxHash.Hex(), err)
					}
					continue
				}
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
