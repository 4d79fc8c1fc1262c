package chain

import (
	gobig "math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/pkg/errors"

	"github.com/Beutife/Ghost-Wallet/types"
)

// contractJSON covers the wallet calls the service makes and the events of
// the wallet, factory and paymaster contracts it follows.
const contractJSON = `[
{"type":"function","name":"execute","stateMutability":"nonpayable","inputs":[{"name":"target","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[]},
{"type":"function","name":"executeBatch","stateMutability":"nonpayable","inputs":[{"name":"targets","type":"address[]"},{"name":"values","type":"uint256[]"},{"name":"data","type":"bytes[]"}],"outputs":[]},
{"type":"function","name":"sweep","stateMutability":"nonpayable","inputs":[{"name":"recipient","type":"address"}],"outputs":[]},
{"type":"function","name":"destroy","stateMutability":"nonpayable","inputs":[{"name":"refundRecipient","type":"address"}],"outputs":[]},
{"type":"function","name":"addEphemeralKey","stateMutability":"nonpayable","inputs":[{"name":"key","type":"address"},{"name":"expiresAt","type":"uint256"}],"outputs":[]},
{"type":"function","name":"revokeEphemeralKey","stateMutability":"nonpayable","inputs":[{"name":"key","type":"address"}],"outputs":[]},
{"type":"event","name":"GhostCreated","anonymous":false,"inputs":[{"name":"wallet","type":"address","indexed":true},{"name":"owner","type":"address","indexed":true}]},
{"type":"event","name":"WalletExecuted","anonymous":false,"inputs":[{"name":"target","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false},{"name":"success","type":"bool","indexed":false}]},
{"type":"event","name":"WalletBatchExecuted","anonymous":false,"inputs":[{"name":"count","type":"uint256","indexed":false}]},
{"type":"event","name":"Swept","anonymous":false,"inputs":[{"name":"recipient","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
{"type":"event","name":"Destroyed","anonymous":false,"inputs":[{"name":"recipient","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
{"type":"event","name":"EphemeralKeyAdded","anonymous":false,"inputs":[{"name":"key","type":"address","indexed":true},{"name":"expiresAt","type":"uint256","indexed":false}]},
{"type":"event","name":"EphemeralKeyRevoked","anonymous":false,"inputs":[{"name":"key","type":"address","indexed":true}]},
{"type":"event","name":"GasSponsored","anonymous":false,"inputs":[{"name":"wallet","type":"address","indexed":true},{"name":"actualGasCost","type":"uint256","indexed":false}]},
{"type":"event","name":"UserOperationExecuted","anonymous":false,"inputs":[{"name":"wallet","type":"address","indexed":true},{"name":"success","type":"bool","indexed":false}]}
]`

var contractABI = mustParseABI(contractJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ErrUnknownEvent is returned by DecodeLog for logs of other contracts.
var ErrUnknownEvent = errors.New("unknown event")

func toGo(v big.Int) *gobig.Int {
	if v.Int == nil {
		return new(gobig.Int)
	}
	return new(gobig.Int).Set(v.Int)
}

func fromGo(v *gobig.Int) big.Int {
	if v == nil {
		return big.Zero()
	}
	return big.Int{Int: new(gobig.Int).Set(v)}
}

// EncodeCall ABI-encodes op as a call on the wallet contract.
func EncodeCall(op *types.Operation) ([]byte, error) {
	switch op.Type {
	case types.TxExecute:
		if len(op.Targets) != 1 {
			return nil, errors.Errorf("execute takes exactly one call, got %d", len(op.Targets))
		}
		return contractABI.Pack("execute", op.Targets[0], toGo(valueAt(op, 0)), dataAt(op, 0))
	case types.TxExecuteBatch:
		values := make([]*gobig.Int, len(op.Targets))
		data := make([][]byte, len(op.Targets))
		for i := range op.Targets {
			values[i] = toGo(valueAt(op, i))
			data[i] = dataAt(op, i)
		}
		return contractABI.Pack("executeBatch", op.Targets, values, data)
	case types.TxSweep:
		return contractABI.Pack("sweep", op.Recipient)
	case types.TxDestroy:
		return contractABI.Pack("destroy", op.Recipient)
	case types.TxAddEphemeralKey:
		return contractABI.Pack("addEphemeralKey", op.KeyAddress, gobig.NewInt(op.KeyExpiresAt.Unix()))
	case types.TxRevokeEphemeralKey:
		return contractABI.Pack("revokeEphemeralKey", op.KeyAddress)
	}
	return nil, errors.Errorf("unsupported operation %q", op.Type)
}

func valueAt(op *types.Operation, i int) big.Int {
	if i < len(op.Values) {
		return op.Values[i]
	}
	return big.Zero()
}

func dataAt(op *types.Operation, i int) []byte {
	if i < len(op.Data) && op.Data[i] != nil {
		return op.Data[i]
	}
	return []byte{}
}

// EventTopics lists the topic0 of every followed event.
func EventTopics() []common.Hash {
	out := make([]common.Hash, 0, len(contractABI.Events))
	for _, ev := range contractABI.Events {
		out = append(out, ev.ID)
	}
	return out
}

// DecodeLog turns a contract log into a ledger event. Wallet events carry
// the emitting contract as the wallet unless the event names one itself.
func DecodeLog(l ethtypes.Log) (*types.LedgerEvent, error) {
	if len(l.Topics) == 0 {
		return nil, ErrUnknownEvent
	}
	ev, err := contractABI.EventByID(l.Topics[0])
	if err != nil {
		return nil, ErrUnknownEvent
	}

	values := make(map[string]interface{})
	if err := ev.Inputs.NonIndexed().UnpackIntoMap(values, l.Data); err != nil {
		return nil, errors.Wrapf(err, "unpack %s", ev.Name)
	}
	topic := 1
	for _, in := range ev.Inputs {
		if !in.Indexed {
			continue
		}
		if topic >= len(l.Topics) {
			return nil, errors.Errorf("%s: missing topic for %s", ev.Name, in.Name)
		}
		values[in.Name] = common.BytesToAddress(l.Topics[topic].Bytes())
		topic++
	}

	out := &types.LedgerEvent{
		Kind:        types.EventKind(ev.Name),
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
		Contract:    l.Address,
		Wallet:      l.Address,
		Amount:      big.Zero(),
		Success:     true,
	}
	for name, v := range values {
		switch name {
		case "wallet":
			out.Wallet = v.(common.Address)
		case "owner":
			out.Owner = v.(common.Address)
		case "key":
			out.KeyAddress = v.(common.Address)
		case "target", "recipient":
			out.Target = v.(common.Address)
		case "value", "amount", "actualGasCost":
			out.Amount = fromGo(v.(*gobig.Int))
		case "expiresAt":
			out.ExpiresAt = time.Unix(v.(*gobig.Int).Int64(), 0).UTC()
		case "success":
			out.Success = v.(bool)
		}
	}
	return out, nil
}
