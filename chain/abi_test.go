package chain

import (
	gobig "math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beutife/Ghost-Wallet/types"
)

var (
	wallet = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	target = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func TestEncodeCall(t *testing.T) {
	t.Run("execute", func(t *testing.T) {
		data, err := EncodeCall(&types.Operation{
			Type:    types.TxExecute,
			Wallet:  wallet,
			Targets: []common.Address{target},
			Values:  []big.Int{big.NewInt(40)},
		})
		require.NoError(t, err)

		method := contractABI.Methods["execute"]
		assert.Equal(t, method.ID, data[:4])
		args, err := method.Inputs.Unpack(data[4:])
		require.NoError(t, err)
		assert.Equal(t, target, args[0])
		assert.Equal(t, int64(40), args[1].(*gobig.Int).Int64())
		assert.Empty(t, args[2])
	})

	t.Run("batch", func(t *testing.T) {
		data, err := EncodeCall(&types.Operation{
			Type:    types.TxExecuteBatch,
			Wallet:  wallet,
			Targets: []common.Address{target, wallet},
			Values:  []big.Int{big.NewInt(1), big.NewInt(2)},
			Data:    [][]byte{{0x01}, nil},
		})
		require.NoError(t, err)

		args, err := contractABI.Methods["executeBatch"].Inputs.Unpack(data[4:])
		require.NoError(t, err)
		assert.Equal(t, []common.Address{target, wallet}, args[0])
		assert.Len(t, args[1], 2)
		calldata := args[2].([][]byte)
		require.Len(t, calldata, 2)
		assert.Equal(t, []byte{0x01}, calldata[0])
		assert.Empty(t, calldata[1])
	})

	t.Run("add key", func(t *testing.T) {
		expiresAt := time.Unix(1700000000, 0)
		data, err := EncodeCall(&types.Operation{
			Type:         types.TxAddEphemeralKey,
			Wallet:       wallet,
			KeyAddress:   target,
			KeyExpiresAt: expiresAt,
		})
		require.NoError(t, err)

		args, err := contractABI.Methods["addEphemeralKey"].Inputs.Unpack(data[4:])
		require.NoError(t, err)
		assert.Equal(t, target, args[0])
		assert.Equal(t, expiresAt.Unix(), args[1].(*gobig.Int).Int64())
	})

	t.Run("execute needs one call", func(t *testing.T) {
		_, err := EncodeCall(&types.Operation{Type: types.TxExecute, Wallet: wallet})
		require.Error(t, err)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := EncodeCall(&types.Operation{Type: "mint", Wallet: wallet})
		require.Error(t, err)
	})
}

func topicOf(addr common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32))
}

func TestDecodeLog(t *testing.T) {
	txHash := common.HexToHash("0x01")

	t.Run("swept", func(t *testing.T) {
		ev := contractABI.Events["Swept"]
		data, err := ev.Inputs.NonIndexed().Pack(gobig.NewInt(85))
		require.NoError(t, err)

		out, err := DecodeLog(ethtypes.Log{
			Address:     wallet,
			Topics:      []common.Hash{ev.ID, topicOf(target)},
			Data:        data,
			TxHash:      txHash,
			BlockNumber: 12,
		})
		require.NoError(t, err)
		assert.Equal(t, types.EventSwept, out.Kind)
		assert.Equal(t, wallet, out.Wallet)
		assert.Equal(t, target, out.Target)
		assert.Equal(t, "85", out.Amount.String())
		assert.Equal(t, uint64(12), out.BlockNumber)
		assert.Equal(t, txHash, out.TxHash)
	})

	t.Run("ghost created names the wallet", func(t *testing.T) {
		factory := common.HexToAddress("0x00000000000000000000000000000000000000ff")
		ev := contractABI.Events["GhostCreated"]

		out, err := DecodeLog(ethtypes.Log{
			Address: factory,
			Topics:  []common.Hash{ev.ID, topicOf(wallet), topicOf(target)},
			TxHash:  txHash,
		})
		require.NoError(t, err)
		assert.Equal(t, types.EventGhostCreated, out.Kind)
		assert.Equal(t, wallet, out.Wallet)
		assert.Equal(t, target, out.Owner)
		assert.Equal(t, factory, out.Contract)
	})

	t.Run("failed user operation", func(t *testing.T) {
		ev := contractABI.Events["UserOperationExecuted"]
		data, err := ev.Inputs.NonIndexed().Pack(false)
		require.NoError(t, err)

		out, err := DecodeLog(ethtypes.Log{Topics: []common.Hash{ev.ID, topicOf(wallet)}, Data: data})
		require.NoError(t, err)
		assert.False(t, out.Success)
		assert.Equal(t, wallet, out.Wallet)
	})

	t.Run("key added", func(t *testing.T) {
		ev := contractABI.Events["EphemeralKeyAdded"]
		data, err := ev.Inputs.NonIndexed().Pack(gobig.NewInt(1700000000))
		require.NoError(t, err)

		out, err := DecodeLog(ethtypes.Log{Address: wallet, Topics: []common.Hash{ev.ID, topicOf(target)}, Data: data})
		require.NoError(t, err)
		assert.Equal(t, target, out.KeyAddress)
		assert.Equal(t, int64(1700000000), out.ExpiresAt.Unix())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := DecodeLog(ethtypes.Log{Topics: []common.Hash{common.HexToHash("0xdead")}})
		assert.ErrorIs(t, err, ErrUnknownEvent)
		_, err = DecodeLog(ethtypes.Log{})
		assert.ErrorIs(t, err, ErrUnknownEvent)
	})

	t.Run("missing topic", func(t *testing.T) {
		ev := contractABI.Events["EphemeralKeyRevoked"]
		_, err := DecodeLog(ethtypes.Log{Topics: []common.Hash{ev.ID}})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnknownEvent)
	})
}

func TestEventTopics(t *testing.T) {
	topics := EventTopics()
	assert.Len(t, topics, 9)
	assert.Contains(t, topics, contractABI.Events["GasSponsored"].ID)
}
