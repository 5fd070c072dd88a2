package evm

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// personalSign produces a wallet-style signature with V in {27,28}.
func personalSign(t *testing.T, message string) (string, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27

	return crypto.PubkeyToAddress(key.PublicKey).Hex(), hexutil.Encode(sig)
}

func TestVerifySignature_Valid(t *testing.T) {
	msg := ApprovalMessage(uuid.New())
	addr, sig := personalSign(t, msg)

	require.NoError(t, VerifySignature(addr, msg, sig))
	require.NoError(t, VerifySignature(strings.ToLower(addr), msg, sig))
}

func TestVerifySignature_WrongMessage(t *testing.T) {
	addr, sig := personalSign(t, ApprovalMessage(uuid.New()))
	assert.Error(t, VerifySignature(addr, ApprovalMessage(uuid.New()), sig))
}

func TestVerifySignature_WrongSigner(t *testing.T) {
	msg := ApprovalMessage(uuid.New())
	_, sig := personalSign(t, msg)
	other, _ := personalSign(t, msg)
	assert.Error(t, VerifySignature(other, msg, sig))
}

func TestVerifySignature_Malformed(t *testing.T) {
	msg := "hello"
	addr, _ := personalSign(t, msg)

	tests := []struct {
		name string
		addr string
		sig  string
	}{
		{"bad hex", addr, "0xzz"},
		{"short", addr, hexutil.Encode(make([]byte, 64))},
		{"bad address", "0x1234", hexutil.Encode(make([]byte, 65))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, VerifySignature(tt.addr, msg, tt.sig))
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress("  0x52908400098527886e0f7030069857d2e4169ee7 ")
	require.NoError(t, err)
	assert.Equal(t, "0x52908400098527886E0F7030069857D2E4169EE7", got)

	_, err = NormalizeAddress("0x123")
	assert.Error(t, err)
}

type fakeLogClient struct {
	logs  []types.Log
	query ethereum.FilterQuery
}

func (f *fakeLogClient) BlockNumber(context.Context) (uint64, error) { return 100, nil }

func (f *fakeLogClient) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.query = q
	return f.logs, nil
}

func TestFetchExecutions(t *testing.T) {
	contract := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	idTopic := common.BigToHash(big.NewInt(42))
	client := &fakeLogClient{logs: []types.Log{
		{Topics: []common.Hash{EscrowExecutedTopic, idTopic}, TxHash: common.HexToHash("0x01"), BlockNumber: 10, Index: 3},
		{Topics: []common.Hash{common.HexToHash("0xdead"), idTopic}},
		{Topics: []common.Hash{EscrowExecutedTopic, idTopic}, Removed: true},
		{Topics: []common.Hash{EscrowExecutedTopic}},
	}}

	got, err := FetchExecutions(context.Background(), client, contract, 5, 20)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(42), got[0].OnChainID.Int64())
	assert.Equal(t, uint64(10), got[0].BlockNumber)
	assert.Equal(t, common.HexToHash("0x01").Hex()+":3", got[0].Key())

	assert.Equal(t, []common.Address{contract}, client.query.Addresses)
	assert.Equal(t, int64(5), client.query.FromBlock.Int64())
	assert.Equal(t, int64(20), client.query.ToBlock.Int64())
}
