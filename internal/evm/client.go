package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EscrowExecutedTopic is topic0 of EscrowExecuted(uint256 indexed id, bytes32 indexed txRef).
var EscrowExecutedTopic = crypto.Keccak256Hash([]byte("EscrowExecuted(uint256,bytes32)"))

// LogClient is the subset of the Ethereum RPC used by the execution watcher.
type LogClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// DialClient opens an RPC client for endpoint.
func DialClient(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("evm endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// Execution is one decoded EscrowExecuted event.
type Execution struct {
	OnChainID   *big.Int
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint
}

// Key identifies the log for idempotent processing.
func (e Execution) Key() string {
	return fmt.Sprintf("%s:%d", e.TxHash.Hex(), e.LogIndex)
}

// ParseExecution decodes an EscrowExecuted log. ok is false for other events
// and for removed (reorged) logs.
func ParseExecution(l types.Log) (Execution, bool) {
	if l.Removed || len(l.Topics) < 2 || l.Topics[0] != EscrowExecutedTopic {
		return Execution{}, false
	}
	return Execution{
		OnChainID:   new(big.Int).SetBytes(l.Topics[1].Bytes()),
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
		LogIndex:    l.Index,
	}, true
}

// FetchExecutions returns EscrowExecuted events emitted by contract in
// [from, to], in block order.
func FetchExecutions(ctx context.Context, client LogClient, contract common.Address, from, to uint64) ([]Execution, error) {
	logs, err := client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{contract},
		Topics:    [][]common.Hash{{EscrowExecutedTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs [%d,%d]: %w", from, to, err)
	}

	out := make([]Execution, 0, len(logs))
	for _, l := range logs {
		if ex, ok := ParseExecution(l); ok {
			out = append(out, ex)
		}
	}
	return out, nil
}
