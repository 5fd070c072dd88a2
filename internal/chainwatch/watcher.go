// Package chainwatch follows EscrowExecuted events on the escrow contract
// and confirms them against the approval engine.
package chainwatch

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/policy-oracle/backend/internal/evm"
	"github.com/policy-oracle/backend/internal/models"
	"github.com/policy-oracle/backend/internal/services"
	"go.uber.org/zap"
)

type Confirmer interface {
	ConfirmExecution(ctx context.Context, onChainID *big.Int, txHash string) (*models.Escrow, error)
}

// State persists the scan cursor and the set of handled logs.
type State interface {
	Cursor(ctx context.Context) (block uint64, ok bool, err error)
	SaveCursor(ctx context.Context, block uint64) error
	Processed(ctx context.Context, key string) (bool, error)
	MarkProcessed(ctx context.Context, key, outcome string) error
}

type Config struct {
	Contract common.Address
	// StartBlock is used when no cursor is saved. Zero starts at the
	// current confirmed head and skips history.
	StartBlock    uint64
	Confirmations uint64
	MaxBlockRange uint64
}

type Watcher struct {
	client    evm.LogClient
	state     State
	confirmer Confirmer
	cfg       Config
	log       *zap.Logger
}

func New(client evm.LogClient, state State, confirmer Confirmer, cfg Config, log *zap.Logger) *Watcher {
	if cfg.MaxBlockRange == 0 {
		cfg.MaxBlockRange = 2000
	}
	return &Watcher{client: client, state: state, confirmer: confirmer, cfg: cfg, log: log}
}

// Poll scans confirmed blocks past the cursor and returns how many
// executions were confirmed. The cursor only advances over ranges whose
// logs were all handled, so a failed cycle is retried from the same block.
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	head, err := w.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("get block number: %w", err)
	}
	if head < w.cfg.Confirmations {
		return 0, nil
	}
	safe := head - w.cfg.Confirmations

	cursor, ok, err := w.state.Cursor(ctx)
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}

	var from uint64
	switch {
	case ok:
		from = cursor + 1
	case w.cfg.StartBlock > 0:
		from = w.cfg.StartBlock
	default:
		w.log.Info("no saved cursor, starting at confirmed head", zap.Uint64("block", safe))
		return 0, w.state.SaveCursor(ctx, safe)
	}

	confirmed := 0
	for from <= safe {
		to := from + w.cfg.MaxBlockRange - 1
		if to > safe {
			to = safe
		}

		execs, err := evm.FetchExecutions(ctx, w.client, w.cfg.Contract, from, to)
		if err != nil {
			return confirmed, err
		}
		for _, ex := range execs {
			done, err := w.handle(ctx, ex)
			if err != nil {
				return confirmed, err
			}
			if done {
				confirmed++
			}
		}

		if err := w.state.SaveCursor(ctx, to); err != nil {
			return confirmed, fmt.Errorf("save cursor: %w", err)
		}
		from = to + 1
	}
	return confirmed, nil
}

func (w *Watcher) handle(ctx context.Context, ex evm.Execution) (bool, error) {
	key := ex.Key()
	seen, err := w.state.Processed(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check processed %s: %w", key, err)
	}
	if seen {
		return false, nil
	}

	txHash := ex.TxHash.Hex()
	escrow, err := w.confirmer.ConfirmExecution(ctx, ex.OnChainID, txHash)
	switch services.KindOf(err) {
	case "":
		if err != nil {
			return false, fmt.Errorf("confirm execution %s: %w", ex.OnChainID, err)
		}
	case services.KindNotFound:
		w.log.Debug("execution for unknown escrow", zap.String("on_chain_id", ex.OnChainID.String()), zap.String("tx_hash", txHash))
		return false, w.state.MarkProcessed(ctx, key, "no_escrow")
	case services.KindInvalidState:
		w.log.Warn("execution for escrow in unexpected state",
			zap.String("on_chain_id", ex.OnChainID.String()),
			zap.String("tx_hash", txHash),
			zap.Error(err),
		)
		return false, w.state.MarkProcessed(ctx, key, "skip")
	default:
		return false, fmt.Errorf("confirm execution %s: %w", ex.OnChainID, err)
	}

	w.log.Info("escrow execution confirmed",
		zap.String("escrow_id", escrow.ID.String()),
		zap.String("on_chain_id", ex.OnChainID.String()),
		zap.String("tx_hash", txHash),
		zap.Uint64("block", ex.BlockNumber),
	)
	return true, w.state.MarkProcessed(ctx, key, "executed:"+escrow.ID.String())
}
