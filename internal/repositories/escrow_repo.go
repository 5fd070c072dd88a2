package repositories

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/policy-oracle/backend/internal/models"
	"github.com/policy-oracle/backend/internal/services"
)

type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

const escrowColumns = `
	id, status, policy_id, total_amount::text, deadline, scheduled_release_at,
	tx_hash, on_chain_id::text, executed_tx_hash, version, created_at, updated_at`

func scanEscrow(row pgx.Row) (*models.Escrow, error) {
	var (
		e         models.Escrow
		amount    string
		txHash    *string
		onChainID *string
	)
	err := row.Scan(&e.ID, &e.Status, &e.PolicyID, &amount, &e.Deadline, &e.ScheduledReleaseAt,
		&txHash, &onChainID, &e.ExecutedTxHash, &e.Version, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if e.TotalAmount, err = parseNumeric(amount); err != nil {
		return nil, fmt.Errorf("escrow %s total_amount: %w", e.ID, err)
	}
	if txHash != nil && onChainID != nil {
		id, err := parseNumeric(*onChainID)
		if err != nil {
			return nil, fmt.Errorf("escrow %s on_chain_id: %w", e.ID, err)
		}
		e.OnChain = &models.OnChainRef{TxHash: *txHash, OnChainID: id}
	}
	return &e, nil
}

func (r *EscrowRepo) Get(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	e, err := scanEscrow(r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, services.NotFoundError("escrow", id)
	}
	return e, err
}

func (r *EscrowRepo) GetByOnChainID(ctx context.Context, onChainID *big.Int) (*models.Escrow, error) {
	e, err := scanEscrow(r.pool.QueryRow(ctx,
		`SELECT `+escrowColumns+` FROM escrows WHERE on_chain_id = $1::numeric`, numericArg(onChainID)))
	if isNoRows(err) {
		return nil, services.NotFoundError("escrow with on-chain id", onChainID)
	}
	return e, err
}

// UpdateStatus moves the escrow from -> to only if it is still in from.
func (r *EscrowRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.EscrowStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrows SET status = $1, version = version + 1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *EscrowRepo) MarkOnChain(ctx context.Context, id uuid.UUID, ref models.OnChainRef) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrows SET status = 'on-chain', tx_hash = $1, on_chain_id = $2::numeric,
		       version = version + 1, updated_at = now()
		WHERE id = $3 AND status = 'approved'
	`, ref.TxHash, numericArg(ref.OnChainID), id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *EscrowRepo) MarkExecuted(ctx context.Context, id uuid.UUID, txHash string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrows SET status = 'executed', executed_tx_hash = $1,
		       version = version + 1, updated_at = now()
		WHERE id = $2 AND status = 'on-chain'
	`, txHash, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *EscrowRepo) ListByStatus(ctx context.Context, status models.EscrowStatus, updatedBefore time.Time, limit int) ([]models.Escrow, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, `
		SELECT `+escrowColumns+` FROM escrows
		WHERE status = $1 AND updated_at <= $2
		ORDER BY updated_at ASC LIMIT $3
	`, status, updatedBefore, limit)
}

func (r *EscrowRepo) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Escrow, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, `
		SELECT `+escrowColumns+` FROM escrows
		WHERE status = 'submitted' AND deadline IS NOT NULL AND deadline <= $1
		ORDER BY deadline ASC LIMIT $2
	`, now, limit)
}

func (r *EscrowRepo) ListReleasable(ctx context.Context, now time.Time, limit int) ([]models.Escrow, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, `
		SELECT `+escrowColumns+` FROM escrows
		WHERE status = 'on-chain' AND scheduled_release_at IS NOT NULL AND scheduled_release_at <= $1
		ORDER BY scheduled_release_at ASC LIMIT $2
	`, now, limit)
}

func (r *EscrowRepo) list(ctx context.Context, query string, args ...any) ([]models.Escrow, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Escrow
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
