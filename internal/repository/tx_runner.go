package repository

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/autoreply/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// indexLockKey is the advisory lock taken by every index write. Writers read
// the policy set after taking it, so each rebuild covers every policy
// committed by the writers queued ahead of it.
const indexLockKey int64 = 0x6175746f7265706c // "autorepl"

// TxRunner runs policy writes in a single Postgres transaction holding the
// index advisory lock.
type TxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// WithTx commits when fn returns nil and rolls back otherwise.
func (r *TxRunner) WithTx(ctx context.Context, fn func(repos service.TxRepositories) error) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, indexLockKey); err != nil {
			return fmt.Errorf("failed to lock policy index: %w", err)
		}
		return fn(txRepos{tx: tx})
	})
}

type txRepos struct {
	tx pgx.Tx
}

func (r txRepos) Policies() service.PolicyRepository {
	return NewPolicyRepositoryWithTx(r.tx)
}

func (r txRepos) Index() service.PolicyIndex {
	return NewPolicyChunkRepositoryWithTx(r.tx)
}
