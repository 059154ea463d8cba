package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionColumns = `id::text, COALESCE(evaluation_id::text, ''), bot, direction, kind, tx_hash, status,
	fee_amount::text, fee_denom, gas, raw_log, COALESCE(messages::text, ''), submitted_at`

// Create inserts an execution.
func (s *ExecutionStore) Create(ctx context.Context, e domain.Execution) error {
	var evalID, messages *string
	if e.EvaluationID != "" {
		evalID = &e.EvaluationID
	}
	if len(e.Messages) > 0 {
		m := string(e.Messages)
		messages = &m
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO arb_executions (id, evaluation_id, bot, direction, kind, tx_hash, status, fee_amount, fee_denom, gas, raw_log, messages, submitted_at)
		VALUES ($1, $2::uuid, $3, $4, $5, $6, $7, $8::numeric, $9, $10, $11, $12::jsonb, $13)`,
		e.ID, evalID, e.Bot, string(e.Direction), e.Kind, e.TxHash, string(e.Status),
		amountOrZero(e.FeeAmount), e.FeeDenom, int64(e.Gas), e.RawLog, messages, e.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert arb_execution: %w", err)
	}
	return nil
}

// GetByID returns one execution.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.Execution, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+executionColumns+` FROM arb_executions WHERE id::text = $1`, id)
	if err != nil {
		return domain.Execution{}, fmt.Errorf("postgres: get arb_execution %s: %w", id, err)
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanExecution)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Execution{}, domain.ErrNotFound
		}
		return domain.Execution{}, fmt.Errorf("postgres: get arb_execution %s: %w", id, err)
	}
	return e, nil
}

// ListRecent returns the most recent executions.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+executionColumns+`
		FROM arb_executions ORDER BY submitted_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list arb_executions: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanExecution)
	if err != nil {
		return nil, fmt.Errorf("postgres: list arb_executions: %w", err)
	}
	return list, nil
}

// CountByStatus counts executions per status since the given time.
func (s *ExecutionStore) CountByStatus(ctx context.Context, since time.Time) (map[domain.TxStatus]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM arb_executions WHERE submitted_at >= $1 GROUP BY status`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: count arb_executions: %w", err)
	}
	defer rows.Close()
	out := make(map[domain.TxStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("postgres: count arb_executions: %w", err)
		}
		out[domain.TxStatus(status)] = n
	}
	return out, rows.Err()
}

// ListBefore returns every execution older than before, oldest first.
func (s *ExecutionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Execution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+executionColumns+`
		FROM arb_executions WHERE submitted_at < $1 ORDER BY submitted_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list old arb_executions: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanExecution)
	if err != nil {
		return nil, fmt.Errorf("postgres: list old arb_executions: %w", err)
	}
	return list, nil
}

// DeleteBefore removes executions older than before.
func (s *ExecutionStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM arb_executions WHERE submitted_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete arb_executions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanExecution(row pgx.CollectableRow) (domain.Execution, error) {
	var e domain.Execution
	var dir, status, messages string
	var gas int64
	err := row.Scan(&e.ID, &e.EvaluationID, &e.Bot, &dir, &e.Kind, &e.TxHash, &status,
		&e.FeeAmount, &e.FeeDenom, &gas, &e.RawLog, &messages, &e.SubmittedAt)
	if err != nil {
		return domain.Execution{}, err
	}
	e.Direction = domain.Direction(dir)
	e.Status = domain.TxStatus(status)
	e.Gas = uint64(gas)
	if messages != "" {
		e.Messages = []byte(messages)
	}
	return e, nil
}
