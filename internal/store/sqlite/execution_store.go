package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore.
type ExecutionStore struct {
	db *sql.DB
}

const executionColumns = `id, evaluation_id, bot, direction, kind, tx_hash, status, fee_amount, fee_denom, gas, raw_log, messages, submitted_at`

// Create inserts an execution.
func (s *ExecutionStore) Create(ctx context.Context, e domain.Execution) error {
	var messages []byte
	if len(e.Messages) > 0 {
		messages = e.Messages
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO arb_executions (`+executionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EvaluationID, e.Bot, string(e.Direction), e.Kind, e.TxHash, string(e.Status),
		orZero(e.FeeAmount), e.FeeDenom, int64(e.Gas), e.RawLog, messages, toMicros(e.SubmittedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert execution: %w", err)
	}
	return nil
}

// GetByID returns one execution.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.Execution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM arb_executions WHERE id = ?`, id)
	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Execution{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Execution{}, fmt.Errorf("sqlite: get execution %s: %w", id, err)
	}
	return e, nil
}

// ListRecent returns the most recent executions.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM arb_executions ORDER BY submitted_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list executions: %w", err)
	}
	return collectExecutions(rows)
}

// CountByStatus counts executions per status since the given time.
func (s *ExecutionStore) CountByStatus(ctx context.Context, since time.Time) (map[domain.TxStatus]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM arb_executions WHERE submitted_at >= ? GROUP BY status`, toMicros(since))
	if err != nil {
		return nil, fmt.Errorf("sqlite: count executions: %w", err)
	}
	defer rows.Close()
	out := make(map[domain.TxStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("sqlite: count executions: %w", err)
		}
		out[domain.TxStatus(status)] = n
	}
	return out, rows.Err()
}

// ListBefore returns every execution older than before, oldest first.
func (s *ExecutionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM arb_executions WHERE submitted_at < ? ORDER BY submitted_at`, toMicros(before))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list old executions: %w", err)
	}
	return collectExecutions(rows)
}

// DeleteBefore removes executions older than before.
func (s *ExecutionStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM arb_executions WHERE submitted_at < ?`, toMicros(before))
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete executions: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(row scanner) (domain.Execution, error) {
	var e domain.Execution
	var dir, status string
	var gas, at int64
	var messages []byte
	err := row.Scan(&e.ID, &e.EvaluationID, &e.Bot, &dir, &e.Kind, &e.TxHash, &status,
		&e.FeeAmount, &e.FeeDenom, &gas, &e.RawLog, &messages, &at)
	if err != nil {
		return domain.Execution{}, err
	}
	e.Direction = domain.Direction(dir)
	e.Status = domain.TxStatus(status)
	e.Gas = uint64(gas)
	if len(messages) > 0 {
		e.Messages = messages
	}
	e.SubmittedAt = fromMicros(at)
	return e, nil
}

func collectExecutions(rows *sql.Rows) ([]domain.Execution, error) {
	defer rows.Close()
	var list []domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan execution: %w", err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}
