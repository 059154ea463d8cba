package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

// EvaluationStore implements domain.EvaluationStore.
type EvaluationStore struct {
	db *sql.DB
}

const evaluationColumns = `id, bot, direction, offer, received, tax_rate, profit_ratio, result, reason, evaluated_at`

// Create inserts an evaluation.
func (s *EvaluationStore) Create(ctx context.Context, e domain.Evaluation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO arb_evaluations (`+evaluationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Bot, string(e.Direction), orZero(e.Offer), orZero(e.Received),
		e.TaxRate.String(), e.ProfitRatio.String(), e.Result, e.Reason, toMicros(e.EvaluatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert evaluation: %w", err)
	}
	return nil
}

// ListRecent returns the newest evaluations, optionally for one bot.
func (s *EvaluationStore) ListRecent(ctx context.Context, bot string, limit int) ([]domain.Evaluation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+evaluationColumns+` FROM arb_evaluations
		WHERE ? = '' OR bot = ? ORDER BY evaluated_at DESC LIMIT ?`, bot, bot, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list evaluations: %w", err)
	}
	return scanEvaluations(rows)
}

// ListBefore returns every evaluation older than before, oldest first.
func (s *EvaluationStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Evaluation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+evaluationColumns+` FROM arb_evaluations WHERE evaluated_at < ? ORDER BY evaluated_at`,
		toMicros(before))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list old evaluations: %w", err)
	}
	return scanEvaluations(rows)
}

// DeleteBefore removes evaluations older than before.
func (s *EvaluationStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM arb_evaluations WHERE evaluated_at < ?`, toMicros(before))
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete evaluations: %w", err)
	}
	return res.RowsAffected()
}

func scanEvaluations(rows *sql.Rows) ([]domain.Evaluation, error) {
	defer rows.Close()
	var list []domain.Evaluation
	for rows.Next() {
		var e domain.Evaluation
		var dir, tax, ratio string
		var at int64
		if err := rows.Scan(&e.ID, &e.Bot, &dir, &e.Offer, &e.Received, &tax, &ratio, &e.Result, &e.Reason, &at); err != nil {
			return nil, fmt.Errorf("sqlite: scan evaluation: %w", err)
		}
		var err error
		if e.TaxRate, err = decimal.NewFromString(tax); err != nil {
			return nil, fmt.Errorf("sqlite: evaluation %s tax_rate: %w", e.ID, err)
		}
		if e.ProfitRatio, err = decimal.NewFromString(ratio); err != nil {
			return nil, fmt.Errorf("sqlite: evaluation %s profit_ratio: %w", e.ID, err)
		}
		e.Direction = domain.Direction(dir)
		e.EvaluatedAt = fromMicros(at)
		list = append(list, e)
	}
	return list, rows.Err()
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
