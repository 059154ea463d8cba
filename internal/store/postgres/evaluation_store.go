package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

// EvaluationStore implements domain.EvaluationStore using PostgreSQL.
type EvaluationStore struct {
	pool *pgxpool.Pool
}

// NewEvaluationStore creates a new EvaluationStore.
func NewEvaluationStore(pool *pgxpool.Pool) *EvaluationStore {
	return &EvaluationStore{pool: pool}
}

const evaluationColumns = `id::text, bot, direction, offer::text, received::text, tax_rate::text, profit_ratio::text, result, reason, evaluated_at`

// Create inserts an evaluation.
func (s *EvaluationStore) Create(ctx context.Context, e domain.Evaluation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO arb_evaluations (id, bot, direction, offer, received, tax_rate, profit_ratio, result, reason, evaluated_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10)`,
		e.ID, e.Bot, string(e.Direction), amountOrZero(e.Offer), amountOrZero(e.Received),
		e.TaxRate.String(), e.ProfitRatio.String(), e.Result, e.Reason, e.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert arb_evaluation: %w", err)
	}
	return nil
}

// ListRecent returns the newest evaluations, optionally for one bot.
func (s *EvaluationStore) ListRecent(ctx context.Context, bot string, limit int) ([]domain.Evaluation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+evaluationColumns+`
		FROM arb_evaluations
		WHERE $1 = '' OR bot = $1
		ORDER BY evaluated_at DESC LIMIT $2`, bot, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list arb_evaluations: %w", err)
	}
	return collectEvaluations(rows)
}

// ListBefore returns every evaluation older than before, oldest first.
func (s *EvaluationStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Evaluation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+evaluationColumns+`
		FROM arb_evaluations WHERE evaluated_at < $1 ORDER BY evaluated_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list old arb_evaluations: %w", err)
	}
	return collectEvaluations(rows)
}

// DeleteBefore removes evaluations older than before.
func (s *EvaluationStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM arb_evaluations WHERE evaluated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete arb_evaluations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectEvaluations(rows pgx.Rows) ([]domain.Evaluation, error) {
	defer rows.Close()
	var list []domain.Evaluation
	for rows.Next() {
		var e domain.Evaluation
		var dir, tax, ratio string
		if err := rows.Scan(&e.ID, &e.Bot, &dir, &e.Offer, &e.Received, &tax, &ratio, &e.Result, &e.Reason, &e.EvaluatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan arb_evaluation: %w", err)
		}
		e.Direction = domain.Direction(dir)
		var err error
		if e.TaxRate, err = decimal.NewFromString(tax); err != nil {
			return nil, fmt.Errorf("postgres: arb_evaluation %s tax_rate: %w", e.ID, err)
		}
		if e.ProfitRatio, err = decimal.NewFromString(ratio); err != nil {
			return nil, fmt.Errorf("postgres: arb_evaluation %s profit_ratio: %w", e.ID, err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func amountOrZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
