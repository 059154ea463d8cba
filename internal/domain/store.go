package domain

import (
	"context"
	"time"
)

// EvaluationStore persists direction evaluations.
type EvaluationStore interface {
	Create(ctx context.Context, e Evaluation) error
	ListRecent(ctx context.Context, bot string, limit int) ([]Evaluation, error)
	ListBefore(ctx context.Context, before time.Time) ([]Evaluation, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ExecutionStore persists transaction attempts.
type ExecutionStore interface {
	Create(ctx context.Context, e Execution) error
	GetByID(ctx context.Context, id string) (Execution, error)
	ListRecent(ctx context.Context, limit int) ([]Execution, error)
	CountByStatus(ctx context.Context, since time.Time) (map[TxStatus]int64, error)
	ListBefore(ctx context.Context, before time.Time) ([]Execution, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
