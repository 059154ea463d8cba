package domain

import (
	"context"
	"time"
)

// QuoteSnapshot is the latest evaluation of one bot direction, kept in a
// fast cache for dashboards.
type QuoteSnapshot struct {
	Bot         string    `json:"bot"`
	Direction   Direction `json:"direction"`
	Offer       string    `json:"offer"`
	Received    string    `json:"received"`
	ProfitRatio string    `json:"profit_ratio"`
	Result      string    `json:"result"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// QuoteCache stores the latest quote per bot and direction.
type QuoteCache interface {
	SetQuote(ctx context.Context, q QuoteSnapshot) error
	GetQuote(ctx context.Context, bot string, dir Direction) (QuoteSnapshot, error)
	ListQuotes(ctx context.Context, bots []string) ([]QuoteSnapshot, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Signal bus channels and streams.
const (
	ChannelEvaluation = "arb:evaluation"
	ChannelExecution  = "arb:execution"
	ChannelStatus     = "bot:status"
	StreamExecutions  = "stream:executions"
)
