package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

// QuoteCache implements domain.QuoteCache with one hash per bot and
// direction at "{namespace}:quote:{bot}:{direction}". Entries expire so a stopped
// bot drops out of the dashboard.
type QuoteCache struct {
	c   *Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache whose entries live for ttl.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QuoteCache{c: c, ttl: ttl}
}

func (qc *QuoteCache) quoteKey(bot string, dir domain.Direction) string {
	return qc.c.key("quote", bot, string(dir))
}

// SetQuote stores q and refreshes its expiry.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.QuoteSnapshot) error {
	key := qc.quoteKey(q.Bot, q.Direction)
	_, err := qc.c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, map[string]any{
			"offer":        q.Offer,
			"received":     q.Received,
			"profit_ratio": q.ProfitRatio,
			"result":       q.Result,
			"ts":           strconv.FormatInt(q.UpdatedAt.UnixNano(), 10),
		})
		p.Expire(ctx, key, qc.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: set quote %s: %w", key, err)
	}
	return nil
}

// GetQuote returns the latest quote, or domain.ErrNotFound.
func (qc *QuoteCache) GetQuote(ctx context.Context, bot string, dir domain.Direction) (domain.QuoteSnapshot, error) {
	vals, err := qc.c.rdb.HGetAll(ctx, qc.quoteKey(bot, dir)).Result()
	if err != nil {
		return domain.QuoteSnapshot{}, fmt.Errorf("redis: get quote %s/%s: %w", bot, dir, err)
	}
	if len(vals) == 0 {
		return domain.QuoteSnapshot{}, domain.ErrNotFound
	}
	return snapshotFrom(bot, dir, vals)
}

// ListQuotes returns every cached quote of bots, skipping missing entries.
func (qc *QuoteCache) ListQuotes(ctx context.Context, bots []string) ([]domain.QuoteSnapshot, error) {
	type pending struct {
		bot string
		dir domain.Direction
		cmd *redis.MapStringStringCmd
	}
	var cmds []pending
	_, err := qc.c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, bot := range bots {
			for _, dir := range domain.Directions {
				cmds = append(cmds, pending{bot: bot, dir: dir, cmd: p.HGetAll(ctx, qc.quoteKey(bot, dir))})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis: list quotes: %w", err)
	}

	out := make([]domain.QuoteSnapshot, 0, len(cmds))
	for _, c := range cmds {
		vals := c.cmd.Val()
		if len(vals) == 0 {
			continue
		}
		q, err := snapshotFrom(c.bot, c.dir, vals)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func snapshotFrom(bot string, dir domain.Direction, vals map[string]string) (domain.QuoteSnapshot, error) {
	q := domain.QuoteSnapshot{
		Bot:         bot,
		Direction:   dir,
		Offer:       vals["offer"],
		Received:    vals["received"],
		ProfitRatio: vals["profit_ratio"],
		Result:      vals["result"],
	}
	if ts, ok := vals["ts"]; ok {
		ns, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return domain.QuoteSnapshot{}, fmt.Errorf("redis: quote %s/%s ts %q: %w", bot, dir, ts, err)
		}
		q.UpdatedAt = time.Unix(0, ns).UTC()
	}
	return q, nil
}

var _ domain.QuoteCache = (*QuoteCache)(nil)
