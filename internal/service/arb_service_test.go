package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pegbot/internal/domain"
	"github.com/alanyoungcy/pegbot/internal/notify"
)

type mockEvaluations struct {
	mock.Mock
	domain.EvaluationStore
}

func (m *mockEvaluations) Create(ctx context.Context, e domain.Evaluation) error {
	return m.Called(ctx, e).Error(0)
}

type mockExecutions struct {
	mock.Mock
	domain.ExecutionStore
}

func (m *mockExecutions) Create(ctx context.Context, e domain.Execution) error {
	return m.Called(ctx, e).Error(0)
}

type mockQuotes struct {
	mock.Mock
	domain.QuoteCache
}

func (m *mockQuotes) SetQuote(ctx context.Context, q domain.QuoteSnapshot) error {
	return m.Called(ctx, q).Error(0)
}

type memBus struct {
	domain.SignalBus
	published map[string][][]byte
	streamed  map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{published: map[string][][]byte{}, streamed: map[string][][]byte{}}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.streamed[stream] = append(b.streamed[stream], payload)
	return nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, event, title, message string) error {
	return m.Called(ctx, event, title, message).Error(0)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRecordEvaluation(t *testing.T) {
	at := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	e := domain.Evaluation{
		ID: "e1", Bot: "ust", Direction: domain.AbovePeg,
		Offer: "93525000", Received: "94460250",
		ProfitRatio: decimal.RequireFromString("1.0091"), Result: "success", EvaluatedAt: at,
	}

	evals := new(mockEvaluations)
	evals.On("Create", mock.Anything, e).Return(errors.New("db down"))
	quotes := new(mockQuotes)
	quotes.On("SetQuote", mock.Anything, domain.QuoteSnapshot{
		Bot: "ust", Direction: domain.AbovePeg, Offer: "93525000", Received: "94460250",
		ProfitRatio: "1.0091", Result: "success", UpdatedAt: at,
	}).Return(nil).Once()
	bus := newMemBus()

	svc := NewArbService(ArbServiceDeps{Evaluations: evals, Quotes: quotes, Bus: bus}, discard())
	svc.RecordEvaluation(context.Background(), e)

	evals.AssertExpectations(t)
	quotes.AssertExpectations(t)
	require.Len(t, bus.published[domain.ChannelEvaluation], 1, "store failure does not stop publishing")
	var got domain.Evaluation
	require.NoError(t, json.Unmarshal(bus.published[domain.ChannelEvaluation][0], &got))
	assert.Equal(t, "e1", got.ID)
}

func TestRecordExecution(t *testing.T) {
	tests := []struct {
		name      string
		kind      string
		status    domain.TxStatus
		wantEvent string
	}{
		{"arbitrage submitted", domain.ExecKindArbitrage, domain.TxSubmitted, notify.EventTradeSubmitted},
		{"arbitrage failed", domain.ExecKindArbitrage, domain.TxFailed, notify.EventTradeFailed},
		{"arbitrage rejected", domain.ExecKindArbitrage, domain.TxRejected, notify.EventTradeRejected},
		{"simulated is silent", domain.ExecKindArbitrage, domain.TxSimulated, ""},
		{"deposit submitted", domain.ExecKindDeposit, domain.TxSubmitted, notify.EventIdleCapital},
		{"withdraw rejected is silent", domain.ExecKindWithdraw, domain.TxRejected, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := domain.Execution{ID: "x1", Bot: "ust", Kind: tt.kind, Status: tt.status, TxHash: "HASH"}

			execs := new(mockExecutions)
			execs.On("Create", mock.Anything, x).Return(nil).Once()
			n := new(mockNotifier)
			if tt.wantEvent != "" {
				n.On("Notify", mock.Anything, tt.wantEvent, mock.Anything, mock.MatchedBy(func(msg string) bool {
					return assert.Contains(t, msg, "HASH")
				})).Return(nil).Once()
			}
			bus := newMemBus()

			svc := NewArbService(ArbServiceDeps{Executions: execs, Bus: bus, Notifier: n}, discard())
			svc.RecordExecution(context.Background(), x)

			execs.AssertExpectations(t)
			n.AssertExpectations(t)
			if tt.wantEvent == "" {
				n.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
			assert.Len(t, bus.published[domain.ChannelExecution], 1)
			assert.Len(t, bus.streamed[domain.StreamExecutions], 1)
		})
	}
}

func TestArbService_NoSinks(t *testing.T) {
	svc := NewArbService(ArbServiceDeps{}, discard())
	svc.RecordEvaluation(context.Background(), domain.Evaluation{Bot: "ust"})
	svc.RecordExecution(context.Background(), domain.Execution{Bot: "ust", Kind: domain.ExecKindArbitrage, Status: domain.TxSubmitted})
	svc.BotStopped(context.Background(), "ust", errors.New("fatal"))
}

func TestBotStopped(t *testing.T) {
	n := new(mockNotifier)
	n.On("Notify", mock.Anything, notify.EventBotStopped, "Bot stopped", "bot ust: malformed").Return(nil).Once()
	bus := newMemBus()

	NewArbService(ArbServiceDeps{Bus: bus, Notifier: n}, discard()).BotStopped(context.Background(), "ust", errors.New("malformed"))
	n.AssertExpectations(t)
	assert.JSONEq(t, `{"bot":"ust","status":"stopped","error":"malformed"}`, string(bus.published[domain.ChannelStatus][0]))
}
