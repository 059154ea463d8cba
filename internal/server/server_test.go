package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pegbot/internal/bot"
	"github.com/alanyoungcy/pegbot/internal/domain"
	"github.com/alanyoungcy/pegbot/internal/server/handler"
)

type mockEvals struct {
	mock.Mock
	domain.EvaluationStore
}

func (m *mockEvals) ListRecent(ctx context.Context, botName string, limit int) ([]domain.Evaluation, error) {
	args := m.Called(ctx, botName, limit)
	return args.Get(0).([]domain.Evaluation), args.Error(1)
}

type mockExecs struct {
	mock.Mock
	domain.ExecutionStore
}

func (m *mockExecs) ListRecent(ctx context.Context, limit int) ([]domain.Execution, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]domain.Execution), args.Error(1)
}

func (m *mockExecs) GetByID(ctx context.Context, id string) (domain.Execution, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Execution), args.Error(1)
}

func (m *mockExecs) CountByStatus(ctx context.Context, since time.Time) (map[domain.TxStatus]int64, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(map[domain.TxStatus]int64), args.Error(1)
}

type mockQuotes struct {
	mock.Mock
	domain.QuoteCache
}

func (m *mockQuotes) ListQuotes(ctx context.Context, bots []string) ([]domain.QuoteSnapshot, error) {
	args := m.Called(ctx, bots)
	return args.Get(0).([]domain.QuoteSnapshot), args.Error(1)
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type staticStats []bot.Stats

func (s staticStats) Stats() []bot.Stats { return s }

func newTestServer(t *testing.T, apiKey string, evals *mockEvals, execs *mockExecs, quotes *mockQuotes, pingErr error) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	// Typed nil mocks must stay nil interfaces so the handlers see a
	// disabled source.
	var (
		evalStore  domain.EvaluationStore
		execStore  domain.ExecutionStore
		quoteCache domain.QuoteCache
	)
	if evals != nil {
		evalStore = evals
	}
	if execs != nil {
		execStore = execs
	}
	if quotes != nil {
		quoteCache = quotes
	}
	stats := staticStats{{Bot: "ust", Cycles: 4, MinSpread: "0.02"}}
	h := Handlers{
		Health:  handler.NewHealthHandler(map[string]handler.Pinger{"postgres": pingFunc(func(context.Context) error { return pingErr })}),
		Status:  handler.NewStatusHandler("bot", time.Now().Add(-time.Minute), stats),
		Journal: handler.NewJournalHandler(evalStore, execStore, quoteCache, []string{"ust", "krt"}, logger),
	}
	return NewServer(Config{Port: 0, APIKey: apiKey}, h, nil, logger).Handler()
}

func get(t *testing.T, h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		rec := get(t, newTestServer(t, "", nil, nil, nil, nil), "/api/health", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	})
	t.Run("degraded", func(t *testing.T) {
		rec := get(t, newTestServer(t, "", nil, nil, nil, errors.New("conn refused")), "/api/health", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "conn refused")
	})
	t.Run("open without key", func(t *testing.T) {
		rec := get(t, newTestServer(t, "secret", nil, nil, nil, nil), "/api/health", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAuth(t *testing.T) {
	h := newTestServer(t, "secret", nil, nil, nil, nil)

	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/api/status", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/api/status", map[string]string{"X-API-Key": "wrong"}).Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/api/status", map[string]string{"Authorization": "Bearer secret"}).Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/api/status", map[string]string{"X-API-Key": "secret"}).Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/api/status?api_key=secret", nil).Code)
}

func TestStatus(t *testing.T) {
	rec := get(t, newTestServer(t, "", nil, nil, nil, nil), "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Mode   string      `json:"mode"`
		Uptime int64       `json:"uptime_seconds"`
		Bots   []bot.Stats `json:"bots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "bot", body.Mode)
	assert.GreaterOrEqual(t, body.Uptime, int64(59))
	require.Len(t, body.Bots, 1)
	assert.Equal(t, int64(4), body.Bots[0].Cycles)
}

func TestEvaluations(t *testing.T) {
	evals := new(mockEvals)
	evals.On("ListRecent", mock.Anything, "ust", 10).Return([]domain.Evaluation{{Bot: "ust", Result: domain.Success.String()}}, nil)
	evals.On("ListRecent", mock.Anything, "", 500).Return([]domain.Evaluation(nil), nil)
	h := newTestServer(t, "", evals, nil, nil, nil)

	rec := get(t, h, "/api/evaluations?bot=ust&limit=10", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"bot":"ust"`)

	rec = get(t, h, "/api/evaluations?limit=9999", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	evals.AssertExpectations(t)
}

func TestExecutions(t *testing.T) {
	execs := new(mockExecs)
	execs.On("ListRecent", mock.Anything, 50).Return([]domain.Execution{{ID: "a", TxHash: "ABC"}}, nil)
	execs.On("GetByID", mock.Anything, "a").Return(domain.Execution{ID: "a", TxHash: "ABC"}, nil)
	execs.On("GetByID", mock.Anything, "missing").Return(domain.Execution{}, domain.ErrNotFound)
	execs.On("CountByStatus", mock.Anything, mock.AnythingOfType("time.Time")).
		Return(map[domain.TxStatus]int64{domain.TxSubmitted: 3}, nil)
	h := newTestServer(t, "", nil, execs, nil, nil)

	t.Run("list", func(t *testing.T) {
		rec := get(t, h, "/api/executions", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"tx_hash":"ABC"`)
	})
	t.Run("get", func(t *testing.T) {
		rec := get(t, h, "/api/executions/a", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"id":"a"`)
	})
	t.Run("not found", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get(t, h, "/api/executions/missing", nil).Code)
	})
	t.Run("counts", func(t *testing.T) {
		rec := get(t, h, "/api/executions/counts?hours=6", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"submitted":3}`, rec.Body.String())
	})
	t.Run("bad hours", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/executions/counts?hours=x", nil).Code)
	})
}

func TestQuotes(t *testing.T) {
	quotes := new(mockQuotes)
	quotes.On("ListQuotes", mock.Anything, []string{"ust", "krt"}).
		Return([]domain.QuoteSnapshot{{Bot: "ust", Direction: domain.AbovePeg}}, nil)
	quotes.On("ListQuotes", mock.Anything, []string{"krt"}).Return([]domain.QuoteSnapshot{}, errors.New("redis down"))
	h := newTestServer(t, "", nil, nil, quotes, nil)

	rec := get(t, h, "/api/quotes", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"direction":"above_peg"`)

	assert.Equal(t, http.StatusInternalServerError, get(t, h, "/api/quotes?bot=krt", nil).Code)
}

func TestDisabledSources(t *testing.T) {
	h := newTestServer(t, "", nil, nil, nil, nil)
	for _, path := range []string{"/api/evaluations", "/api/executions", "/api/executions/x", "/api/quotes"} {
		assert.Equal(t, http.StatusServiceUnavailable, get(t, h, path, nil).Code, path)
	}
}

func TestCORS(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewServer(Config{CORSOrigins: []string{"https://dash.example"}},
		Handlers{
			Health:  handler.NewHealthHandler(nil),
			Status:  handler.NewStatusHandler("server", time.Now(), nil),
			Journal: handler.NewJournalHandler(nil, nil, nil, nil, logger),
		}, nil, logger).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "https://dash.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = get(t, h, "/api/status", map[string]string{"Origin": "https://evil.example"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
