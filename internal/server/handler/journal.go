package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

// JournalHandler serves evaluations, executions and the latest quotes. Any
// of its sources may be nil, in which case the endpoint answers 503.
type JournalHandler struct {
	evals  domain.EvaluationStore
	execs  domain.ExecutionStore
	quotes domain.QuoteCache
	bots   []string
	logger *slog.Logger
}

// NewJournalHandler creates a JournalHandler. bots names the configured bots
// for the quotes listing.
func NewJournalHandler(evals domain.EvaluationStore, execs domain.ExecutionStore, quotes domain.QuoteCache, bots []string, logger *slog.Logger) *JournalHandler {
	return &JournalHandler{
		evals:  evals,
		execs:  execs,
		quotes: quotes,
		bots:   bots,
		logger: logger.With(slog.String("handler", "journal")),
	}
}

// ListEvaluations returns recent evaluations, optionally ?bot= filtered.
// GET /api/evaluations
func (h *JournalHandler) ListEvaluations(w http.ResponseWriter, r *http.Request) {
	if h.evals == nil {
		writeError(w, http.StatusServiceUnavailable, "journal storage disabled")
		return
	}
	list, err := h.evals.ListRecent(r.Context(), r.URL.Query().Get("bot"), parseLimit(r))
	if err != nil {
		h.fail(w, r, "list evaluations", err)
		return
	}
	if list == nil {
		list = []domain.Evaluation{}
	}
	writeJSON(w, http.StatusOK, list)
}

// ListExecutions returns recent executions.
// GET /api/executions
func (h *JournalHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	if h.execs == nil {
		writeError(w, http.StatusServiceUnavailable, "journal storage disabled")
		return
	}
	list, err := h.execs.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.fail(w, r, "list executions", err)
		return
	}
	if list == nil {
		list = []domain.Execution{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetExecution returns one execution.
// GET /api/executions/{id}
func (h *JournalHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	if h.execs == nil {
		writeError(w, http.StatusServiceUnavailable, "journal storage disabled")
		return
	}
	x, err := h.execs.GetByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	if err != nil {
		h.fail(w, r, "get execution", err)
		return
	}
	writeJSON(w, http.StatusOK, x)
}

// ListQuotes returns the cached latest quote per bot and direction. ?bot=
// accepts a comma-separated subset.
// GET /api/quotes
func (h *JournalHandler) ListQuotes(w http.ResponseWriter, r *http.Request) {
	if h.quotes == nil {
		writeError(w, http.StatusServiceUnavailable, "quote cache disabled")
		return
	}
	bots := h.bots
	if v := r.URL.Query().Get("bot"); v != "" {
		bots = strings.Split(v, ",")
	}
	list, err := h.quotes.ListQuotes(r.Context(), bots)
	if err != nil {
		h.fail(w, r, "list quotes", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *JournalHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.ErrorContext(r.Context(), op+" failed", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// ExecutionCounts returns execution counts by status over the last ?hours=
// (default 24).
// GET /api/executions/counts
func (h *JournalHandler) ExecutionCounts(w http.ResponseWriter, r *http.Request) {
	if h.execs == nil {
		writeError(w, http.StatusServiceUnavailable, "journal storage disabled")
		return
	}
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = n
	}
	counts, err := h.execs.CountByStatus(r.Context(), time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		h.fail(w, r, "count executions", err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}
