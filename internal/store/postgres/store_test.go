package postgres

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

var client *Client

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpassword",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		// No docker: the store tests skip themselves.
		log.Printf("postgres container unavailable: %s", err)
		return m.Run()
	}
	defer func() {
		if err := pg.Terminate(ctx); err != nil {
			log.Printf("could not stop postgres container: %s", err)
		}
	}()

	host, err := pg.Host(ctx)
	if err != nil {
		log.Fatalf("could not get container host: %s", err)
	}
	port, err := pg.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("could not get mapped port: %s", err)
	}

	client, err = New(ctx, ClientConfig{
		Host:     host,
		Port:     port.Int(),
		Database: "testdb",
		User:     "testuser",
		Password: "testpassword",
	})
	if err != nil {
		log.Fatalf("could not connect to database: %s", err)
	}
	defer client.Close()

	if err := client.RunMigrations(ctx); err != nil {
		log.Fatalf("could not migrate: %s", err)
	}
	return m.Run()
}

func requireDB(t *testing.T) {
	t.Helper()
	if client == nil {
		t.Skip("postgres container not available")
	}
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/pegbot?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "pegbot", User: "u", Password: "p"}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
}

func TestMigrations_Idempotent(t *testing.T) {
	requireDB(t)
	require.NoError(t, client.RunMigrations(context.Background()))
}

func TestEvaluationStore(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	store := client.Evaluations()
	bot := "eval-" + uuid.NewString()[:8]

	old := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Now().UTC().Truncate(time.Microsecond)
	for i, at := range []time.Time{old, recent} {
		require.NoError(t, store.Create(ctx, domain.Evaluation{
			ID:          uuid.NewString(),
			Bot:         bot,
			Direction:   domain.AbovePeg,
			Offer:       "93525000",
			Received:    "94460250",
			TaxRate:     decimal.RequireFromString("0.001"),
			ProfitRatio: decimal.RequireFromString("1.009144881047848169"),
			Result:      domain.Success.String(),
			Reason:      []string{"", "note"}[i],
			EvaluatedAt: at,
		}))
	}

	t.Run("list recent newest first", func(t *testing.T) {
		list, err := store.ListRecent(ctx, bot, 10)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.True(t, list[0].EvaluatedAt.Equal(recent))
		assert.Equal(t, "93525000", list[0].Offer)
		assert.True(t, list[0].ProfitRatio.Equal(decimal.RequireFromString("1.009144881047848169")))
		assert.Equal(t, domain.AbovePeg, list[0].Direction)
	})

	t.Run("delete before cutoff", func(t *testing.T) {
		cutoff := old.Add(time.Hour)
		before, err := store.ListBefore(ctx, cutoff)
		require.NoError(t, err)
		require.NotEmpty(t, before)

		n, err := store.DeleteBefore(ctx, cutoff)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		list, err := store.ListRecent(ctx, bot, 10)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}

func TestExecutionStore(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	store := client.Executions()

	exec := domain.Execution{
		ID:           uuid.NewString(),
		EvaluationID: uuid.NewString(),
		Bot:          "ust",
		Direction:    domain.BelowPeg,
		Kind:         domain.ExecKindArbitrage,
		TxHash:       "ABCDEF",
		Status:       domain.TxSubmitted,
		FeeAmount:    "30000",
		FeeDenom:     "uusd",
		Gas:          200_000,
		Messages:     []byte(`[{"type":"market/MsgSwap"}]`),
		SubmittedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.Create(ctx, exec))

	deposit := domain.Execution{
		ID:          uuid.NewString(),
		Bot:         "ust",
		Kind:        domain.ExecKindDeposit,
		Status:      domain.TxRejected,
		SubmittedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Create(ctx, deposit))

	t.Run("get by id", func(t *testing.T) {
		got, err := store.GetByID(ctx, exec.ID)
		require.NoError(t, err)
		assert.Equal(t, exec.TxHash, got.TxHash)
		assert.Equal(t, exec.EvaluationID, got.EvaluationID)
		assert.Equal(t, uint64(200_000), got.Gas)
		assert.JSONEq(t, string(exec.Messages), string(got.Messages))
		assert.True(t, got.SubmittedAt.Equal(exec.SubmittedAt))
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := store.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("execution without evaluation", func(t *testing.T) {
		got, err := store.GetByID(ctx, deposit.ID)
		require.NoError(t, err)
		assert.Empty(t, got.EvaluationID)
		assert.Empty(t, got.Messages)
		assert.Equal(t, "0", got.FeeAmount)
	})

	t.Run("count by status", func(t *testing.T) {
		counts, err := store.CountByStatus(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, counts[domain.TxSubmitted], int64(1))
		assert.GreaterOrEqual(t, counts[domain.TxRejected], int64(1))
	})

	t.Run("list recent", func(t *testing.T) {
		list, err := store.ListRecent(ctx, 100)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(list), 2)
	})
}
