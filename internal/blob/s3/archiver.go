package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

const (
	parquetContentType = "application/vnd.apache.parquet"
	// multipartThreshold switches uploads to the multipart manager.
	multipartThreshold = 32 * 1024 * 1024
)

// EvaluationSource is the part of the evaluation store the archiver needs.
type EvaluationSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Evaluation, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ExecutionSource is the part of the execution store the archiver needs.
type ExecutionSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Execution, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver implements domain.Archiver. Rows older than the cutoff are written
// to archive/<kind>/<yyyy-mm-dd>.parquet, and only deleted from the store
// once the object is confirmed to exist.
type Archiver struct {
	writer      domain.BlobWriter
	reader      domain.BlobReader
	evaluations EvaluationSource
	executions  ExecutionSource
	logger      *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(w domain.BlobWriter, r domain.BlobReader, evals EvaluationSource, execs ExecutionSource, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:      w,
		reader:      r,
		evaluations: evals,
		executions:  execs,
		logger:      logger.With(slog.String("component", "archiver")),
	}
}

type evaluationRow struct {
	ID          string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Bot         string `parquet:"name=bot, type=BYTE_ARRAY, convertedtype=UTF8"`
	Direction   string `parquet:"name=direction, type=BYTE_ARRAY, convertedtype=UTF8"`
	Offer       string `parquet:"name=offer, type=BYTE_ARRAY, convertedtype=UTF8"`
	Received    string `parquet:"name=received, type=BYTE_ARRAY, convertedtype=UTF8"`
	TaxRate     string `parquet:"name=tax_rate, type=BYTE_ARRAY, convertedtype=UTF8"`
	ProfitRatio string `parquet:"name=profit_ratio, type=BYTE_ARRAY, convertedtype=UTF8"`
	Result      string `parquet:"name=result, type=BYTE_ARRAY, convertedtype=UTF8"`
	Reason      string `parquet:"name=reason, type=BYTE_ARRAY, convertedtype=UTF8"`
	EvaluatedAt int64  `parquet:"name=evaluated_at, type=INT64, convertedtype=TIMESTAMP_MICROS"`
}

type executionRow struct {
	ID           string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	EvaluationID string `parquet:"name=evaluation_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Bot          string `parquet:"name=bot, type=BYTE_ARRAY, convertedtype=UTF8"`
	Direction    string `parquet:"name=direction, type=BYTE_ARRAY, convertedtype=UTF8"`
	Kind         string `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	TxHash       string `parquet:"name=tx_hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status       string `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	FeeAmount    string `parquet:"name=fee_amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	FeeDenom     string `parquet:"name=fee_denom, type=BYTE_ARRAY, convertedtype=UTF8"`
	Gas          int64  `parquet:"name=gas, type=INT64"`
	RawLog       string `parquet:"name=raw_log, type=BYTE_ARRAY, convertedtype=UTF8"`
	Messages     string `parquet:"name=messages, type=BYTE_ARRAY, convertedtype=UTF8"`
	SubmittedAt  int64  `parquet:"name=submitted_at, type=INT64, convertedtype=TIMESTAMP_MICROS"`
}

// ArchiveEvaluations archives and deletes evaluations older than before.
func (a *Archiver) ArchiveEvaluations(ctx context.Context, before time.Time) (int64, error) {
	evals, err := a.evaluations.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive evaluations: %w", err)
	}
	if len(evals) == 0 {
		return 0, nil
	}

	rows := make([]any, len(evals))
	for i, e := range evals {
		rows[i] = &evaluationRow{
			ID: e.ID, Bot: e.Bot, Direction: string(e.Direction),
			Offer: e.Offer, Received: e.Received,
			TaxRate: e.TaxRate.String(), ProfitRatio: e.ProfitRatio.String(),
			Result: e.Result, Reason: e.Reason,
			EvaluatedAt: e.EvaluatedAt.UnixMicro(),
		}
	}
	return a.archive(ctx, "evaluations", before, new(evaluationRow), rows, a.evaluations.DeleteBefore)
}

// ArchiveExecutions archives and deletes executions older than before.
func (a *Archiver) ArchiveExecutions(ctx context.Context, before time.Time) (int64, error) {
	execs, err := a.executions.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions: %w", err)
	}
	if len(execs) == 0 {
		return 0, nil
	}

	rows := make([]any, len(execs))
	for i, e := range execs {
		rows[i] = &executionRow{
			ID: e.ID, EvaluationID: e.EvaluationID, Bot: e.Bot,
			Direction: string(e.Direction), Kind: e.Kind, TxHash: e.TxHash,
			Status: string(e.Status), FeeAmount: e.FeeAmount, FeeDenom: e.FeeDenom,
			Gas: int64(e.Gas), RawLog: e.RawLog, Messages: string(e.Messages),
			SubmittedAt: e.SubmittedAt.UnixMicro(),
		}
	}
	return a.archive(ctx, "executions", before, new(executionRow), rows, a.executions.DeleteBefore)
}

func (a *Archiver) archive(ctx context.Context, kind string, before time.Time, schema any, rows []any,
	deleteBefore func(context.Context, time.Time) (int64, error)) (int64, error) {
	data, err := encodeParquet(schema, rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s: %w", kind, err)
	}

	path := ArchivePath(kind, before)
	if len(data) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(data), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(data), parquetContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s: %w", kind, err)
	}

	ok, err := a.reader.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s: verify: %w", kind, err)
	}
	if !ok {
		return 0, fmt.Errorf("s3blob: archive %s: %s missing after upload", kind, path)
	}

	deleted, err := deleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s: delete rows: %w", kind, err)
	}
	a.logger.InfoContext(ctx, "archived rows",
		slog.String("kind", kind),
		slog.String("path", path),
		slog.Int("rows", len(rows)),
		slog.Int64("deleted", deleted),
		slog.Int("bytes", len(data)),
	)
	return int64(len(rows)), nil
}

// ArchivePath returns the object key for rows of kind older than before.
func ArchivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.parquet", kind, before.UTC().Format("2006-01-02"))
}

func encodeParquet(schema any, rows []any) ([]byte, error) {
	buf := buffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(buf, schema, 1)
	if err != nil {
		return nil, fmt.Errorf("parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for i, row := range rows {
		if err := pw.Write(row); err != nil {
			return nil, fmt.Errorf("parquet row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("parquet flush: %w", err)
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
