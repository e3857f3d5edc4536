package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/angelmondragon/storefront-payments/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/storefront-payments/pkg/bigquery"
)

const (
	defaultBatchSize = 1
	// maxBuffered caps rows kept after failed flushes.
	maxBuffered = 5000
)

// Config controls the analytics writer behavior.
type Config struct {
	PaymentEventsTable string
	BatchSize          int
	RetryPolicy        RetryPolicy
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryWriter buffers payment fact rows and streams them into BigQuery.
// It is safe for the concurrent callbacks of a Pub/Sub receiver.
type BigQueryWriter struct {
	client    tableInserter
	table     string
	batchSize int
	retry     RetryPolicy

	mu     sync.Mutex
	buffer []types.PaymentEventRow
}

// New creates a writer for the payment events table.
func New(client *pkgbigquery.Client, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.PaymentEventsTable)
	if table == "" {
		return nil, errors.New("payment events table is required")
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &BigQueryWriter{
		client:    client,
		table:     table,
		batchSize: batchSize,
		retry:     cfg.RetryPolicy.withDefaults(),
	}, nil
}

// InsertPaymentEvent buffers a row and flushes once the batch is full.
func (w *BigQueryWriter) InsertPaymentEvent(ctx context.Context, row types.PaymentEventRow) error {
	w.mu.Lock()
	w.buffer = append(w.buffer, row)
	full := len(w.buffer) >= w.batchSize
	w.mu.Unlock()
	if !full {
		return nil
	}
	return w.Flush(ctx)
}

// Flush writes the buffered rows. Rows from a failed insert go back to the
// front of the buffer for the next flush.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	pending := w.buffer
	w.buffer = nil
	w.mu.Unlock()
	if len(pending) == 0 {
		return nil
	}

	rows := make([]any, len(pending))
	for i := range pending {
		rows[i] = &pending[i]
	}
	if err := w.insert(ctx, rows); err != nil {
		w.requeue(pending)
		return err
	}
	return nil
}

func (w *BigQueryWriter) requeue(rows []types.PaymentEventRow) {
	w.mu.Lock()
	defer w.mu.Unlock()
	merged := append(rows, w.buffer...)
	if len(merged) > maxBuffered {
		merged = merged[len(merged)-maxBuffered:]
	}
	w.buffer = merged
}

func (w *BigQueryWriter) buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}

func (w *BigQueryWriter) insert(ctx context.Context, rows []any) error {
	backoff := w.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := w.client.InsertRows(ctx, w.table, rows)
		if err == nil {
			return nil
		}
		if attempt >= w.retry.MaxAttempts || !isRetryableBigQueryError(err) {
			return fmt.Errorf("insert %s rows: %w", w.table, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, w.retry.MaximumBackoff)
	}
}

// EncodeJSON serializes a payload for a BigQuery JSON column.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch value := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return value, nil
	case json.RawMessage:
		raw = value
	case []byte:
		raw = value
	default:
		marshaled, err := json.Marshal(payload)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = marshaled
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
