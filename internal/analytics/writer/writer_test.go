package writer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-payments/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/storefront-payments/pkg/bigquery"
)

// scriptedInserter fails inserts with the queued errors, then succeeds.
type scriptedInserter struct {
	mu     sync.Mutex
	errs   []error
	tables []string
	rows   []int
}

func (s *scriptedInserter) InsertRows(_ context.Context, table string, rows []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = append(s.tables, table)
	s.rows = append(s.rows, len(rows))
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func (s *scriptedInserter) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func testWriter(t *testing.T, batch int, errs ...error) (*BigQueryWriter, *scriptedInserter) {
	t.Helper()
	w, err := New(&pkgbigquery.Client{}, Config{
		PaymentEventsTable: "payment_events",
		BatchSize:          batch,
		RetryPolicy:        RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaximumBackoff: time.Millisecond},
	})
	require.NoError(t, err)
	ins := &scriptedInserter{errs: errs}
	w.client = ins
	return w, ins
}

func row(id int) types.PaymentEventRow {
	return types.PaymentEventRow{EventID: strconv.Itoa(id)}
}

var (
	unavailable = &googleapi.Error{Code: http.StatusServiceUnavailable}
	badRequest  = &googleapi.Error{Code: http.StatusBadRequest}
)

func TestNewValidates(t *testing.T) {
	_, err := New(nil, Config{PaymentEventsTable: "payment_events"})
	assert.Error(t, err)
	_, err = New(&pkgbigquery.Client{}, Config{PaymentEventsTable: " "})
	assert.Error(t, err)

	w, err := New(&pkgbigquery.Client{}, Config{PaymentEventsTable: "payment_events"})
	require.NoError(t, err)
	assert.Equal(t, defaultBatchSize, w.batchSize)
	assert.Equal(t, 3, w.retry.MaxAttempts)
}

func TestInsertRetriesTransientFailures(t *testing.T) {
	w, ins := testWriter(t, 1, unavailable, unavailable)

	require.NoError(t, w.InsertPaymentEvent(context.Background(), row(1)))
	assert.Equal(t, 3, ins.attempts())
	assert.Equal(t, []string{"payment_events", "payment_events", "payment_events"}, ins.tables)
	assert.Zero(t, w.buffered())
}

func TestInsertGivesUpAfterMaxAttempts(t *testing.T) {
	w, ins := testWriter(t, 1, unavailable, unavailable, unavailable, unavailable)

	assert.Error(t, w.InsertPaymentEvent(context.Background(), row(1)))
	assert.Equal(t, 3, ins.attempts())
	assert.Equal(t, 1, w.buffered(), "rows stay buffered for the next flush")
}

func TestPermanentFailureIsNotRetried(t *testing.T) {
	w, ins := testWriter(t, 10, badRequest)

	require.NoError(t, w.InsertPaymentEvent(context.Background(), row(1)))
	require.NoError(t, w.InsertPaymentEvent(context.Background(), row(2)))
	assert.Error(t, w.Flush(context.Background()))
	assert.Equal(t, 1, ins.attempts())
	assert.Equal(t, 2, w.buffered())

	require.NoError(t, w.Flush(context.Background()))
	assert.Equal(t, []int{2, 2}, ins.rows)
	assert.Zero(t, w.buffered())
}

func TestBatchFlushesWhenFull(t *testing.T) {
	w, ins := testWriter(t, 3)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		require.NoError(t, w.InsertPaymentEvent(ctx, row(i)))
	}
	assert.Zero(t, ins.attempts())
	require.NoError(t, w.InsertPaymentEvent(ctx, row(3)))
	assert.Equal(t, []int{3}, ins.rows)
	require.NoError(t, w.Flush(ctx), "empty flush is a no-op")
	assert.Equal(t, 1, ins.attempts())
}

func TestRequeueKeepsNewestRows(t *testing.T) {
	w, _ := testWriter(t, 1)
	old := make([]types.PaymentEventRow, maxBuffered)
	for i := range old {
		old[i] = row(i)
	}
	w.buffer = []types.PaymentEventRow{row(-1)}
	w.requeue(old)

	assert.Equal(t, maxBuffered, w.buffered())
	assert.Equal(t, "-1", w.buffer[len(w.buffer)-1].EventID, "rows buffered after the failure survive")
}

func TestConcurrentInsertsLoseNothing(t *testing.T) {
	w, ins := testWriter(t, 7)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, w.InsertPaymentEvent(context.Background(), row(i)))
		}(i)
	}
	wg.Wait()
	require.NoError(t, w.Flush(context.Background()))

	total := 0
	for _, n := range ins.rows {
		total += n
	}
	assert.Equal(t, 50, total)
}

func TestInsertHonorsCanceledContext(t *testing.T) {
	w, ins := testWriter(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, w.InsertPaymentEvent(ctx, row(1)), context.Canceled)
	assert.Zero(t, ins.attempts())
}

func TestRetryClassification(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":                  {nil, false},
		"http 503":             {unavailable, true},
		"http 429":             {&googleapi.Error{Code: http.StatusTooManyRequests}, true},
		"http 400":             {badRequest, false},
		"grpc unavailable":     {status.Error(codes.Unavailable, "later"), true},
		"grpc invalid":         {status.Error(codes.InvalidArgument, "bad"), false},
		"all transient":        {cbigquery.MultiError{unavailable, unavailable}, true},
		"mixed":                {cbigquery.MultiError{unavailable, badRequest}, false},
		"empty multi":          {cbigquery.MultiError{}, false},
		"row errors transient": {cbigquery.PutMultiError{{Errors: cbigquery.MultiError{unavailable}}}, true},
		"plain error":          {errors.New("boom"), false},
	}
	for name, tc := range cases {
		assert.Equal(t, tc.want, isRetryableBigQueryError(tc.err), name)
	}
}

func TestEncodeJSON(t *testing.T) {
	nj, err := EncodeJSON(map[string]any{"gateway": "stripe"})
	require.NoError(t, err)
	assert.True(t, nj.Valid)
	assert.JSONEq(t, `{"gateway":"stripe"}`, nj.JSONVal)

	nj, err = EncodeJSON(nil)
	require.NoError(t, err)
	assert.False(t, nj.Valid)

	nj, err = EncodeJSON(json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, nj.JSONVal)

	nj, err = EncodeJSON([]byte{})
	require.NoError(t, err)
	assert.False(t, nj.Valid)

	_, err = EncodeJSON(make(chan int))
	assert.Error(t, err)
}
