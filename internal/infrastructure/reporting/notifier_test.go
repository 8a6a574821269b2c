package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/slickpay/epayrobot/internal/domain/transaction"
	"github.com/slickpay/epayrobot/internal/infrastructure/config"
	"github.com/slickpay/epayrobot/internal/infrastructure/observability"
	infraRedis "github.com/slickpay/epayrobot/internal/infrastructure/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var receipt = transaction.Receipt{
	Operation:   "OP-1",
	Transaction: "TX-2",
	Auth:        "AUTH",
	Invoice:     "F-2026-0042",
	Amount:      "1250.00",
	EBB:         "EBB",
	Date:        "17/10/2026",
	File:        "http://127.0.0.1:3000/invoices/4711.pdf",
}

func newNotifier(t *testing.T, baseURL string, dlq DeadLetter) *Notifier {
	t.Helper()
	return NewNotifier(config.ReportingConfig{
		BaseURL:     baseURL + "/",
		Timeout:     time.Second,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
	}, dlq, observability.NewMetrics("test", prometheus.NewRegistry()), zerolog.Nop())
}

type failingDLQ struct{}

func (failingDLQ) PublishToDLQ(ctx context.Context, invoiceID, reason string, payload []byte) error {
	return errors.New("redis down")
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNotifier_Notify(t *testing.T) {
	var got transaction.Receipt
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/puppeteer/meta/4711", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := newNotifier(t, srv.URL, nil).Notify(context.Background(), "4711", receipt)
	require.NoError(t, err)
	assert.Equal(t, receipt, got)
}

func TestNotifier_EmptyInvoiceIDIsRejected(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	err := newNotifier(t, srv.URL, nil).Notify(context.Background(), " ", receipt)
	assert.Error(t, err)
	assert.Zero(t, hits.Load())
}

func TestNotifier_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, newNotifier(t, srv.URL, nil).Notify(context.Background(), "4711", receipt))
	assert.Equal(t, int32(3), hits.Load())
}

func TestNotifier_ClientErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	err := newNotifier(t, srv.URL, nil).Notify(context.Background(), "4711", receipt)
	assert.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestNotifier_ParksOnDLQ(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newRedis(t)
	err := newNotifier(t, srv.URL, infraRedis.NewStreamProducer(client)).Notify(context.Background(), "4711", receipt)
	require.NoError(t, err)

	entries, err := client.XRange(context.Background(), infraRedis.ReportDLQStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "4711", entries[0].Values["invoice_id"])
}

func TestNotifier_DLQFailureIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := newNotifier(t, srv.URL, failingDLQ{}).Notify(context.Background(), "4711", receipt)
	assert.ErrorContains(t, err, "redis down")
}

func TestNotifier_ReplayDLQ(t *testing.T) {
	var accepted atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/puppeteer/meta/bad" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		accepted.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newRedis(t)
	ctx := context.Background()
	producer := infraRedis.NewStreamProducer(client)
	require.NoError(t, producer.PublishToDLQ(ctx, "4711", "timeout", []byte(`{"invoice":"4711"}`)))
	require.NoError(t, producer.PublishToDLQ(ctx, "bad", "timeout", []byte(`{"invoice":"bad"}`)))

	consumer := infraRedis.NewStreamConsumer(client, infraRedis.ReportDLQStream, infraRedis.ReplayGroup, "test", 10, 10*time.Millisecond)
	require.NoError(t, consumer.CreateGroup(ctx))

	delivered, err := newNotifier(t, srv.URL, nil).ReplayDLQ(ctx, consumer)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, int32(1), accepted.Load())

	pending, err := client.XPending(ctx, infraRedis.ReportDLQStream, infraRedis.ReplayGroup).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}
