package worker

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aridsondez/sqs-lite-mem/internal/api"
	"github.com/aridsondez/sqs-lite-mem/internal/metrics"
	"github.com/aridsondez/sqs-lite-mem/internal/queue/store/memory"
)

type fixture struct {
	store *memory.Store
	url   string
}

func newFixture(t *testing.T, queues ...string) *fixture {
	t.Helper()
	st := memory.New(
		memory.WithClock(clockwork.NewFakeClock()),
		memory.WithRefreshInterval(24*time.Hour),
	)
	t.Cleanup(st.Close)
	for _, q := range queues {
		require.NoError(t, st.CreateQueue(context.Background(), q, nil))
	}
	srv := httptest.NewServer(api.NewHandler(st))
	t.Cleanup(srv.Close)
	return &fixture{store: st, url: srv.URL}
}

func (f *fixture) push(t *testing.T, queue, body string) {
	t.Helper()
	_, err := f.store.Push(context.Background(), queue, body)
	require.NoError(t, err)
}

func runWorker(t *testing.T, w *Worker) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("worker did not stop")
		}
	})
	return cancel
}

func TestRunWithoutHandlers(t *testing.T) {
	w := New(Config{BaseURL: "http://127.0.0.1:0"})
	assert.Error(t, w.Run(context.Background()))
}

func TestSuccessfulMessagesAreDeleted(t *testing.T) {
	f := newFixture(t, "orders")
	for _, body := range []string{"a", "b", "c"} {
		f.push(t, "orders", body)
	}

	var seen atomic.Int64
	w := New(Config{BaseURL: f.url, PollDelay: 10 * time.Millisecond})
	w.Handle("orders", func(ctx context.Context, msg *Message) error {
		assert.Equal(t, "orders", msg.Queue)
		seen.Add(1)
		return nil
	})
	runWorker(t, w)

	require.Eventually(t, func() bool { return seen.Load() == 3 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.MessagesDeleted.WithLabelValues("orders")) == 3
	}, 5*time.Second, 10*time.Millisecond)

	n, err := f.store.GetApproximateNumberOfMessages(context.Background(), "orders")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFailedAndPanickingMessagesStayInFlight(t *testing.T) {
	f := newFixture(t, "emails")
	f.push(t, "emails", "fail")
	f.push(t, "emails", "panic")

	var calls atomic.Int64
	w := New(Config{BaseURL: f.url, PollDelay: 10 * time.Millisecond})
	w.Handle("emails", func(ctx context.Context, msg *Message) error {
		calls.Add(1)
		if msg.Body == "panic" {
			panic("handler blew up")
		}
		return errors.New("smtp unavailable")
	})
	runWorker(t, w)

	require.Eventually(t, func() bool { return calls.Load() == 2 }, 5*time.Second, 10*time.Millisecond)
	// both receipts are still outstanding; the visibility sweep will return them
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.MessagesPulled.WithLabelValues("emails")))
	assert.Zero(t, testutil.ToFloat64(metrics.MessagesDeleted.WithLabelValues("emails")))
}

func TestHandlerBudgetFollowsQueueVisibilityTimeout(t *testing.T) {
	f := newFixture(t, "notifications", "reports")
	ctx := context.Background()
	require.NoError(t, f.store.SetQueueAttributes(ctx, "notifications", map[string]string{"VisibilityTimeout": "2"}))
	require.NoError(t, f.store.SetQueueAttributes(ctx, "reports", map[string]string{"VisibilityTimeout": "0"}))
	f.push(t, "notifications", "ping")
	f.push(t, "reports", "monthly")

	remaining := make(chan time.Duration, 1)
	unbounded := make(chan bool, 1)
	w := New(Config{BaseURL: f.url, PollDelay: 10 * time.Millisecond, Visibility: time.Minute})
	w.Handle("notifications", func(ctx context.Context, msg *Message) error {
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		select {
		case remaining <- time.Until(deadline):
		default:
		}
		return nil
	})
	w.Handle("reports", func(ctx context.Context, msg *Message) error {
		_, ok := ctx.Deadline()
		select {
		case unbounded <- !ok:
		default:
		}
		return nil
	})
	runWorker(t, w)

	select {
	case d := <-remaining:
		assert.LessOrEqual(t, d, 1800*time.Millisecond)
		assert.Greater(t, d, time.Duration(0))
	case <-time.After(5 * time.Second):
		t.Fatal("notifications handler not called")
	}
	select {
	case ok := <-unbounded:
		assert.True(t, ok, "zero visibility timeout leaves the handler without a deadline")
	case <-time.After(5 * time.Second):
		t.Fatal("reports handler not called")
	}
}

func TestHandlerBudgetFallsBackToConfig(t *testing.T) {
	w := New(Config{BaseURL: "http://127.0.0.1:0", Visibility: 10 * time.Second})
	budget := w.handlerBudget(context.Background(), "orders", w.log)
	assert.Equal(t, 9*time.Second, budget)
}
