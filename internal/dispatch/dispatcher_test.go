package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/auctionbay/settlement/internal/clock"
	"github.com/auctionbay/settlement/internal/config"
	"github.com/auctionbay/settlement/internal/dispatch"
	"github.com/auctionbay/settlement/internal/event"
	"github.com/auctionbay/settlement/internal/store"
	"github.com/auctionbay/settlement/internal/store/memory"
)

type fakeSink struct {
	batches [][]event.Event
	err     error
}

func (s *fakeSink) Send(_ context.Context, events []event.Event) error {
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, events)
	return nil
}

func testDispatchConfig() config.DispatchConfig {
	return config.DispatchConfig{
		Enabled:   true,
		Interval:  time.Second,
		BatchSize: 10,
	}
}

func newOutbox(t *testing.T, events ...event.Event) *memory.Store {
	t.Helper()
	st := memory.New(clock.NewMock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)))
	err := st.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.AppendEvents(ctx, events...)
	})
	if err != nil {
		t.Fatalf("seeding outbox: %v", err)
	}
	return st
}

func makeEvent(id, aggregate string) event.Event {
	return event.Event{
		ID:          id,
		AggregateID: aggregate,
		Type:        event.BidAccepted,
		Data:        json.RawMessage(`{}`),
		CreatedAt:   time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestDispatcher_DispatchOnce(t *testing.T) {
	st := newOutbox(t, makeEvent("e1", "auction-1"), makeEvent("e2", "auction-1"))
	sink := &fakeSink{}
	d := dispatch.New(st, sink, testDispatchConfig(), slog.Default(), noop.NewTracerProvider())

	n, err := d.DispatchOnce(context.Background())
	if err != nil {
		t.Fatalf("DispatchOnce: %v", err)
	}
	if n != 2 {
		t.Errorf("dispatched %d events, want 2", n)
	}
	if len(sink.batches) != 1 || len(sink.batches[0]) != 2 {
		t.Fatalf("sink received %v, want one batch of 2", sink.batches)
	}

	// A second pass finds nothing left.
	n, err = d.DispatchOnce(context.Background())
	if err != nil {
		t.Fatalf("second DispatchOnce: %v", err)
	}
	if n != 0 {
		t.Errorf("second pass dispatched %d events, want 0", n)
	}
}

func TestDispatcher_SinkFailureLeavesEventsPending(t *testing.T) {
	st := newOutbox(t, makeEvent("e1", "auction-1"))
	sink := &fakeSink{err: errors.New("webhook down")}
	d := dispatch.New(st, sink, testDispatchConfig(), slog.Default(), noop.NewTracerProvider())

	if _, err := d.DispatchOnce(context.Background()); err == nil {
		t.Fatal("expected error from failing sink")
	}

	// Events stay undispatched for the next attempt.
	pending, err := st.LoadUndispatched(context.Background(), 10)
	if err != nil {
		t.Fatalf("LoadUndispatched: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("got %d pending events, want 1", len(pending))
	}
}

func TestDispatcher_RespectsBatchSize(t *testing.T) {
	st := newOutbox(t,
		makeEvent("e1", "auction-1"),
		makeEvent("e2", "auction-1"),
		makeEvent("e3", "auction-1"),
	)
	cfg := testDispatchConfig()
	cfg.BatchSize = 2
	sink := &fakeSink{}
	d := dispatch.New(st, sink, cfg, slog.Default(), noop.NewTracerProvider())

	n, err := d.DispatchOnce(context.Background())
	if err != nil {
		t.Fatalf("DispatchOnce: %v", err)
	}
	if n != 2 {
		t.Errorf("first batch dispatched %d, want 2", n)
	}
	n, err = d.DispatchOnce(context.Background())
	if err != nil {
		t.Fatalf("second DispatchOnce: %v", err)
	}
	if n != 1 {
		t.Errorf("second batch dispatched %d, want 1", n)
	}
}

func TestWebhookSink_Send(t *testing.T) {
	var received []event.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := dispatch.NewWebhookSink(srv.URL)
	err := sink.Send(context.Background(), []event.Event{makeEvent("e1", "auction-1")})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(received) != 1 || received[0].ID != "e1" {
		t.Errorf("server received %v, want event e1", received)
	}
}

func TestWebhookSink_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := dispatch.NewWebhookSink(srv.URL)
	err := sink.Send(context.Background(), []event.Event{makeEvent("e1", "auction-1")})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}
