// Package dispatch forwards outbox events to the notification subsystem.
// Delivery is at-least-once: an event is marked dispatched only after the
// sink accepted it, so a crash between send and mark replays the event.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/auctionbay/settlement/internal/config"
	"github.com/auctionbay/settlement/internal/event"
)

// Sink receives a batch of events bound for the notification subsystem.
type Sink interface {
	Send(ctx context.Context, events []event.Event) error
}

// WebhookSink posts event batches as JSON to a fixed URL.
type WebhookSink struct {
	URL    string
	Client *http.Client
}

// NewWebhookSink returns a WebhookSink with a bounded request timeout.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the batch and fails on any non-2xx response.
func (s *WebhookSink) Send(ctx context.Context, events []event.Event) error {
	body, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encoding events: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Dispatcher polls the outbox and forwards undispatched events.
type Dispatcher struct {
	events    event.Store
	sink      Sink
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New creates a Dispatcher.
func New(events event.Store, sink Sink, cfg config.DispatchConfig, logger *slog.Logger, tp trace.TracerProvider) *Dispatcher {
	return &Dispatcher{
		events:    events,
		sink:      sink,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		logger:    logger,
		tracer:    tp.Tracer("github.com/auctionbay/settlement/internal/dispatch"),
	}
}

// Run polls until ctx is done. Intended to run on a single replica; the
// caller gates it behind leader election when running more than one.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.InfoContext(ctx, "outbox dispatcher started",
		slog.Duration("interval", d.interval),
		slog.Int("batch_size", d.batchSize),
	)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
			if n, err := d.DispatchOnce(ctx); err != nil {
				d.logger.ErrorContext(ctx, "dispatch failed", slog.Any("error", err))
			} else if n > 0 {
				d.logger.InfoContext(ctx, "dispatched events", slog.Int("count", n))
			}
		}
	}
}

// DispatchOnce forwards one batch of undispatched events and returns how
// many were delivered.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	ctx, span := d.tracer.Start(ctx, "Dispatcher.DispatchOnce")
	defer span.End()

	events, err := d.events.LoadUndispatched(ctx, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("loading undispatched events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}
	span.SetAttributes(attribute.Int("events.count", len(events)))

	if err := d.sink.Send(ctx, events); err != nil {
		return 0, fmt.Errorf("sending events: %w", err)
	}

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	if err := d.events.MarkDispatched(ctx, ids...); err != nil {
		return 0, fmt.Errorf("marking events dispatched: %w", err)
	}
	return len(events), nil
}
