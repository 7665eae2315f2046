package telemetry_test

import (
	"context"
	"testing"

	"github.com/auctionbay/settlement/internal/telemetry"
)

func TestNewNopProvider(t *testing.T) {
	p := telemetry.NewNopProvider()
	if p.TracerProvider == nil || p.MeterProvider == nil || p.LoggerProvider == nil {
		t.Fatal("nop provider has nil providers")
	}
	if p.Logger == nil {
		t.Fatal("nop provider has nil logger")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error: %v", err)
	}
}

func TestLogWithTrace_NoSpan(t *testing.T) {
	p := telemetry.NewNopProvider()
	logger := telemetry.LogWithTrace(context.Background(), p.Logger)
	if logger != p.Logger {
		t.Error("expected the original logger when the context carries no span")
	}
}
