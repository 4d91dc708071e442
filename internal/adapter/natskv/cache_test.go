package natskv

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/satorinet/neuronfeed/internal/adapter/nats"
	"github.com/satorinet/neuronfeed/internal/config"
	"github.com/satorinet/neuronfeed/internal/port/cache/cachetest"
)

func TestKVKey(t *testing.T) {
	if got := kvKey("overview:m1"); got != "overview.m1" {
		t.Fatalf("got %q", got)
	}
}

func TestCompliance(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}
	ctx := context.Background()
	q, err := nats.Connect(ctx, config.NATS{URL: url, Stream: "NEURON_TEST"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })

	kv, err := q.KeyValue(ctx, "test-overviews", time.Minute)
	if err != nil {
		t.Fatalf("KeyValue: %v", err)
	}
	cachetest.Run(t, New(kv))
}
