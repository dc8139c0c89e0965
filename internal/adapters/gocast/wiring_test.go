package gocast

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConnectHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	// TEST-NET-3 address: the dial blocks, so only cancellation can
	// return here promptly.
	_, err := Factory{}.Connect(ctx, "203.0.113.1", 8009)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Connect blocked %v past cancellation", elapsed)
	}
}
