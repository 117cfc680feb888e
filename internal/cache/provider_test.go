package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNoopProviderAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	var p Provider = NoopProvider{}

	if err := p.Set(ctx, "key", []byte("value"), time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := p.Get(ctx, "key"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
	if err := p.Del(ctx, "key"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
