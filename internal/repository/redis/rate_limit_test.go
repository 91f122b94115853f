package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestRateLimitRepository_SlidingWindow(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "biometric:rl", TTL: 2 * time.Minute})

	ctx := context.Background()
	window := time.Minute
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := repo.RecordAttempt(ctx, "verify:identity-1", base.Add(time.Duration(i)*10*time.Second)); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}
	// same instant twice must count twice
	if err := repo.RecordAttempt(ctx, "verify:identity-1", base.Add(20*time.Second)); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}

	reference := base.Add(30 * time.Second)
	count, err := repo.CountAttempts(ctx, "verify:identity-1", window, reference)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 attempts, got %d", count)
	}

	oldest, ok, err := repo.OldestAttempt(ctx, "verify:identity-1", window, reference)
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if !ok || !oldest.Equal(base) {
		t.Fatalf("expected oldest %v, got %v (ok=%v)", base, oldest, ok)
	}

	later := base.Add(65 * time.Second)
	if err := repo.TrimWindow(ctx, "verify:identity-1", window, later); err != nil {
		t.Fatalf("TrimWindow returned error: %v", err)
	}
	count, err = repo.CountAttempts(ctx, "verify:identity-1", window, later)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 attempts after trimming, got %d", count)
	}

	if ttl := server.TTL("biometric:rl:verify:identity-1"); ttl <= 0 {
		t.Fatalf("expected ttl to be set, got %v", ttl)
	}
}

func TestRateLimitRepository_RejectsNonPositiveWindow(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{})

	if _, err := repo.CountAttempts(context.Background(), "id", 0, time.Now()); err == nil {
		t.Fatal("expected error for zero window")
	}
}
