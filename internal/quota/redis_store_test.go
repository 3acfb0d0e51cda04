package quota

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T, daily int) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), daily)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	store, s := setupTestRedis(t, 3)
	defer s.Close()
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url", 3); err == nil {
		t.Error("expected error for bad url, got nil")
	}
}

func TestRemainingDefault(t *testing.T) {
	store, s := setupTestRedis(t, 3)
	defer s.Close()
	defer store.Close()

	got, err := store.Remaining(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
}

func TestDecrementFloorsAtZero(t *testing.T) {
	store, s := setupTestRedis(t, 2)
	defer s.Close()
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.Decrement(ctx, "alice"); err != nil {
			t.Fatalf("Decrement %d failed: %v", i, err)
		}
	}
	got, err := store.Remaining(ctx, "alice")
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if got != 0 {
		t.Errorf("expected 0, got %d", got)
	}

	// Other users are independent
	bob, _ := store.Remaining(ctx, "bob")
	if bob != 2 {
		t.Errorf("expected bob to have 2, got %d", bob)
	}
}

func TestResetIfExpired(t *testing.T) {
	store, s := setupTestRedis(t, 2)
	defer s.Close()
	defer store.Close()
	ctx := context.Background()

	day1 := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return day1 }

	store.Decrement(ctx, "alice")
	if got, _ := store.Remaining(ctx, "alice"); got != 1 {
		t.Fatalf("expected 1 after decrement, got %d", got)
	}

	resetAt, err := store.ResetAt(ctx, "alice")
	if err != nil {
		t.Fatalf("ResetAt failed: %v", err)
	}
	if want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC); !resetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", resetAt, want)
	}

	// Still the same day
	if err := store.ResetIfExpired(ctx, "alice"); err != nil {
		t.Fatalf("ResetIfExpired failed: %v", err)
	}
	if got, _ := store.Remaining(ctx, "alice"); got != 1 {
		t.Errorf("expected no reset before midnight, got %d", got)
	}

	store.now = func() time.Time { return day1.Add(3 * time.Hour) }
	if err := store.ResetIfExpired(ctx, "alice"); err != nil {
		t.Fatalf("ResetIfExpired failed: %v", err)
	}
	if got, _ := store.Remaining(ctx, "alice"); got != 2 {
		t.Errorf("expected full allowance after midnight, got %d", got)
	}
}

func TestResetIfExpiredUnknownUser(t *testing.T) {
	store, s := setupTestRedis(t, 2)
	defer s.Close()
	defer store.Close()
	ctx := context.Background()

	if err := store.ResetIfExpired(ctx, "nobody"); err != nil {
		t.Fatalf("ResetIfExpired failed: %v", err)
	}
	if s.Exists("quota:nobody") {
		t.Error("reset should not create a counter")
	}
}

func TestRedisUnavailable(t *testing.T) {
	store, s := setupTestRedis(t, 2)
	defer store.Close()
	s.Close()

	if _, err := store.Remaining(context.Background(), "alice"); err == nil {
		t.Error("expected error with redis down, got nil")
	}
	if err := store.Decrement(context.Background(), "alice"); err == nil {
		t.Error("expected decrement error with redis down, got nil")
	}
}
