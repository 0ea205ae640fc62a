package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/db"
)

func TestPreferenceCache_MissReturnsNil(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewPreferenceCache(client, 0, zap.NewNop())

	p, err := cache.Get(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected miss, got %+v", p)
	}
}

func TestPreferenceCache_SetGetInvalidate(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewPreferenceCache(client, time.Minute, zap.NewNop())
	ctx := context.Background()

	start, end := "22:00", "07:00"
	want := &db.UserPreference{
		UserID:          uuid.New(),
		PushEnabled:     true,
		EmailEnabled:    false,
		InAppEnabled:    true,
		QuietHoursStart: &start,
		QuietHoursEnd:   &end,
		Timezone:        "Europe/Berlin",
	}
	if err := cache.Set(ctx, want); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, err := cache.Get(ctx, want.UserID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected cached preferences")
	}
	if got.UserID != want.UserID {
		t.Errorf("expected user %s, got %s", want.UserID, got.UserID)
	}
	if !got.PushEnabled || got.EmailEnabled {
		t.Errorf("channel flags not preserved: push=%v email=%v", got.PushEnabled, got.EmailEnabled)
	}
	if got.QuietHoursStart == nil || *got.QuietHoursStart != "22:00" {
		t.Errorf("unexpected quiet hours start: %v", got.QuietHoursStart)
	}
	if got.Timezone != "Europe/Berlin" {
		t.Errorf("expected timezone Europe/Berlin, got %q", got.Timezone)
	}

	if err := cache.Invalidate(ctx, want.UserID); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	got, err = cache.Get(ctx, want.UserID)
	if err != nil {
		t.Fatalf("get after invalidate failed: %v", err)
	}
	if got != nil {
		t.Fatal("expected miss after invalidate")
	}
}

func TestPreferenceCache_EntriesExpire(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewPreferenceCache(client, time.Minute, zap.NewNop())
	ctx := context.Background()

	p := &db.UserPreference{UserID: uuid.New(), Timezone: "UTC"}
	if err := cache.Set(ctx, p); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	got, err := cache.Get(ctx, p.UserID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatal("entry should have expired")
	}
}

func TestPreferenceCache_CorruptEntryIsMiss(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewPreferenceCache(client, time.Minute, zap.NewNop())

	userID := uuid.New()
	if err := mr.Set(preferenceKey(userID), "{not json"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	got, err := cache.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatal("corrupt entry should read as a miss")
	}
	if mr.Exists(preferenceKey(userID)) {
		t.Error("corrupt entry should be dropped")
	}
}

func TestConfig_URLTakesPrecedence(t *testing.T) {
	opts, err := Config{URL: "redis://:secret@cache:6380/3", Host: "ignored", Port: 1}.options()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.Password != "secret" || opts.DB != 3 {
		t.Fatalf("unexpected options: addr=%s db=%d", opts.Addr, opts.DB)
	}

	opts, err = Config{Host: "localhost", Port: 6379}.options()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6379" {
		t.Errorf("expected localhost:6379, got %s", opts.Addr)
	}
}
