package bottles

import (
	"context"
	"testing"
	"time"

	"github.com/stake-plus/bottlebot/src/shared/models"
)

func TestNewSweeperValidation(t *testing.T) {
	s := openTestStore(t)
	tests := []struct {
		name    string
		maxAge  time.Duration
		cron    string
		wantErr bool
	}{
		{"defaults", time.Hour, "", false},
		{"hourly", time.Hour, "0 * * * *", false},
		{"bad cron", time.Hour, "every now and then", true},
		{"zero age", 0, "*/5 * * * *", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSweeper(s, tt.maxAge, tt.cron, nil, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSweeper err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSweeperRunOnceExpiresStaleBottles(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.May, 10, 8, 0, 0, 0, time.UTC)

	store.now = func() time.Time { return now.Add(-10 * 24 * time.Hour) }
	stale := submit(t, store, models.GuildOrigin("g-a", "c-a"), "stale")
	store.now = func() time.Time { return now.Add(-time.Hour) }
	fresh := submit(t, store, models.GuildOrigin("g-a", "c-a"), "fresh")
	store.now = func() time.Time { return now }

	sw, err := NewSweeper(store, 7*24*time.Hour, "*/15 * * * *", nil, nil)
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	sw.now = func() time.Time { return now }

	n, err := sw.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}

	got, _ := store.Get(ctx, stale.ID)
	if got.Status != models.BottleExpired {
		t.Fatalf("stale status = %q, want expired", got.Status)
	}
	got, _ = store.Get(ctx, fresh.ID)
	if got.Status != models.BottlePending {
		t.Fatalf("fresh status = %q, want pending", got.Status)
	}

	n, err = sw.RunOnce(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second RunOnce = %d, %v; want 0, nil", n, err)
	}
}

func TestSweeperStartStop(t *testing.T) {
	sw, err := NewSweeper(openTestStore(t), time.Hour, "0 0 1 1 *", nil, nil)
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	ctx := context.Background()
	if err := sw.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sw.Start(ctx); err == nil {
		t.Fatal("second Start should fail")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	sw.Stop(stopCtx)
	if stopCtx.Err() != nil {
		t.Fatal("Stop did not return before the timeout")
	}
	sw.Stop(stopCtx)
}
