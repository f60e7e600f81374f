package job

import (
	"context"
	"testing"
	"time"

	"AI-Agency/internal/crew"
)

func TestJanitorSweepRemovesExpiredTerminalJobs(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Job{ID: "old", Crew: "marketing", Status: StatusQueued, MaxRetries: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &Job{ID: "fresh", Crew: "marketing", Status: StatusQueued, MaxRetries: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Claim(ctx, "old"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkDone(ctx, "old", crew.Result{Workflow: "marketing", Output: "ok"}); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	if _, err := store.Claim(ctx, "fresh"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkDone(ctx, "fresh", crew.Result{Workflow: "marketing", Output: "ok"}); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	// old 的更新时间被拨回到保留期之外。
	store.mu.Lock()
	store.jobs["old"].UpdatedAt = time.Now().Add(-2 * time.Hour).Unix()
	store.mu.Unlock()

	janitor, err := NewJanitor(store, time.Hour, time.Minute)
	if err != nil {
		t.Fatalf("new janitor: %v", err)
	}
	janitor.sweepOnce(ctx)

	if _, err := store.Get(ctx, "old"); !IsNotFound(err) {
		t.Fatalf("expected expired job to be removed, got %v", err)
	}
	if _, err := store.Get(ctx, "fresh"); err != nil {
		t.Fatalf("fresh job must survive: %v", err)
	}
}

func TestJanitorDefaults(t *testing.T) {
	janitor, err := NewJanitor(NewMemoryStore(), 0, 0)
	if err != nil {
		t.Fatalf("new janitor: %v", err)
	}
	if janitor.ttl != time.Hour || janitor.interval != 5*time.Minute {
		t.Fatalf("unexpected defaults: ttl=%v interval=%v", janitor.ttl, janitor.interval)
	}
}
