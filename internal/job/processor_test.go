package job

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"AI-Agency/internal/crew"
	xerrors "AI-Agency/internal/errors"
	"AI-Agency/internal/llm"
)

type fakeRunner struct {
	processed atomic.Int32
	latency   time.Duration
	fail      func(crewName string) error
}

func (f *fakeRunner) Run(ctx context.Context, crewName string, input map[string]any, _ *llm.Meta) (*crew.Result, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail != nil {
		if err := f.fail(crewName); err != nil {
			return nil, err
		}
	}
	f.processed.Add(1)
	return &crew.Result{Workflow: crewName, Provider: "deepseek", Model: "deepseek-chat", Output: "ok"}, nil
}

func TestProcessorHandlesConcurrentJobs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	runner := &fakeRunner{latency: 10 * time.Millisecond}

	service := NewService(store, queue, 3)
	processor := NewProcessor(runner, store, queue, queue, WithWorkerCount(8))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	total := 200
	for i := 0; i < total; i++ {
		req := SubmitRequest{Crew: "marketing", Input: map[string]any{"topic": fmt.Sprintf("topic-%d", i)}}
		if _, err := service.Submit(ctx, req); err != nil {
			t.Fatalf("提交作业失败: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		if int(runner.processed.Load()) >= total {
			cancel()
			break
		}
		select {
		case <-deadline:
			t.Fatalf("作业未能及时处理，已完成 %d", runner.processed.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestProcessorRetriesRetryableFailures(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)

	var calls atomic.Int32
	runner := &fakeRunner{fail: func(string) error {
		if calls.Add(1) == 1 {
			return xerrors.New(xerrors.CodeExecution, "transient provider failure")
		}
		return nil
	}}

	service := NewService(store, queue, 3)
	processor := NewProcessor(runner, store, queue, queue, WithWorkerCount(1))

	go func() { _ = processor.Start(ctx) }()

	submitted, err := service.Submit(ctx, SubmitRequest{Crew: "support", Input: map[string]any{"issue": "login"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final, err := service.WaitUntilCompleted(ctx, submitted.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if final.Status != StatusDone {
		t.Fatalf("expected job to succeed after retry, got %+v", final)
	}
	if final.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", final.Attempts)
	}
}

func TestProcessorStopsRetryingNonRetryableFailures(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)

	runner := &fakeRunner{fail: func(string) error {
		return xerrors.New(xerrors.CodeValidation, "missing required input")
	}}

	service := NewService(store, queue, 3)
	processor := NewProcessor(runner, store, queue, queue, WithWorkerCount(1))

	go func() { _ = processor.Start(ctx) }()

	submitted, err := service.Submit(ctx, SubmitRequest{Crew: "marketing", Input: map[string]any{}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final, err := service.WaitUntilCompleted(ctx, submitted.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if final.Status != StatusFailed {
		t.Fatalf("expected failed job, got %+v", final)
	}
	if final.Attempts != 1 {
		t.Fatalf("non-retryable failure must not be retried, attempts=%d", final.Attempts)
	}
	if final.ErrorCode != string(xerrors.CodeValidation) {
		t.Fatalf("unexpected error code: %s", final.ErrorCode)
	}
}

type failingProducer struct {
	MemoryQueue
}

func (f *failingProducer) Publish(context.Context, string) error {
	return errors.New("broker unavailable")
}

func TestServiceSubmitMarksJobFailedOnPublishError(t *testing.T) {
	store := NewMemoryStore()
	service := NewService(store, &failingProducer{}, 3)

	_, err := service.Submit(context.Background(), SubmitRequest{Crew: "analysis", Input: map[string]any{"data_description": "x"}})
	if xerrors.CodeOf(err) != CodeJobPublish {
		t.Fatalf("expected publish failure, got %v", err)
	}

	jobs, listErr := store.List(context.Background(), ListOptions{})
	if listErr != nil {
		t.Fatalf("list: %v", listErr)
	}
	if len(jobs) != 1 || jobs[0].Status != StatusFailed {
		t.Fatalf("expected the job to be marked failed, got %+v", jobs)
	}
}
