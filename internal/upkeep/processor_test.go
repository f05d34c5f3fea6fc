package upkeep

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	xerrors "IntentWise-Chain/internal/errors"
	"IntentWise-Chain/internal/executor"
	"IntentWise-Chain/internal/intent"
)

type fakeRunner struct {
	processed atomic.Int32
	latency   time.Duration
	fail      error
}

func (f *fakeRunner) Execute(ctx context.Context, intentID string) (executor.Outcome, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return executor.Outcome{}, ctx.Err()
		}
	}
	if f.fail != nil {
		return executor.Outcome{}, f.fail
	}
	f.processed.Add(1)
	return executor.Outcome{
		Executed: true,
		Record: &intent.ExecutionRecord{
			ID:       "rec-" + intentID,
			IntentID: intentID,
			Status:   intent.ExecutionSuccess,
			TxHash:   "sim-abc",
			Mode:     intent.ModeSimulated,
		},
	}, nil
}

func TestProcessorHandlesConcurrentIntents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	queue := NewMemoryQueue(1024)
	runner := &fakeRunner{latency: 5 * time.Millisecond}
	processor := NewProcessor(runner, queue, WithWorkerCount(8))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	total := 200
	for i := 0; i < total; i++ {
		if err := queue.Publish(ctx, fmt.Sprintf("intent-%d", i)); err != nil {
			t.Fatalf("投递意图失败: %v", err)
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
			t.Fatalf("意图未能及时处理，已完成 %d", runner.processed.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestProcessorSkipsExpectedRaces(t *testing.T) {
	ctx := context.Background()
	for _, cause := range []error{
		intent.ErrIntentNotFound,
		intent.ErrIntentInactive,
		intent.ErrAlreadyExecuted,
		executor.ErrExecutionInFlight,
	} {
		runner := &fakeRunner{fail: cause}
		processor := NewProcessor(runner, NewMemoryQueue(1))
		if err := processor.handle(ctx, "intent-1"); err != nil {
			t.Fatalf("竞态错误 %v 应被静默跳过, got %v", cause, err)
		}
	}
}

func TestProcessorRequeuesRetryableFailures(t *testing.T) {
	ctx := context.Background()

	retryable := xerrors.New(executor.CodeSettlementFailure, "settlement failed")
	processor := NewProcessor(&fakeRunner{fail: retryable}, NewMemoryQueue(1))
	if err := processor.handle(ctx, "intent-1"); err == nil {
		t.Fatal("可重试错误应交还队列重投")
	}

	hard := xerrors.New(executor.CodeInsufficientFunds, "insufficient escrow balance")
	processor = NewProcessor(&fakeRunner{fail: hard}, NewMemoryQueue(1))
	if err := processor.handle(ctx, "intent-1"); err != nil {
		t.Fatalf("硬失败不应重投: %v", err)
	}
}

func TestProcessorIgnoresBlockedOutcome(t *testing.T) {
	blockedRunner := &blockedFake{}
	processor := NewProcessor(blockedRunner, NewMemoryQueue(1))
	if err := processor.handle(context.Background(), "intent-1"); err != nil {
		t.Fatalf("条件未满足不应视为错误: %v", err)
	}
}

type blockedFake struct{}

func (b *blockedFake) Execute(ctx context.Context, intentID string) (executor.Outcome, error) {
	return executor.Outcome{Executed: false}, nil
}
