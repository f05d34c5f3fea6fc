package upkeep

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"IntentWise-Chain/internal/intent"
)

func newDueIntent(id string, next int64) *intent.Intent {
	return &intent.Intent{
		ID:            id,
		UserID:        "user-1",
		WalletAddress: "0x1111111111111111111111111111111111111111",
		Title:         "stake plan",
		Action:        intent.ActionStake,
		Token:         "USDC",
		Amount:        decimal.NewNullDecimal(decimal.NewFromInt(100)),
		Frequency:     intent.FrequencyDaily,
		NextExecution: next,
		IsActive:      true,
	}
}

func TestSchedulerPollPublishesDueIntents(t *testing.T) {
	ctx := context.Background()
	store := intent.NewMemoryStore()
	queue := NewMemoryQueue(16)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := store.CreateIntent(ctx, newDueIntent("due-1", base.Add(-time.Hour).Unix())); err != nil {
		t.Fatalf("创建意图失败: %v", err)
	}
	if err := store.CreateIntent(ctx, newDueIntent("due-2", base.Unix())); err != nil {
		t.Fatalf("创建意图失败: %v", err)
	}
	if err := store.CreateIntent(ctx, newDueIntent("later", base.Add(time.Hour).Unix())); err != nil {
		t.Fatalf("创建意图失败: %v", err)
	}
	paused := newDueIntent("paused", base.Add(-time.Hour).Unix())
	paused.IsActive = false
	if err := store.CreateIntent(ctx, paused); err != nil {
		t.Fatalf("创建意图失败: %v", err)
	}

	sched := NewScheduler(store, queue, withClock(func() time.Time { return base }))
	if err := sched.Poll(ctx); err != nil {
		t.Fatalf("巡检失败: %v", err)
	}

	got := drain(t, queue, 2)
	if !got["due-1"] || !got["due-2"] {
		t.Fatalf("到期意图未全部投递: %v", got)
	}
	if queue.Depth() != 0 {
		t.Fatalf("不应投递未到期或停用的意图，剩余 %d", queue.Depth())
	}
}

func TestSchedulerPollIncludesConditionBased(t *testing.T) {
	ctx := context.Background()
	store := intent.NewMemoryStore()
	queue := NewMemoryQueue(16)

	it := newDueIntent("cond-1", 0)
	it.Frequency = intent.FrequencyConditionBased
	it.Condition = intent.Condition{
		Type:       intent.ConditionGas,
		Threshold:  decimal.NewFromInt(20),
		Comparison: "<",
	}
	if err := store.CreateIntent(ctx, it); err != nil {
		t.Fatalf("创建意图失败: %v", err)
	}

	sched := NewScheduler(store, queue)
	if err := sched.Poll(ctx); err != nil {
		t.Fatalf("巡检失败: %v", err)
	}
	got := drain(t, queue, 1)
	if !got["cond-1"] {
		t.Fatalf("条件驱动意图应始终参与巡检: %v", got)
	}
}

func drain(t *testing.T, q *MemoryQueue, want int) map[string]bool {
	t.Helper()
	got := make(map[string]bool, want)
	for i := 0; i < want; i++ {
		select {
		case id := <-q.ch:
			got[id] = true
		case <-time.After(time.Second):
			t.Fatalf("队列中只有 %d 条消息, 期望 %d", len(got), want)
		}
	}
	return got
}
