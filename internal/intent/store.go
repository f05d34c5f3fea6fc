package intent

import "context"

// Patch 描述对意图的部分更新。nil 字段保持原值。
type Patch struct {
	Title       *string
	Description *string
	IsActive    *bool
	Frequency   *Frequency
	Condition   *Condition
	TargetChain *string
}

// applyTo 把非 nil 字段写入目标意图。调用方应在副本上套用并校验通过后
// 再落库，保证被拒绝的更新不会留下部分状态。
func (p Patch) applyTo(it *Intent) {
	if p.Title != nil {
		it.Title = *p.Title
	}
	if p.Description != nil {
		it.Description = *p.Description
	}
	if p.IsActive != nil {
		it.IsActive = *p.IsActive
	}
	if p.Frequency != nil {
		it.Frequency = *p.Frequency
	}
	if p.Condition != nil {
		it.Condition = *p.Condition
	}
	if p.TargetChain != nil {
		it.TargetChain = *p.TargetChain
	}
}

// Advance 描述执行编排器在一次成功结算后对意图的推进。
type Advance struct {
	LastExecution int64
	NextExecution int64
	Executed      bool
}

// Store 抽象了意图及其附属实体的持久化接口。
// 实现必须保证并发安全；ExecutionRecord 与 Receipt 为只追加数据。
type Store interface {
	CreateIntent(ctx context.Context, it *Intent) error
	GetIntent(ctx context.Context, id string) (*Intent, error)
	ListIntents(ctx context.Context, opts ListOptions) ([]*Intent, error)
	UpdateIntent(ctx context.Context, id string, patch Patch) (*Intent, error)
	// AdvanceIntent 在单个临界区内更新执行时间戳与终态标记。
	AdvanceIntent(ctx context.Context, id string, adv Advance) (*Intent, error)
	DeleteIntent(ctx context.Context, id string) error

	AppendRecord(ctx context.Context, record *ExecutionRecord) error
	ListRecords(ctx context.Context, intentID string) ([]*ExecutionRecord, error)

	CreateReceipt(ctx context.Context, receipt *Receipt) error
	ListReceipts(ctx context.Context, userID string) ([]*Receipt, error)

	CreateMessage(ctx context.Context, msg *ChatMessage) error
	ListMessages(ctx context.Context, userID string, limit int) ([]*ChatMessage, error)

	Stats(ctx context.Context, userID string) (DashboardStats, error)
	Close() error
}
