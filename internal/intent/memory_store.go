package intent

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	xerrors "IntentWise-Chain/internal/errors"
)

// MemoryStore 以内存方式保存意图状态。引擎的默认存储驱动，
// 也是测试使用的驱动。
type MemoryStore struct {
	mu       sync.RWMutex
	intents  map[string]*Intent
	records  map[string][]*ExecutionRecord
	receipts map[string][]*Receipt
	messages map[string][]*ChatMessage
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		intents:  make(map[string]*Intent),
		records:  make(map[string][]*ExecutionRecord),
		receipts: make(map[string][]*Receipt),
		messages: make(map[string][]*ChatMessage),
	}
}

// CreateIntent 实现 Store 接口。
func (m *MemoryStore) CreateIntent(_ context.Context, it *Intent) error {
	if it == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "intent 不能为空")
	}
	if it.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "意图 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.intents[it.ID]; ok {
		return ErrIntentConflict
	}
	now := time.Now().Unix()
	if it.CreatedAt == 0 {
		it.CreatedAt = now
	}
	it.UpdatedAt = now
	m.intents[it.ID] = it.clone()
	return nil
}

// GetIntent 返回意图。
func (m *MemoryStore) GetIntent(_ context.Context, id string) (*Intent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.intents[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	return it.clone(), nil
}

// ListIntents 返回符合过滤条件的意图。
func (m *MemoryStore) ListIntents(_ context.Context, opts ListOptions) ([]*Intent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	results := make([]*Intent, 0, len(m.intents))
	for _, it := range m.intents {
		if !matchesListFilters(it, opts) {
			continue
		}
		results = append(results, it.clone())
	}

	sort.Slice(results, func(i, j int) bool {
		if opts.Order == SortByUpdatedAsc {
			if results[i].UpdatedAt == results[j].UpdatedAt {
				return results[i].ID < results[j].ID
			}
			return results[i].UpdatedAt < results[j].UpdatedAt
		}
		if results[i].UpdatedAt == results[j].UpdatedAt {
			return results[i].ID < results[j].ID
		}
		return results[i].UpdatedAt > results[j].UpdatedAt
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(results) {
			return nil, nil
		}
		results = results[opts.Offset:]
	}
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// UpdateIntent 应用部分更新并返回更新后的意图。更新先在副本上套用并
// 校验，校验失败时存储中的意图保持原状。
func (m *MemoryStore) UpdateIntent(_ context.Context, id string, patch Patch) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.intents[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	updated := it.clone()
	patch.applyTo(updated)
	updated.UpdatedAt = time.Now().Unix()
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	m.intents[id] = updated
	return updated.clone(), nil
}

// AdvanceIntent 在一个临界区内推进执行时间戳与终态标记。
// LastExecution 只会单调前进，重放旧的推进是无操作。
func (m *MemoryStore) AdvanceIntent(_ context.Context, id string, adv Advance) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.intents[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	if adv.LastExecution > it.LastExecution {
		it.LastExecution = adv.LastExecution
	}
	it.NextExecution = adv.NextExecution
	if adv.Executed {
		it.Executed = true
	}
	it.UpdatedAt = time.Now().Unix()
	return it.clone(), nil
}

// DeleteIntent 删除意图及其从属的执行记录。
func (m *MemoryStore) DeleteIntent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.intents[id]; !ok {
		return ErrIntentNotFound
	}
	delete(m.intents, id)
	delete(m.records, id)
	return nil
}

// AppendRecord 追加一条执行记录。记录一经写入不可变更。
func (m *MemoryStore) AppendRecord(_ context.Context, record *ExecutionRecord) error {
	if record == nil || record.ID == "" || record.IntentID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "执行记录缺少必填字段")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *record
	if clone.ExecutedAt == 0 {
		clone.ExecutedAt = time.Now().Unix()
	}
	m.records[record.IntentID] = append(m.records[record.IntentID], &clone)
	return nil
}

// ListRecords 返回某个意图按执行时间排列的全部记录。
func (m *MemoryStore) ListRecords(_ context.Context, intentID string) ([]*ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := m.records[intentID]
	results := make([]*ExecutionRecord, 0, len(records))
	for _, record := range records {
		clone := *record
		results = append(results, &clone)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].ExecutedAt == results[j].ExecutedAt {
			return results[i].ID < results[j].ID
		}
		return results[i].ExecutedAt < results[j].ExecutedAt
	})
	return results, nil
}

// CreateReceipt 保存一条凭证记录。
func (m *MemoryStore) CreateReceipt(_ context.Context, receipt *Receipt) error {
	if receipt == nil || receipt.TokenID == "" || receipt.IntentID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "凭证缺少必填字段")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	owner := ""
	if it, ok := m.intents[receipt.IntentID]; ok {
		owner = it.UserID
	}
	clone := *receipt
	clone.Attributes = append([]ReceiptAttribute(nil), receipt.Attributes...)
	if clone.CreatedAt == 0 {
		clone.CreatedAt = time.Now().Unix()
	}
	m.receipts[owner] = append(m.receipts[owner], &clone)
	return nil
}

// ListReceipts 返回用户名下的凭证。
func (m *MemoryStore) ListReceipts(_ context.Context, userID string) ([]*Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	receipts := m.receipts[userID]
	results := make([]*Receipt, 0, len(receipts))
	for _, receipt := range receipts {
		clone := *receipt
		clone.Attributes = append([]ReceiptAttribute(nil), receipt.Attributes...)
		results = append(results, &clone)
	}
	return results, nil
}

// CreateMessage 保存一轮会话消息。
func (m *MemoryStore) CreateMessage(_ context.Context, msg *ChatMessage) error {
	if msg == nil || msg.ID == "" || msg.UserID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "会话消息缺少必填字段")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *msg
	clone.AgentResponse = cloneParsed(msg.AgentResponse)
	if clone.CreatedAt == 0 {
		clone.CreatedAt = time.Now().Unix()
	}
	m.messages[msg.UserID] = append(m.messages[msg.UserID], &clone)
	return nil
}

// ListMessages 返回用户会话中最近 limit 条消息，按创建时间升序。
func (m *MemoryStore) ListMessages(_ context.Context, userID string, limit int) ([]*ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	messages := m.messages[userID]
	results := make([]*ChatMessage, 0, len(messages))
	for _, msg := range messages {
		clone := *msg
		clone.AgentResponse = cloneParsed(msg.AgentResponse)
		results = append(results, &clone)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt == results[j].CreatedAt {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt < results[j].CreatedAt
	})
	if limit > 0 && len(results) > limit {
		results = results[len(results)-limit:]
	}
	return results, nil
}

// Stats 统计某个用户的仪表盘指标。
func (m *MemoryStore) Stats(_ context.Context, userID string) (DashboardStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := DashboardStats{TotalValue: decimal.Zero}
	dayStart := time.Now().Truncate(24 * time.Hour).Unix()

	for _, it := range m.intents {
		if userID != "" && it.UserID != userID {
			continue
		}
		stats.TotalIntents++
		if it.IsActive && !it.Executed {
			stats.ActivePlans++
			if it.Amount.Valid {
				stats.TotalValue = stats.TotalValue.Add(it.Amount.Decimal)
			}
		}
		for _, record := range m.records[it.ID] {
			stats.TotalRecords++
			if record.Status == ExecutionSuccess && record.ExecutedAt >= dayStart {
				stats.ExecutedToday++
			}
		}
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func matchesListFilters(it *Intent, opts ListOptions) bool {
	if opts.UserID != "" && it.UserID != opts.UserID {
		return false
	}
	if opts.Active != nil && it.IsActive != *opts.Active {
		return false
	}
	if len(opts.Actions) > 0 {
		matched := false
		for _, action := range opts.Actions {
			if it.Action == action {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if !opts.IncludeExecuted && opts.DueBefore > 0 && it.Executed {
		return false
	}
	if opts.DueBefore > 0 {
		if !it.IsActive {
			return false
		}
		// 条件驱动的意图没有排期，每轮巡检都视为到期。
		if it.NextExecution > opts.DueBefore && it.Frequency != FrequencyConditionBased {
			return false
		}
	}
	return true
}

// ensure interface compliance at compile time
var _ Store = (*MemoryStore)(nil)
