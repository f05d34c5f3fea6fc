// Package chat 实现自然语言会话：解析用户消息并给出结构化的意图提案。
// 会话只负责"提议"，真正创建意图由调用方在用户确认后显式完成。
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "IntentWise-Chain/internal/errors"
	"IntentWise-Chain/internal/intent"
	"IntentWise-Chain/internal/observability/metrics"
	"IntentWise-Chain/internal/parser"
)

const (
	CodeChatPersist xerrors.Code = "CHAT_PERSIST_FAILED"
)

func init() {
	xerrors.Register(CodeChatPersist, xerrors.Attributes{
		Message:   "failed to persist chat message",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
}

// clarificationReply 在解析失败时返回，提示用户换一种说法。
const clarificationReply = "I couldn't work out a concrete plan from that. " +
	"Try something like \"Stake 100 USDC weekly when gas is below 20 gwei\" — " +
	"tell me the action, the token and the amount."

// Session 管理单个用户的会话回合。
type Session struct {
	store intent.Store
}

// NewSession 构造会话管理器。
func NewSession(store intent.Store) *Session {
	return &Session{store: store}
}

// HandleMessage 处理一条用户消息：原样保存用户回合，解析并校验后
// 保存携带结构化提案的 agent 回合。解析失败不是错误，返回澄清回复。
func (s *Session) HandleMessage(ctx context.Context, userID, text string) (*intent.ChatMessage, error) {
	if s == nil || s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "会话未初始化")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "用户 ID 不能为空")
	}
	if strings.TrimSpace(text) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "消息不能为空")
	}

	now := time.Now().Unix()
	userTurn := &intent.ChatMessage{
		ID:        uuid.NewString(),
		UserID:    userID,
		Message:   text,
		IsAgent:   false,
		CreatedAt: now,
	}
	if err := s.store.CreateMessage(ctx, userTurn); err != nil {
		return nil, xerrors.Wrap(CodeChatPersist, err, "保存用户回合失败")
	}

	agentTurn := &intent.ChatMessage{
		ID:        uuid.NewString(),
		UserID:    userID,
		IsAgent:   true,
		CreatedAt: now,
	}
	parsed := parser.Parse(text)
	if parsed != nil && parser.Validate(parsed) {
		agentTurn.Message = confirmation(parsed)
		agentTurn.AgentResponse = parsed
		metrics.ChatTurns.WithLabelValues("proposed").Inc()
	} else {
		agentTurn.Message = clarificationReply
		metrics.ChatTurns.WithLabelValues("clarify").Inc()
	}
	if err := s.store.CreateMessage(ctx, agentTurn); err != nil {
		return nil, xerrors.Wrap(CodeChatPersist, err, "保存 agent 回合失败")
	}
	return agentTurn, nil
}

// History 返回用户最近的会话记录，按时间正序。
func (s *Session) History(ctx context.Context, userID string, limit int) ([]*intent.ChatMessage, error) {
	if s == nil || s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "会话未初始化")
	}
	return s.store.ListMessages(ctx, userID, limit)
}

// confirmation 把结构化提案还原成一句人类可读的确认文本，
// 覆盖提案里每一个有值的字段。
func confirmation(p *intent.ParsedIntent) string {
	var b strings.Builder
	b.WriteString("Here's the plan I understood: ")
	b.WriteString(strings.ToLower(string(p.Task)))
	if p.Amount.Valid {
		b.WriteString(" ")
		b.WriteString(p.Amount.Decimal.String())
	}
	b.WriteString(" ")
	b.WriteString(p.Token)
	if p.Receiver != "" {
		b.WriteString(" to ")
		b.WriteString(p.Receiver)
	}
	switch p.Frequency {
	case intent.FrequencyOnce:
		b.WriteString(", one time only")
	case intent.FrequencyDaily:
		b.WriteString(", repeating daily")
	case intent.FrequencyWeekly:
		b.WriteString(", repeating weekly")
	case intent.FrequencyMonthly:
		b.WriteString(", repeating monthly")
	case intent.FrequencyConditionBased:
		b.WriteString(", triggered by condition")
	}
	if p.Day != "" {
		b.WriteString(" on ")
		b.WriteString(p.Day)
	}
	if p.Condition.Type != intent.ConditionNone {
		b.WriteString(", when ")
		b.WriteString(p.Condition.Describe())
	}
	b.WriteString(". Confirm to create it.")
	return b.String()
}
