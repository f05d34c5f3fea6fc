package intent

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	xerrors "IntentWise-Chain/internal/errors"
)

// Action 表示意图对应的链上操作类型。
type Action string

const (
	ActionStake  Action = "STAKE"
	ActionSend   Action = "SEND"
	ActionRemind Action = "REMIND"
	ActionSwap   Action = "SWAP"
)

// Frequency 表示意图的执行频率。一次性意图使用 FrequencyOnce。
type Frequency string

const (
	FrequencyOnce           Frequency = "ONCE"
	FrequencyDaily          Frequency = "DAILY"
	FrequencyWeekly         Frequency = "WEEKLY"
	FrequencyMonthly        Frequency = "MONTHLY"
	FrequencyConditionBased Frequency = "CONDITION_BASED"
)

// Period 返回频率对应的重复周期。非周期性频率返回 0。
func (f Frequency) Period() time.Duration {
	switch f {
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	case FrequencyMonthly:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// Recurring 判断频率是否为周期性执行。
func (f Frequency) Recurring() bool {
	return f.Period() > 0
}

// Intent 描述了一条持久化的钱包自动化指令。
type Intent struct {
	ID            string              `json:"id"`
	UserID        string              `json:"user_id"`
	WalletAddress string              `json:"wallet_address"`
	Title         string              `json:"title"`
	Description   string              `json:"description"`
	Action        Action              `json:"action"`
	Token         string              `json:"token"`
	Amount        decimal.NullDecimal `json:"amount"`
	Frequency     Frequency           `json:"frequency"`
	Condition     Condition           `json:"condition"`
	TargetChain   string              `json:"target_chain"`
	IsActive      bool                `json:"is_active"`
	Executed      bool                `json:"executed"`
	NextExecution int64               `json:"next_execution,omitempty"`
	LastExecution int64               `json:"last_execution,omitempty"`
	CreatedAt     int64               `json:"created_at"`
	UpdatedAt     int64               `json:"updated_at"`
}

// ParsedIntent 是解析器从自然语言中提取出的结构化意图提案。
// Task 与 Token 一定有值，其余字段按识别情况填充。
type ParsedIntent struct {
	Task      Action              `json:"task"`
	Token     string              `json:"token"`
	Amount    decimal.NullDecimal `json:"amount"`
	Frequency Frequency           `json:"frequency"`
	Day       string              `json:"day,omitempty"`
	Receiver  string              `json:"receiver,omitempty"`
	Condition Condition           `json:"condition"`
}

// ExecutionStatus 表示一次执行尝试的结果状态。
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "SUCCESS"
	ExecutionFailed  ExecutionStatus = "FAILED"
	ExecutionPending ExecutionStatus = "PENDING"
)

// SettlementMode 区分真实链上结算与确定性模拟结算。
// 下游逻辑必须根据该字段判断交易哈希是否权威，不得依赖哈希形状。
type SettlementMode string

const (
	ModeOnChain   SettlementMode = "onchain"
	ModeSimulated SettlementMode = "simulated"
)

// ExecutionRecord 是一次执行尝试的只追加审计记录。
type ExecutionRecord struct {
	ID         string          `json:"id"`
	IntentID   string          `json:"intent_id"`
	Status     ExecutionStatus `json:"status"`
	Result     string          `json:"result"`
	GasUsed    string          `json:"gas_used,omitempty"`
	TxHash     string          `json:"tx_hash,omitempty"`
	Mode       SettlementMode  `json:"mode"`
	ExecutedAt int64           `json:"executed_at"`
}

// ReceiptAttribute 是凭证上的一条属性。
type ReceiptAttribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// Receipt 是一次成功执行后铸造的凭证记录。
type Receipt struct {
	TokenID     string             `json:"token_id"`
	IntentID    string             `json:"intent_id"`
	RecordID    string             `json:"record_id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Image       string             `json:"image"`
	Attributes  []ReceiptAttribute `json:"attributes"`
	CreatedAt   int64              `json:"created_at"`
}

// ChatMessage 是自然语言会话中的一轮消息。
type ChatMessage struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	Message       string        `json:"message"`
	IsAgent       bool          `json:"is_agent"`
	AgentResponse *ParsedIntent `json:"agent_response,omitempty"`
	CreatedAt     int64         `json:"created_at"`
}

var (
	// ErrIntentNotFound 表示指定的意图不存在。
	ErrIntentNotFound = xerrors.New(CodeIntentNotFound, "intent not found")
	// ErrIntentConflict 表示意图 ID 冲突。
	ErrIntentConflict = xerrors.New(CodeIntentConflict, "intent conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrIntentInactive 表示意图已被用户停用。
	ErrIntentInactive = xerrors.New(CodeIntentInactive, "intent is inactive", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrAlreadyExecuted 表示一次性意图已经完成，不接受再次执行。
	ErrAlreadyExecuted = xerrors.New(CodeIntentAlreadyExecuted, "intent already executed", xerrors.WithSeverity(xerrors.SeverityInfo))
)

const (
	CodeIntentNotFound        xerrors.Code = "INTENT_NOT_FOUND"
	CodeIntentConflict        xerrors.Code = "INTENT_CONFLICT"
	CodeIntentInactive        xerrors.Code = "INTENT_INACTIVE"
	CodeIntentAlreadyExecuted xerrors.Code = "INTENT_ALREADY_EXECUTED"
	CodeIntentValidation      xerrors.Code = "INTENT_VALIDATION_FAILED"
	CodeIntentPublish         xerrors.Code = "INTENT_PUBLISH_FAILED"
)

func init() {
	xerrors.Register(CodeIntentNotFound, xerrors.Attributes{
		Message:   "intent not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeIntentConflict, xerrors.Attributes{
		Message:   "intent conflict",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeIntentInactive, xerrors.Attributes{
		Message:   "intent is inactive",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeIntentAlreadyExecuted, xerrors.Attributes{
		Message:   "intent already executed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeIntentValidation, xerrors.Attributes{
		Message:   "intent validation failed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeIntentPublish, xerrors.Attributes{
		Message:   "failed to publish intent for execution",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
}

// KnownTokens 是解析与校验共用的代币白名单。
var KnownTokens = []string{"USDC", "DAI", "ETH", "CHZ", "MATIC", "LINK"}

// IsKnownToken 判断代币符号是否在白名单内。
func IsKnownToken(symbol string) bool {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, known := range KnownTokens {
		if symbol == known {
			return true
		}
	}
	return false
}

// IsValidAction 检查给定的操作类型是否为支持的枚举值。
func IsValidAction(action Action) bool {
	switch action {
	case ActionStake, ActionSend, ActionRemind, ActionSwap:
		return true
	default:
		return false
	}
}

// IsValidFrequency 检查给定的频率是否为支持的枚举值。
func IsValidFrequency(freq Frequency) bool {
	switch freq {
	case FrequencyOnce, FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyConditionBased:
		return true
	default:
		return false
	}
}

// Validate 校验意图在写入存储前必须满足的不变量。
func (i *Intent) Validate() error {
	if i == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "intent 不能为空")
	}
	if !IsValidAction(i.Action) {
		return xerrors.New(CodeIntentValidation, "未知的操作类型: "+string(i.Action))
	}
	if !IsKnownToken(i.Token) {
		return xerrors.New(CodeIntentValidation, "代币不在白名单内: "+i.Token)
	}
	if i.Frequency == "" {
		i.Frequency = FrequencyOnce
	}
	if !IsValidFrequency(i.Frequency) {
		return xerrors.New(CodeIntentValidation, "未知的执行频率: "+string(i.Frequency))
	}
	if i.Frequency == FrequencyConditionBased && i.Condition.Type == ConditionNone {
		return xerrors.New(CodeIntentValidation, "条件驱动的意图必须附带条件")
	}
	if i.Amount.Valid && i.Amount.Decimal.IsNegative() {
		return xerrors.New(CodeIntentValidation, "金额不能为负数")
	}
	if err := i.Condition.Validate(); err != nil {
		return err
	}
	return nil
}

func (i *Intent) clone() *Intent {
	if i == nil {
		return nil
	}
	clone := *i
	if i.Condition.Type != ConditionNone {
		clone.Condition = i.Condition
	}
	return &clone
}

func cloneParsed(p *ParsedIntent) *ParsedIntent {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
