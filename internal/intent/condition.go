package intent

import (
	"fmt"

	"github.com/shopspring/decimal"

	xerrors "IntentWise-Chain/internal/errors"
)

// ConditionType 标记条件的种类，供求值器穷举匹配。
type ConditionType string

const (
	// ConditionNone 表示没有附加条件。
	ConditionNone ConditionType = ""
	// ConditionGas 表示 gas 价格条件，阈值单位为 gwei。
	ConditionGas ConditionType = "gas"
	// ConditionBalance 表示托管余额条件。
	ConditionBalance ConditionType = "balance"
	// ConditionPrice 表示资产现价条件，阈值单位为美元。
	ConditionPrice ConditionType = "price"
)

// Comparison 表示条件的比较方向。
type Comparison string

const (
	ComparisonBelow Comparison = "<"
	ComparisonAbove Comparison = ">"
)

// Condition 是附加在意图上的结构化谓词。每条意图至多一个条件，
// 不支持 AND/OR 组合。零值表示无条件。
type Condition struct {
	Type       ConditionType   `json:"type,omitempty"`
	Threshold  decimal.Decimal `json:"threshold,omitempty"`
	Comparison Comparison      `json:"comparison,omitempty"`
	// Asset 仅对价格条件有意义，标识被比价的资产符号。
	Asset string `json:"asset,omitempty"`
}

// Validate 校验条件字段的组合是否合法。
func (c Condition) Validate() error {
	switch c.Type {
	case ConditionNone:
		return nil
	case ConditionGas, ConditionBalance, ConditionPrice:
		if c.Comparison != ComparisonBelow && c.Comparison != ComparisonAbove {
			return xerrors.New(CodeIntentValidation, fmt.Sprintf("未知的比较方向: %q", c.Comparison))
		}
		if c.Threshold.IsNegative() {
			return xerrors.New(CodeIntentValidation, "条件阈值不能为负数")
		}
		return nil
	default:
		return xerrors.New(CodeIntentValidation, fmt.Sprintf("未知的条件类型: %q", c.Type))
	}
}

// Holds 以给定的实时值求值该条件。调用方负责保证 Type 不为 None。
func (c Condition) Holds(current decimal.Decimal) bool {
	switch c.Comparison {
	case ComparisonBelow:
		return current.LessThan(c.Threshold)
	case ComparisonAbove:
		return current.GreaterThan(c.Threshold)
	default:
		return false
	}
}

// Describe 生成人类可读的条件描述，用于确认消息与阻塞原因。
func (c Condition) Describe() string {
	switch c.Type {
	case ConditionGas:
		return fmt.Sprintf("gas %s %s gwei", c.Comparison, c.Threshold.String())
	case ConditionBalance:
		return fmt.Sprintf("balance %s %s", c.Comparison, c.Threshold.String())
	case ConditionPrice:
		asset := c.Asset
		if asset == "" {
			asset = "asset"
		}
		return fmt.Sprintf("%s price %s $%s", asset, c.Comparison, c.Threshold.String())
	default:
		return "no condition"
	}
}
