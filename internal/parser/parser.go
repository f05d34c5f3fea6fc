// Package parser 将自然语言消息解析为结构化的意图提案。
// 解析完全基于规则，相同输入必然产生相同输出，不依赖任何外部服务。
package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"IntentWise-Chain/internal/intent"
)

var (
	tokenPattern    = regexp.MustCompile(`(?i)\b(usdc|dai|eth|chz|matic|link)\b`)
	amountPattern   = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(usdc|dai|eth|chz|matic|link)\b`)
	dollarPattern   = regexp.MustCompile(`(?i)\$\s*(\d+(?:\.\d+)?)\s*(?:worth|of)`)
	receiverPattern = regexp.MustCompile(`\b0x[0-9a-fA-F]{40}\b`)
	weekdayPattern  = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	everyPattern    = regexp.MustCompile(`(?i)\bevery\s+(day|week|month|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)

	gasPattern     = regexp.MustCompile(`(?i)\bgas\b[^.]*?(?:below|under|<)\s*(\d+(?:\.\d+)?)\s*gwei`)
	balancePattern = regexp.MustCompile(`(?i)\bbalance\b[^.]*?(?:above|over|>)\s*\$?(\d+(?:\.\d+)?)`)
	pricePattern   = regexp.MustCompile(`(?i)(?:price|below|under|<)[^.]*?\$\s*(\d+(?:\.\d+)?)`)
)

// Parse 从自由文本中提取结构化意图。无法建立最低置信度时返回 nil：
// 消息里既没有任务关键词，也没有代币信号。仅有金额不够——
// 金额只有配合任务或代币才有意义，否则 SEND/USDC 的默认值会被凭空落实。
// 解析永不因畸形输入报错，最坏情况就是返回 nil。
func Parse(text string) *intent.ParsedIntent {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	task, taskFound := classifyTask(lower)
	token, tokenFound := extractToken(text)

	if !taskFound && !tokenFound {
		return nil
	}
	amount, _ := extractAmount(text)

	parsed := &intent.ParsedIntent{
		Task:      task,
		Token:     token,
		Amount:    amount,
		Condition: extractCondition(text, token),
	}

	if m := receiverPattern.FindString(text); m != "" {
		parsed.Receiver = m
	}
	if m := weekdayPattern.FindString(lower); m != "" {
		parsed.Day = m
	}
	parsed.Frequency = extractFrequency(lower, parsed.Condition)
	return parsed
}

// Validate 判断提案是否可以直接落为意图：任务与代币都必须是已知枚举。
// 这只是语法门槛，不做任何可行性检查。
func Validate(parsed *intent.ParsedIntent) bool {
	if parsed == nil {
		return false
	}
	return intent.IsValidAction(parsed.Task) && intent.IsKnownToken(parsed.Token)
}

func classifyTask(lower string) (intent.Action, bool) {
	switch {
	case strings.Contains(lower, "stake"):
		return intent.ActionStake, true
	case strings.Contains(lower, "swap"), strings.Contains(lower, "exchange"),
		strings.Contains(lower, "buy"), strings.Contains(lower, "dca"):
		return intent.ActionSwap, true
	case strings.Contains(lower, "remind"), strings.Contains(lower, "alert"),
		strings.Contains(lower, "notify"):
		return intent.ActionRemind, true
	case strings.Contains(lower, "send"), strings.Contains(lower, "transfer"):
		return intent.ActionSend, true
	default:
		// 没有任务关键词时默认按转账处理，是否成立由调用方的信号判断兜底。
		return intent.ActionSend, false
	}
}

func extractToken(text string) (string, bool) {
	if m := tokenPattern.FindString(text); m != "" {
		return strings.ToUpper(m), true
	}
	return "USDC", false
}

func extractAmount(text string) (decimal.NullDecimal, bool) {
	// 优先匹配紧贴代币符号的数字，其次匹配 "$50 worth of" 这类美元额。
	if m := amountPattern.FindStringSubmatch(text); m != nil {
		if value, err := decimal.NewFromString(m[1]); err == nil {
			return decimal.NewNullDecimal(value), true
		}
	}
	if m := dollarPattern.FindStringSubmatch(text); m != nil {
		if value, err := decimal.NewFromString(m[1]); err == nil {
			return decimal.NewNullDecimal(value), true
		}
	}
	return decimal.NullDecimal{}, false
}

// extractCondition 最多提取一个条件，gas 优先于 balance，balance 优先于价格。
func extractCondition(text, token string) intent.Condition {
	if m := gasPattern.FindStringSubmatch(text); m != nil {
		if threshold, err := decimal.NewFromString(m[1]); err == nil {
			return intent.Condition{
				Type:       intent.ConditionGas,
				Threshold:  threshold,
				Comparison: intent.ComparisonBelow,
			}
		}
	}
	if m := balancePattern.FindStringSubmatch(text); m != nil {
		if threshold, err := decimal.NewFromString(m[1]); err == nil {
			return intent.Condition{
				Type:       intent.ConditionBalance,
				Threshold:  threshold,
				Comparison: intent.ComparisonAbove,
			}
		}
	}
	if m := pricePattern.FindStringSubmatch(text); m != nil {
		if threshold, err := decimal.NewFromString(m[1]); err == nil {
			return intent.Condition{
				Type:       intent.ConditionPrice,
				Threshold:  threshold,
				Comparison: intent.ComparisonBelow,
				Asset:      token,
			}
		}
	}
	return intent.Condition{}
}

func extractFrequency(lower string, cond intent.Condition) intent.Frequency {
	switch {
	case strings.Contains(lower, "daily"):
		return intent.FrequencyDaily
	case strings.Contains(lower, "weekly"):
		return intent.FrequencyWeekly
	case strings.Contains(lower, "monthly"):
		return intent.FrequencyMonthly
	}
	if m := everyPattern.FindStringSubmatch(lower); m != nil {
		switch m[1] {
		case "day":
			return intent.FrequencyDaily
		case "month":
			return intent.FrequencyMonthly
		default:
			// "every week" 与 "every <weekday>" 都归一化为每周。
			return intent.FrequencyWeekly
		}
	}
	if cond.Type != intent.ConditionNone {
		return intent.FrequencyConditionBased
	}
	return intent.FrequencyOnce
}
