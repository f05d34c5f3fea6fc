package parser

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"IntentWise-Chain/internal/intent"
)

func TestParseStakeWithGasCondition(t *testing.T) {
	parsed := Parse("Stake 100 USDC weekly when gas < 20 gwei")
	if parsed == nil {
		t.Fatal("expected a parse result")
	}
	if parsed.Task != intent.ActionStake {
		t.Fatalf("expected STAKE, got %s", parsed.Task)
	}
	if parsed.Token != "USDC" {
		t.Fatalf("expected USDC, got %s", parsed.Token)
	}
	if !parsed.Amount.Valid || !parsed.Amount.Decimal.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected amount 100, got %+v", parsed.Amount)
	}
	if parsed.Frequency != intent.FrequencyWeekly {
		t.Fatalf("expected WEEKLY, got %s", parsed.Frequency)
	}
	if parsed.Condition.Type != intent.ConditionGas {
		t.Fatalf("expected gas condition, got %q", parsed.Condition.Type)
	}
	if !parsed.Condition.Threshold.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected threshold 20, got %s", parsed.Condition.Threshold)
	}
	if parsed.Condition.Comparison != intent.ComparisonBelow {
		t.Fatalf("expected < comparison, got %q", parsed.Condition.Comparison)
	}
	if !Validate(parsed) {
		t.Fatal("expected parse to validate")
	}
}

func TestParseDCAIntent(t *testing.T) {
	parsed := Parse("Buy $50 worth of ETH weekly when price < $2500")
	if parsed == nil {
		t.Fatal("expected a parse result")
	}
	if parsed.Task != intent.ActionSwap {
		t.Fatalf("expected SWAP, got %s", parsed.Task)
	}
	if parsed.Token != "ETH" {
		t.Fatalf("expected ETH, got %s", parsed.Token)
	}
	if !parsed.Amount.Valid || !parsed.Amount.Decimal.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected amount 50, got %+v", parsed.Amount)
	}
	if parsed.Condition.Type != intent.ConditionPrice {
		t.Fatalf("expected price condition, got %q", parsed.Condition.Type)
	}
	if !parsed.Condition.Threshold.Equal(decimal.NewFromInt(2500)) {
		t.Fatalf("expected threshold 2500, got %s", parsed.Condition.Threshold)
	}
	if parsed.Condition.Asset != "ETH" {
		t.Fatalf("expected condition asset ETH, got %q", parsed.Condition.Asset)
	}
}

func TestParseTransferWithReceiver(t *testing.T) {
	parsed := Parse("Send 25.5 DAI to 0x1234567890abcdef1234567890abcdef12345678 every friday")
	if parsed == nil {
		t.Fatal("expected a parse result")
	}
	if parsed.Task != intent.ActionSend {
		t.Fatalf("expected SEND, got %s", parsed.Task)
	}
	if !parsed.Amount.Valid || !parsed.Amount.Decimal.Equal(decimal.RequireFromString("25.5")) {
		t.Fatalf("expected amount 25.5, got %+v", parsed.Amount)
	}
	if parsed.Receiver != "0x1234567890abcdef1234567890abcdef12345678" {
		t.Fatalf("unexpected receiver %q", parsed.Receiver)
	}
	if parsed.Day != "friday" {
		t.Fatalf("expected day friday, got %q", parsed.Day)
	}
	if parsed.Frequency != intent.FrequencyWeekly {
		t.Fatalf("every <weekday> must normalize to WEEKLY, got %s", parsed.Frequency)
	}
}

func TestParseFrequencyNormalization(t *testing.T) {
	cases := []struct {
		text string
		want intent.Frequency
	}{
		{"stake 10 USDC every day", intent.FrequencyDaily},
		{"stake 10 USDC every week", intent.FrequencyWeekly},
		{"stake 10 USDC every month", intent.FrequencyMonthly},
		{"stake 10 USDC daily", intent.FrequencyDaily},
		{"stake 10 USDC monthly", intent.FrequencyMonthly},
		{"stake 10 USDC", intent.FrequencyOnce},
	}
	for _, tc := range cases {
		parsed := Parse(tc.text)
		if parsed == nil {
			t.Fatalf("%q: expected a parse result", tc.text)
		}
		if parsed.Frequency != tc.want {
			t.Errorf("%q: expected %s, got %s", tc.text, tc.want, parsed.Frequency)
		}
	}
}

func TestParseConditionPriority(t *testing.T) {
	parsed := Parse("swap 10 ETH when gas below 30 gwei and balance above 500")
	if parsed == nil {
		t.Fatal("expected a parse result")
	}
	if parsed.Condition.Type != intent.ConditionGas {
		t.Fatalf("gas must win over balance, got %q", parsed.Condition.Type)
	}
}

func TestParseConditionOnlyDefaultsToConditionBased(t *testing.T) {
	parsed := Parse("send 5 MATIC when balance above 200")
	if parsed == nil {
		t.Fatal("expected a parse result")
	}
	if parsed.Condition.Type != intent.ConditionBalance {
		t.Fatalf("expected balance condition, got %q", parsed.Condition.Type)
	}
	if parsed.Condition.Comparison != intent.ComparisonAbove {
		t.Fatalf("expected > comparison, got %q", parsed.Condition.Comparison)
	}
	if parsed.Frequency != intent.FrequencyConditionBased {
		t.Fatalf("expected CONDITION_BASED, got %s", parsed.Frequency)
	}
}

func TestParseDefaults(t *testing.T) {
	// 没有任务关键词但带有金额与代币，默认按转账处理。
	parsed := Parse("100 USDC")
	if parsed == nil {
		t.Fatal("expected a parse result")
	}
	if parsed.Task != intent.ActionSend {
		t.Fatalf("expected default SEND, got %s", parsed.Task)
	}

	// 有任务关键词但没提代币，默认 USDC。
	parsed = Parse("stake 42 tokens for me")
	if parsed == nil {
		t.Fatal("expected a parse result")
	}
	if parsed.Token != "USDC" {
		t.Fatalf("expected default token USDC, got %s", parsed.Token)
	}
}

func TestParseNullOnNoise(t *testing.T) {
	for _, text := range []string{"", "   ", "blah blah nothing useful", "how is the weather"} {
		if parsed := Parse(text); parsed != nil {
			t.Errorf("%q: expected nil, got %+v", text, parsed)
		}
	}
}

func TestParseRejectsAmountOnlySignal(t *testing.T) {
	// 只有美元金额、既无任务关键词也无代币的消息不能靠默认值成案。
	for _, text := range []string{"$50 worth of fun", "$12.5 worth of something nice"} {
		parsed := Parse(text)
		if parsed != nil {
			t.Errorf("%q: expected nil, got %+v", text, parsed)
		}
		if Validate(parsed) {
			t.Errorf("%q: amount-only text must not validate", text)
		}
	}
}

func TestParseDeterministic(t *testing.T) {
	text := "Stake 100 USDC weekly when gas < 20 gwei"
	first := Parse(text)
	second := Parse(text)
	if first == nil || second == nil {
		t.Fatal("expected parse results")
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("parse is not deterministic: %+v vs %+v", first, second)
	}
}

func TestValidateRejectsNil(t *testing.T) {
	if Validate(nil) {
		t.Fatal("nil must not validate")
	}
	if Validate(&intent.ParsedIntent{Task: "BURN", Token: "USDC"}) {
		t.Fatal("unknown task must not validate")
	}
	if Validate(&intent.ParsedIntent{Task: intent.ActionSend, Token: "DOGE"}) {
		t.Fatal("unknown token must not validate")
	}
}
