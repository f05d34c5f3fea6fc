package intent

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFrequencyPeriod(t *testing.T) {
	cases := []struct {
		freq Frequency
		want time.Duration
	}{
		{FrequencyDaily, 24 * time.Hour},
		{FrequencyWeekly, 7 * 24 * time.Hour},
		{FrequencyMonthly, 30 * 24 * time.Hour},
		{FrequencyOnce, 0},
		{FrequencyConditionBased, 0},
	}
	for _, tc := range cases {
		if got := tc.freq.Period(); got != tc.want {
			t.Errorf("%s: expected period %v, got %v", tc.freq, tc.want, got)
		}
	}
	if FrequencyOnce.Recurring() {
		t.Error("one-shot frequency must not be recurring")
	}
	if !FrequencyDaily.Recurring() {
		t.Error("daily frequency must be recurring")
	}
}

func TestIntentValidate(t *testing.T) {
	valid := &Intent{
		ID:     "i1",
		UserID: "u1",
		Action: ActionStake,
		Token:  "USDC",
		Amount: decimal.NewNullDecimal(decimal.NewFromInt(100)),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid intent rejected: %v", err)
	}
	if valid.Frequency != FrequencyOnce {
		t.Fatalf("empty frequency must default to ONCE, got %s", valid.Frequency)
	}

	cases := []struct {
		name   string
		intent Intent
	}{
		{"unknown action", Intent{Action: "BURN", Token: "USDC"}},
		{"unknown token", Intent{Action: ActionSend, Token: "DOGE"}},
		{"unknown frequency", Intent{Action: ActionSend, Token: "USDC", Frequency: "HOURLY"}},
		{"condition based without condition", Intent{Action: ActionSend, Token: "USDC", Frequency: FrequencyConditionBased}},
		{"negative amount", Intent{
			Action: ActionSend, Token: "USDC",
			Amount: decimal.NewNullDecimal(decimal.NewFromInt(-1)),
		}},
		{"condition missing comparison", Intent{
			Action: ActionSend, Token: "USDC",
			Condition: Condition{Type: ConditionGas, Threshold: decimal.NewFromInt(20)},
		}},
	}
	for _, tc := range cases {
		it := tc.intent
		if err := it.Validate(); err != nil {
			continue
		}
		t.Errorf("%s: expected validation error", tc.name)
	}
}

func TestConditionHolds(t *testing.T) {
	below := Condition{Type: ConditionGas, Threshold: decimal.NewFromInt(20), Comparison: ComparisonBelow}
	if !below.Holds(decimal.NewFromInt(15)) {
		t.Error("15 < 20 must hold")
	}
	if below.Holds(decimal.NewFromInt(20)) {
		t.Error("threshold itself must not satisfy a strict comparison")
	}
	if below.Holds(decimal.NewFromInt(25)) {
		t.Error("25 < 20 must not hold")
	}

	above := Condition{Type: ConditionPrice, Threshold: decimal.RequireFromString("2000.5"), Comparison: ComparisonAbove, Asset: "ETH"}
	if !above.Holds(decimal.RequireFromString("2000.51")) {
		t.Error("2000.51 > 2000.5 must hold")
	}
	if above.Holds(decimal.RequireFromString("2000.5")) {
		t.Error("equality must not satisfy a strict comparison")
	}
}

func TestConditionDescribe(t *testing.T) {
	cond := Condition{Type: ConditionGas, Threshold: decimal.NewFromInt(25), Comparison: ComparisonBelow}
	if got := cond.Describe(); got != "gas < 25 gwei" {
		t.Fatalf("unexpected gas description: %q", got)
	}
}

func TestIsKnownToken(t *testing.T) {
	if !IsKnownToken("usdc") {
		t.Error("lookup must be case-insensitive")
	}
	if IsKnownToken("SHIB") {
		t.Error("SHIB is not whitelisted")
	}
}
