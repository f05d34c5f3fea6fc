package condition

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"IntentWise-Chain/internal/intent"
	"IntentWise-Chain/internal/oracle"
	"IntentWise-Chain/internal/web3/sim"
)

func TestFrequencyGate(t *testing.T) {
	evaluator := NewEvaluator(sim.NewLedger(decimal.Decimal{}), oracle.DefaultStatic())
	now := time.Now()
	ctx := context.Background()

	cases := []struct {
		name     string
		freq     intent.Frequency
		lastExec int64
		want     bool
	}{
		{"daily never executed", intent.FrequencyDaily, 0, true},
		{"daily executed 1h ago", intent.FrequencyDaily, now.Add(-time.Hour).Unix(), false},
		{"daily executed 25h ago", intent.FrequencyDaily, now.Add(-25 * time.Hour).Unix(), true},
		{"weekly executed 3d ago", intent.FrequencyWeekly, now.Add(-3 * 24 * time.Hour).Unix(), false},
		{"weekly executed 8d ago", intent.FrequencyWeekly, now.Add(-8 * 24 * time.Hour).Unix(), true},
		{"monthly executed 1h ago", intent.FrequencyMonthly, now.Add(-time.Hour).Unix(), true},
		{"once executed 1h ago", intent.FrequencyOnce, now.Add(-time.Hour).Unix(), true},
	}
	for _, tc := range cases {
		it := &intent.Intent{
			ID: "i1", Action: intent.ActionStake, Token: "USDC",
			Frequency: tc.freq, LastExecution: tc.lastExec, IsActive: true,
		}
		verdict, err := evaluator.CanExecute(ctx, it, now)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if verdict.CanExecute != tc.want {
			t.Errorf("%s: expected canExecute=%v, reason=%q", tc.name, tc.want, verdict.Reason)
		}
		if !verdict.CanExecute && verdict.NextCheckHint <= 0 {
			t.Errorf("%s: blocked verdict must carry a next-check hint", tc.name)
		}
	}
}

func TestGasConditionGate(t *testing.T) {
	ledger := sim.NewLedger(decimal.NewFromInt(30))
	evaluator := NewEvaluator(ledger, oracle.DefaultStatic())
	ctx := context.Background()

	it := &intent.Intent{
		ID: "i1", Action: intent.ActionSend, Token: "USDC", IsActive: true,
		Frequency: intent.FrequencyConditionBased,
		Condition: intent.Condition{
			Type:       intent.ConditionGas,
			Threshold:  decimal.NewFromInt(20),
			Comparison: intent.ComparisonBelow,
		},
	}

	verdict, err := evaluator.CanExecute(ctx, it, time.Now())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if verdict.CanExecute {
		t.Fatal("gas at 30 gwei must block a < 20 gwei condition")
	}
	if !strings.Contains(verdict.Reason, "30") {
		t.Fatalf("reason must cite the live gas price, got %q", verdict.Reason)
	}

	cheap := sim.NewLedger(decimal.NewFromInt(10))
	verdict, err = NewEvaluator(cheap, oracle.DefaultStatic()).CanExecute(ctx, it, time.Now())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !verdict.CanExecute {
		t.Fatalf("gas at 10 gwei must pass, reason %q", verdict.Reason)
	}
}

func TestBalanceConditionGate(t *testing.T) {
	ledger := sim.NewLedger(decimal.Decimal{})
	ledger.Deposit("0xaaa", "USDC", decimal.NewFromInt(150))
	evaluator := NewEvaluator(ledger, oracle.DefaultStatic())
	ctx := context.Background()

	it := &intent.Intent{
		ID: "i1", WalletAddress: "0xaaa", Action: intent.ActionSend, Token: "USDC", IsActive: true,
		Frequency: intent.FrequencyConditionBased,
		Condition: intent.Condition{
			Type:       intent.ConditionBalance,
			Threshold:  decimal.NewFromInt(100),
			Comparison: intent.ComparisonAbove,
		},
	}

	verdict, err := evaluator.CanExecute(ctx, it, time.Now())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !verdict.CanExecute {
		t.Fatalf("balance 150 > 100 must pass, reason %q", verdict.Reason)
	}

	it.Condition.Threshold = decimal.NewFromInt(200)
	verdict, err = evaluator.CanExecute(ctx, it, time.Now())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if verdict.CanExecute {
		t.Fatal("balance 150 > 200 must block")
	}
}

func TestPriceConditionGate(t *testing.T) {
	prices := oracle.NewStatic(map[string]decimal.Decimal{"ETH": decimal.NewFromInt(2000)})
	evaluator := NewEvaluator(sim.NewLedger(decimal.Decimal{}), prices)
	ctx := context.Background()

	it := &intent.Intent{
		ID: "i1", Action: intent.ActionSwap, Token: "ETH", IsActive: true,
		Frequency: intent.FrequencyWeekly,
		Condition: intent.Condition{
			Type:       intent.ConditionPrice,
			Threshold:  decimal.NewFromInt(2500),
			Comparison: intent.ComparisonBelow,
			Asset:      "ETH",
		},
	}

	verdict, err := evaluator.CanExecute(ctx, it, time.Now())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !verdict.CanExecute {
		t.Fatalf("price 2000 < 2500 must pass, reason %q", verdict.Reason)
	}

	prices.SetPrice("ETH", decimal.NewFromInt(3000))
	verdict, err = evaluator.CanExecute(ctx, it, time.Now())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if verdict.CanExecute {
		t.Fatal("price 3000 < 2500 must block")
	}
	if !strings.Contains(verdict.Reason, "3000") {
		t.Fatalf("reason must cite the live price, got %q", verdict.Reason)
	}
}

type failingOracle struct{}

func (failingOracle) AssetPrice(context.Context, string) (decimal.Decimal, error) {
	return decimal.Decimal{}, errors.New("oracle down")
}

func TestOracleFailurePropagates(t *testing.T) {
	evaluator := NewEvaluator(sim.NewLedger(decimal.Decimal{}), failingOracle{})
	it := &intent.Intent{
		ID: "i1", Action: intent.ActionSwap, Token: "ETH", IsActive: true,
		Frequency: intent.FrequencyConditionBased,
		Condition: intent.Condition{
			Type:       intent.ConditionPrice,
			Threshold:  decimal.NewFromInt(2500),
			Comparison: intent.ComparisonBelow,
		},
	}
	if _, err := evaluator.CanExecute(context.Background(), it, time.Now()); err == nil {
		t.Fatal("oracle failure must surface as an error, not a pass")
	}
}
