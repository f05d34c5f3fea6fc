// Package condition 判定一条意图当前是否允许执行。
// 求值没有副作用：只读取意图自身的时间戳与外部快照，从不改状态。
package condition

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	xerrors "IntentWise-Chain/internal/errors"
	"IntentWise-Chain/internal/intent"
	"IntentWise-Chain/internal/oracle"
)

// Verdict 是一次求值的结论。被阻塞时 Reason 说明原因，
// NextCheckHint 提示距离下一次可能放行的时间。
type Verdict struct {
	CanExecute    bool          `json:"can_execute"`
	Reason        string        `json:"reason,omitempty"`
	NextCheckHint time.Duration `json:"next_check_hint,omitempty"`
}

// ChainSnapshotSource 提供求值需要的链上快照数据。
type ChainSnapshotSource interface {
	GasPrice(ctx context.Context) (decimal.Decimal, error)
	EscrowBalance(ctx context.Context, wallet, token string) (decimal.Decimal, error)
}

// Evaluator 按固定顺序套用各道闸门，第一道不通过即短路。
type Evaluator struct {
	chain  ChainSnapshotSource
	prices oracle.PriceOracle
}

// NewEvaluator 构造求值器。
func NewEvaluator(chain ChainSnapshotSource, prices oracle.PriceOracle) *Evaluator {
	return &Evaluator{chain: chain, prices: prices}
}

// CanExecute 判定意图此刻能否执行。快照源不可用属于基础设施故障，
// 以错误上抛，由调用方决定告警与重试，不算普通的"未就绪"。
func (e *Evaluator) CanExecute(ctx context.Context, it *intent.Intent, now time.Time) (Verdict, error) {
	if it == nil {
		return Verdict{}, xerrors.New(xerrors.CodeInvalidArgument, "intent 不能为空")
	}

	if verdict := e.frequencyGate(it, now); !verdict.CanExecute {
		return verdict, nil
	}
	return e.conditionGate(ctx, it)
}

// frequencyGate 只对 DAILY 与 WEEKLY 施加时间闸门，
// MONTHLY 与条件驱动的意图本身不设时间限制。
func (e *Evaluator) frequencyGate(it *intent.Intent, now time.Time) Verdict {
	var window time.Duration
	switch it.Frequency {
	case intent.FrequencyDaily:
		window = 24 * time.Hour
	case intent.FrequencyWeekly:
		window = 7 * 24 * time.Hour
	default:
		return Verdict{CanExecute: true}
	}

	if it.LastExecution == 0 {
		return Verdict{CanExecute: true}
	}
	elapsed := now.Sub(time.Unix(it.LastExecution, 0))
	if elapsed >= window {
		return Verdict{CanExecute: true}
	}
	return Verdict{
		CanExecute:    false,
		Reason:        fmt.Sprintf("executed %s ago, next window opens in %s", elapsed.Round(time.Minute), (window - elapsed).Round(time.Minute)),
		NextCheckHint: window - elapsed,
	}
}

func (e *Evaluator) conditionGate(ctx context.Context, it *intent.Intent) (Verdict, error) {
	cond := it.Condition
	switch cond.Type {
	case intent.ConditionNone:
		return Verdict{CanExecute: true}, nil
	case intent.ConditionGas:
		if e.chain == nil {
			return Verdict{}, xerrors.New(xerrors.CodeChainUnavailable, "没有可用的链快照源")
		}
		gasPrice, err := e.chain.GasPrice(ctx)
		if err != nil {
			return Verdict{}, xerrors.Wrap(xerrors.CodeChainUnavailable, err, "获取 gas 价格失败")
		}
		return e.compare(cond, gasPrice, fmt.Sprintf("gas price is %s gwei", gasPrice)), nil
	case intent.ConditionBalance:
		if e.chain == nil {
			return Verdict{}, xerrors.New(xerrors.CodeChainUnavailable, "没有可用的链快照源")
		}
		balance, err := e.chain.EscrowBalance(ctx, it.WalletAddress, it.Token)
		if err != nil {
			return Verdict{}, xerrors.Wrap(xerrors.CodeChainUnavailable, err, "获取托管余额失败")
		}
		return e.compare(cond, balance, fmt.Sprintf("escrow balance is %s %s", balance, it.Token)), nil
	case intent.ConditionPrice:
		if e.prices == nil {
			return Verdict{}, xerrors.New(xerrors.CodeOracleUnavailable, "没有可用的行情源")
		}
		asset := cond.Asset
		if asset == "" {
			asset = it.Token
		}
		price, err := e.prices.AssetPrice(ctx, asset)
		if err != nil {
			return Verdict{}, xerrors.Wrap(xerrors.CodeOracleUnavailable, err, "获取资产现价失败")
		}
		return e.compare(cond, price, fmt.Sprintf("%s price is $%s", asset, price)), nil
	default:
		return Verdict{}, xerrors.New(intent.CodeIntentValidation, "未知的条件类型: "+string(cond.Type))
	}
}

// compare 用实时值求值条件，不满足时在原因里带上实时值。
func (e *Evaluator) compare(cond intent.Condition, current decimal.Decimal, live string) Verdict {
	if cond.Holds(current) {
		return Verdict{CanExecute: true}
	}
	return Verdict{
		CanExecute: false,
		Reason:     fmt.Sprintf("%s, waiting for %s", live, cond.Describe()),
	}
}
