// Package executor 编排意图的结算：先问求值器要不要执行，再按优先级
// 尝试链上结算，链不可达时降级到确定性的模拟账本。
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"IntentWise-Chain/internal/condition"
	xerrors "IntentWise-Chain/internal/errors"
	"IntentWise-Chain/internal/intent"
	"IntentWise-Chain/internal/notify"
	"IntentWise-Chain/internal/observability/metrics"
	"IntentWise-Chain/internal/oracle"
	"IntentWise-Chain/internal/web3"
	"IntentWise-Chain/internal/web3/sim"
	"IntentWise-Chain/pkg/logger"
)

// 结算金额的统一小数位数，兑换输出用同一精度做定点除法，
// 保证重复执行不产生漂移。
const amountScale = 18

const (
	CodeExecutionInFlight xerrors.Code = "EXECUTION_IN_FLIGHT"
	CodeInsufficientFunds xerrors.Code = "INSUFFICIENT_FUNDS"
	CodeSettlementFailure xerrors.Code = "SETTLEMENT_FAILURE"
)

var (
	// ErrExecutionInFlight 表示同一意图已有一次执行在途。
	ErrExecutionInFlight = xerrors.New(CodeExecutionInFlight, "execution already in flight", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrInsufficientFunds 表示托管余额不足，属于用户可处理的硬失败。
	ErrInsufficientFunds = xerrors.New(CodeInsufficientFunds, "insufficient escrow balance")
)

func init() {
	xerrors.Register(CodeExecutionInFlight, xerrors.Attributes{
		Message:   "execution already in flight",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
	xerrors.Register(CodeInsufficientFunds, xerrors.Attributes{
		Message:   "insufficient escrow balance",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeSettlementFailure, xerrors.Attributes{
		Message:   "settlement failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
}

// Outcome 是一次执行调用的结果。三种形态之一：
// Executed 为真时带 Record 与 Receipt；被阻塞时带 Verdict；
// 硬失败通过 error 返回，Outcome 为零值。
type Outcome struct {
	Executed bool                    `json:"executed"`
	Verdict  condition.Verdict       `json:"verdict,omitempty"`
	Record   *intent.ExecutionRecord `json:"record,omitempty"`
	Receipt  *intent.Receipt         `json:"receipt,omitempty"`
}

// Orchestrator 驱动单条意图从就绪判定到结算落账的全过程。
type Orchestrator struct {
	store     intent.Store
	chain     web3.Client
	fallback  *sim.Ledger
	prices    oracle.PriceOracle
	evaluator *condition.Evaluator
	notifier  notify.Dispatcher
	simSeed   decimal.Decimal

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// Option 配置编排器。
type Option func(*Orchestrator)

// WithChainClient 指定真实链客户端，不配置时一律走模拟结算。
func WithChainClient(client web3.Client) Option {
	return func(o *Orchestrator) { o.chain = client }
}

// WithNotifier 指定通知分发器。
func WithNotifier(d notify.Dispatcher) Option {
	return func(o *Orchestrator) { o.notifier = d }
}

// WithSimSeed 指定模拟账本的演示入金额度。降级结算遇到零余额账户
// 时先补足该额度，保证演示流程可走通。传零关闭该行为。
func WithSimSeed(seed decimal.Decimal) Option {
	return func(o *Orchestrator) { o.simSeed = seed }
}

// New 构造编排器。fallback 与 prices 不可为空。
func New(store intent.Store, fallback *sim.Ledger, prices oracle.PriceOracle, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		fallback: fallback,
		prices:   prices,
		simSeed:  decimal.NewFromInt(1000),
		inFlight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	chainSource := condition.ChainSnapshotSource(o.fallback)
	if o.chain != nil {
		chainSource = o.chain
	}
	o.evaluator = condition.NewEvaluator(chainSource, o.prices)
	return o
}

// Execute 尝试执行一条意图。同一意图同一时刻最多一次在途执行。
func (o *Orchestrator) Execute(ctx context.Context, intentID string) (Outcome, error) {
	if !o.acquire(intentID) {
		return Outcome{}, ErrExecutionInFlight
	}
	defer o.release(intentID)

	it, err := o.store.GetIntent(ctx, intentID)
	if err != nil {
		return Outcome{}, err
	}
	if !it.IsActive {
		return Outcome{}, intent.ErrIntentInactive
	}
	if it.Executed && it.Frequency == intent.FrequencyOnce {
		return Outcome{}, intent.ErrAlreadyExecuted
	}

	now := time.Now()
	verdict, err := o.evaluator.CanExecute(ctx, it, now)
	if err != nil {
		return Outcome{}, err
	}
	if !verdict.CanExecute {
		metrics.ExecutionsBlocked.WithLabelValues(string(it.Action)).Inc()
		logger.L().Debug("意图未就绪",
			slog.String("intent_id", it.ID),
			slog.String("reason", verdict.Reason),
		)
		return Outcome{Executed: false, Verdict: verdict}, nil
	}

	started := time.Now()
	settlement, mode, result, err := o.settle(ctx, it, now)
	metrics.ExecutionDuration.WithLabelValues(string(it.Action)).Observe(time.Since(started).Seconds())
	if err != nil {
		// 走到了结算环节才失败的尝试要留痕；余额不足等前置硬失败不留。
		if xerrors.CodeOf(err) == CodeSettlementFailure {
			result := err.Error()
			if ee, ok := xerrors.From(err); ok {
				result = ee.Message()
			}
			failed := &intent.ExecutionRecord{
				ID:         uuid.NewString(),
				IntentID:   it.ID,
				Status:     intent.ExecutionFailed,
				Result:     result,
				Mode:       intent.ModeSimulated,
				ExecutedAt: now.Unix(),
			}
			if appendErr := o.store.AppendRecord(ctx, failed); appendErr != nil {
				logger.L().Error("记录失败执行留痕失败", slog.String("intent_id", it.ID), slog.String("error", appendErr.Error()))
			}
			metrics.ExecutionsTotal.WithLabelValues(string(it.Action), string(intent.ModeSimulated), string(intent.ExecutionFailed)).Inc()
		}
		return Outcome{}, err
	}

	record := &intent.ExecutionRecord{
		ID:         uuid.NewString(),
		IntentID:   it.ID,
		Status:     intent.ExecutionSuccess,
		Result:     result,
		GasUsed:    settlement.GasUsed,
		TxHash:     settlement.TxHash,
		Mode:       mode,
		ExecutedAt: now.Unix(),
	}
	if err := o.store.AppendRecord(ctx, record); err != nil {
		return Outcome{}, err
	}

	advance := intent.Advance{LastExecution: now.Unix()}
	if period := it.Frequency.Period(); period > 0 {
		advance.NextExecution = now.Add(period).Unix()
	}
	if it.Frequency == intent.FrequencyOnce {
		advance.Executed = true
	}
	if _, err := o.store.AdvanceIntent(ctx, it.ID, advance); err != nil {
		return Outcome{}, err
	}

	receipt, err := o.mintReceipt(ctx, it, record)
	if err != nil {
		return Outcome{}, err
	}

	metrics.ExecutionsTotal.WithLabelValues(string(it.Action), string(mode), string(record.Status)).Inc()
	logger.Audit().Info("意图执行成功",
		slog.String("intent_id", it.ID),
		slog.String("action", string(it.Action)),
		slog.String("mode", string(mode)),
		slog.String("tx_hash", record.TxHash),
	)
	notify.Dispatch(ctx, o.notifier, notify.Event{
		Kind:     notify.KindExecution,
		Message:  result,
		IntentID: it.ID,
		UserID:   it.UserID,
		Metadata: map[string]string{"tx_hash": record.TxHash, "mode": string(mode)},
	})

	return Outcome{Executed: true, Record: record, Receipt: receipt}, nil
}

// settle 完成一次结算。优先尝试真实链路，任何链路失败都降级到
// 模拟账本；只有余额不足这类硬失败直接上抛。
func (o *Orchestrator) settle(ctx context.Context, it *intent.Intent, now time.Time) (web3.Settlement, intent.SettlementMode, string, error) {
	if it.Action == intent.ActionRemind {
		return o.settleRemind(ctx, it, now)
	}

	amount, err := o.requiredAmount(it)
	if err != nil {
		return web3.Settlement{}, "", "", err
	}

	var amountOut decimal.Decimal
	if it.Action == intent.ActionSwap {
		price, err := o.prices.AssetPrice(ctx, o.swapTarget(it))
		if err != nil {
			metrics.OracleFailures.Inc()
			return web3.Settlement{}, "", "", xerrors.Wrap(xerrors.CodeOracleUnavailable, err, "无法获取兑换价格")
		}
		if price.Sign() <= 0 {
			return web3.Settlement{}, "", "", xerrors.New(xerrors.CodeOracleUnavailable, "兑换价格不是正数: "+price.String())
		}
		amountOut = amount.DivRound(price, amountScale)
	}

	if o.chain != nil {
		settlement, err := o.settleOnChain(ctx, it, amount, amountOut)
		if err == nil {
			return settlement, intent.ModeOnChain, o.describe(it, amount, amountOut), nil
		}
		if xerrors.CodeOf(err) == CodeInsufficientFunds {
			return web3.Settlement{}, "", "", err
		}
		metrics.ChainFallbacks.Inc()
		logger.L().Warn("链上结算失败，降级到模拟结算",
			slog.String("intent_id", it.ID),
			slog.String("error", err.Error()),
		)
	}

	settlement, err := o.settleSimulated(ctx, it, amount, amountOut)
	if err != nil {
		return web3.Settlement{}, "", "", err
	}
	return settlement, intent.ModeSimulated, o.describe(it, amount, amountOut) + " (simulated)", nil
}

// settleRemind 不触链：投递提醒并合成一条模拟结算。
func (o *Orchestrator) settleRemind(ctx context.Context, it *intent.Intent, now time.Time) (web3.Settlement, intent.SettlementMode, string, error) {
	message := strings.TrimSpace(it.Title)
	if message == "" {
		message = it.Description
	}
	notify.Dispatch(ctx, o.notifier, notify.Event{
		Kind:     notify.KindReminder,
		Message:  message,
		IntentID: it.ID,
		UserID:   it.UserID,
	})
	digest := sha256.Sum256([]byte(fmt.Sprintf("remind|%s|%d", it.ID, now.Unix())))
	settlement := web3.Settlement{TxHash: "sim-" + hex.EncodeToString(digest[:16]), GasUsed: "0"}
	return settlement, intent.ModeSimulated, "reminder dispatched: " + message, nil
}

func (o *Orchestrator) settleOnChain(ctx context.Context, it *intent.Intent, amount, amountOut decimal.Decimal) (web3.Settlement, error) {
	balance, err := o.chain.EscrowBalance(ctx, it.WalletAddress, it.Token)
	if err != nil {
		return web3.Settlement{}, xerrors.Wrap(xerrors.CodeChainUnavailable, err, "查询托管余额失败")
	}
	if balance.LessThan(amount) {
		return web3.Settlement{}, insufficient(it, balance, amount)
	}

	switch it.Action {
	case intent.ActionSend:
		return o.chain.Transfer(ctx, web3.TransferRequest{
			From: it.WalletAddress, To: it.WalletAddress, Token: it.Token, Amount: amount,
		})
	case intent.ActionStake:
		return o.chain.Stake(ctx, web3.StakeRequest{
			Wallet: it.WalletAddress, Token: it.Token, Amount: amount,
		})
	case intent.ActionSwap:
		return o.chain.Swap(ctx, web3.SwapRequest{
			Wallet:    it.WalletAddress,
			FromToken: it.Token,
			ToToken:   o.swapTarget(it),
			AmountIn:  amount,
			AmountOut: amountOut,
		})
	default:
		return web3.Settlement{}, xerrors.New(intent.CodeIntentValidation, "不支持结算的操作类型: "+string(it.Action))
	}
}

func (o *Orchestrator) settleSimulated(ctx context.Context, it *intent.Intent, amount, amountOut decimal.Decimal) (web3.Settlement, error) {
	o.seedIfEmpty(ctx, it)

	var (
		settlement web3.Settlement
		err        error
	)
	switch it.Action {
	case intent.ActionSend:
		settlement, err = o.fallback.Transfer(ctx, web3.TransferRequest{
			From: it.WalletAddress, To: it.WalletAddress + ":out", Token: it.Token, Amount: amount,
		})
	case intent.ActionStake:
		settlement, err = o.fallback.Stake(ctx, web3.StakeRequest{
			Wallet: it.WalletAddress, Token: it.Token, Amount: amount,
		})
	case intent.ActionSwap:
		settlement, err = o.fallback.Swap(ctx, web3.SwapRequest{
			Wallet:    it.WalletAddress,
			FromToken: it.Token,
			ToToken:   o.swapTarget(it),
			AmountIn:  amount,
			AmountOut: amountOut,
		})
	default:
		return web3.Settlement{}, xerrors.New(intent.CodeIntentValidation, "不支持结算的操作类型: "+string(it.Action))
	}
	if err != nil {
		if stdErrors.Is(err, sim.ErrInsufficientEscrow) {
			balance, _ := o.fallback.EscrowBalance(ctx, it.WalletAddress, it.Token)
			return web3.Settlement{}, insufficient(it, balance, amount)
		}
		return web3.Settlement{}, xerrors.Wrap(CodeSettlementFailure, err, "模拟结算失败")
	}
	return settlement, nil
}

// seedIfEmpty 给模拟账本里的零余额账户补足演示额度。
func (o *Orchestrator) seedIfEmpty(ctx context.Context, it *intent.Intent) {
	if o.simSeed.Sign() <= 0 {
		return
	}
	balance, err := o.fallback.EscrowBalance(ctx, it.WalletAddress, it.Token)
	if err == nil && balance.IsZero() {
		o.fallback.Deposit(it.WalletAddress, it.Token, o.simSeed)
	}
}

func (o *Orchestrator) requiredAmount(it *intent.Intent) (decimal.Decimal, error) {
	if !it.Amount.Valid || it.Amount.Decimal.Sign() <= 0 {
		return decimal.Decimal{}, xerrors.New(intent.CodeIntentValidation,
			string(it.Action)+" 意图缺少正数金额，无法结算")
	}
	return it.Amount.Decimal, nil
}

// swapTarget 决定兑换的目标资产：价格条件指向的资产优先，
// 其次把稳定币兑换成 ETH，其余情况兑换成 USDC。
func (o *Orchestrator) swapTarget(it *intent.Intent) string {
	if it.Condition.Type == intent.ConditionPrice && it.Condition.Asset != "" && !strings.EqualFold(it.Condition.Asset, it.Token) {
		return strings.ToUpper(it.Condition.Asset)
	}
	switch strings.ToUpper(it.Token) {
	case "USDC", "DAI":
		return "ETH"
	default:
		return "USDC"
	}
}

func (o *Orchestrator) describe(it *intent.Intent, amount, amountOut decimal.Decimal) string {
	switch it.Action {
	case intent.ActionSend:
		return fmt.Sprintf("transferred %s %s", amount, it.Token)
	case intent.ActionStake:
		return fmt.Sprintf("staked %s %s", amount, it.Token)
	case intent.ActionSwap:
		return fmt.Sprintf("swapped %s %s for %s %s", amount, it.Token, amountOut, o.swapTarget(it))
	default:
		return string(it.Action)
	}
}

// mintReceipt 铸造并持久化凭证。凭证持久化是成功路径的一部分，
// 链上铸造则尽力而为。
func (o *Orchestrator) mintReceipt(ctx context.Context, it *intent.Intent, record *intent.ExecutionRecord) (*intent.Receipt, error) {
	receipt := &intent.Receipt{
		TokenID:     uuid.NewString(),
		IntentID:    it.ID,
		RecordID:    record.ID,
		Name:        fmt.Sprintf("IntentWise Receipt · %s %s", it.Action, it.Token),
		Description: record.Result,
		Image:       "ipfs://intentwise/receipt.svg",
		Attributes: []intent.ReceiptAttribute{
			{TraitType: "action", Value: string(it.Action)},
			{TraitType: "token", Value: it.Token},
			{TraitType: "amount", Value: amountLabel(it)},
			{TraitType: "executed_at", Value: time.Unix(record.ExecutedAt, 0).UTC().Format(time.RFC3339)},
			{TraitType: "tx_hash", Value: record.TxHash},
			{TraitType: "mode", Value: string(record.Mode)},
		},
		CreatedAt: record.ExecutedAt,
	}

	minter := o.chain
	if minter == nil || record.Mode == intent.ModeSimulated {
		minter = o.fallback
	}
	if _, err := minter.MintReceipt(ctx, web3.ReceiptRequest{
		Owner:    it.WalletAddress,
		TokenID:  receipt.TokenID,
		Name:     receipt.Name,
		Metadata: record.TxHash,
	}); err != nil {
		logger.L().Warn("链上铸造凭证失败",
			slog.String("intent_id", it.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := o.store.CreateReceipt(ctx, receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

func amountLabel(it *intent.Intent) string {
	if !it.Amount.Valid {
		return ""
	}
	return it.Amount.Decimal.String()
}

func (o *Orchestrator) acquire(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[id]; busy {
		return false
	}
	o.inFlight[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, id)
}

func insufficient(it *intent.Intent, balance, amount decimal.Decimal) error {
	return xerrors.New(CodeInsufficientFunds,
		fmt.Sprintf("escrow holds %s %s, need %s", balance, it.Token, amount))
}
