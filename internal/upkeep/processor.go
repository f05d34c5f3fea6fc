package upkeep

import (
	"context"
	"log/slog"
	"time"

	xerrors "IntentWise-Chain/internal/errors"
	"IntentWise-Chain/internal/executor"
	"IntentWise-Chain/internal/intent"
	"IntentWise-Chain/internal/notify"
	"IntentWise-Chain/pkg/logger"
)

// Runner 定义处理器所需的编排能力。
type Runner interface {
	Execute(ctx context.Context, intentID string) (executor.Outcome, error)
}

// Processor 负责从队列消费意图并交给编排器结算。
type Processor struct {
	runner      Runner
	consumer    Consumer
	workerCount int
	logger      *slog.Logger
	notifier    notify.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithProcessorNotifier 配置告警派发器。
func WithProcessorNotifier(dispatcher notify.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.notifier = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(runner Runner, consumer Consumer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		runner:      runner,
		consumer:    consumer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动消费循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置意图消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, intentID string) error {
	if p.runner == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	outcome, err := p.runner.Execute(ctx, intentID)
	if err != nil {
		switch xerrors.CodeOf(err) {
		case intent.CodeIntentNotFound, intent.CodeIntentInactive,
			intent.CodeIntentAlreadyExecuted, executor.CodeExecutionInFlight:
			// 调度快照与存储状态之间的正常竞态，静默跳过。
			p.logDebug("跳过意图", slog.String("intent_id", intentID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("意图执行失败",
			slog.Any("error", err),
			slog.String("intent_id", intentID),
			slog.String("error_code", string(xerrors.CodeOf(err))),
		)
		p.emitAlert(ctx, intentID, err)
		if xerrors.RetryableError(err) {
			// 交还队列驱动重投，等待下一轮消费。
			return err
		}
		return nil
	}
	if !outcome.Executed {
		p.logDebug("条件未满足",
			slog.String("intent_id", intentID),
			slog.String("reason", outcome.Verdict.Reason),
		)
		return nil
	}
	logger.Audit().Info("意图巡检执行完成",
		slog.String("intent_id", intentID),
		slog.String("record_id", outcome.Record.ID),
		slog.String("tx_hash", outcome.Record.TxHash),
		slog.String("mode", string(outcome.Record.Mode)),
	)
	return nil
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}

func (p *Processor) emitAlert(ctx context.Context, intentID string, cause error) {
	if p == nil || p.notifier == nil || !xerrors.ShouldAlert(cause) {
		return
	}
	code := xerrors.CodeOf(cause)
	attrs := xerrors.AttributesOf(code)
	notify.Dispatch(ctx, p.notifier, notify.Event{
		Kind:     notify.KindAlert,
		Code:     code,
		Message:  cause.Error(),
		Severity: attrs.Severity,
		IntentID: intentID,
		Metadata: map[string]string{
			"stage": "upkeep",
		},
		OccurredAt: time.Now(),
	})
}
