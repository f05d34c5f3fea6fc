// Package upkeep 负责周期性巡检：按 cron 节奏找出到期的意图，
// 投递到执行队列，再由 Processor 消费并交给编排器结算。
package upkeep

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	xerrors "IntentWise-Chain/internal/errors"
	"IntentWise-Chain/internal/intent"
	"IntentWise-Chain/internal/observability/metrics"
	"IntentWise-Chain/pkg/logger"
)

// 错误码注册。
const (
	CodeUpkeepPoll xerrors.Code = "UPKEEP_POLL_FAILED"
)

func init() {
	xerrors.Register(CodeUpkeepPoll, xerrors.Attributes{
		Message:   "upkeep poll failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
}

// defaultCronSpec 每分钟整点巡检一次（cron 带秒字段）。
const defaultCronSpec = "0 * * * * *"

// Scheduler 周期性扫描存储中到期的意图并投递执行请求。
// 它只负责"找出谁该被检查"，是否真正执行由条件求值器决定。
type Scheduler struct {
	store    intent.Store
	producer Producer
	spec     string
	batch    int
	logger   *slog.Logger
	cron     *cron.Cron
	now      func() time.Time
}

// SchedulerOption 定义可选配置。
type SchedulerOption func(*Scheduler)

// WithCronSpec 指定巡检节奏，格式为带秒字段的 cron 表达式。
func WithCronSpec(spec string) SchedulerOption {
	return func(s *Scheduler) {
		if spec != "" {
			s.spec = spec
		}
	}
}

// WithBatchSize 设置单页扫描数量。
func WithBatchSize(size int) SchedulerOption {
	return func(s *Scheduler) {
		if size > 0 {
			s.batch = size
		}
	}
}

// WithSchedulerLogger 指定日志输出。
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// withClock 仅用于测试，替换时间来源。
func withClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

// NewScheduler 构造调度器。
func NewScheduler(store intent.Store, producer Producer, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:    store,
		producer: producer,
		spec:     defaultCronSpec,
		batch:    100,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start 启动巡检循环，阻塞直到 ctx 取消。
func (s *Scheduler) Start(ctx context.Context) error {
	if s.store == nil || s.producer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "调度器未初始化")
	}
	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(s.spec, func() {
		if pollErr := s.Poll(ctx); pollErr != nil {
			logger.L().Error("巡检失败", slog.Any("error", pollErr))
		}
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInitializationFailure, err, "注册巡检任务失败")
	}
	s.cron = c
	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return ctx.Err()
}

// Poll 执行一轮巡检：分页扫描到期意图并逐条投递。
func (s *Scheduler) Poll(ctx context.Context) error {
	now := s.now().Unix()
	active := true
	due := 0
	offset := 0
	for {
		page, err := s.store.ListIntents(ctx, intent.ListOptions{
			Limit:     s.batch,
			Offset:    offset,
			Active:    &active,
			DueBefore: now,
			Order:     intent.SortByUpdatedAsc,
		})
		if err != nil {
			return xerrors.Wrap(CodeUpkeepPoll, err, "扫描到期意图失败")
		}
		for _, it := range page {
			if err := s.producer.Publish(ctx, it.ID); err != nil {
				return xerrors.Wrap(CodeUpkeepPoll, err, "投递意图 "+it.ID+" 失败")
			}
			due++
		}
		if len(page) < s.batch {
			break
		}
		offset += s.batch
	}
	metrics.UpkeepCycles.Inc()
	metrics.UpkeepDueIntents.Set(float64(due))
	if dr, ok := s.producer.(DepthReporter); ok {
		metrics.QueueDepth.WithLabelValues(dr.Driver()).Set(float64(dr.Depth()))
	}
	if s.logger != nil && due > 0 {
		s.logger.Debug("巡检完成", slog.Int("due", due))
	}
	return nil
}
