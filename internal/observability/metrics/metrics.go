// Package metrics 暴露引擎的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentwise_executions_total",
		Help: "The total number of settled intent executions",
	}, []string{"action", "mode", "status"})

	ExecutionsBlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentwise_executions_blocked_total",
		Help: "Evaluator verdicts that blocked an execution attempt",
	}, []string{"action"})

	ExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intentwise_execution_seconds",
		Help:    "Time taken to settle an intent execution",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"action"})

	ChainFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "intentwise_chain_fallbacks_total",
		Help: "Settlements that fell back to the simulated ledger",
	})

	UpkeepCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "intentwise_upkeep_cycles_total",
		Help: "Completed upkeep poll cycles",
	})

	UpkeepDueIntents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "intentwise_upkeep_due_intents",
		Help: "Intents found due in the last upkeep cycle",
	})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "intentwise_queue_depth",
		Help: "Approximate depth of the execution queue",
	}, []string{"driver"})

	ChatTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentwise_chat_turns_total",
		Help: "Chat turns by outcome",
	}, []string{"outcome"})

	OracleFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "intentwise_oracle_failures_total",
		Help: "Price oracle lookups that failed",
	})
)
