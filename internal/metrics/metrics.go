package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealagent_turns_total",
			Help: "Total number of user turns by classified intent and resolved target",
		},
		[]string{"intent", "target"},
	)

	TurnsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealagent_turns_failed_total",
			Help: "Total number of turns that aborted",
		},
		[]string{"reason"},
	)

	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dealagent_turn_duration_seconds",
			Help:    "Duration of a full turn in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"target"},
	)

	NodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "dealagent_node_duration_seconds",
			Help: "Duration of graph node execution in seconds",
		},
		[]string{"node"},
	)

	NodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealagent_node_errors_total",
			Help: "Total number of graph node errors",
		},
		[]string{"node"},
	)

	ClassifierFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealagent_classifier_fallbacks_total",
			Help: "Turns where classification failed and the chat fallback was used",
		},
		[]string{"classifier"},
	)

	Reroutes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealagent_dependency_reroutes_total",
			Help: "Turns rerouted to an earlier step because a prerequisite was missing",
		},
		[]string{"requested", "target"},
	)

	ScenarioRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealagent_scenario_runs_total",
			Help: "Scenario runs by archetype and result band",
		},
		[]string{"archetype", "band"},
	)

	Uploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealagent_artifact_uploads_total",
			Help: "Artifact uploads by kind and result",
		},
		[]string{"kind", "result"},
	)

	LLMFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealagent_llm_failures_total",
			Help: "LLM calls that failed and were answered with a fallback",
		},
		[]string{"model", "component"},
	)

	LLMCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealagent_llm_cost_usd_total",
			Help: "Accumulated LLM cost in USD",
		},
		[]string{"model"},
	)

	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealagent_llm_tokens_total",
			Help: "LLM tokens by model and kind (prompt, completion)",
		},
		[]string{"model", "kind"},
	)

	ActiveTurns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dealagent_active_turns",
			Help: "Number of turns currently executing",
		},
	)
)
