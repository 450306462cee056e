package metrics

import (
	"net/http"

	"weekly-meal-planner/internal/shared"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	generationCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meal_planner",
		Name:      "generation_calls_total",
		Help:      "Generative calls by agent, tier and outcome.",
	}, []string{"agent", "tier", "outcome"})

	generationTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meal_planner",
		Name:      "generation_tokens_total",
		Help:      "Tokens consumed by generative calls.",
	}, []string{"agent", "kind"})

	generationLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "meal_planner",
		Name:      "generation_latency_seconds",
		Help:      "Latency of generative calls.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60},
	}, []string{"agent", "tier"})

	plansGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meal_planner",
		Name:      "plans_generated_total",
		Help:      "Plans produced, labelled by the tier that produced them.",
	}, []string{"tier"})
)

func init() {
	registry.MustRegister(
		generationCalls,
		generationTokens,
		generationLatency,
		plansGenerated,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func observe(meta shared.AgentMeta) {
	generationCalls.WithLabelValues(meta.AgentName, meta.Tier, meta.Outcome).Inc()
	generationLatency.WithLabelValues(meta.AgentName, meta.Tier).Observe(meta.Latency.Seconds())
	if meta.Usage.PromptTokens > 0 {
		generationTokens.WithLabelValues(meta.AgentName, "prompt").Add(float64(meta.Usage.PromptTokens))
	}
	if meta.Usage.CompletionTokens > 0 {
		generationTokens.WithLabelValues(meta.AgentName, "completion").Add(float64(meta.Usage.CompletionTokens))
	}
}

// ObservePlan counts a finished plan generation under its tier.
func ObservePlan(tier string) {
	plansGenerated.WithLabelValues(tier).Inc()
}

// Handler serves the collected metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
