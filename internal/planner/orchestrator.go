package planner

import (
	"context"
	"log/slog"
	"time"

	"weekly-meal-planner/internal/llm"
)

// GenerationConfig tunes the generative tiers.
type GenerationConfig struct {
	// CallTimeout bounds every single generative call. Zero means no limit.
	CallTimeout time.Duration
	// ChunkConcurrency is how many per-day calls the chunked tier runs at once.
	ChunkConcurrency int
	Logger           *slog.Logger
}

// Orchestrator runs the tier ladder: bulk, then chunked, then the
// deterministic catalog. Generate always yields a valid plan.
type Orchestrator struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewOrchestrator builds the ladder for gen. A nil generator means no
// backend is configured, so only the deterministic tier is used.
func NewOrchestrator(gen llm.TextGenerator, cfg GenerationConfig) *Orchestrator {
	var strategies []Strategy
	if gen != nil {
		c := caller{gen: gen, timeout: cfg.CallTimeout}
		strategies = append(strategies,
			&BulkStrategy{caller: c},
			&ChunkedStrategy{caller: c, concurrency: cfg.ChunkConcurrency},
		)
	}
	strategies = append(strategies, DeterministicStrategy{})
	return NewOrchestratorWithStrategies(cfg.Logger, strategies...)
}

// NewOrchestratorWithStrategies builds an orchestrator from an explicit ladder.
func NewOrchestratorWithStrategies(logger *slog.Logger, strategies ...Strategy) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{strategies: strategies, logger: logger}
}

// Generate produces a weekly plan for p. Tier failures are logged and
// absorbed; if every configured tier rejects, the deterministic plan is used.
func (o *Orchestrator) Generate(ctx context.Context, p UserNutritionProfile) GenerationResult {
	var result GenerationResult

	for _, s := range o.strategies {
		res, err := s.Generate(ctx, p)
		result.Metas = append(result.Metas, res.Metas...)
		if err != nil {
			o.logger.Warn("generation tier rejected",
				"tier", s.Name(),
				"user_id", p.UserID,
				"error", err,
			)
			continue
		}

		result.Plan = res.Plan
		result.Tier = s.Name()
		result.DegradedDays = res.DegradedDays
		break
	}

	if result.Tier == "" {
		result.Plan = FallbackPlan(p)
		result.Tier = TierDeterministic
	}

	result.Plan.WeeklyNutritionSummary = Summarize(result.Plan, p.Targets)

	o.logger.Info("meal plan generated",
		"tier", result.Tier,
		"user_id", p.UserID,
		"degraded_days", len(result.DegradedDays),
		"calls", len(result.Metas),
	)
	return result
}
