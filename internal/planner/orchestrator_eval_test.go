package planner

import (
	"context"
	"strings"
	"testing"
	"time"

	"weekly-meal-planner/internal/config"
	"weekly-meal-planner/internal/llm"
)

// TestOrchestrator_LiveEval asks the configured backend for a real week and
// checks the result the way a reviewer would.
// Run with: go test -v ./internal/planner -run TestOrchestrator_LiveEval
func TestOrchestrator_LiveEval(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping live eval in short mode")
	}

	ctx := context.Background()
	cfg, err := config.NewFromEnv()
	if err != nil {
		t.Skipf("Skipping: invalid environment: %v", err)
	}
	gen, err := llm.NewFromConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}
	if gen == nil {
		t.Skip("Skipping: No API keys found in environment")
	}
	if c, ok := gen.(llm.Closer); ok {
		defer c.Close()
	}

	p := testProfile(3, 1)
	p.ExcludedIngredients = []string{"peanuts"}
	o := NewOrchestrator(gen, GenerationConfig{CallTimeout: 90 * time.Second, ChunkConcurrency: 2})

	result := o.Generate(ctx, p)
	t.Logf("tier=%s calls=%d degraded=%v", result.Tier, len(result.Metas), result.DegradedDays)

	// EVAL A: the backend should manage without the catalog
	if result.Tier == TierDeterministic {
		t.Errorf("TIER FAIL: every generative tier was rejected")
	}

	// EVAL B: shape always holds
	assertPlanShape(t, result.Plan, p)

	// EVAL C: calories land near the target
	avg := result.Plan.WeeklyNutritionSummary.AvgDailyCalories
	if avg < 0.8*p.Targets.Calories || avg > 1.2*p.Targets.Calories {
		t.Errorf("NUTRITION FAIL: average %.0f kcal is far from the %.0f kcal target", avg, p.Targets.Calories)
	}

	// EVAL D: exclusions are respected
	for _, day := range result.Plan.WeeklyPlan {
		for _, m := range day.Meals {
			for _, ing := range m.Ingredients {
				if strings.Contains(strings.ToLower(ing.Name), "peanut") {
					t.Errorf("EXCLUSION FAIL: %s %q uses %s", day.Day, m.Name, ing.Name)
				}
			}
		}
	}
}
