package planner

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"weekly-meal-planner/internal/shared"
)

// StrategyResult is what one tier produced. Metas are returned even when
// the tier is rejected so failed calls still show up in telemetry.
type StrategyResult struct {
	Plan         GeneratedMealPlan
	DegradedDays []int
	Metas        []shared.AgentMeta
}

// Strategy is one rung of the generation ladder. Generate returns an error
// wrapping ErrRejected when the tier could not produce a valid plan.
type Strategy interface {
	Name() string
	Generate(ctx context.Context, p UserNutritionProfile) (StrategyResult, error)
}

// BulkStrategy asks for the whole week in a single call.
type BulkStrategy struct {
	caller caller
}

func (s *BulkStrategy) Name() string { return TierBulk }

func (s *BulkStrategy) Generate(ctx context.Context, p UserNutritionProfile) (StrategyResult, error) {
	prompt, err := buildBulkPrompt(p)
	if err != nil {
		return StrategyResult{}, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	content, meta, err := s.caller.call(ctx, "BulkPlanner", TierBulk, prompt)
	if err != nil {
		return StrategyResult{Metas: []shared.AgentMeta{meta}}, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	plan, err := ValidatePlan(content)
	if err == nil {
		for _, day := range plan.WeeklyPlan {
			if err = conforms(day, p); err != nil {
				break
			}
		}
	}
	meta = settle(meta, err)
	if err != nil {
		return StrategyResult{Metas: []shared.AgentMeta{meta}}, err
	}
	return StrategyResult{Plan: plan, Metas: []shared.AgentMeta{meta}}, nil
}

// ChunkedStrategy asks for each day separately. A day that fails is filled
// from the deterministic catalog; the other days keep generated content.
type ChunkedStrategy struct {
	caller      caller
	concurrency int
}

func (s *ChunkedStrategy) Name() string { return TierChunked }

func (s *ChunkedStrategy) Generate(ctx context.Context, p UserNutritionProfile) (StrategyResult, error) {
	days := make([]DayPlan, len(DayNames))
	metas := make([]shared.AgentMeta, len(DayNames))
	failed := make([]bool, len(DayNames))

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(max(1, s.concurrency))
	for i := range DayNames {
		g.Go(func() error {
			day, meta, err := s.generateDay(ctx, p, i)
			mu.Lock()
			defer mu.Unlock()
			metas[i] = meta
			if err != nil {
				failed[i] = true
				day = FallbackDay(p, i)
			}
			days[i] = day
			return nil
		})
	}
	_ = g.Wait()

	result := StrategyResult{Metas: metas}
	for i, f := range failed {
		if f {
			result.DegradedDays = append(result.DegradedDays, i)
		}
	}
	if len(result.DegradedDays) == len(DayNames) {
		return result, fmt.Errorf("%w: every day failed", ErrRejected)
	}

	result.Plan = GeneratedMealPlan{
		WeeklyPlan:          days,
		ShoppingTips:        fallbackShoppingTips,
		MealPrepSuggestions: fallbackPrepSuggestions,
	}
	return result, nil
}

func (s *ChunkedStrategy) generateDay(ctx context.Context, p UserNutritionProfile, dayIndex int) (DayPlan, shared.AgentMeta, error) {
	prompt, err := buildDayPrompt(p, dayIndex)
	if err != nil {
		return DayPlan{}, shared.AgentMeta{AgentName: "DayPlanner", Tier: TierChunked, Outcome: shared.OutcomeFailed}, err
	}

	content, meta, err := s.caller.call(ctx, "DayPlanner", TierChunked, prompt)
	if err != nil {
		return DayPlan{}, meta, err
	}

	day, err := ValidateDay(content, dayIndex)
	if err == nil {
		err = conforms(day, p)
	}
	return day, settle(meta, err), err
}

// DeterministicStrategy builds the plan from the fixed catalog. It never fails.
type DeterministicStrategy struct{}

func (DeterministicStrategy) Name() string { return TierDeterministic }

func (DeterministicStrategy) Generate(_ context.Context, p UserNutritionProfile) (StrategyResult, error) {
	return StrategyResult{Plan: FallbackPlan(p)}, nil
}
