package planner

import (
	"context"
	"errors"
	"time"

	"weekly-meal-planner/internal/llm"
	"weekly-meal-planner/internal/shared"
)

// caller wraps one generative call with its own deadline and records the
// call's metadata. Failed calls are never retried with the same input.
type caller struct {
	gen     llm.TextGenerator
	timeout time.Duration
}

func (c caller) call(ctx context.Context, agent, tier, userPrompt string) (string, shared.AgentMeta, error) {
	meta := shared.AgentMeta{AgentName: agent, Tier: tier}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.gen.GenerateContent(callCtx, systemPrompt, userPrompt)
	meta.Latency = time.Since(start)
	meta.Usage = resp.Usage

	if err != nil {
		meta.Outcome = shared.OutcomeFailed
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			meta.Outcome = shared.OutcomeTimeout
		}
		return "", meta, err
	}
	return resp.Content, meta, nil
}

// settle marks meta with the validation outcome.
func settle(meta shared.AgentMeta, err error) shared.AgentMeta {
	if err != nil {
		meta.Outcome = shared.OutcomeRejected
	} else {
		meta.Outcome = shared.OutcomeAccepted
	}
	return meta
}

// conforms checks a validated day against the profile: the meal count must
// match and every timing must be one the profile allows.
func conforms(day DayPlan, p UserNutritionProfile) error {
	if len(day.Meals) != p.MealsPerDayTotal() {
		return reject("%s has %d meals, want %d", day.Day, len(day.Meals), p.MealsPerDayTotal())
	}
	for _, m := range day.Meals {
		if !p.AllowsTiming(m.MealTiming) {
			return reject("%s uses timing %s outside the profile", day.Day, m.MealTiming)
		}
	}
	return nil
}
