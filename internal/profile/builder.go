package profile

import (
	"context"
	"fmt"
	"strings"

	"weekly-meal-planner/internal/planner"
)

// Default daily targets used when the user has no nutrition goal.
const (
	DefaultCalories = 2000
	DefaultProteinG = 150
	DefaultCarbsG   = 250
	DefaultFatsG    = 67
)

// Builder assembles generation profiles.
type Builder struct {
	source Source
}

// NewBuilder creates a Builder reading from source.
func NewBuilder(source Source) *Builder {
	return &Builder{source: source}
}

// Build merges the user's questionnaire, latest goal and the request config
// into one profile. Store errors are returned; absent records are not.
func (b *Builder) Build(ctx context.Context, userID string, cfg planner.MealPlanConfig) (planner.UserNutritionProfile, error) {
	user, err := b.source.GetUser(ctx, userID)
	if err != nil {
		return planner.UserNutritionProfile{}, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return planner.UserNutritionProfile{}, ErrUserNotFound
	}

	q, err := b.source.LatestQuestionnaire(ctx, userID)
	if err != nil {
		return planner.UserNutritionProfile{}, fmt.Errorf("failed to load questionnaire: %w", err)
	}
	goal, err := b.source.LatestNutritionGoal(ctx, userID)
	if err != nil {
		return planner.UserNutritionProfile{}, fmt.Errorf("failed to load nutrition goal: %w", err)
	}

	p := planner.UserNutritionProfile{
		UserID:         user.ID,
		Targets:        Targets(goal),
		MealsPerDay:    cfg.MealsPerDay,
		SnacksPerDay:   cfg.SnacksPerDay,
		CookingTime:    CookingTimeLabel(cfg.MealsPerDay),
		MaxPrepMinutes: cfg.MaxPrepMinutes,
		MealTimings:    planner.DeriveMealTimings(cfg.MealsPerDay, cfg.SnacksPerDay),
	}
	if q != nil {
		p.DietaryPreferences = q.DietaryPreferences
		p.ExcludedIngredients = q.ExcludedIngredients
		p.Allergies = q.Allergies
	}
	p.DietaryPreferences = mergeUnique(p.DietaryPreferences, cfg.DietaryPreferences)
	p.ExcludedIngredients = mergeUnique(p.ExcludedIngredients, cfg.ExcludedIngredients)
	return p, nil
}

// Targets returns the goal's targets, defaulting each missing value.
func Targets(goal *NutritionGoal) planner.NutritionTargets {
	t := planner.NutritionTargets{
		Calories: DefaultCalories,
		ProteinG: DefaultProteinG,
		CarbsG:   DefaultCarbsG,
		FatsG:    DefaultFatsG,
	}
	if goal == nil {
		return t
	}
	if goal.DailyCalories > 0 {
		t.Calories = goal.DailyCalories
	}
	if goal.DailyProteinG > 0 {
		t.ProteinG = goal.DailyProteinG
	}
	if goal.DailyCarbsG > 0 {
		t.CarbsG = goal.DailyCarbsG
	}
	if goal.DailyFatsG > 0 {
		t.FatsG = goal.DailyFatsG
	}
	return t
}

// CookingTimeLabel is a coarse hint for the prompt; it is not enforced.
func CookingTimeLabel(mealsPerDay int) string {
	switch {
	case mealsPerDay <= 2:
		return "minimal"
	case mealsPerDay == 3:
		return "moderate"
	default:
		return "extensive"
	}
}

func mergeUnique(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	var out []string
	for _, s := range append(append([]string{}, base...), extra...) {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
