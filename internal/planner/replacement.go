package planner

import (
	"context"
	"log/slog"
	"strings"

	"weekly-meal-planner/internal/llm"
	"weekly-meal-planner/internal/shared"
)

// TierSingleMeal tags replacements produced by one generative call.
const TierSingleMeal = "single_meal"

// ReplacementPreferences steer a single-meal swap.
type ReplacementPreferences struct {
	DietaryPreference   string   `json:"dietary_preference,omitempty" validate:"omitempty,max=40"`
	ExcludedIngredients []string `json:"excluded_ingredients,omitempty" validate:"omitempty,max=30,dive,required,max=60"`
	Allergies           []string `json:"allergies,omitempty" validate:"omitempty,max=30,dive,required,max=60"`
	Note                string   `json:"note,omitempty" validate:"omitempty,max=280"`
}

// WithProfile adds the profile's excluded ingredients and allergies to the
// request's own, dropping case-insensitive duplicates.
func (r ReplacementPreferences) WithProfile(p UserNutritionProfile) ReplacementPreferences {
	r.ExcludedIngredients = mergeFold(r.ExcludedIngredients, p.ExcludedIngredients)
	r.Allergies = mergeFold(r.Allergies, p.Allergies)
	return r
}

func mergeFold(base, extra []string) []string {
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

// ReplacementResult is the new meal plus how it was produced.
type ReplacementResult struct {
	Meal  GeneratedMeal
	Tier  string
	Metas []shared.AgentMeta
}

// Replacer produces a substitute for one scheduled meal. It has two tiers:
// one generative call, then a catalog meal with the original macros.
type Replacer struct {
	caller *caller
	logger *slog.Logger
}

// NewReplacer creates a Replacer. A nil generator means every replacement
// comes from the catalog.
func NewReplacer(gen llm.TextGenerator, cfg GenerationConfig) *Replacer {
	r := &Replacer{logger: cfg.Logger}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if gen != nil {
		r.caller = &caller{gen: gen, timeout: cfg.CallTimeout}
	}
	return r
}

// Replace returns a meal for the same timing as current. It never fails.
func (r *Replacer) Replace(ctx context.Context, current GeneratedMeal, prefs ReplacementPreferences, targets NutritionTargets) ReplacementResult {
	var metas []shared.AgentMeta

	if r.caller != nil {
		meal, meta, err := r.generate(ctx, current, prefs, targets)
		metas = append(metas, meta)
		if err == nil {
			return ReplacementResult{Meal: meal, Tier: TierSingleMeal, Metas: metas}
		}
		r.logger.Warn("meal replacement rejected, using catalog",
			"meal", current.Name,
			"timing", current.MealTiming,
			"error", err,
		)
	}

	return ReplacementResult{
		Meal:  FallbackReplacement(current, prefs),
		Tier:  TierDeterministic,
		Metas: metas,
	}
}

func (r *Replacer) generate(ctx context.Context, current GeneratedMeal, prefs ReplacementPreferences, targets NutritionTargets) (GeneratedMeal, shared.AgentMeta, error) {
	prompt, err := buildReplacementPrompt(replacementPromptData{
		Current:     current,
		Timing:      current.MealTiming,
		Preferences: prefs,
		Targets:     targets,
	})
	if err != nil {
		return GeneratedMeal{}, shared.AgentMeta{AgentName: "MealReplacer", Tier: TierSingleMeal, Outcome: shared.OutcomeFailed}, err
	}

	content, meta, err := r.caller.call(ctx, "MealReplacer", TierSingleMeal, prompt)
	if err != nil {
		return GeneratedMeal{}, meta, err
	}

	meal, err := ValidateMeal(content)
	if err == nil && strings.EqualFold(meal.Name, current.Name) {
		err = reject("replacement %q repeats the current meal", meal.Name)
	}
	if err == nil && conflicts(meal.Ingredients, meal.Allergens, prefs.ExcludedIngredients, prefs.Allergies) {
		err = reject("replacement %q uses an excluded ingredient or allergen", meal.Name)
	}
	meta = settle(meta, err)
	if err != nil {
		return GeneratedMeal{}, meta, err
	}

	// the slot keeps its timing whatever the model answered
	meal.MealTiming = current.MealTiming
	return meal, meta, nil
}

// FallbackReplacement picks the first catalog meal for the same timing that
// differs from current and avoids the excluded ingredients and allergens. Its macros are
// overwritten with the current meal's so plan totals do not move.
func FallbackReplacement(current GeneratedMeal, prefs ReplacementPreferences) GeneratedMeal {
	options := allowedCatalog(current.MealTiming, prefs.ExcludedIngredients, prefs.Allergies)
	if len(options) == 0 {
		// unknown timing: borrow from the closest kind of slot
		fallbackTiming := Lunch
		if current.MealTiming.IsSnack() {
			fallbackTiming = AfternoonSnack
		}
		options = allowedCatalog(fallbackTiming, prefs.ExcludedIngredients, prefs.Allergies)
	}

	chosen := options[0]
	for _, c := range options {
		if !strings.EqualFold(c.name, current.Name) {
			chosen = c
			break
		}
	}

	meal := chosen.toMeal(current.MealTiming)
	meal.Calories = current.Calories
	meal.ProteinG = current.ProteinG
	meal.CarbsG = current.CarbsG
	meal.FatsG = current.FatsG
	return meal
}
