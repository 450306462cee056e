package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"weekly-meal-planner/internal/llm"
	"weekly-meal-planner/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockTextGenerator answers prompts with a function of the user prompt.
type MockTextGenerator struct {
	mu      sync.Mutex
	Respond func(userPrompt string) (string, error)
	Prompts []string
}

func (m *MockTextGenerator) GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (llm.ContentResponse, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, userPrompt)
	m.mu.Unlock()

	content, err := m.Respond(userPrompt)
	if err != nil {
		return llm.ContentResponse{}, err
	}
	return llm.ContentResponse{
		Content: content,
		Usage:   shared.TokenUsage{PromptTokens: 10, CompletionTokens: 20, Model: "mock"},
	}, nil
}

func (m *MockTextGenerator) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

func testProfile(mealsPerDay, snacksPerDay int) UserNutritionProfile {
	return UserNutritionProfile{
		UserID:       "user-1",
		Targets:      NutritionTargets{Calories: 2000, ProteinG: 150, CarbsG: 250, FatsG: 67},
		MealsPerDay:  mealsPerDay,
		SnacksPerDay: snacksPerDay,
		CookingTime:  "moderate",
		MealTimings:  DeriveMealTimings(mealsPerDay, snacksPerDay),
	}
}

func mealJSON(name string, timing MealTiming, calories float64) map[string]any {
	return map[string]any{
		"name":        name,
		"meal_timing": string(timing),
		"calories":    calories,
		"protein_g":   30,
		"carbs_g":     40,
		"fats_g":      10,
		"ingredients": []map[string]any{{"name": "Rice", "quantity": 100, "unit": "g", "category": "Grains"}},
	}
}

func dayJSON(p UserNutritionProfile, dayIndex int, prefix string) map[string]any {
	var meals []map[string]any
	for i, t := range p.SlotTimings() {
		meals = append(meals, mealJSON(fmt.Sprintf("%s %s %d", prefix, DayNames[dayIndex], i), t, 500))
	}
	return map[string]any{"day": DayNames[dayIndex], "day_index": dayIndex, "meals": meals}
}

func planJSON(t *testing.T, p UserNutritionProfile) string {
	t.Helper()
	var days []map[string]any
	for i := range DayNames {
		days = append(days, dayJSON(p, i, "AI"))
	}
	b, err := json.Marshal(map[string]any{
		"weekly_plan":           days,
		"shopping_tips":         []string{"buy in bulk"},
		"meal_prep_suggestions": []string{"prep on sunday"},
	})
	require.NoError(t, err)
	return string(b)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func assertPlanShape(t *testing.T, plan GeneratedMealPlan, p UserNutritionProfile) {
	t.Helper()
	require.Len(t, plan.WeeklyPlan, 7)
	for i, day := range plan.WeeklyPlan {
		assert.Equal(t, i, day.DayIndex)
		assert.Equal(t, DayNames[i], day.Day)
		assert.Len(t, day.Meals, p.MealsPerDayTotal(), "meals on %s", day.Day)
		for _, m := range day.Meals {
			assert.NotEmpty(t, m.Name)
			assert.True(t, p.AllowsTiming(m.MealTiming), "timing %s not allowed", m.MealTiming)
			assert.GreaterOrEqual(t, m.Calories, 0.0)
		}
	}
}

func TestDeriveMealTimings(t *testing.T) {
	tests := []struct {
		meals, snacks int
		want          []MealTiming
	}{
		{1, 0, []MealTiming{Breakfast}},
		{3, 0, []MealTiming{Breakfast, Lunch, Dinner}},
		{5, 0, []MealTiming{Breakfast, Lunch, Dinner}},
		{2, 1, []MealTiming{Breakfast, MorningSnack, Lunch}},
		{3, 4, []MealTiming{Breakfast, MorningSnack, Lunch, AfternoonSnack, Dinner, EveningSnack}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d+%d", tt.meals, tt.snacks), func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveMealTimings(tt.meals, tt.snacks))
		})
	}
}

func TestSlotTimingsCycleAboveThree(t *testing.T) {
	p := testProfile(4, 0)
	assert.Equal(t, []MealTiming{Breakfast, Breakfast, Lunch, Dinner}, p.SlotTimings())
	assert.Len(t, testProfile(3, 4).SlotTimings(), 7)
}

func TestOrchestratorBulkSuccess(t *testing.T) {
	p := testProfile(3, 1)
	gen := &MockTextGenerator{Respond: func(prompt string) (string, error) {
		return "```json\n" + planJSON(t, p) + "\n```", nil
	}}

	res := NewOrchestrator(gen, GenerationConfig{CallTimeout: time.Second}).Generate(context.Background(), p)

	assert.Equal(t, TierBulk, res.Tier)
	assert.Empty(t, res.DegradedDays)
	assert.Equal(t, 1, gen.calls())
	assertPlanShape(t, res.Plan, p)
	assert.Equal(t, []string{"buy in bulk"}, res.Plan.ShoppingTips)
	require.Len(t, res.Metas, 1)
	assert.Equal(t, shared.OutcomeAccepted, res.Metas[0].Outcome)
	assert.Equal(t, 10, res.Metas[0].Usage.PromptTokens)
	// 4 meals of 500 kcal every day
	assert.Equal(t, 2000.0, res.Plan.WeeklyNutritionSummary.AvgDailyCalories)
}

func TestOrchestratorFallsBackToChunked(t *testing.T) {
	p := testProfile(3, 0)
	gen := &MockTextGenerator{Respond: func(prompt string) (string, error) {
		if strings.HasPrefix(prompt, "Create a 7-day meal plan") {
			// truncated bulk answer
			return `{"weekly_plan": [{"day": "Sunday", "meals": [`, nil
		}
		for i, name := range DayNames {
			if strings.Contains(prompt, "meals for "+name) {
				if name == "Wednesday" {
					return "", errors.New("backend exploded")
				}
				return mustJSON(t, dayJSON(p, i, "Chunk")), nil
			}
		}
		return "", errors.New("unexpected prompt")
	}}

	res := NewOrchestrator(gen, GenerationConfig{ChunkConcurrency: 3}).Generate(context.Background(), p)

	assert.Equal(t, TierChunked, res.Tier)
	assert.Equal(t, []int{3}, res.DegradedDays)
	assert.Equal(t, 8, gen.calls())
	assertPlanShape(t, res.Plan, p)

	assert.True(t, strings.HasPrefix(res.Plan.WeeklyPlan[2].Meals[0].Name, "Chunk"))
	assert.Equal(t, FallbackDay(p, 3), res.Plan.WeeklyPlan[3])

	require.Len(t, res.Metas, 8)
	assert.Equal(t, shared.OutcomeRejected, res.Metas[0].Outcome)
	assert.Equal(t, shared.OutcomeFailed, res.Metas[1+3].Outcome)
}

func TestOrchestratorChunkedRejectsDayWithWrongMealCount(t *testing.T) {
	p := testProfile(3, 0)
	gen := &MockTextGenerator{Respond: func(prompt string) (string, error) {
		if strings.HasPrefix(prompt, "Create a 7-day meal plan") {
			return `{"weekly_plan": []}`, nil
		}
		for i, name := range DayNames {
			if strings.Contains(prompt, "meals for "+name) {
				d := dayJSON(p, i, "Chunk")
				if i == 0 {
					d["meals"] = d["meals"].([]map[string]any)[:2]
				}
				return mustJSON(t, d), nil
			}
		}
		return "", errors.New("unexpected prompt")
	}}

	res := NewOrchestrator(gen, GenerationConfig{}).Generate(context.Background(), p)
	assert.Equal(t, TierChunked, res.Tier)
	assert.Equal(t, []int{0}, res.DegradedDays)
	assertPlanShape(t, res.Plan, p)
}

func TestOrchestratorTimeoutEscalates(t *testing.T) {
	p := testProfile(3, 0)
	gen := &MockTextGenerator{}
	slow := &slowGenerator{inner: gen}
	gen.Respond = func(string) (string, error) { return planJSON(t, p), nil }

	res := NewOrchestrator(slow, GenerationConfig{CallTimeout: 10 * time.Millisecond}).Generate(context.Background(), p)

	assert.Equal(t, TierDeterministic, res.Tier)
	assertPlanShape(t, res.Plan, p)
	require.Len(t, res.Metas, 8)
	for _, m := range res.Metas {
		assert.Equal(t, shared.OutcomeTimeout, m.Outcome)
	}
}

// slowGenerator waits for the context to expire before answering.
type slowGenerator struct {
	inner llm.TextGenerator
}

func (s *slowGenerator) GenerateContent(ctx context.Context, system, user string) (llm.ContentResponse, error) {
	<-ctx.Done()
	return llm.ContentResponse{}, ctx.Err()
}

func TestOrchestratorWithoutBackend(t *testing.T) {
	p := testProfile(3, 0)
	res := NewOrchestrator(nil, GenerationConfig{}).Generate(context.Background(), p)

	assert.Equal(t, TierDeterministic, res.Tier)
	assert.Empty(t, res.Metas)
	assertPlanShape(t, res.Plan, p)

	total := 0
	for _, day := range res.Plan.WeeklyPlan {
		for _, m := range day.Meals {
			total++
			assert.Equal(t, 667.0, m.Calories)
		}
	}
	assert.Equal(t, 21, total)
	assert.Equal(t, 100.0, res.Plan.WeeklyNutritionSummary.GoalAdherencePercentage)
}

type rejectingStrategy struct{}

func (rejectingStrategy) Name() string { return "always-rejects" }

func (rejectingStrategy) Generate(context.Context, UserNutritionProfile) (StrategyResult, error) {
	return StrategyResult{}, fmt.Errorf("%w: nope", ErrRejected)
}

func TestOrchestratorAllStrategiesRejected(t *testing.T) {
	p := testProfile(2, 2)
	res := NewOrchestratorWithStrategies(nil, rejectingStrategy{}).Generate(context.Background(), p)
	assert.Equal(t, TierDeterministic, res.Tier)
	assertPlanShape(t, res.Plan, p)
}

func TestFallbackDayIsDeterministic(t *testing.T) {
	p := testProfile(3, 2)
	for i := range DayNames {
		assert.Equal(t, FallbackDay(p, i), FallbackDay(p, i))
	}
	assert.NotEqual(t, FallbackDay(p, 0).Meals[0].Name, FallbackDay(p, 1).Meals[0].Name)
	assert.Equal(t, catalog[Breakfast][0].name, FallbackDay(p, 0).Meals[0].Name)
	assert.Equal(t, catalog[Breakfast][1].name, FallbackDay(p, 5).Meals[0].Name)
}

func TestFallbackDaySkipsExcludedIngredients(t *testing.T) {
	p := testProfile(1, 0)
	p.ExcludedIngredients = []string{"yogurt"}
	p.Allergies = []string{"eggs"}
	for i := range DayNames {
		name := FallbackDay(p, i).Meals[0].Name
		assert.NotEqual(t, "Greek Yogurt Parfait", name)
		assert.NotEqual(t, "Veggie Scrambled Eggs", name)
	}
}

func TestBuildScheduleDeduplicatesByName(t *testing.T) {
	p := testProfile(4, 0)
	plan := FallbackPlan(p)

	n := 0
	newID := func() string { n++; return fmt.Sprintf("id-%d", n) }
	templates, entries := BuildSchedule("plan-1", plan, newID)

	assert.Len(t, entries, 28)
	names := map[string]bool{}
	for _, tmpl := range templates {
		assert.False(t, names[tmpl.Name], "duplicate template %s", tmpl.Name)
		names[tmpl.Name] = true
		assert.Equal(t, "plan-1", tmpl.PlanID)
	}

	ids := map[string]bool{}
	for _, tmpl := range templates {
		ids[tmpl.ID] = true
	}
	for _, e := range entries {
		assert.True(t, ids[e.TemplateID])
	}

	// day 0 has two breakfasts: orders 1 and 2
	var orders []int
	for _, e := range entries {
		if e.DayOfWeek == 0 && e.MealTiming == Breakfast {
			orders = append(orders, e.MealOrder)
		}
	}
	assert.Equal(t, []int{1, 2}, orders)

	// a second pass is independent of the first
	templates2, _ := BuildSchedule("plan-2", plan, newID)
	assert.Len(t, templates2, len(templates))
	assert.NotEqual(t, templates[0].ID, templates2[0].ID)
}

func TestBuildWeeklyView(t *testing.T) {
	meals := []ScheduledMeal{
		{Entry: ScheduleEntry{DayOfWeek: 1, MealTiming: Lunch, MealOrder: 1, PortionMultiplier: 1.5}, Template: MealTemplate{ID: "a", GeneratedMeal: GeneratedMeal{Name: "Soup"}}},
		{Entry: ScheduleEntry{DayOfWeek: 1, MealTiming: Lunch, MealOrder: 2, PortionMultiplier: 1}, Template: MealTemplate{ID: "b", GeneratedMeal: GeneratedMeal{Name: "Bread"}}},
	}
	view := BuildWeeklyView(meals)
	require.Len(t, view["Monday"][Lunch], 2)
	assert.Equal(t, 1.5, view["Monday"][Lunch][0].PortionMultiplier)

	b, err := json.Marshal(view)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), `{"Monday":{"LUNCH":[`))
}

func TestSummarize(t *testing.T) {
	targets := NutritionTargets{Calories: 2000, ProteinG: 150}
	onTarget := func(scale float64) DayPlan {
		return DayPlan{Meals: []GeneratedMeal{
			{Name: "a", Calories: 1000 * scale, ProteinG: 75 * scale},
			{Name: "b", Calories: 1000 * scale, ProteinG: 75 * scale},
		}}
	}

	t.Run("ExactlyOnTarget", func(t *testing.T) {
		var plan GeneratedMealPlan
		for range DayNames {
			plan.WeeklyPlan = append(plan.WeeklyPlan, onTarget(1))
		}
		s := Summarize(plan, targets)
		assert.Equal(t, 2000.0, s.AvgDailyCalories)
		assert.Equal(t, 100.0, s.GoalAdherencePercentage)
	})

	t.Run("OvershootIsCapped", func(t *testing.T) {
		var plan GeneratedMealPlan
		plan.WeeklyPlan = append(plan.WeeklyPlan, onTarget(1.5))
		for range 6 {
			plan.WeeklyPlan = append(plan.WeeklyPlan, onTarget(1))
		}
		s := Summarize(plan, targets)
		assert.LessOrEqual(t, s.GoalAdherencePercentage, 100.0)
	})

	t.Run("AlwaysDividesBySeven", func(t *testing.T) {
		plan := GeneratedMealPlan{WeeklyPlan: []DayPlan{onTarget(1)}}
		s := Summarize(plan, targets)
		assert.InDelta(t, 2000.0/7, s.AvgDailyCalories, 0.05)
	})

	t.Run("PortionMultiplierScales", func(t *testing.T) {
		plan := GeneratedMealPlan{WeeklyPlan: []DayPlan{{Meals: []GeneratedMeal{{Calories: 700, PortionMultiplier: 2}}}}}
		assert.Equal(t, 200.0, Summarize(plan, targets).AvgDailyCalories)
	})

	t.Run("ZeroTargets", func(t *testing.T) {
		plan := GeneratedMealPlan{WeeklyPlan: []DayPlan{onTarget(1)}}
		assert.Equal(t, 0.0, Summarize(plan, NutritionTargets{}).GoalAdherencePercentage)
	})
}

func TestReplacerFallbackPreservesMacros(t *testing.T) {
	current := GeneratedMeal{
		Name: "Turkey Chili", MealTiming: Dinner,
		Calories: 612, ProteinG: 48.5, CarbsG: 55, FatsG: 18.2,
	}

	res := NewReplacer(nil, GenerationConfig{}).Replace(context.Background(), current, ReplacementPreferences{}, NutritionTargets{})

	assert.Equal(t, TierDeterministic, res.Tier)
	assert.Equal(t, Dinner, res.Meal.MealTiming)
	assert.NotEqual(t, current.Name, res.Meal.Name)
	assert.Equal(t, current.Calories, res.Meal.Calories)
	assert.Equal(t, current.ProteinG, res.Meal.ProteinG)
	assert.Equal(t, current.CarbsG, res.Meal.CarbsG)
	assert.Equal(t, current.FatsG, res.Meal.FatsG)
}

func TestReplacerSkipsCurrentCatalogMeal(t *testing.T) {
	current := GeneratedMeal{Name: catalog[Lunch][0].name, MealTiming: Lunch}
	meal := FallbackReplacement(current, ReplacementPreferences{})
	assert.Equal(t, catalog[Lunch][1].name, meal.Name)
}

func TestReplacerGenerated(t *testing.T) {
	current := GeneratedMeal{Name: "Oatmeal", MealTiming: Breakfast, Calories: 400}
	gen := &MockTextGenerator{Respond: func(prompt string) (string, error) {
		assert.Contains(t, prompt, "no dairy")
		return `{"meal": {"name": "Chia Pudding", "meal_timing": "lunch", "calories": 410}}`, nil
	}}

	res := NewReplacer(gen, GenerationConfig{}).Replace(context.Background(), current,
		ReplacementPreferences{Note: "no dairy"}, NutritionTargets{Calories: 2000})

	assert.Equal(t, TierSingleMeal, res.Tier)
	assert.Equal(t, "Chia Pudding", res.Meal.Name)
	assert.Equal(t, Breakfast, res.Meal.MealTiming)
	require.Len(t, res.Metas, 1)
	assert.Equal(t, shared.OutcomeAccepted, res.Metas[0].Outcome)
}

func TestReplacerInvalidResponseFallsBack(t *testing.T) {
	current := GeneratedMeal{Name: "Oatmeal", MealTiming: Breakfast, Calories: 400, ProteinG: 12}
	gen := &MockTextGenerator{Respond: func(string) (string, error) {
		return `{"name": "", "meal_timing": "BREAKFAST"}`, nil
	}}

	res := NewReplacer(gen, GenerationConfig{}).Replace(context.Background(), current, ReplacementPreferences{}, NutritionTargets{})
	assert.Equal(t, TierDeterministic, res.Tier)
	assert.Equal(t, 400.0, res.Meal.Calories)
	assert.Equal(t, 12.0, res.Meal.ProteinG)
	require.Len(t, res.Metas, 1)
	assert.Equal(t, shared.OutcomeRejected, res.Metas[0].Outcome)
}

func TestReplacerRespectsAllergies(t *testing.T) {
	current := GeneratedMeal{Name: "Veggie Scrambled Eggs", MealTiming: Breakfast, Calories: 420}
	prefs := ReplacementPreferences{Allergies: []string{"Dairy"}}

	t.Run("Catalog", func(t *testing.T) {
		meal := FallbackReplacement(current, prefs)
		assert.NotEqual(t, "Greek Yogurt Parfait", meal.Name)
		assert.NotContains(t, meal.Allergens, "dairy")
		assert.Equal(t, 420.0, meal.Calories)
	})

	t.Run("GeneratedWithAllergen", func(t *testing.T) {
		gen := &MockTextGenerator{Respond: func(prompt string) (string, error) {
			assert.Contains(t, prompt, "allergic to: Dairy")
			return `{"name": "Yogurt Bowl", "meal_timing": "BREAKFAST", "calories": 400, "allergens": "dairy"}`, nil
		}}
		res := NewReplacer(gen, GenerationConfig{}).Replace(context.Background(), current, prefs, NutritionTargets{})
		assert.Equal(t, TierDeterministic, res.Tier)
		assert.NotContains(t, res.Meal.Allergens, "dairy")
		require.Len(t, res.Metas, 1)
		assert.Equal(t, shared.OutcomeRejected, res.Metas[0].Outcome)
	})
}

func TestReplacementPreferencesWithProfile(t *testing.T) {
	prefs := ReplacementPreferences{ExcludedIngredients: []string{"Tuna"}, Allergies: []string{"dairy"}}
	merged := prefs.WithProfile(UserNutritionProfile{
		ExcludedIngredients: []string{"tuna", "olives"},
		Allergies:           []string{"Dairy", "peanuts"},
	})
	assert.Equal(t, []string{"Tuna", "olives"}, merged.ExcludedIngredients)
	assert.Equal(t, []string{"dairy", "peanuts"}, merged.Allergies)
	assert.Equal(t, []string{"Tuna"}, prefs.ExcludedIngredients)
}
