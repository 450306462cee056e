package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"weekly-meal-planner/internal/config"
	"weekly-meal-planner/internal/database"
	"weekly-meal-planner/internal/llm"
	"weekly-meal-planner/internal/planner"
	"weekly-meal-planner/internal/profile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockTextGenerator answers every prompt with the same content.
type MockTextGenerator struct {
	Content string
	Err     error
	Calls   int
}

func (m *MockTextGenerator) GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (llm.ContentResponse, error) {
	m.Calls++
	if m.Err != nil {
		return llm.ContentResponse{}, m.Err
	}
	return llm.ContentResponse{Content: m.Content}, nil
}

// wednesday is 2024-03-06; the coming Sunday is 2024-03-10.
var wednesday = time.Date(2024, 3, 6, 15, 30, 0, 0, time.UTC)

func setupApp(t *testing.T, gen llm.TextGenerator) *App {
	t.Helper()
	db, err := database.NewInMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	a := NewApp(db, gen, &config.Config{GenerationTimeout: time.Second, ChunkConcurrency: 1}, nil)
	a.now = func() time.Time { return wednesday }
	n := 0
	a.newID = func() string { n++; return fmt.Sprintf("id-%04d", n) }

	require.NoError(t, a.EnsureUser(context.Background(), "user-1", "Ana"))
	return a
}

func TestCreatePlanWithoutBackend(t *testing.T) {
	ctx := context.Background()
	a := setupApp(t, nil)

	plan, err := a.CreatePlan(ctx, "user-1", planner.MealPlanConfig{MealsPerDay: 3})
	require.NoError(t, err)
	assert.Equal(t, planner.TierDeterministic, plan.GenerationTier)
	assert.Equal(t, "2024-03-10", plan.WeekStartDate.Format(database.DateLayout))
	assert.True(t, plan.IsActive)
	assert.Equal(t, 2000.0, plan.Targets.Calories)

	view, err := a.GetWeeklyPlan(ctx, "user-1", "")
	require.NoError(t, err)
	require.Len(t, view, 7)
	for _, day := range planner.DayNames {
		meals := view[day]
		require.Len(t, meals, 3, day)
		for _, timing := range []planner.MealTiming{planner.Breakfast, planner.Lunch, planner.Dinner} {
			require.Len(t, meals[timing], 1, "%s %s", day, timing)
			assert.Equal(t, 667.0, meals[timing][0].Calories)
		}
	}
}

func TestCreatePlanErrors(t *testing.T) {
	ctx := context.Background()
	a := setupApp(t, nil)

	t.Run("InvalidConfig", func(t *testing.T) {
		_, err := a.CreatePlan(ctx, "user-1", planner.MealPlanConfig{MealsPerDay: 0})
		assert.ErrorIs(t, err, ErrInvalidConfig)

		_, err = a.CreatePlan(ctx, "user-1", planner.MealPlanConfig{MealsPerDay: 3, WeekStartDate: "next week"})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := a.CreatePlan(ctx, "nobody", planner.MealPlanConfig{MealsPerDay: 3})
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("NoPlanYet", func(t *testing.T) {
		_, err := a.GetWeeklyPlan(ctx, "user-1", "")
		assert.ErrorIs(t, err, ErrPlanNotFound)
	})
}

func TestCreatePlanUsesProfile(t *testing.T) {
	ctx := context.Background()
	a := setupApp(t, nil)

	_, err := a.SetNutritionGoal(ctx, "user-1", profile.NutritionGoal{DailyCalories: 2400})
	require.NoError(t, err)
	_, err = a.UpdateQuestionnaire(ctx, "user-1", profile.Questionnaire{Allergies: []string{"peanut"}})
	require.NoError(t, err)

	_, err = a.SetNutritionGoal(ctx, "user-1", profile.NutritionGoal{DailyCalories: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = a.SetNutritionGoal(ctx, "ghost", profile.NutritionGoal{DailyCalories: 1800})
	assert.ErrorIs(t, err, ErrUserNotFound)

	plan, err := a.CreatePlan(ctx, "user-1", planner.MealPlanConfig{
		MealsPerDay: 2, SnacksPerDay: 1, WeekStartDate: "2024-04-07",
	})
	require.NoError(t, err)
	assert.Equal(t, 2400.0, plan.Targets.Calories)
	assert.Equal(t, "2024-04-07", plan.WeekStartDate.Format(database.DateLayout))

	view, err := a.GetWeeklyPlan(ctx, "user-1", plan.ID)
	require.NoError(t, err)
	monday := view["Monday"]
	assert.Len(t, monday[planner.Breakfast], 1)
	assert.Len(t, monday[planner.Lunch], 1)
	assert.Len(t, monday[planner.MorningSnack], 1)
	assert.Equal(t, 800.0, monday[planner.Lunch][0].Calories)
}

func TestCreatePlanDeactivatesPrevious(t *testing.T) {
	ctx := context.Background()
	a := setupApp(t, nil)

	first, err := a.CreatePlan(ctx, "user-1", planner.MealPlanConfig{MealsPerDay: 3})
	require.NoError(t, err)
	second, err := a.CreatePlan(ctx, "user-1", planner.MealPlanConfig{MealsPerDay: 2})
	require.NoError(t, err)

	active, err := a.GetPlan(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	old, err := a.GetPlan(ctx, "user-1", first.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)
}

func TestCreatePlanRecordsRejectedCalls(t *testing.T) {
	ctx := context.Background()
	gen := &MockTextGenerator{Content: `{"weekly_plan": [`}
	a := setupApp(t, gen)

	plan, err := a.CreatePlan(ctx, "user-1", planner.MealPlanConfig{MealsPerDay: 3})
	require.NoError(t, err)
	assert.Equal(t, planner.TierDeterministic, plan.GenerationTier)
	assert.Equal(t, 8, gen.Calls, "one bulk call and seven day calls")

	usage, err := a.DailyUsage(ctx, 1)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, 8, usage[0].TotalExecution)
	assert.Equal(t, 8, usage[0].Rejected)

	removed, err := a.CleanupMetrics(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(8), removed)
}

func TestReplaceMeal(t *testing.T) {
	ctx := context.Background()
	a := setupApp(t, nil)

	plan, err := a.CreatePlan(ctx, "user-1", planner.MealPlanConfig{MealsPerDay: 3})
	require.NoError(t, err)

	before, err := a.GetWeeklyPlan(ctx, "user-1", plan.ID)
	require.NoError(t, err)
	current := before["Tuesday"][planner.Lunch][0]

	replaced, err := a.ReplaceMeal(ctx, "user-1", plan.ID, 2, planner.Lunch, 1, planner.ReplacementPreferences{})
	require.NoError(t, err)
	assert.NotEqual(t, current.Name, replaced.Name)
	assert.Equal(t, planner.Lunch, replaced.MealTiming)
	assert.Equal(t, current.Calories, replaced.Calories)
	assert.Equal(t, current.ProteinG, replaced.ProteinG)
	assert.Equal(t, current.CarbsG, replaced.CarbsG)
	assert.Equal(t, current.FatsG, replaced.FatsG)

	after, err := a.GetWeeklyPlan(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Equal(t, replaced.Name, after["Tuesday"][planner.Lunch][0].Name)
	assert.Equal(t, before["Monday"], after["Monday"])

	_, err = a.plans.GetTemplate(ctx, current.ID)
	assert.NoError(t, err, "previous template is kept")

	t.Run("UnknownSlot", func(t *testing.T) {
		_, err := a.ReplaceMeal(ctx, "user-1", plan.ID, 2, planner.Lunch, 2, planner.ReplacementPreferences{})
		assert.ErrorIs(t, err, ErrScheduleEntryNotFound)

		_, err = a.ReplaceMeal(ctx, "user-1", plan.ID, 2, planner.AfternoonSnack, 1, planner.ReplacementPreferences{})
		assert.ErrorIs(t, err, ErrScheduleEntryNotFound)
	})

	t.Run("OtherUsersPlan", func(t *testing.T) {
		require.NoError(t, a.EnsureUser(ctx, "user-2", ""))
		_, err := a.ReplaceMeal(ctx, "user-2", plan.ID, 2, planner.Lunch, 1, planner.ReplacementPreferences{})
		assert.ErrorIs(t, err, ErrPlanNotFound)
	})

	t.Run("InvalidInput", func(t *testing.T) {
		_, err := a.ReplaceMeal(ctx, "user-1", plan.ID, 7, planner.Lunch, 1, planner.ReplacementPreferences{})
		assert.ErrorIs(t, err, ErrInvalidConfig)
		_, err = a.ReplaceMeal(ctx, "user-1", plan.ID, 1, "BRUNCH", 1, planner.ReplacementPreferences{})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestReplaceMealWithGenerator(t *testing.T) {
	ctx := context.Background()
	gen := &MockTextGenerator{Err: errors.New("backend down")}
	a := setupApp(t, gen)

	plan, err := a.CreatePlan(ctx, "user-1", planner.MealPlanConfig{MealsPerDay: 3})
	require.NoError(t, err)

	gen.Err = nil
	gen.Content = `{"name": "Miso Salmon Bowl", "meal_timing": "DINNER", "calories": 610, "protein_g": 42}`
	replaced, err := a.ReplaceMeal(ctx, "user-1", "", 0, planner.Dinner, 1, planner.ReplacementPreferences{Note: "more fish"})
	require.NoError(t, err)
	assert.Equal(t, "Miso Salmon Bowl", replaced.Name)
	assert.Equal(t, 610.0, replaced.Calories)
	assert.Equal(t, plan.ID, replaced.PlanID)
}

func TestReplaceMealHonoursStoredAllergies(t *testing.T) {
	ctx := context.Background()
	gen := &MockTextGenerator{Err: errors.New("backend down")}
	a := setupApp(t, gen)

	_, err := a.UpdateQuestionnaire(ctx, "user-1", profile.Questionnaire{
		Allergies:           []string{"dairy"},
		ExcludedIngredients: []string{"banana"},
	})
	require.NoError(t, err)
	plan, err := a.CreatePlan(ctx, "user-1", planner.MealPlanConfig{MealsPerDay: 3})
	require.NoError(t, err)

	assertSafe := func(t *testing.T, m *planner.MealTemplate) {
		t.Helper()
		for _, al := range m.Allergens {
			assert.NotEqual(t, "dairy", strings.ToLower(al), m.Name)
		}
		for _, ing := range m.Ingredients {
			assert.NotContains(t, strings.ToLower(ing.Name), "banana", m.Name)
		}
	}

	t.Run("Catalog", func(t *testing.T) {
		for day := range planner.DayNames {
			replaced, err := a.ReplaceMeal(ctx, "user-1", plan.ID, day, planner.Breakfast, 1, planner.ReplacementPreferences{})
			require.NoError(t, err)
			assertSafe(t, replaced)
		}
	})

	t.Run("GeneratedMealWithAllergenIsRejected", func(t *testing.T) {
		gen.Err = nil
		gen.Content = `{"name": "Cheese Omelette", "meal_timing": "BREAKFAST", "calories": 480, "allergens": ["Dairy", "eggs"]}`
		replaced, err := a.ReplaceMeal(ctx, "user-1", plan.ID, 3, planner.Breakfast, 1, planner.ReplacementPreferences{})
		require.NoError(t, err)
		assert.NotEqual(t, "Cheese Omelette", replaced.Name)
		assertSafe(t, replaced)
	})
}

func TestShoppingList(t *testing.T) {
	ctx := context.Background()
	a := setupApp(t, nil)

	plan, err := a.CreatePlan(ctx, "user-1", planner.MealPlanConfig{MealsPerDay: 3})
	require.NoError(t, err)

	first, err := a.GenerateShoppingList(ctx, "user-1", plan.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, plan.WeekStartDate, first.WeekStartDate)
	assert.NotEmpty(t, first.Categories)
	assert.Greater(t, first.TotalCost, 0.0)

	var sum float64
	for _, c := range first.Categories {
		sum += c.Subtotal
	}
	assert.InDelta(t, first.TotalCost, sum, 0.05)

	second, err := a.GenerateShoppingList(ctx, "user-1", "", time.Time{})
	require.NoError(t, err)

	stored, err := a.GetShoppingList(ctx, "user-1", plan.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, second.ID, stored.ID)
	assert.Equal(t, len(first.Items()), len(stored.Items()))

	item := stored.Items()[0]
	require.NoError(t, a.SetItemPurchased(ctx, "user-1", item.ID, true))
	assert.ErrorIs(t, a.SetItemPurchased(ctx, "user-1", first.Items()[0].ID, true), ErrItemNotFound,
		"items of the replaced snapshot are gone")

	_, err = a.GetShoppingList(ctx, "user-1", plan.ID, plan.WeekStartDate.AddDate(0, 0, 7))
	assert.ErrorIs(t, err, ErrListNotFound)
}

func TestComingSunday(t *testing.T) {
	assert.Equal(t, "2024-03-10", ComingSunday(wednesday).Format(database.DateLayout))
	assert.Equal(t, "2024-03-10", ComingSunday(time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)).Format(database.DateLayout))
	assert.Equal(t, "2024-03-17", ComingSunday(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)).Format(database.DateLayout))
}
