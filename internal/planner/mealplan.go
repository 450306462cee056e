package planner

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"weekly-meal-planner/internal/shared"
)

// MealTiming is an enumerated daily meal slot.
type MealTiming string

const (
	Breakfast      MealTiming = "BREAKFAST"
	Lunch          MealTiming = "LUNCH"
	Dinner         MealTiming = "DINNER"
	MorningSnack   MealTiming = "MORNING_SNACK"
	AfternoonSnack MealTiming = "AFTERNOON_SNACK"
	EveningSnack   MealTiming = "EVENING_SNACK"
)

var (
	mainTimings  = []MealTiming{Breakfast, Lunch, Dinner}
	snackTimings = []MealTiming{MorningSnack, AfternoonSnack, EveningSnack}

	// dayOrder is the order in which timings occur during a day.
	dayOrder = map[MealTiming]int{
		Breakfast:      0,
		MorningSnack:   1,
		Lunch:          2,
		AfternoonSnack: 3,
		Dinner:         4,
		EveningSnack:   5,
	}
)

// Valid reports whether t is one of the known timings.
func (t MealTiming) Valid() bool {
	_, ok := dayOrder[t]
	return ok
}

// IsSnack reports whether t is a snack slot.
func (t MealTiming) IsSnack() bool {
	return t == MorningSnack || t == AfternoonSnack || t == EveningSnack
}

// ParseMealTiming normalizes s (case and surrounding spaces) into a MealTiming.
func ParseMealTiming(s string) (MealTiming, bool) {
	t := MealTiming(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Valid()
}

// DeriveMealTimings returns the distinct timings a day may contain:
// BREAKFAST, LUNCH and DINNER for the first three meals, then one snack
// timing per snack up to three. Counts above three add no new timings.
func DeriveMealTimings(mealsPerDay, snacksPerDay int) []MealTiming {
	timings := make([]MealTiming, 0, 6)
	timings = append(timings, mainTimings[:clamp(mealsPerDay, 0, len(mainTimings))]...)
	timings = append(timings, snackTimings[:clamp(snacksPerDay, 0, len(snackTimings))]...)
	sortByDayOrder(timings)
	return timings
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// DayNames holds the canonical day names indexed by day_index (0=Sunday).
var DayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// DayIndex returns the day_index of a canonical day name, case-insensitively.
func DayIndex(name string) (int, bool) {
	name = strings.TrimSpace(name)
	for i, d := range DayNames {
		if strings.EqualFold(d, name) {
			return i, true
		}
	}
	return 0, false
}

// Ingredient is one line of a meal's ingredient list.
type Ingredient struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Category string  `json:"category"`
}

// Instruction is one preparation step.
type Instruction struct {
	Step int    `json:"step"`
	Text string `json:"text"`
}

// GeneratedMeal is a single meal as produced by a generation tier.
type GeneratedMeal struct {
	Name              string        `json:"name"`
	Description       string        `json:"description"`
	MealTiming        MealTiming    `json:"meal_timing"`
	DietaryCategory   string        `json:"dietary_category"`
	PrepTimeMinutes   int           `json:"prep_time_minutes"`
	DifficultyLevel   int           `json:"difficulty_level"`
	Calories          float64       `json:"calories"`
	ProteinG          float64       `json:"protein_g"`
	CarbsG            float64       `json:"carbs_g"`
	FatsG             float64       `json:"fats_g"`
	FiberG            float64       `json:"fiber_g"`
	SugarG            float64       `json:"sugar_g"`
	SodiumMg          float64       `json:"sodium_mg"`
	Ingredients       []Ingredient  `json:"ingredients"`
	Instructions      []Instruction `json:"instructions"`
	Allergens         []string      `json:"allergens"`
	ImageURL          string        `json:"image_url"`
	PortionMultiplier float64       `json:"portion_multiplier"`
	IsOptional        bool          `json:"is_optional"`
}

// Portion returns the portion multiplier, treating an unset value as 1.
func (m GeneratedMeal) Portion() float64 {
	if m.PortionMultiplier <= 0 {
		return 1
	}
	return m.PortionMultiplier
}

// DayPlan holds the meals for one day of the week.
type DayPlan struct {
	Day      string          `json:"day"`
	DayIndex int             `json:"day_index"`
	Meals    []GeneratedMeal `json:"meals"`
}

// WeeklyNutritionSummary holds weekly averages and goal adherence.
type WeeklyNutritionSummary struct {
	AvgDailyCalories        float64 `json:"avg_daily_calories"`
	AvgDailyProtein         float64 `json:"avg_daily_protein"`
	AvgDailyCarbs           float64 `json:"avg_daily_carbs"`
	AvgDailyFats            float64 `json:"avg_daily_fats"`
	GoalAdherencePercentage float64 `json:"goal_adherence_percentage"`
}

// GeneratedMealPlan is a complete, validated week of meals.
type GeneratedMealPlan struct {
	WeeklyPlan             []DayPlan              `json:"weekly_plan"`
	WeeklyNutritionSummary WeeklyNutritionSummary `json:"weekly_nutrition_summary"`
	ShoppingTips           []string               `json:"shopping_tips"`
	MealPrepSuggestions    []string               `json:"meal_prep_suggestions"`
}

// NutritionTargets are daily macro goals.
type NutritionTargets struct {
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatsG    float64 `json:"fats_g"`
}

// UserNutritionProfile is the input to plan generation. It is assembled
// per request and never stored as-is.
type UserNutritionProfile struct {
	UserID              string
	Targets             NutritionTargets
	DietaryPreferences  []string
	ExcludedIngredients []string
	Allergies           []string
	MealsPerDay         int
	SnacksPerDay        int
	CookingTime         string
	MaxPrepMinutes      int
	MealTimings         []MealTiming
}

// MealsPerDayTotal is the number of meals every generated day must contain.
func (p UserNutritionProfile) MealsPerDayTotal() int {
	return p.MealsPerDay + p.SnacksPerDay
}

// SlotTimings expands the profile into one timing per daily meal slot, in
// day order. Main meals beyond the available main timings cycle through
// them again, and snacks do the same.
func (p UserNutritionProfile) SlotTimings() []MealTiming {
	var mains, snacks []MealTiming
	for _, t := range p.MealTimings {
		if t.IsSnack() {
			snacks = append(snacks, t)
		} else {
			mains = append(mains, t)
		}
	}

	slots := make([]MealTiming, 0, p.MealsPerDayTotal())
	for i := 0; i < p.MealsPerDay && len(mains) > 0; i++ {
		slots = append(slots, mains[i%len(mains)])
	}
	for i := 0; i < p.SnacksPerDay && len(snacks) > 0; i++ {
		slots = append(slots, snacks[i%len(snacks)])
	}
	sortByDayOrder(slots)
	return slots
}

// AllowsTiming reports whether t is part of the profile's derived timings.
func (p UserNutritionProfile) AllowsTiming(t MealTiming) bool {
	for _, allowed := range p.MealTimings {
		if allowed == t {
			return true
		}
	}
	return false
}

// MealPlanConfig is the caller's request for a new plan.
type MealPlanConfig struct {
	MealsPerDay         int      `json:"meals_per_day" validate:"min=1,max=6"`
	SnacksPerDay        int      `json:"snacks_per_day" validate:"min=0,max=4"`
	WeekStartDate       string   `json:"week_start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DietaryPreferences  []string `json:"dietary_preferences,omitempty" validate:"omitempty,max=10,dive,required,max=40"`
	ExcludedIngredients []string `json:"excluded_ingredients,omitempty" validate:"omitempty,max=30,dive,required,max=60"`
	MaxPrepMinutes      int      `json:"max_prep_minutes,omitempty" validate:"omitempty,min=5,max=240"`
}

// MealTemplate is a persisted, deduplicated meal description. Templates
// are append-only; schedule entries point at them.
type MealTemplate struct {
	ID     string `json:"id"`
	PlanID string `json:"plan_id,omitempty"`
	GeneratedMeal
	CreatedAt time.Time `json:"created_at"`
}

// ScheduleEntry ties one plan slot to a template. It is the only record
// rewritten when a meal is replaced.
type ScheduleEntry struct {
	ID                string     `json:"id"`
	PlanID            string     `json:"plan_id"`
	TemplateID        string     `json:"template_id"`
	DayOfWeek         int        `json:"day_of_week"`
	MealTiming        MealTiming `json:"meal_timing"`
	MealOrder         int        `json:"meal_order"`
	PortionMultiplier float64    `json:"portion_multiplier"`
	IsOptional        bool       `json:"is_optional"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ScheduledMeal is a schedule entry with its template resolved.
type ScheduledMeal struct {
	Entry    ScheduleEntry
	Template MealTemplate
}

// Plan is the stored header of a generated plan.
type Plan struct {
	ID                  string                 `json:"id"`
	UserID              string                 `json:"user_id"`
	WeekStartDate       time.Time              `json:"week_start_date"`
	Config              MealPlanConfig         `json:"config"`
	Targets             NutritionTargets       `json:"targets"`
	Summary             WeeklyNutritionSummary `json:"summary"`
	ShoppingTips        []string               `json:"shopping_tips"`
	MealPrepSuggestions []string               `json:"meal_prep_suggestions"`
	GenerationTier      string                 `json:"-"`
	DegradedDays        int                    `json:"-"`
	IsActive            bool                   `json:"is_active"`
	CreatedAt           time.Time              `json:"created_at"`
}

// WeeklyView maps day name to meal timing to the templates scheduled there,
// ordered by meal_order.
type WeeklyView map[string]map[MealTiming][]MealTemplate

// MarshalJSON keeps day names in week order.
func (v WeeklyView) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	for _, day := range DayNames {
		meals, ok := v[day]
		if !ok {
			continue
		}
		if !first {
			sb.WriteByte(',')
		}
		first = false
		key, _ := json.Marshal(day)
		body, err := json.Marshal(meals)
		if err != nil {
			return nil, err
		}
		sb.Write(key)
		sb.WriteByte(':')
		sb.Write(body)
	}
	sb.WriteByte('}')
	return []byte(sb.String()), nil
}

// Generation tiers, in escalation order.
const (
	TierBulk          = "bulk"
	TierChunked       = "chunked"
	TierDeterministic = "deterministic"
)

// GenerationResult is what the orchestrator hands back: a plan that is
// always valid, plus bookkeeping for telemetry.
type GenerationResult struct {
	Plan         GeneratedMealPlan
	Tier         string
	DegradedDays []int
	Metas        []shared.AgentMeta
}

func sortByDayOrder(ts []MealTiming) {
	slices.SortStableFunc(ts, func(a, b MealTiming) int {
		return dayOrder[a] - dayOrder[b]
	})
}
