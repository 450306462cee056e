package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"weekly-meal-planner/internal/config"
	"weekly-meal-planner/internal/database"
	"weekly-meal-planner/internal/llm"
	"weekly-meal-planner/internal/metrics"
	"weekly-meal-planner/internal/planner"
	"weekly-meal-planner/internal/profile"
	"weekly-meal-planner/internal/shared"
	"weekly-meal-planner/internal/shopping"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Errors returned to callers of App. Store and generation details stay internal.
var (
	ErrInvalidConfig         = errors.New("invalid request")
	ErrUserNotFound          = profile.ErrUserNotFound
	ErrPlanNotFound          = planner.ErrPlanNotFound
	ErrScheduleEntryNotFound = planner.ErrScheduleEntryNotFound
	ErrItemNotFound          = shopping.ErrItemNotFound
	ErrListNotFound          = shopping.ErrListNotFound
)

// App holds the application's dependencies.
type App struct {
	db           *database.DB
	profiles     *profile.Repository
	builder      *profile.Builder
	orchestrator *planner.Orchestrator
	replacer     *planner.Replacer
	plans        *planner.PlanRepository
	shoppingRepo *shopping.Repository
	prices       shopping.PriceTable
	metricsStore *metrics.Store
	validate     *validator.Validate
	logger       *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewApp wires the planning services on top of db. gen may be nil, in
// which case every plan and replacement comes from the meal catalog.
func NewApp(db *database.DB, gen llm.TextGenerator, cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	genCfg := planner.GenerationConfig{
		CallTimeout:      cfg.GenerationTimeout,
		ChunkConcurrency: cfg.ChunkConcurrency,
		Logger:           logger,
	}
	profiles := profile.NewRepository(db.SQL)

	return &App{
		db:           db,
		profiles:     profiles,
		builder:      profile.NewBuilder(profiles),
		orchestrator: planner.NewOrchestrator(gen, genCfg),
		replacer:     planner.NewReplacer(gen, genCfg),
		plans:        planner.NewPlanRepository(db.SQL),
		shoppingRepo: shopping.NewRepository(db.SQL),
		prices:       shopping.DefaultPriceTable(),
		metricsStore: metrics.NewStore(db.SQL),
		validate:     validator.New(),
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// EnsureUser registers userID if it is not known yet.
func (a *App) EnsureUser(ctx context.Context, userID, displayName string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidConfig)
	}
	return a.profiles.EnsureUser(ctx, userID, displayName)
}

// UpdateQuestionnaire stores new dietary answers for an existing user.
func (a *App) UpdateQuestionnaire(ctx context.Context, userID string, q profile.Questionnaire) (*profile.Questionnaire, error) {
	if err := a.validate.Struct(q); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := a.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	q.ID = a.newID()
	q.UserID = userID
	q.CreatedAt = a.now().UTC()
	if err := a.profiles.SaveQuestionnaire(ctx, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// SetNutritionGoal stores new daily targets for an existing user.
func (a *App) SetNutritionGoal(ctx context.Context, userID string, g profile.NutritionGoal) (*profile.NutritionGoal, error) {
	if err := a.validate.Struct(g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := a.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	g.ID = a.newID()
	g.UserID = userID
	g.CreatedAt = a.now().UTC()
	if err := a.profiles.SaveNutritionGoal(ctx, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (a *App) requireUser(ctx context.Context, userID string) error {
	u, err := a.profiles.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrUserNotFound
	}
	return nil
}

// CreatePlan generates, stores and activates a weekly plan. Generation
// never fails; only invalid input and store errors are returned.
func (a *App) CreatePlan(ctx context.Context, userID string, cfg planner.MealPlanConfig) (*planner.Plan, error) {
	if err := a.validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	weekStart, err := a.weekStart(cfg.WeekStartDate)
	if err != nil {
		return nil, err
	}

	p, err := a.builder.Build(ctx, userID, cfg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := a.orchestrator.Generate(ctx, p)
	a.recordMetas(ctx, result.Metas)
	metrics.ObservePlan(result.Tier)
	a.logger.Info("plan generated",
		"user_id", userID,
		"tier", result.Tier,
		"degraded_days", len(result.DegradedDays),
		"calls", len(result.Metas),
		"elapsed", time.Since(start),
	)

	plan := &planner.Plan{
		ID:                  a.newID(),
		UserID:              userID,
		WeekStartDate:       weekStart,
		Config:              cfg,
		Targets:             p.Targets,
		Summary:             result.Plan.WeeklyNutritionSummary,
		ShoppingTips:        result.Plan.ShoppingTips,
		MealPrepSuggestions: result.Plan.MealPrepSuggestions,
		GenerationTier:      result.Tier,
		DegradedDays:        len(result.DegradedDays),
		IsActive:            true,
		CreatedAt:           a.now().UTC(),
	}
	templates, entries := planner.BuildSchedule(plan.ID, result.Plan, a.newID)

	err = a.db.WithTx(ctx, func(tx *sql.Tx) error {
		plans := a.plans.WithTx(tx)
		if err := plans.SavePlan(ctx, plan); err != nil {
			return err
		}
		for i := range templates {
			if err := plans.SaveTemplate(ctx, &templates[i]); err != nil {
				return err
			}
		}
		for i := range entries {
			if err := plans.SaveScheduleEntry(ctx, &entries[i]); err != nil {
				return err
			}
		}
		return plans.DeactivateOtherPlans(ctx, userID, plan.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save plan: %w", err)
	}
	return plan, nil
}

// weekStart parses an explicit date or defaults to the coming Sunday.
func (a *App) weekStart(raw string) (time.Time, error) {
	if raw != "" {
		t, err := time.Parse(database.DateLayout, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: week_start_date: %v", ErrInvalidConfig, err)
		}
		return t, nil
	}
	return ComingSunday(a.now()), nil
}

// ComingSunday returns the date of the next Sunday at midnight UTC, or
// today when today is Sunday.
func ComingSunday(now time.Time) time.Time {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, (7-int(today.Weekday()))%7)
}

// GetPlan returns the plan header; an empty planID selects the active plan.
func (a *App) GetPlan(ctx context.Context, userID, planID string) (*planner.Plan, error) {
	if planID == "" {
		return a.plans.GetActivePlan(ctx, userID)
	}
	return a.plans.GetPlan(ctx, userID, planID)
}

// GetWeeklyPlan returns the plan's meals grouped by day and timing.
func (a *App) GetWeeklyPlan(ctx context.Context, userID, planID string) (planner.WeeklyView, error) {
	plan, err := a.GetPlan(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	meals, err := a.plans.ListScheduledMeals(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	return planner.BuildWeeklyView(meals), nil
}

// ReplaceMeal swaps the meal in one schedule slot. A new template is
// stored and the entry repointed; the previous template is kept.
// Concurrent replacements of the same slot are last-write-wins.
func (a *App) ReplaceMeal(ctx context.Context, userID, planID string, dayOfWeek int, timing planner.MealTiming, mealOrder int, prefs planner.ReplacementPreferences) (*planner.MealTemplate, error) {
	if dayOfWeek < 0 || dayOfWeek >= len(planner.DayNames) {
		return nil, fmt.Errorf("%w: day_of_week must be between 0 and 6", ErrInvalidConfig)
	}
	if !timing.Valid() {
		return nil, fmt.Errorf("%w: unknown meal timing %q", ErrInvalidConfig, timing)
	}
	if mealOrder < 1 {
		return nil, fmt.Errorf("%w: meal_order must be at least 1", ErrInvalidConfig)
	}
	if err := a.validate.Struct(prefs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	plan, err := a.GetPlan(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	entry, err := a.plans.GetScheduleEntry(ctx, plan.ID, dayOfWeek, timing, mealOrder)
	if err != nil {
		return nil, err
	}
	current, err := a.plans.GetTemplate(ctx, entry.TemplateID)
	if err != nil {
		return nil, err
	}
	p, err := a.builder.Build(ctx, userID, plan.Config)
	if err != nil {
		return nil, err
	}
	prefs = prefs.WithProfile(p)

	result := a.replacer.Replace(ctx, current.GeneratedMeal, prefs, plan.Targets)
	a.recordMetas(ctx, result.Metas)
	a.logger.Info("meal replaced",
		"plan_id", plan.ID,
		"day", planner.DayNames[dayOfWeek],
		"timing", timing,
		"tier", result.Tier,
	)

	tmpl := planner.MealTemplate{
		ID:            a.newID(),
		PlanID:        plan.ID,
		GeneratedMeal: result.Meal,
		CreatedAt:     a.now().UTC(),
	}
	tmpl.PortionMultiplier = 1
	tmpl.IsOptional = false

	err = a.db.WithTx(ctx, func(tx *sql.Tx) error {
		plans := a.plans.WithTx(tx)
		if err := plans.SaveTemplate(ctx, &tmpl); err != nil {
			return err
		}
		return plans.RepointScheduleEntry(ctx, entry.ID, tmpl.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save replacement: %w", err)
	}

	tmpl.PortionMultiplier = entry.PortionMultiplier
	tmpl.IsOptional = entry.IsOptional
	return &tmpl, nil
}

// GenerateShoppingList aggregates the plan's current schedule into a
// priced list and stores it, replacing any earlier list for the same week.
// A zero weekStart uses the plan's own week.
func (a *App) GenerateShoppingList(ctx context.Context, userID, planID string, weekStart time.Time) (*shopping.List, error) {
	plan, err := a.GetPlan(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	if weekStart.IsZero() {
		weekStart = plan.WeekStartDate
	}

	meals, err := a.plans.ListScheduledMeals(ctx, plan.ID)
	if err != nil {
		return nil, err
	}

	list := shopping.Build(meals, a.prices, weekStart)
	list.ID = a.newID()
	list.PlanID = plan.ID
	list.UserID = userID
	list.CreatedAt = a.now().UTC()
	for ci := range list.Categories {
		for ii := range list.Categories[ci].Items {
			list.Categories[ci].Items[ii].ID = a.newID()
		}
	}

	err = a.db.WithTx(ctx, func(tx *sql.Tx) error {
		return a.shoppingRepo.WithTx(tx).ReplaceSnapshot(ctx, &list)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save shopping list: %w", err)
	}
	return &list, nil
}

// GetShoppingList returns the stored list for a plan's week.
func (a *App) GetShoppingList(ctx context.Context, userID, planID string, weekStart time.Time) (*shopping.List, error) {
	plan, err := a.GetPlan(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	if weekStart.IsZero() {
		weekStart = plan.WeekStartDate
	}
	return a.shoppingRepo.GetSnapshot(ctx, plan.ID, weekStart)
}

// SetItemPurchased marks a shopping list item as bought or not.
func (a *App) SetItemPurchased(ctx context.Context, userID, itemID string, purchased bool) error {
	return a.shoppingRepo.SetPurchased(ctx, userID, itemID, purchased)
}

// DailyUsage reports generation usage for the last days.
func (a *App) DailyUsage(ctx context.Context, days int) ([]metrics.DailyUsage, error) {
	return a.metricsStore.GetDailyUsage(ctx, days)
}

// CleanupMetrics drops metric rows older than the given number of days.
func (a *App) CleanupMetrics(ctx context.Context, olderThanDays int) (int64, error) {
	return a.metricsStore.Cleanup(ctx, olderThanDays)
}

// recordMetas stores telemetry for each generative call. Failures are
// logged; they never fail the request.
func (a *App) recordMetas(ctx context.Context, metas []shared.AgentMeta) {
	for _, meta := range metas {
		if err := a.metricsStore.RecordMeta(ctx, meta); err != nil {
			a.logger.Warn("failed to record metrics", "agent", meta.AgentName, "error", err)
		}
	}
}
