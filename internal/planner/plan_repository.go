package planner

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"weekly-meal-planner/internal/database"
)

var (
	// ErrPlanNotFound is returned when a plan does not exist or belongs to another user.
	ErrPlanNotFound = errors.New("meal plan not found")
	// ErrScheduleEntryNotFound is returned for an unknown day/timing/order slot.
	ErrScheduleEntryNotFound = errors.New("schedule entry not found")
	// ErrTemplateNotFound is returned for an unknown template id.
	ErrTemplateNotFound = errors.New("meal template not found")
)

// PlanRepository is a database-backed repository for plans, templates and
// schedule entries.
type PlanRepository struct {
	db database.Querier
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(db *sql.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *PlanRepository) WithTx(tx *sql.Tx) *PlanRepository {
	return &PlanRepository{db: tx}
}

// SavePlan inserts the plan header.
func (r *PlanRepository) SavePlan(ctx context.Context, p *Plan) error {
	cfg, err := json.Marshal(p.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal plan config: %w", err)
	}
	targets, err := json.Marshal(p.Targets)
	if err != nil {
		return fmt.Errorf("failed to marshal plan targets: %w", err)
	}
	summary, err := json.Marshal(p.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal plan summary: %w", err)
	}
	tips, err := marshalList(p.ShoppingTips)
	if err != nil {
		return err
	}
	prep, err := marshalList(p.MealPrepSuggestions)
	if err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO meal_plans (id, user_id, week_start_date, config, targets, summary,
			shopping_tips, meal_prep_suggestions, generation_tier, degraded_days, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.WeekStartDate.Format(database.DateLayout), string(cfg), string(targets), string(summary),
		tips, prep, p.GenerationTier, p.DegradedDays, database.BoolToInt(p.IsActive), database.FormatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert meal plan: %w", err)
	}
	return nil
}

// DeactivateOtherPlans marks every other plan of the user inactive.
func (r *PlanRepository) DeactivateOtherPlans(ctx context.Context, userID, keepPlanID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE meal_plans SET is_active = 0 WHERE user_id = ? AND id != ? AND is_active = 1`,
		userID, keepPlanID)
	if err != nil {
		return fmt.Errorf("failed to deactivate plans for user %s: %w", userID, err)
	}
	return nil
}

const planColumns = `id, user_id, week_start_date, config, targets, summary, shopping_tips,
	meal_prep_suggestions, generation_tier, degraded_days, is_active, created_at`

// GetPlan loads a plan owned by userID.
func (r *PlanRepository) GetPlan(ctx context.Context, userID, planID string) (*Plan, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM meal_plans WHERE id = ? AND user_id = ?`, planID, userID)
	return scanPlan(row)
}

// GetActivePlan loads the user's current plan.
func (r *PlanRepository) GetActivePlan(ctx context.Context, userID string) (*Plan, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM meal_plans WHERE user_id = ? AND is_active = 1
		 ORDER BY created_at DESC LIMIT 1`, userID)
	return scanPlan(row)
}

func scanPlan(row *sql.Row) (*Plan, error) {
	var p Plan
	var week, cfg, targets, summary, tips, prep, created string
	var active int
	err := row.Scan(&p.ID, &p.UserID, &week, &cfg, &targets, &summary, &tips, &prep,
		&p.GenerationTier, &p.DegradedDays, &active, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load meal plan: %w", err)
	}

	if p.WeekStartDate, err = database.ParseDate(week); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = database.ParseTime(created); err != nil {
		return nil, err
	}
	p.IsActive = active == 1
	for _, f := range []struct {
		raw  string
		into any
	}{
		{cfg, &p.Config}, {targets, &p.Targets}, {summary, &p.Summary},
		{tips, &p.ShoppingTips}, {prep, &p.MealPrepSuggestions},
	} {
		if err := json.Unmarshal([]byte(f.raw), f.into); err != nil {
			return nil, fmt.Errorf("failed to decode meal plan %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

// SaveTemplate inserts a template. Templates are never updated or deleted.
func (r *PlanRepository) SaveTemplate(ctx context.Context, t *MealTemplate) error {
	ingredients, err := json.Marshal(orEmpty(t.Ingredients))
	if err != nil {
		return fmt.Errorf("failed to marshal ingredients: %w", err)
	}
	instructions, err := json.Marshal(orEmpty(t.Instructions))
	if err != nil {
		return fmt.Errorf("failed to marshal instructions: %w", err)
	}
	allergens, err := marshalList(t.Allergens)
	if err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	var planID any
	if t.PlanID != "" {
		planID = t.PlanID
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO meal_templates (id, plan_id, name, description, meal_timing, dietary_category,
			prep_time_minutes, difficulty_level, calories, protein_g, carbs_g, fats_g, fiber_g,
			sugar_g, sodium_mg, ingredients, instructions, allergens, image_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, planID, t.Name, t.Description, string(t.MealTiming), t.DietaryCategory,
		t.PrepTimeMinutes, t.DifficultyLevel, t.Calories, t.ProteinG, t.CarbsG, t.FatsG, t.FiberG,
		t.SugarG, t.SodiumMg, string(ingredients), string(instructions), allergens, t.ImageURL,
		database.FormatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert meal template %q: %w", t.Name, err)
	}
	return nil
}

const templateColumns = `t.id, COALESCE(t.plan_id, ''), t.name, t.description, t.meal_timing,
	t.dietary_category, t.prep_time_minutes, t.difficulty_level, t.calories, t.protein_g,
	t.carbs_g, t.fats_g, t.fiber_g, t.sugar_g, t.sodium_mg, t.ingredients, t.instructions,
	t.allergens, t.image_url, t.created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(s scanner, extra ...any) (MealTemplate, error) {
	var t MealTemplate
	var timing, ingredients, instructions, allergs, created string
	dest := []any{&t.ID, &t.PlanID, &t.Name, &t.Description, &timing, &t.DietaryCategory,
		&t.PrepTimeMinutes, &t.DifficultyLevel, &t.Calories, &t.ProteinG, &t.CarbsG, &t.FatsG,
		&t.FiberG, &t.SugarG, &t.SodiumMg, &ingredients, &instructions, &allergs, &t.ImageURL, &created}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return MealTemplate{}, err
	}

	t.MealTiming = MealTiming(timing)
	t.PortionMultiplier = 1
	var err error
	if t.CreatedAt, err = database.ParseTime(created); err != nil {
		return MealTemplate{}, err
	}
	if err := json.Unmarshal([]byte(ingredients), &t.Ingredients); err != nil {
		return MealTemplate{}, fmt.Errorf("failed to decode ingredients of %s: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(instructions), &t.Instructions); err != nil {
		return MealTemplate{}, fmt.Errorf("failed to decode instructions of %s: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(allergs), &t.Allergens); err != nil {
		return MealTemplate{}, fmt.Errorf("failed to decode allergens of %s: %w", t.ID, err)
	}
	return t, nil
}

// GetTemplate loads one template by id.
func (r *PlanRepository) GetTemplate(ctx context.Context, id string) (*MealTemplate, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM meal_templates t WHERE t.id = ?`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load meal template %s: %w", id, err)
	}
	return &t, nil
}

// SaveScheduleEntry inserts one slot.
func (r *PlanRepository) SaveScheduleEntry(ctx context.Context, e *ScheduleEntry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO meal_schedule (id, plan_id, template_id, day_of_week, meal_timing, meal_order,
			portion_multiplier, is_optional, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PlanID, e.TemplateID, e.DayOfWeek, string(e.MealTiming), e.MealOrder,
		e.PortionMultiplier, database.BoolToInt(e.IsOptional), database.FormatTime(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert schedule entry: %w", err)
	}
	return nil
}

const entryColumns = `s.id, s.plan_id, s.template_id, s.day_of_week, s.meal_timing, s.meal_order,
	s.portion_multiplier, s.is_optional, s.updated_at`

type entryScan struct {
	e        ScheduleEntry
	timing   string
	optional int
	updated  string
}

func (es *entryScan) dest() []any {
	return []any{&es.e.ID, &es.e.PlanID, &es.e.TemplateID, &es.e.DayOfWeek, &es.timing,
		&es.e.MealOrder, &es.e.PortionMultiplier, &es.optional, &es.updated}
}

func (es *entryScan) entry() (ScheduleEntry, error) {
	es.e.MealTiming = MealTiming(es.timing)
	es.e.IsOptional = es.optional == 1
	t, err := database.ParseTime(es.updated)
	if err != nil {
		return ScheduleEntry{}, err
	}
	es.e.UpdatedAt = t
	return es.e, nil
}

// GetScheduleEntry finds the slot for day, timing and 1-based order.
func (r *PlanRepository) GetScheduleEntry(ctx context.Context, planID string, day int, timing MealTiming, order int) (*ScheduleEntry, error) {
	var es entryScan
	err := r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM meal_schedule s
		WHERE s.plan_id = ? AND s.day_of_week = ? AND s.meal_timing = ? AND s.meal_order = ?`,
		planID, day, string(timing), order).Scan(es.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScheduleEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule entry: %w", err)
	}
	e, err := es.entry()
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// RepointScheduleEntry makes the slot reference templateID. The previous
// template is left in place.
func (r *PlanRepository) RepointScheduleEntry(ctx context.Context, entryID, templateID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE meal_schedule SET template_id = ?, updated_at = ? WHERE id = ?`,
		templateID, database.FormatTime(time.Now()), entryID)
	if err != nil {
		return fmt.Errorf("failed to update schedule entry %s: %w", entryID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update schedule entry %s: %w", entryID, err)
	}
	if n == 0 {
		return ErrScheduleEntryNotFound
	}
	return nil
}

// ListScheduledMeals returns every slot of the plan with its template, in
// day, timing and order sequence.
func (r *PlanRepository) ListScheduledMeals(ctx context.Context, planID string) ([]ScheduledMeal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+templateColumns+`, `+entryColumns+`
		FROM meal_schedule s JOIN meal_templates t ON t.id = s.template_id
		WHERE s.plan_id = ?
		ORDER BY s.day_of_week,
			CASE s.meal_timing
				WHEN 'BREAKFAST' THEN 0 WHEN 'MORNING_SNACK' THEN 1 WHEN 'LUNCH' THEN 2
				WHEN 'AFTERNOON_SNACK' THEN 3 WHEN 'DINNER' THEN 4 ELSE 5 END,
			s.meal_order`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule for plan %s: %w", planID, err)
	}
	defer rows.Close()

	var meals []ScheduledMeal
	for rows.Next() {
		var es entryScan
		t, err := scanTemplate(rows, es.dest()...)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled meal: %w", err)
		}
		e, err := es.entry()
		if err != nil {
			return nil, err
		}
		meals = append(meals, ScheduledMeal{Entry: e, Template: t})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schedule: %w", err)
	}
	return meals, nil
}

func marshalList(items []string) (string, error) {
	b, err := json.Marshal(orEmpty(items))
	if err != nil {
		return "", fmt.Errorf("failed to marshal list: %w", err)
	}
	return string(b), nil
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
