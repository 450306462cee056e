package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"weekly-meal-planner/internal/database"
)

// Repository stores users, questionnaires and nutrition goals in SQLite.
type Repository struct {
	db database.Querier
}

// NewRepository creates a new profile repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: tx}
}

// EnsureUser creates the user if missing and refreshes the display name
// when one is given.
func (r *Repository) EnsureUser(ctx context.Context, userID, displayName string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name
		WHERE excluded.display_name != ''`,
		userID, displayName, database.FormatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save user %s: %w", userID, err)
	}
	return nil
}

// GetUser returns the user or nil when it does not exist.
func (r *Repository) GetUser(ctx context.Context, userID string) (*User, error) {
	var (
		u       User
		created string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, display_name, created_at FROM users WHERE id = ?`, userID).
		Scan(&u.ID, &u.DisplayName, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
	}
	if u.CreatedAt, err = database.ParseTime(created); err != nil {
		return nil, err
	}
	return &u, nil
}

// SaveQuestionnaire appends a questionnaire; the latest one wins.
func (r *Repository) SaveQuestionnaire(ctx context.Context, q *Questionnaire) error {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	prefs, err := marshalList(q.DietaryPreferences)
	if err != nil {
		return err
	}
	excluded, err := marshalList(q.ExcludedIngredients)
	if err != nil {
		return err
	}
	allergies, err := marshalList(q.Allergies)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO questionnaires (id, user_id, dietary_preferences, excluded_ingredients, allergies, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		q.ID, q.UserID, prefs, excluded, allergies, database.FormatTime(q.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert questionnaire: %w", err)
	}
	return nil
}

// LatestQuestionnaire returns the newest questionnaire or nil.
func (r *Repository) LatestQuestionnaire(ctx context.Context, userID string) (*Questionnaire, error) {
	var q Questionnaire
	var prefs, excluded, allergies, created string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, dietary_preferences, excluded_ingredients, allergies, created_at
		FROM questionnaires WHERE user_id = ? ORDER BY created_at DESC LIMIT 1`, userID).
		Scan(&q.ID, &q.UserID, &prefs, &excluded, &allergies, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load questionnaire for %s: %w", userID, err)
	}

	if q.CreatedAt, err = database.ParseTime(created); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		raw  string
		into *[]string
	}{{prefs, &q.DietaryPreferences}, {excluded, &q.ExcludedIngredients}, {allergies, &q.Allergies}} {
		if err := json.Unmarshal([]byte(f.raw), f.into); err != nil {
			return nil, fmt.Errorf("failed to decode questionnaire %s: %w", q.ID, err)
		}
	}
	return &q, nil
}

// SaveNutritionGoal appends a goal; the latest one wins.
func (r *Repository) SaveNutritionGoal(ctx context.Context, g *NutritionGoal) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO nutrition_goals (id, user_id, daily_calories, daily_protein_g, daily_carbs_g, daily_fats_g, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.DailyCalories, g.DailyProteinG, g.DailyCarbsG, g.DailyFatsG, database.FormatTime(g.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert nutrition goal: %w", err)
	}
	return nil
}

// LatestNutritionGoal returns the newest goal or nil.
func (r *Repository) LatestNutritionGoal(ctx context.Context, userID string) (*NutritionGoal, error) {
	var (
		g       NutritionGoal
		created string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, daily_calories, daily_protein_g, daily_carbs_g, daily_fats_g, created_at
		FROM nutrition_goals WHERE user_id = ? ORDER BY created_at DESC LIMIT 1`, userID).
		Scan(&g.ID, &g.UserID, &g.DailyCalories, &g.DailyProteinG, &g.DailyCarbsG, &g.DailyFatsG, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load nutrition goal for %s: %w", userID, err)
	}
	if g.CreatedAt, err = database.ParseTime(created); err != nil {
		return nil, err
	}
	return &g, nil
}

func marshalList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to marshal list: %w", err)
	}
	return string(b), nil
}
