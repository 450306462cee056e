package profile

import (
	"context"
	"errors"
	"time"
)

// ErrUserNotFound is returned when the requesting user does not exist.
var ErrUserNotFound = errors.New("user not found")

// User holds a user's basic account data.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Questionnaire is a user's answers about diet and restrictions.
type Questionnaire struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"user_id"`
	DietaryPreferences  []string  `json:"dietary_preferences" validate:"omitempty,max=10,dive,required,max=40"`
	ExcludedIngredients []string  `json:"excluded_ingredients" validate:"omitempty,max=30,dive,required,max=60"`
	Allergies           []string  `json:"allergies" validate:"omitempty,max=20,dive,required,max=40"`
	CreatedAt           time.Time `json:"created_at"`
}

// NutritionGoal is a user's daily macro targets. Zero fields fall back to defaults.
type NutritionGoal struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	DailyCalories float64   `json:"daily_calories" validate:"gte=0,lte=10000"`
	DailyProteinG float64   `json:"daily_protein_g" validate:"gte=0,lte=1000"`
	DailyCarbsG   float64   `json:"daily_carbs_g" validate:"gte=0,lte=2000"`
	DailyFatsG    float64   `json:"daily_fats_g" validate:"gte=0,lte=1000"`
	CreatedAt     time.Time `json:"created_at"`
}

// Source provides the records a profile is built from. Missing
// questionnaires and goals are reported as nil without an error.
type Source interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	LatestQuestionnaire(ctx context.Context, userID string) (*Questionnaire, error)
	LatestNutritionGoal(ctx context.Context, userID string) (*NutritionGoal, error)
}
