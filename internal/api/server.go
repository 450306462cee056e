package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"weekly-meal-planner/internal/app"
	"weekly-meal-planner/internal/database"
	"weekly-meal-planner/internal/metrics"
	"weekly-meal-planner/internal/planner"
	"weekly-meal-planner/internal/profile"
	"weekly-meal-planner/internal/shopping"
)

// Service is the part of app.App the HTTP API exposes.
type Service interface {
	EnsureUser(ctx context.Context, userID, displayName string) error
	UpdateQuestionnaire(ctx context.Context, userID string, q profile.Questionnaire) (*profile.Questionnaire, error)
	SetNutritionGoal(ctx context.Context, userID string, g profile.NutritionGoal) (*profile.NutritionGoal, error)
	CreatePlan(ctx context.Context, userID string, cfg planner.MealPlanConfig) (*planner.Plan, error)
	GetPlan(ctx context.Context, userID, planID string) (*planner.Plan, error)
	GetWeeklyPlan(ctx context.Context, userID, planID string) (planner.WeeklyView, error)
	ReplaceMeal(ctx context.Context, userID, planID string, dayOfWeek int, timing planner.MealTiming, mealOrder int, prefs planner.ReplacementPreferences) (*planner.MealTemplate, error)
	GenerateShoppingList(ctx context.Context, userID, planID string, weekStart time.Time) (*shopping.List, error)
	GetShoppingList(ctx context.Context, userID, planID string, weekStart time.Time) (*shopping.List, error)
	SetItemPurchased(ctx context.Context, userID, itemID string, purchased bool) error
}

// Server routes HTTP requests to the planning service.
type Server struct {
	svc    Service
	tokens *TokenService
	logger *slog.Logger
}

// NewServer creates a Server.
func NewServer(svc Service, tokens *TokenService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, tokens: tokens, logger: logger}
}

// Handler returns the routed handler. Everything except /health and
// /metrics requires a bearer token.
func (s *Server) Handler() http.Handler {
	protected := http.NewServeMux()
	protected.HandleFunc("PUT /me", s.handleEnsureUser)
	protected.HandleFunc("PUT /me/questionnaire", s.handleQuestionnaire)
	protected.HandleFunc("PUT /me/nutrition-goal", s.handleNutritionGoal)
	protected.HandleFunc("POST /plans", s.handleCreatePlan)
	protected.HandleFunc("GET /plans/week", s.handleWeeklyPlan)
	protected.HandleFunc("POST /plans/{planID}/replace", s.handleReplaceMeal)
	protected.HandleFunc("POST /plans/{planID}/shopping-list", s.handleGenerateShoppingList)
	protected.HandleFunc("GET /plans/{planID}/shopping-list", s.handleGetShoppingList)
	protected.HandleFunc("PATCH /shopping-items/{itemID}", s.handleSetPurchased)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, "ok", nil)
	})
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("/", s.tokens.Authenticate(protected))
	return mux
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, "invalid request", err)
	case errors.Is(err, app.ErrUserNotFound),
		errors.Is(err, app.ErrPlanNotFound),
		errors.Is(err, app.ErrScheduleEntryNotFound),
		errors.Is(err, app.ErrItemNotFound),
		errors.Is(err, app.ErrListNotFound):
		writeError(w, http.StatusNotFound, "not found", err)
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: malformed body: %v", app.ErrInvalidConfig, err)
}

type ensureUserRequest struct {
	DisplayName string `json:"display_name"`
}

func (s *Server) handleEnsureUser(w http.ResponseWriter, r *http.Request) {
	var req ensureUserRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.svc.EnsureUser(r.Context(), UserIDFromContext(r.Context()), req.DisplayName); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "user saved", nil)
}

func (s *Server) handleQuestionnaire(w http.ResponseWriter, r *http.Request) {
	var q profile.Questionnaire
	if err := decode(r, &q); err != nil {
		s.fail(w, r, err)
		return
	}
	saved, err := s.svc.UpdateQuestionnaire(r.Context(), UserIDFromContext(r.Context()), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "questionnaire saved", saved)
}

func (s *Server) handleNutritionGoal(w http.ResponseWriter, r *http.Request) {
	var g profile.NutritionGoal
	if err := decode(r, &g); err != nil {
		s.fail(w, r, err)
		return
	}
	saved, err := s.svc.SetNutritionGoal(r.Context(), UserIDFromContext(r.Context()), g)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "nutrition goal saved", saved)
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var cfg planner.MealPlanConfig
	if err := decode(r, &cfg); err != nil {
		s.fail(w, r, err)
		return
	}
	plan, err := s.svc.CreatePlan(r.Context(), UserIDFromContext(r.Context()), cfg)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, "plan created", plan)
}

type weeklyPlanResponse struct {
	Plan *planner.Plan      `json:"plan"`
	Week planner.WeeklyView `json:"week"`
}

func (s *Server) handleWeeklyPlan(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	plan, err := s.svc.GetPlan(r.Context(), userID, r.URL.Query().Get("plan_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.svc.GetWeeklyPlan(r.Context(), userID, plan.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "weekly plan", weeklyPlanResponse{Plan: plan, Week: view})
}

type replaceMealRequest struct {
	DayOfWeek   int                            `json:"day_of_week"`
	MealTiming  string                         `json:"meal_timing"`
	MealOrder   int                            `json:"meal_order"`
	Preferences planner.ReplacementPreferences `json:"preferences"`
}

func (s *Server) handleReplaceMeal(w http.ResponseWriter, r *http.Request) {
	var req replaceMealRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	timing, ok := planner.ParseMealTiming(req.MealTiming)
	if !ok {
		s.fail(w, r, fmt.Errorf("%w: unknown meal timing %q", app.ErrInvalidConfig, req.MealTiming))
		return
	}
	if req.MealOrder == 0 {
		req.MealOrder = 1
	}

	meal, err := s.svc.ReplaceMeal(r.Context(), UserIDFromContext(r.Context()), r.PathValue("planID"),
		req.DayOfWeek, timing, req.MealOrder, req.Preferences)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "meal replaced", meal)
}

type shoppingListRequest struct {
	WeekStartDate string `json:"week_start_date"`
}

func parseWeek(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(database.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: week_start_date: %v", app.ErrInvalidConfig, err)
	}
	return t, nil
}

func (s *Server) handleGenerateShoppingList(w http.ResponseWriter, r *http.Request) {
	var req shoppingListRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	week, err := parseWeek(req.WeekStartDate)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.svc.GenerateShoppingList(r.Context(), UserIDFromContext(r.Context()), r.PathValue("planID"), week)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, "shopping list generated", list)
}

func (s *Server) handleGetShoppingList(w http.ResponseWriter, r *http.Request) {
	week, err := parseWeek(r.URL.Query().Get("week_start_date"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.svc.GetShoppingList(r.Context(), UserIDFromContext(r.Context()), r.PathValue("planID"), week)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "shopping list", list)
}

type purchasedRequest struct {
	IsPurchased bool `json:"is_purchased"`
}

func (s *Server) handleSetPurchased(w http.ResponseWriter, r *http.Request) {
	var req purchasedRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	err := s.svc.SetItemPurchased(r.Context(), UserIDFromContext(r.Context()), r.PathValue("itemID"), req.IsPurchased)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "item updated", nil)
}
