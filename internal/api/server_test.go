package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"weekly-meal-planner/internal/app"
	"weekly-meal-planner/internal/config"
	"weekly-meal-planner/internal/database"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler http.Handler
	tokens  *TokenService
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.NewInMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := app.NewApp(db, nil, &config.Config{GenerationTimeout: time.Second, ChunkConcurrency: 1}, nil)
	tokens := NewTokenService("test-secret", time.Hour)
	return &testServer{handler: NewServer(svc, tokens, nil).Handler(), tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		token, err := s.tokens.Generate(userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestTokenService(t *testing.T) {
	tokens := NewTokenService("secret", time.Hour)
	raw, err := tokens.Generate("user-1")
	require.NoError(t, err)

	id, err := tokens.UserID(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)

	_, err = NewTokenService("other", time.Hour).UserID(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	expired, err := NewTokenService("secret", -time.Minute).Generate("user-1")
	require.NoError(t, err)
	_, err = tokens.UserID(expired)
	assert.ErrorIs(t, err, ErrTokenExpired)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-1", Issuer: tokenIssuer})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tokens.UserID(unsigned)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestAuthentication(t *testing.T) {
	s := setupServer(t)

	rec, _ := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := s.do(t, http.MethodPost, "/plans", "", map[string]any{"meals_per_day": 3})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, body["status"])
}

func TestPlanWorkflow(t *testing.T) {
	s := setupServer(t)

	rec, _ := s.do(t, http.MethodPost, "/plans", "user-1", map[string]any{"meals_per_day": 3})
	assert.Equal(t, http.StatusNotFound, rec.Code, "user must exist first")

	rec, _ = s.do(t, http.MethodPut, "/me", "user-1", map[string]any{"display_name": "Ana"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPut, "/me/nutrition-goal", "user-1", map[string]any{"daily_calories": 1800})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/plans", "user-1", map[string]any{"meals_per_day": 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := s.do(t, http.MethodPost, "/plans", "user-1", map[string]any{
		"meals_per_day": 3, "snacks_per_day": 1, "week_start_date": "2024-03-10",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	plan := body["data"].(map[string]any)
	planID := plan["id"].(string)
	assert.NotContains(t, plan, "generation_tier")

	rec, body = s.do(t, http.MethodGet, "/plans/week", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	week := body["data"].(map[string]any)["week"].(map[string]any)
	assert.Len(t, week, 7)
	sunday := week["Sunday"].(map[string]any)
	assert.Len(t, sunday, 4)

	rec, _ = s.do(t, http.MethodGet, "/plans/week", "user-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = s.do(t, http.MethodPost, "/plans/"+planID+"/replace", "user-1", map[string]any{
		"day_of_week": 3, "meal_timing": "dinner",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "DINNER", body["data"].(map[string]any)["meal_timing"])

	rec, _ = s.do(t, http.MethodPost, "/plans/"+planID+"/replace", "user-1", map[string]any{
		"day_of_week": 3, "meal_timing": "brunch",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/plans/"+planID+"/replace", "user-1", map[string]any{
		"day_of_week": 3, "meal_timing": "EVENING_SNACK",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = s.do(t, http.MethodPost, "/plans/"+planID+"/shopping-list", "user-1", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	list := body["data"].(map[string]any)
	categories := list["categories"].([]any)
	require.NotEmpty(t, categories)
	item := categories[0].(map[string]any)["items"].([]any)[0].(map[string]any)

	rec, _ = s.do(t, http.MethodPatch, "/shopping-items/"+item["id"].(string), "user-1", map[string]any{"is_purchased": true})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = s.do(t, http.MethodPatch, "/shopping-items/"+item["id"].(string), "user-2", map[string]any{"is_purchased": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = s.do(t, http.MethodGet, "/plans/"+planID+"/shopping-list", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stored := body["data"].(map[string]any)["categories"].([]any)[0].(map[string]any)["items"].([]any)[0].(map[string]any)
	assert.Equal(t, true, stored["is_purchased"])
}
