package router_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"meggy/backend/internal/db"
	"meggy/backend/internal/handler"
	"meggy/backend/internal/notify"
	"meggy/backend/internal/repository"
	"meggy/backend/internal/router"
	"meggy/backend/internal/service"
)

type authResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type timerEnvelope struct {
	Timer struct {
		ID                   string `json:"id"`
		Name                 string `json:"name"`
		DurationSeconds      int    `json:"durationSeconds"`
		Status               string `json:"status"`
		TimeRemaining        int    `json:"timeRemaining"`
		TimeRemainingDisplay string `json:"timeRemainingDisplay"`
	} `json:"timer"`
}

type timersEnvelope struct {
	Timers []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	} `json:"timers"`
}

type cancelAllEnvelope struct {
	Cancelled int `json:"cancelled"`
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestTimerLifecycleOverHTTP(t *testing.T) {
	engine := setupTestEngine(t)

	user1 := registerUser(t, engine, "user1@example.com", "123456")
	user2 := registerUser(t, engine, "user2@example.com", "123456")

	// Create a timer for user1.
	status, body := requestJSON(t, engine, http.MethodPost, "/api/timers", user1.Token, map[string]interface{}{
		"durationSeconds": 300,
		"name":            "Tea",
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201 on create, got %d: %s", status, string(body))
	}

	var created timerEnvelope
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}
	if created.Timer.Status != "active" {
		t.Fatalf("expected active timer, got %s", created.Timer.Status)
	}
	if created.Timer.TimeRemaining < 295 || created.Timer.TimeRemaining > 300 {
		t.Fatalf("unexpected timeRemaining %d", created.Timer.TimeRemaining)
	}
	timerID := created.Timer.ID

	// User2 must not be able to touch user1's timer, and must not learn it
	// exists.
	status, body = requestJSON(t, engine, http.MethodPost, "/api/timers/"+timerID+"/pause", user2.Token, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for cross-owner pause, got %d", status)
	}
	var crossErr apiErrorEnvelope
	if err := json.Unmarshal(body, &crossErr); err != nil {
		t.Fatalf("unmarshal cross-owner error: %v", err)
	}
	if crossErr.Error.Code != "timer_not_found" {
		t.Fatalf("expected timer_not_found, got %s", crossErr.Error.Code)
	}

	// Pause, then pause again: the second call is an invalid transition.
	status, body = requestJSON(t, engine, http.MethodPost, "/api/timers/"+timerID+"/pause", user1.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on pause, got %d: %s", status, string(body))
	}
	var paused timerEnvelope
	if err := json.Unmarshal(body, &paused); err != nil {
		t.Fatalf("unmarshal pause response: %v", err)
	}
	if paused.Timer.Status != "paused" {
		t.Fatalf("expected paused, got %s", paused.Timer.Status)
	}

	status, body = requestJSON(t, engine, http.MethodPost, "/api/timers/"+timerID+"/pause", user1.Token, nil)
	if status != http.StatusConflict {
		t.Fatalf("expected 409 for double pause, got %d", status)
	}
	var transitionErr apiErrorEnvelope
	if err := json.Unmarshal(body, &transitionErr); err != nil {
		t.Fatalf("unmarshal transition error: %v", err)
	}
	if transitionErr.Error.Code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %s", transitionErr.Error.Code)
	}

	// Resume and verify via the active list.
	status, _ = requestJSON(t, engine, http.MethodPost, "/api/timers/"+timerID+"/resume", user1.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on resume, got %d", status)
	}

	status, body = requestJSON(t, engine, http.MethodGet, "/api/timers/active", user1.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on active list, got %d", status)
	}
	var active timersEnvelope
	if err := json.Unmarshal(body, &active); err != nil {
		t.Fatalf("unmarshal active list: %v", err)
	}
	if len(active.Timers) != 1 || active.Timers[0].Status != "active" {
		t.Fatalf("unexpected active list: %+v", active.Timers)
	}

	// User2 sees an empty list.
	status, body = requestJSON(t, engine, http.MethodGet, "/api/timers/active", user2.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on user2 active list, got %d", status)
	}
	var user2Active timersEnvelope
	if err := json.Unmarshal(body, &user2Active); err != nil {
		t.Fatalf("unmarshal user2 active list: %v", err)
	}
	if len(user2Active.Timers) != 0 {
		t.Fatalf("expected no timers for user2, got %d", len(user2Active.Timers))
	}

	// Cancel everything.
	status, body = requestJSON(t, engine, http.MethodPost, "/api/timers/cancel_all", user1.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on cancel_all, got %d", status)
	}
	var cancelled cancelAllEnvelope
	if err := json.Unmarshal(body, &cancelled); err != nil {
		t.Fatalf("unmarshal cancel_all response: %v", err)
	}
	if cancelled.Cancelled != 1 {
		t.Fatalf("expected 1 cancelled timer, got %d", cancelled.Cancelled)
	}

	status, body = requestJSON(t, engine, http.MethodGet, "/api/timers/"+timerID, user1.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d", status)
	}
	var final timerEnvelope
	if err := json.Unmarshal(body, &final); err != nil {
		t.Fatalf("unmarshal get response: %v", err)
	}
	if final.Timer.Status != "cancelled" {
		t.Fatalf("expected cancelled, got %s", final.Timer.Status)
	}
	if final.Timer.TimeRemainingDisplay != "Done!" {
		t.Fatalf("unexpected display for cancelled timer: %s", final.Timer.TimeRemainingDisplay)
	}
}

func TestCreateTimerValidationOverHTTP(t *testing.T) {
	engine := setupTestEngine(t)
	user := registerUser(t, engine, "user@example.com", "123456")

	for _, duration := range []int{0, -5, 90000} {
		status, body := requestJSON(t, engine, http.MethodPost, "/api/timers", user.Token, map[string]interface{}{
			"durationSeconds": duration,
		})
		if status != http.StatusBadRequest {
			t.Fatalf("duration %d: expected 400, got %d", duration, status)
		}
		var resp apiErrorEnvelope
		if err := json.Unmarshal(body, &resp); err != nil {
			t.Fatalf("unmarshal validation error: %v", err)
		}
		if resp.Error.Code != "invalid_duration" {
			t.Fatalf("duration %d: expected invalid_duration, got %s", duration, resp.Error.Code)
		}
	}

	status, _ := requestJSON(t, engine, http.MethodPost, "/api/timers", "", map[string]interface{}{
		"durationSeconds": 300,
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}
}

func TestCORSPreflight(t *testing.T) {
	engine := setupTestEngine(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	recorder := httptest.NewRecorder()

	engine.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("unexpected allow-origin header: %s", recorder.Header().Get("Access-Control-Allow-Origin"))
	}
}

func setupTestEngine(t *testing.T) http.Handler {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	_, currentFile, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(currentFile), "..", "..", "migrations")
	if err := db.RunMigrations(database, migrationsDir); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	userRepo := repository.NewUserRepository(database)
	timerRepo := repository.NewTimerRepository(database)
	hub := notify.NewHub(nil)
	authService := service.NewAuthService(userRepo, "test-secret", 24*time.Hour)
	timerService := service.NewTimerService(timerRepo, hub, nil)

	authHandler := handler.NewAuthHandler(authService)
	timerHandler := handler.NewTimerHandler(timerService)
	eventsHandler := handler.NewEventsHandler(hub)

	return router.New(authService, authHandler, timerHandler, eventsHandler, []string{"http://localhost:5173"})
}

func registerUser(t *testing.T, server http.Handler, email, password string) authResponse {
	t.Helper()
	status, body := requestJSON(t, server, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s failed with status %d: %s", email, status, string(body))
	}
	var resp authResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal register response: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("empty token for user %s", email)
	}
	return resp
}

func requestJSON(
	t *testing.T,
	server http.Handler,
	method, path, token string,
	body interface{},
) (int, []byte) {
	t.Helper()

	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		payload = raw
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	return recorder.Code, recorder.Body.Bytes()
}
