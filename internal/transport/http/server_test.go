package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/parleyhq/parley-server/internal/config"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.server.Client().Get(env.server.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/health", "", nil)

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `parley_http_requests_total{method="GET",route="/health",status="200"}`) {
		t.Fatalf("expected request counter in metrics output")
	}

	disabled := newTestEnv(t, func(c *config.Config) { c.MetricsEnabled = false })
	if rec := disabled.do(t, http.MethodGet, "/metrics", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with metrics disabled, got %d", rec.Code)
	}
}

func TestRegisterLoginMe(t *testing.T) {
	env := newTestEnv(t)

	id, token := env.register(t, "alice")
	if id == 0 || token == "" {
		t.Fatalf("expected id and token, got %d %q", id, token)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/auth/register", "", RegisterRequest{
		Username: "ALICE", Email: "other@example.com", Password: "password123",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/auth/register", "", RegisterRequest{
		Username: "bob", Email: "not-an-email", Password: "password123",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad email, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Identifier: "alice@example.com", Password: "password123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on login, got %d: %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != TokenCookie || !cookies[0].HttpOnly {
		t.Fatalf("expected http-only token cookie, got %+v", cookies)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Identifier: "alice", Password: "wrong-password"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on bad password, got %d", rec.Code)
	}

	// Cookie authentication.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(cookies[0])
	meRec := httptest.NewRecorder()
	env.router.ServeHTTP(meRec, req)
	if meRec.Code != http.StatusOK {
		t.Fatalf("expected 200 on me with cookie, got %d", meRec.Code)
	}
	var me UserResponse
	decode(t, meRec, &me)
	if me.ID != id || me.Username != "alice" {
		t.Fatalf("unexpected me: %+v", me)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/auth/me", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/auth/me", "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
}

func TestSearchUsers(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.register(t, "alice")
	env.register(t, "alicia")
	env.register(t, "bob")

	rec := env.do(t, http.MethodGet, "/api/v1/users/search?q=al", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short query, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/users/search?q=ali", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var users []UserResponse
	decode(t, rec, &users)
	if len(users) != 1 || users[0].Username != "alicia" {
		t.Fatalf("expected only alicia (self excluded), got %+v", users)
	}
}
