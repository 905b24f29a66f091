package account

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newTestStore(t)
	handler := NewHandler(store, nil)

	router := gin.New()
	router.GET("/api/users", handler.Users)
	router.GET("/api/total-users", handler.TotalUsers)
	return router, store
}

func TestUsersEndpoint(t *testing.T) {
	router, store := newTestRouter(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "Alice", "alice@example.com", "digest-a"); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := store.Create(ctx, "Bob", "bob@example.com", "digest-b"); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var users []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &users); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("len(users) = %d, want 2", len(users))
	}
	for _, user := range users {
		if _, ok := user["passwordHash"]; ok {
			t.Fatalf("response leaks password hash: %+v", user)
		}
		if user["email"] == "" {
			t.Fatalf("response missing email: %+v", user)
		}
	}
}

func TestUsersEndpointEmpty(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := rec.Body.String(); body != "[]" {
		t.Fatalf("body = %q, want empty array", body)
	}
}

func TestTotalUsersEndpoint(t *testing.T) {
	router, store := newTestRouter(t)
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		if _, err := store.Create(ctx, "User", email, "digest"); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/total-users", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body struct {
		TotalUsers int64 `json:"totalUsers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.TotalUsers != 3 {
		t.Fatalf("totalUsers = %d, want 3", body.TotalUsers)
	}
}
