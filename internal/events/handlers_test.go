package events

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func setupHandlerRouter(t *testing.T) (*gin.Engine, *MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := NewMemoryStore()
	h := NewHandler(store)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if user := c.GetHeader("X-User-ID"); user != "" {
			c.Set("authUserID", user)
		}
		c.Next()
	})
	h.RegisterRoutes(router.Group("/v1"))
	return router, store
}

func postWebhook(t *testing.T, router *gin.Engine, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/users/"+user+"/webhooks", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", user)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateSubscriptionShowsSecretOnce(t *testing.T) {
	router, store := setupHandlerRouter(t)

	// Public IP literal avoids DNS in tests.
	w := postWebhook(t, router, "alice", map[string]any{
		"url":    "https://1.1.1.1/hooks/wagers",
		"events": []string{"wager.settled"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Webhook struct {
			ID string `json:"id"`
		} `json:"webhook"`
		Secret string `json:"secret"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Secret == "" {
		t.Error("secret should be returned on creation")
	}

	// The stored subscription keeps the secret but never serializes it.
	sub, err := store.Get(context.Background(), resp.Webhook.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sub.Secret != resp.Secret {
		t.Error("stored secret should match the one shown at creation")
	}
	out, _ := json.Marshal(sub)
	if bytes.Contains(out, []byte(resp.Secret)) {
		t.Error("secret must not appear in serialized subscriptions")
	}
}

func TestCreateSubscriptionRejectsInternalTargets(t *testing.T) {
	router, _ := setupHandlerRouter(t)

	for _, url := range []string{
		"http://127.0.0.1/hook",
		"http://169.254.169.254/latest/meta-data",
		"http://10.0.0.5/hook",
	} {
		w := postWebhook(t, router, "alice", map[string]any{
			"url":    url,
			"events": []string{"wager.settled"},
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("url %s: status = %d, want 400", url, w.Code)
		}
	}
}

func TestCreateSubscriptionRejectsUnknownEvent(t *testing.T) {
	router, _ := setupHandlerRouter(t)

	w := postWebhook(t, router, "alice", map[string]any{
		"url":    "https://1.1.1.1/hooks",
		"events": []string{"wager.teleported"},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSubscriptionOwnership(t *testing.T) {
	router, store := setupHandlerRouter(t)

	w := postWebhook(t, router, "alice", map[string]any{
		"url":    "https://1.1.1.1/hooks",
		"events": []string{"wager.settled"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	var resp struct {
		Webhook struct {
			ID string `json:"id"`
		} `json:"webhook"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// bob cannot manage alice's webhooks.
	req := httptest.NewRequest(http.MethodDelete, "/v1/users/alice/webhooks/"+resp.Webhook.ID, nil)
	req.Header.Set("X-User-ID", "bob")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("cross-user delete status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/v1/users/alice/webhooks/"+resp.Webhook.ID, nil)
	req.Header.Set("X-User-ID", "alice")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("owner delete status = %d, want 200", rec.Code)
	}

	if _, err := store.Get(context.Background(), resp.Webhook.ID); err == nil {
		t.Error("subscription should be gone after delete")
	}
}
