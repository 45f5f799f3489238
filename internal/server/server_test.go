package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matchpit/bounty/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:             "8080",
		Env:              "development",
		LogLevel:         "error",
		MinStake:         100,
		MaxStake:         1_000_000,
		PlatformFeeBps:   500,
		AcceptanceWindow: 72 * time.Hour,
		DisputeWindow:    24 * time.Hour,
		SweepInterval:    time.Minute,
		Moderators:       []string{"mod_sam"},
		ModeratorSecret:  "test-admin-secret",
		RateLimitRPM:     60000,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig(), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
	})
	return s
}

type request struct {
	method string
	path   string
	body   any
	bearer string
	admin  string
}

func (s *Server) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if req.body != nil {
		if err := json.NewEncoder(&buf).Encode(req.body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	r := httptest.NewRequest(req.method, req.path, &buf)
	r.Header.Set("Content-Type", "application/json")
	if req.bearer != "" {
		r.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	if req.admin != "" {
		r.Header.Set("X-Admin-Secret", req.admin)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

// register creates a player and returns their raw API key.
func (s *Server) register(t *testing.T, userID string) string {
	t.Helper()
	w := s.do(t, request{
		method: http.MethodPost,
		path:   "/v1/auth/register",
		body:   map[string]string{"userId": userID},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d, body %s", userID, w.Code, w.Body.String())
	}
	var resp struct {
		APIKey string `json:"key"`
	}
	decode(t, w, &resp)
	if resp.APIKey == "" {
		t.Fatalf("register %s: no API key in %s", userID, w.Body.String())
	}
	return resp.APIKey
}

func (s *Server) deposit(t *testing.T, userID string, amount int64) {
	t.Helper()
	w := s.do(t, request{
		method: http.MethodPost,
		path:   "/v1/admin/deposits",
		body:   map[string]any{"userId": userID, "amount": amount},
		admin:  "test-admin-secret",
	})
	if w.Code != http.StatusCreated && w.Code != http.StatusOK {
		t.Fatalf("deposit for %s: status %d, body %s", userID, w.Code, w.Body.String())
	}
}

func TestHealthAndPlatformEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, request{method: http.MethodGet, path: "/health/live"})
	if w.Code != http.StatusOK {
		t.Errorf("liveness status = %d, want 200", w.Code)
	}

	// Not ready until Run starts things up.
	w = s.do(t, request{method: http.MethodGet, path: "/health/ready"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness status = %d, want 503 before Run", w.Code)
	}

	w = s.do(t, request{method: http.MethodGet, path: "/"})
	if w.Code != http.StatusOK {
		t.Fatalf("platform info status = %d", w.Code)
	}
	var info struct {
		Wagers struct {
			MinStake int64 `json:"minStake"`
		} `json:"wagers"`
	}
	decode(t, w, &info)
	if info.Wagers.MinStake != 100 {
		t.Errorf("minStake = %d, want 100", info.Wagers.MinStake)
	}
}

func TestMutationsRequireAuth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, request{
		method: http.MethodPost,
		path:   "/v1/wagers",
		body:   map[string]any{"game": "rocket-arena", "stake": 1000},
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated create status = %d, want 401", w.Code)
	}
}

func TestAdminEndpointsNeedSecret(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, request{
		method: http.MethodPost,
		path:   "/v1/admin/deposits",
		body:   map[string]any{"userId": "alice", "amount": 1000},
		admin:  "wrong",
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("wrong secret status = %d, want 403", w.Code)
	}
}

func TestBalanceIsOwnerOnly(t *testing.T) {
	s := newTestServer(t)
	aliceKey := s.register(t, "alice")
	bobKey := s.register(t, "bob")

	w := s.do(t, request{method: http.MethodGet, path: "/v1/users/alice/balance", bearer: aliceKey})
	if w.Code != http.StatusOK {
		t.Errorf("own balance status = %d, want 200", w.Code)
	}
	w = s.do(t, request{method: http.MethodGet, path: "/v1/users/alice/balance", bearer: bobKey})
	if w.Code != http.StatusForbidden {
		t.Errorf("other's balance status = %d, want 403", w.Code)
	}
}

func TestWagerLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	aliceKey := s.register(t, "alice")
	bobKey := s.register(t, "bob")
	s.deposit(t, "alice", 10_000)

	// alice creates a wager staking 1000.
	w := s.do(t, request{
		method: http.MethodPost,
		path:   "/v1/wagers",
		body:   map[string]any{"game": "rocket-arena", "stake": 1000},
		bearer: aliceKey,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}
	var created struct {
		Wager struct {
			ID string `json:"id"`
		} `json:"wager"`
	}
	decode(t, w, &created)
	id := created.Wager.ID

	// bob accepts and the match starts.
	for _, step := range []struct {
		path   string
		bearer string
	}{
		{"/v1/wagers/" + id + "/accept", bobKey},
		{"/v1/wagers/" + id + "/start", bobKey},
	} {
		w = s.do(t, request{method: http.MethodPost, path: step.path, bearer: step.bearer})
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d, body %s", step.path, w.Code, w.Body.String())
		}
	}

	// Both report bob won.
	for _, key := range []string{bobKey, aliceKey} {
		w = s.do(t, request{
			method: http.MethodPost,
			path:   "/v1/wagers/" + id + "/proof",
			body:   map[string]any{"claimedWinner": "bob"},
			bearer: key,
		})
		if w.Code != http.StatusOK && w.Code != http.StatusCreated {
			t.Fatalf("proof status = %d, body %s", w.Code, w.Body.String())
		}
	}

	// The wager settles: bob gets 950, platform keeps 50.
	w = s.do(t, request{method: http.MethodGet, path: "/v1/wagers/" + id})
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got struct {
		Wager struct {
			Status       string `json:"status"`
			Winner       string `json:"winner"`
			PayoutAmount int64  `json:"payoutAmount"`
			PlatformFee  int64  `json:"platformFee"`
		} `json:"wager"`
	}
	decode(t, w, &got)
	if got.Wager.Status != "completed" || got.Wager.Winner != "bob" {
		t.Fatalf("wager = %+v, want completed with winner bob", got.Wager)
	}
	if got.Wager.PayoutAmount != 950 || got.Wager.PlatformFee != 50 {
		t.Errorf("payout/fee = %d/%d, want 950/50", got.Wager.PayoutAmount, got.Wager.PlatformFee)
	}

	// bob's winnings are in his available balance.
	w = s.do(t, request{method: http.MethodGet, path: "/v1/users/bob/balance", bearer: bobKey})
	if w.Code != http.StatusOK {
		t.Fatalf("balance status = %d", w.Code)
	}
	var bal struct {
		Balance struct {
			Available int64 `json:"available"`
		} `json:"balance"`
	}
	decode(t, w, &bal)
	if bal.Balance.Available != 950 {
		t.Errorf("bob's available = %d, want 950", bal.Balance.Available)
	}
}

func TestCreateWagerWithoutFundsIs402(t *testing.T) {
	s := newTestServer(t)
	aliceKey := s.register(t, "alice")

	w := s.do(t, request{
		method: http.MethodPost,
		path:   "/v1/wagers",
		body:   map[string]any{"game": "rocket-arena", "stake": 1000},
		bearer: aliceKey,
	})
	if w.Code != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402", w.Code)
	}
}
