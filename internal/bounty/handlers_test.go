package bounty

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/matchpit/bounty/internal/escrow"
)

func setupTestRouter(t *testing.T) (*gin.Engine, *Service, *mockLedger) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := NewMemoryStore()
	ledger := newMockLedger()
	svc := NewService(store, ledger, testConfig(), testLogger())
	handler := NewHandler(svc)

	r := gin.New()
	v1 := r.Group("/v1")
	handler.RegisterRoutes(v1)

	// Use the X-User-ID header as a test stand-in for auth middleware.
	authGroup := v1.Group("")
	authGroup.Use(func(c *gin.Context) {
		if user := c.GetHeader("X-User-ID"); user != "" {
			c.Set("authUserID", user)
		}
		c.Next()
	})
	handler.RegisterProtectedRoutes(authGroup)

	return r, svc, ledger
}

func doJSON(t *testing.T, router *gin.Engine, method, path, user string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandler_CreateAndGetWager(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	w := doJSON(t, router, "POST", "/v1/wagers", "alice", CreateRequest{
		Game:        "sf6",
		Description: "ft5 grand finals runback",
		Stake:       1000,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var createResp struct {
		Wager struct {
			ID     string `json:"id"`
			Status string `json:"status"`
			Stake  int64  `json:"stakeAmount"`
		} `json:"wager"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &createResp)

	if createResp.Wager.Status != "open" {
		t.Errorf("Expected status open, got %s", createResp.Wager.Status)
	}
	if createResp.Wager.Stake != 1000 {
		t.Errorf("Expected stake 1000, got %d", createResp.Wager.Stake)
	}

	w = doJSON(t, router, "GET", "/v1/wagers/"+createResp.Wager.ID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandler_CreateValidation(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	// Missing game.
	w := doJSON(t, router, "POST", "/v1/wagers", "alice", map[string]any{"stake": 1000})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Missing game: expected 400, got %d", w.Code)
	}

	// Stake below the band.
	w = doJSON(t, router, "POST", "/v1/wagers", "alice", CreateRequest{Game: "sf6", Stake: 50})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Tiny stake: expected 400, got %d: %s", w.Code, w.Body.String())
	}

	// Bad user id from auth.
	w = doJSON(t, router, "POST", "/v1/wagers", "a", CreateRequest{Game: "sf6", Stake: 1000})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Bad user id: expected 400, got %d", w.Code)
	}
}

func TestHandler_MalformedWagerID(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	w := doJSON(t, router, "GET", "/v1/wagers/not-a-wager-id", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed id, got %d", w.Code)
	}

	w = doJSON(t, router, "GET", "/v1/wagers/wgr_000000000000000000000000", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown id, got %d", w.Code)
	}
}

func TestHandler_InsufficientFundsMapsTo402(t *testing.T) {
	router, _, ledger := setupTestRouter(t)
	ledger.holdErr = escrow.ErrInsufficientFunds

	w := doJSON(t, router, "POST", "/v1/wagers", "alice", CreateRequest{Game: "sf6", Stake: 1000})
	if w.Code != http.StatusPaymentRequired {
		t.Errorf("Expected 402, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandler_FullLifecycle(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	w := doJSON(t, router, "POST", "/v1/wagers", "alice", CreateRequest{Game: "sf6", Stake: 1000})
	if w.Code != http.StatusCreated {
		t.Fatalf("Create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var createResp struct {
		Wager struct {
			ID string `json:"id"`
		} `json:"wager"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &createResp)
	id := createResp.Wager.ID

	if w = doJSON(t, router, "POST", "/v1/wagers/"+id+"/accept", "bob", nil); w.Code != http.StatusOK {
		t.Fatalf("Accept: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w = doJSON(t, router, "POST", "/v1/wagers/"+id+"/start", "bob", nil); w.Code != http.StatusOK {
		t.Fatalf("Start: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "POST", "/v1/wagers/"+id+"/proof", "alice", map[string]any{
		"claimedWinner": "bob",
		"evidenceUrls":  []string{"https://clips.example.com/abc"},
		"evidenceType":  "vod",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("First proof: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "POST", "/v1/wagers/"+id+"/proof", "bob", map[string]any{
		"claimedWinner": "bob",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Second proof: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var proofResp struct {
		Wager struct {
			Status string `json:"status"`
			Winner string `json:"winner"`
		} `json:"wager"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &proofResp)
	if proofResp.Wager.Status != "completed" || proofResp.Wager.Winner != "bob" {
		t.Errorf("Expected completed/bob, got %s/%s", proofResp.Wager.Status, proofResp.Wager.Winner)
	}

	w = doJSON(t, router, "GET", "/v1/wagers/"+id+"/proofs", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ListProofs: expected 200, got %d", w.Code)
	}
	var listResp struct {
		Count int `json:"count"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &listResp)
	if listResp.Count != 2 {
		t.Errorf("Expected 2 proofs, got %d", listResp.Count)
	}
}

func TestHandler_DisputeConflicts(t *testing.T) {
	router, svc, _ := setupTestRouter(t)

	snap := startedWager(t, svc, "alice", "bob", 1000)
	w := doJSON(t, router, "POST", "/v1/wagers/"+snap.ID+"/proof", "alice", map[string]any{
		"claimedWinner": "alice",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Proof: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// The submitter cannot dispute their own proof.
	w = doJSON(t, router, "POST", "/v1/wagers/"+snap.ID+"/dispute", "alice", map[string]any{
		"reason": "changed my mind",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Own-proof dispute: expected 400, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/v1/wagers/"+snap.ID+"/dispute", "bob", map[string]any{
		"reason": "screenshot is doctored",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Dispute: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// Cancelling a disputed wager is a state conflict.
	w = doJSON(t, router, "POST", "/v1/wagers/"+snap.ID+"/cancel", "alice", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Cancel while disputed: expected 409, got %d", w.Code)
	}
}

func TestHandler_ListActiveWagers(t *testing.T) {
	router, svc, _ := setupTestRouter(t)

	mustCreate(t, svc, "alice", 1000)
	mustCreate(t, svc, "alice", 2000)

	w := doJSON(t, router, "GET", "/v1/users/alice/wagers", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Count int `json:"count"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Count != 2 {
		t.Errorf("Expected 2 active wagers, got %d", resp.Count)
	}
}
