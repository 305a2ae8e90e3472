package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/atmx/signal-monitor/internal/api"
	"github.com/atmx/signal-monitor/internal/model"
	"github.com/atmx/signal-monitor/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type recordingInvalidator struct {
	traderID     string
	communityIDs []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, traderID string, communityIDs ...string) {
	r.traderID = traderID
	r.communityIDs = communityIDs
}

// newTestEnv creates a handler with an in-memory store and the full router.
func newTestEnv(t *testing.T) (*store.MemoryStore, *recordingInvalidator, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	inv := &recordingInvalidator{}
	r := api.NewRouter(api.NewHandler(ms, inv), nil)
	return ms, inv, r
}

// seedSignal stores a signal, opened when open is true.
func seedSignal(t *testing.T, ms *store.MemoryStore, id string, open bool) *model.Signal {
	t.Helper()
	sig := &model.Signal{
		ID:        id,
		TraderID:  "trader-1",
		Pair:      "BTC/USDT",
		Direction: model.Long,
		Leverage:  d(2),
		Entry:     d(100),
		Stop:      d(90),
		Targets:   []decimal.Decimal{d(110)},
		Lifecycle: model.Lifecycle{IsNew: !open, IsOpen: open},
		CreatedAt: time.Now().UTC(),
	}
	if err := ms.CreateSignal(context.Background(), sig); err != nil {
		t.Fatalf("failed to seed signal: %v", err)
	}
	return sig
}

func do(t *testing.T, router chi.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeSignal(t *testing.T, w *httptest.ResponseRecorder) api.SignalResponse {
	t.Helper()
	var resp api.SignalResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

// --- Health ---

func TestHealth(t *testing.T) {
	_, _, router := newTestEnv(t)
	w := do(t, router, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}

// --- Get ---

func TestGetSignal(t *testing.T) {
	ms, _, router := newTestEnv(t)
	seedSignal(t, ms, "sig-1", true)

	w := do(t, router, "GET", "/api/v1/signals/sig-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeSignal(t, w)
	if resp.ID != "sig-1" || resp.State != model.StateOpen {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestGetSignal_NotFound(t *testing.T) {
	_, _, router := newTestEnv(t)
	w := do(t, router, "GET", "/api/v1/signals/missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

// --- Create ---

func TestCreateSignal(t *testing.T) {
	ms, _, router := newTestEnv(t)

	body := `{"user_id":"trader-1","role":"trader","trader_id":"trader-1","username":"alice",
		"pair":"ethusdt","direction":"short","leverage":"5","entry":"3000","stop":"3100",
		"targets":["2900","2800"],"strategy":"range"}`
	w := do(t, router, "POST", "/api/v1/signals", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeSignal(t, w)
	if resp.ID == "" {
		t.Fatal("expected generated id")
	}
	if resp.Pair != "ETH/USDT" || resp.Direction != model.Short {
		t.Errorf("pair/direction not normalized: %s %s", resp.Pair, resp.Direction)
	}
	if resp.State != model.StatePending || !resp.Lifecycle.IsNew {
		t.Errorf("new signal should be PENDING and new, got %s", resp.State)
	}

	stored, err := ms.GetSignal(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("signal not stored: %v", err)
	}
	if !stored.Leverage.Equal(d(5)) {
		t.Errorf("leverage = %s", stored.Leverage)
	}
}

func TestCreateSignal_AdminWithObjectRole(t *testing.T) {
	_, _, router := newTestEnv(t)

	body := `{"user_id":"ops","role":{"name":"admin","id":7},"trader_id":"trader-9",
		"pair":"BTC/USDT","direction":"LONG","entry":"100","stop":"90","targets":["110"]}`
	w := do(t, router, "POST", "/api/v1/signals", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if resp := decodeSignal(t, w); !resp.Leverage.Equal(d(1)) {
		t.Errorf("leverage should default to 1, got %s", resp.Leverage)
	}
}

func TestCreateSignal_Rejected(t *testing.T) {
	_, _, router := newTestEnv(t)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"member", `{"user_id":"u","role":"member","trader_id":"u","pair":"BTC/USDT","direction":"LONG","entry":"1","stop":"1","targets":["2"]}`, http.StatusForbidden},
		{"other trader", `{"user_id":"t2","role":"trader","trader_id":"t1","pair":"BTC/USDT","direction":"LONG","entry":"1","stop":"1","targets":["2"]}`, http.StatusForbidden},
		{"bad pair", `{"user_id":"t1","role":"trader","trader_id":"t1","pair":"??","direction":"LONG","entry":"1","stop":"1","targets":["2"]}`, http.StatusBadRequest},
		{"no targets", `{"user_id":"t1","role":"trader","trader_id":"t1","pair":"BTC/USDT","direction":"LONG","entry":"1","stop":"1","targets":[]}`, http.StatusBadRequest},
		{"unordered targets", `{"user_id":"t1","role":"trader","trader_id":"t1","pair":"BTC/USDT","direction":"LONG","entry":"100","stop":"90","targets":["120","110"]}`, http.StatusBadRequest},
		{"bad direction", `{"user_id":"t1","role":"trader","trader_id":"t1","pair":"BTC/USDT","direction":"UP","entry":"1","stop":"1","targets":["2"]}`, http.StatusBadRequest},
		{"role shape", `{"user_id":"t1","role":42,"trader_id":"t1","pair":"BTC/USDT","direction":"LONG","entry":"1","stop":"1","targets":["2"]}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/signals", tc.body)
			if w.Code != tc.code {
				t.Errorf("expected %d, got %d: %s", tc.code, w.Code, w.Body.String())
			}
		})
	}
}

// --- Manual close ---

func TestRequestClose_ByOwner(t *testing.T) {
	ms, _, router := newTestEnv(t)
	seedSignal(t, ms, "sig-1", true)

	w := do(t, router, "POST", "/api/v1/signals/sig-1/close", `{"user_id":"trader-1","role":"trader"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeSignal(t, w)
	if !resp.Lifecycle.IsManualCloseRequested {
		t.Error("flag not set")
	}
	if resp.Version != 1 {
		t.Errorf("version = %d, want 1", resp.Version)
	}

	// Repeating the request is idempotent.
	w = do(t, router, "POST", "/api/v1/signals/sig-1/close", `{"user_id":"trader-1","role":"trader"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if resp := decodeSignal(t, w); resp.Version != 1 {
		t.Errorf("repeat request bumped version to %d", resp.Version)
	}
}

func TestRequestClose_ByAdmin(t *testing.T) {
	ms, _, router := newTestEnv(t)
	seedSignal(t, ms, "sig-1", true)

	w := do(t, router, "POST", "/api/v1/signals/sig-1/close", `{"user_id":"ops","role":{"name":"admin"}}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRequestClose_Forbidden(t *testing.T) {
	ms, _, router := newTestEnv(t)
	seedSignal(t, ms, "sig-1", true)

	for _, body := range []string{
		`{"user_id":"trader-2","role":"trader"}`,
		`{"user_id":"trader-1","role":"member"}`,
		`{"user_id":"trader-1"}`,
	} {
		w := do(t, router, "POST", "/api/v1/signals/sig-1/close", body)
		if w.Code != http.StatusForbidden {
			t.Errorf("%s: expected 403, got %d", body, w.Code)
		}
	}
}

func TestRequestClose_PendingConflict(t *testing.T) {
	ms, _, router := newTestEnv(t)
	seedSignal(t, ms, "sig-1", false)

	w := do(t, router, "POST", "/api/v1/signals/sig-1/close", `{"user_id":"trader-1","role":"trader"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	sig, _ := ms.GetSignal(context.Background(), "sig-1")
	if sig.Lifecycle.IsManualCloseRequested {
		t.Error("flag set on PENDING signal")
	}
}

func TestRequestClose_NotFound(t *testing.T) {
	_, _, router := newTestEnv(t)
	w := do(t, router, "POST", "/api/v1/signals/nope/close", `{"user_id":"x","role":"admin"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

// --- Directory ---

func TestInvalidateDirectory(t *testing.T) {
	_, inv, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/directory/invalidate", `{"trader_id":"trader-1","community_ids":["c1","c2"]}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if inv.traderID != "trader-1" || len(inv.communityIDs) != 2 {
		t.Errorf("invalidator got %q %v", inv.traderID, inv.communityIDs)
	}

	w = do(t, router, "POST", "/api/v1/directory/invalidate", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty request, got %d", w.Code)
	}
}

// --- WebSocket ---

func TestHub_BroadcastsLifecycleEvents(t *testing.T) {
	hub := api.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(api.NewRouter(api.NewHandler(store.NewMemoryStore(), nil), hub))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	target := d(110)
	sig := model.Signal{ID: "sig-1", TraderID: "trader-1", Pair: "BTC/USDT",
		Lifecycle: model.Lifecycle{IsOpen: true}}
	hub.PublishEvent(sig, model.Event{Kind: model.EventTargetHit, Price: d(110.5), Target: &target})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg api.EventMessage
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.SignalID != "sig-1" || msg.EventType != model.TypeTargetHit || msg.Target != "110" || msg.Price != "110.5" {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.State != model.StateOpen {
		t.Errorf("state = %s", msg.State)
	}
}
