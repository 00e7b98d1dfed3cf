package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/automationd/internal/automation"
	"github.com/nerrad567/automationd/internal/infrastructure/config"
	"github.com/nerrad567/automationd/internal/infrastructure/logging"
	"github.com/nerrad567/automationd/internal/modulebus"
	"github.com/nerrad567/automationd/internal/scripthost"
)

// setupTestDB creates an in-memory SQLite database carrying the programs,
// program_executions, modules, and module_parameters schemas (matches the
// migrations under migrations/).
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE programs (
			address        INTEGER PRIMARY KEY,
			name           TEXT NOT NULL,
			domain         TEXT NOT NULL DEFAULT '',
			condition_type TEXT NOT NULL,
			enabled        INTEGER NOT NULL DEFAULT 1,
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL
		);
		CREATE TABLE program_executions (
			id              TEXT PRIMARY KEY,
			program_address INTEGER NOT NULL,
			trigger_type    TEXT NOT NULL,
			trigger_source  TEXT,
			triggered_at    TEXT NOT NULL,
			completed_at    TEXT,
			outcome         TEXT NOT NULL,
			error_message   TEXT,
			duration_ms     INTEGER
		);
		CREATE TABLE modules (
			id         TEXT PRIMARY KEY,
			domain     TEXT NOT NULL,
			protocol   TEXT NOT NULL DEFAULT '',
			name       TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE module_parameters (
			module_id  TEXT NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
			name       TEXT NOT NULL,
			value      TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL,
			PRIMARY KEY (module_id, name)
		);`

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	return db
}

// testServer builds a Server backed by in-memory SQLite repositories and a
// ClosureHost-driven program manager. No MQTT client is wired, matching the
// server's graceful-degradation mode: reads, WebSocket upgrades and the
// dynamic command surface work, live broadcasts do not.
func testServer(t *testing.T) (*Server, *modulebus.Registry, *automation.ProgramManager) {
	t.Helper()

	db := setupTestDB(t)
	log := logging.Default()

	moduleRepo := modulebus.NewSQLiteRepository(db)
	moduleRegistry := modulebus.NewRegistry(moduleRepo)
	moduleRegistry.SetLogger(log)
	if err := moduleRegistry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("refreshing module cache: %v", err)
	}

	programRepo := automation.NewSQLiteRepository(db, t.TempDir())
	host := scripthost.NewClosureHost()
	manager := automation.NewProgramManager(automation.ManagerConfig{
		Host:       host,
		Repository: programRepo,
		Logger:     log,
	})

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    60,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: "test-secret", AccessTokenTTL: 15},
		},
		Logger:      log,
		Modules:     moduleRegistry,
		Manager:     manager,
		ProgramRepo: programRepo,
		Commands:    automation.NewDynamicApiRegistry(),
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, moduleRegistry, manager
}

// rawRequest builds a request with a literal body, bypassing JSON encoding —
// used to exercise malformed-payload handling.
func rawRequest(t *testing.T, method, path string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func recordRequest(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshalling request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

// ─── Health and Middleware Tests ───────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/health", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want %q", body["status"], "ok")
	}
	if body["version"] != "test" {
		t.Errorf("version field = %v, want %q", body["version"], "test")
	}
}

func TestRequestID_Generated(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/health", nil)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-supplied-id")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "client-supplied-id" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-supplied-id")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _, _ := testServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q, want echoed origin", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestNotFound(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/no-such-route", nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

// ─── Auth Tests ─────────────────────────────────────────────────────────────

func TestLogin_Success(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/auth/login", loginRequest{
		Username: "admin",
		Password: "admin",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Error("access_token is empty")
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("token_type = %q, want %q", resp.TokenType, "Bearer")
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/auth/login", loginRequest{
		Username: "admin",
		Password: "wrong",
	})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestWSTicket_SingleUse(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/auth/ws-ticket", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	ticket, _ := body["ticket"].(string)
	if ticket == "" {
		t.Fatal("ticket is empty")
	}

	if !validateTicket(ticket) {
		t.Fatal("validateTicket() = false on first use, want true")
	}
	if validateTicket(ticket) {
		t.Fatal("validateTicket() = true on second use, want false (single-use)")
	}
}

func TestWSTicket_Expiry(t *testing.T) {
	ticket := generateTicket()
	wsTickets.mu.Lock()
	wsTickets.tickets[ticket] = ticketEntry{expiresAt: time.Now().Add(-time.Second)}
	wsTickets.mu.Unlock()

	if validateTicket(ticket) {
		t.Fatal("validateTicket() = true for expired ticket, want false")
	}
}

// ─── WebSocket Hub Tests ────────────────────────────────────────────────────

func newTestClient(hub *Hub, channels ...string) *WSClient {
	c := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 8),
		subscriptions: make(map[string]struct{}),
	}
	for _, ch := range channels {
		c.subscriptions[ch] = struct{}{}
	}
	return c
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, logging.Default())
	client := newTestClient(hub, "module.state_changed")
	hub.Register(client)

	hub.Broadcast("module.state_changed", map[string]any{"id": "mod-1"})

	select {
	case msg := <-client.send:
		var decoded WSMessage
		if err := json.Unmarshal(msg, &decoded); err != nil {
			t.Fatalf("decoding broadcast message: %v", err)
		}
		if decoded.EventType != "module.state_changed" {
			t.Errorf("event_type = %q, want %q", decoded.EventType, "module.state_changed")
		}
	default:
		t.Fatal("expected a message on subscribed client's send channel")
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, logging.Default())
	client := newTestClient(hub, "program.status_changed")
	hub.Register(client)

	hub.Broadcast("module.state_changed", map[string]any{"id": "mod-1"})

	select {
	case <-client.send:
		t.Fatal("unsubscribed client received a message")
	default:
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, logging.Default())
	if hub.ClientCount() != 0 {
		t.Fatalf("ClientCount() = %d, want 0", hub.ClientCount())
	}

	c1 := newTestClient(hub)
	c2 := newTestClient(hub)
	hub.Register(c1)
	hub.Register(c2)
	if hub.ClientCount() != 2 {
		t.Fatalf("ClientCount() = %d, want 2", hub.ClientCount())
	}

	hub.Unregister(c1)
	if hub.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d, want 1", hub.ClientCount())
	}
}

// ─── Server Lifecycle Tests ─────────────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	srv, _, _ := testServer(t)
	srv.cfg.Host = "127.0.0.1"
	srv.cfg.Port = 0 // ephemeral port, avoids colliding with a real listener

	ctx := context.Background()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestServer_HealthCheck(t *testing.T) {
	srv, _, _ := testServer(t)

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start() = nil, want error")
	}

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Close()

	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() after Start() = %v, want nil", err)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := srv.HealthCheck(cancelled); err == nil {
		t.Error("HealthCheck() with cancelled context = nil, want error")
	}
}

func TestIsAllowedOrigin_EmptyAllowsAll(t *testing.T) {
	srv, _, _ := testServer(t)
	if !srv.isAllowedOrigin("http://anything.example") {
		t.Error("isAllowedOrigin() = false with empty allow-list, want true")
	}
}

func TestIsAllowedOrigin_Restricted(t *testing.T) {
	srv, _, _ := testServer(t)
	srv.cfg.CORS.AllowedOrigins = []string{"http://good.example"}

	if !srv.isAllowedOrigin("http://good.example") {
		t.Error("isAllowedOrigin() = false for an allowed origin, want true")
	}
	if srv.isAllowedOrigin("http://bad.example") {
		t.Error("isAllowedOrigin() = true for a disallowed origin, want false")
	}
}

func TestErrorResponse_Shape(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/modules/does-not-exist", nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	var errBody Error
	if err := json.Unmarshal(rec.Body.Bytes(), &errBody); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if errBody.Code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", errBody.Code, ErrCodeNotFound)
	}
	if !strings.Contains(errBody.Message, "not found") {
		t.Errorf("message = %q, want it to mention not found", errBody.Message)
	}
}
