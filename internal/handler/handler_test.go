package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	logger "github.com/soulteary/logger-kit"

	"github.com/soulteary/herald-shell/internal/config"
	"github.com/soulteary/herald-shell/internal/netstate"
	"github.com/soulteary/herald-shell/internal/session"
	"github.com/soulteary/herald-shell/internal/store"
	"github.com/soulteary/herald-shell/internal/token"
)

var testTabs = session.Tabs{
	Prism: "https://app.example.test/api/prism",
	Feed:  "https://app.example.test/api/feed",
}

type fakeNetwork struct {
	connected bool
}

func (f *fakeNetwork) Fetch(context.Context) netstate.State { return f.State() }

func (f *fakeNetwork) State() netstate.State {
	return netstate.State{Connected: f.connected, CheckedAt: time.Unix(1700000000, 0)}
}

type handlerEnv struct {
	st  *store.Store
	sm  *session.Manager
	nw  *fakeNetwork
	mr  *miniredis.Miniredis
	log *logger.Logger
	app *fiber.App
}

func setupHandlerTest(t *testing.T, tb *token.Builder) *handlerEnv {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	env := &handlerEnv{
		st:  store.NewStore(rdb, 0, time.Minute),
		sm:  session.NewManager(testTabs),
		nw:  &fakeNetwork{connected: true},
		mr:  mr,
		log: logger.New(logger.Config{Level: logger.Disabled}),
	}
	if tb == nil {
		tb = token.NewBuilder()
	}
	env.app = fiber.New()
	env.mount(tb)
	return env
}

func (e *handlerEnv) mount(tb *token.Builder) {
	e.app.Post("/login", Login(e.st, e.sm, e.nw, tb, e.log))
	e.app.Get("/session", Session(e.st, e.sm))
	e.app.Post("/session/tab", SwitchTab(e.st, e.sm, e.log))
	e.app.Post("/logout", Logout(e.st, e.sm, e.log))
	e.app.Get("/webview", Webview(e.st, e.sm))
	e.app.Post("/webview/error", WebviewError(e.nw, e.log))
	e.app.Get("/network", NetworkStatus(e.nw))
}

func postJSON(t *testing.T, app *fiber.App, path, device, body string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest("POST", path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if device != "" {
		req.Header.Set(HeaderDeviceID, device)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes()
}

func get(t *testing.T, app *fiber.App, path, device string) (int, []byte, string) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if device != "" {
		req.Header.Set(HeaderDeviceID, device)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes(), resp.Header.Get("Location")
}

func TestLogin_BadRequest(t *testing.T) {
	e := setupHandlerTest(t, nil)

	status, _ := postJSON(t, e.app, "/login", "", "{")
	if status != 400 {
		t.Errorf("invalid JSON status = %d, want 400", status)
	}

	status, body := postJSON(t, e.app, "/login", "", `{"email":""}`)
	if status != 400 {
		t.Errorf("empty email status = %d, want 400", status)
	}
	var out ErrorResponse
	_ = json.Unmarshal(body, &out)
	if out.Reason != "invalid_request" || out.Message != "Please enter email" {
		t.Errorf("error body = %+v", out)
	}

	status, _ = postJSON(t, e.app, "/login", "bad:device", `{"email":"a@b.com"}`)
	if status != 400 {
		t.Errorf("invalid device status = %d, want 400", status)
	}
}

func TestLogin_Offline(t *testing.T) {
	e := setupHandlerTest(t, nil)
	e.nw.connected = false

	status, body := postJSON(t, e.app, "/login", "d1", `{"email":"a@b.com"}`)
	if status != 503 {
		t.Fatalf("status = %d, want 503", status)
	}
	var out ErrorResponse
	_ = json.Unmarshal(body, &out)
	if out.Reason != "offline" || out.Message != offlineLoginMessage {
		t.Errorf("error body = %+v", out)
	}
	if e.mr.Exists("shell:d1:authToken") {
		t.Error("offline login must not persist a token")
	}
	if e.sm.Get("d1") != nil {
		t.Error("offline login must not open a session")
	}
}

func TestLogin_Success(t *testing.T) {
	e := setupHandlerTest(t, nil)

	status, body := postJSON(t, e.app, "/login", "d1", `{"email":"a@b.com"}`)
	if status != 200 {
		t.Fatalf("status = %d, want 200: %s", status, body)
	}
	var out LoginResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.OK || out.DeviceID != "d1" || out.Tab != session.TabPrism {
		t.Errorf("LoginResponse = %+v", out)
	}
	if out.WebviewURL != testTabs.Prism+"?token="+out.Token {
		t.Errorf("WebviewURL = %q", out.WebviewURL)
	}

	d, err := token.Decode(out.Token)
	if err != nil {
		t.Fatalf("token.Decode: %v", err)
	}
	if d.Claims.Email != "a@b.com" || d.Claims.Username != d.Claims.Subject {
		t.Errorf("claims = %+v", d.Claims)
	}

	stored, err := e.mr.Get("shell:d1:authToken")
	if err != nil || stored != out.Token {
		t.Errorf("stored authToken = %q, %v", stored, err)
	}
	email, _ := e.mr.Get("shell:d1:userEmail")
	if email != "a@b.com" {
		t.Errorf("stored userEmail = %q", email)
	}
}

func TestLogin_IssuesDeviceID(t *testing.T) {
	e := setupHandlerTest(t, nil)
	status, body := postJSON(t, e.app, "/login", "", `{"email":"a@b.com"}`)
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	var out LoginResponse
	_ = json.Unmarshal(body, &out)
	if !strings.HasPrefix(out.DeviceID, idPrefixDevice) {
		t.Errorf("DeviceID = %q, want d_ prefix", out.DeviceID)
	}

	status, body = postJSON(t, e.app, "/login", "", `{"email":"a@b.com","device_id":"tablet-7"}`)
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	_ = json.Unmarshal(body, &out)
	if out.DeviceID != "tablet-7" {
		t.Errorf("DeviceID = %q, want tablet-7 from body", out.DeviceID)
	}
}

func TestLogin_KeepsEmailVerbatim(t *testing.T) {
	e := setupHandlerTest(t, nil)
	status, body := postJSON(t, e.app, "/login", "d1", `{"email":" Mixed@Case.com "}`)
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	var out LoginResponse
	_ = json.Unmarshal(body, &out)
	d, err := token.Decode(out.Token)
	if err != nil {
		t.Fatalf("token.Decode: %v", err)
	}
	if d.Claims.Email != " Mixed@Case.com " {
		t.Errorf("email claim = %q", d.Claims.Email)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestLogin_TokenError(t *testing.T) {
	e := setupHandlerTest(t, token.NewBuilder(token.WithRandom(failingReader{})))

	status, body := postJSON(t, e.app, "/login", "d1", `{"email":"a@b.com"}`)
	if status != 500 {
		t.Fatalf("status = %d, want 500", status)
	}
	var out ErrorResponse
	_ = json.Unmarshal(body, &out)
	if out.Reason != "token_error" {
		t.Errorf("reason = %q, want token_error", out.Reason)
	}
	if e.mr.Exists("shell:d1:authToken") || e.mr.Exists("shell:d1:userEmail") {
		t.Error("failed login must not persist anything")
	}
}

func TestLogin_StoreUnavailable(t *testing.T) {
	e := setupHandlerTest(t, nil)
	e.mr.Close()

	status, _ := postJSON(t, e.app, "/login", "d1", `{"email":"a@b.com"}`)
	if status != 500 {
		t.Fatalf("status = %d, want 500", status)
	}
	if e.sm.Get("d1") != nil {
		t.Error("session must not be opened when persistence fails")
	}
}

func TestLogin_RateLimited(t *testing.T) {
	e := setupHandlerTest(t, nil)
	old := config.RateLimitPerIP
	config.RateLimitPerIP = 0
	defer func() { config.RateLimitPerIP = old }()

	status, _ := postJSON(t, e.app, "/login", "d1", `{"email":"a@b.com"}`)
	if status != 429 {
		t.Errorf("status = %d, want 429", status)
	}
}

func TestSession(t *testing.T) {
	e := setupHandlerTest(t, nil)

	status, _, _ := get(t, e.app, "/session", "")
	if status != 400 {
		t.Errorf("missing device status = %d, want 400", status)
	}

	status, body, _ := get(t, e.app, "/session", "d1")
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	var out SessionResponse
	_ = json.Unmarshal(body, &out)
	if out.Authenticated || out.URL != testTabs.Prism || out.Tab != session.TabPrism {
		t.Errorf("anonymous session = %+v", out)
	}

	if s, _ := postJSON(t, e.app, "/login", "d1", `{"email":"a@b.com"}`); s != 200 {
		t.Fatalf("login status = %d", s)
	}
	_, body, _ = get(t, e.app, "/session", "d1")
	_ = json.Unmarshal(body, &out)
	if !out.Authenticated || out.Email != "a@b.com" || out.Subject == "" || out.WebviewURL == "" {
		t.Errorf("session after login = %+v", out)
	}
}

func TestSession_RestoredFromStore(t *testing.T) {
	e := setupHandlerTest(t, nil)
	if s, _ := postJSON(t, e.app, "/login", "d1", `{"email":"a@b.com"}`); s != 200 {
		t.Fatalf("login status = %d", s)
	}
	if s, _ := postJSON(t, e.app, "/session/tab", "d1", `{"tab":"feed"}`); s != 200 {
		t.Fatalf("tab status = %d", s)
	}

	// Simulate a restart: fresh in-memory sessions, same Redis.
	e.sm = session.NewManager(testTabs)
	e.app = fiber.New()
	e.mount(token.NewBuilder())

	status, body, _ := get(t, e.app, "/session", "d1")
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	var out SessionResponse
	_ = json.Unmarshal(body, &out)
	if !out.Authenticated || out.Email != "a@b.com" || out.Tab != session.TabFeed {
		t.Errorf("restored session = %+v", out)
	}
}

func TestSwitchTab(t *testing.T) {
	e := setupHandlerTest(t, nil)

	status, _ := postJSON(t, e.app, "/session/tab", "d1", `{"tab":"settings"}`)
	if status != 400 {
		t.Errorf("unknown tab status = %d, want 400", status)
	}
	status, _ = postJSON(t, e.app, "/session/tab", "", `{"tab":"feed"}`)
	if status != 400 {
		t.Errorf("missing device status = %d, want 400", status)
	}

	if s, _ := postJSON(t, e.app, "/login", "d1", `{"email":"a@b.com"}`); s != 200 {
		t.Fatalf("login status = %d", s)
	}
	status, body := postJSON(t, e.app, "/session/tab", "d1", `{"tab":"feed"}`)
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	var out SessionResponse
	_ = json.Unmarshal(body, &out)
	if out.Tab != session.TabFeed || out.URL != testTabs.Feed {
		t.Errorf("after feed = %+v", out)
	}
	if !strings.HasPrefix(out.WebviewURL, testTabs.Feed+"?token=") {
		t.Errorf("WebviewURL = %q", out.WebviewURL)
	}
	if u, _ := e.mr.Get("shell:d1:currentURL"); u != testTabs.Feed {
		t.Errorf("stored currentURL = %q", u)
	}

	_, body = postJSON(t, e.app, "/session/tab", "d1", `{"tab":"prism"}`)
	_ = json.Unmarshal(body, &out)
	if out.Tab != session.TabPrism {
		t.Errorf("after prism = %+v", out)
	}
}

func TestSwitchTab_BeforeLogin(t *testing.T) {
	e := setupHandlerTest(t, nil)
	status, body := postJSON(t, e.app, "/session/tab", "d1", `{"tab":"feed"}`)
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	var out SessionResponse
	_ = json.Unmarshal(body, &out)
	if out.Authenticated || out.Tab != session.TabFeed || out.WebviewURL != "" {
		t.Errorf("anonymous tab switch = %+v", out)
	}
}

func TestWebview(t *testing.T) {
	e := setupHandlerTest(t, nil)

	status, _, _ := get(t, e.app, "/webview", "d1")
	if status != 401 {
		t.Errorf("no session status = %d, want 401", status)
	}

	_, body := postJSON(t, e.app, "/login", "d1", `{"email":"a@b.com"}`)
	var login LoginResponse
	_ = json.Unmarshal(body, &login)

	status, _, location := get(t, e.app, "/webview", "d1")
	if status != 302 {
		t.Fatalf("status = %d, want 302", status)
	}
	if location != testTabs.Prism+"?token="+login.Token {
		t.Errorf("Location = %q", location)
	}
}

func TestWebviewError(t *testing.T) {
	e := setupHandlerTest(t, nil)

	_, body := postJSON(t, e.app, "/webview/error", "d1", `{}`)
	var out LoadErrorResponse
	_ = json.Unmarshal(body, &out)
	if !out.Online || out.Title != "Error" {
		t.Errorf("online alert = %+v", out)
	}

	e.nw.connected = false
	_, body = postJSON(t, e.app, "/webview/error", "d1", `{}`)
	_ = json.Unmarshal(body, &out)
	if out.Online || out.Title != "Offline" {
		t.Errorf("offline alert = %+v", out)
	}
}

func TestLogout(t *testing.T) {
	e := setupHandlerTest(t, nil)
	if s, _ := postJSON(t, e.app, "/login", "d1", `{"email":"a@b.com"}`); s != 200 {
		t.Fatalf("login status = %d", s)
	}
	status, _ := postJSON(t, e.app, "/logout", "d1", `{}`)
	if status != 200 {
		t.Fatalf("logout status = %d", status)
	}
	if e.mr.Exists("shell:d1:authToken") {
		t.Error("logout should remove authToken")
	}
	if e.sm.Get("d1") != nil {
		t.Error("logout should end the session")
	}
	status, _, _ = get(t, e.app, "/webview", "d1")
	if status != 401 {
		t.Errorf("webview after logout status = %d, want 401", status)
	}
}

func TestNetworkStatus(t *testing.T) {
	e := setupHandlerTest(t, nil)
	e.nw.connected = false
	status, body, _ := get(t, e.app, "/network", "")
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	var out netstate.State
	_ = json.Unmarshal(body, &out)
	if out.Connected {
		t.Error("network status should report offline")
	}
}

func TestLogin_KeepsPersistedTabAcrossRestart(t *testing.T) {
	e := setupHandlerTest(t, nil)
	if s, _ := postJSON(t, e.app, "/login", "d1", `{"email":"a@b.com"}`); s != 200 {
		t.Fatalf("login status = %d", s)
	}
	if s, _ := postJSON(t, e.app, "/session/tab", "d1", `{"tab":"feed"}`); s != 200 {
		t.Fatalf("tab status = %d", s)
	}

	restart := func() {
		e.sm = session.NewManager(testTabs)
		e.app = fiber.New()
		e.mount(token.NewBuilder())
	}

	restart()
	status, body := postJSON(t, e.app, "/login", "d1", `{"email":"a@b.com"}`)
	if status != 200 {
		t.Fatalf("re-login status = %d", status)
	}
	var login LoginResponse
	_ = json.Unmarshal(body, &login)
	if login.Tab != session.TabFeed {
		t.Errorf("re-login tab = %q, want feed", login.Tab)
	}
	if login.WebviewURL != testTabs.Feed+"?token="+login.Token {
		t.Errorf("re-login WebviewURL = %q", login.WebviewURL)
	}
	if u, _ := e.mr.Get("shell:d1:currentURL"); u != testTabs.Feed {
		t.Errorf("stored currentURL = %q, want feed", u)
	}

	restart()
	_, body, _ = get(t, e.app, "/session", "d1")
	var out SessionResponse
	_ = json.Unmarshal(body, &out)
	if out.Tab != login.Tab {
		t.Errorf("restored tab = %q, login reported %q", out.Tab, login.Tab)
	}
}

func TestLogin_FirstLoginPersistsPrism(t *testing.T) {
	e := setupHandlerTest(t, nil)
	if s, _ := postJSON(t, e.app, "/login", "d1", `{"email":"a@b.com"}`); s != 200 {
		t.Fatalf("login status = %d", s)
	}
	if u, _ := e.mr.Get("shell:d1:currentURL"); u != testTabs.Prism {
		t.Errorf("stored currentURL = %q, want prism", u)
	}
}
