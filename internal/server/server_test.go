package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"agrovision/internal/app"
	"agrovision/internal/ratelimit"
	"agrovision/pkg/domain"
	"agrovision/pkg/store"
)

type stubAnalyzer struct {
	result domain.AnalysisResult
	err    error
}

func (s *stubAnalyzer) AnalyzeImage(_ context.Context, _ []byte, _ domain.Language) (domain.AnalysisResult, error) {
	if s.err != nil {
		return domain.AnalysisResult{}, s.err
	}
	return s.result, nil
}

type stubAssistant struct {
	reply string
	err   error
}

func (s *stubAssistant) Reply(_ context.Context, _ []domain.ChatMessage, _ domain.Language) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

type testEnv struct {
	srv     *httptest.Server
	records *store.MemoryRecordStore
}

func newTestEnv(t *testing.T, analyzer *stubAnalyzer, assistant *stubAssistant) *testEnv {
	t.Helper()
	records := store.NewMemoryRecordStore()
	core, err := app.New(app.Config{
		Records:   records,
		Sessions:  store.NewMemorySessionStore(),
		Analyzer:  analyzer,
		Assistant: assistant,
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	srv := httptest.NewServer(New(Config{App: core}).Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, records: records}
}

func (e *testEnv) request(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func (e *testEnv) login(t *testing.T, email string) string {
	t.Helper()
	resp, payload := e.request(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d: %v", resp.StatusCode, payload)
	}
	token, _ := payload["token"].(string)
	if token == "" {
		t.Fatal("login returned no token")
	}
	return token
}

func pngBase64(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{G: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func healthyStub() *stubAnalyzer {
	return &stubAnalyzer{result: domain.AnalysisResult{
		CropName:             "Tomato",
		HealthStatus:         domain.StatusHealthy,
		Confidence:           0.9,
		Recommendations:      []string{},
		PreventativeMeasures: []string{},
	}}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, healthyStub(), &stubAssistant{reply: "hi"})
	resp, payload := env.request(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK || payload["status"] != "ok" {
		t.Fatalf("healthz = %d %v", resp.StatusCode, payload)
	}
}

func TestLoginAndSessionState(t *testing.T) {
	env := newTestEnv(t, healthyStub(), &stubAssistant{reply: "hi"})
	token := env.login(t, "farmer@example.com")

	resp, payload := env.request(t, http.MethodGet, "/api/session", token, nil)
	if resp.StatusCode != http.StatusOK || payload["state"] != "idle" {
		t.Fatalf("session = %d %v", resp.StatusCode, payload)
	}
}

func TestLoginRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t, healthyStub(), &stubAssistant{reply: "hi"})
	req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/api/auth/login", bytes.NewReader([]byte("{{")))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestFreshSessionIsAuth(t *testing.T) {
	env := newTestEnv(t, healthyStub(), &stubAssistant{reply: "hi"})

	resp, payload := env.request(t, http.MethodGet, "/api/session", "", nil)
	if resp.StatusCode != http.StatusOK || payload["state"] != "auth" {
		t.Fatalf("fresh session = %d %v, want auth", resp.StatusCode, payload)
	}
	resp, payload = env.request(t, http.MethodGet, "/api/session", "bogus-token", nil)
	if resp.StatusCode != http.StatusOK || payload["state"] != "auth" {
		t.Fatalf("bogus token session = %d %v, want auth", resp.StatusCode, payload)
	}
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	env := newTestEnv(t, healthyStub(), &stubAssistant{reply: "hi"})
	for _, path := range []string{"/api/history", "/api/dashboard", "/api/plans"} {
		resp, _ := env.request(t, http.MethodGet, path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s status = %d, want 401", path, resp.StatusCode)
		}
	}
}

func TestScanJSONUpload(t *testing.T) {
	env := newTestEnv(t, healthyStub(), &stubAssistant{reply: "hi"})
	token := env.login(t, "farmer@example.com")

	resp, payload := env.request(t, http.MethodPost, "/api/scans", token, map[string]string{"image": pngBase64(t)})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("scan status = %d: %v", resp.StatusCode, payload)
	}
	if payload["state"] != "result" {
		t.Fatalf("state = %v, want result", payload["state"])
	}
	analysis, _ := payload["analysis"].(map[string]any)
	if analysis["cropName"] != "Tomato" {
		t.Fatalf("analysis = %v", analysis)
	}

	resp, payload = env.request(t, http.MethodGet, "/api/history", token, nil)
	if resp.StatusCode != http.StatusOK || payload["count"] != float64(1) {
		t.Fatalf("history = %d %v", resp.StatusCode, payload)
	}
}

func TestScanMultipartUpload(t *testing.T) {
	env := newTestEnv(t, healthyStub(), &stubAssistant{reply: "hi"})
	token := env.login(t, "farmer@example.com")

	raw, err := base64.StdEncoding.DecodeString(pngBase64(t))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", "leaf.png")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	part.Write(raw)
	writer.Close()

	req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/api/scans", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("multipart scan status = %d", resp.StatusCode)
	}
}

func TestScanRejectsGarbageImage(t *testing.T) {
	env := newTestEnv(t, healthyStub(), &stubAssistant{reply: "hi"})
	token := env.login(t, "farmer@example.com")

	resp, _ := env.request(t, http.MethodPost, "/api/scans", token, map[string]string{"image": "bm90IGFuIGltYWdl"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestScanQuotaExhaustedReturns429(t *testing.T) {
	env := newTestEnv(t, healthyStub(), &stubAssistant{reply: "hi"})
	token := env.login(t, "farmer@example.com")

	respMe, payload := env.request(t, http.MethodGet, "/api/users/me", token, nil)
	if respMe.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d", respMe.StatusCode)
	}
	id, _ := payload["id"].(string)
	if id == "" {
		t.Fatal("me returned no id")
	}
	// Exhaust the standard quota directly in the record store.
	var user domain.User
	if !env.records.Load("user_"+id, &user) {
		t.Fatal("user record missing")
	}
	user.ScanCount = user.MaxScans
	if err := env.records.Save("user_"+id, user); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	respScan, scanPayload := env.request(t, http.MethodPost, "/api/scans", token, map[string]string{"image": pngBase64(t)})
	if respScan.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429: %v", respScan.StatusCode, scanPayload)
	}
	session, _ := scanPayload["session"].(map[string]any)
	if session["state"] != "error" {
		t.Fatalf("session state = %v, want error", session["state"])
	}
}

func TestAnalyzerFailureReturns502(t *testing.T) {
	env := newTestEnv(t, &stubAnalyzer{err: context.DeadlineExceeded}, &stubAssistant{reply: "hi"})
	token := env.login(t, "farmer@example.com")

	resp, payload := env.request(t, http.MethodPost, "/api/scans", token, map[string]string{"image": pngBase64(t)})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502: %v", resp.StatusCode, payload)
	}
	session, _ := payload["session"].(map[string]any)
	if session["state"] != "error" {
		t.Fatalf("session state = %v, want error", session["state"])
	}
}

func TestNavigateAndCapture(t *testing.T) {
	env := newTestEnv(t, healthyStub(), &stubAssistant{reply: "hi"})
	token := env.login(t, "farmer@example.com")

	resp, payload := env.request(t, http.MethodPost, "/api/session/navigate", token, map[string]string{"view": "Dashboard"})
	if resp.StatusCode != http.StatusOK || payload["state"] != "dashboard" {
		t.Fatalf("navigate = %d %v", resp.StatusCode, payload)
	}

	resp, _ = env.request(t, http.MethodPost, "/api/scans/capture", token, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("capture from dashboard status = %d, want 409", resp.StatusCode)
	}

	env.request(t, http.MethodPost, "/api/session/navigate", token, map[string]string{"view": "idle"})
	resp, payload = env.request(t, http.MethodPost, "/api/scans/capture", token, nil)
	if resp.StatusCode != http.StatusOK || payload["state"] != "capturing" {
		t.Fatalf("capture = %d %v", resp.StatusCode, payload)
	}
	resp, payload = env.request(t, http.MethodPost, "/api/scans/capture/cancel", token, nil)
	if resp.StatusCode != http.StatusOK || payload["state"] != "idle" {
		t.Fatalf("cancel = %d %v", resp.StatusCode, payload)
	}
}

func TestHistoryItemLookup(t *testing.T) {
	env := newTestEnv(t, healthyStub(), &stubAssistant{reply: "hi"})
	token := env.login(t, "farmer@example.com")

	env.request(t, http.MethodPost, "/api/scans", token, map[string]string{"image": pngBase64(t)})
	_, payload := env.request(t, http.MethodGet, "/api/history", token, nil)
	items, _ := payload["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %v", payload)
	}
	item, _ := items[0].(map[string]any)
	id, _ := item["id"].(string)

	resp, view := env.request(t, http.MethodGet, "/api/history/"+id, token, nil)
	if resp.StatusCode != http.StatusOK || view["state"] != "result" {
		t.Fatalf("history item = %d %v", resp.StatusCode, view)
	}

	resp, _ = env.request(t, http.MethodGet, "/api/history/missing", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing item status = %d, want 404", resp.StatusCode)
	}
}

func TestChatEndpoint(t *testing.T) {
	env := newTestEnv(t, healthyStub(), &stubAssistant{reply: "Try neem oil."})
	token := env.login(t, "farmer@example.com")

	resp, payload := env.request(t, http.MethodPost, "/api/chat", token, map[string]string{"message": "aphids?"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d: %v", resp.StatusCode, payload)
	}
	if payload["reply"] != "Try neem oil." {
		t.Fatalf("reply = %v", payload["reply"])
	}
	transcript, _ := payload["transcript"].([]any)
	if len(transcript) != 2 {
		t.Fatalf("transcript length = %d, want 2", len(transcript))
	}
}

func TestUpgradeEndpoint(t *testing.T) {
	env := newTestEnv(t, healthyStub(), &stubAssistant{reply: "hi"})
	token := env.login(t, "farmer@example.com")

	resp, payload := env.request(t, http.MethodPost, "/api/plans/upgrade", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upgrade status = %d: %v", resp.StatusCode, payload)
	}
	user, _ := payload["user"].(map[string]any)
	if user["plan"] != "Pro" || user["maxScans"] != float64(0) {
		t.Fatalf("user = %v", user)
	}
	state, _ := payload["state"].(map[string]any)
	if state["state"] != "dashboard" {
		t.Fatalf("state = %v", state)
	}
}

func TestPlansAndResources(t *testing.T) {
	env := newTestEnv(t, healthyStub(), &stubAssistant{reply: "hi"})
	token := env.login(t, "farmer@example.com")

	resp, payload := env.request(t, http.MethodGet, "/api/plans", token, nil)
	tiers, _ := payload["tiers"].([]any)
	if resp.StatusCode != http.StatusOK || len(tiers) != 2 {
		t.Fatalf("plans = %d %v", resp.StatusCode, payload)
	}

	resp, payload = env.request(t, http.MethodGet, "/api/resources", token, nil)
	items, _ := payload["items"].([]any)
	if resp.StatusCode != http.StatusOK || len(items) == 0 {
		t.Fatalf("resources = %d %v", resp.StatusCode, payload)
	}
	if payload["title"] != "Resources" {
		t.Fatalf("title = %v", payload["title"])
	}
}

func TestUpdateProfileEndpoint(t *testing.T) {
	env := newTestEnv(t, healthyStub(), &stubAssistant{reply: "hi"})
	token := env.login(t, "farmer@example.com")

	resp, payload := env.request(t, http.MethodPatch, "/api/users/me", token, map[string]string{"name": "Rosa", "language": "es"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d: %v", resp.StatusCode, payload)
	}
	if payload["name"] != "Rosa" || payload["language"] != "es" {
		t.Fatalf("payload = %v", payload)
	}

	resp, _ = env.request(t, http.MethodPatch, "/api/users/me", token, map[string]string{"language": "xx"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad language status = %d, want 400", resp.StatusCode)
	}
}

func TestLogoutEndpoint(t *testing.T) {
	env := newTestEnv(t, healthyStub(), &stubAssistant{reply: "hi"})
	token := env.login(t, "farmer@example.com")

	resp, _ := env.request(t, http.MethodPost, "/api/auth/logout", token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d, want 204", resp.StatusCode)
	}
	// Logout returns the visitor to the AUTH entry state.
	resp, payload := env.request(t, http.MethodGet, "/api/session", token, nil)
	if resp.StatusCode != http.StatusOK || payload["state"] != "auth" {
		t.Fatalf("session after logout = %d %v, want auth", resp.StatusCode, payload)
	}
	resp, _ = env.request(t, http.MethodGet, "/api/history", token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("history after logout status = %d, want 401", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, healthyStub(), &stubAssistant{reply: "hi"})
	token := env.login(t, "farmer@example.com")

	resp, _ := env.request(t, http.MethodGet, "/api/auth/login", "", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET login status = %d, want 405", resp.StatusCode)
	}
	resp, _ = env.request(t, http.MethodDelete, "/api/chat", token, nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE chat status = %d, want 405", resp.StatusCode)
	}
}

// The login limiter keys on the transport address: forwarded headers from an
// untrusted peer must not open fresh windows.
func TestLoginRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(mr.Addr(), "", "", 2, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisFixedWindowLimiter: %v", err)
	}
	core, err := app.New(app.Config{
		Records:   store.NewMemoryRecordStore(),
		Sessions:  store.NewMemorySessionStore(),
		Analyzer:  healthyStub(),
		Assistant: &stubAssistant{reply: "ok"},
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	srv := httptest.NewServer(New(Config{App: core, LoginLimiter: limiter}).Router())
	t.Cleanup(srv.Close)

	attempt := func(forwardedFor string) int {
		body, _ := json.Marshal(map[string]string{"email": "farmer@example.com", "password": "x"})
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/auth/login", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", forwardedFor)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	// Every request arrives from the same local peer; the rotating header must
	// not matter because no proxy is trusted.
	for i := 0; i < 2; i++ {
		if code := attempt(fmt.Sprintf("203.0.113.%d", i+1)); code != http.StatusOK {
			t.Fatalf("attempt %d = %d, want 200", i+1, code)
		}
	}
	for i := 2; i < 6; i++ {
		if code := attempt(fmt.Sprintf("203.0.113.%d", i+1)); code != http.StatusTooManyRequests {
			t.Fatalf("attempt %d = %d, want 429", i+1, code)
		}
	}
}

// A session torn down between authentication and the scan call surfaces as
// 401, not a gateway failure.
func TestScanFailureStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthorized", app.ErrUnauthorized, http.StatusUnauthorized},
		{"quota", app.ErrQuotaExceeded, http.StatusTooManyRequests},
		{"in flight", app.ErrAnalysisInFlight, http.StatusConflict},
		{"bad transition", app.ErrInvalidTransition, http.StatusConflict},
		{"analyzer down", context.DeadlineExceeded, http.StatusBadGateway},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeScanFailure(rec, nil, tc.err)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
