package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"agrovision/internal/app"
	"agrovision/internal/capture"
	"agrovision/internal/i18n"
	"agrovision/internal/ratelimit"
	"agrovision/internal/util"
	"agrovision/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	LoginLimiter   *ratelimit.FixedWindowLimiter
	MaxUploadBytes int64
	// TrustedProxies gates forwarded-header trust for rate limiting and
	// audit logging. Nil means no proxy is trusted.
	TrustedProxies *util.TrustedProxies
}

// Server exposes the HTTP endpoints for the AgroVision API.
type Server struct {
	app            *app.App
	loginLimiter   *ratelimit.FixedWindowLimiter
	maxUploadBytes int64
	trustedProxies *util.TrustedProxies
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:            cfg.App,
		loginLimiter:   cfg.LoginLimiter,
		maxUploadBytes: normalizeMaxBytes(cfg.MaxUploadBytes),
		trustedProxies: cfg.TrustedProxies,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithSecurityHeaders(util.WithCORS(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.Handle("/api/auth/logout", s.authenticated(s.handleLogout))

	s.mux.HandleFunc("/api/session", s.handleSession)
	s.mux.Handle("/api/session/navigate", s.authenticated(s.handleNavigate))
	s.mux.Handle("/api/session/reset", s.authenticated(s.handleReset))

	s.mux.Handle("/api/scans", s.authenticated(s.handleScans))
	s.mux.Handle("/api/scans/capture", s.authenticated(s.handleCaptureStart))
	s.mux.Handle("/api/scans/capture/cancel", s.authenticated(s.handleCaptureCancel))

	s.mux.Handle("/api/history", s.authenticated(s.handleHistory))
	s.mux.Handle("/api/history/", s.authenticated(s.handleHistoryItem))
	s.mux.Handle("/api/dashboard", s.authenticated(s.handleDashboard))

	s.mux.Handle("/api/chat", s.authenticated(s.handleChat))

	s.mux.Handle("/api/plans", s.authenticated(s.handlePlans))
	s.mux.Handle("/api/plans/upgrade", s.authenticated(s.handleUpgrade))
	s.mux.Handle("/api/resources", s.authenticated(s.handleResources))

	s.mux.Handle("/api/users/me", s.authenticated(s.handleMe))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, string, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, err := s.app.Authenticate(token)
		if err != nil {
			s.audit(r, "session.verify", "fail")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, token, user)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "login", "rate_limited")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// Password is accepted but never checked: login is a mock collaborator
	// that derives the identity from the email.
	user, token, err := s.app.Login(req.Email)
	if err != nil {
		s.audit(r, "login", "fail", "reason", err.Error())
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.audit(r, "login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, loginResponse{
		Token: token,
		User:  user,
		State: stateView(app.IdleState{}),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, token string, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.app.Logout(token); err != nil {
		s.audit(r, "logout", "fail", "user_id", user.ID, "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "logout", "success", "user_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}

// handleSession reports the session's state. Visitors without a valid token
// are in AUTH rather than rejected: that is the entry state of the machine.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeJSON(w, http.StatusOK, stateView(app.AuthState{}))
		return
	}
	state, err := s.app.CurrentState(token)
	if errors.Is(err, app.ErrUnauthorized) {
		writeJSON(w, http.StatusOK, stateView(app.AuthState{}))
		return
	}
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateView(state))
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request, token string, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req navigateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	state, err := s.app.Navigate(token, app.StateKind(strings.ToLower(strings.TrimSpace(req.View))))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateView(state))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, token string, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	state, err := s.app.Reset(token)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateView(state))
}

func (s *Server) handleCaptureStart(w http.ResponseWriter, r *http.Request, token string, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	state, err := s.app.StartCapture(token)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateView(state))
}

func (s *Server) handleCaptureCancel(w http.ResponseWriter, r *http.Request, token string, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	state, err := s.app.CancelCapture(token)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateView(state))
}

// handleScans accepts one frame per request, as a multipart "image" field or
// a JSON base64 payload, and runs the analysis pipeline.
func (s *Server) handleScans(w http.ResponseWriter, r *http.Request, token string, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	frame, ok := s.readFrame(w, r)
	if !ok {
		return
	}
	state, err := s.app.SubmitFrame(r.Context(), token, frame)
	if err != nil {
		s.audit(r, "scan", "fail", "user_id", user.ID, "reason", err.Error())
		writeScanFailure(w, state, err)
		return
	}
	s.audit(r, "scan", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, stateView(state))
}

func (s *Server) readFrame(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form data")
			return nil, false
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			writeError(w, http.StatusBadRequest, "image is required (field: image)")
			return nil, false
		}
		stream, err := capture.NewFileStream(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return nil, false
		}
		defer stream.Close()
		frame, err := stream.CaptureFrame()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return nil, false
		}
		return frame, true
	}
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if strings.TrimSpace(req.Image) == "" {
		writeError(w, http.StatusBadRequest, "image is required")
		return nil, false
	}
	frame, err := capture.DecodeBase64Frame(req.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return frame, true
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, token string, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	items, err := s.app.History(token)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

// /api/history/{id} and /api/history/{id}/frame
func (s *Server) handleHistoryItem(w http.ResponseWriter, r *http.Request, token string, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/history/")
	if rest, ok := strings.CutSuffix(id, "/frame"); ok {
		url, err := s.app.FrameURL(r.Context(), token, rest)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
		return
	}
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	state, err := s.app.SelectHistory(token, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateView(state))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, token string, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.Dashboard(token)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, token string, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	transcript, err := s.app.Chat(r.Context(), token, req.Message)
	if err != nil {
		writeAppError(w, err)
		return
	}
	var reply string
	if len(transcript) > 0 {
		reply = transcript[len(transcript)-1].Text()
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply, Transcript: transcript})
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request, _ string, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tiers": app.Plans()})
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request, token string, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	updated, state, err := s.app.Upgrade(token)
	if err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "plan.upgrade", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"user":  updated,
		"state": stateView(state),
	})
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request, _ string, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"title": i18n.T("resources", user.Language),
		"items": app.Resources(),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, token string, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, user)
	case http.MethodPatch:
		var req app.ProfileUpdate
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		updated, err := s.app.UpdateProfile(token, req)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	default:
		methodNotAllowed(w)
	}
}

// stateView flattens the state union into a tagged JSON document.
func stateView(state app.State) map[string]any {
	view := map[string]any{"state": state.Kind()}
	switch st := state.(type) {
	case app.AnalyzingState:
		view["image"] = st.Image
	case app.ResultState:
		view["image"] = st.Image
		view["analysis"] = st.Analysis
	case app.ErrorState:
		view["message"] = st.Message
	}
	return view
}

func writeScanFailure(w http.ResponseWriter, state app.State, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, app.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, app.ErrQuotaExceeded):
		status = http.StatusTooManyRequests
	case errors.Is(err, app.ErrAnalysisInFlight):
		status = http.StatusConflict
	case errors.Is(err, app.ErrInvalidTransition):
		status = http.StatusConflict
	}
	payload := map[string]any{"error": err.Error()}
	if state != nil {
		payload["session"] = stateView(state)
	}
	writeJSON(w, status, payload)
}

func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, app.ErrAnalysisInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrHistoryItemNotFound), errors.Is(err, app.ErrArchiveDisabled):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrQuotaExceeded):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string         `json:"token"`
	User  domain.User    `json:"user"`
	State map[string]any `json:"state"`
}

type navigateRequest struct {
	View string `json:"view"`
}

type scanRequest struct {
	Image string `json:"image"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply      string               `json:"reply"`
	Transcript []domain.ChatMessage `json:"transcript"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 10 * 1024 * 1024
	}
	return value
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
		"request_id", util.RequestIDFromContext(r.Context()),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}
