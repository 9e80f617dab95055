package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"agrovision/internal/i18n"
	"agrovision/internal/util"
	"agrovision/pkg/ai"
	"agrovision/pkg/domain"
	"agrovision/pkg/storage"
	"agrovision/pkg/store"
)

// proEmail unlocks the Pro mock identity. Login is a stub collaborator by
// design: no credential is checked, the identity is derived from the email.
const proEmail = "user@pro.com"

// Config wires the application's collaborators.
type Config struct {
	Records   store.RecordStore
	Sessions  store.SessionStore
	Analyzer  ai.Analyzer
	Assistant ai.Assistant
	// Archive is optional; when set, captured frames are also copied to
	// object storage on a best-effort basis.
	Archive storage.FrameArchive
}

// App owns the session state machine and the capture -> analyze -> persist
// pipeline. All user and history mutations flow through it.
type App struct {
	records   store.RecordStore
	sessions  store.SessionStore
	analyzer  ai.Analyzer
	assistant ai.Assistant
	archive   storage.FrameArchive
	registry  *sessionRegistry
}

// New validates the wiring and constructs the application core.
func New(cfg Config) (*App, error) {
	if cfg.Records == nil {
		return nil, fmt.Errorf("record store required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	if cfg.Analyzer == nil {
		return nil, fmt.Errorf("analyzer required")
	}
	if cfg.Assistant == nil {
		return nil, fmt.Errorf("assistant required")
	}
	return &App{
		records:   cfg.Records,
		sessions:  cfg.Sessions,
		analyzer:  cfg.Analyzer,
		assistant: cfg.Assistant,
		archive:   cfg.Archive,
		registry:  newSessionRegistry(),
	}, nil
}

func userRecord(userID string) string    { return "user_" + userID }
func historyRecord(userID string) string { return "history_" + userID }

// Login derives the identity from the email, restores an existing persisted
// user record when present, and issues a session token. The session starts
// in IDLE.
func (a *App) Login(email string) (domain.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.User{}, "", fmt.Errorf("email required")
	}
	id := util.StableID(email)
	var user domain.User
	if !a.records.Load(userRecord(id), &user) {
		user = mockUser(id, email)
	}
	if err := a.records.Save(userRecord(id), user); err != nil {
		return domain.User{}, "", fmt.Errorf("persist user: %w", err)
	}
	token, err := a.sessions.NewSession(id)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("create session: %w", err)
	}
	a.registry.getOrCreate(token, id)
	return user, token, nil
}

func mockUser(id, email string) domain.User {
	now := time.Now().UTC()
	if email == proEmail {
		return domain.User{
			ID:          id,
			Name:        "Pro Grower",
			Email:       email,
			JoinedAt:    now,
			Plan:        domain.PlanPro,
			ScanCount:   99,
			MaxScans:    0,
			JobRole:     domain.RoleFarmer,
			PrimaryCrop: "Maize",
			Language:    domain.LangEnglish,
		}
	}
	return domain.User{
		ID:          id,
		Name:        "Standard Farmer",
		Email:       email,
		JoinedAt:    now,
		Plan:        domain.PlanStandard,
		ScanCount:   0,
		MaxScans:    10,
		JobRole:     domain.RoleHobbyist,
		PrimaryCrop: "Tomato",
		Language:    domain.LangEnglish,
	}
}

// Authenticate resolves a token to its user. A token whose user record has
// been cleared by logout no longer authenticates.
func (a *App) Authenticate(token string) (domain.User, error) {
	_, user, err := a.resolve(token)
	return user, err
}

func (a *App) resolve(token string) (*session, domain.User, error) {
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil {
		return nil, domain.User{}, fmt.Errorf("resolve session: %w", err)
	}
	if !ok {
		return nil, domain.User{}, ErrUnauthorized
	}
	var user domain.User
	if !a.records.Load(userRecord(userID), &user) {
		return nil, domain.User{}, ErrUnauthorized
	}
	return a.registry.getOrCreate(token, userID), user, nil
}

// Logout deletes the session and clears the persisted user record. History
// is retained, matching the original product behavior.
func (a *App) Logout(token string) error {
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}
	if !ok {
		return ErrUnauthorized
	}
	if err := a.sessions.DeleteSession(token); err != nil {
		slog.Warn("delete session", "err", err)
	}
	a.registry.drop(token)
	if err := a.records.Delete(userRecord(userID)); err != nil {
		return fmt.Errorf("clear user record: %w", err)
	}
	return nil
}

// CurrentState returns the session's state variant.
func (a *App) CurrentState(token string) (State, error) {
	sess, _, err := a.resolve(token)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state, nil
}

// Navigate moves the session to a peer view. Navigation is refused while an
// analysis is in flight.
func (a *App) Navigate(token string, target StateKind) (State, error) {
	factory, ok := navigable[target]
	if !ok {
		return nil, fmt.Errorf("%w: cannot navigate to %s", ErrInvalidTransition, target)
	}
	sess, _, err := a.resolve(token)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if _, busy := sess.state.(AnalyzingState); busy {
		return nil, ErrAnalysisInFlight
	}
	sess.state = factory()
	return sess.state, nil
}

// StartCapture opens the capture view. Only reachable from IDLE.
func (a *App) StartCapture(token string) (State, error) {
	sess, _, err := a.resolve(token)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if _, ok := sess.state.(IdleState); !ok {
		return nil, fmt.Errorf("%w: capture starts from idle", ErrInvalidTransition)
	}
	sess.state = CapturingState{}
	return sess.state, nil
}

// CancelCapture releases the capture view back to IDLE.
func (a *App) CancelCapture(token string) (State, error) {
	sess, _, err := a.resolve(token)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if _, ok := sess.state.(CapturingState); !ok {
		return nil, fmt.Errorf("%w: no capture in progress", ErrInvalidTransition)
	}
	sess.state = IdleState{}
	return sess.state, nil
}

// Reset returns the session from RESULT or ERROR to IDLE.
func (a *App) Reset(token string) (State, error) {
	sess, _, err := a.resolve(token)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	switch sess.state.(type) {
	case ResultState, ErrorState:
		sess.state = IdleState{}
		return sess.state, nil
	default:
		return nil, fmt.Errorf("%w: nothing to reset", ErrInvalidTransition)
	}
}

// SubmitFrame runs the analysis pipeline for one captured frame. The quota
// is checked before the remote client is invoked; on success exactly one
// history item is prepended and the scan counter increments by one. The two
// persisted writes are separate and not atomic with each other.
func (a *App) SubmitFrame(ctx context.Context, token string, frame []byte) (State, error) {
	sess, user, err := a.resolve(token)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	switch sess.state.(type) {
	case IdleState, CapturingState:
		// Camera capture arrives from CAPTURING; file upload from IDLE.
	case AnalyzingState:
		return nil, ErrAnalysisInFlight
	default:
		return nil, fmt.Errorf("%w: frame not accepted in %s", ErrInvalidTransition, sess.state.Kind())
	}

	if user.QuotaExhausted() {
		sess.state = ErrorState{Message: i18n.T("quotaReached", user.Language)}
		return sess.state, ErrQuotaExceeded
	}

	sess.state = AnalyzingState{Image: frame}

	// The remote call runs unlocked so the session stays readable while it is
	// in flight; concurrent submits and transitions are refused while the
	// state is ANALYZING, so nobody else mutates it before we relock.
	sess.mu.Unlock()
	result, err := a.analyzer.AnalyzeImage(ctx, frame, user.Language)
	sess.mu.Lock()
	if err != nil {
		sess.state = ErrorState{Message: analysisFailureMessage(err)}
		return sess.state, err
	}
	sess.state = ResultState{Image: frame, Analysis: result}

	item := domain.HistoryItem{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Image:     frame,
		Result:    result,
	}
	logger := util.LoggerFromContext(ctx)
	history := a.loadHistory(user.ID)
	history = append([]domain.HistoryItem{item}, history...)
	if err := a.records.Save(historyRecord(user.ID), history); err != nil {
		logger.Warn("persist history", "user_id", user.ID, "err", err)
	}
	user.ScanCount++
	if err := a.records.Save(userRecord(user.ID), user); err != nil {
		logger.Warn("persist user", "user_id", user.ID, "err", err)
	}
	if a.archive != nil {
		if err := a.archive.PutFrame(ctx, item.ID, frame); err != nil {
			logger.Warn("archive frame", "scan_id", item.ID, "err", err)
		}
	}
	return sess.state, nil
}

func analysisFailureMessage(err error) string {
	if errors.Is(err, ai.ErrEmptyResponse) {
		return "No analysis data received from the AI."
	}
	return err.Error()
}

func (a *App) loadHistory(userID string) []domain.HistoryItem {
	var history []domain.HistoryItem
	if !a.records.Load(historyRecord(userID), &history) {
		return []domain.HistoryItem{}
	}
	return history
}

// History returns the user's scans, newest first. A missing or corrupted
// record reads as empty.
func (a *App) History(token string) ([]domain.HistoryItem, error) {
	_, user, err := a.resolve(token)
	if err != nil {
		return nil, err
	}
	return a.loadHistory(user.ID), nil
}

// SelectHistory re-renders a stored scan: the session moves to RESULT with
// that item's image and analysis. Reads never mutate the item.
func (a *App) SelectHistory(token, itemID string) (State, error) {
	sess, user, err := a.resolve(token)
	if err != nil {
		return nil, err
	}
	for _, item := range a.loadHistory(user.ID) {
		if item.ID == itemID {
			sess.mu.Lock()
			defer sess.mu.Unlock()
			if _, busy := sess.state.(AnalyzingState); busy {
				return nil, ErrAnalysisInFlight
			}
			sess.state = ResultState{Image: item.Image, Analysis: item.Result}
			return sess.state, nil
		}
	}
	return nil, ErrHistoryItemNotFound
}

const frameLinkExpiry = 15 * time.Minute

// FrameURL returns a short-lived link to the archived full-resolution copy of
// a scan's frame. Only available when an archive is configured.
func (a *App) FrameURL(ctx context.Context, token, itemID string) (string, error) {
	_, user, err := a.resolve(token)
	if err != nil {
		return "", err
	}
	if a.archive == nil {
		return "", ErrArchiveDisabled
	}
	for _, item := range a.loadHistory(user.ID) {
		if item.ID == itemID {
			return a.archive.PresignFrame(ctx, item.ID, frameLinkExpiry)
		}
	}
	return "", ErrHistoryItemNotFound
}

// DashboardStats aggregates the user's scan history for the dashboard view.
type DashboardStats struct {
	TotalScans    int                  `json:"totalScans"`
	HealthyCount  int                  `json:"healthyCount"`
	DiseasedCount int                  `json:"diseasedCount"`
	Recent        []domain.HistoryItem `json:"recent"`
}

const dashboardRecentLimit = 4

// Dashboard computes the stats panel over the full history.
func (a *App) Dashboard(token string) (DashboardStats, error) {
	_, user, err := a.resolve(token)
	if err != nil {
		return DashboardStats{}, err
	}
	history := a.loadHistory(user.ID)
	stats := DashboardStats{TotalScans: len(history), Recent: history}
	if len(history) > dashboardRecentLimit {
		stats.Recent = history[:dashboardRecentLimit]
	}
	for _, item := range history {
		switch item.Result.HealthStatus {
		case domain.StatusHealthy:
			stats.HealthyCount++
		case domain.StatusDiseased:
			stats.DiseasedCount++
		}
	}
	return stats, nil
}

// Chat appends the user message to the session transcript and asks the
// assistant for a reply. Assistant failures never escape: they become a
// model-authored retry message in the transcript.
func (a *App) Chat(ctx context.Context, token, message string) ([]domain.ChatMessage, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("message required")
	}
	sess, user, err := a.resolve(token)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.transcript = append(sess.transcript, domain.ChatMessage{
		Role:  domain.ChatRoleUser,
		Parts: []domain.Part{{Text: message}},
	})
	reply, err := a.assistant.Reply(ctx, sess.transcript, user.Language)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("assistant reply", "err", err)
		reply = "Error. Try again."
	}
	sess.transcript = append(sess.transcript, domain.ChatMessage{
		Role:  domain.ChatRoleModel,
		Parts: []domain.Part{{Text: reply}},
	})
	out := make([]domain.ChatMessage, len(sess.transcript))
	copy(out, sess.transcript)
	return out, nil
}

// ProfileUpdate carries the editable settings fields. Nil means unchanged.
type ProfileUpdate struct {
	Name        *string          `json:"name,omitempty"`
	JobRole     *domain.JobRole  `json:"jobRole,omitempty"`
	PrimaryCrop *string          `json:"primaryCrop,omitempty"`
	Location    *string          `json:"location,omitempty"`
	Theme       *string          `json:"theme,omitempty"`
	Language    *domain.Language `json:"language,omitempty"`
}

// UpdateProfile applies a settings edit and persists the user record.
func (a *App) UpdateProfile(token string, update ProfileUpdate) (domain.User, error) {
	_, user, err := a.resolve(token)
	if err != nil {
		return domain.User{}, err
	}
	if update.Name != nil {
		user.Name = strings.TrimSpace(*update.Name)
	}
	if update.JobRole != nil {
		user.JobRole = *update.JobRole
	}
	if update.PrimaryCrop != nil {
		user.PrimaryCrop = strings.TrimSpace(*update.PrimaryCrop)
	}
	if update.Location != nil {
		user.Location = strings.TrimSpace(*update.Location)
	}
	if update.Theme != nil {
		user.Theme = strings.TrimSpace(*update.Theme)
	}
	if update.Language != nil {
		if !i18n.Supported(*update.Language) {
			return domain.User{}, fmt.Errorf("unsupported language: %s", *update.Language)
		}
		user.Language = *update.Language
	}
	if err := a.records.Save(userRecord(user.ID), user); err != nil {
		return domain.User{}, fmt.Errorf("persist user: %w", err)
	}
	return user, nil
}

// Upgrade switches the user to the Pro plan with an unbounded quota and
// lands the session on the dashboard.
func (a *App) Upgrade(token string) (domain.User, State, error) {
	sess, user, err := a.resolve(token)
	if err != nil {
		return domain.User{}, nil, err
	}
	user.Plan = domain.PlanPro
	user.MaxScans = 0
	if err := a.records.Save(userRecord(user.ID), user); err != nil {
		return domain.User{}, nil, fmt.Errorf("persist user: %w", err)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if _, busy := sess.state.(AnalyzingState); !busy {
		sess.state = DashboardState{}
	}
	return user, sess.state, nil
}
