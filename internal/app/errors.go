package app

import "errors"

var (
	// ErrUnauthorized means the token resolves to no active session or the
	// user record has been cleared by logout.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrQuotaExceeded is raised before the remote client is invoked.
	ErrQuotaExceeded = errors.New("scan quota exceeded")
	// ErrAnalysisInFlight guards the single in-flight analysis per session.
	ErrAnalysisInFlight = errors.New("analysis already in flight")
	// ErrInvalidTransition rejects events the current state does not accept.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrHistoryItemNotFound means no history entry matches the requested id.
	ErrHistoryItemNotFound = errors.New("history item not found")
	// ErrArchiveDisabled means no frame archive is configured.
	ErrArchiveDisabled = errors.New("frame archive not configured")
)
