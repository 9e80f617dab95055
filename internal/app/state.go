package app

import "agrovision/pkg/domain"

// StateKind tags the session state union.
type StateKind string

const (
	KindAuth      StateKind = "auth"
	KindIdle      StateKind = "idle"
	KindDashboard StateKind = "dashboard"
	KindHistory   StateKind = "history"
	KindResources StateKind = "resources"
	KindChat      StateKind = "chat"
	KindPricing   StateKind = "pricing"
	KindSettings  StateKind = "settings"
	KindCapturing StateKind = "capturing"
	KindAnalyzing StateKind = "analyzing"
	KindResult    StateKind = "result"
	KindError     StateKind = "error"
)

// State is the session's current position in the view/pipeline machine.
// Exactly one variant is active per session; variants with payloads carry
// the data that view renders.
type State interface {
	Kind() StateKind
}

// AuthState is the unauthenticated entry state. Re-enterable after logout.
type AuthState struct{}

func (AuthState) Kind() StateKind { return KindAuth }

// IdleState is the authenticated home view.
type IdleState struct{}

func (IdleState) Kind() StateKind { return KindIdle }

// DashboardState, HistoryState, ResourcesState, ChatState, PricingState and
// SettingsState are peer views reachable from any authenticated, non-busy
// state. They carry no payload; their data is fetched through dedicated
// operations.
type DashboardState struct{}

func (DashboardState) Kind() StateKind { return KindDashboard }

type HistoryState struct{}

func (HistoryState) Kind() StateKind { return KindHistory }

type ResourcesState struct{}

func (ResourcesState) Kind() StateKind { return KindResources }

type ChatState struct{}

func (ChatState) Kind() StateKind { return KindChat }

type PricingState struct{}

func (PricingState) Kind() StateKind { return KindPricing }

type SettingsState struct{}

func (SettingsState) Kind() StateKind { return KindSettings }

// CapturingState means a camera stream is open. Only reachable from IDLE.
type CapturingState struct{}

func (CapturingState) Kind() StateKind { return KindCapturing }

// AnalyzingState means exactly one analysis request is in flight.
type AnalyzingState struct {
	Image []byte
}

func (AnalyzingState) Kind() StateKind { return KindAnalyzing }

// ResultState renders a finished analysis.
type ResultState struct {
	Image    []byte
	Analysis domain.AnalysisResult
}

func (ResultState) Kind() StateKind { return KindResult }

// ErrorState renders a recoverable failure message.
type ErrorState struct {
	Message string
}

func (ErrorState) Kind() StateKind { return KindError }

// navigable lists the peer views reachable by direct navigation.
var navigable = map[StateKind]func() State{
	KindIdle:      func() State { return IdleState{} },
	KindDashboard: func() State { return DashboardState{} },
	KindHistory:   func() State { return HistoryState{} },
	KindResources: func() State { return ResourcesState{} },
	KindChat:      func() State { return ChatState{} },
	KindPricing:   func() State { return PricingState{} },
	KindSettings:  func() State { return SettingsState{} },
}
