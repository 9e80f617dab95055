package domain

import "time"

// Language is a UI language tag supported by the product.
type Language string

const (
	LangEnglish Language = "en"
	LangSpanish Language = "es"
	LangFrench  Language = "fr"
	LangGerman  Language = "de"
	LangHindi   Language = "hi"
	LangChinese Language = "zh"
)

// Plan is the subscription tier controlling the scan quota.
type Plan string

const (
	PlanStandard Plan = "Standard"
	PlanPro      Plan = "Pro"
)

// JobRole describes what the user does with their crops.
type JobRole string

const (
	RoleFarmer   JobRole = "Farmer"
	RoleGardener JobRole = "Gardener"
	RoleHobbyist JobRole = "Hobbyist"
)

// HealthStatus is the verdict of one crop analysis.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "Healthy"
	StatusDiseased HealthStatus = "Diseased"
	StatusUnknown  HealthStatus = "Unknown"
)

// User is the identity and plan record for one account.
// MaxScans == 0 means unbounded (Pro).
type User struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	JoinedAt    time.Time `json:"joinedAt"`
	Plan        Plan      `json:"plan"`
	ScanCount   int       `json:"scanCount"`
	MaxScans    int       `json:"maxScans"`
	JobRole     JobRole   `json:"jobRole,omitempty"`
	PrimaryCrop string    `json:"primaryCrop,omitempty"`
	Location    string    `json:"location,omitempty"`
	Theme       string    `json:"theme,omitempty"`
	Language    Language  `json:"language"`
}

// QuotaExhausted reports whether the plan refuses further scans.
func (u User) QuotaExhausted() bool {
	return u.Plan == PlanStandard && u.MaxScans > 0 && u.ScanCount >= u.MaxScans
}

// AnalysisResult is the structured health report for one image.
// Recommendations and PreventativeMeasures are always non-nil, even for
// healthy crops. Immutable once returned.
type AnalysisResult struct {
	CropName             string       `json:"cropName"`
	HealthStatus         HealthStatus `json:"healthStatus"`
	Confidence           float64      `json:"confidence"`
	DiseaseName          string       `json:"diseaseName,omitempty"`
	Symptoms             []string     `json:"symptoms,omitempty"`
	Cause                string       `json:"cause,omitempty"`
	Recommendations      []string     `json:"recommendations"`
	PreventativeMeasures []string     `json:"preventativeMeasures"`
}

// HistoryItem couples a captured frame with its analysis. Never mutated
// after creation; history is kept newest-first.
type HistoryItem struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	Image     []byte         `json:"image"`
	Result    AnalysisResult `json:"result"`
}

// ChatRole identifies the author of a chat turn.
type ChatRole string

const (
	ChatRoleUser  ChatRole = "user"
	ChatRoleModel ChatRole = "model"
)

// Part is one component of a chat message: text, inline media bytes, or both.
type Part struct {
	Text string `json:"text,omitempty"`
	Data []byte `json:"data,omitempty"`
	MIME string `json:"mime,omitempty"`
}

// ChatMessage is one turn of the assistant transcript. Transcripts live in
// memory for the duration of a session and are not persisted.
type ChatMessage struct {
	Role  ChatRole `json:"role"`
	Parts []Part   `json:"parts"`
}

// Text returns the concatenated text content of the message.
func (m ChatMessage) Text() string {
	var out string
	for _, p := range m.Parts {
		out += p.Text
	}
	return out
}
