package model

import (
	"maps"
	"slices"
	"strings"

	"github.com/deal-associate/server/internal/underwriting"
)

// Role identifies who authored a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystemLog Role = "system_log"
)

// Message is one transcript entry.
type Message struct {
	Role Role   `json:"role" db:"role"`
	Text string `json:"text" db:"text"`
}

func UserMessage(text string) Message      { return Message{Role: RoleUser, Text: text} }
func AssistantMessage(text string) Message { return Message{Role: RoleAssistant, Text: text} }
func SystemLog(text string) Message        { return Message{Role: RoleSystemLog, Text: text} }

// Document is a loaded deal document.
type Document struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// AssetMetrics are the headline figures computed from the structured record.
type AssetMetrics struct {
	GLASqm      float64 `json:"gla_sqm"`
	Occupancy   float64 `json:"occupancy"`
	PassingRent float64 `json:"passing_rent"`
	WAULTYears  float64 `json:"wault_years"`
	Tenants     int     `json:"tenants"`
}

// ExtractedData is the output of ingestion.
type ExtractedData struct {
	SourceName string         `json:"source_name,omitempty"`
	Source     map[string]any `json:"source,omitempty"`
	Documents  []Document     `json:"documents,omitempty"`
	Validation []string       `json:"validation,omitempty"`
	Metrics    AssetMetrics   `json:"metrics"`
	Narrative  string         `json:"narrative,omitempty"`
	Summary    string         `json:"summary,omitempty"`
}

// IsEmpty reports whether ingestion produced nothing usable.
func (e *ExtractedData) IsEmpty() bool {
	return e == nil || (len(e.Source) == 0 && len(e.Documents) == 0 && strings.TrimSpace(e.Narrative) == "")
}

// Artifact is a generated file and, when the upload succeeded, its link.
type Artifact struct {
	LocalPath string `json:"local_path"`
	URL       string `json:"url,omitempty"`
}

// Uploaded reports whether the artifact has a shareable link.
func (a Artifact) Uploaded() bool {
	return a.URL != ""
}

// ModelStatus is the build state of the financial model.
type ModelStatus string

const (
	ModelStatusBuilt    ModelStatus = "built"
	ModelStatusDegraded ModelStatus = "degraded"
)

// FinancialModel is the base-case model. Scenario runs never replace it.
type FinancialModel struct {
	underwriting.Metrics
	Status     ModelStatus              `json:"status"`
	Projection *underwriting.Projection `json:"projection,omitempty"`
	Workbook   *Artifact                `json:"workbook,omitempty"`
}

// ScenarioResult is a stored scenario snapshot.
type ScenarioResult struct {
	Label       string                          `json:"label"`
	Sequence    int                             `json:"sequence"`
	Descriptor  underwriting.ScenarioDescriptor `json:"descriptor"`
	Applied     underwriting.Adjustment         `json:"applied"`
	Assumptions underwriting.Assumptions        `json:"assumptions"`
	Metrics     underwriting.Metrics            `json:"metrics"`
	Comparison  underwriting.Comparison         `json:"comparison"`
}

// Slide is one deck page.
type Slide struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
}

// DeckContent is the generated presentation.
type DeckContent struct {
	Slides   []Slide   `json:"slides"`
	Version  int       `json:"version"`
	Artifact *Artifact `json:"artifact,omitempty"`
}

// DealState is the single mutable record of a session. Nodes never modify it
// directly; they return a Delta which Merge applies.
type DealState struct {
	SessionID      string                    `json:"session_id"`
	Transcript     []Message                 `json:"transcript"`
	ExtractedData  *ExtractedData            `json:"extracted_data,omitempty"`
	Comps          []underwriting.Comp       `json:"comps_data,omitempty"`
	Assumptions    underwriting.Assumptions  `json:"financial_assumptions,omitempty"`
	FinancialModel *FinancialModel           `json:"financial_model,omitempty"`
	Scenarios      map[string]ScenarioResult `json:"scenarios,omitempty"`
	Deck           *DeckContent              `json:"deck,omitempty"`
	CurrentStep    Action                    `json:"current_process_step,omitempty"`
	Status         MachineStatus             `json:"status"`
}

// NewDealState returns the empty state of a fresh session.
func NewDealState(sessionID string) *DealState {
	return &DealState{SessionID: sessionID}
}

// Has reports whether field is present and non-empty.
func (s *DealState) Has(f Field) bool {
	switch f {
	case FieldExtractedData:
		return !s.ExtractedData.IsEmpty()
	case FieldCompsData:
		return len(s.Comps) > 0
	case FieldFinancialAssumptions:
		return len(s.Assumptions) > 0
	case FieldFinancialModel:
		return s.FinancialModel != nil
	default:
		return false
	}
}

// LastUserText returns the most recent user message, or "".
func (s *DealState) LastUserText() string {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Role == RoleUser {
			return s.Transcript[i].Text
		}
	}
	return ""
}

// LastAssistantText returns the most recent assistant message, or "".
func (s *DealState) LastAssistantText() string {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Role == RoleAssistant {
			return s.Transcript[i].Text
		}
	}
	return ""
}

// ScenarioLabels returns stored scenario labels in run order.
func (s *DealState) ScenarioLabels() []string {
	labels := make([]string, 0, len(s.Scenarios))
	for l := range s.Scenarios {
		labels = append(labels, l)
	}
	slices.SortFunc(labels, func(a, b string) int {
		return s.Scenarios[a].Sequence - s.Scenarios[b].Sequence
	})
	return labels
}

// NextScenarioLabel is the label Merge will store a scenario named label under.
func (s *DealState) NextScenarioLabel(label string) string {
	return uniqueLabel(s.Scenarios, label)
}

// LatestScenario returns the most recently stored scenario.
func (s *DealState) LatestScenario() (ScenarioResult, bool) {
	var latest ScenarioResult
	found := false
	for _, sc := range s.Scenarios {
		if !found || sc.Sequence > latest.Sequence {
			latest, found = sc, true
		}
	}
	return latest, found
}

// Clone returns a deep-enough copy: slices and maps owned by the state are
// copied, nested snapshots are shared since merges replace them wholesale.
func (s *DealState) Clone() *DealState {
	out := *s
	out.Transcript = slices.Clone(s.Transcript)
	out.Comps = slices.Clone(s.Comps)
	if s.Assumptions != nil {
		out.Assumptions = s.Assumptions.Clone()
	}
	if s.Scenarios != nil {
		out.Scenarios = maps.Clone(s.Scenarios)
	}
	return &out
}
