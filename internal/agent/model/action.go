package model

import "strings"

// Action is a workflow step the user can ask for. The set is closed;
// ActionChat is the fallback for anything unrecognised.
type Action string

const (
	ActionIngest            Action = "ingest"
	ActionComps             Action = "comps"
	ActionUpdateComps       Action = "update_comps"
	ActionAssumptions       Action = "assumptions"
	ActionUpdateAssumptions Action = "update_assumptions"
	ActionModel             Action = "model"
	ActionDeck              Action = "deck"
	ActionScenarios         Action = "scenarios"
	ActionChat              Action = "chat"
)

// Actions lists every action in pipeline order.
func Actions() []Action {
	return []Action{
		ActionIngest,
		ActionComps,
		ActionUpdateComps,
		ActionAssumptions,
		ActionUpdateAssumptions,
		ActionModel,
		ActionDeck,
		ActionScenarios,
		ActionChat,
	}
}

func (a Action) String() string {
	return string(a)
}

// ParseAction maps a classifier label onto the closed action set. Common
// variants ("build_model", "update-comps", "scenario") are accepted.
func ParseAction(s string) (Action, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch norm {
	case "ingest", "ingestion", "load_documents":
		return ActionIngest, true
	case "comps", "comparables", "propose_comps":
		return ActionComps, true
	case "update_comps", "update_comparables":
		return ActionUpdateComps, true
	case "assumptions", "propose_assumptions":
		return ActionAssumptions, true
	case "update_assumptions":
		return ActionUpdateAssumptions, true
	case "model", "build_model", "financial_model":
		return ActionModel, true
	case "deck", "presentation", "generate_deck":
		return ActionDeck, true
	case "scenarios", "scenario", "scenario_analysis":
		return ActionScenarios, true
	case "chat", "question", "general":
		return ActionChat, true
	}
	return "", false
}

// Field is a piece of deal state that some action depends on.
type Field string

const (
	FieldExtractedData        Field = "extracted_data"
	FieldCompsData            Field = "comps_data"
	FieldFinancialAssumptions Field = "financial_assumptions"
	FieldFinancialModel       Field = "financial_model"
)

// Step names a suspend point of the workflow.
type Step string

const (
	StepAwaitCompsReview       Step = "await_comps_review"
	StepAwaitCompsConfirmation Step = "await_comps_confirmation"
	StepAwaitAssumptionsReview Step = "await_assumptions_review"
	StepAwaitModelConfirmation Step = "await_model_confirmation"
	StepAwaitDeckConfirmation  Step = "await_deck_confirmation"
	StepAwaitScenarioOffer     Step = "await_scenario_offer"
	StepAwaitScenarioRequest   Step = "await_scenario_request"
	StepAwaitMoreScenarios     Step = "await_more_scenarios"
	StepAwaitUser              Step = "await_user"
)

// Phase is the coarse machine status.
type Phase string

const (
	PhaseRunning   Phase = "running"
	PhaseSuspended Phase = "suspended"
)

// MachineStatus records where the workflow stopped waiting for the user.
type MachineStatus struct {
	Phase Phase `json:"phase,omitempty"`
	At    Step  `json:"at,omitempty"`
}

// Suspended returns the status for a machine waiting at step.
func Suspended(at Step) MachineStatus {
	return MachineStatus{Phase: PhaseSuspended, At: at}
}

// IsSuspended reports whether the machine is waiting for user input.
func (s MachineStatus) IsSuspended() bool {
	return s.Phase == PhaseSuspended
}

// IsSuspendedAt reports whether the machine waits at any of steps.
func (s MachineStatus) IsSuspendedAt(steps ...Step) bool {
	if !s.IsSuspended() {
		return false
	}
	for _, st := range steps {
		if s.At == st {
			return true
		}
	}
	return false
}
