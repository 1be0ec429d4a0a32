package model

import (
	"github.com/cloudwego/eino/schema"

	"github.com/deal-associate/server/internal/underwriting"
)

// AppState stores per-turn state for the Eino Graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Eino serializes access to state within these handlers, so no additional
//     mutex is required as long as you never touch it outside handlers.
type AppState struct {
	SessionID string
	Deal      *DealState // loaded at turn start, replaced on every merge
	Appended  []Message  // transcript entries added during this turn
	Trace     []string   // nodes visited, in order
	Turn      *Turn

	Scratch Scratch

	// Chat tool loop
	History              []*schema.Message
	ToolCallCount        int
	ToolCallLimitReached bool
	ToolCallIDSeq        int
}

// Apply merges d into the deal state and records the appended messages.
func (s *AppState) Apply(d Delta) {
	if s.Deal == nil {
		s.Deal = NewDealState(s.SessionID)
	}
	s.Deal = Merge(s.Deal, d)
	s.Appended = append(s.Appended, d.Messages...)
}

// Scratch carries hand-offs between nodes of one pipeline. It is discarded
// at the end of the turn.
type Scratch struct {
	Scenario *underwriting.ScenarioDescriptor

	// set when an assumptions update found nothing to change
	AssumptionsUnchanged bool
}

// TurnInput is one user utterance for a session.
type TurnInput struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

// Turn flows between graph nodes and carries the routing decision.
type Turn struct {
	SessionID string
	Query     string
	Intent    Action // what the classifier heard
	Target    Action // what the resolver decided to run
	Entry     string // first pipeline node for Target
}

// TurnResult is what a turn returns to the caller.
type TurnResult struct {
	SessionID string        `json:"session_id"`
	Intent    Action        `json:"intent"`
	Target    Action        `json:"target"`
	Messages  []Message     `json:"messages"`
	Status    MachineStatus `json:"status"`
	Trace     []string      `json:"trace"`
	CostUSD   float64       `json:"cost_usd"`
}
