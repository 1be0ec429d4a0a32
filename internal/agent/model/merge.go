package model

import (
	"fmt"
	"slices"

	"github.com/deal-associate/server/internal/underwriting"
)

// Delta is a node's partial update to DealState. Nil fields are left alone.
type Delta struct {
	Messages       []Message
	ExtractedData  *ExtractedData
	Comps          *[]underwriting.Comp
	Assumptions    underwriting.Assumptions
	FinancialModel *FinancialModel
	Scenarios      []ScenarioResult
	Deck           *DeckContent
	CurrentStep    *Action
	Status         *MachineStatus
}

// Say is a Delta carrying only assistant messages.
func Say(texts ...string) Delta {
	d := Delta{}
	for _, t := range texts {
		d.Messages = append(d.Messages, AssistantMessage(t))
	}
	return d
}

// ReplaceComps builds the pointer form a Delta needs to replace the comp set,
// including replacing it with an empty set.
func ReplaceComps(c []underwriting.Comp) *[]underwriting.Comp {
	cp := slices.Clone(c)
	if cp == nil {
		cp = []underwriting.Comp{}
	}
	return &cp
}

// Merge applies d to s and returns the new state; s is not modified.
// Transcript entries are appended, scenarios are inserted (a repeated label
// gets an ordinal suffix) and every other field is replaced.
func Merge(s *DealState, d Delta) *DealState {
	out := s.Clone()

	if len(d.Messages) > 0 {
		out.Transcript = append(out.Transcript, d.Messages...)
	}
	if d.ExtractedData != nil {
		out.ExtractedData = d.ExtractedData
	}
	if d.Comps != nil {
		out.Comps = slices.Clone(*d.Comps)
	}
	if d.Assumptions != nil {
		out.Assumptions = d.Assumptions.Clone()
	}
	if d.FinancialModel != nil {
		out.FinancialModel = d.FinancialModel
	}
	for _, sc := range d.Scenarios {
		if out.Scenarios == nil {
			out.Scenarios = make(map[string]ScenarioResult)
		}
		sc.Label = uniqueLabel(out.Scenarios, sc.Label)
		sc.Sequence = len(out.Scenarios) + 1
		out.Scenarios[sc.Label] = sc
	}
	if d.Deck != nil {
		out.Deck = d.Deck
	}
	if d.CurrentStep != nil {
		out.CurrentStep = *d.CurrentStep
	}
	if d.Status != nil {
		out.Status = *d.Status
	}
	return out
}

func uniqueLabel(existing map[string]ScenarioResult, label string) string {
	if _, ok := existing[label]; !ok {
		return label
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s #%d", label, n)
		if _, ok := existing[candidate]; !ok {
			return candidate
		}
	}
}
