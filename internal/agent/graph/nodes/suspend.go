package nodes

import (
	"context"

	"github.com/cloudwego/eino/compose"

	"github.com/deal-associate/server/internal/agent/model"
)

// Questions asked at each suspend point.
const (
	QuestionCompsReview       = "Please remove any comps you don't like or add others (e.g. 'Remove Comp B' or 'Add Comp D'), or confirm to proceed to financial assumptions."
	QuestionCompsConfirmation = "Would you like to proceed to financial assumptions?"
	QuestionAssumptionsReview = "Please review and confirm these assumptions, or tell me what to change (e.g. 'exit yield 5%, rent growth 2.5%')."
	QuestionModelConfirmation = "Assumptions updated. Ready to build the financial model?"
	QuestionDeckConfirmation  = "Financial model built. Do you want to generate the presentation deck?"
	QuestionScenarioOffer     = "Would you like to run any scenarios (e.g. +5% ERV, +25 bps exit yield), or is the analysis complete?"
	QuestionScenarioRequest   = "Ready for scenario analysis. Please specify a scenario (e.g., 'downside case with -5% rent')."
	QuestionMoreScenarios     = "Would you like to run another scenario (e.g. 'stress test' or '-10% rent'), or is the analysis complete?"
)

// Question returns what the machine asks when it stops at step.
func Question(step model.Step) string {
	switch step {
	case model.StepAwaitCompsReview:
		return QuestionCompsReview
	case model.StepAwaitCompsConfirmation:
		return QuestionCompsConfirmation
	case model.StepAwaitAssumptionsReview:
		return QuestionAssumptionsReview
	case model.StepAwaitModelConfirmation:
		return QuestionModelConfirmation
	case model.StepAwaitDeckConfirmation:
		return QuestionDeckConfirmation
	case model.StepAwaitScenarioOffer:
		return QuestionScenarioOffer
	case model.StepAwaitScenarioRequest:
		return QuestionScenarioRequest
	case model.StepAwaitMoreScenarios:
		return QuestionMoreScenarios
	}
	return ""
}

// NewSuspendNode marks the machine as waiting at step and asks its question.
func NewSuspendNode(step model.Step) *compose.Lambda {
	return NewStep(string(step), func(_ context.Context, _ StepInput) (model.Delta, error) {
		return Suspend(step), nil
	})
}

// Suspend is the delta of a suspend point.
func Suspend(step model.Step) model.Delta {
	d := model.Delta{Status: ptr(model.Suspended(step))}
	if q := Question(step); q != "" {
		d.Messages = []model.Message{model.AssistantMessage(q)}
	}
	return d
}
