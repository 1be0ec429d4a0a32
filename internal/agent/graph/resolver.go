package graph

import (
	"fmt"

	"github.com/deal-associate/server/internal/agent/model"
	errx "github.com/deal-associate/server/internal/core/error"
)

// MaxResolveIterations bounds the walk through the requirement tables.
const MaxResolveIterations = 10

// RequirementGraph is the pair of tables the resolver walks: what each action
// needs, and which action produces each field.
type RequirementGraph struct {
	Requires func(model.Action) (model.Field, bool)
	Producer func(model.Field) (model.Action, bool)
}

// DefaultRequirements returns the pipeline's requirement graph.
func DefaultRequirements() RequirementGraph {
	return RequirementGraph{Requires: requiredField, Producer: producerOf}
}

func requiredField(a model.Action) (model.Field, bool) {
	switch a {
	case model.ActionScenarios, model.ActionDeck:
		return model.FieldFinancialModel, true
	case model.ActionModel, model.ActionUpdateAssumptions:
		return model.FieldFinancialAssumptions, true
	case model.ActionAssumptions, model.ActionUpdateComps:
		return model.FieldCompsData, true
	case model.ActionComps:
		return model.FieldExtractedData, true
	case model.ActionIngest, model.ActionChat:
		return "", false
	}
	return "", false
}

func producerOf(f model.Field) (model.Action, bool) {
	switch f {
	case model.FieldFinancialModel:
		return model.ActionModel, true
	case model.FieldFinancialAssumptions:
		return model.ActionAssumptions, true
	case model.FieldCompsData:
		return model.ActionComps, true
	case model.FieldExtractedData:
		return model.ActionIngest, true
	}
	return "", false
}

// Resolve rewrites requested to the earliest action whose prerequisite is
// missing from s. It only ever moves earlier in the pipeline. A walk that does
// not settle within MaxResolveIterations means the tables are broken and is
// reported as a configuration error wrapping errx.ErrResolveCycle.
func (g RequirementGraph) Resolve(requested model.Action, s *model.DealState) (model.Action, error) {
	if s == nil {
		s = model.NewDealState("")
	}
	target := requested
	for i := 0; i < MaxResolveIterations; i++ {
		field, ok := g.Requires(target)
		if !ok || s.Has(field) {
			return target, nil
		}
		producer, ok := g.Producer(field)
		if !ok {
			return "", errx.Config(fmt.Errorf("no producer for field %q required by %q", field, target))
		}
		target = producer
	}
	return "", errx.Config(fmt.Errorf("%w: %q still unresolved after %d steps (at %q)",
		errx.ErrResolveCycle, requested, MaxResolveIterations, target))
}

// Resolve applies the default requirement graph.
func Resolve(requested model.Action, s *model.DealState) (model.Action, error) {
	return DefaultRequirements().Resolve(requested, s)
}
