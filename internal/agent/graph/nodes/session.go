package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"

	"github.com/deal-associate/server/internal/agent/intent"
	"github.com/deal-associate/server/internal/agent/model"
	errx "github.com/deal-associate/server/internal/core/error"
	"github.com/deal-associate/server/internal/metrics"
	"github.com/deal-associate/server/internal/underwriting"
	logx "github.com/deal-associate/server/pkg/logger"
)

// NewLoadSessionNode loads (or starts) the session and appends the user message.
func NewLoadSessionNode(repo model.DealRepository) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.TurnInput) (*model.Turn, error) {
		deal, err := repo.Load(ctx, in.SessionID)
		switch {
		case errors.Is(err, errx.ErrSessionNotFound):
			logx.Debug().Str("session_id", in.SessionID).Msg("Starting new deal session")
			deal = model.NewDealState(in.SessionID)
		case err != nil:
			return nil, fmt.Errorf("load session: %w", err)
		}

		err = compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			s.SessionID = in.SessionID
			s.Deal = deal
			s.Appended = nil
			s.Trace = []string{NodeLoadSession}
			s.Scratch = model.Scratch{}
			// Reset the chat tool loop for each new turn
			s.History = nil
			s.ToolCallCount = 0
			s.ToolCallLimitReached = false
			s.ToolCallIDSeq = 0
			s.Apply(model.Delta{Messages: []model.Message{model.UserMessage(in.Query)}})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("init turn state: %w", err)
		}
		return &model.Turn{SessionID: in.SessionID, Query: in.Query}, nil
	})
}

// NewClassifyIntentNode asks the classifier for the requested action. Any
// classifier failure is downgraded to chat.
func NewClassifyIntentNode(classifier intent.Classifier) *compose.Lambda {
	name := intent.Name(classifier)
	return NewStep(NodeClassifyIntent, func(ctx context.Context, in StepInput) (model.Delta, error) {
		action, err := classifier.Classify(ctx, in.Deal.Transcript)
		if err != nil {
			metrics.ClassifierFallbacks.WithLabelValues(name).Inc()
			logx.Warn().
				Err(err).
				Str("session_id", in.Turn.SessionID).
				Str("classifier", name).
				Msg("Intent classification failed; falling back to chat")
			action = model.ActionChat
		}
		in.Turn.Intent = action
		return model.Delta{}, nil
	})
}

// NewResolveRouteNode applies the dependency resolver and picks the first
// node of the target pipeline. A resolver error aborts the turn.
func NewResolveRouteNode(resolve ResolveFunc, extractor underwriting.Extractor) *compose.Lambda {
	return NewStep(NodeResolveRoute, func(ctx context.Context, in StepInput) (model.Delta, error) {
		t := in.Turn
		target, err := resolve(t.Intent, in.Deal)
		if err != nil {
			return model.Delta{}, err
		}
		if target != t.Intent {
			metrics.Reroutes.WithLabelValues(t.Intent.String(), target.String()).Inc()
		}
		t.Target = target
		t.Entry = EntryNode(target, in.Deal, t.Query, extractor)

		logx.Debug().
			Str("session_id", t.SessionID).
			Str("intent", t.Intent.String()).
			Str("target", target.String()).
			Str("entry", t.Entry).
			Msg("Route resolved")
		return model.Delta{CurrentStep: ptr(target)}, nil
	})
}

// EntryNode maps a resolved action to the first node of its pipeline.
func EntryNode(target model.Action, deal *model.DealState, query string, extractor underwriting.Extractor) string {
	switch target {
	case model.ActionIngest:
		return NodeIngestStart
	case model.ActionComps:
		return NodeCompsPropose
	case model.ActionUpdateComps:
		return NodeCompsUpdate
	case model.ActionAssumptions:
		return NodeAssumptionsPropose
	case model.ActionUpdateAssumptions:
		return NodeAssumptionsUpdate
	case model.ActionModel:
		return NodeModelBuild
	case model.ActionDeck:
		return NodeDeckGenerate
	case model.ActionScenarios:
		if _, ok := describeScenario(query, extractor); ok {
			return NodeScenarioApply
		}
		if deal != nil && deal.Status.IsSuspendedAt(model.StepAwaitScenarioRequest, model.StepAwaitMoreScenarios) {
			return NodeScenarioApply
		}
		return NodeScenarioPrepare
	}
	return NodeChat
}

// describeScenario reads a scenario request. ok is false when the text names
// neither an archetype nor an explicit adjustment.
func describeScenario(text string, extractor underwriting.Extractor) (underwriting.ScenarioDescriptor, bool) {
	archetype, named := underwriting.DetectArchetype(text)
	explicit := extractor.Extract(text)
	return underwriting.ScenarioDescriptor{Archetype: archetype, Explicit: explicit}, named || !explicit.IsZero()
}

// NewRouteCondition branches on the entry node chosen by resolve_route.
func NewRouteCondition() func(context.Context, *model.Turn) (string, error) {
	return func(ctx context.Context, t *model.Turn) (string, error) {
		if t == nil || t.Entry == "" {
			return NodeChat, nil
		}
		return t.Entry, nil
	}
}

// RouteTargets lists every node the route branch may select.
func RouteTargets() map[string]bool {
	return map[string]bool{
		NodeIngestStart:        true,
		NodeCompsPropose:       true,
		NodeCompsUpdate:        true,
		NodeAssumptionsPropose: true,
		NodeAssumptionsUpdate:  true,
		NodeModelBuild:         true,
		NodeDeckGenerate:       true,
		NodeScenarioPrepare:    true,
		NodeScenarioApply:      true,
		NodeChat:               true,
	}
}

// NewPersistNode saves the merged state and assembles the turn result.
func NewPersistNode(repo model.DealRepository) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, t *model.Turn) (*model.TurnResult, error) {
		var (
			deal     *model.DealState
			appended []model.Message
			trace    []string
		)
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			s.Trace = append(s.Trace, NodePersist)
			deal = s.Deal
			appended = append([]model.Message(nil), s.Appended...)
			trace = append([]string(nil), s.Trace...)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("read turn state: %w", err)
		}
		if deal == nil {
			return nil, fmt.Errorf("no deal state to persist")
		}

		if err := repo.Save(ctx, deal, appended); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}

		out := &model.TurnResult{
			SessionID: t.SessionID,
			Intent:    t.Intent,
			Target:    t.Target,
			Status:    deal.Status,
			Trace:     trace,
			CostUSD:   model.CostTrackerFrom(ctx).Total(),
		}
		for _, m := range appended {
			if m.Role != model.RoleUser {
				out.Messages = append(out.Messages, m)
			}
		}

		logx.Debug().
			Str("session_id", t.SessionID).
			Str("status", string(deal.Status.At)).
			Str("trace", strings.Join(trace, ">")).
			Msg("Turn persisted")
		return out, nil
	})
}
