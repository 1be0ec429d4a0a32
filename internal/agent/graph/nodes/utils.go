package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/deal-associate/server/internal/agent/model"
	logx "github.com/deal-associate/server/pkg/logger"
)

const DefaultMaxToolCalls = 4

// ===== Small helpers to keep handlers simple/readable =====
// normalizeMaxToolCalls returns a sane default when the provided value is invalid.
func normalizeMaxToolCalls(n int) int {
	if n <= 0 {
		return DefaultMaxToolCalls
	}
	return n
}

// checkAndMarkToolLimit marks the state once the tool budget is spent.
// Returns true when marked now.
func checkAndMarkToolLimit(state *model.AppState, max int) bool {
	max = normalizeMaxToolCalls(max)
	if !state.ToolCallLimitReached && state.ToolCallCount >= max {
		state.ToolCallLimitReached = true
		return true
	}
	return false
}

// incrementToolCallAndCheck counts one tool round and reports whether the
// budget is now exceeded.
func incrementToolCallAndCheck(state *model.AppState, max int) bool {
	max = normalizeMaxToolCalls(max)
	state.ToolCallCount++
	if state.ToolCallCount > max {
		state.ToolCallLimitReached = true
		return true
	}
	return false
}

// StepInput is what a pipeline step sees: an immutable deal snapshot, the
// routing decision and the pipeline scratch space, which it may modify.
type StepInput struct {
	Deal    *model.DealState
	Turn    *model.Turn
	Scratch *model.Scratch
}

// StepFunc does a node's work and returns the delta to merge.
type StepFunc func(ctx context.Context, in StepInput) (model.Delta, error)

// NewStep wraps fn as a lambda over *model.Turn. The deal is read from and the
// delta merged into graph state, so fn itself never touches AppState.
func NewStep(name string, fn StepFunc) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, t *model.Turn) (*model.Turn, error) {
		var (
			deal    *model.DealState
			scratch model.Scratch
		)
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			s.Trace = append(s.Trace, name)
			if s.Deal == nil {
				s.Deal = model.NewDealState(s.SessionID)
			}
			deal = s.Deal
			scratch = s.Scratch
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%s: read state: %w", name, err)
		}

		d, err := fn(ctx, StepInput{Deal: deal, Turn: t, Scratch: &scratch})
		if err != nil {
			logx.Error().Err(err).Str("session_id", t.SessionID).Str("node", name).Msg("Step failed")
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		err = compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			s.Scratch = scratch
			s.Apply(d)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%s: merge state: %w", name, err)
		}
		return t, nil
	})
}

func ptr[T any](v T) *T {
	return &v
}
