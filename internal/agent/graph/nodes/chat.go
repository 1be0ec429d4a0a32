package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/deal-associate/server/internal/agent/graph/conversations"
	"github.com/deal-associate/server/internal/agent/graph/prompts"
	"github.com/deal-associate/server/internal/agent/graph/tools"
	"github.com/deal-associate/server/internal/agent/model"
	logx "github.com/deal-associate/server/pkg/logger"
)

const ChatFallbackReply = "I couldn't put together an answer just now. Could you rephrase the question?"

// NewChatInputNode builds the chat model context: system prompt with the
// deal summary, then the recent dialogue.
func NewChatInputNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, t *model.Turn) ([]*schema.Message, error) {
		var deal *model.DealState
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			s.Trace = append(s.Trace, NodeChat)
			s.Turn = t
			deal = s.Deal
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		systemPrompt, err := prompts.RenderChatSystem(ctx, prompts.ChatVars{
			DealSummary: DealSummary(deal),
			SearchTool:  tools.ToolSearchDealDocuments,
			MetricsTool: tools.ToolGetDealMetrics,
		})
		if err != nil {
			return nil, fmt.Errorf("render chat system prompt: %w", err)
		}
		return mm.BuildChatContext(systemPrompt, deal.Transcript), nil
	})
}

// NewChatModelPreHandler accumulates the tool loop history and asks the
// model to wrap up once the tool budget is spent.
func NewChatModelPreHandler(maxToolCalls int) func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		state.Trace = append(state.Trace, NodeChatModel)

		// Some providers return tool results without tool_call_id
		if len(in) > 0 {
			last := in[len(in)-1]
			if last != nil && last.Role == schema.Tool && strings.TrimSpace(last.ToolCallID) == "" {
				for i := len(state.History) - 1; i >= 0; i-- {
					msg := state.History[i]
					if msg == nil || msg.Role != schema.Assistant || len(msg.ToolCalls) == 0 {
						continue
					}
					if id := msg.ToolCalls[0].ID; strings.TrimSpace(id) != "" {
						last.ToolCallID = id
					}
					break
				}
			}
		}

		state.History = append(state.History, in...)

		if checkAndMarkToolLimit(state, maxToolCalls) {
			wrapUp := &schema.Message{
				Role: schema.System,
				Content: fmt.Sprintf(
					"SYSTEM NOTICE: You have reached the maximum tool call limit (%d). "+
						"Answer now with the information you already have and say what you could not check.",
					normalizeMaxToolCalls(maxToolCalls),
				),
			}
			state.History = append(state.History, wrapUp)
		}

		return conversations.Sanitize(state.History), nil
	}
}

// NewChatModelPostHandler records usage, gives every tool call an ID and
// appends the response to the history.
func NewChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		if out == nil {
			return nil, fmt.Errorf("chat model returned no message")
		}
		model.RecordUsage(ctx, NodeChatModel, modelName, out)

		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				state.ToolCallIDSeq++
				out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
			}
		}
		state.History = append(state.History, out)

		if len(out.ToolCalls) > 0 {
			logx.Debug().Str("session_id", state.SessionID).Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
		} else {
			logx.Debug().Str("session_id", state.SessionID).Msg("AI response ready")
		}
		return out, nil
	}
}

// NewToolExecutorCondition routes tool calls to the tools node until the
// budget is spent.
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		var limitReached bool
		_ = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			limitReached = state.ToolCallLimitReached
			return nil
		})

		if limitReached {
			logx.Debug().Msg("Tool limit reached previously - routing to reply")
			return NodeChatReply, nil
		}
		if input != nil && len(input.ToolCalls) > 0 {
			return NodeChatTools, nil
		}
		return NodeChatReply, nil
	}
}

// NewToolExecutorPreHandler counts tool rounds.
func NewToolExecutorPreHandler(maxToolCalls int) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.AppState) (*schema.Message, error) {
		state.Trace = append(state.Trace, NodeChatTools)
		exceeded := incrementToolCallAndCheck(state, maxToolCalls)

		logx.Debug().
			Int("tool_call_count", state.ToolCallCount).
			Str("session_id", state.SessionID).
			Msg("Tool execution attempt")

		if exceeded {
			logx.Warn().
				Int("tool_call_count", state.ToolCallCount).
				Int("max_tool_calls", normalizeMaxToolCalls(maxToolCalls)).
				Str("session_id", state.SessionID).
				Msg("Tool call limit exceeded - flagging and continuing")
		}
		return in, nil
	}
}

// NewChatReplyNode stores the final answer in the transcript.
func NewChatReplyNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, out *schema.Message) (*model.Turn, error) {
		text := ""
		if out != nil {
			text = strings.TrimSpace(out.Content)
		}
		if text == "" {
			text = ChatFallbackReply
		}

		var t *model.Turn
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			s.Trace = append(s.Trace, NodeChatReply)
			t = s.Turn
			s.Apply(model.Say(text))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		if t == nil {
			return nil, fmt.Errorf("chat reply without a turn")
		}
		return t, nil
	})
}

// Chat answers without a language model: it quotes the best matching
// document passage, if any, and reports where the deal stands.
func Chat(_ context.Context, in StepInput) (model.Delta, error) {
	var b strings.Builder
	if in.Deal.ExtractedData != nil && strings.TrimSpace(in.Turn.Query) != "" {
		if res, err := tools.SearchDocuments(in.Deal.ExtractedData, in.Turn.Query, 1); err == nil && len(res.Matches) > 0 {
			m := res.Matches[0]
			fmt.Fprintf(&b, "From %s:\n%s\n\n", m.Document, m.Excerpt)
		}
	}
	b.WriteString(DealSummary(in.Deal))
	if next := NextStepHint(in.Deal); next != "" {
		b.WriteString("\n\n" + next)
	}
	return model.Say(b.String()), nil
}

// DealSummary describes the deal's progress for the chat model and the
// deterministic reply.
func DealSummary(deal *model.DealState) string {
	if deal == nil {
		return "No deal loaded."
	}
	var lines []string
	if deal.Has(model.FieldExtractedData) {
		line := "Ingested: " + deal.ExtractedData.SourceName
		if rec, err := ParseRecord(deal.ExtractedData.Source); err == nil {
			if a, ok := rec.Subject(); ok {
				line = fmt.Sprintf("Asset: %s (%s), %s", a.Name, a.AssetType, a.Location())
			}
		}
		lines = append(lines, line)
		if m := deal.ExtractedData.Metrics; m.Tenants > 0 {
			lines = append(lines, fmt.Sprintf("Tenancy: %d tenants, occupancy %.1f%%, WAULT %.1f years", m.Tenants, m.Occupancy*100, m.WAULTYears))
		}
	} else {
		lines = append(lines, "No deal data ingested yet.")
	}
	if len(deal.Comps) > 0 {
		names := make([]string, 0, len(deal.Comps))
		for _, c := range deal.Comps {
			names = append(names, c.Name)
		}
		lines = append(lines, "Comparables: "+strings.Join(names, ", "))
	}
	if len(deal.Assumptions) > 0 {
		lines = append(lines, "Assumptions: "+assumptionsLine(deal))
	}
	if fm := deal.FinancialModel; fm != nil {
		lines = append(lines, fmt.Sprintf("Base case (%s): IRR %s, equity multiple %s, yield on cost %s",
			fm.Status, fm.IRR.Percent(), fm.EquityMultiple.Multiple(), fm.YieldOnCost.Percent()))
	}
	if labels := deal.ScenarioLabels(); len(labels) > 0 {
		lines = append(lines, "Scenarios run: "+strings.Join(labels, ", "))
	}
	if deal.Deck != nil {
		lines = append(lines, fmt.Sprintf("IC deck: version %d", deal.Deck.Version))
	}
	return strings.Join(lines, "\n")
}

// NextStepHint suggests the next workflow step.
func NextStepHint(deal *model.DealState) string {
	switch {
	case !deal.Has(model.FieldExtractedData):
		return "Say 'start the underwriting' to ingest the deal data."
	case !deal.Has(model.FieldCompsData):
		return "Ask for comparables to continue."
	case !deal.Has(model.FieldFinancialAssumptions):
		return "Ask me to propose the assumptions to continue."
	case !deal.Has(model.FieldFinancialModel):
		return "Ask me to build the financial model to continue."
	case deal.Deck == nil:
		return "Ask for the IC deck, or run a scenario such as 'downside case'."
	}
	return "You can run another scenario, e.g. 'stress test' or '-10% rent, +50 bps exit yield'."
}

func assumptionsLine(deal *model.DealState) string {
	parts := make([]string, 0, len(deal.Assumptions))
	for _, k := range deal.Assumptions.Keys() {
		parts = append(parts, k+" "+FormatAssumption(k, deal.Assumptions[k]))
	}
	return strings.Join(parts, ", ")
}
