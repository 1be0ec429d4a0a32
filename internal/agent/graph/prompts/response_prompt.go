package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/chat_prompt.txt
var chatSystemPrompt string

//go:embed template/align_prompt.txt
var alignPrompt string

//go:embed template/assumptions_prompt.txt
var assumptionsPrompt string

// ChatVars fills the chat system prompt.
type ChatVars struct {
	DealSummary string
	SearchTool  string
	MetricsTool string
}

// RenderChatSystem renders the chat system prompt and triggers prompt callbacks.
func RenderChatSystem(ctx context.Context, v ChatVars) (string, error) {
	msgs, err := render(ctx, schema.SystemMessage(chatSystemPrompt), map[string]any{
		"DealSummary": v.DealSummary,
		"SearchTool":  v.SearchTool,
		"MetricsTool": v.MetricsTool,
	})
	if err != nil {
		return "", fmt.Errorf("chat prompt render: %w", err)
	}
	return msgs[0].Content, nil
}

// RenderAlignment builds the messages asking the response model to reconcile
// the structured record with the document extracts.
func RenderAlignment(ctx context.Context, structured, documents string) ([]*schema.Message, error) {
	msgs, err := render(ctx, schema.UserMessage(alignPrompt), map[string]any{
		"Structured": structured,
		"Documents":  documents,
	})
	if err != nil {
		return nil, fmt.Errorf("align prompt render: %w", err)
	}
	return msgs, nil
}

// AssumptionsVars fills the assumptions narrative prompt.
type AssumptionsVars struct {
	BlendedRent string
	YieldRange  string
	Narrative   string
	Metrics     string
	Assumptions string
}

// RenderAssumptions builds the messages for the assumptions proposal narrative.
func RenderAssumptions(ctx context.Context, v AssumptionsVars) ([]*schema.Message, error) {
	msgs, err := render(ctx, schema.UserMessage(assumptionsPrompt), map[string]any{
		"BlendedRent": v.BlendedRent,
		"YieldRange":  v.YieldRange,
		"Narrative":   v.Narrative,
		"Metrics":     v.Metrics,
		"Assumptions": v.Assumptions,
	})
	if err != nil {
		return nil, fmt.Errorf("assumptions prompt render: %w", err)
	}
	return msgs, nil
}

func render(ctx context.Context, msg *schema.Message, vars map[string]any) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(schema.GoTemplate, msg)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return nil, fmt.Errorf("empty result")
	}
	return msgs, nil
}
