package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/deal-associate/server/internal/agent/graph/parsers"
	"github.com/deal-associate/server/internal/agent/model"
)

//go:embed template/intent_prompt.txt
var intentSystemPrompt string

var actionDescriptions = map[model.Action]string{
	model.ActionIngest:            "start a deal, upload or load documents, begin underwriting",
	model.ActionComps:             "show or propose comparable transactions",
	model.ActionUpdateComps:       "add or remove comparables (\"remove Comp A\", \"add Comp D\")",
	model.ActionAssumptions:       "show or propose the underwriting assumptions",
	model.ActionUpdateAssumptions: "change assumptions (\"growth to 2.5%\", \"exit yield 5%\", \"ERV 90\")",
	model.ActionModel:             "build or rebuild the financial model, or confirm a model build",
	model.ActionDeck:              "generate the presentation deck or memo, or confirm deck generation",
	model.ActionScenarios:         "run a scenario, stress test or sensitivity",
	model.ActionChat:              "questions, greetings, clarifications, refusals",
}

// RenderIntentSystem renders the classifier system prompt via the Eino prompt
// component so prompt callbacks fire.
func RenderIntentSystem(ctx context.Context) (string, error) {
	var actions strings.Builder
	for _, a := range model.Actions() {
		fmt.Fprintf(&actions, "- %s: %s\n", a, actionDescriptions[a])
	}

	// replace known tokens only; the template contains literal JSON braces
	content := strings.NewReplacer(
		"{TD}", parsers.TupleDelimiter,
		"{RD}", parsers.RecordDelimiter,
		"{CD}", parsers.CompleteDelimiter,
		"{actions}", strings.TrimRight(actions.String(), "\n"),
	).Replace(intentSystemPrompt)

	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(content)},
	})
	if err != nil {
		return "", fmt.Errorf("intent prompt callbacks: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("intent prompt callbacks: empty result")
	}
	return msgs[0].Content, nil
}
