package intent

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/deal-associate/server/internal/agent/graph/conversations"
	"github.com/deal-associate/server/internal/agent/graph/parsers"
	"github.com/deal-associate/server/internal/agent/graph/prompts"
	"github.com/deal-associate/server/internal/agent/model"
	logx "github.com/deal-associate/server/pkg/logger"
)

// LLMClassifier asks the intent model for ranked intent tuples.
type LLMClassifier struct {
	chatModel     einomodel.BaseChatModel
	modelName     string
	mm            *conversations.MessagesManager
	minConfidence float64
}

func NewLLMClassifier(chatModel einomodel.BaseChatModel, modelName string, mm *conversations.MessagesManager, minConfidence float64) *LLMClassifier {
	return &LLMClassifier{
		chatModel:     chatModel,
		modelName:     modelName,
		mm:            mm,
		minConfidence: minConfidence,
	}
}

func (c *LLMClassifier) Classify(ctx context.Context, transcript []model.Message) (model.Action, error) {
	systemPrompt, err := prompts.RenderIntentSystem(ctx)
	if err != nil {
		return "", fmt.Errorf("render intent system prompt: %w", err)
	}

	out, err := c.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(c.mm.BuildIntentContext(transcript)),
	})
	if err != nil {
		return "", fmt.Errorf("intent model: %w", err)
	}
	if out == nil {
		return "", fmt.Errorf("intent model returned no message")
	}
	model.RecordUsage(ctx, "intent_classifier", c.modelName, out)

	resp, err := parsers.ParseIntentResponse(out.Content)
	if err != nil {
		return "", fmt.Errorf("parse intent response: %w", err)
	}
	if errs := resp.ParsingErrors(); len(errs) > 0 {
		logx.Debug().Strs("parsing_errors", errs).Msg("Intent output had malformed records")
	}

	action, ok := model.ParseAction(resp.PrimaryIntent)
	if !ok {
		return "", fmt.Errorf("unknown intent %q", resp.PrimaryIntent)
	}
	if resp.Confidence < c.minConfidence {
		logx.Debug().
			Str("intent", resp.PrimaryIntent).
			Float64("confidence", resp.Confidence).
			Float64("min_confidence", c.minConfidence).
			Msg("Intent confidence below threshold; treating as chat")
		return model.ActionChat, nil
	}
	return action, nil
}
