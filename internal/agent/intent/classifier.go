package intent

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"

	"github.com/deal-associate/server/internal/agent/graph/conversations"
	"github.com/deal-associate/server/internal/agent/model"
	logx "github.com/deal-associate/server/pkg/logger"
)

const (
	KindLLM     = "llm"
	KindKeyword = "keyword"
)

// Classifier maps the transcript, whose last user entry is the message to
// classify, onto a workflow action. Callers treat any error as ActionChat.
type Classifier interface {
	Classify(ctx context.Context, transcript []model.Message) (model.Action, error)
}

// Config selects and tunes the classifier.
type Config struct {
	Model        model.IntentModelConfig
	Conversation model.ConversationConfig
}

// New returns the configured classifier. The LLM classifier needs chatModel;
// without one the keyword classifier is used.
func New(cfg Config, chatModel einomodel.BaseChatModel) (Classifier, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Model.Classifier))
	switch kind {
	case KindKeyword:
		return NewKeywordClassifier(), nil
	case KindLLM, "":
		if chatModel == nil {
			logx.Warn().Msg("No intent model configured; using keyword classifier")
			return NewKeywordClassifier(), nil
		}
		return NewLLMClassifier(chatModel, cfg.Model.Model, conversations.NewMessagesManager(cfg.Conversation), cfg.Model.MinConfidence), nil
	}
	return nil, fmt.Errorf("unknown intent classifier %q", cfg.Model.Classifier)
}

// Name reports which implementation c is, for logs and metrics.
func Name(c Classifier) string {
	switch c.(type) {
	case *LLMClassifier:
		return KindLLM
	case *KeywordClassifier:
		return KindKeyword
	}
	return fmt.Sprintf("%T", c)
}
