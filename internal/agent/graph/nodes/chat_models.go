package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/deal-associate/server/internal/agent/model"
	"github.com/deal-associate/server/internal/metrics"
	logx "github.com/deal-associate/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey     string
	BaseURL    string
	IntentConf *model.IntentModelConfig
	RespConf   *model.ResponseModelConfig
}

// ChatModels holds the intent and response models. Response answers chat
// and gets the tools bound; Writer uses the same model without tools to
// draft narratives.
type ChatModels struct {
	Intent            einomodel.BaseChatModel
	Response          einomodel.ChatModel
	Writer            einomodel.BaseChatModel
	IntentModelName   string
	ResponseModelName string
}

// NewChatModels creates both Gemini models with the given configuration
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	if config.IntentConf == nil || config.RespConf == nil {
		return nil, fmt.Errorf("model config is nil")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	intentModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.IntentConf.Model,
		Temperature: &config.IntentConf.Temperature,
		MaxTokens:   &config.IntentConf.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating intent model")
		return nil, fmt.Errorf("error creating intent model: %w", err)
	}

	respCfg := &gemini.Config{
		Client:      client,
		Model:       config.RespConf.Model,
		Temperature: &config.RespConf.Temperature,
		MaxTokens:   &config.RespConf.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(2000)),
		},
	}
	responseModel, err := gemini.NewChatModel(ctx, respCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating response model")
		return nil, fmt.Errorf("error creating response model: %w", err)
	}
	writerModel, err := gemini.NewChatModel(ctx, respCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating writer model")
		return nil, fmt.Errorf("error creating writer model: %w", err)
	}

	return &ChatModels{
		Intent:            intentModel,
		Response:          responseModel,
		Writer:            writerModel,
		IntentModelName:   config.IntentConf.Model,
		ResponseModelName: config.RespConf.Model,
	}, nil
}

// BindToolsToResponseModel binds tools to the response chat model
func (cm *ChatModels) BindToolsToResponseModel(ctx context.Context, tools []*schema.ToolInfo) error {
	if err := cm.Response.BindTools(tools); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return fmt.Errorf("failed to bind tools: %w", err)
	}

	logx.Debug().Int("tools", len(tools)).Msg("Successfully bound tools to response model")
	return nil
}

// WithChatFallback wraps cm so that a failed call answers with a fallback
// reply instead of failing the turn.
func WithChatFallback(cm einomodel.ChatModel, modelName string) einomodel.ChatModel {
	return &fallbackChatModel{ChatModel: cm, name: modelName}
}

type fallbackChatModel struct {
	einomodel.ChatModel
	name string
}

func (m *fallbackChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	out, err := m.ChatModel.Generate(ctx, input, opts...)
	if err != nil {
		m.failed(err)
		return schema.AssistantMessage(ChatFallbackReply, nil), nil
	}
	return out, nil
}

func (m *fallbackChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	sr, err := m.ChatModel.Stream(ctx, input, opts...)
	if err != nil {
		m.failed(err)
		return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage(ChatFallbackReply, nil)}), nil
	}
	return sr, nil
}

func (m *fallbackChatModel) failed(err error) {
	metrics.LLMFailures.WithLabelValues(m.name, NodeChatModel).Inc()
	logx.Warn().Err(err).Str("model", m.name).Msg("Chat model call failed; answering with fallback")
}

func (m *fallbackChatModel) GetType() string {
	if t, ok := m.ChatModel.(components.Typer); ok {
		return t.GetType()
	}
	return "FallbackChatModel"
}

func (m *fallbackChatModel) IsCallbacksEnabled() bool {
	c, ok := m.ChatModel.(components.Checker)
	return ok && c.IsCallbacksEnabled()
}
