package model

// ================ Config ================
type ConversationConfig struct {
	TTL    string `envconfig:"CONVERSATION_TTL" default:"168h"`
	Intent struct {
		MaxTurns int `envconfig:"CONVERSATION_INTENT_MAX_TURNS" default:"6"`
	}
	Chat struct {
		MaxTurns int `envconfig:"CONVERSATION_CHAT_MAX_TURNS" default:"20"`
	}
	Tools struct {
		MaxCalls int `envconfig:"CONVERSATION_TOOL_MAX_CALLS" default:"4"`
	}
}

type IntentModelConfig struct {
	Classifier    string  `envconfig:"INTENT_CLASSIFIER" default:"llm"`
	Model         string  `envconfig:"INTENT_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens     int     `envconfig:"INTENT_MAX_TOKENS" default:"1000"`
	Temperature   float32 `envconfig:"INTENT_TEMPERATURE" default:"0.0"`
	MinConfidence float64 `envconfig:"INTENT_MIN_CONFIDENCE" default:"0.3"`
}

type ResponseModelConfig struct {
	Model       string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"RESPONSE_MAX_TOKENS" default:"4000"`
	Temperature float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.2"`
}

type UnderwritingConfig struct {
	EquityMultiple   string  `envconfig:"UNDERWRITING_EQUITY_MULTIPLE" default:"net"`
	HurdleIRR        float64 `envconfig:"UNDERWRITING_HURDLE_IRR" default:"0.10"`
	RecommendedComps int     `envconfig:"UNDERWRITING_RECOMMENDED_COMPS" default:"3"`
}
