package model

import "time"

// IntentCandidate is one intent the classifier model proposed.
type IntentCandidate struct {
	Name       string         `json:"name"`
	Confidence float64        `json:"confidence"`
	Priority   float64        `json:"priority"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// IntentResponse is the parsed classifier model output.
type IntentResponse struct {
	Intents         []IntentCandidate `json:"intents"`
	PrimaryIntent   string            `json:"primary_intent"`
	Confidence      float64           `json:"confidence"`
	ParsingMetadata map[string]any    `json:"parsing_metadata,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// ParsingErrors returns the per-record problems the parser skipped over.
func (r *IntentResponse) ParsingErrors() []string {
	if r == nil || r.ParsingMetadata == nil {
		return nil
	}
	v, _ := r.ParsingMetadata["parsing_errors"].([]string)
	return v
}
