package conversations

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/deal-associate/server/internal/agent/model"
)

// MessagesManager turns the deal transcript into model context.
type MessagesManager struct {
	intentMaxTurns int
	chatMaxTurns   int
}

func NewMessagesManager(config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{
		intentMaxTurns: config.Intent.MaxTurns,
		chatMaxTurns:   config.Chat.MaxTurns,
	}
}

// =========== Intent classification ===========

// BuildIntentContext renders the recent transcript plus the message to
// classify. The last user entry of transcript is the current message.
func (cm *MessagesManager) BuildIntentContext(transcript []model.Message) string {
	history, current := splitCurrent(transcript)

	var b strings.Builder
	b.WriteString("<conversation_context>\n")
	for _, msg := range trimTail(dialogue(history), cm.intentMaxTurns) {
		switch msg.Role {
		case model.RoleUser:
			b.WriteString("UserMessage(" + msg.Text + ")\n")
		case model.RoleAssistant:
			b.WriteString("AssistantMessage(" + msg.Text + ")\n")
		}
	}
	b.WriteString("</conversation_context>")
	b.WriteString("\n<current_message_to_analyze>\n")
	b.WriteString("UserMessage(" + current + ")\n")
	b.WriteString("</current_message_to_analyze>")
	return b.String()
}

// =========== Chat ===========

// BuildChatContext returns the system prompt followed by the recent dialogue.
// System log entries are never shown to the model.
func (cm *MessagesManager) BuildChatContext(systemPrompt string, transcript []model.Message) []*schema.Message {
	recent := trimTail(dialogue(transcript), cm.chatMaxTurns)

	messages := make([]*schema.Message, 0, len(recent)+1)
	messages = append(messages, schema.SystemMessage(systemPrompt))
	for _, msg := range recent {
		switch msg.Role {
		case model.RoleUser:
			messages = append(messages, schema.UserMessage(msg.Text))
		case model.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(msg.Text, nil))
		}
	}
	return messages
}

// Sanitize drops assistant tool invocations that have no tool answer after
// them. It returns a new slice; history itself is not modified.
func Sanitize(history []*schema.Message) []*schema.Message {
	answered := make(map[string]bool)
	for _, m := range history {
		if m != nil && m.Role == schema.Tool && m.ToolCallID != "" {
			answered[m.ToolCallID] = true
		}
	}

	out := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		if m == nil {
			continue
		}
		if m.Role == schema.Assistant && len(m.ToolCalls) > 0 {
			complete := true
			for _, tc := range m.ToolCalls {
				if !answered[tc.ID] {
					complete = false
					break
				}
			}
			if !complete {
				if strings.TrimSpace(m.Content) != "" {
					out = append(out, schema.AssistantMessage(m.Content, nil))
				}
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// ====================== Helper function ======================
func splitCurrent(transcript []model.Message) ([]model.Message, string) {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role == model.RoleUser {
			return transcript[:i], transcript[i].Text
		}
	}
	return transcript, ""
}

func dialogue(messages []model.Message) []model.Message {
	out := make([]model.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == model.RoleSystemLog || strings.TrimSpace(m.Text) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

func trimTail(messages []model.Message, maxTurns int) []model.Message {
	if maxTurns <= 0 || len(messages) <= maxTurns {
		return messages
	}
	return messages[len(messages)-maxTurns:]
}
