package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntentResponse(t *testing.T) {
	content := `(intent<||>update_assumptions<||>0.91<||>0.8<||>{"reason":"user changes growth"})##
(intent<||>chat<||>0.2<||>0.1)##<|COMPLETE|> trailing noise`

	resp, err := ParseIntentResponse(content)
	require.NoError(t, err)
	require.Len(t, resp.Intents, 2)
	assert.Equal(t, "update_assumptions", resp.PrimaryIntent)
	assert.InDelta(t, 0.91, resp.Confidence, 1e-9)
	assert.Equal(t, "user changes growth", resp.Intents[0].Metadata["reason"])
	assert.Empty(t, resp.ParsingErrors())
}

func TestParseIntentResponse_SkipsBadRecords(t *testing.T) {
	content := strings.Join([]string{
		"(intent<||>model<||>1.7<||>0.5)",
		"not a tuple",
		"(sentiment<||>positive<||>0.9)",
		`(intent<||>deck<||>0.6<||>0.5<||>{broken)`,
		"(intent<||>scenarios<||>0.4)",
	}, RecordDelimiter)

	resp, err := ParseIntentResponse(content)
	require.NoError(t, err)
	assert.Equal(t, "deck", resp.PrimaryIntent)
	assert.Len(t, resp.Intents, 2)
	assert.Len(t, resp.ParsingErrors(), 4)
}

func TestParseIntentResponse_Empty(t *testing.T) {
	resp, err := ParseIntentResponse("I think the user wants a model")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Empty(t, resp.Intents)
}
