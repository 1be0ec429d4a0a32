package model

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCostOf(t *testing.T) {
	msg := &schema.Message{
		Role: schema.Assistant,
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 1_000_000, CompletionTokens: 200_000, TotalTokens: 1_200_000},
		},
	}

	c, ok := CostOf("gemini-2.5-flash", msg)
	require.True(t, ok)
	assert.InDelta(t, 0.30, c.InputCost, 1e-9)
	assert.InDelta(t, 0.50, c.OutputCost, 1e-9)
	assert.InDelta(t, 0.80, c.TotalCost, 1e-9)

	c, ok = CostOf("unknown-model", msg)
	require.True(t, ok)
	assert.Zero(t, c.TotalCost)

	_, ok = CostOf("gemini-2.5-flash", schema.AssistantMessage("no usage", nil))
	assert.False(t, ok)
}

func TestCostTracker(t *testing.T) {
	tracker := &CostTracker{}
	ctx := WithCostTracker(context.Background(), tracker)

	TrackCost(ctx, UsageCost{Model: "a", TotalCost: 0.25})
	TrackCost(ctx, UsageCost{Model: "b", TotalCost: 0.5})
	TrackCost(context.Background(), UsageCost{TotalCost: 10})

	assert.InDelta(t, 0.75, tracker.Total(), 1e-9)
	assert.Len(t, tracker.Calls(), 2)
	assert.Same(t, tracker, CostTrackerFrom(ctx))

	var none *CostTracker
	assert.Zero(t, none.Total())
}
