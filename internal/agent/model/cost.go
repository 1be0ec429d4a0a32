package model

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/deal-associate/server/internal/metrics"
	logx "github.com/deal-associate/server/pkg/logger"
)

// Pricing defines USD cost per 1M tokens for input/output.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// defaultPricing provides hardcoded USD pricing per 1M tokens (text tokens).
var defaultPricing = map[string]Pricing{
	// Source: Gemini pricing (Standard; text).
	"gemini-2.5-pro":        {InputPerM: 1.25, OutputPerM: 10.00},
	"gemini-2.5-flash":      {InputPerM: 0.30, OutputPerM: 2.50},
	"gemini-2.5-flash-lite": {InputPerM: 0.10, OutputPerM: 0.40},
	"gemini-2.0-flash":      {InputPerM: 0.10, OutputPerM: 0.40},
}

// ResolvePricing returns hardcoded pricing for a model, zero if unknown.
func ResolvePricing(model string) Pricing {
	return defaultPricing[model]
}

// ComputeCost converts token usage to USD cost using per-1M Pricing.
func ComputeCost(usage *schema.TokenUsage, p Pricing) (inputCost, outputCost, total float64) {
	if usage == nil {
		return 0, 0, 0
	}
	inputCost = p.InputPerM * float64(usage.PromptTokens) / 1_000_000.0
	outputCost = p.OutputPerM * float64(usage.CompletionTokens) / 1_000_000.0
	total = inputCost + outputCost
	return
}

// UsageCost is the priced token usage of one model call.
type UsageCost struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	InputCost        float64
	OutputCost       float64
	TotalCost        float64
}

// CostOf prices the usage reported on a model response. ok is false when the
// provider did not report usage.
func CostOf(modelName string, out *schema.Message) (UsageCost, bool) {
	if out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return UsageCost{}, false
	}
	u := out.ResponseMeta.Usage
	in, outC, total := ComputeCost(u, ResolvePricing(modelName))
	return UsageCost{
		Model:            modelName,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
		InputCost:        in,
		OutputCost:       outC,
		TotalCost:        total,
	}, true
}

type costTrackerKey struct{}

// CostTracker accumulates LLM spend for one turn. It is safe for concurrent use.
type CostTracker struct {
	mu    sync.Mutex
	calls []UsageCost
}

// WithCostTracker returns ctx carrying t.
func WithCostTracker(ctx context.Context, t *CostTracker) context.Context {
	return context.WithValue(ctx, costTrackerKey{}, t)
}

// CostTrackerFrom returns the tracker in ctx, or nil.
func CostTrackerFrom(ctx context.Context) *CostTracker {
	t, _ := ctx.Value(costTrackerKey{}).(*CostTracker)
	return t
}

// TrackCost records c on the tracker in ctx, if any.
func TrackCost(ctx context.Context, c UsageCost) {
	if t := CostTrackerFrom(ctx); t != nil {
		t.Add(c)
	}
}

func (t *CostTracker) Add(c UsageCost) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, c)
}

// Total returns the accumulated USD cost.
func (t *CostTracker) Total() float64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var total float64
	for _, c := range t.calls {
		total += c.TotalCost
	}
	return total
}

// Calls returns a copy of the recorded usages.
func (t *CostTracker) Calls() []UsageCost {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]UsageCost(nil), t.calls...)
}

// RecordUsage prices out, adds it to the turn's tracker, exports it and logs it.
func RecordUsage(ctx context.Context, component, modelName string, out *schema.Message) {
	c, ok := CostOf(modelName, out)
	if !ok {
		return
	}
	TrackCost(ctx, c)

	metrics.LLMCostUSD.WithLabelValues(modelName).Add(c.TotalCost)
	metrics.LLMTokens.WithLabelValues(modelName, "prompt").Add(float64(c.PromptTokens))
	metrics.LLMTokens.WithLabelValues(modelName, "completion").Add(float64(c.CompletionTokens))

	logx.Debug().
		Str("component", component).
		Str("model", modelName).
		Int("prompt_tokens", c.PromptTokens).
		Int("completion_tokens", c.CompletionTokens).
		Int("total_tokens", c.TotalTokens).
		Float64("input_cost_usd", c.InputCost).
		Float64("output_cost_usd", c.OutputCost).
		Float64("total_cost_usd", c.TotalCost).
		Msg("LLM usage")
}
