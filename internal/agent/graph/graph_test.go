package graph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deal-associate/server/internal/adapters/comps"
	"github.com/deal-associate/server/internal/adapters/ingest"
	"github.com/deal-associate/server/internal/adapters/publish"
	"github.com/deal-associate/server/internal/agent/graph/conversations"
	"github.com/deal-associate/server/internal/agent/graph/nodes"
	"github.com/deal-associate/server/internal/agent/graph/tools"
	"github.com/deal-associate/server/internal/agent/intent"
	"github.com/deal-associate/server/internal/agent/model"
	"github.com/deal-associate/server/internal/agent/repo"
	errx "github.com/deal-associate/server/internal/core/error"
)

const dealRecord = `{
  "assets": [{
    "name": "Logistics Park Nord",
    "asset_type": "Logistics",
    "city": "Hamburg",
    "country": "Germany",
    "logistics_asset": {"area_m2": 50000},
    "leases": [
      {"tenant": {"name": "Acme"}, "area_m2": 30000, "rent_psm_pa": 60, "term_remaining_years": 5},
      {"tenant": {"name": "Beta"}, "area_m2": 10000, "rent_psm_pa": 70, "term_remaining_years": 2}
    ]
  }]
}`

func dataRoom(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "structured"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "documents"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "structured", "deal.json"), []byte(dealRecord), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "documents", "im.txt"),
		[]byte("Logistics Park Nord offers 12 metre clear height.\n\nThe site has 40 dock doors."), 0o644))
	return root
}

func testGraphConfig(t *testing.T) *GraphConfig {
	t.Helper()
	validator, err := ingest.NewValidator()
	require.NoError(t, err)
	return &GraphConfig{
		Deps: &nodes.Deps{
			Repo:       repo.NewMemoryDealRepository(),
			Classifier: intent.NewKeywordClassifier(),
			Source:     ingest.NewDirSource(dataRoom(t)),
			Validator:  validator,
			Comps:      comps.NewStaticCatalog(comps.DefaultCatalog(), 3),
			Publisher:  publish.NewPublisher(t.TempDir(), nil),
			Resolve:    Resolve,
			Underwriting: model.UnderwritingConfig{
				EquityMultiple:   "net",
				HurdleIRR:        0.10,
				RecommendedComps: 3,
			},
		},
		MessagesManager: conversations.NewMessagesManager(model.ConversationConfig{}),
		ToolMaxCalls:    2,
	}
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	r, err := NewRunner(context.Background(), testGraphConfig(t))
	require.NoError(t, err)
	return r
}

func lastAssistant(res *model.TurnResult) string {
	for i := len(res.Messages) - 1; i >= 0; i-- {
		if res.Messages[i].Role == model.RoleAssistant {
			return res.Messages[i].Text
		}
	}
	return ""
}

func TestRunner_FullWorkflow(t *testing.T) {
	r := newTestRunner(t)
	ctx := context.Background()
	const sid = "deal-1"

	turn := func(text string) *model.TurnResult {
		t.Helper()
		res, err := r.HandleTurn(ctx, sid, text)
		require.NoError(t, err, text)
		return res
	}

	res := turn("Let's start the underwriting for this deal")
	assert.Equal(t, model.ActionIngest, res.Target)
	assert.True(t, res.Status.IsSuspendedAt(model.StepAwaitCompsReview))
	assert.Contains(t, res.Trace, nodes.NodeIngestSummarize)
	assert.Contains(t, res.Trace, nodes.NodeCompsPropose)
	assert.Equal(t, nodes.QuestionCompsReview, lastAssistant(res))
	for _, m := range res.Messages {
		assert.NotEqual(t, model.RoleUser, m.Role)
	}

	deal, err := r.Session(ctx, sid)
	require.NoError(t, err)
	require.Len(t, deal.Comps, 3)
	assert.Equal(t, 2, deal.ExtractedData.Metrics.Tenants)

	res = turn("Remove Comp B and add Comp E")
	assert.Equal(t, model.ActionUpdateComps, res.Target)
	assert.True(t, res.Status.IsSuspendedAt(model.StepAwaitCompsConfirmation))

	res = turn("yes")
	assert.Equal(t, model.ActionAssumptions, res.Target)
	assert.True(t, res.Status.IsSuspendedAt(model.StepAwaitAssumptionsReview))

	res = turn("change exit yield to 5%")
	assert.Equal(t, model.ActionUpdateAssumptions, res.Target)
	assert.True(t, res.Status.IsSuspendedAt(model.StepAwaitModelConfirmation))

	res = turn("yes")
	assert.Equal(t, model.ActionModel, res.Target)
	assert.True(t, res.Status.IsSuspendedAt(model.StepAwaitDeckConfirmation))

	deal, err = r.Session(ctx, sid)
	require.NoError(t, err)
	require.NotNil(t, deal.FinancialModel)
	baseIRR := deal.FinancialModel.IRR
	require.NotNil(t, deal.FinancialModel.Workbook)
	assert.FileExists(t, deal.FinancialModel.Workbook.LocalPath)

	res = turn("yes")
	assert.Equal(t, model.ActionDeck, res.Target)
	assert.True(t, res.Status.IsSuspendedAt(model.StepAwaitScenarioOffer))

	res = turn("run a downside scenario")
	assert.Equal(t, model.ActionScenarios, res.Target)
	assert.True(t, res.Status.IsSuspendedAt(model.StepAwaitMoreScenarios))
	assert.Contains(t, res.Trace, nodes.NodeScenarioRebuild)

	res = turn("yes")
	assert.Equal(t, model.ActionScenarios, res.Target)
	assert.Contains(t, res.Trace, nodes.NodeScenarioApply)

	deal, err = r.Session(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, []string{"Downside Case", "Custom Scenario"}, deal.ScenarioLabels())
	assert.Equal(t, baseIRR, deal.FinancialModel.IRR, "scenarios leave the base case alone")
	require.NotNil(t, deal.Deck)
	assert.Equal(t, 3, deal.Deck.Version)
}

func TestRunner_ReroutesToMissingPrerequisite(t *testing.T) {
	r := newTestRunner(t)

	res, err := r.HandleTurn(context.Background(), "deal-2", "build the financial model")
	require.NoError(t, err)
	assert.Equal(t, model.ActionModel, res.Intent)
	assert.Equal(t, model.ActionIngest, res.Target)
	assert.True(t, res.Status.IsSuspendedAt(model.StepAwaitCompsReview))
}

func TestRunner_DeterministicChat(t *testing.T) {
	r := newTestRunner(t)

	res, err := r.HandleTurn(context.Background(), "deal-3", "hello there")
	require.NoError(t, err)
	assert.Equal(t, model.ActionChat, res.Target)
	assert.True(t, res.Status.IsSuspendedAt(model.StepAwaitUser))
	assert.Contains(t, lastAssistant(res), "No deal data ingested yet.")
	assert.Equal(t, nodes.NodePersist, res.Trace[len(res.Trace)-1])
}

func TestRunner_RejectsEmptyInput(t *testing.T) {
	r := newTestRunner(t)

	_, err := r.HandleTurn(context.Background(), "", "hi")
	assert.Equal(t, http.StatusBadRequest, errx.StatusOf(err))

	_, err = r.HandleTurn(context.Background(), "deal-4", "   ")
	assert.Equal(t, http.StatusBadRequest, errx.StatusOf(err))
}

func TestRunner_BusySession(t *testing.T) {
	r := newTestRunner(t)
	r.busy.Store("deal-5", struct{}{})

	_, err := r.HandleTurn(context.Background(), "deal-5", "hello")
	assert.True(t, errors.Is(err, errx.ErrSessionBusy))
	assert.True(t, errors.Is(r.Reset(context.Background(), "deal-5"), errx.ErrSessionBusy))

	r.busy.Delete("deal-5")
	_, err = r.HandleTurn(context.Background(), "deal-5", "hello")
	require.NoError(t, err)
	require.NoError(t, r.Reset(context.Background(), "deal-5"))

	_, err = r.Session(context.Background(), "deal-5")
	assert.True(t, errors.Is(err, errx.ErrSessionNotFound))
}

func TestRunner_SessionsAreIndependent(t *testing.T) {
	r := newTestRunner(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, sid := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(sid string) {
			defer wg.Done()
			_, err := r.HandleTurn(ctx, sid, "hello")
			assert.NoError(t, err)
		}(sid)
	}
	wg.Wait()

	for _, sid := range []string{"a", "b", "c"} {
		deal, err := r.Session(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, sid, deal.SessionID)
		assert.Len(t, deal.Transcript, 2)
	}
}

// scriptedModel asks for the deal metrics once, then answers.
type scriptedModel struct {
	mu    sync.Mutex
	calls int
	seen  [][]*schema.Message
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.seen = append(m.seen, input)
	if m.calls == 1 {
		return &schema.Message{
			Role: schema.Assistant,
			ToolCalls: []schema.ToolCall{{
				Type:     "function",
				Function: schema.FunctionCall{Name: tools.ToolGetDealMetrics, Arguments: `{"include_scenarios":"true"}`},
			}},
		}, nil
	}
	return schema.AssistantMessage("No model has been built yet, so there are no returns to report.", nil), nil
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{out}), nil
}

func (m *scriptedModel) BindTools(_ []*schema.ToolInfo) error {
	return nil
}

func TestRunner_ChatWithTools(t *testing.T) {
	cfg := testGraphConfig(t)
	chatModel := &scriptedModel{}
	cfg.ResponseModel = chatModel
	cfg.ResponseModelName = "gemini-2.5-flash"

	r, err := NewRunner(context.Background(), cfg)
	require.NoError(t, err)

	res, err := r.HandleTurn(context.Background(), "deal-6", "what is the irr?")
	require.NoError(t, err)
	assert.Equal(t, model.ActionChat, res.Target)
	assert.Equal(t, "No model has been built yet, so there are no returns to report.", lastAssistant(res))
	assert.Contains(t, res.Trace, nodes.NodeChatTools)
	assert.Contains(t, res.Trace, nodes.NodeChatReply)

	require.Equal(t, 2, chatModel.calls)
	second := chatModel.seen[1]
	var toolResult *schema.Message
	for _, m := range second {
		if m.Role == schema.Tool {
			toolResult = m
		}
	}
	require.NotNil(t, toolResult, "tool result is fed back to the model")
	assert.Equal(t, "call_1", toolResult.ToolCallID)
	assert.True(t, json.Valid([]byte(toolResult.Content)))
}

func TestSanitizeToolArguments(t *testing.T) {
	got := SanitizeToolArguments(tools.ToolSearchDealDocuments, `{"query":"  clear height ","max_results":"50"}`)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(got), &m))
	assert.Equal(t, "clear height", m["query"])
	assert.Equal(t, float64(10), m["max_results"])

	got = SanitizeToolArguments(tools.ToolSearchDealDocuments, `{"query":42,"max_results":"lots"}`)
	m = nil
	require.NoError(t, json.Unmarshal([]byte(got), &m))
	assert.Equal(t, "42", m["query"])
	assert.NotContains(t, m, "max_results")

	got = SanitizeToolArguments(tools.ToolGetDealMetrics, `{"include_scenarios":"TRUE"}`)
	assert.JSONEq(t, `{"include_scenarios":true}`, got)

	assert.Equal(t, "not json", SanitizeToolArguments(tools.ToolGetDealMetrics, "not json"))
	assert.False(t, strings.Contains(SanitizeToolArguments(tools.ToolGetDealMetrics, `{"include_scenarios":"maybe"}`), "maybe"))
}

func TestToolBudget(t *testing.T) {
	assert.Equal(t, nodes.DefaultMaxToolCalls, toolBudget(0))
	assert.Equal(t, 7, toolBudget(7))
}

// failingModel always errors, like an unavailable provider.
type failingModel struct{}

func (failingModel) Generate(context.Context, []*schema.Message, ...einomodel.Option) (*schema.Message, error) {
	return nil, errors.New("gemini: 503 unavailable")
}

func (failingModel) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("gemini: 503 unavailable")
}

func (failingModel) BindTools([]*schema.ToolInfo) error {
	return nil
}

func TestRunner_ChatModelFailureStillAnswers(t *testing.T) {
	cfg := testGraphConfig(t)
	cfg.ResponseModel = failingModel{}
	cfg.ResponseModelName = "gemini-2.5-flash"

	r, err := NewRunner(context.Background(), cfg)
	require.NoError(t, err)

	res, err := r.HandleTurn(context.Background(), "deal-7", "what is the irr?")
	require.NoError(t, err)
	assert.Equal(t, model.ActionChat, res.Target)
	assert.Equal(t, nodes.ChatFallbackReply, lastAssistant(res))
	assert.True(t, res.Status.IsSuspendedAt(model.StepAwaitUser))
	assert.NotContains(t, res.Trace, nodes.NodeChatTools)

	deal, err := r.Session(context.Background(), "deal-7")
	require.NoError(t, err)
	require.Len(t, deal.Transcript, 2)
	assert.Equal(t, "what is the irr?", deal.Transcript[0].Text)
}

func TestRunner_ScenarioRequestWalksPrerequisites(t *testing.T) {
	cfg := testGraphConfig(t)
	ctx := context.Background()
	seed := stateWith(model.FieldExtractedData, model.FieldCompsData)
	require.NoError(t, cfg.Deps.Repo.Save(ctx, seed, nil))

	r, err := NewRunner(ctx, cfg)
	require.NoError(t, err)

	steps := []struct {
		target model.Action
		at     model.Step
	}{
		{model.ActionAssumptions, model.StepAwaitAssumptionsReview},
		{model.ActionModel, model.StepAwaitDeckConfirmation},
		{model.ActionScenarios, model.StepAwaitScenarioRequest},
	}
	for _, want := range steps {
		res, err := r.HandleTurn(ctx, seed.SessionID, "run a scenario")
		require.NoError(t, err)
		assert.Equal(t, model.ActionScenarios, res.Intent)
		assert.Equal(t, want.target, res.Target)
		assert.True(t, res.Status.IsSuspendedAt(want.at), "suspended at %s", res.Status.At)
	}

	// the example the scenario question itself suggests
	res, err := r.HandleTurn(ctx, seed.SessionID, "-5% rent")
	require.NoError(t, err)
	assert.Equal(t, model.ActionScenarios, res.Target)
	assert.Contains(t, res.Trace, nodes.NodeScenarioApply)
	assert.True(t, res.Status.IsSuspendedAt(model.StepAwaitMoreScenarios))

	deal, err := r.Session(ctx, seed.SessionID)
	require.NoError(t, err)
	latest, ok := deal.LatestScenario()
	require.True(t, ok)
	assert.InDelta(t, -0.05, latest.Applied.RentChange, 1e-12)
}

func TestRunner_NoOpAssumptionsUpdateReturnsToReview(t *testing.T) {
	cfg := testGraphConfig(t)
	ctx := context.Background()
	seed := stateWith(model.FieldExtractedData, model.FieldCompsData, model.FieldFinancialAssumptions)
	require.NoError(t, cfg.Deps.Repo.Save(ctx, seed, nil))

	r, err := NewRunner(ctx, cfg)
	require.NoError(t, err)

	res, err := r.HandleTurn(ctx, seed.SessionID, "change the exit yield please")
	require.NoError(t, err)
	assert.Equal(t, model.ActionUpdateAssumptions, res.Target)
	assert.True(t, res.Status.IsSuspendedAt(model.StepAwaitAssumptionsReview))
	assert.Equal(t, nodes.QuestionAssumptionsReview, lastAssistant(res))
	assert.NotContains(t, res.Trace, nodes.NodeAwaitModelConfirmation)

	res, err = r.HandleTurn(ctx, seed.SessionID, "change the exit yield to 5%")
	require.NoError(t, err)
	assert.True(t, res.Status.IsSuspendedAt(model.StepAwaitModelConfirmation))
}
