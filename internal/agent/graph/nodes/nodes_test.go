package nodes

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deal-associate/server/internal/agent/model"
	"github.com/deal-associate/server/internal/underwriting"
)

// ===== fakes =====

type fakeSource struct {
	name   string
	record map[string]any
	docs   []model.Document
	err    error
}

func (f *fakeSource) LoadStructured(_ context.Context, _ string) (string, map[string]any, error) {
	return f.name, f.record, f.err
}

func (f *fakeSource) LoadDocuments(_ context.Context, _ string) ([]model.Document, error) {
	return f.docs, f.err
}

type fakeValidator struct{ warnings []string }

func (f fakeValidator) Validate(map[string]any) []string { return f.warnings }

type fakeComps struct {
	proposed []underwriting.Comp
	catalog  []underwriting.Comp
	err      error
	query    model.CompsQuery
}

func (f *fakeComps) Propose(_ context.Context, q model.CompsQuery) ([]underwriting.Comp, error) {
	f.query = q
	return f.proposed, f.err
}

func (f *fakeComps) Catalog(context.Context) ([]underwriting.Comp, error) {
	return f.catalog, f.err
}

type fakePublisher struct {
	url string
	err error
}

func (f *fakePublisher) PublishWorkbook(_ context.Context, sid string, _ underwriting.Assumptions, _ underwriting.Projection) (model.Artifact, error) {
	if f.err != nil {
		return model.Artifact{}, f.err
	}
	return model.Artifact{LocalPath: "/tmp/" + sid + "/Financial_Model.xlsx", URL: f.url}, nil
}

func (f *fakePublisher) PublishDeck(_ context.Context, sid string, _ model.DeckContent) (model.Artifact, error) {
	if f.err != nil {
		return model.Artifact{}, f.err
	}
	return model.Artifact{LocalPath: "/tmp/" + sid + "/IC_Deck.md", URL: f.url}, nil
}

// ===== fixtures =====

func sampleRecord() map[string]any {
	return map[string]any{
		"assets": []any{
			map[string]any{
				"name":            "Logistics Park Nord",
				"asset_type":      "Logistics",
				"city":            "Hamburg",
				"country":         "Germany",
				"logistics_asset": map[string]any{"area_m2": 50000},
				"leases": []any{
					map[string]any{"tenant": map[string]any{"name": "Acme"}, "area_m2": 30000, "rent_psm_pa": 60, "term_remaining_years": 5},
					map[string]any{"tenant": map[string]any{"name": "Beta"}, "area_m2": "10000", "rent_psm_pa": 70, "term_remaining_years": 2},
				},
			},
		},
	}
}

func testCatalog() []underwriting.Comp {
	return []underwriting.Comp{
		{Name: "Comp A", SizeSqm: 52000, Yield: 0.045, Rent: 82, DistanceKm: 20},
		{Name: "Comp B", SizeSqm: 60000, Yield: 0.047, Rent: 85, DistanceKm: 35},
		{Name: "Comp C", SizeSqm: 45000, Yield: 0.044, Rent: 87, DistanceKm: 50},
		{Name: "Comp D", SizeSqm: 75000, Yield: 0.048, Rent: 80, DistanceKm: 15},
	}
}

func ingestedDeal() *model.DealState {
	deal := model.NewDealState("s1")
	rec, _ := ParseRecord(sampleRecord())
	deal.ExtractedData = &model.ExtractedData{
		SourceName: "deal.json",
		Source:     sampleRecord(),
		Metrics:    rec.Metrics(),
		Documents:  []model.Document{{Name: "im.txt", Text: "The warehouse has a clear height of 12 metres and 40 dock doors."}},
	}
	return deal
}

func modelledDeal() *model.DealState {
	deal := ingestedDeal()
	deal.Comps = testCatalog()[:3]
	deal.Assumptions = ProposeAssumptions(deal)
	proj := underwriting.Project(deal.Assumptions)
	deal.FinancialModel = &model.FinancialModel{Metrics: proj.Metrics, Status: model.ModelStatusBuilt, Projection: &proj}
	return deal
}

func testDeps() *Deps {
	return &Deps{
		Comps:        &fakeComps{catalog: testCatalog()},
		Extractor:    underwriting.PatternExtractor{},
		Underwriting: model.UnderwritingConfig{EquityMultiple: "net", HurdleIRR: 0.10, RecommendedComps: 3},
	}
}

func input(deal *model.DealState, query string) StepInput {
	return StepInput{
		Deal:    deal,
		Turn:    &model.Turn{SessionID: deal.SessionID, Query: query},
		Scratch: &model.Scratch{},
	}
}

func lastText(d model.Delta) string {
	if len(d.Messages) == 0 {
		return ""
	}
	return d.Messages[len(d.Messages)-1].Text
}

// ===== record =====

func TestRecordMetrics(t *testing.T) {
	rec, err := ParseRecord(sampleRecord())
	require.NoError(t, err)

	a, ok := rec.Subject()
	require.True(t, ok)
	assert.Equal(t, "Hamburg, Germany", a.Location())

	m := rec.Metrics()
	assert.Equal(t, 2, m.Tenants)
	assert.InDelta(t, 50000, m.GLASqm, 1e-9)
	assert.InDelta(t, 0.8, m.Occupancy, 1e-9)
	assert.InDelta(t, 2_500_000, m.PassingRent, 1e-6)
	assert.InDelta(t, 4.16, m.WAULTYears, 1e-9)
}

func TestRecordMetrics_NoGLAUsesLeasedArea(t *testing.T) {
	rec, err := ParseRecord(map[string]any{
		"assets": []any{map[string]any{
			"name":   "Shed",
			"leases": []any{map[string]any{"area_m2": 1000, "rent_psm_pa": 50, "term_remaining_years": 3}},
		}},
	})
	require.NoError(t, err)

	m := rec.Metrics()
	assert.InDelta(t, 1000, m.GLASqm, 1e-9)
	assert.InDelta(t, 1, m.Occupancy, 1e-9)
	assert.InDelta(t, 3, m.WAULTYears, 1e-9)
}

func TestParseRecord_Empty(t *testing.T) {
	rec, err := ParseRecord(nil)
	require.NoError(t, err)
	_, ok := rec.Subject()
	assert.False(t, ok)
}

// ===== routing =====

func TestEntryNode(t *testing.T) {
	extractor := underwriting.PatternExtractor{}
	waiting := model.NewDealState("s1")
	waiting.Status = model.Suspended(model.StepAwaitMoreScenarios)

	tests := []struct {
		name   string
		target model.Action
		deal   *model.DealState
		query  string
		want   string
	}{
		{"ingest", model.ActionIngest, nil, "", NodeIngestStart},
		{"comps", model.ActionComps, nil, "", NodeCompsPropose},
		{"update comps", model.ActionUpdateComps, nil, "", NodeCompsUpdate},
		{"assumptions", model.ActionAssumptions, nil, "", NodeAssumptionsPropose},
		{"update assumptions", model.ActionUpdateAssumptions, nil, "", NodeAssumptionsUpdate},
		{"model", model.ActionModel, nil, "", NodeModelBuild},
		{"deck", model.ActionDeck, nil, "", NodeDeckGenerate},
		{"named scenario", model.ActionScenarios, nil, "run the downside case", NodeScenarioApply},
		{"bare scenario request", model.ActionScenarios, model.NewDealState("s1"), "scenarios please", NodeScenarioPrepare},
		{"answer to scenario question", model.ActionScenarios, waiting, "yes", NodeScenarioApply},
		{"chat", model.ActionChat, nil, "what is the clear height?", NodeChat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EntryNode(tt.target, tt.deal, tt.query, extractor))
		})
	}
}

func TestRouteTargets_CoverEntryNodes(t *testing.T) {
	targets := RouteTargets()
	for _, a := range model.Actions() {
		assert.True(t, targets[EntryNode(a, nil, "", underwriting.PatternExtractor{})], "entry for %s", a)
	}
	assert.True(t, targets[NodeScenarioApply])
}

func TestRouteCondition_DefaultsToChat(t *testing.T) {
	cond := NewRouteCondition()
	got, err := cond(context.Background(), &model.Turn{})
	require.NoError(t, err)
	assert.Equal(t, NodeChat, got)

	got, err = cond(context.Background(), &model.Turn{Entry: NodeModelBuild})
	require.NoError(t, err)
	assert.Equal(t, NodeModelBuild, got)
}

// ===== suspend =====

func TestSuspend(t *testing.T) {
	d := Suspend(model.StepAwaitCompsReview)
	require.NotNil(t, d.Status)
	assert.True(t, d.Status.IsSuspendedAt(model.StepAwaitCompsReview))
	require.Len(t, d.Messages, 1)
	assert.Equal(t, QuestionCompsReview, d.Messages[0].Text)

	d = Suspend(model.StepAwaitUser)
	assert.True(t, d.Status.IsSuspendedAt(model.StepAwaitUser))
	assert.Empty(t, d.Messages)
}

func TestQuestion_EverySuspendPointButAwaitUser(t *testing.T) {
	for _, step := range SuspendPoints() {
		if step == model.StepAwaitUser {
			assert.Empty(t, Question(step))
			continue
		}
		assert.NotEmpty(t, Question(step), "question for %s", step)
	}
}

// ===== ingest =====

func TestIngestPipeline(t *testing.T) {
	deps := testDeps()
	deps.Source = &fakeSource{
		name:   "deal.json",
		record: sampleRecord(),
		docs:   []model.Document{{Name: "im.txt", Text: "Prime logistics warehouse."}},
	}
	deps.Validator = fakeValidator{warnings: []string{"assets.0: currency is required"}}
	n := NewIngest(deps)
	ctx := context.Background()
	deal := model.NewDealState("s1")

	d, err := n.Start(ctx, input(deal, "start"))
	require.NoError(t, err)
	deal = model.Merge(deal, d)
	assert.Equal(t, model.ActionIngest, deal.CurrentStep)

	d, err = n.LoadStructured(ctx, input(deal, "start"))
	require.NoError(t, err)
	deal = model.Merge(deal, d)
	assert.Equal(t, "deal.json", deal.ExtractedData.SourceName)
	assert.Equal(t, []string{"assets.0: currency is required"}, deal.ExtractedData.Validation)
	assert.Contains(t, lastText(d), "1 validation warning")

	d, err = n.LoadDocuments(ctx, input(deal, "start"))
	require.NoError(t, err)
	deal = model.Merge(deal, d)
	require.Len(t, deal.ExtractedData.Documents, 1)
	assert.Equal(t, "deal.json", deal.ExtractedData.SourceName, "documents keep the structured record")

	d, err = n.Align(ctx, input(deal, "start"))
	require.NoError(t, err)
	deal = model.Merge(deal, d)
	assert.Contains(t, deal.ExtractedData.Narrative, "Logistics Park Nord is a logistics asset in Hamburg, Germany")
	assert.Contains(t, deal.ExtractedData.Narrative, "Let to Acme, Beta.")

	d, err = n.Summarize(ctx, input(deal, "start"))
	require.NoError(t, err)
	deal = model.Merge(deal, d)
	assert.Contains(t, deal.ExtractedData.Summary, "Total GLA: 50,000 m2")
	assert.Contains(t, deal.ExtractedData.Summary, "Occupancy: 80.0%")
	assert.Equal(t, 2, deal.ExtractedData.Metrics.Tenants)
	assert.True(t, deal.Has(model.FieldExtractedData))
}

func TestIngest_NothingFound(t *testing.T) {
	deps := testDeps()
	deps.Source = &fakeSource{err: errors.New("no structured record")}
	n := NewIngest(deps)
	ctx := context.Background()
	deal := model.NewDealState("s1")

	d, err := n.LoadStructured(ctx, input(deal, "start"))
	require.NoError(t, err)
	deal = model.Merge(deal, d)
	assert.Contains(t, lastText(d), "Structured data unavailable")

	d, err = n.Align(ctx, input(deal, "start"))
	require.NoError(t, err)
	assert.Contains(t, lastText(d), "couldn't find any deal data")
	assert.Nil(t, d.ExtractedData)

	d, err = n.Summarize(ctx, input(model.Merge(deal, d), "start"))
	require.NoError(t, err)
	assert.Empty(t, d.Messages)
}

// ===== comps =====

func TestCurateComps(t *testing.T) {
	current := testCatalog()[:3]

	updated, removed, added := CurateComps(current, testCatalog(), "Remove Comp B and add Comp D")
	assert.Equal(t, []string{"Comp B"}, removed)
	assert.Equal(t, []string{"Comp D"}, added)
	names := make([]string, 0, len(updated))
	for _, c := range updated {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Comp A", "Comp C", "Comp D"}, names)
}

func TestCurateComps_VerbCarriesAcrossClauses(t *testing.T) {
	updated, removed, added := CurateComps(testCatalog()[:3], testCatalog(), "please remove Comp A and Comp C")
	assert.Equal(t, []string{"Comp A", "Comp C"}, removed)
	assert.Empty(t, added)
	require.Len(t, updated, 1)
	assert.Equal(t, "Comp B", updated[0].Name)
}

func TestCurateComps_AddExistingIsNoop(t *testing.T) {
	updated, removed, added := CurateComps(testCatalog()[:3], testCatalog(), "add Comp A")
	assert.Empty(t, removed)
	assert.Empty(t, added)
	assert.Len(t, updated, 3)
}

func TestComps_Propose(t *testing.T) {
	deps := testDeps()
	retriever := &fakeComps{proposed: testCatalog()[:2], catalog: testCatalog()}
	deps.Comps = retriever

	d, err := NewComps(deps).Propose(context.Background(), input(ingestedDeal(), "show comps"))
	require.NoError(t, err)

	assert.Equal(t, "Logistics", retriever.query.AssetType)
	assert.Equal(t, "Hamburg, Germany", retriever.query.Location)
	assert.Equal(t, 3, retriever.query.Limit)
	require.NotNil(t, d.Comps)
	assert.Len(t, *d.Comps, 2)
	assert.Contains(t, lastText(d), "I've identified 4 internal comparable logistics assets")
	assert.Contains(t, lastText(d), "Recommended set (2)")
	assert.Contains(t, lastText(d), "blended market rent")
}

func TestComps_ProposeWithoutData(t *testing.T) {
	d, err := NewComps(testDeps()).Propose(context.Background(), input(model.NewDealState("s1"), "comps"))
	require.NoError(t, err)
	assert.Nil(t, d.Comps)
	assert.Contains(t, lastText(d), "need ingested deal data")
}

func TestComps_ProposeRetrieverError(t *testing.T) {
	deps := testDeps()
	deps.Comps = &fakeComps{err: errors.New("search failed")}

	d, err := NewComps(deps).Propose(context.Background(), input(ingestedDeal(), "comps"))
	require.NoError(t, err)
	assert.Nil(t, d.Comps)
	assert.Contains(t, lastText(d), "couldn't retrieve comparables")
}

func TestComps_Update(t *testing.T) {
	deal := ingestedDeal()
	deal.Comps = testCatalog()[:3]
	n := NewComps(testDeps())

	d, err := n.Update(context.Background(), input(deal, "remove comp b"))
	require.NoError(t, err)
	require.NotNil(t, d.Comps)
	assert.Len(t, *d.Comps, 2)
	assert.Contains(t, lastText(d), "Removing Comp B")

	d, err = n.Update(context.Background(), input(deal, "looks different"))
	require.NoError(t, err)
	assert.Nil(t, d.Comps)
	assert.Contains(t, lastText(d), "couldn't identify")
}

// ===== assumptions =====

func TestProposeAssumptions(t *testing.T) {
	deal := ingestedDeal()
	deal.Comps = testCatalog()[:3]

	a := ProposeAssumptions(deal)
	rent, ok := underwriting.BlendedRent(deal.Comps)
	require.True(t, ok)
	assert.Equal(t, rent, a[underwriting.KeyERV])
	assert.Equal(t, 50000.0, a[underwriting.KeyArea])
	assert.Equal(t, underwriting.DefaultExitYield, a[underwriting.KeyExitYield])
}

func TestAssumptions_ProposeWithoutWriter(t *testing.T) {
	deal := ingestedDeal()
	deal.Comps = testCatalog()[:3]

	d, err := NewAssumptions(testDeps()).Propose(context.Background(), input(deal, "assumptions"))
	require.NoError(t, err)
	assert.NotEmpty(t, d.Assumptions)
	assert.Contains(t, lastText(d), "proposed underwriting assumptions")
	assert.Contains(t, lastText(d), "Single-tenant risk: No")
}

func TestAssumptions_Update(t *testing.T) {
	deal := modelledDeal()
	n := NewAssumptions(testDeps())

	in := input(deal, "exit yield 5%")
	d, err := n.Update(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, d.Assumptions)
	assert.False(t, in.Scratch.AssumptionsUnchanged)
	assert.InDelta(t, 0.05, underwriting.Normalize(d.Assumptions[underwriting.KeyExitYield]), 1e-9)
	assert.Contains(t, lastText(d), "exit_yield")
	assert.Equal(t, underwriting.DefaultExitYield, deal.Assumptions[underwriting.KeyExitYield], "input state untouched")

	in = input(deal, "hmm")
	d, err = n.Update(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, d.Assumptions)
	assert.True(t, in.Scratch.AssumptionsUnchanged, "a no-op update goes back to review")
}

func TestAssumptionsUpdateTargets(t *testing.T) {
	targets := AssumptionsUpdateTargets()
	assert.True(t, targets[NodeAwaitModelConfirmation])
	assert.True(t, targets[NodeAwaitAssumptionsReview])
	assert.Len(t, targets, 2)
}

func TestFormatAssumption(t *testing.T) {
	assert.Equal(t, "4.50%", FormatAssumption(underwriting.KeyEntryYield, 0.045))
	assert.Equal(t, "4.50%", FormatAssumption(underwriting.KeyEntryYield, 4.5))
	assert.Equal(t, "EUR 85.00/m2", FormatAssumption(underwriting.KeyERV, 85))
	assert.Equal(t, "9 months", FormatAssumption(underwriting.KeyDowntimeMonths, 9))
	assert.Equal(t, "50,000 m2", FormatAssumption(underwriting.KeyArea, 50000))
}

// ===== model =====

func TestBuildModel_Publishes(t *testing.T) {
	deps := testDeps()
	deps.Publisher = &fakePublisher{url: "https://files.example/model.xlsx"}
	deal := modelledDeal()
	deal.FinancialModel = nil

	d, err := NewBuildModel(deps).Build(context.Background(), input(deal, "build the model"))
	require.NoError(t, err)
	require.NotNil(t, d.FinancialModel)
	assert.Equal(t, model.ModelStatusBuilt, d.FinancialModel.Status)
	require.NotNil(t, d.FinancialModel.Workbook)
	assert.True(t, d.FinancialModel.IRR.Available)
	assert.Contains(t, lastText(d), "Key Returns:")
	assert.Contains(t, lastText(d), "[Download Financial Model (Excel)](https://files.example/model.xlsx)")
}

func TestBuildModel_PublisherFailureDegrades(t *testing.T) {
	deps := testDeps()
	deps.Publisher = &fakePublisher{err: errors.New("disk full")}

	d, err := NewBuildModel(deps).Build(context.Background(), input(modelledDeal(), "build"))
	require.NoError(t, err)
	assert.Equal(t, model.ModelStatusDegraded, d.FinancialModel.Status)
	assert.Nil(t, d.FinancialModel.Workbook)
	assert.Contains(t, lastText(d), "could not be generated: disk full")
}

func TestArtifactLine_LocalOnly(t *testing.T) {
	line := artifactLine("IC Deck v1", "IC Deck", model.Artifact{LocalPath: "/out/deck.md"})
	assert.Contains(t, line, "generated locally at /out/deck.md, but upload failed")
}

// ===== scenarios =====

func TestScenarios_ApplyAndRebuild(t *testing.T) {
	deal := modelledDeal()
	n := NewScenarios(testDeps())
	ctx := context.Background()
	in := input(deal, "run the downside case")

	d, err := n.Apply(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, in.Scratch.Scenario)
	assert.Equal(t, underwriting.ArchetypeDownside, in.Scratch.Scenario.Archetype)
	assert.Contains(t, lastText(d), "Applying scenario: Downside Case")

	d, err = n.Rebuild(ctx, in)
	require.NoError(t, err)
	require.Len(t, d.Scenarios, 1)
	assert.Equal(t, "Downside Case", d.Scenarios[0].Label)
	assert.True(t, d.Scenarios[0].Comparison.IRRDeltaBps.Available)
	assert.Less(t, d.Scenarios[0].Comparison.IRRDeltaBps.Value, 0.0)
	assert.Nil(t, d.FinancialModel, "base case is never replaced")
	assert.Contains(t, lastText(d), "Model rebuilt for Downside Case")

	deal = model.Merge(deal, d)
	d, err = n.Rebuild(ctx, StepInput{Deal: deal, Turn: in.Turn, Scratch: in.Scratch})
	require.NoError(t, err)
	assert.Contains(t, lastText(d), "Model rebuilt for Downside Case #2")
}

func TestScenarios_RebuildWithoutModel(t *testing.T) {
	d, err := NewScenarios(testDeps()).Rebuild(context.Background(), input(ingestedDeal(), "downside"))
	require.NoError(t, err)
	assert.Empty(t, d.Scenarios)
	assert.Contains(t, lastText(d), "has not been built yet")
}

func TestScenarios_Prepare(t *testing.T) {
	d, err := NewScenarios(testDeps()).Prepare(context.Background(), input(modelledDeal(), "scenarios"))
	require.NoError(t, err)
	text := lastText(d)
	assert.Contains(t, text, "Base case: Levered IRR")
	assert.Contains(t, text, "Downside Case: ERV -5.0%, Exit Yield +25bps")
	assert.Contains(t, text, "Stress Test: ERV -10.0%, Exit Yield +50bps")
}

func TestScenarioImpact_UnavailableIRR(t *testing.T) {
	text := ScenarioImpact("Stress Test", underwriting.Comparison{Band: underwriting.BandBelowHurdle})
	assert.Contains(t, text, "IRR change: n/a")
	assert.Contains(t, text, underwriting.BandBelowHurdle.Describe())
}

// ===== deck =====

func TestBuildSlides(t *testing.T) {
	slides := BuildSlides(modelledDeal())
	titles := make([]string, 0, len(slides))
	for _, s := range slides {
		titles = append(titles, s.Title)
		assert.NotEmpty(t, s.Bullets, s.Title)
	}
	assert.Equal(t, []string{"Summary", "Market", "Tenancy", "Business Plan", "Sensitivities", "Appendix"}, titles)
}

func TestBuildSlides_EmptyDeal(t *testing.T) {
	slides := BuildSlides(model.NewDealState("s1"))
	assert.Equal(t, []string{"No analysis available."}, slides[0].Bullets)
	assert.Equal(t, []string{"Model not yet built."}, slides[4].Bullets)
}

func TestDeck_VersionIncrements(t *testing.T) {
	deal := modelledDeal()
	n := NewDeck(testDeps())

	d, err := n.Generate(context.Background(), input(deal, "deck"))
	require.NoError(t, err)
	require.NotNil(t, d.Deck)
	assert.Equal(t, 1, d.Deck.Version)
	assert.Nil(t, d.Deck.Artifact)

	deal = model.Merge(deal, d)
	d, err = n.Generate(context.Background(), input(deal, "deck again"))
	require.NoError(t, err)
	assert.Equal(t, 2, d.Deck.Version)
	assert.Contains(t, d.Messages[0].Text, "IC_Deck_v2.md")
}

// ===== chat =====

func TestChat_Deterministic(t *testing.T) {
	d, err := Chat(context.Background(), input(model.NewDealState("s1"), "hello"))
	require.NoError(t, err)
	assert.Contains(t, lastText(d), "No deal data ingested yet.")
	assert.Contains(t, lastText(d), "start the underwriting")
}

func TestChat_QuotesDocuments(t *testing.T) {
	d, err := Chat(context.Background(), input(ingestedDeal(), "clear height"))
	require.NoError(t, err)
	assert.Contains(t, lastText(d), "From im.txt:")
	assert.Contains(t, lastText(d), "Asset: Logistics Park Nord (Logistics), Hamburg, Germany")
	assert.Contains(t, lastText(d), "Ask for comparables")
}

func TestNextStepHint(t *testing.T) {
	assert.Contains(t, NextStepHint(model.NewDealState("s1")), "start the underwriting")

	deal := ingestedDeal()
	assert.Contains(t, NextStepHint(deal), "comparables")
	deal.Comps = testCatalog()[:1]
	assert.Contains(t, NextStepHint(deal), "assumptions")
	deal.Assumptions = underwriting.DefaultAssumptions()
	assert.Contains(t, NextStepHint(deal), "financial model")
	deal = modelledDeal()
	assert.Contains(t, NextStepHint(deal), "IC deck")
	deal.Deck = &model.DeckContent{Version: 1}
	assert.Contains(t, NextStepHint(deal), "another scenario")
}

func TestChatModelPreHandler_FillsToolCallIDAndWrapsUp(t *testing.T) {
	state := &model.AppState{
		SessionID: "s1",
		History: []*schema.Message{
			schema.UserMessage("what is the irr?"),
			{Role: schema.Assistant, ToolCalls: []schema.ToolCall{{ID: "call_1", Function: schema.FunctionCall{Name: "get_deal_metrics"}}}},
		},
		ToolCallCount: 2,
	}
	toolMsg := &schema.Message{Role: schema.Tool, Content: `{"irr":"9.8%"}`}

	out, err := NewChatModelPreHandler(2)(context.Background(), []*schema.Message{toolMsg}, state)
	require.NoError(t, err)

	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.True(t, state.ToolCallLimitReached)
	last := out[len(out)-1]
	assert.Equal(t, schema.System, last.Role)
	assert.Contains(t, last.Content, "maximum tool call limit (2)")
	assert.Equal(t, []string{NodeChatModel}, state.Trace)
}

func TestChatModelPostHandler_AssignsIDs(t *testing.T) {
	state := &model.AppState{}
	out := &schema.Message{Role: schema.Assistant, ToolCalls: []schema.ToolCall{
		{Function: schema.FunctionCall{Name: "search_documents"}},
		{ID: "given", Function: schema.FunctionCall{Name: "get_deal_metrics"}},
	}}

	got, err := NewChatModelPostHandler("gemini-2.5-flash")(context.Background(), out, state)
	require.NoError(t, err)
	assert.Equal(t, "call_1", got.ToolCalls[0].ID)
	assert.Equal(t, "given", got.ToolCalls[1].ID)
	assert.Len(t, state.History, 1)

	_, err = NewChatModelPostHandler("gemini-2.5-flash")(context.Background(), nil, state)
	assert.Error(t, err)
}

func TestToolExecutorCondition(t *testing.T) {
	cond := NewToolExecutorCondition()

	got, err := cond(context.Background(), &schema.Message{ToolCalls: []schema.ToolCall{{ID: "call_1"}}})
	require.NoError(t, err)
	assert.Equal(t, NodeChatTools, got)

	got, err = cond(context.Background(), schema.AssistantMessage("done", nil))
	require.NoError(t, err)
	assert.Equal(t, NodeChatReply, got)
}

func TestToolExecutorPreHandler_CountsRounds(t *testing.T) {
	state := &model.AppState{}
	pre := NewToolExecutorPreHandler(1)

	_, err := pre(context.Background(), &schema.Message{}, state)
	require.NoError(t, err)
	assert.False(t, state.ToolCallLimitReached)

	_, err = pre(context.Background(), &schema.Message{}, state)
	require.NoError(t, err)
	assert.True(t, state.ToolCallLimitReached)
	assert.Equal(t, 2, state.ToolCallCount)
}
