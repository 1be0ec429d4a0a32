package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	"github.com/deal-associate/server/internal/agent/graph/conversations"
	"github.com/deal-associate/server/internal/agent/graph/nodes"
	"github.com/deal-associate/server/internal/agent/graph/observers"
	"github.com/deal-associate/server/internal/agent/graph/tools"
	"github.com/deal-associate/server/internal/agent/intent"
	"github.com/deal-associate/server/internal/agent/model"
	errx "github.com/deal-associate/server/internal/core/error"
	"github.com/deal-associate/server/internal/metrics"
	"github.com/deal-associate/server/internal/underwriting"
	logx "github.com/deal-associate/server/pkg/logger"
)

// Config holds everything needed to compose the deal agent end-to-end.
// This is a convenience layer over GraphConfig that also constructs the chat
// models and the intent classifier. Without an API key the agent runs fully
// deterministic: keyword classifier, template narratives, no LLM chat.
type Config struct {
	APIKey        string
	BaseURL       string
	IntentModel   model.IntentModelConfig
	ResponseModel model.ResponseModelConfig
	Conversation  model.ConversationConfig
	Underwriting  model.UnderwritingConfig

	Repo      model.DealRepository
	Source    model.DocumentSource
	Validator model.RecordValidator
	Comps     model.CompsRetriever
	Publisher model.Publisher
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	Deps *nodes.Deps

	// ResponseModel answers free-form questions with the chat tools bound.
	// Nil selects the deterministic chat reply.
	ResponseModel     einomodel.ChatModel
	ResponseModelName string

	MessagesManager *conversations.MessagesManager
	ToolMaxCalls    int
}

// GraphBuilder handles the construction of the deal workflow graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.TurnInput, *model.TurnResult]
}

// BuildAgent composes ChatModels, the classifier and the graph, and returns a Runner.
func BuildAgent(ctx context.Context, cfg Config) (*Runner, error) {
	var cms *nodes.ChatModels
	if cfg.APIKey != "" {
		var err error
		cms, err = nodes.NewChatModels(ctx, nodes.ChatModelConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			IntentConf: &cfg.IntentModel,
			RespConf:   &cfg.ResponseModel,
		})
		if err != nil {
			return nil, err
		}
	} else {
		logx.Warn().Msg("GEMINI_API_KEY not set; running without language models")
	}

	var intentModel einomodel.BaseChatModel
	if cms != nil {
		intentModel = cms.Intent
	}
	classifier, err := intent.New(intent.Config{Model: cfg.IntentModel, Conversation: cfg.Conversation}, intentModel)
	if err != nil {
		return nil, errx.Config(err)
	}

	deps := &nodes.Deps{
		Repo:         cfg.Repo,
		Classifier:   classifier,
		Source:       cfg.Source,
		Validator:    cfg.Validator,
		Comps:        cfg.Comps,
		Publisher:    cfg.Publisher,
		Extractor:    underwriting.PatternExtractor{},
		Resolve:      Resolve,
		Underwriting: cfg.Underwriting,
	}
	gc := &GraphConfig{
		Deps:            deps,
		MessagesManager: conversations.NewMessagesManager(cfg.Conversation),
		ToolMaxCalls:    cfg.Conversation.Tools.MaxCalls,
	}
	if cms != nil {
		deps.Writer = cms.Writer
		deps.WriterModel = cms.ResponseModelName
		gc.ResponseModel = cms.Response
		gc.ResponseModelName = cms.ResponseModelName
	}

	runner, err := NewRunner(ctx, gc)
	if err != nil {
		return nil, err
	}
	logx.Info().
		Str("classifier", intent.Name(classifier)).
		Bool("llm_chat", gc.ResponseModel != nil).
		Msg("Deal agent built successfully")
	return runner, nil
}

// BuildGraph constructs and returns the compiled workflow graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.TurnInput, *model.TurnResult], error) {
	if config == nil {
		return nil, errx.Config(fmt.Errorf("graph config is nil"))
	}
	if config.Deps == nil {
		return nil, errx.Config(fmt.Errorf("graph dependencies are nil"))
	}
	if config.Deps.Resolve == nil {
		config.Deps.Resolve = Resolve
	}
	if err := config.Deps.Validate(); err != nil {
		return nil, err
	}
	if config.MessagesManager == nil {
		config.MessagesManager = conversations.NewMessagesManager(model.ConversationConfig{})
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.TurnInput, *model.TurnResult](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.addNodes(ctx); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

func (b *GraphBuilder) addNode(name string, l *compose.Lambda, opts ...compose.GraphAddNodeOpt) error {
	if err := b.graph.AddLambdaNode(name, l, opts...); err != nil {
		return fmt.Errorf("add node %s: %w", name, err)
	}
	return nil
}

// addNodes adds the session, pipeline, suspend and chat nodes
func (b *GraphBuilder) addNodes(ctx context.Context) error {
	deps := b.config.Deps
	ingest := nodes.NewIngest(deps)
	comps := nodes.NewComps(deps)
	assumptions := nodes.NewAssumptions(deps)
	build := nodes.NewBuildModel(deps)
	deck := nodes.NewDeck(deps)
	scenarios := nodes.NewScenarios(deps)

	lambdas := []struct {
		name string
		node *compose.Lambda
	}{
		{nodes.NodeLoadSession, nodes.NewLoadSessionNode(deps.Repo)},
		{nodes.NodeClassifyIntent, nodes.NewClassifyIntentNode(deps.Classifier)},
		{nodes.NodeResolveRoute, nodes.NewResolveRouteNode(deps.Resolve, deps.Extractor)},
		{nodes.NodePersist, nodes.NewPersistNode(deps.Repo)},

		{nodes.NodeIngestStart, nodes.NewStep(nodes.NodeIngestStart, ingest.Start)},
		{nodes.NodeIngestLoadStructured, nodes.NewStep(nodes.NodeIngestLoadStructured, ingest.LoadStructured)},
		{nodes.NodeIngestLoadDocuments, nodes.NewStep(nodes.NodeIngestLoadDocuments, ingest.LoadDocuments)},
		{nodes.NodeIngestAlign, nodes.NewStep(nodes.NodeIngestAlign, ingest.Align)},
		{nodes.NodeIngestSummarize, nodes.NewStep(nodes.NodeIngestSummarize, ingest.Summarize)},

		{nodes.NodeCompsPropose, nodes.NewStep(nodes.NodeCompsPropose, comps.Propose)},
		{nodes.NodeCompsUpdate, nodes.NewStep(nodes.NodeCompsUpdate, comps.Update)},
		{nodes.NodeAssumptionsPropose, nodes.NewStep(nodes.NodeAssumptionsPropose, assumptions.Propose)},
		{nodes.NodeAssumptionsUpdate, nodes.NewStep(nodes.NodeAssumptionsUpdate, assumptions.Update)},
		{nodes.NodeModelBuild, nodes.NewStep(nodes.NodeModelBuild, build.Build)},
		{nodes.NodeDeckGenerate, nodes.NewStep(nodes.NodeDeckGenerate, deck.Generate)},

		{nodes.NodeScenarioPrepare, nodes.NewStep(nodes.NodeScenarioPrepare, scenarios.Prepare)},
		{nodes.NodeScenarioApply, nodes.NewStep(nodes.NodeScenarioApply, scenarios.Apply)},
		{nodes.NodeScenarioRebuild, nodes.NewStep(nodes.NodeScenarioRebuild, scenarios.Rebuild)},
		{nodes.NodeScenarioRefreshViews, nodes.NewStep(nodes.NodeScenarioRefreshViews, scenarios.RefreshViews)},
	}
	for _, l := range lambdas {
		if err := b.addNode(l.name, l.node); err != nil {
			return err
		}
	}

	for _, step := range nodes.SuspendPoints() {
		if err := b.addNode(string(step), nodes.NewSuspendNode(step)); err != nil {
			return err
		}
	}

	if b.config.ResponseModel == nil {
		return b.addNode(nodes.NodeChat, nodes.NewStep(nodes.NodeChat, nodes.Chat))
	}
	return b.addChatLoop(ctx)
}

// addChatLoop wires the tool-calling chat: chat -> chat_model <-> chat_tools,
// chat_model -> chat_reply.
func (b *GraphBuilder) addChatLoop(ctx context.Context) error {
	chatTools := tools.GetChatTools()
	toolInfos, err := tools.GetToolInfos(ctx, chatTools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to get tool infos")
		return fmt.Errorf("failed to get tool infos: %w", err)
	}
	if err := b.config.ResponseModel.BindTools(toolInfos); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools to response model")
		return fmt.Errorf("failed to bind tools to response model: %w", err)
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               chatTools,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			// Gracefully handle hallucinated or malformed tool calls (e.g., empty name)
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning fallback result")
			return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name), nil
		},
		ToolArgumentsHandler: func(ctx context.Context, name, arguments string) (string, error) {
			return SanitizeToolArguments(name, arguments), nil
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	maxCalls := b.config.ToolMaxCalls
	if err := b.addNode(nodes.NodeChat, nodes.NewChatInputNode(b.config.MessagesManager)); err != nil {
		return err
	}
	chatModel := nodes.WithChatFallback(b.config.ResponseModel, b.config.ResponseModelName)
	if err := b.graph.AddChatModelNode(nodes.NodeChatModel, chatModel,
		compose.WithStatePreHandler(nodes.NewChatModelPreHandler(maxCalls)),
		compose.WithStatePostHandler(nodes.NewChatModelPostHandler(b.config.ResponseModelName)),
	); err != nil {
		return fmt.Errorf("add node %s: %w", nodes.NodeChatModel, err)
	}
	if err := b.graph.AddToolsNode(nodes.NodeChatTools, toolsNode,
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler(maxCalls)),
	); err != nil {
		return fmt.Errorf("add node %s: %w", nodes.NodeChatTools, err)
	}
	return b.addNode(nodes.NodeChatReply, nodes.NewChatReplyNode())
}

// SanitizeToolArguments normalises model-produced tool arguments. It is
// best-effort and returns arguments unchanged when they are not JSON.
func SanitizeToolArguments(name, arguments string) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil {
		return arguments
	}

	switch name {
	case tools.ToolSearchDealDocuments:
		// query: string (required)
		if v, ok := m["query"]; ok {
			switch vv := v.(type) {
			case string:
				m["query"] = strings.TrimSpace(vv)
			default:
				m["query"] = strings.TrimSpace(fmt.Sprint(v))
			}
		}
		// max_results: number (optional, default 5, max 10)
		if v, ok := m["max_results"]; ok {
			switch vv := v.(type) {
			case float64:
				m["max_results"] = clampInt(int(vv), 1, 10)
			case string:
				if n, err := strconv.Atoi(strings.TrimSpace(vv)); err == nil {
					m["max_results"] = clampInt(n, 1, 10)
				} else {
					delete(m, "max_results")
				}
			default:
				delete(m, "max_results")
			}
		}
	case tools.ToolGetDealMetrics:
		// include_scenarios: bool (optional)
		if v, ok := m["include_scenarios"]; ok {
			switch vv := v.(type) {
			case bool:
			case string:
				if bv, err := strconv.ParseBool(strings.TrimSpace(vv)); err == nil {
					m["include_scenarios"] = bv
				} else {
					delete(m, "include_scenarios")
				}
			default:
				delete(m, "include_scenarios")
			}
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return arguments
	}
	return string(out)
}

// pipelines lists the fixed edges of every workflow pipeline, ending at its
// suspend point.
func pipelines() [][]string {
	return [][]string{
		{
			nodes.NodeIngestStart, nodes.NodeIngestLoadStructured, nodes.NodeIngestLoadDocuments,
			nodes.NodeIngestAlign, nodes.NodeIngestSummarize, nodes.NodeCompsPropose, nodes.NodeAwaitCompsReview,
		},
		{nodes.NodeCompsUpdate, nodes.NodeAwaitCompsConfirmation},
		{nodes.NodeAssumptionsPropose, nodes.NodeAwaitAssumptionsReview},
		{nodes.NodeModelBuild, nodes.NodeAwaitDeckConfirmation},
		{nodes.NodeDeckGenerate, nodes.NodeAwaitScenarioOffer},
		{nodes.NodeScenarioPrepare, nodes.NodeAwaitScenarioRequest},
		{
			nodes.NodeScenarioApply, nodes.NodeScenarioRebuild, nodes.NodeScenarioRefreshViews,
			nodes.NodeAwaitMoreScenarios,
		},
	}
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeLoadSession},
		{nodes.NodeLoadSession, nodes.NodeClassifyIntent},
		{nodes.NodeClassifyIntent, nodes.NodeResolveRoute},
		{nodes.NodePersist, compose.END},
	}
	for _, p := range pipelines() {
		for i := 0; i+1 < len(p); i++ {
			edges = append(edges, [2]string{p[i], p[i+1]})
		}
	}
	for _, step := range nodes.SuspendPoints() {
		edges = append(edges, [2]string{string(step), nodes.NodePersist})
	}
	if b.config.ResponseModel == nil {
		edges = append(edges, [2]string{nodes.NodeChat, nodes.NodeAwaitUser})
	} else {
		edges = append(edges,
			[2]string{nodes.NodeChat, nodes.NodeChatModel},
			[2]string{nodes.NodeChatTools, nodes.NodeChatModel},
			[2]string{nodes.NodeChatReply, nodes.NodeAwaitUser},
		)
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("add edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	routeBranch := compose.NewGraphBranch(nodes.NewRouteCondition(), nodes.RouteTargets())
	if err := b.graph.AddBranch(nodes.NodeResolveRoute, routeBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding route branch")
		return fmt.Errorf("error adding route branch: %w", err)
	}

	updateBranch := compose.NewGraphBranch(nodes.NewAssumptionsUpdateCondition(), nodes.AssumptionsUpdateTargets())
	if err := b.graph.AddBranch(nodes.NodeAssumptionsUpdate, updateBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding assumptions update branch")
		return fmt.Errorf("error adding assumptions update branch: %w", err)
	}

	if b.config.ResponseModel == nil {
		return nil
	}
	decisionBranch := compose.NewGraphBranch(
		nodes.NewToolExecutorCondition(),
		map[string]bool{
			nodes.NodeChatTools: true,
			nodes.NodeChatReply: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeChatModel, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return fmt.Errorf("error adding decision branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.TurnInput, *model.TurnResult], error) {
	// Limit total run steps to avoid infinite loops in the tool loop
	maxSteps := 14 + toolBudget(b.config.ToolMaxCalls)*2
	if maxSteps < 30 {
		maxSteps = 30
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, errx.Config(fmt.Errorf("error compiling graph: %w", err))
	}

	logx.Debug().Int("max_steps", maxSteps).Msg("Graph compiled successfully")
	return runnable, nil
}

func toolBudget(n int) int {
	if n <= 0 {
		return nodes.DefaultMaxToolCalls
	}
	return n
}

// clampInt returns v limited to [min, max].
func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Runner executes one turn at a time per session against the compiled graph.
type Runner struct {
	runnable compose.Runnable[model.TurnInput, *model.TurnResult]
	repo     model.DealRepository
	busy     sync.Map
}

// NewRunner builds the graph and wraps it.
func NewRunner(ctx context.Context, config *GraphConfig) (*Runner, error) {
	runnable, err := BuildGraph(ctx, config)
	if err != nil {
		return nil, err
	}
	return &Runner{runnable: runnable, repo: config.Deps.Repo}, nil
}

// HandleTurn runs the graph for one user message. A second turn for a session
// while one is in flight fails with errx.ErrSessionBusy.
func (r *Runner) HandleTurn(ctx context.Context, sessionID, text string) (*model.TurnResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errx.New(errors.New("empty session id"), http.StatusBadRequest, "session_id is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errx.New(errors.New("empty message"), http.StatusBadRequest, "message is required")
	}

	if _, loaded := r.busy.LoadOrStore(sessionID, struct{}{}); loaded {
		metrics.TurnsFailed.WithLabelValues("busy").Inc()
		return nil, errx.ErrSessionBusy
	}
	defer r.busy.Delete(sessionID)

	metrics.ActiveTurns.Inc()
	defer metrics.ActiveTurns.Dec()

	log := logx.Session(sessionID)
	start := time.Now()
	tracker := &model.CostTracker{}
	ctx = model.WithCostTracker(ctx, tracker)

	out, err := r.runnable.Invoke(ctx, model.TurnInput{SessionID: sessionID, Query: text},
		compose.WithCallbacks(observers.NewAllCallbacks()...))
	if err != nil {
		reason := "graph"
		if errors.Is(err, errx.ErrResolveCycle) {
			reason = "resolve"
		}
		metrics.TurnsFailed.WithLabelValues(reason).Inc()
		log.Error().Err(err).Msg("Turn failed")
		return nil, err
	}
	if out == nil {
		metrics.TurnsFailed.WithLabelValues("empty").Inc()
		return nil, fmt.Errorf("turn produced no result")
	}

	metrics.TurnsTotal.WithLabelValues(out.Intent.String(), out.Target.String()).Inc()
	metrics.TurnDuration.WithLabelValues(out.Target.String()).Observe(time.Since(start).Seconds())
	log.Info().
		Str("intent", out.Intent.String()).
		Str("target", out.Target.String()).
		Str("status", string(out.Status.At)).
		Float64("cost_usd", out.CostUSD).
		Dur("took", time.Since(start)).
		Msg("Turn completed")
	return out, nil
}

// Session returns the stored state of a session.
func (r *Runner) Session(ctx context.Context, sessionID string) (*model.DealState, error) {
	return r.repo.Load(ctx, sessionID)
}

// Reset deletes a session. It refuses while a turn is running.
func (r *Runner) Reset(ctx context.Context, sessionID string) error {
	if _, loaded := r.busy.LoadOrStore(sessionID, struct{}{}); loaded {
		return errx.ErrSessionBusy
	}
	defer r.busy.Delete(sessionID)
	return r.repo.Delete(ctx, sessionID)
}
