package nodes

import "github.com/deal-associate/server/internal/agent/model"

// Node names. Suspend points reuse the model.Step values.
const (
	NodeLoadSession    = "load_session"
	NodeClassifyIntent = "classify_intent"
	NodeResolveRoute   = "resolve_route"
	NodePersist        = "persist"

	NodeIngestStart          = "ingest_start"
	NodeIngestLoadStructured = "ingest_load_structured"
	NodeIngestLoadDocuments  = "ingest_load_documents"
	NodeIngestAlign          = "ingest_align"
	NodeIngestSummarize      = "ingest_summarize"

	NodeCompsPropose = "comps_propose"
	NodeCompsUpdate  = "comps_update"

	NodeAssumptionsPropose = "assumptions_propose"
	NodeAssumptionsUpdate  = "assumptions_update"

	NodeModelBuild   = "model_build"
	NodeDeckGenerate = "deck_generate"

	NodeScenarioPrepare      = "scenario_prepare"
	NodeScenarioApply        = "scenario_apply"
	NodeScenarioRebuild      = "scenario_rebuild"
	NodeScenarioRefreshViews = "scenario_refresh_views"

	NodeChat      = "chat"
	NodeChatModel = "chat_model"
	NodeChatTools = "chat_tools"
	NodeChatReply = "chat_reply"

	NodeAwaitCompsReview       = string(model.StepAwaitCompsReview)
	NodeAwaitCompsConfirmation = string(model.StepAwaitCompsConfirmation)
	NodeAwaitAssumptionsReview = string(model.StepAwaitAssumptionsReview)
	NodeAwaitModelConfirmation = string(model.StepAwaitModelConfirmation)
	NodeAwaitDeckConfirmation  = string(model.StepAwaitDeckConfirmation)
	NodeAwaitScenarioOffer     = string(model.StepAwaitScenarioOffer)
	NodeAwaitScenarioRequest   = string(model.StepAwaitScenarioRequest)
	NodeAwaitMoreScenarios     = string(model.StepAwaitMoreScenarios)
	NodeAwaitUser              = string(model.StepAwaitUser)
)

// SuspendPoints lists every await node.
func SuspendPoints() []model.Step {
	return []model.Step{
		model.StepAwaitCompsReview,
		model.StepAwaitCompsConfirmation,
		model.StepAwaitAssumptionsReview,
		model.StepAwaitModelConfirmation,
		model.StepAwaitDeckConfirmation,
		model.StepAwaitScenarioOffer,
		model.StepAwaitScenarioRequest,
		model.StepAwaitMoreScenarios,
		model.StepAwaitUser,
	}
}
