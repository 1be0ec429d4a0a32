package intent

import (
	"context"
	"regexp"
	"strings"

	"github.com/deal-associate/server/internal/agent/model"
	"github.com/deal-associate/server/internal/underwriting"
)

// KeywordClassifier is a deterministic rule-based classifier. It also reads
// the last assistant question so that a bare "yes" confirms what was asked.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

type keywordRule struct {
	action  model.Action
	pattern *regexp.Regexp
}

var (
	refusal     = regexp.MustCompile(`(?i)^\s*(no|nope|no thanks|not now|stop|i'?m done|done|that'?s all|analysis (is )?complete)\b`)
	affirmation = regexp.MustCompile(`(?i)^\s*(yes|yep|yeah|sure|ok(ay)?|go ahead|proceed|please do|looks good|sounds good|next|continue|confirm(ed)?|no changes|no need)\b`)

	// order matters: the first match wins
	keywordRules = []keywordRule{
		{model.ActionUpdateComps, regexp.MustCompile(`(?i)\b(remove|drop|exclude|add|include)\b.*\bcomps?\b|\bcomps?\s+[a-z]\b.*\b(remove|add)\b`)},
		{model.ActionScenarios, regexp.MustCompile(`(?i)\b(scenario|downside|upside|stress|sensitivit(y|ies)|what if)\b`)},
		{model.ActionUpdateAssumptions, regexp.MustCompile(`(?i)\b(change|update|set|increase|decrease|reduce|raise|lower|move|make)\b.*\b(growth|yield|erv|rent|ltv|interest|opex|capex|discount|downtime|renewal|area|cap rate|cost of debt)\b`)},
		{model.ActionDeck, regexp.MustCompile(`(?i)\b(deck|presentation|slides?|memo|ic pack)\b`)},
		{model.ActionModel, regexp.MustCompile(`(?i)\b(build|run|rebuild|calculate|compute)\b.*\b(model|irr|returns?|valuation)\b|\bfinancial model\b`)},
		{model.ActionAssumptions, regexp.MustCompile(`(?i)\bassumptions?\b`)},
		{model.ActionComps, regexp.MustCompile(`(?i)\b(comps|comparables?|comparable evidence)\b`)},
		{model.ActionIngest, regexp.MustCompile(`(?i)\b(start|begin|kick off)\b.*\b(underwriting|deal|analysis)\b|\b(ingest|upload|load)\b.*\b(documents?|files?|data)\b`)},
	}

	scenarioPrompt = regexp.MustCompile(`(?i)(run any scenarios|another scenario|specify a scenario)`)

	// what a confirmation answers, keyed on the assistant's last question
	confirmationRules = []keywordRule{
		{model.ActionScenarios, scenarioPrompt},
		{model.ActionDeck, regexp.MustCompile(`(?i)(generate the presentation|presentation deck\?)`)},
		{model.ActionModel, regexp.MustCompile(`(?i)(build the (financial )?model|review and confirm)`)},
		{model.ActionAssumptions, regexp.MustCompile(`(?i)(proceed to (the )?(financial )?assumptions|remove any comps|add others)`)},
	}
)

func (k *KeywordClassifier) Classify(_ context.Context, transcript []model.Message) (model.Action, error) {
	text, question := lastExchange(transcript)
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ActionChat, nil
	}

	// "-5% rent" answering a scenario prompt
	if scenarioPrompt.MatchString(question) && !(underwriting.PatternExtractor{}).Extract(text).IsZero() {
		return model.ActionScenarios, nil
	}
	if affirmation.MatchString(text) {
		for _, r := range confirmationRules {
			if r.pattern.MatchString(question) {
				return r.action, nil
			}
		}
	}
	if refusal.MatchString(text) {
		return model.ActionChat, nil
	}
	for _, r := range keywordRules {
		if r.pattern.MatchString(text) {
			return r.action, nil
		}
	}
	return model.ActionChat, nil
}

// lastExchange returns the last user message and the assistant message
// preceding it.
func lastExchange(transcript []model.Message) (user, assistant string) {
	i := len(transcript) - 1
	for ; i >= 0; i-- {
		if transcript[i].Role == model.RoleUser {
			user = transcript[i].Text
			break
		}
	}
	for i--; i >= 0; i-- {
		if transcript[i].Role == model.RoleAssistant {
			return user, transcript[i].Text
		}
	}
	return user, ""
}
