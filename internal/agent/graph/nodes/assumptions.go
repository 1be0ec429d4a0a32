package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/dustin/go-humanize"

	"github.com/deal-associate/server/internal/agent/graph/prompts"
	"github.com/deal-associate/server/internal/agent/model"
	"github.com/deal-associate/server/internal/underwriting"
	logx "github.com/deal-associate/server/pkg/logger"
)

// Assumptions proposes and edits the underwriting assumptions.
type Assumptions struct {
	deps *Deps
}

func NewAssumptions(deps *Deps) *Assumptions {
	return &Assumptions{deps: deps}
}

// ProposeAssumptions seeds the defaults with the comps' blended rent and the
// ingested lettable area.
func ProposeAssumptions(deal *model.DealState) underwriting.Assumptions {
	a := underwriting.DefaultAssumptions()
	if rent, ok := underwriting.BlendedRent(deal.Comps); ok {
		a[underwriting.KeyERV] = rent
	}
	if deal.ExtractedData != nil && deal.ExtractedData.Metrics.GLASqm > 0 {
		a[underwriting.KeyArea] = deal.ExtractedData.Metrics.GLASqm
	}
	return a
}

func (n *Assumptions) Propose(ctx context.Context, in StepInput) (model.Delta, error) {
	proposal := ProposeAssumptions(in.Deal)
	text := ProposalText(in.Deal, proposal)

	msgs, err := prompts.RenderAssumptions(ctx, assumptionsVars(in.Deal, proposal))
	if err == nil {
		var drafted string
		var ok bool
		drafted, ok, err = n.deps.draft(ctx, NodeAssumptionsPropose, msgs)
		if ok && err == nil {
			text = drafted
		}
	}
	if err != nil {
		logx.Warn().Err(err).Str("session_id", in.Turn.SessionID).Msg("Assumptions draft failed; using template proposal")
	}

	return model.Delta{
		Assumptions: proposal,
		Messages:    []model.Message{model.AssistantMessage(text)},
	}, nil
}

// Update applies the natural-language edits in the user's message.
func (n *Assumptions) Update(_ context.Context, in StepInput) (model.Delta, error) {
	updated, changed := underwriting.ApplyUpdates(in.Deal.Assumptions, in.Turn.Query)
	if len(changed) == 0 {
		in.Scratch.AssumptionsUnchanged = true
		return model.Delta{
			Messages: []model.Message{
				model.SystemLog("No specific assumption updates detected."),
				model.AssistantMessage("I couldn't find an assumption to change. Try e.g. 'exit yield 5%', 'rent growth 2.5%' or 'ltv 55%'."),
			},
		}, nil
	}

	parts := make([]string, 0, len(changed))
	for _, k := range changed {
		parts = append(parts, fmt.Sprintf("%s: %s", k, FormatAssumption(k, updated[k])))
	}
	logx.Debug().Str("session_id", in.Turn.SessionID).Strs("changed", changed).Msg("Assumptions updated")

	return model.Delta{
		Assumptions: updated,
		Messages:    []model.Message{model.SystemLog("Updated assumptions: " + strings.Join(parts, ", "))},
	}, nil
}

// NewAssumptionsUpdateCondition sends a no-op update back to the review
// question and a real one on to the model confirmation.
func NewAssumptionsUpdateCondition() func(context.Context, *model.Turn) (string, error) {
	return func(ctx context.Context, _ *model.Turn) (string, error) {
		next := NodeAwaitModelConfirmation
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			if s.Scratch.AssumptionsUnchanged {
				next = NodeAwaitAssumptionsReview
			}
			return nil
		})
		return next, err
	}
}

// AssumptionsUpdateTargets lists where an assumptions update can go next.
func AssumptionsUpdateTargets() map[string]bool {
	return map[string]bool{
		NodeAwaitModelConfirmation: true,
		NodeAwaitAssumptionsReview: true,
	}
}

var percentKeys = map[string]bool{
	underwriting.KeyEntryYield:         true,
	underwriting.KeyExitYield:          true,
	underwriting.KeyRentGrowth:         true,
	underwriting.KeyLTV:                true,
	underwriting.KeyInterestRate:       true,
	underwriting.KeyOpexRatio:          true,
	underwriting.KeyPurchasersCosts:    true,
	underwriting.KeyDiscountRate:       true,
	underwriting.KeyRenewalProbability: true,
}

// FormatAssumption renders one assumption value for display.
func FormatAssumption(key string, v float64) string {
	switch {
	case percentKeys[key]:
		return fmt.Sprintf("%.2f%%", underwriting.Normalize(v)*100)
	case key == underwriting.KeyERV:
		return fmt.Sprintf("EUR %.2f/m2", v)
	case key == underwriting.KeyDowntimeMonths:
		return fmt.Sprintf("%.0f months", v)
	case key == underwriting.KeyArea:
		return humanize.Comma(int64(v)) + " m2"
	case key == underwriting.KeyCapex:
		return "EUR " + humanize.Comma(int64(v))
	}
	return humanize.Ftoa(v)
}

// ProposalText is the template proposal used when no writer model is set.
func ProposalText(deal *model.DealState, a underwriting.Assumptions) string {
	var m model.AssetMetrics
	if deal.ExtractedData != nil {
		m = deal.ExtractedData.Metrics
	}
	var b strings.Builder
	b.WriteString("Based on the curated comparables and the tenancy schedule, here are my proposed underwriting assumptions:\n\n")

	b.WriteString("Rent & ERV\n")
	if m.PassingRent > 0 && m.GLASqm > 0 && m.Occupancy > 0 {
		fmt.Fprintf(&b, "- Current passing rent: EUR %.2f/m2 (weighted from the rent roll)\n", m.PassingRent/(m.GLASqm*m.Occupancy))
	}
	if rent, ok := underwriting.BlendedRent(deal.Comps); ok {
		fmt.Fprintf(&b, "- Blended market rent from comps: EUR %.2f/m2/year\n", rent)
	}
	fmt.Fprintf(&b, "- Proposed ERV: %s, rent growth %s p.a.\n\n",
		FormatAssumption(underwriting.KeyERV, a[underwriting.KeyERV]),
		FormatAssumption(underwriting.KeyRentGrowth, a[underwriting.KeyRentGrowth]))

	b.WriteString("Tenancy & Rollover\n")
	if m.Tenants > 0 {
		fmt.Fprintf(&b, "- Current occupancy: %.1f%%\n", m.Occupancy*100)
		fmt.Fprintf(&b, "- WAULT to expiry: %.1f years\n", m.WAULTYears)
		fmt.Fprintf(&b, "- Single-tenant risk: %s\n", yesNo(m.Tenants == 1))
	} else {
		b.WriteString("- No rent roll was ingested; tenancy figures are unavailable\n")
	}
	fmt.Fprintf(&b, "- Lettable area: %s\n\n", FormatAssumption(underwriting.KeyArea, a[underwriting.KeyArea]))

	b.WriteString("Reletting & Vacancy\n")
	fmt.Fprintf(&b, "- Reletting downtime on expiries: %s\n", FormatAssumption(underwriting.KeyDowntimeMonths, a[underwriting.KeyDowntimeMonths]))
	fmt.Fprintf(&b, "- Renewal probability: %s for existing tenants\n\n", FormatAssumption(underwriting.KeyRenewalProbability, a[underwriting.KeyRenewalProbability]))

	b.WriteString("Yields & Discount Rate\n")
	if lo, hi, ok := underwriting.YieldRange(deal.Comps); ok {
		fmt.Fprintf(&b, "- Market evidence suggests yields between %.2f%% and %.2f%% from comps\n", lo*100, hi*100)
	}
	fmt.Fprintf(&b, "- Entry yield: %s, proposed exit yield: %s\n",
		FormatAssumption(underwriting.KeyEntryYield, a[underwriting.KeyEntryYield]),
		FormatAssumption(underwriting.KeyExitYield, a[underwriting.KeyExitYield]))
	fmt.Fprintf(&b, "- Discount rate: %s\n", FormatAssumption(underwriting.KeyDiscountRate, a[underwriting.KeyDiscountRate]))
	fmt.Fprintf(&b, "- Financing: LTV %s at %s interest",
		FormatAssumption(underwriting.KeyLTV, a[underwriting.KeyLTV]),
		FormatAssumption(underwriting.KeyInterestRate, a[underwriting.KeyInterestRate]))
	return b.String()
}

func assumptionsVars(deal *model.DealState, a underwriting.Assumptions) prompts.AssumptionsVars {
	v := prompts.AssumptionsVars{
		BlendedRent: "n/a",
		YieldRange:  "n/a",
	}
	if rent, ok := underwriting.BlendedRent(deal.Comps); ok {
		v.BlendedRent = fmt.Sprintf("%.2f", rent)
	}
	if lo, hi, ok := underwriting.YieldRange(deal.Comps); ok {
		v.YieldRange = fmt.Sprintf("%.2f%% - %.2f%%", lo*100, hi*100)
	}
	if deal.ExtractedData != nil {
		v.Narrative = truncate(deal.ExtractedData.Narrative, 2000)
		v.Metrics = deal.ExtractedData.Summary
	}
	lines := make([]string, 0, len(a))
	for _, k := range a.Keys() {
		lines = append(lines, fmt.Sprintf("%s = %s", k, FormatAssumption(k, a[k])))
	}
	v.Assumptions = strings.Join(lines, "; ")
	return v
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
