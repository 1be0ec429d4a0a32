package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/deal-associate/server/internal/agent/model"
	"github.com/deal-associate/server/internal/underwriting"
	logx "github.com/deal-associate/server/pkg/logger"
)

// Deck generates the investment committee deck.
type Deck struct {
	deps *Deps
}

func NewDeck(deps *Deps) *Deck {
	return &Deck{deps: deps}
}

func (n *Deck) Generate(ctx context.Context, in StepInput) (model.Delta, error) {
	deck, line := n.render(ctx, in)
	status := "System Processing:\n- Generates the IC deck\n- Uploads to cloud storage: " + deckFileName(deck.Version)
	return model.Delta{
		Deck: deck,
		Messages: []model.Message{
			model.SystemLog(status),
			model.AssistantMessage("IC deck generated (summary, market, tenancy, business plan, sensitivities, appendix)." + line),
		},
	}, nil
}

// render builds the next deck version and publishes it. The returned line
// links the upload or explains why there is none.
func (n *Deck) render(ctx context.Context, in StepInput) (*model.DeckContent, string) {
	version := 1
	if in.Deal.Deck != nil {
		version = in.Deal.Deck.Version + 1
	}
	deck := &model.DeckContent{
		Slides:  BuildSlides(in.Deal, n.deps.projectOptions()...),
		Version: version,
	}
	if n.deps.Publisher == nil {
		return deck, ""
	}
	art, err := n.deps.Publisher.PublishDeck(ctx, in.Turn.SessionID, *deck)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", in.Turn.SessionID).Msg("Deck generation failed")
		return deck, fmt.Sprintf("\n\n(IC Deck could not be generated: %v)", err)
	}
	deck.Artifact = &art
	return deck, artifactLine(fmt.Sprintf("IC Deck v%d", version), "IC Deck", art)
}

// BuildSlides assembles the six deck pages from the deal state.
func BuildSlides(deal *model.DealState, opts ...underwriting.ProjectOption) []model.Slide {
	return []model.Slide{
		summarySlide(deal),
		marketSlide(deal),
		tenancySlide(deal),
		businessPlanSlide(deal),
		sensitivitiesSlide(deal, opts...),
		appendixSlide(deal),
	}
}

func summarySlide(deal *model.DealState) model.Slide {
	s := model.Slide{Title: "Summary"}
	if deal.ExtractedData != nil {
		for _, line := range strings.Split(deal.ExtractedData.Summary, "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "- ") {
				s.Bullets = append(s.Bullets, strings.TrimPrefix(line, "- "))
			}
		}
		if len(s.Bullets) == 0 && deal.ExtractedData.Narrative != "" {
			s.Bullets = append(s.Bullets, truncate(deal.ExtractedData.Narrative, 400))
		}
	}
	if fm := deal.FinancialModel; fm != nil {
		s.Bullets = append(s.Bullets, fmt.Sprintf("Base case: levered IRR %s, equity multiple %s, yield on cost %s",
			fm.IRR.Percent(), fm.EquityMultiple.Multiple(), fm.YieldOnCost.Percent()))
	}
	if len(s.Bullets) == 0 {
		s.Bullets = []string{"No analysis available."}
	}
	return s
}

func marketSlide(deal *model.DealState) model.Slide {
	s := model.Slide{Title: "Market"}
	for _, c := range deal.Comps {
		s.Bullets = append(s.Bullets, c.String())
	}
	if rent, ok := underwriting.BlendedRent(deal.Comps); ok {
		s.Bullets = append(s.Bullets, fmt.Sprintf("Blended market rent: EUR %.2f/m2/year", rent))
	}
	if lo, hi, ok := underwriting.YieldRange(deal.Comps); ok {
		s.Bullets = append(s.Bullets, fmt.Sprintf("Comparable yields: %.2f%% to %.2f%%", lo*100, hi*100))
	}
	if len(s.Bullets) == 0 {
		s.Bullets = []string{"No comparable evidence selected."}
	}
	return s
}

func tenancySlide(deal *model.DealState) model.Slide {
	s := model.Slide{Title: "Tenancy"}
	if deal.ExtractedData == nil {
		s.Bullets = []string{"No rent roll ingested."}
		return s
	}
	rec, _ := ParseRecord(deal.ExtractedData.Source)
	for _, a := range rec.Assets {
		for _, l := range a.Leases {
			s.Bullets = append(s.Bullets, fmt.Sprintf("%s: %s m2 at EUR %.2f/m2, %.1f years remaining",
				l.Tenant.Name, humanize.Comma(int64(l.AreaM2)), l.RentPsmPa, l.TermRemainingYears))
		}
	}
	m := deal.ExtractedData.Metrics
	if m.Tenants > 0 {
		s.Bullets = append(s.Bullets, fmt.Sprintf("Occupancy %.1f%%, WAULT %.1f years", m.Occupancy*100, m.WAULTYears))
	}
	if len(s.Bullets) == 0 {
		s.Bullets = []string{"No leases in the structured record."}
	}
	return s
}

func businessPlanSlide(deal *model.DealState) model.Slide {
	s := model.Slide{Title: "Business Plan"}
	for _, k := range []string{
		underwriting.KeyERV,
		underwriting.KeyRentGrowth,
		underwriting.KeyEntryYield,
		underwriting.KeyExitYield,
		underwriting.KeyLTV,
		underwriting.KeyInterestRate,
		underwriting.KeyOpexRatio,
		underwriting.KeyCapex,
	} {
		if v, ok := deal.Assumptions[k]; ok {
			s.Bullets = append(s.Bullets, fmt.Sprintf("%s: %s", assumptionLabel(k), FormatAssumption(k, v)))
		}
	}
	if fm := deal.FinancialModel; fm != nil && fm.Projection != nil {
		p := fm.Projection
		s.Bullets = append(s.Bullets,
			fmt.Sprintf("Purchase price EUR %s, loan EUR %s, equity EUR %s", millions(p.PurchasePrice), millions(p.Loan), millions(p.Equity)),
			fmt.Sprintf("Exit value EUR %s in year %d", millions(p.ExitValue), underwriting.ProjectionYears),
		)
	}
	if len(s.Bullets) == 0 {
		s.Bullets = []string{"Assumptions not yet confirmed."}
	}
	return s
}

// sensitivitiesSlide shows the standard archetypes, then every stored scenario.
func sensitivitiesSlide(deal *model.DealState, opts ...underwriting.ProjectOption) model.Slide {
	s := model.Slide{Title: "Sensitivities"}
	fm := deal.FinancialModel
	if fm == nil {
		s.Bullets = []string{"Model not yet built."}
		return s
	}
	for _, a := range []underwriting.Archetype{underwriting.ArchetypeDownside, underwriting.ArchetypeUpside, underwriting.ArchetypeStress} {
		out := underwriting.ApplyScenario(underwriting.ScenarioDescriptor{Archetype: a}, deal.Assumptions, fm.Metrics, opts...)
		s.Bullets = append(s.Bullets, sensitivityLine(out.Label+" ("+out.Applied.String()+")", out.Comparison))
	}
	for _, label := range deal.ScenarioLabels() {
		sc := deal.Scenarios[label]
		s.Bullets = append(s.Bullets, sensitivityLine("Scenario: "+label, sc.Comparison))
	}
	return s
}

func sensitivityLine(label string, c underwriting.Comparison) string {
	delta := "n/a"
	if c.IRRDeltaBps.Available {
		delta = fmt.Sprintf("%+.0f bps", c.IRRDeltaBps.Value)
	}
	return fmt.Sprintf("%s: IRR %s (%s vs base), EM %s, %s", label, c.ScenarioIRR.Percent(), delta, c.ScenarioEM.Multiple(), c.Band.Describe())
}

func appendixSlide(deal *model.DealState) model.Slide {
	s := model.Slide{Title: "Appendix"}
	if deal.ExtractedData != nil {
		if deal.ExtractedData.SourceName != "" {
			s.Bullets = append(s.Bullets, "Structured data: "+deal.ExtractedData.SourceName)
		}
		for _, d := range deal.ExtractedData.Documents {
			s.Bullets = append(s.Bullets, "Document reviewed: "+d.Name)
		}
		for _, w := range deal.ExtractedData.Validation {
			s.Bullets = append(s.Bullets, "Data warning: "+w)
		}
	}
	if len(s.Bullets) == 0 {
		s.Bullets = []string{"No source documents recorded."}
	}
	return s
}

func assumptionLabel(key string) string {
	switch key {
	case underwriting.KeyERV:
		return "Market Rent (ERV)"
	case underwriting.KeyLTV:
		return "LTV"
	}
	words := strings.Split(key, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func deckFileName(version int) string {
	return fmt.Sprintf("IC_Deck_v%d.md", version)
}
