package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/deal-associate/server/internal/agent/graph/prompts"
	"github.com/deal-associate/server/internal/agent/model"
	logx "github.com/deal-associate/server/pkg/logger"
)

const (
	maxStructuredPrompt = 4000
	maxDocumentsPrompt  = 12000
)

// Ingest is the ingestion pipeline.
type Ingest struct {
	deps *Deps
}

func NewIngest(deps *Deps) *Ingest {
	return &Ingest{deps: deps}
}

func (n *Ingest) Start(_ context.Context, in StepInput) (model.Delta, error) {
	logx.Info().Str("session_id", in.Turn.SessionID).Msg("Starting ingestion")
	return model.Delta{
		Messages:    []model.Message{model.SystemLog("Starting data ingestion process...")},
		Status:      &model.MachineStatus{Phase: model.PhaseRunning},
		CurrentStep: ptr(model.ActionIngest),
	}, nil
}

func (n *Ingest) LoadStructured(ctx context.Context, in StepInput) (model.Delta, error) {
	data := &model.ExtractedData{}
	name, record, err := n.deps.Source.LoadStructured(ctx, in.Turn.SessionID)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", in.Turn.SessionID).Msg("Structured data unavailable")
		return model.Delta{
			ExtractedData: data,
			Messages:      []model.Message{model.SystemLog(fmt.Sprintf("Structured data unavailable: %v", err))},
		}, nil
	}

	data.SourceName = name
	data.Source = record
	msgs := []model.Message{model.SystemLog("Loaded structured data from " + name)}
	if n.deps.Validator != nil {
		data.Validation = n.deps.Validator.Validate(record)
		if len(data.Validation) > 0 {
			msgs = append(msgs, model.SystemLog(fmt.Sprintf("Structured data has %d validation warning(s): %s",
				len(data.Validation), strings.Join(data.Validation, "; "))))
		}
	}
	return model.Delta{ExtractedData: data, Messages: msgs}, nil
}

func (n *Ingest) LoadDocuments(ctx context.Context, in StepInput) (model.Delta, error) {
	data := extracted(in.Deal)
	docs, err := n.deps.Source.LoadDocuments(ctx, in.Turn.SessionID)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", in.Turn.SessionID).Msg("Documents unavailable")
		return model.Delta{
			ExtractedData: data,
			Messages:      []model.Message{model.SystemLog(fmt.Sprintf("Documents unavailable: %v", err))},
		}, nil
	}
	data.Documents = docs
	return model.Delta{
		ExtractedData: data,
		Messages:      []model.Message{model.SystemLog(fmt.Sprintf("Parsed %d documents", len(docs)))},
	}, nil
}

// Align reconciles the structured record with the documents into a narrative.
func (n *Ingest) Align(ctx context.Context, in StepInput) (model.Delta, error) {
	data := extracted(in.Deal)
	if len(data.Source) == 0 && len(data.Documents) == 0 {
		return model.Say("I couldn't find any deal data to ingest. Add the structured record and documents, then ask me to start again."), nil
	}

	narrative := ""
	msgs, err := prompts.RenderAlignment(ctx, structuredForPrompt(data.Source), documentsForPrompt(data.Documents))
	if err == nil {
		var drafted bool
		narrative, drafted, err = n.deps.draft(ctx, NodeIngestAlign, msgs)
		if !drafted {
			narrative = deterministicNarrative(data)
		}
	}
	if err != nil {
		logx.Warn().Err(err).Str("session_id", in.Turn.SessionID).Msg("Alignment draft failed; using extracted facts")
		narrative = deterministicNarrative(data)
	}
	data.Narrative = narrative

	return model.Delta{
		ExtractedData: data,
		Messages: []model.Message{
			model.SystemLog("I've ingested the IM, rent roll and structured deal data. I'll generate the summary, key metrics, and an initial set of comparables."),
			model.AssistantMessage(narrative),
		},
	}, nil
}

// Summarize computes the asset metrics and drafts the summary.
func (n *Ingest) Summarize(_ context.Context, in StepInput) (model.Delta, error) {
	data := extracted(in.Deal)
	if data.IsEmpty() {
		return model.Delta{}, nil
	}

	rec, err := ParseRecord(data.Source)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", in.Turn.SessionID).Msg("Structured record could not be decoded")
		data.Validation = append(data.Validation, err.Error())
	}
	data.Metrics = rec.Metrics()
	data.Summary = SummaryText(rec, data.Metrics)

	return model.Delta{
		ExtractedData: data,
		Messages:      []model.Message{model.AssistantMessage(data.Summary)},
	}, nil
}

// SummaryText renders the metrics summary shown after ingestion.
func SummaryText(rec Record, m model.AssetMetrics) string {
	var b strings.Builder
	b.WriteString("Compute Metrics and Draft Summary:\n")
	if a, ok := rec.Subject(); ok {
		fmt.Fprintf(&b, "- Asset: %s (%s), %s\n", a.Name, a.AssetType, a.Location())
	}
	fmt.Fprintf(&b, "- Total GLA: %s m2\n", humanize.Comma(int64(m.GLASqm)))
	fmt.Fprintf(&b, "- Occupancy: %.1f%%\n", m.Occupancy*100)
	fmt.Fprintf(&b, "- WAULT: %.1f years\n", m.WAULTYears)
	fmt.Fprintf(&b, "- In-Place Rent: EUR %s p.a.", humanize.Comma(int64(m.PassingRent)))
	if m.GLASqm > 0 && m.Occupancy > 0 {
		fmt.Fprintf(&b, " (EUR %.2f/m2 on let area)", m.PassingRent/(m.GLASqm*m.Occupancy))
	}
	fmt.Fprintf(&b, "\n- Tenants: %d", m.Tenants)
	return b.String()
}

// extracted returns a copy of the deal's extracted data for a step to extend.
func extracted(deal *model.DealState) *model.ExtractedData {
	if deal == nil || deal.ExtractedData == nil {
		return &model.ExtractedData{}
	}
	cp := *deal.ExtractedData
	return &cp
}

func structuredForPrompt(record map[string]any) string {
	if len(record) == 0 {
		return "(none)"
	}
	b, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Sprint(record)
	}
	return truncate(string(b), maxStructuredPrompt)
}

func documentsForPrompt(docs []model.Document) string {
	if len(docs) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&b, "### %s\n%s\n\n", d.Name, strings.TrimSpace(d.Text))
	}
	return truncate(b.String(), maxDocumentsPrompt)
}

func deterministicNarrative(data *model.ExtractedData) string {
	rec, _ := ParseRecord(data.Source)
	var parts []string
	if a, ok := rec.Subject(); ok {
		line := fmt.Sprintf("%s is a %s asset", a.Name, strings.ToLower(a.AssetType))
		if loc := a.Location(); loc != "" {
			line += " in " + loc
		}
		if a.Address != "" {
			line += " (" + a.Address + ")"
		}
		parts = append(parts, line+".")
		if len(a.Leases) > 0 {
			tenants := make([]string, 0, len(a.Leases))
			for _, l := range a.Leases {
				tenants = append(tenants, l.Tenant.Name)
			}
			parts = append(parts, "Let to "+strings.Join(tenants, ", ")+".")
		}
	}
	if len(data.Documents) > 0 {
		names := make([]string, 0, len(data.Documents))
		for _, d := range data.Documents {
			names = append(names, d.Name)
		}
		parts = append(parts, "Documents reviewed: "+strings.Join(names, ", ")+".")
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
