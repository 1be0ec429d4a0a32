package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/deal-associate/server/internal/agent/model"
	"github.com/deal-associate/server/internal/underwriting"
	logx "github.com/deal-associate/server/pkg/logger"
)

// BuildModel runs the cash-flow engine on the confirmed assumptions.
type BuildModel struct {
	deps *Deps
}

func NewBuildModel(deps *Deps) *BuildModel {
	return &BuildModel{deps: deps}
}

func (n *BuildModel) Build(ctx context.Context, in StepInput) (model.Delta, error) {
	proj := underwriting.Project(in.Deal.Assumptions, n.deps.projectOptions()...)
	fm := &model.FinancialModel{
		Metrics:    proj.Metrics,
		Status:     model.ModelStatusBuilt,
		Projection: &proj,
	}

	logDetail := "(Skipped: no publisher configured)"
	link := ""
	if n.deps.Publisher != nil {
		art, err := n.deps.Publisher.PublishWorkbook(ctx, in.Turn.SessionID, in.Deal.Assumptions, proj)
		switch {
		case err != nil:
			logx.Warn().Err(err).Str("session_id", in.Turn.SessionID).Msg("Workbook generation failed")
			fm.Status = model.ModelStatusDegraded
			logDetail = fmt.Sprintf("(Failed: %v)", err)
			link = fmt.Sprintf("\n\n(Model workbook could not be generated: %v)", err)
		default:
			fm.Workbook = &art
			logDetail = "(Result: " + art.LocalPath + ")"
			link = artifactLine("Financial Model (Excel)", "Model workbook", art)
		}
	}

	status := strings.Join([]string{
		"System Processing:",
		"- Fills named ranges in the Excel workbook " + logDetail,
		"- Uploads model to secure cloud storage",
		"- Runs the model and computes IRR, equity multiple, YoC, etc.",
	}, "\n")

	return model.Delta{
		FinancialModel: fm,
		Messages: []model.Message{
			model.SystemLog(status),
			model.AssistantMessage("Financial model built successfully.\n\n" + KeyReturns(proj) + link),
		},
	}, nil
}

// KeyReturns renders the headline metrics of a projection.
func KeyReturns(p underwriting.Projection) string {
	return fmt.Sprintf("Key Returns:\n- Levered IRR: %s\n- Equity Multiple: %s\n- Yield on Cost: %s\n- Purchase Price: EUR %s (equity EUR %s)",
		p.IRR.Percent(), p.EquityMultiple.Multiple(), p.YieldOnCost.Percent(),
		millions(p.PurchasePrice), millions(p.Equity))
}

// artifactLine links an uploaded artifact or reports the local-only fallback.
func artifactLine(title, what string, a model.Artifact) string {
	if a.Uploaded() {
		return fmt.Sprintf("\n\n[Download %s](%s)", title, a.URL)
	}
	return fmt.Sprintf("\n\n(%s generated locally at %s, but upload failed)", what, a.LocalPath)
}

func millions(v float64) string {
	return fmt.Sprintf("%.2fm", v/1_000_000)
}
