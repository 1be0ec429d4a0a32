package nodes

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/deal-associate/server/internal/agent/intent"
	"github.com/deal-associate/server/internal/agent/model"
	errx "github.com/deal-associate/server/internal/core/error"
	"github.com/deal-associate/server/internal/underwriting"
)

// ResolveFunc rewrites a requested action to the earliest one whose
// precondition is missing.
type ResolveFunc func(requested model.Action, s *model.DealState) (model.Action, error)

// Deps are the collaborators the workflow nodes call out to.
type Deps struct {
	Repo       model.DealRepository
	Classifier intent.Classifier
	Source     model.DocumentSource
	Validator  model.RecordValidator // optional
	Comps      model.CompsRetriever
	Publisher  model.Publisher // optional; without it nothing is uploaded
	Extractor  underwriting.Extractor
	Resolve    ResolveFunc

	// Writer drafts the ingestion narrative and the assumptions commentary.
	// Without it both fall back to deterministic text.
	Writer      einomodel.BaseChatModel
	WriterModel string

	Underwriting model.UnderwritingConfig
}

// Validate checks the required collaborators and the underwriting settings.
func (d *Deps) Validate() error {
	switch {
	case d.Repo == nil:
		return errx.Config(fmt.Errorf("deal repository is nil"))
	case d.Classifier == nil:
		return errx.Config(fmt.Errorf("intent classifier is nil"))
	case d.Source == nil:
		return errx.Config(fmt.Errorf("document source is nil"))
	case d.Comps == nil:
		return errx.Config(fmt.Errorf("comps retriever is nil"))
	case d.Resolve == nil:
		return errx.Config(fmt.Errorf("dependency resolver is nil"))
	}
	if _, err := underwriting.ParseEquityMultipleMode(d.Underwriting.EquityMultiple); err != nil {
		return errx.Config(err)
	}
	if d.Extractor == nil {
		d.Extractor = underwriting.PatternExtractor{}
	}
	return nil
}

func (d *Deps) projectOptions() []underwriting.ProjectOption {
	mode, err := underwriting.ParseEquityMultipleMode(d.Underwriting.EquityMultiple)
	if err != nil {
		mode = underwriting.EquityMultipleNet
	}
	return []underwriting.ProjectOption{
		underwriting.WithEquityMultipleMode(mode),
		underwriting.WithHurdle(d.Underwriting.HurdleIRR),
	}
}

func (d *Deps) extractor() underwriting.Extractor {
	if d.Extractor == nil {
		return underwriting.PatternExtractor{}
	}
	return d.Extractor
}

// draft asks the writer model for prose. ok is false when no writer is
// configured.
func (d *Deps) draft(ctx context.Context, component string, msgs []*schema.Message) (text string, ok bool, err error) {
	if d.Writer == nil {
		return "", false, nil
	}
	out, err := d.Writer.Generate(ctx, msgs)
	if err != nil {
		return "", true, fmt.Errorf("%s: %w", component, err)
	}
	model.RecordUsage(ctx, component, d.WriterModel, out)
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", true, fmt.Errorf("%s: empty model response", component)
	}
	return strings.TrimSpace(out.Content), true, nil
}
