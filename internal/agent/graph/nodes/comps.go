package nodes

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/deal-associate/server/internal/agent/model"
	"github.com/deal-associate/server/internal/underwriting"
	logx "github.com/deal-associate/server/pkg/logger"
)

// Comps proposes and curates comparable evidence.
type Comps struct {
	deps *Deps
}

func NewComps(deps *Deps) *Comps {
	return &Comps{deps: deps}
}

func (n *Comps) Propose(ctx context.Context, in StepInput) (model.Delta, error) {
	if !in.Deal.Has(model.FieldExtractedData) {
		return model.Say("Comparables need ingested deal data first. Add the deal files and ask me to start the underwriting."), nil
	}

	q := model.CompsQuery{Limit: n.deps.Underwriting.RecommendedComps}
	if rec, err := ParseRecord(in.Deal.ExtractedData.Source); err == nil {
		if a, ok := rec.Subject(); ok {
			q.AssetType = a.AssetType
			q.Location = a.Location()
		}
	}

	comps, err := n.deps.Comps.Propose(ctx, q)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", in.Turn.SessionID).Msg("Comparable retrieval failed")
		return model.Say(fmt.Sprintf("I couldn't retrieve comparables right now (%v). Ask me for comps again to retry.", err)), nil
	}
	available := len(comps)
	if catalog, err := n.deps.Comps.Catalog(ctx); err == nil && len(catalog) > available {
		available = len(catalog)
	}

	var b strings.Builder
	label := "comparable"
	if q.AssetType != "" {
		label = "comparable " + strings.ToLower(q.AssetType)
	}
	fmt.Fprintf(&b, "I've identified %d internal %s assets based on location, size, and specification.\n\n", available, label)
	fmt.Fprintf(&b, "Recommended set (%d):\n%s", len(comps), listComps(comps))
	if rent, ok := underwriting.BlendedRent(comps); ok {
		fmt.Fprintf(&b, "\n\nCurrent blended market rent from these %d comps: EUR %.2f/m2/year.", len(comps), rent)
	}

	return model.Delta{
		Comps:    model.ReplaceComps(comps),
		Messages: []model.Message{model.AssistantMessage(b.String())},
	}, nil
}

// Update removes and adds comps named in the user's message.
func (n *Comps) Update(ctx context.Context, in StepInput) (model.Delta, error) {
	catalog, err := n.deps.Comps.Catalog(ctx)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", in.Turn.SessionID).Msg("Comparable catalog unavailable")
		catalog = nil
	}

	updated, removed, added := CurateComps(in.Deal.Comps, catalog, in.Turn.Query)
	if len(removed) == 0 && len(added) == 0 {
		return model.Say("I couldn't identify which comparable to remove or add. Please specify the comp name (e.g., 'Remove Comp A' or 'Add Comp D')."), nil
	}

	var actions []string
	if len(removed) > 0 {
		actions = append(actions, "Removing "+strings.Join(removed, ", "))
	}
	if len(added) > 0 {
		actions = append(actions, "Adding "+strings.Join(added, ", "))
	}
	actionText := strings.Join(actions, "; ")

	var b strings.Builder
	fmt.Fprintf(&b, "I've updated the comparables set: %s.\n\n", actionText)
	if len(updated) == 0 {
		b.WriteString("Updated comparables (0): None remaining.")
	} else {
		fmt.Fprintf(&b, "Updated comparables (%d):\n%s", len(updated), listComps(updated))
	}
	if rent, ok := underwriting.BlendedRent(updated); ok {
		fmt.Fprintf(&b, "\n\nUpdated blended market rent: EUR %.2f/m2/year.", rent)
	}

	return model.Delta{
		Comps: model.ReplaceComps(updated),
		Messages: []model.Message{
			model.SystemLog("System Processing:\n- " + actionText + "\n- Recalculating blended market rent\n- Updating deal state"),
			model.AssistantMessage(b.String()),
		},
	}, nil
}

// CurateComps applies "remove X" and "add Y" instructions in text, clause by
// clause; a clause without a verb inherits the previous one ("remove Comp A
// and Comp B"). Removals apply to the current set, additions come from
// catalog and skip comps that are already selected.
func CurateComps(current, catalog []underwriting.Comp, text string) (updated []underwriting.Comp, removed, added []string) {
	toRemove := map[string]bool{}
	var toAdd []underwriting.Comp

	verb := ""
	for _, clause := range clauseSplit.Split(strings.ToLower(text), -1) {
		switch {
		case removeVerb.MatchString(clause):
			verb = "remove"
		case addVerb.MatchString(clause):
			verb = "add"
		}
		switch verb {
		case "remove":
			for _, c := range current {
				if mentions(clause, c.Name) {
					toRemove[strings.ToLower(c.Name)] = true
				}
			}
		case "add":
			for _, c := range catalog {
				if mentions(clause, c.Name) {
					toAdd = append(toAdd, c)
				}
			}
		}
	}

	for _, c := range current {
		if toRemove[strings.ToLower(c.Name)] {
			removed = append(removed, c.Name)
			continue
		}
		updated = append(updated, c)
	}
	for _, c := range toAdd {
		if underwriting.IndexComp(updated, c.Name) >= 0 {
			continue
		}
		updated = append(updated, c)
		added = append(added, c.Name)
	}
	return updated, removed, added
}

var (
	clauseSplit = regexp.MustCompile(`[,;.]|\band\b|\bthen\b`)
	removeVerb  = regexp.MustCompile(`\b(remove|drop|exclude|delete)\b`)
	addVerb     = regexp.MustCompile(`\b(add|include)\b`)
)

func mentions(lowerText, name string) bool {
	if name == "" {
		return false
	}
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(strings.ToLower(name)) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(lowerText)
}

func listComps(comps []underwriting.Comp) string {
	lines := make([]string, 0, len(comps))
	for _, c := range comps {
		lines = append(lines, c.String())
	}
	return strings.Join(lines, "\n")
}
