package comps

import (
	"context"
	"slices"

	"github.com/deal-associate/server/internal/agent/model"
	"github.com/deal-associate/server/internal/underwriting"
)

// DefaultRecommended is the size of the recommended set when the query
// does not set one.
const DefaultRecommended = 3

// StaticCatalog serves a fixed list of internal logistics transactions.
// The first Recommended entries form the proposal.
type StaticCatalog struct {
	comps       []underwriting.Comp
	recommended int
}

// DefaultCatalog is the internal evidence set: Comps A to E.
func DefaultCatalog() []underwriting.Comp {
	return []underwriting.Comp{
		{Name: "Comp A", SizeSqm: 52000, Yield: 0.045, Rent: 82, DistanceKm: 20},
		{Name: "Comp B", SizeSqm: 60000, Yield: 0.047, Rent: 85, DistanceKm: 35},
		{Name: "Comp C", SizeSqm: 45000, Yield: 0.044, Rent: 87, DistanceKm: 50},
		{Name: "Comp D", SizeSqm: 75000, Yield: 0.048, Rent: 80, DistanceKm: 15},
		{Name: "Comp E", SizeSqm: 40000, Yield: 0.043, Rent: 90, DistanceKm: 60},
	}
}

func NewStaticCatalog(comps []underwriting.Comp, recommended int) *StaticCatalog {
	if comps == nil {
		comps = DefaultCatalog()
	}
	if recommended <= 0 {
		recommended = DefaultRecommended
	}
	return &StaticCatalog{comps: comps, recommended: recommended}
}

// Propose returns the recommended entries ordered by distance.
func (c *StaticCatalog) Propose(_ context.Context, q model.CompsQuery) ([]underwriting.Comp, error) {
	n := c.recommended
	if q.Limit > 0 && q.Limit < n {
		n = q.Limit
	}
	n = min(n, len(c.comps))
	out := slices.Clone(c.comps[:n])
	underwriting.SortByDistance(out)
	return out, nil
}

func (c *StaticCatalog) Catalog(_ context.Context) ([]underwriting.Comp, error) {
	return slices.Clone(c.comps), nil
}

var _ model.CompsRetriever = (*StaticCatalog)(nil)
