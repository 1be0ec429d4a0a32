package underwriting

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Comp is a comparable transaction used to benchmark rent and yield.
type Comp struct {
	Name       string  `json:"name"`
	SizeSqm    float64 `json:"size_sqm"`
	Yield      float64 `json:"yield"`
	Rent       float64 `json:"rent"`
	DistanceKm float64 `json:"distance_km"`
}

func (c Comp) String() string {
	return fmt.Sprintf("%s: %s m2, %.2f%% yield, EUR %.0f/m2, %.0f km",
		c.Name, formatThousands(c.SizeSqm), Normalize(c.Yield)*100, c.Rent, c.DistanceKm)
}

func formatThousands(v float64) string {
	if v >= 1000 {
		return fmt.Sprintf("%.0fk", v/1000)
	}
	return fmt.Sprintf("%.0f", v)
}

// BlendedRent is the size-weighted average rent across comps, rounded to two
// decimals. Comps without a size fall back to a simple average. It returns
// false for an empty set.
func BlendedRent(comps []Comp) (float64, bool) {
	if len(comps) == 0 {
		return 0, false
	}
	var weighted, size, plain float64
	for _, c := range comps {
		plain += c.Rent
		if c.SizeSqm > 0 {
			weighted += c.Rent * c.SizeSqm
			size += c.SizeSqm
		}
	}
	if size == 0 {
		return Round2(plain / float64(len(comps))), true
	}
	return Round2(weighted / size), true
}

// YieldRange returns the lowest and highest comp yields as decimals.
func YieldRange(comps []Comp) (lo, hi float64, ok bool) {
	if len(comps) == 0 {
		return 0, 0, false
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, c := range comps {
		y := Normalize(c.Yield)
		lo = math.Min(lo, y)
		hi = math.Max(hi, y)
	}
	return lo, hi, true
}

// SortByDistance orders comps nearest first; ties keep name order.
func SortByDistance(comps []Comp) {
	sort.SliceStable(comps, func(i, j int) bool {
		if comps[i].DistanceKm == comps[j].DistanceKm {
			return comps[i].Name < comps[j].Name
		}
		return comps[i].DistanceKm < comps[j].DistanceKm
	})
}

// IndexComp returns the position of the comp named name (case-insensitive) or -1.
func IndexComp(comps []Comp, name string) int {
	for i, c := range comps {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}
