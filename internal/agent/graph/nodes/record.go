package nodes

import (
	"fmt"
	"math"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/deal-associate/server/internal/agent/model"
)

// Record is the typed view of an ingested structured record.
type Record struct {
	Assets []Asset `mapstructure:"assets"`
}

type Asset struct {
	Name           string `mapstructure:"name"`
	AssetType      string `mapstructure:"asset_type"`
	Address        string `mapstructure:"address"`
	City           string `mapstructure:"city"`
	Country        string `mapstructure:"country"`
	Currency       string `mapstructure:"currency"`
	LogisticsAsset struct {
		AreaM2 float64 `mapstructure:"area_m2"`
	} `mapstructure:"logistics_asset"`
	Leases []Lease `mapstructure:"leases"`
}

type Lease struct {
	Tenant struct {
		Name string `mapstructure:"name"`
	} `mapstructure:"tenant"`
	AreaM2             float64 `mapstructure:"area_m2"`
	RentPsmPa          float64 `mapstructure:"rent_psm_pa"`
	TermRemainingYears float64 `mapstructure:"term_remaining_years"`
}

// ParseRecord decodes the loosely typed record. Numeric strings are accepted.
func ParseRecord(raw map[string]any) (Record, error) {
	var rec Record
	if len(raw) == 0 {
		return rec, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &rec,
	})
	if err != nil {
		return rec, err
	}
	if err := dec.Decode(raw); err != nil {
		return rec, fmt.Errorf("decode structured record: %w", err)
	}
	return rec, nil
}

// Subject is the first asset, which drives comps retrieval and the deck.
func (r Record) Subject() (Asset, bool) {
	if len(r.Assets) == 0 {
		return Asset{}, false
	}
	return r.Assets[0], true
}

// Location renders the asset's city and country.
func (a Asset) Location() string {
	parts := make([]string, 0, 2)
	for _, p := range []string{a.City, a.Country} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Metrics computes the headline tenancy figures. Occupancy is leased over
// lettable area, capped at 100%; WAULT is weighted by passing rent.
func (r Record) Metrics() model.AssetMetrics {
	var (
		m            model.AssetMetrics
		leased       float64
		weightedTerm float64
	)
	for _, a := range r.Assets {
		leasedHere := 0.0
		for _, l := range a.Leases {
			rent := l.AreaM2 * l.RentPsmPa
			m.Tenants++
			leasedHere += l.AreaM2
			m.PassingRent += rent
			weightedTerm += rent * l.TermRemainingYears
		}
		gla := a.LogisticsAsset.AreaM2
		if gla == 0 {
			gla = leasedHere
		}
		m.GLASqm += gla
		leased += leasedHere
	}
	if m.GLASqm > 0 {
		m.Occupancy = math.Min(leased/m.GLASqm, 1)
	}
	if m.PassingRent > 0 {
		m.WAULTYears = weightedTerm / m.PassingRent
	}
	return m
}
