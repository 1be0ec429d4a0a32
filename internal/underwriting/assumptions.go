package underwriting

import (
	"maps"
	"sort"
)

// Assumption keys understood by the cash-flow engine and the update parser.
const (
	KeyERV                = "erv"
	KeyEntryYield         = "entry_yield"
	KeyExitYield          = "exit_yield"
	KeyRentGrowth         = "rent_growth"
	KeyLTV                = "ltv"
	KeyInterestRate       = "interest_rate"
	KeyOpexRatio          = "opex_ratio"
	KeyCapex              = "capex"
	KeyArea               = "area"
	KeyPurchasersCosts    = "purchasers_costs"
	KeyDiscountRate       = "discount_rate"
	KeyDowntimeMonths     = "downtime_months"
	KeyRenewalProbability = "renewal_probability"
)

// Engine defaults applied when an assumption is missing.
const (
	DefaultERV             = 85.0
	DefaultEntryYield      = 0.045
	DefaultExitYield       = 0.0475
	DefaultRentGrowth      = 0.03
	DefaultLTV             = 0.60
	DefaultInterestRate    = 0.04
	DefaultOpexRatio       = 0.10
	DefaultCapex           = 0.0
	DefaultArea            = 10000.0
	DefaultPurchasersCosts = 0.0
)

// Informational defaults carried on a proposal but not consumed by the engine.
const (
	DefaultDiscountRate       = 0.065
	DefaultDowntimeMonths     = 9.0
	DefaultRenewalProbability = 0.65
)

// Assumptions is the named set of numeric underwriting assumptions for a deal.
// Percentage-like values may be stored either as decimals (0.045) or as whole
// percentages (4.5); Params normalises them.
type Assumptions map[string]float64

// Params is the canonical, fully defaulted parameter set the engine runs on.
// All percentage-like fields are decimals.
type Params struct {
	MarketRent      float64 `json:"market_rent"`
	EntryYield      float64 `json:"entry_yield"`
	ExitYield       float64 `json:"exit_yield"`
	RentGrowth      float64 `json:"rent_growth"`
	LTV             float64 `json:"ltv"`
	InterestRate    float64 `json:"interest_rate"`
	OpexRatio       float64 `json:"opex_ratio"`
	Capex           float64 `json:"capex"`
	Area            float64 `json:"area"`
	PurchasersCosts float64 `json:"purchasers_costs"`
}

// Normalize converts a percentage-like input to a decimal: values above 1 are
// read as whole percentages and divided by 100, everything else is returned
// unchanged. A genuine 150% LTV therefore cannot be expressed; callers that
// need it must pass 1.5 as 150.
func Normalize(v float64) float64 {
	if v > 1 {
		return v / 100
	}
	return v
}

// DefaultAssumptions returns the base proposal used before any user edits.
func DefaultAssumptions() Assumptions {
	return Assumptions{
		KeyERV:                DefaultERV,
		KeyEntryYield:         DefaultEntryYield,
		KeyExitYield:          DefaultExitYield,
		KeyRentGrowth:         DefaultRentGrowth,
		KeyLTV:                DefaultLTV,
		KeyInterestRate:       DefaultInterestRate,
		KeyOpexRatio:          DefaultOpexRatio,
		KeyCapex:              DefaultCapex,
		KeyArea:               DefaultArea,
		KeyPurchasersCosts:    DefaultPurchasersCosts,
		KeyDiscountRate:       DefaultDiscountRate,
		KeyDowntimeMonths:     DefaultDowntimeMonths,
		KeyRenewalProbability: DefaultRenewalProbability,
	}
}

// Clone returns an independent copy.
func (a Assumptions) Clone() Assumptions {
	if a == nil {
		return Assumptions{}
	}
	return maps.Clone(a)
}

// Keys returns the assumption keys in stable order.
func (a Assumptions) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (a Assumptions) value(key string, def float64) float64 {
	if v, ok := a[key]; ok {
		return v
	}
	return def
}

// Params canonicalises the assumptions into the engine parameter set.
func (a Assumptions) Params() Params {
	return Params{
		MarketRent:      a.value(KeyERV, DefaultERV),
		EntryYield:      Normalize(a.value(KeyEntryYield, DefaultEntryYield)),
		ExitYield:       Normalize(a.value(KeyExitYield, DefaultExitYield)),
		RentGrowth:      Normalize(a.value(KeyRentGrowth, DefaultRentGrowth)),
		LTV:             Normalize(a.value(KeyLTV, DefaultLTV)),
		InterestRate:    Normalize(a.value(KeyInterestRate, DefaultInterestRate)),
		OpexRatio:       Normalize(a.value(KeyOpexRatio, DefaultOpexRatio)),
		Capex:           a.value(KeyCapex, DefaultCapex),
		Area:            a.value(KeyArea, DefaultArea),
		PurchasersCosts: Normalize(a.value(KeyPurchasersCosts, DefaultPurchasersCosts)),
	}
}

// Merge writes the engine parameters back over a copy of a, keeping any
// informational keys already present.
func (p Params) Merge(a Assumptions) Assumptions {
	out := a.Clone()
	out[KeyERV] = p.MarketRent
	out[KeyEntryYield] = p.EntryYield
	out[KeyExitYield] = p.ExitYield
	out[KeyRentGrowth] = p.RentGrowth
	out[KeyLTV] = p.LTV
	out[KeyInterestRate] = p.InterestRate
	out[KeyOpexRatio] = p.OpexRatio
	out[KeyCapex] = p.Capex
	out[KeyArea] = p.Area
	out[KeyPurchasersCosts] = p.PurchasersCosts
	return out
}
