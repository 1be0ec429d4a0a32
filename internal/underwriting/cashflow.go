package underwriting

import (
	"fmt"
	"math"
	"strings"
)

const (
	// ProjectionYears is the hold period of every projection.
	ProjectionYears = 10
	// MinYield replaces zero or near-zero yields so valuations stay finite.
	MinYield = 0.0001
)

// EquityMultipleMode selects how the equity multiple is derived from the
// cash-flow stream.
type EquityMultipleMode string

const (
	// EquityMultipleNet is sum(CF1..CF10 incl. sale proceeds) / equity.
	EquityMultipleNet EquityMultipleMode = "net"
	// EquityMultipleGross adds the equity back before dividing, reproducing
	// the legacy model outputs.
	EquityMultipleGross EquityMultipleMode = "gross"
)

// ParseEquityMultipleMode validates a configured mode.
func ParseEquityMultipleMode(s string) (EquityMultipleMode, error) {
	switch EquityMultipleMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", EquityMultipleNet:
		return EquityMultipleNet, nil
	case EquityMultipleGross:
		return EquityMultipleGross, nil
	default:
		return "", fmt.Errorf("unknown equity multiple mode %q", s)
	}
}

// Metrics are the headline return metrics of a projection.
type Metrics struct {
	IRR            Metric `json:"irr"`
	EquityMultiple Metric `json:"equity_multiple"`
	YieldOnCost    Metric `json:"yield_on_cost"`
}

// YearFlow is one projected year.
type YearFlow struct {
	Year     int     `json:"year"`
	Rent     float64 `json:"rent"`
	NOI      float64 `json:"noi"`
	CashFlow float64 `json:"cash_flow"`
}

// Projection is the full ten-year leveraged projection for one parameter set.
type Projection struct {
	Params          Params     `json:"params"`
	PurchasePrice   float64    `json:"purchase_price"`
	Loan            float64    `json:"loan"`
	Equity          float64    `json:"equity"`
	AnnualInterest  float64    `json:"annual_interest"`
	Years           []YearFlow `json:"years"`
	ExitValue       float64    `json:"exit_value"`
	NetSaleProceeds float64    `json:"net_sale_proceeds"`
	Metrics
}

// Flows returns the equity cash-flow stream [-equity, CF1..CF10].
func (p Projection) Flows() []float64 {
	out := make([]float64, 0, len(p.Years)+1)
	out = append(out, -p.Equity)
	for _, y := range p.Years {
		out = append(out, y.CashFlow)
	}
	return out
}

type projectOptions struct {
	emMode EquityMultipleMode
	hurdle float64
}

// ProjectOption customises projections and scenario comparisons.
type ProjectOption func(*projectOptions)

// WithEquityMultipleMode selects the equity multiple formula.
func WithEquityMultipleMode(m EquityMultipleMode) ProjectOption {
	return func(o *projectOptions) {
		if m != "" {
			o.emMode = m
		}
	}
}

// WithHurdle overrides the IRR hurdle used to band scenarios.
func WithHurdle(rate float64) ProjectOption {
	return func(o *projectOptions) {
		if rate > 0 {
			o.hurdle = rate
		}
	}
}

func newProjectOptions(opts []ProjectOption) projectOptions {
	o := projectOptions{emMode: EquityMultipleNet, hurdle: HurdleIRR}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func floorYield(y float64) float64 {
	if y <= MinYield {
		return MinYield
	}
	return y
}

// Project runs the cash-flow engine over raw assumptions.
func Project(a Assumptions, opts ...ProjectOption) Projection {
	return ProjectParams(a.Params(), opts...)
}

// ProjectParams runs the cash-flow engine over a canonical parameter set.
func ProjectParams(p Params, opts ...ProjectOption) Projection {
	o := newProjectOptions(opts)

	entryYield := floorYield(p.EntryYield)
	exitYield := floorYield(p.ExitYield)

	income := p.MarketRent * p.Area
	price := income / entryYield * (1 + p.PurchasersCosts)
	loan := price * p.LTV
	equity := price - loan + p.Capex
	interest := loan * p.InterestRate

	proj := Projection{
		Params:         p,
		PurchasePrice:  price,
		Loan:           loan,
		Equity:         equity,
		AnnualInterest: interest,
		Years:          make([]YearFlow, 0, ProjectionYears),
	}

	rent := income
	for year := 1; year <= ProjectionYears; year++ {
		if year > 1 {
			rent *= 1 + p.RentGrowth
		}
		noi := rent*(1-p.OpexRatio) - p.Capex
		proj.Years = append(proj.Years, YearFlow{
			Year:     year,
			Rent:     rent,
			NOI:      noi,
			CashFlow: noi - interest,
		})
	}

	forwardNOI := rent*(1+p.RentGrowth)*(1-p.OpexRatio) - p.Capex
	proj.ExitValue = forwardNOI / exitYield
	proj.NetSaleProceeds = proj.ExitValue - loan
	proj.Years[ProjectionYears-1].CashFlow += proj.NetSaleProceeds

	proj.Metrics = metricsFor(proj, o)
	return proj
}

func metricsFor(p Projection, o projectOptions) Metrics {
	var m Metrics
	if p.PurchasePrice > 0 {
		m.YieldOnCost = Of(p.Years[0].NOI / p.PurchasePrice)
	}
	if p.Equity <= 0 {
		return m
	}

	if r, ok := IRR(p.Flows()); ok {
		m.IRR = Of(r)
	}

	var total float64
	for _, y := range p.Years {
		total += y.CashFlow
	}
	switch o.emMode {
	case EquityMultipleGross:
		m.EquityMultiple = Of((total + p.Equity) / p.Equity)
	default:
		m.EquityMultiple = Of(total / p.Equity)
	}
	return m
}

// Round2 rounds to two decimals for presentation.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
