package underwriting

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{in: 4.5, want: 0.045},
		{in: 0.045, want: 0.045},
		{in: 1, want: 1},
		{in: 60, want: 0.6},
		{in: 0, want: 0},
		{in: -2, want: -2},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Normalize(tt.in), 1e-12, "Normalize(%v)", tt.in)
	}
}

func TestParams_DefaultsAndNormalisation(t *testing.T) {
	p := Assumptions{KeyEntryYield: 5, KeyLTV: 55, KeyERV: 90}.Params()

	assert.InDelta(t, 0.05, p.EntryYield, 1e-12)
	assert.InDelta(t, 0.55, p.LTV, 1e-12)
	assert.Equal(t, 90.0, p.MarketRent)
	assert.Equal(t, DefaultExitYield, p.ExitYield)
	assert.Equal(t, DefaultArea, p.Area)
	assert.Equal(t, DefaultPurchasersCosts, p.PurchasersCosts)
}

func TestProject_DefaultAssumptions(t *testing.T) {
	proj := Project(Assumptions{})

	assert.InDelta(t, 18_888_888.89, proj.PurchasePrice, 0.01)
	assert.InDelta(t, proj.PurchasePrice*0.6, proj.Loan, 1e-6)
	assert.InDelta(t, proj.PurchasePrice-proj.Loan, proj.Equity, 1e-6)
	require.Len(t, proj.Years, ProjectionYears)

	assert.InDelta(t, 765_000, proj.Years[0].NOI, 1e-6)
	assert.InDelta(t, 765_000*1.03, proj.Years[1].NOI, 1e-6)

	require.True(t, proj.IRR.Available)
	assert.Greater(t, proj.IRR.Value, 0.0)
	assert.Less(t, proj.IRR.Value, 1.0)
	assert.InDelta(t, 0.0, NPV(proj.IRR.Value, proj.Flows()), 1e-3)

	require.True(t, proj.YieldOnCost.Available)
	assert.InDelta(t, 765_000/proj.PurchasePrice, proj.YieldOnCost.Value, 1e-12)
}

func TestProject_ExitValueUsesForwardNOI(t *testing.T) {
	proj := Project(Assumptions{})

	rent10 := proj.Years[9].Rent
	forward := rent10 * 1.03 * 0.9
	assert.InDelta(t, forward/0.0475, proj.ExitValue, 1e-6)
	assert.InDelta(t, proj.ExitValue-proj.Loan, proj.NetSaleProceeds, 1e-6)
	assert.InDelta(t, proj.Years[9].NOI-proj.AnnualInterest+proj.NetSaleProceeds, proj.Years[9].CashFlow, 1e-6)
}

func TestProject_PurchasersCostsAndCapex(t *testing.T) {
	proj := Project(Assumptions{KeyPurchasersCosts: 6.8, KeyCapex: 50_000})

	assert.InDelta(t, 850_000/0.045*1.068, proj.PurchasePrice, 1e-3)
	assert.InDelta(t, proj.PurchasePrice*0.4+50_000, proj.Equity, 1e-3)
	assert.InDelta(t, 765_000-50_000, proj.Years[0].NOI, 1e-6)
}

func TestProject_NonPositiveEquity(t *testing.T) {
	proj := Project(Assumptions{KeyLTV: 1.0})

	assert.InDelta(t, 0.0, proj.Equity, 1e-6)
	assert.False(t, proj.IRR.Available)
	assert.False(t, proj.EquityMultiple.Available)
	assert.True(t, proj.YieldOnCost.Available)
	assert.Equal(t, "n/a", proj.IRR.Percent())
}

func TestProject_ZeroYieldUsesEpsilon(t *testing.T) {
	proj := Project(Assumptions{KeyEntryYield: 0, KeyExitYield: 0})

	assert.InDelta(t, 850_000/MinYield, proj.PurchasePrice, 1e-3)
	assert.False(t, math.IsNaN(proj.ExitValue))
}

func TestProject_EquityMultipleModes(t *testing.T) {
	net := Project(Assumptions{})
	gross := Project(Assumptions{}, WithEquityMultipleMode(EquityMultipleGross))

	require.True(t, net.EquityMultiple.Available)
	require.True(t, gross.EquityMultiple.Available)
	assert.InDelta(t, net.EquityMultiple.Value+1, gross.EquityMultiple.Value, 1e-9)

	var total float64
	for _, y := range net.Years {
		total += y.CashFlow
	}
	assert.InDelta(t, total/net.Equity, net.EquityMultiple.Value, 1e-12)
}

func TestParseEquityMultipleMode(t *testing.T) {
	m, err := ParseEquityMultipleMode("")
	require.NoError(t, err)
	assert.Equal(t, EquityMultipleNet, m)

	m, err = ParseEquityMultipleMode("GROSS")
	require.NoError(t, err)
	assert.Equal(t, EquityMultipleGross, m)

	_, err = ParseEquityMultipleMode("levered")
	assert.Error(t, err)
}

func TestIRR(t *testing.T) {
	r, ok := IRR([]float64{-100, 110})
	require.True(t, ok)
	assert.InDelta(t, 0.10, r, 1e-9)

	r, ok = IRR([]float64{-100, 0, 121})
	require.True(t, ok)
	assert.InDelta(t, 0.10, r, 1e-9)

	_, ok = IRR([]float64{100, 100})
	assert.False(t, ok)

	_, ok = IRR([]float64{-100})
	assert.False(t, ok)
}

func TestMetricJSON(t *testing.T) {
	b, err := json.Marshal(Metrics{IRR: Of(0.12), EquityMultiple: NotAvailable})
	require.NoError(t, err)
	assert.JSONEq(t, `{"irr":0.12,"equity_multiple":null,"yield_on_cost":null}`, string(b))

	var m Metrics
	require.NoError(t, json.Unmarshal(b, &m))
	assert.True(t, m.IRR.Available)
	assert.False(t, m.EquityMultiple.Available)
}
