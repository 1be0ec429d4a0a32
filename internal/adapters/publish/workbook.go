package publish

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/deal-associate/server/internal/underwriting"
)

const (
	sheetAssumptions = "Assumptions"
	sheetCashFlow    = "CashFlow"
	sheetReturns     = "Returns"
)

type namedCell struct {
	name  string // defined name, empty for unnamed rows
	label string
	value float64
}

// WriteWorkbook writes the model workbook: the assumptions and returns as
// named ranges plus the yearly cash-flow table.
func WriteWorkbook(path string, a underwriting.Assumptions, p underwriting.Projection) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetAssumptions); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	params := a.Params()
	inputs := []namedCell{
		{"Market_Rent", "Market Rent (EUR/m2/yr)", params.MarketRent},
		{"Entry_Yield", "Entry Yield", params.EntryYield},
		{"Exit_Yield", "Exit Yield", params.ExitYield},
		{"Rent_Growth", "Rent Growth", params.RentGrowth},
		{"LTV", "LTV", params.LTV},
		{"Interest_Rate", "Interest Rate", params.InterestRate},
		{"", "Opex Ratio", params.OpexRatio},
		{"", "Capex (EUR/yr)", params.Capex},
		{"", "Area (m2)", params.Area},
		{"", "Purchaser's Costs", params.PurchasersCosts},
	}
	if err := writeNamed(f, sheetAssumptions, "Assumption", inputs); err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetCashFlow); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetCashFlow, "A1", &[]any{"Year", "Rent", "NOI", "Cash Flow"}); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheetCashFlow, "A2", &[]any{0, nil, nil, -p.Equity}); err != nil {
		return err
	}
	for i, y := range p.Years {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		if err := f.SetSheetRow(sheetCashFlow, cell, &[]any{y.Year, y.Rent, y.NOI, y.CashFlow}); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(sheetReturns); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	returns := []namedCell{
		{"", "Purchase Price", p.PurchasePrice},
		{"", "Loan", p.Loan},
		{"", "Equity", p.Equity},
		{"", "Exit Value", p.ExitValue},
	}
	if err := writeNamed(f, sheetReturns, "Metric", returns); err != nil {
		return err
	}
	metrics := []struct {
		name, label string
		m           underwriting.Metric
	}{
		{"IRR", "Levered IRR", p.IRR},
		{"Equity_Multiple", "Equity Multiple", p.EquityMultiple},
		{"Yield_On_Cost", "Yield on Cost", p.YieldOnCost},
	}
	for i, m := range metrics {
		row := len(returns) + 2 + i
		var v any = "n/a"
		if m.m.Available {
			v = m.m.Value
		}
		if err := setNamedRow(f, sheetReturns, row, m.name, m.label, v); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeNamed(f *excelize.File, sheet, header string, cells []namedCell) error {
	if err := f.SetSheetRow(sheet, "A1", &[]any{header, "Value"}); err != nil {
		return err
	}
	for i, c := range cells {
		if err := setNamedRow(f, sheet, i+2, c.name, c.label, c.value); err != nil {
			return err
		}
	}
	return nil
}

func setNamedRow(f *excelize.File, sheet string, row int, name, label string, value any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &[]any{label, value}); err != nil {
		return err
	}
	if name == "" {
		return nil
	}
	return f.SetDefinedName(&excelize.DefinedName{
		Name:     name,
		RefersTo: fmt.Sprintf("%s!$B$%d", sheet, row),
	})
}
