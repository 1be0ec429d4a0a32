package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/deal-associate/server/internal/underwriting"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Run the ten-year cash-flow model on a set of assumptions",
	Long: `project runs the underwriting engine without a session. Every assumption
starts at the engine default and can be overridden by flag; percentages may
be given as decimals (0.045) or whole numbers (4.5).`,
	RunE: runProject,
}

func init() {
	addAssumptionFlags(projectCmd.Flags())
	rootCmd.AddCommand(projectCmd)
}

// addAssumptionFlags registers one flag per default assumption key, e.g.
// --entry-yield for entry_yield.
func addAssumptionFlags(fs *pflag.FlagSet) {
	defaults := underwriting.DefaultAssumptions()
	for _, k := range defaults.Keys() {
		fs.Float64(flagName(k), defaults[k], "assumption "+k)
	}
}

// assumptionsFromFlags returns the defaults overlaid with explicitly set flags.
func assumptionsFromFlags(fs *pflag.FlagSet) (underwriting.Assumptions, error) {
	a := underwriting.DefaultAssumptions()
	for _, k := range a.Keys() {
		name := flagName(k)
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetFloat64(name)
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, fmt.Errorf("--%s must not be negative", name)
		}
		a[k] = v
	}
	return a, nil
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

func projectOptions() ([]underwriting.ProjectOption, error) {
	mode, err := underwriting.ParseEquityMultipleMode(appCfg.Underwriting.EquityMultiple)
	if err != nil {
		return nil, err
	}
	return []underwriting.ProjectOption{
		underwriting.WithEquityMultipleMode(mode),
		underwriting.WithHurdle(appCfg.Underwriting.HurdleIRR),
	}, nil
}

func runProject(cmd *cobra.Command, _ []string) error {
	a, err := assumptionsFromFlags(cmd.Flags())
	if err != nil {
		return err
	}
	opts, err := projectOptions()
	if err != nil {
		return err
	}
	printProjection(cmd.OutOrStdout(), underwriting.Project(a, opts...))
	return nil
}

func printProjection(out io.Writer, p underwriting.Projection) {
	fmt.Fprintf(out, "Purchase price  EUR %s\n", humanize.Commaf(underwriting.Round2(p.PurchasePrice)))
	fmt.Fprintf(out, "Loan            EUR %s\n", humanize.Commaf(underwriting.Round2(p.Loan)))
	fmt.Fprintf(out, "Equity          EUR %s\n\n", humanize.Commaf(underwriting.Round2(p.Equity)))

	fmt.Fprintf(out, "%-6s %16s %16s %16s\n", "Year", "Rent", "NOI", "Cash flow")
	for _, y := range p.Years {
		fmt.Fprintf(out, "%-6d %16s %16s %16s\n", y.Year,
			humanize.Comma(int64(y.Rent)), humanize.Comma(int64(y.NOI)), humanize.Comma(int64(y.CashFlow)))
	}
	fmt.Fprintf(out, "\nExit value      EUR %s\n", humanize.Commaf(underwriting.Round2(p.ExitValue)))
	fmt.Fprintf(out, "Levered IRR     %s\n", p.IRR.Percent())
	fmt.Fprintf(out, "Equity multiple %s\n", p.EquityMultiple.Multiple())
	fmt.Fprintf(out, "Yield on cost   %s\n", p.YieldOnCost.Percent())
}
