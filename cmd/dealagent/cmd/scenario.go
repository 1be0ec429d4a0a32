package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/deal-associate/server/internal/underwriting"
)

var (
	scenarioArchetype  string
	scenarioRentChange float64
	scenarioExitBps    float64
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Compare a scenario against the base case",
	Long: `scenario projects the base case from the assumption flags, applies an
archetype (downside, upside, stress, custom) or explicit adjustments and
prints the comparison. Explicit adjustments override the archetype shock.`,
	RunE: runScenario,
}

func init() {
	scenarioCmd.Flags().StringVar(&scenarioArchetype, "archetype", string(underwriting.ArchetypeDownside),
		"downside, upside, stress or custom")
	scenarioCmd.Flags().Float64Var(&scenarioRentChange, "rent-change", 0,
		"explicit ERV change as a fraction (-0.05 is -5%)")
	scenarioCmd.Flags().Float64Var(&scenarioExitBps, "exit-yield-bps", 0,
		"explicit exit yield shift in basis points")
	addAssumptionFlags(scenarioCmd.Flags())
	rootCmd.AddCommand(scenarioCmd)
}

func parseArchetype(s string) (underwriting.Archetype, error) {
	switch a := underwriting.Archetype(s); a {
	case underwriting.ArchetypeDownside, underwriting.ArchetypeUpside,
		underwriting.ArchetypeStress, underwriting.ArchetypeCustom:
		return a, nil
	}
	return "", fmt.Errorf("unknown archetype %q", s)
}

func runScenario(cmd *cobra.Command, _ []string) error {
	archetype, err := parseArchetype(scenarioArchetype)
	if err != nil {
		return err
	}
	base, err := assumptionsFromFlags(cmd.Flags())
	if err != nil {
		return err
	}
	opts, err := projectOptions()
	if err != nil {
		return err
	}

	baseline := underwriting.Project(base, opts...)
	out := underwriting.ApplyScenario(underwriting.ScenarioDescriptor{
		Archetype: archetype,
		Explicit:  underwriting.Adjustment{RentChange: scenarioRentChange, ExitYieldBps: scenarioExitBps},
	}, base, baseline.Metrics, opts...)

	printOutcome(cmd.OutOrStdout(), out)
	return nil
}

func printOutcome(w io.Writer, o underwriting.ScenarioOutcome) {
	c := o.Comparison
	delta := "n/a"
	if c.IRRDeltaBps.Available {
		delta = fmt.Sprintf("%+.0f bps", c.IRRDeltaBps.Value)
	}
	fmt.Fprintf(w, "%s\n", o.Label)
	fmt.Fprintf(w, "Applied:         %s\n", o.Applied)
	fmt.Fprintf(w, "IRR:             %s -> %s (%s)\n", c.BaseIRR.Percent(), c.ScenarioIRR.Percent(), delta)
	fmt.Fprintf(w, "Equity multiple: %s -> %s\n", c.BaseEM.Multiple(), c.ScenarioEM.Multiple())
	fmt.Fprintf(w, "Read:            %s\n", c.Band.Describe())
}
