package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deal-associate/server/internal/config"
	logx "github.com/deal-associate/server/pkg/logger"
)

var (
	envFile  string
	logLevel string

	appCfg *config.AppConfig

	appVersion string
	appCommit  string
	appDate    string
)

var rootCmd = &cobra.Command{
	Use:   "dealagent",
	Short: "Conversational underwriting associate for real estate deals",
	Long: `dealagent walks an acquisition deal from raw data room files to an
investment committee deck: ingestion, comparables, assumptions, the
ten-year cash-flow model, scenarios and the deck, one chat turn at a time.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initConfig()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
}

func initConfig() error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logx.Init(logx.LoggerOpts{
		Environment: cfg.Env(),
		Service:     "dealagent",
		Level:       cfg.LogLevel,
	})
	appCfg = cfg
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "dealagent %s (commit %s, built %s)\n", appVersion, appCommit, appDate)
	},
}
