package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deal-associate/server/internal/api"
	logx "github.com/deal-associate/server/pkg/logger"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides HTTP_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, cleanup, err := buildRunner(ctx, appCfg)
	defer cleanup()
	if err != nil {
		return err
	}

	httpCfg := appCfg.HTTP
	if serveAddr != "" {
		httpCfg.Addr = serveAddr
	}
	if err := api.New(httpCfg, runner).ListenAndServe(ctx); err != nil {
		return err
	}
	logx.Info().Msg("Server stopped")
	return nil
}
