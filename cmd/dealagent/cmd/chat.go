package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/deal-associate/server/internal/agent/model"
)

var (
	chatSession string
	chatLogs    bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the agent from the terminal",
	Long: `chat runs an interactive session against the same graph the API serves.
Type /reset to start over and /quit (or Ctrl-D) to leave.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", "session id to resume (default: new session)")
	chatCmd.Flags().BoolVar(&chatLogs, "show-logs", false, "print system processing logs")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	runner, cleanup, err := buildRunner(ctx, appCfg)
	defer cleanup()
	if err != nil {
		return err
	}

	sessionID := chatSession
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %s. Describe the deal or ask me to start the underwriting.\n", sessionID)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			if err := runner.Reset(ctx, sessionID); err != nil {
				fmt.Fprintf(out, "reset failed: %v\n", err)
				continue
			}
			fmt.Fprintln(out, "Session cleared.")
			continue
		}

		res, err := runner.HandleTurn(ctx, sessionID, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		printTurn(out, res, chatLogs)
	}
}

func printTurn(out io.Writer, res *model.TurnResult, logs bool) {
	for _, m := range res.Messages {
		switch m.Role {
		case model.RoleSystemLog:
			if logs {
				fmt.Fprintf(out, "\n[%s]\n", m.Text)
			}
		default:
			fmt.Fprintf(out, "\n%s\n", m.Text)
		}
	}
}
