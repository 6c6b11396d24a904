package commands

import (
	"github.com/spf13/cobra"

	"github.com/marcus/opsdesk/internal/engine"
	"github.com/marcus/opsdesk/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the engine as MCP tools over stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout exposing
next_actions, optimize_route, delay_risk, redistribution,
money_opportunity and recalculate_priorities for the configured user.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if e.user == "" {
		return userError(engine.ErrUnauthorized)
	}
	return mcp.NewServer(e.svc, e.user, e.loc, Version).Run(cmd.Context())
}
