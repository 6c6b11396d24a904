package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marcus/opsdesk/internal/audit"
)

var importCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import tasks, reminders and clients from YAML",
	Long: `Import a YAML fixture of clients, tasks and reminders in one
transaction. The fixture's user is used unless --user is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	override, _ := cmd.Flags().GetString("user")
	res, err := e.store.Import(cmd.Context(), f, override)
	if err != nil {
		return fmt.Errorf("import %s: %w", args[0], err)
	}

	if err := e.audit.Record(cmd.Context(), audit.Event{
		Type:     audit.EventFixtureImported,
		User:     override,
		Count:    res.Tasks,
		Metadata: map[string]string{"file": args[0]},
	}); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}

	if e.json {
		return printJSON(e.out, res)
	}
	fmt.Fprintln(e.out, e.styles.StatusOK.Render(fmt.Sprintf("Imported %d clients, %d tasks, %d reminders",
		res.Clients, res.Tasks, res.Reminders)))
	return nil
}
