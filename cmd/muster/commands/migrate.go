package commands

import (
	"context"

	"github.com/dyluth/muster/internal/migrate"
	"github.com/dyluth/muster/internal/printer"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run one-shot data migrations",
}

var migrateEnforcementCmd = &cobra.Command{
	Use:   "enforcement-status",
	Short: "Mark rule enforcements with a failure reason as failed",
	Long: `Backfill the status of rule enforcements recorded before enforcements
carried a status. An enforcement with a failure reason and no status (or
status succeeded) is set to failed.

Safe to re-run, and safe while writers are active.`,
	Args: cobra.NoArgs,
	RunE: runMigrateEnforcement,
}

func init() {
	migrateCmd.AddCommand(migrateEnforcementCmd)
	rootCmd.AddCommand(migrateCmd)
}

func runMigrateEnforcement(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	printer.Step("Backfilling rule enforcement status for '%s'...\n", s.instanceName)
	res, err := migrate.BackfillEnforcementStatus(ctx, s.ledger, s.instanceName)
	if err != nil {
		return err
	}

	printer.Success("Scanned %d, updated %d\n", res.Scanned, res.Updated)
	if res.Adopted > 0 {
		printer.Info("Adopted %d records written without a revision\n", res.Adopted)
	}
	if res.Skipped > 0 {
		printer.Warning("%d enforcements have an unreadable revision and were skipped\n", res.Skipped)
	}
	if res.Conflicts > 0 {
		printer.Warning("%d enforcements kept changing and were skipped; re-run to retry\n", res.Conflicts)
	}
	return nil
}
