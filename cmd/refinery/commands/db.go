package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/refinery/store"
	"github.com/teranos/refinery/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the refinery database",
	Long: sym.DB + ` db — database operations.

Examples:
  refinery db migrate    # Apply pending schema migrations
  refinery db stats      # Show run, version, and checkpoint counts`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()
		fmt.Printf("%s Database migrated: %s\n", sym.DB, cfg.Database.Path)
		return nil
	},
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbStats(cmd *cobra.Command, args []string) error {
	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	var totalRuns, totalVersions, totalCheckpoints int
	if err := database.QueryRow("SELECT COUNT(*) FROM runs").Scan(&totalRuns); err != nil {
		return err
	}
	if err := database.QueryRow("SELECT COUNT(*) FROM document_versions").Scan(&totalVersions); err != nil {
		return err
	}
	if err := database.QueryRow("SELECT COUNT(*) FROM checkpoints").Scan(&totalCheckpoints); err != nil {
		return err
	}

	fmt.Printf("%s Database Statistics\n", sym.DB)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path:     %s\n", cfg.Database.Path)
	fmt.Printf("Total Runs:        %d\n", totalRuns)
	fmt.Printf("Document Versions: %d\n", totalVersions)
	fmt.Printf("Checkpoints:       %d\n", totalCheckpoints)
	fmt.Println()

	runs, err := store.ListRuns(cmd.Context(), database)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet")
		return nil
	}

	fmt.Printf("Recent Runs:\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	limit := 10
	for i, r := range runs {
		if i >= limit {
			break
		}
		checkpoints, err := store.NewCheckpointStore(database, r.ID, nil).List(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("  [%s] %s  %s%s  (%d checkpoints)\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.ID,
			sym.ForStage(r.Stage),
			r.Stage,
			len(checkpoints),
		)
	}
	return nil
}
