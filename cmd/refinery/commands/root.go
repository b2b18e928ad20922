// Package commands implements the refinery CLI.
package commands

import (
	"database/sql"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/refinery/config"
	"github.com/teranos/refinery/db"
	"github.com/teranos/refinery/errors"
	"github.com/teranos/refinery/logger"
)

var (
	configFlag string
	jsonFlag   bool
	debugFlag  bool

	// log is built once in PersistentPreRunE and passed explicitly into
	// every component a command constructs.
	log *zap.SugaredLogger
	cfg *config.Config
)

// RootCmd is the refinery entry point.
var RootCmd = &cobra.Command{
	Use:   "refinery",
	Short: "Iterative document-refinement engine",
	Long: `refinery — iterative document tailoring and refinement.

refinery turns source material into documents tailored to target specs:
it matches material against targets, drafts, verifies claims, polishes to
a quality threshold, prunes to length, and merges writing guidelines.

Examples:
  refinery run --source source.md --targets targets/   # full pipeline
  refinery merge --principles principles.md            # merge guidelines
  refinery db migrate                                  # apply schema migrations
  refinery db stats                                    # show run statistics`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		log, err = logger.New(logger.Options{JSONOutput: jsonFlag, Debug: debugFlag})
		if err != nil {
			return errors.Wrap(err, "initialize logger")
		}

		if configFlag != "" {
			cfg, err = config.LoadFromFile(configFlag)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return errors.Wrap(err, "load configuration")
		}
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a TOML config file")
	RootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Emit JSON logs instead of console output")
	RootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")

	RootCmd.AddCommand(RunCmd)
	RootCmd.AddCommand(MergeCmd)
	RootCmd.AddCommand(DbCmd)
	RootCmd.AddCommand(VersionCmd)
}

// openDatabase opens and migrates the configured SQLite database.
func openDatabase() (*sql.DB, error) {
	database, err := db.Open(cfg.Database.Path, log)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database, log); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}
