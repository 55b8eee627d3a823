package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/simon020286/go-datahub/cmd/util"
	"github.com/simon020286/go-datahub/logger"
	"github.com/simon020286/go-datahub/store/sqlite"
)

const (
	versionFlag          = "version"
	timeoutFlag          = "timeout"
	verboseMigrationFlag = "verbose"
)

func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database schema migrations needed by the sqlite store",
		Long:  `The migrate command is used to migrate the database schema of the sqlite document store.`,
		RunE:  runMigration,
		Args:  cobra.NoArgs,
	}

	flags := cmd.Flags()
	flags.Uint(versionFlag, 0, "the version to migrate to (if omitted the latest schema will be used)")
	flags.Duration(timeoutFlag, 1*time.Minute, "a timeout for the time it takes the migrate process to connect to the database")
	flags.Bool(verboseMigrationFlag, false, "enable verbose migration logs (default false)")

	cmd.PreRun = func(_ *cobra.Command, _ []string) {
		util.MustBindPFlag(versionFlag, flags.Lookup(versionFlag))
		util.MustBindPFlag(timeoutFlag, flags.Lookup(timeoutFlag))
		util.MustBindPFlag(verboseMigrationFlag, flags.Lookup(verboseMigrationFlag))
	}

	return cmd
}

func runMigration(cmd *cobra.Command, _ []string) error {
	settings, err := readSettings()
	if err != nil {
		return err
	}

	switch settings.Store.Engine {
	case "memory", "mongo":
		fmt.Fprintf(cmd.OutOrStdout(), "no migrations to run for `%s` store\n", settings.Store.Engine)
		return nil
	case "sqlite":
	default:
		return fmt.Errorf("unknown store engine type: %s", settings.Store.Engine)
	}

	log, err := logger.NewLogger(settings.Log.Format, settings.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	err = sqlite.Migrate(cmd.Context(), sqlite.MigrationConfig{
		URI:           settings.Store.URI,
		TargetVersion: viper.GetUint(versionFlag),
		Timeout:       viper.GetDuration(timeoutFlag),
		Verbose:       viper.GetBool(verboseMigrationFlag),
		Logger:        log,
	})
	if err != nil {
		return err
	}

	version, err := sqlite.CurrentVersion(settings.Store.URI)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "migration done, schema version %d\n", version)
	return nil
}
