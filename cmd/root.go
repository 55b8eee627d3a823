// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/simon020286/go-datahub/cmd/util"
)

const (
	logFormatFlag        = "log-format"
	logFormatConf        = "log.format"
	logLevelFlag         = "log-level"
	logLevelConf         = "log.level"
	storeEngineFlag      = "store-engine"
	storeEngineConf      = "store.engine"
	storeURIFlag         = "store-uri"
	storeURIConf         = "store.uri"
	storeDatabaseFlag    = "store-database"
	storeDatabaseConf    = "store.database"
	storeTimeoutFlag     = "store-connect-timeout"
	storeTimeoutConf     = "store.connectTimeout"
	flowsDirFlag         = "flows-dir"
	flowsDirConf         = "flows.dir"
	batchSizeConf        = "run.batchSize"
	threadCountConf      = "run.threadCount"
	runTraceConf         = "run.runTrace"
	metricsEnabledConf   = "metrics.enabled"
	metricsAddrConf      = "metrics.addr"
	envPrefix            = "DATAHUB"
	configName           = "datahub"
	defaultConfigDirName = ".datahub"
)

// settingKeys can all be set through DATAHUB_* environment variables
var settingKeys = []string{
	logFormatConf, logLevelConf,
	storeEngineConf, storeURIConf, storeDatabaseConf, storeTimeoutConf,
	flowsDirConf,
	batchSizeConf, threadCountConf, runTraceConf,
	metricsEnabledConf, metricsAddrConf,
}

// NewRootCommand enables all children commands to read flags from CLI flags, environment variables prefixed with DATAHUB, or datahub.yaml (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName(configName)
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/datahub", "$HOME/" + defaultConfigDirName, "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	for _, key := range settingKeys {
		util.MustBindEnv(key)
	}

	cmd := &cobra.Command{
		Use:   "datahub",
		Short: "Run data hub flows over staged documents",
		Long: `Run data hub flows over staged documents.

A flow is an ordered list of steps bound to an entity type. Every document
returned by the flow collector goes through the steps and the output of the
writer step is stored in the final store. When tracing is enabled, the output
of every step is recorded in the trace store; failing steps are always traced.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.String(logFormatFlag, "text", "the log format to output logs in ('text' or 'json')")
	flags.String(logLevelFlag, "info", "the log level to use ('none', 'debug', 'info', 'warn', 'error')")
	flags.String(storeEngineFlag, "memory", "the document store engine ('memory', 'sqlite' or 'mongo')")
	flags.String(storeURIFlag, "", "the connection uri of the document store (e.g. 'file:datahub.db' or 'mongodb://localhost:27017')")
	flags.String(storeDatabaseFlag, "datahub", "the mongo database holding the stores")
	flags.Duration(storeTimeoutFlag, 5*time.Second, "how long to wait for the document store to accept connections")
	flags.String(flowsDirFlag, "flows", "the directory of the YAML flow definitions")

	cmd.PersistentPreRun = bindRootFlagsFunc(flags)

	return cmd
}

// NewDatahubCommand returns the root command with every sub command attached
func NewDatahubCommand() *cobra.Command {
	root := NewRootCommand()
	root.AddCommand(
		NewRunCommand(),
		NewLoadCommand(),
		NewCountCommand(),
		NewTracingCommand(),
		NewFlowsCommand(),
		NewMigrateCommand(),
	)
	return root
}
