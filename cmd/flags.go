package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/simon020286/go-datahub/cmd/util"
)

// bindRootFlagsFunc binds the persistent cobra flags to the equivalent config
// values managed by viper. This bridges the config between cobra flags and viper flags.
func bindRootFlagsFunc(flags *pflag.FlagSet) func(*cobra.Command, []string) {
	return func(_ *cobra.Command, _ []string) {
		util.MustBindPFlag(logFormatConf, flags.Lookup(logFormatFlag))
		util.MustBindPFlag(logLevelConf, flags.Lookup(logLevelFlag))
		util.MustBindPFlag(storeEngineConf, flags.Lookup(storeEngineFlag))
		util.MustBindPFlag(storeURIConf, flags.Lookup(storeURIFlag))
		util.MustBindPFlag(storeDatabaseConf, flags.Lookup(storeDatabaseFlag))
		util.MustBindPFlag(storeTimeoutConf, flags.Lookup(storeTimeoutFlag))
		util.MustBindPFlag(flowsDirConf, flags.Lookup(flowsDirFlag))
	}
}
