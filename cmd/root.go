package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmendel/idb/cmd/bench"
	"github.com/jmendel/idb/cmd/fixture"
	"github.com/jmendel/idb/cmd/util"
	"github.com/jmendel/idb/lib/logging"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "idb",
		Short: "in-memory transactional object store",
		Long: fmt.Sprintf(`idb (v%s)

An in-process, in-memory emulation of a transactional, versioned,
index-backed object store, with tooling for fixture files and
benchmarking.`, Version),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			util.InitConfig()
			if err := util.BindCommandFlags(cmd); err != nil {
				return err
			}
			logging.InitLoggers(viper.GetString("log-level"))
			return nil
		},
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of idb",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("idb v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(fixture.FixtureCommands)
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use for fixture files (json, gob, binary)"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "warning", util.WrapString("log level (debug, info, warning, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
