package main

import (
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		root.PrintErrln("error:", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "racewaycad",
		Short:         "Extract drawing data and render raceway networks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Version = Version
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().String("config", "", "YAML file overlaid on the environment configuration")
	root.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	root.AddCommand(scanCmd())
	root.AddCommand(renderCmd())
	root.AddCommand(runScriptCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(workerCmd())
	root.AddCommand(versionCmd())
	return root
}
