package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	arco "github.com/icpac-igad/arco-ibf"
)

var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(arco.ExitCodeFor(err))
	}
}

// GlobalFlags holds the persistent flags shared by subcommands.
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}

	root := &cobra.Command{
		Use:           "arco-launcher",
		Short:         "Supervised launcher for the arco-ibf service stack",
		Long:          "arco-launcher starts a topology of services in dependency order, gates each on TCP readiness, monitors them for unexpected death, and tears everything down cleanly on SIGINT/SIGTERM or on failure.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "services.toml", "path to the topology TOML file")

	root.AddCommand(
		createUpCommand(flags),
		createCheckCommand(flags),
		createVersionCommand(),
	)
	return root
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the launcher version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("arco-launcher %s\n", version)
		},
	}
}
