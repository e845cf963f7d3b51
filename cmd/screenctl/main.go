package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "screenctl",
		Short:         "Operate the entity screening service from the command line",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "path to config file (default: search ./config.yaml)")

	root.AddCommand(queriesCmd())
	root.AddCommand(keywordsCmd())
	root.AddCommand(classifyCmd())
	root.AddCommand(assessCmd())
	root.AddCommand(screenCmd())

	return root
}
