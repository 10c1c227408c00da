package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "authctl",
		Short:        "Operator tooling for the odyssey-admin authorization core",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newJobsCmd())
	rootCmd.AddCommand(newCatalogCmd())
	rootCmd.AddCommand(newTokensCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
