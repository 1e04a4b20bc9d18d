package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "trainer",
		Short:   "Fit the traffic feature pipeline and level classifier",
		Version: Version,
	}

	rootCmd.AddCommand(fitCmd())
	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(hashPasswordCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
