package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "rulechat",
	Short:         "Question answering over a competition rules manual",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the rulechat version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rulechat version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}
