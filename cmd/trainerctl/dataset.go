package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// datasetCmd represents the dataset command
var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Manage datasets",
	Long:  `Manage the document datasets projects annotate.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("error: Command 'dataset' requires a subcommand (import)")
		fmt.Println()
		_ = cmd.Help()
		os.Exit(1)
	},
}

func init() {
	rootCmd.AddCommand(datasetCmd)
}
