package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "trainerctl",
	Short: "Run and administer the MedCAT trainer",
	Long: `Run and administer the MedCAT trainer.

trainerctl runs the annotation API server and provides offline commands
for the database schema, users, datasets and the annotation and
deployment export formats.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
