package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/config"
)

// configurationShowCmd represents the configuration show command
var configurationShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show trainer configuration attributes and their sources",
	Long: `Show trainer configuration attributes and their sources.

The values displayed by this command reflect the current state of the
configuration sources. For example, the environment variables and config
file. These may not reflect the current values used by the running
server.

Config file location: /etc/medcattrainer/trainer.yml (or TRAINER_CONFIG_PATH)

Example:
  trainerctl configuration show
  trainerctl configuration show --json`,
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")

		if err := showConfiguration(os.Stdout, asJSON); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to show configuration: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	configurationCmd.AddCommand(configurationShowCmd)
	configurationShowCmd.Flags().Bool("json", false, "Output as JSON")
}

func showConfiguration(w io.Writer, asJSON bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if asJSON {
		out, err := cfg.FormatJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, out)
		return err
	}

	_, err = fmt.Fprint(w, cfg.FormatText())
	return err
}
