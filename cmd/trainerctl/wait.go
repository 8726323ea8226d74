package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// waitCmd represents the wait command
var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for the trainer server to be ready",
	Long: `Wait for the trainer server to be ready by polling the health endpoint.

This command will repeatedly check the server health until it responds
successfully or the maximum number of retries is reached.

Example:
  trainerctl wait
  trainerctl wait --port 3000 --retries 60`,
	Run: func(cmd *cobra.Command, args []string) {
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")
		retries, _ := cmd.Flags().GetInt("retries")

		url := fmt.Sprintf("http://%s:%d/api/health/", host, port)
		if err := waitForServer(url, retries, time.Second); err != nil {
			fmt.Fprintf(os.Stderr, "Server did not become ready: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("Trainer server is ready")
	},
}

func init() {
	rootCmd.AddCommand(waitCmd)
	waitCmd.Flags().String("host", "localhost", "Server host to check")
	waitCmd.Flags().IntP("port", "p", defaultPortInt(), "Server port to check")
	waitCmd.Flags().IntP("retries", "r", 90, "Number of retries")
}

func waitForServer(url string, retries int, interval time.Duration) error {
	client := &http.Client{Timeout: 2 * time.Second}

	fmt.Println("Waiting for the trainer to be ready...")

	for i := 0; i < retries; i++ {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode < 300 {
				fmt.Println()
				return nil
			}
		}

		fmt.Print(".")
		time.Sleep(interval)
	}

	fmt.Println()
	return fmt.Errorf("trainer is not ready after %d attempts", retries)
}
