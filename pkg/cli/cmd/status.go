package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rzbill/gate/pkg/snapshot"
)

// statusCmd reports server health and snapshot cache state.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show Gate server health and snapshot state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	api, err := createAPIClient()
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	health, err := api.GetHealth(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach Gate server: %w", err)
	}

	if health.Status == "healthy" {
		color.Green("Server: healthy")
	} else {
		color.Red("Server: %s (%s)", health.Status, health.Reason)
	}

	cache := health.Cache
	fmt.Printf("%-16s %s\n", "Snapshot state:", colorState(cache.State))
	fmt.Printf("%-16s %d\n", "Version:", cache.Version)
	if !cache.FetchedAt.IsZero() {
		fmt.Printf("%-16s %s (%s ago)\n", "Fetched:", cache.FetchedAt.Format(time.RFC3339), time.Since(cache.FetchedAt).Round(time.Second))
		fmt.Printf("%-16s %s\n", "Expires:", cache.ExpiresAt.Format(time.RFC3339))
	}
	if cache.FetchFailures > 0 {
		color.Yellow("%-16s %d consecutive", "Fetch failures:", cache.FetchFailures)
	}
	return nil
}

func colorState(state snapshot.State) string {
	switch state {
	case snapshot.StateWarm:
		return color.GreenString(string(state))
	case snapshot.StateStale:
		return color.YellowString(string(state))
	default:
		return color.RedString(string(state))
	}
}
