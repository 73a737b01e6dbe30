package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rzbill/gate/pkg/api/client"
)

var (
	checkService string
	checkOrigin  string
)

// checkCmd probes admission for a project the way a live request would
// be evaluated.
var checkCmd = &cobra.Command{
	Use:   "check <project-id>",
	Short: "Run an admission check for a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVarP(&checkService, "service", "s", "", "Service to check enablement for")
	checkCmd.Flags().StringVarP(&checkOrigin, "origin", "o", "", "Request origin to check against the allow-list")
}

func runCheck(cmd *cobra.Command, args []string) error {
	api, err := createAPIClient()
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	result, err := api.Check(ctx, client.CheckRequest{
		ProjectID: args[0],
		Service:   checkService,
		Origin:    checkOrigin,
	})
	if err != nil {
		return fmt.Errorf("admission check failed: %w", err)
	}

	if result.Allowed {
		color.Green("ALLOWED")
		if result.Project != nil && result.Project.Name != "" {
			fmt.Printf("%-12s %s\n", "Project:", result.Project.Name)
		}
		if result.RateLimit != nil {
			fmt.Printf("%-12s %d/%d remaining in %s window, resets %s\n", "Rate limit:",
				result.RateLimit.Remaining, result.RateLimit.Limit,
				result.RateLimit.Window, result.RateLimit.ResetTime.Format(time.RFC3339))
		}
		return nil
	}

	color.Red("DENIED (HTTP %d)", result.HTTPStatus)
	if result.Error != nil {
		fmt.Printf("%-12s %s\n", "Code:", result.Error.Code)
		fmt.Printf("%-12s %s\n", "Reason:", result.Error.Message)
		if result.Error.Retryable {
			if result.Error.RetryAfterSeconds > 0 {
				fmt.Printf("%-12s retry after %ds\n", "Retryable:", result.Error.RetryAfterSeconds)
			} else {
				fmt.Printf("%-12s yes\n", "Retryable:")
			}
		}
	}
	return nil
}
