package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jalsakhi/model-gateway/internal/check"
	"github.com/jalsakhi/model-gateway/internal/config"
	"github.com/spf13/cobra"
)

// NewCheckCmd creates the check command
func NewCheckCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check [BASE_URL]",
		Short: "Verify every route of a running gateway",
		Long: "Check gateway health, each mount's upstream health through the proxy, " +
			"and the internal model routes. BASE_URL defaults to $BASE_URL or " + check.DefaultBaseURL + ". " +
			"The model routes need INTERNAL_API_KEY in the environment or .env.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL := os.Getenv("BASE_URL")
			if len(args) == 1 {
				baseURL = args[0]
			}
			if baseURL == "" {
				baseURL = check.DefaultBaseURL
			}

			mounts, err := config.LoadMounts()
			if err != nil {
				return fmt.Errorf("failed to load mounts: %w", err)
			}

			runner := check.NewRunner(baseURL, os.Getenv("INTERNAL_API_KEY"), &http.Client{Timeout: timeout})
			results := runner.Run(cmd.Context(), check.DefaultChecks(mounts))
			check.Render(cmd.OutOrStdout(), baseURL, results)

			if passed := check.Passed(results); passed != len(results) {
				return fmt.Errorf("%d/%d checks passed", passed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Per-request timeout")

	return cmd
}
