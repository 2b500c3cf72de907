// pulse-cli renders the dashboard payloads as terminal tables, sharing
// the server's service wiring instead of going through HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haolin-w/pulse/internal/app"
	"github.com/haolin-w/pulse/internal/common"
)

var (
	flagConfig  string
	flagRefresh bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "pulse-cli",
		Short:         "Market dashboard from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to pulse.toml")
	rootCmd.PersistentFlags().BoolVar(&flagRefresh, "refresh", false, "bypass caches")

	rootCmd.AddCommand(newSummaryCmd())
	rootCmd.AddCommand(newRatiosCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newInstitutionalCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newCLIApp builds the shared application core with quiet logging, so
// table output is not interleaved with log lines.
func newCLIApp() (*app.App, error) {
	level := os.Getenv("PULSE_LOG_LEVEL")
	if level == "" {
		os.Setenv("PULSE_LOG_LEVEL", "error")
		defer os.Unsetenv("PULSE_LOG_LEVEL")
	}
	return app.NewApp(flagConfig)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pulse %s (build %s, commit %s)\n",
				common.GetVersion(), common.GetBuild(), common.GetGitCommit())
		},
	}
}
