package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"jarvis/internal/config"
	"jarvis/internal/core"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "jarvisd",
		Short:         "Jarvis voice assistant daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := config.BindFlags(rootCmd.PersistentFlags())

	run := runCmd(flags)
	rootCmd.RunE = run.RunE
	rootCmd.AddCommand(run)
	rootCmd.AddCommand(mcpCmd(flags))
	rootCmd.AddCommand(previewCmd())
	rootCmd.AddCommand(initConfigCmd(flags))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the assistant, the scheduler and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Parse(flags)
			if err != nil {
				return fmt.Errorf("failed to parse config: %w", err)
			}
			return runDaemon(cmd.Context(), cfg)
		},
	}
}

func mcpCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the task tools over MCP stdio without the voice loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Parse(flags)
			if err != nil {
				return fmt.Errorf("failed to parse config: %w", err)
			}
			return runMCP(cmd.Context(), cfg)
		},
	}
}

func previewCmd() *cobra.Command {
	var (
		count  int
		useUTC bool
	)
	cmd := &cobra.Command{
		Use:   "preview [cron expression]",
		Short: "Print the next fire times of a cron expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			location := time.Local
			if useUTC {
				location = time.UTC
			}
			times, err := core.PreviewCron(args[0], time.Now().In(location), count)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, t := range times {
				fmt.Fprintf(out, "%d. %s\n", i+1, t.Format("2006-01-02 15:04:05 MST"))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 5, "Number of fire times (1-10)")
	cmd.Flags().BoolVar(&useUTC, "utc", false, "Evaluate in UTC instead of local time")
	return cmd
}

func initConfigCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Write the default settings.yaml and responses.yaml if they are missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Parse(flags)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config dir: %s\n", cfg.ConfigDir)
			fmt.Fprintf(out, "state dir:  %s\n", cfg.StateDir)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
