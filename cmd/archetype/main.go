package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/longregen/archetype/internal/adapters/tracing"
	"github.com/longregen/archetype/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func main() {
	var logJSON, trace bool
	var shutdownTracer func(context.Context) error

	rootCmd := &cobra.Command{
		Use:   "archetype",
		Short: "Archetype - evolutionary search over multi-agent LLM architectures",
		Long: `Archetype evolves multi-agent LLM programs against a multiple-choice
benchmark, keeping the best architecture of each behavioural niche.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			slog.SetDefault(newLogger(os.Stderr, logJSON, os.Getenv("ARCHETYPE_LOG_LEVEL")))

			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if trace {
				shutdownTracer, err = tracing.InitTracer("archetype")
				if err != nil {
					slog.Warn("failed to initialize tracing", "error", err)
				}
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if shutdownTracer != nil {
				if err := shutdownTracer(context.Background()); err != nil {
					slog.Warn("error shutting down tracer", "error", err)
				}
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON")
	rootCmd.PersistentFlags().BoolVar(&trace, "trace", false, "Export OpenTelemetry spans to stdout")

	rootCmd.AddCommand(
		searchCmd(),
		evaluateCmd(),
		populationCmd(),
		historyCmd(),
		serveCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// configCmd shows the effective configuration with secrets masked
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := yaml.Marshal(cfg.Masked())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "# Environment variables:")
			fmt.Fprintln(cmd.OutOrStdout(), "#   ARCHETYPE_CONFIG, ARCHETYPE_LOG_LEVEL")
			fmt.Fprintln(cmd.OutOrStdout(), "#   ARCHETYPE_LLM_URL, ARCHETYPE_LLM_API_KEY (or OPENAI_API_KEY), ARCHETYPE_LLM_MODEL")
			fmt.Fprintln(cmd.OutOrStdout(), "#   ARCHETYPE_FALLBACK_URL, ARCHETYPE_FALLBACK_API_KEY (or GEMINI_API_KEY), ARCHETYPE_FALLBACK_MODEL")
			fmt.Fprintln(cmd.OutOrStdout(), "#   ARCHETYPE_DB_PATH, ARCHETYPE_POSTGRES_URL")
			return nil
		},
	}
}

// versionCmd shows version information
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Archetype %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "  Commit:     %s\n", commit)
			fmt.Fprintf(cmd.OutOrStdout(), "  Build Date: %s\n", buildDate)
		},
	}
}
