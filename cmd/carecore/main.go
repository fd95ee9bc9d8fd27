// Command carecore runs the post-visit patient assistant.
//
//	carecore serve --config carecore.toml
//	carecore tiers
//	carecore classify "Should I stop taking metoprolol?"
//	carecore screen "I have chest pain"
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	verbose    bool
	jsonLogs   bool
}

func newRootCmd() *cobra.Command {
	var flags globalFlags
	root := &cobra.Command{
		Use:          "carecore",
		Short:        "Post-visit patient assistant",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", os.Getenv("CARECORE_CONFIG"), "TOML config file")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&flags.jsonLogs, "json-logs", false, "log as JSON")

	root.AddCommand(serveCmd(&flags))
	root.AddCommand(tiersCmd(&flags))
	root.AddCommand(classifyCmd())
	root.AddCommand(screenCmd(&flags))
	return root
}

func (f *globalFlags) logger(cmd *cobra.Command) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if f.verbose {
		opts.Level = slog.LevelDebug
	}
	w := cmd.ErrOrStderr()
	if f.jsonLogs {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
