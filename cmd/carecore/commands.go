package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/postvisit/carecore/config"
	"github.com/postvisit/carecore/effort"
	"github.com/postvisit/carecore/escalation"
	"github.com/postvisit/carecore/model"
	"github.com/postvisit/carecore/pipeline"
	"github.com/postvisit/carecore/template"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(flags *globalFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := flags.logger(cmd)
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg = cfg.WithListen(listen)
			}
			return runServer(cmd.Context(), cfg, flags.configPath, logger)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}

func runServer(parent context.Context, cfg config.Config, configPath string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	logger.Info("tier selected",
		slog.String("tier", a.tiers.Current().Name),
		slog.String("model", a.tiers.Current().ModelID))

	if configPath != "" {
		go func() {
			if err := config.Watch(ctx, configPath, logger, config.ApplyTier(a.tiers, logger)); err != nil {
				logger.Warn("config watch stopped", slog.Any("error", err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start(cfg.Server.Listen)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func tiersCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tiers",
		Short: "List the tier ladder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			return printTiers(cmd, cfg.TierStore())
		},
	}
}

func printTiers(cmd *cobra.Command, store *model.TierStore) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIER\tLABEL\tMODEL\tTHINKING\tACTIVE")
	for _, t := range store.Tiers() {
		active := ""
		if t.Active {
			active = "*"
		}
		thinking := "off"
		if t.ThinkingEnabled {
			thinking = fmt.Sprintf("%d", t.DefaultThinkingBudget)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.Name, t.Label, t.ModelID, thinking, active)
	}
	return w.Flush()
}

type classification struct {
	Effort        model.Effort `json:"effort"`
	DeepReasoning bool         `json:"deep_reasoning"`
	Urgent        bool         `json:"urgent"`
}

func classifyCmd() *cobra.Command {
	var tierName string
	cmd := &cobra.Command{
		Use:   "classify QUESTION",
		Short: "Show how a question would be routed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			_, urgent := escalation.CheckKeywords(question)
			out := classification{
				Effort:        effort.Classify(question),
				DeepReasoning: pipeline.ShouldUseDeepReasoning(question),
				Urgent:        urgent,
			}
			if tierName != "" {
				tier, err := model.ParseTier(tierName)
				if err != nil {
					return err
				}
				budget := tier.BudgetForEffort(out.Effort)
				fmt.Fprintf(cmd.OutOrStdout(), "tier %s: max_tokens=%d thinking_budget=%d\n",
					tier.Name, budget.MaxTokens, budget.BudgetTokens)
			}
			return writeJSON(cmd, out)
		},
	}
	cmd.Flags().StringVar(&tierName, "tier", "", "also show the token budget for this tier")
	return cmd
}

func screenCmd(flags *globalFlags) *cobra.Command {
	var useModel bool
	cmd := &cobra.Command{
		Use:   "screen MESSAGE",
		Short: "Check a message for urgency",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			if verdict, ok := escalation.CheckKeywords(message); ok {
				return writeJSON(cmd, verdict)
			}
			if !useModel {
				return writeJSON(cmd, escalation.Verdict{
					Severity:          escalation.SeverityLow,
					Reason:            "No critical keyword",
					TriggerPhrases:    []string{},
					RecommendedAction: "Run with --model for a full screen",
					ContextFactors:    []string{},
				})
			}

			logger := flags.logger(cmd)
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			if cfg.Provider == "anthropic" && cfg.Anthropic.APIKey == "" {
				return errors.New("screen --model needs an API key (CARECORE_API_KEY or ANTHROPIC_API_KEY)")
			}
			client, err := newClient(cfg, logger, model.NewCostTracker())
			if err != nil {
				return err
			}
			tiers := cfg.TierStore()
			ctx := model.NewContext(cmd.Context(), tiers.Current())
			verdict, err := newScreener(cfg, client, template.NewLoader(cfg.PromptDir), logger).Evaluate(ctx, message, nil)
			if err != nil {
				return err
			}
			return writeJSON(cmd, verdict)
		},
	}
	cmd.Flags().BoolVar(&useModel, "model", false, "fall back to the model when no keyword matches")
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
