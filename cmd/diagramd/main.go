// Package main implements the diagramd CLI: architectural diagram
// generation for a repository through the scout/surveyor/summarizer/
// architect/drafter/critic pipeline.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/config"
	"github.com/fyrsmithlabs/diagramd/internal/llm"
	"github.com/fyrsmithlabs/diagramd/internal/logging"
	"github.com/fyrsmithlabs/diagramd/internal/metrics"
	"github.com/fyrsmithlabs/diagramd/internal/pipeline"
	"github.com/fyrsmithlabs/diagramd/internal/ratelimit"
)

var version = "dev"

var (
	configPath     string
	outputDir      string
	fastMode       bool
	nonInteractive bool
	metricsAddr    string
)

var (
	okStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	warnStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "diagramd",
	Short: "Generate architectural diagrams for a repository",
	Long: `diagramd clones a repository, distills it into a codebase knowledge
document, plans focused architectural diagrams, and renders them as
PlantUML via a Kroki-compatible service. A post-generation audit
archives duplicate diagrams instead of deleting them.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.AddCommand(generateCmd)
}

var generateCmd = &cobra.Command{
	Use:   "generate <repo-url>",
	Short: "Run the full generation pipeline for a repository",
	Long: `Run the full pipeline: clone, survey, distill, plan, generate, audit.

Examples:
  # Interactive run with defaults
  diagramd generate https://github.com/user/project

  # Generate everything without the selection prompt
  diagramd generate --yes https://github.com/user/project

  # Paid-tier pacing and a custom output directory
  diagramd generate --fast -o diagrams https://github.com/user/project`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for diagrams")
	generateCmd.Flags().BoolVar(&fastMode, "fast", false, "use fast pacing (paid-tier quotas)")
	generateCmd.Flags().BoolVarP(&nonInteractive, "yes", "y", false, "skip the plan checkpoint and generate all diagrams")
	generateCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9464)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	repoURL := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if outputDir != "" {
		cfg.Output.Dir = outputDir
	}
	if fastMode {
		cfg.RateLimit.Mode = string(ratelimit.ModeFast)
	}
	if nonInteractive {
		cfg.Pipeline.NonInteractive = true
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	met := metrics.New()
	met.Serve(ctx, cfg.Metrics.Addr, log)

	limiter := ratelimit.NewLimiter(cfg.RateLimit.Capacity, cfg.RateLimit.Window,
		ratelimit.WithLimiterLogger(log),
		ratelimit.WithWaitHook(met.WindowWaits.Inc))
	pacer := ratelimit.NewPacer(ratelimit.Mode(cfg.RateLimit.Mode),
		ratelimit.WithPacerLogger(log))

	client, err := llm.New(ctx, llm.Config{
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		Temperature:    cfg.LLM.Temperature,
		MaxAttempts:    cfg.LLM.MaxAttempts,
		InitialBackoff: cfg.LLM.InitialBackoff,
		Metrics:        met,
	}, limiter, log)
	if err != nil {
		return fmt.Errorf("initializing llm client: %w", err)
	}

	runner := pipeline.NewRunner(cfg, client, pacer, met, log)
	summary, err := runner.Run(ctx, repoURL)
	if err != nil {
		log.Error(ctx, "generation run failed", zap.Error(err))
		return err
	}

	printSummary(cmd, summary, cfg.Output.Dir)
	return nil
}

func printSummary(cmd *cobra.Command, s *pipeline.Summary, outputDir string) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)

	if s.Cancelled {
		fmt.Fprintln(out, warnStyle.Render("Generation cancelled, nothing selected."))
		return
	}

	if len(s.Generated) > 0 {
		fmt.Fprintln(out, okStyle.Render(fmt.Sprintf("Generated %d diagram(s):", len(s.Generated))))
		for _, d := range s.Generated {
			fmt.Fprintf(out, "  %s\n", d.Name)
			fmt.Fprintf(out, "    %s\n", dimStyle.Render("png:  "+d.PNGPath))
			fmt.Fprintf(out, "    %s\n", dimStyle.Render("puml: "+d.PUMLPath))
		}
	} else {
		fmt.Fprintln(out, warnStyle.Render("No diagrams were generated."))
	}

	if len(s.Skipped) > 0 {
		fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("Skipped %d diagram(s) after repeated failures:", len(s.Skipped))))
		for _, d := range s.Skipped {
			fmt.Fprintf(out, "  %s\n", d.Name)
			fmt.Fprintf(out, "    %s\n", dimStyle.Render(d.Cause))
		}
	}

	if s.Audit != nil {
		fmt.Fprintf(out, "\nAudit: %d deprecated, %d kept. Report: %s\n",
			s.Audit.Moved, s.Audit.Kept, s.Audit.ReportPath)
	}
	fmt.Fprintln(out, dimStyle.Render("Output directory: "+outputDir))
}
