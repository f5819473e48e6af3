package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/audit"
	"github.com/fyrsmithlabs/diagramd/internal/config"
	"github.com/fyrsmithlabs/diagramd/internal/flow"
	"github.com/fyrsmithlabs/diagramd/internal/knowledge"
	"github.com/fyrsmithlabs/diagramd/internal/llm"
	"github.com/fyrsmithlabs/diagramd/internal/logging"
	"github.com/fyrsmithlabs/diagramd/internal/metrics"
	"github.com/fyrsmithlabs/diagramd/internal/ratelimit"
	"github.com/fyrsmithlabs/diagramd/internal/render"
	"github.com/fyrsmithlabs/diagramd/internal/repo"
	"github.com/fyrsmithlabs/diagramd/internal/secrets"
	"github.com/fyrsmithlabs/diagramd/internal/supervisor"
)

// Summary is what a finished run reports back to the CLI.
type Summary struct {
	Generated []GeneratedDiagram
	Skipped   []SkippedDiagram
	Audit     *audit.Result
	Cancelled bool
}

// Partial reports whether some planned diagrams were skipped.
func (s *Summary) Partial() bool { return len(s.Skipped) > 0 }

// Runner assembles the node graph and drives a full generation run.
type Runner struct {
	cfg    *config.Config
	client llm.Client
	pacer  *ratelimit.Pacer
	met    *metrics.Metrics
	log    *logging.Logger
}

// NewRunner wires a runner from configured collaborators.
func NewRunner(cfg *config.Config, client llm.Client, pacer *ratelimit.Pacer, met *metrics.Metrics, log *logging.Logger) *Runner {
	if met == nil {
		met = metrics.New()
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Runner{cfg: cfg, client: client, pacer: pacer, met: met, log: log}
}

// Run executes the whole pipeline for one repository. The work dir is
// removed afterwards; generated diagrams live in cfg.Output.Dir.
func (r *Runner) Run(ctx context.Context, repoURL string) (*Summary, error) {
	workDir := r.cfg.Output.WorkDir
	if workDir == "" {
		tmp, err := os.MkdirTemp("", "diagramd-*")
		if err != nil {
			return nil, fmt.Errorf("creating work dir: %w", err)
		}
		workDir = tmp
	}
	defer func() {
		if err := repo.Cleanup(workDir); err != nil {
			r.log.Warn(ctx, "work dir cleanup failed", zap.Error(err))
		}
	}()

	outputDir, err := filepath.Abs(r.cfg.Output.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolving output dir: %w", err)
	}

	engine, err := r.buildGraph(outputDir)
	if err != nil {
		return nil, err
	}

	state := &State{
		RepoURL:   repoURL,
		WorkDir:   workDir,
		OutputDir: outputDir,
	}

	ctx = logging.WithRunID(ctx, uuid.NewString())
	r.log.Info(ctx, "starting generation run",
		zap.String("repo", repoURL), zap.String("output", outputDir))

	if err := engine.Run(ctx, state); err != nil {
		return nil, err
	}

	return newSummary(state)
}

// newSummary derives the run verdict from the final state. A run that
// selected work but produced no artifact is a failure, reported with
// the cause of the first skipped diagram.
func newSummary(state *State) (*Summary, error) {
	s := &Summary{
		Generated: state.Generated,
		Skipped:   state.Skipped,
		Audit:     state.AuditResult,
		Cancelled: state.Plan != nil && len(state.Queue) == 0,
	}
	if !s.Cancelled && len(s.Generated) == 0 && len(s.Skipped) > 0 {
		first := s.Skipped[0]
		return s, fmt.Errorf("no diagrams generated: %s: %s", first.Name, first.Cause)
	}
	return s, nil
}

// buildGraph registers the nodes and the action edges of the flow:
//
//	scout -> surveyor -> summarizer -> architect -> handshake
//	handshake -default-> drafter          (quit ends the run)
//	drafter -validate-> critic, -complete-> audit
//	critic -retry-> drafter, -next-> drafter
func (r *Runner) buildGraph(outputDir string) (*flow.Engine[*State], error) {
	scrubber, err := secrets.New(secrets.DefaultRules())
	if err != nil {
		return nil, fmt.Errorf("compiling secret rules: %w", err)
	}

	sup := supervisor.New(r.client, supervisor.ValidateKnowledgeXML,
		r.cfg.Pipeline.SupervisorRetries, r.log)
	builder := knowledge.NewBuilder(r.client, sup, r.pacer,
		r.cfg.Pipeline.BatchSize, r.cfg.Pipeline.SmallFileLines, r.log)
	renderer := render.NewClient(r.cfg.Render.BaseURL, r.cfg.Render.Timeout)
	auditor := audit.New(r.client, outputDir, r.log)

	engine := flow.NewEngine[*State]("scout",
		flow.WithLogger[*State](r.log.Named("flow")),
		flow.WithNodeObserver[*State](func(node string, elapsed time.Duration) {
			r.met.NodeDuration.WithLabelValues(node).Observe(elapsed.Seconds())
		}))

	engine.AddNode(newScoutNode(r.log))
	engine.AddNode(newSurveyorNode(r.client, r.pacer, r.log))
	engine.AddNode(newSummarizerNode(builder, scrubber, r.pacer, r.met, r.log))
	engine.AddNode(newArchitectNode(r.client, r.pacer, r.log))
	engine.AddNode(newHandshakeNode(r.cfg.Pipeline.NonInteractive, r.log))
	engine.AddNode(newDrafterNode(r.client, r.pacer, r.log))
	engine.AddNode(newCriticNode(renderer, r.cfg.Pipeline.MaxDiagramRetries, r.met, r.log))
	engine.AddNode(newAuditNode(auditor, r.log))

	edges := []struct {
		from   string
		action flow.Action
		to     string
	}{
		{"scout", flow.ActionDefault, "surveyor"},
		{"surveyor", flow.ActionDefault, "summarizer"},
		{"summarizer", flow.ActionDefault, "architect"},
		{"architect", flow.ActionDefault, "handshake"},
		{"handshake", flow.ActionDefault, "drafter"},
		{"drafter", ActionValidate, "critic"},
		{"drafter", ActionComplete, "audit"},
		{"critic", ActionRetry, "drafter"},
		{"critic", ActionNext, "drafter"},
	}
	for _, e := range edges {
		if err := engine.Connect(e.from, e.action, e.to); err != nil {
			return nil, err
		}
	}
	return engine, nil
}
