package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/audit"
	"github.com/fyrsmithlabs/diagramd/internal/flow"
	"github.com/fyrsmithlabs/diagramd/internal/logging"
	"github.com/fyrsmithlabs/diagramd/internal/metrics"
	"github.com/fyrsmithlabs/diagramd/internal/render"
)

// criticNode validates and renders the current draft. Rejections are
// routed back to the drafter with error context until the per-diagram
// budget runs out, then the diagram is skipped and the queue advances.
type criticNode struct {
	renderer   *render.Client
	maxRetries int
	met        *metrics.Metrics
	log        *logging.Logger
}

func newCriticNode(renderer *render.Client, maxRetries int, met *metrics.Metrics, log *logging.Logger) *criticNode {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &criticNode{
		renderer:   renderer,
		maxRetries: maxRetries,
		met:        met,
		log:        log.Named("critic"),
	}
}

func (n *criticNode) Name() string { return "critic" }

type criticInput struct {
	uml       string
	name      string
	outputDir string
}

type criticResult struct {
	success  bool
	errText  string
	pngPath  string
	pumlPath string
}

func (n *criticNode) Prep(ctx context.Context, s *State) (any, error) {
	if s.CurrentUML == "" {
		return nil, fmt.Errorf("%w: current draft (drafter must run first)", ErrDependencyMissing)
	}
	return criticInput{
		uml:       s.CurrentUML,
		name:      s.CurrentDiagram.Name,
		outputDir: s.OutputDir,
	}, nil
}

// Exec validates, renders, and saves. A rejected draft is an ordinary
// result, not an error: the verdict routes the correction loop.
func (n *criticNode) Exec(ctx context.Context, prep any) (any, error) {
	in := prep.(criticInput)
	n.log.Info(ctx, "validating", zap.String("diagram", in.name))

	if err := render.ValidateSyntax(in.uml); err != nil {
		n.log.Warn(ctx, "syntax rejected", zap.Error(err))
		return criticResult{errText: fmt.Sprintf("Syntax validation failed: %v", err)}, nil
	}

	report := render.Complexity(in.uml)
	for _, w := range report.Warnings {
		n.log.Warn(ctx, "complexity warning", zap.String("warning", w))
	}

	png, err := n.renderer.Render(ctx, in.uml)
	if err != nil {
		n.log.Warn(ctx, "render rejected", zap.Error(err))
		return criticResult{errText: fmt.Sprintf("Kroki rendering failed: %v", err)}, nil
	}

	if err := os.MkdirAll(in.outputDir, 0o755); err != nil {
		return nil, err
	}
	safe := audit.SanitizeName(in.name)
	pngPath := filepath.Join(in.outputDir, safe+".png")
	pumlPath := filepath.Join(in.outputDir, safe+".puml")
	if err := os.WriteFile(pngPath, png, 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(pumlPath, []byte(in.uml), 0o644); err != nil {
		return nil, err
	}

	n.log.Info(ctx, "diagram saved",
		zap.String("png", pngPath), zap.String("puml", pumlPath))
	return criticResult{success: true, pngPath: pngPath, pumlPath: pumlPath}, nil
}

func (n *criticNode) Post(ctx context.Context, s *State, prep, exec any) (flow.Action, error) {
	in := prep.(criticInput)
	res := exec.(criticResult)

	if res.success {
		s.Generated = append(s.Generated, GeneratedDiagram{
			Name:     in.name,
			PNGPath:  res.pngPath,
			PUMLPath: res.pumlPath,
		})
		n.met.Diagrams.WithLabelValues("generated").Inc()
		s.Cursor++
		s.RetryCount = 0
		s.CriticError = ""
		return ActionNext, nil
	}

	if s.RetryCount < n.maxRetries {
		s.RetryCount++
		s.CriticError = res.errText
		n.log.Info(ctx, "sending back for correction",
			zap.Int("retry", s.RetryCount), zap.Int("max", n.maxRetries))
		return ActionRetry, nil
	}

	// Budget exhausted: skip this diagram and keep the run going.
	n.log.Warn(ctx, "correction budget exhausted, skipping diagram",
		zap.String("diagram", in.name))
	s.Skipped = append(s.Skipped, SkippedDiagram{Name: in.name, Cause: res.errText})
	n.met.Diagrams.WithLabelValues("skipped").Inc()
	s.Cursor++
	s.RetryCount = 0
	s.CriticError = ""
	return ActionNext, nil
}
