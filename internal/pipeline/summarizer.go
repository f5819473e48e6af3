package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/flow"
	"github.com/fyrsmithlabs/diagramd/internal/knowledge"
	"github.com/fyrsmithlabs/diagramd/internal/logging"
	"github.com/fyrsmithlabs/diagramd/internal/metrics"
	"github.com/fyrsmithlabs/diagramd/internal/ratelimit"
	"github.com/fyrsmithlabs/diagramd/internal/secrets"
)

// summarizerNode distills the selected files into the knowledge
// document the rest of the pipeline works from.
type summarizerNode struct {
	builder  *knowledge.Builder
	scrubber *secrets.Scrubber
	pacer    *ratelimit.Pacer
	met      *metrics.Metrics
	log      *logging.Logger
}

func newSummarizerNode(builder *knowledge.Builder, scrubber *secrets.Scrubber, pacer *ratelimit.Pacer, met *metrics.Metrics, log *logging.Logger) *summarizerNode {
	return &summarizerNode{
		builder:  builder,
		scrubber: scrubber,
		pacer:    pacer,
		met:      met,
		log:      log.Named("summarizer"),
	}
}

func (n *summarizerNode) Name() string { return "summarizer" }

type summarizerInput struct {
	project  string
	analysis string
	files    []knowledge.File
}

func (n *summarizerNode) Prep(ctx context.Context, s *State) (any, error) {
	if s.Survey == nil {
		return nil, fmt.Errorf("%w: project survey", ErrDependencyMissing)
	}
	if s.Verdict == nil {
		return nil, fmt.Errorf("%w: surveyor verdict", ErrDependencyMissing)
	}

	files, err := n.selectFiles(ctx, s)
	if err != nil {
		return nil, err
	}
	n.log.Info(ctx, "building codebase knowledge", zap.Int("files", len(files)))

	return summarizerInput{
		project:  filepath.Base(strings.TrimSuffix(s.RepoURL, ".git")),
		analysis: s.ProjectAnalysis,
		files:    files,
	}, nil
}

// selectFiles applies the surveyor verdict to the survey inventory and
// reads each surviving file with secrets scrubbed.
func (n *summarizerNode) selectFiles(ctx context.Context, s *State) ([]knowledge.File, error) {
	include := make(map[string]struct{}, len(s.Verdict.IncludePaths))
	for _, p := range s.Verdict.IncludePaths {
		include[filepath.ToSlash(p)] = struct{}{}
	}

	var out []knowledge.File
	for _, e := range s.Survey.TextEntries() {
		if len(include) > 0 {
			if _, ok := include[e.Path]; !ok {
				continue
			}
		}
		if excluded(e.Path, s.Verdict.ExcludePatterns) {
			continue
		}

		content, lines, err := s.Survey.ReadRedacted(n.scrubber, e.Path)
		if err != nil {
			n.log.Warn(ctx, "skipping unreadable file",
				zap.String("path", e.Path), zap.Error(err))
			continue
		}
		out = append(out, knowledge.File{Path: e.Path, Content: content, Lines: lines})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("surveyor verdict selected no readable files")
	}
	return out, nil
}

// excluded matches a path against surveyor exclude patterns: directory
// prefixes ("tests/"), glob patterns ("*.pyc"), or plain substrings.
func excluded(path string, patterns []string) bool {
	for _, pat := range patterns {
		if pat == "" {
			continue
		}
		if strings.HasSuffix(pat, "/") {
			if strings.HasPrefix(path, pat) || strings.Contains(path, "/"+pat) {
				return true
			}
			continue
		}
		if ok, _ := filepath.Match(pat, filepath.Base(path)); ok {
			return true
		}
		if strings.Contains(path, pat) {
			return true
		}
	}
	return false
}

func (n *summarizerNode) Exec(ctx context.Context, prep any) (any, error) {
	in := prep.(summarizerInput)
	return n.builder.Build(ctx, in.project, in.analysis, in.files)
}

func (n *summarizerNode) Post(ctx context.Context, s *State, _, exec any) (flow.Action, error) {
	res := exec.(*knowledge.Result)
	s.Knowledge = res
	if res.Failed > 0 {
		n.met.BatchesFailed.Add(float64(res.Failed))
	}

	path := filepath.Join(s.WorkDir, "codebase_knowledge.xml")
	if err := os.WriteFile(path, []byte(res.XML), 0o644); err != nil {
		return "", fmt.Errorf("writing knowledge file: %w", err)
	}
	s.KnowledgeFile = path
	n.log.Info(ctx, "codebase knowledge saved",
		zap.String("path", path),
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed))

	if err := n.pacer.Pace(ctx, ratelimit.OpSingleCall); err != nil {
		return "", err
	}
	return flow.ActionDefault, nil
}
