package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/flow"
	"github.com/fyrsmithlabs/diagramd/internal/logging"
	"github.com/fyrsmithlabs/diagramd/internal/repo"
	"github.com/fyrsmithlabs/diagramd/internal/retry"
)

// scoutNode clones the repository and surveys the tree. It maps
// everything and lets the surveyor model decide what matters.
type scoutNode struct {
	log *logging.Logger
}

func newScoutNode(log *logging.Logger) *scoutNode {
	return &scoutNode{log: log.Named("scout")}
}

func (n *scoutNode) Name() string { return "scout" }

func (n *scoutNode) RetryPolicy() retry.Policy {
	// Clones are expensive to repeat; one retry covers a flaky network.
	return retry.Policy{
		MaxAttempts:    2,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     2 * time.Second,
		Multiplier:     1,
	}
}

type scoutInput struct {
	repoURL string
	workDir string
}

type scoutResult struct {
	clonePath string
	survey    *repo.Survey
	mapFile   string
	invFile   string
}

func (n *scoutNode) Prep(ctx context.Context, s *State) (any, error) {
	if s.RepoURL == "" {
		return nil, fmt.Errorf("%w: repository url", ErrDependencyMissing)
	}
	if s.WorkDir == "" {
		return nil, fmt.Errorf("%w: work dir", ErrDependencyMissing)
	}
	return scoutInput{repoURL: s.RepoURL, workDir: s.WorkDir}, nil
}

func (n *scoutNode) Exec(ctx context.Context, prep any) (any, error) {
	in := prep.(scoutInput)

	n.log.Info(ctx, "cloning repository", zap.String("url", in.repoURL))
	clonePath, err := repo.Clone(ctx, in.repoURL, in.workDir)
	if err != nil {
		return nil, err
	}

	survey, err := repo.Scan(clonePath)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("scanning clone: %w", err))
	}
	n.log.Info(ctx, "scan complete",
		zap.Int("text_files", survey.Stats.TextFiles),
		zap.Int("binary_files", survey.Stats.BinaryFiles),
		zap.Int("collapsed_dirs", survey.Stats.CollapsedDirs))

	mapFile, err := survey.SaveMap(in.workDir)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	invFile, err := survey.SaveInventory(in.workDir)
	if err != nil {
		return nil, retry.Permanent(err)
	}

	return scoutResult{clonePath: clonePath, survey: survey, mapFile: mapFile, invFile: invFile}, nil
}

func (n *scoutNode) Post(ctx context.Context, s *State, _, exec any) (flow.Action, error) {
	res := exec.(scoutResult)
	s.ClonePath = res.clonePath
	s.Survey = res.survey
	s.MapFile = res.mapFile
	s.InventoryFile = res.invFile
	return flow.ActionDefault, nil
}
