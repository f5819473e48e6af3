package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/audit"
	"github.com/fyrsmithlabs/diagramd/internal/flow"
	"github.com/fyrsmithlabs/diagramd/internal/logging"
	"github.com/fyrsmithlabs/diagramd/internal/plan"
)

// auditNode closes the run with the post-generation duplicate audit.
type auditNode struct {
	auditor *audit.Auditor
	log     *logging.Logger
}

func newAuditNode(auditor *audit.Auditor, log *logging.Logger) *auditNode {
	return &auditNode{auditor: auditor, log: log.Named("audit")}
}

func (n *auditNode) Name() string { return "audit" }

func (n *auditNode) Prep(ctx context.Context, s *State) (any, error) {
	if s.Plan == nil {
		return nil, fmt.Errorf("%w: diagram plan", ErrDependencyMissing)
	}
	return s.Plan, nil
}

func (n *auditNode) Exec(ctx context.Context, prep any) (any, error) {
	return n.auditor.Run(ctx, prep.(*plan.Plan))
}

func (n *auditNode) Post(ctx context.Context, s *State, _, exec any) (flow.Action, error) {
	res := exec.(*audit.Result)
	s.AuditResult = res
	n.log.Info(ctx, "audit finished",
		zap.Int("deprecated", res.Moved), zap.Int("kept", res.Kept),
		zap.String("report", res.ReportPath))
	return flow.ActionDone, nil
}
