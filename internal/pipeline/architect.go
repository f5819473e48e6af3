package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/flow"
	"github.com/fyrsmithlabs/diagramd/internal/llm"
	"github.com/fyrsmithlabs/diagramd/internal/logging"
	"github.com/fyrsmithlabs/diagramd/internal/plan"
	"github.com/fyrsmithlabs/diagramd/internal/ratelimit"
)

const architectSystemPrompt = `You are a software architect planning focused diagrams for a codebase.

Avoid "god diagrams": break the system into focused views of at most
15 elements each. Prefer several small diagrams over one huge one.

Return JSON:
{
    "project_summary": "short description",
    "diagrams": [
        {
            "id": 1,
            "name": "Descriptive Diagram Name",
            "type": "class|sequence|component|state|usecase",
            "focus": "what this diagram shows and why it matters",
            "files": ["relevant/file.py"],
            "complexity": "low|medium|high"
        }
    ]
}

Return ONLY valid JSON.`

// architectNode plans the diagrams from the knowledge document.
type architectNode struct {
	client llm.Client
	pacer  *ratelimit.Pacer
	log    *logging.Logger
}

func newArchitectNode(client llm.Client, pacer *ratelimit.Pacer, log *logging.Logger) *architectNode {
	return &architectNode{client: client, pacer: pacer, log: log.Named("architect")}
}

func (n *architectNode) Name() string { return "architect" }

func (n *architectNode) Prep(ctx context.Context, s *State) (any, error) {
	if s.Knowledge == nil || s.Knowledge.XML == "" {
		return nil, fmt.Errorf("%w: codebase knowledge (summarizer must run first)", ErrDependencyMissing)
	}
	return s.Knowledge.XML, nil
}

func (n *architectNode) Exec(ctx context.Context, prep any) (any, error) {
	knowledgeXML := prep.(string)
	n.log.Info(ctx, "planning architectural diagrams")

	prompt := `Analyze the attached codebase_knowledge.xml and propose focused architectural diagrams.

The XML contains:
- File summaries with purpose and key components
- Small files with full content
- Cross-file relationships and patterns

Consider:
1. What are the main modules and components?
2. What key workflows should be visualized?
3. What data models exist and how do they relate?
4. How do components interact with each other?

Propose specific, focused diagrams that would help a developer understand this codebase.`

	resp, err := n.client.Generate(ctx, llm.Request{
		Prompt: prompt,
		System: architectSystemPrompt,
		Attachments: []llm.Attachment{
			{Name: "codebase_knowledge.xml", MIME: "text/xml", Content: knowledgeXML},
		},
		Temperature: 0.5,
	})
	if err != nil {
		return nil, err
	}

	p := plan.Parse(resp)
	n.log.Info(ctx, "diagram plan ready", zap.Int("diagrams", len(p.Diagrams)))
	for _, d := range p.Diagrams {
		n.log.Debug(ctx, "planned diagram",
			zap.Int("id", d.ID), zap.String("name", d.Name), zap.String("type", d.Type))
	}
	return p, nil
}

func (n *architectNode) Post(ctx context.Context, s *State, _, exec any) (flow.Action, error) {
	p := exec.(*plan.Plan)
	s.Plan = p

	path, err := p.Save(s.WorkDir)
	if err != nil {
		n.log.Warn(ctx, "could not save diagram plan", zap.Error(err))
	} else {
		s.PlanFile = path
	}

	if err := n.pacer.Pace(ctx, ratelimit.OpSingleCall); err != nil {
		return "", err
	}
	return flow.ActionDefault, nil
}
