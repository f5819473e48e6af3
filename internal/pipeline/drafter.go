package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/flow"
	"github.com/fyrsmithlabs/diagramd/internal/llm"
	"github.com/fyrsmithlabs/diagramd/internal/logging"
	"github.com/fyrsmithlabs/diagramd/internal/plan"
	"github.com/fyrsmithlabs/diagramd/internal/ratelimit"
)

// Actions the drafter/critic loop routes on.
const (
	ActionValidate flow.Action = "validate"
	ActionRetry    flow.Action = "retry"
	ActionNext     flow.Action = "next"
	ActionComplete flow.Action = "complete"
)

const drafterSystemPrompt = `You are a strict PlantUML generator.
You do NOT speak English.
Return ONLY valid PlantUML code wrapped in @startuml and @enduml tags.

RULES:
1. Start with @startuml
2. End with @enduml
3. Use accurate class names and method signatures from the provided code knowledge
4. Keep diagrams focused - max 15 classes/components
5. Use proper PlantUML syntax
6. Add meaningful relationships and cardinalities
7. Include brief notes for complex parts

Do NOT include any explanatory text before or after the PlantUML code.`

// drafterNode generates PlantUML for the diagram at the queue cursor.
// When a critic rejection is pending, the error context travels into
// the prompt for a corrected draft.
type drafterNode struct {
	client llm.Client
	pacer  *ratelimit.Pacer
	log    *logging.Logger
}

func newDrafterNode(client llm.Client, pacer *ratelimit.Pacer, log *logging.Logger) *drafterNode {
	return &drafterNode{client: client, pacer: pacer, log: log.Named("drafter")}
}

func (n *drafterNode) Name() string { return "drafter" }

type drafterInput struct {
	done         bool
	diagram      plan.Diagram
	errorContext string
	retryCount   int
	knowledgeXML string
}

func (n *drafterNode) Prep(ctx context.Context, s *State) (any, error) {
	if s.Cursor >= len(s.Queue) {
		return drafterInput{done: true}, nil
	}
	if s.Knowledge == nil {
		return nil, fmt.Errorf("%w: codebase knowledge", ErrDependencyMissing)
	}
	return drafterInput{
		diagram:      s.Queue[s.Cursor],
		errorContext: s.CriticError,
		retryCount:   s.RetryCount,
		knowledgeXML: s.Knowledge.XML,
	}, nil
}

func (n *drafterNode) Exec(ctx context.Context, prep any) (any, error) {
	in := prep.(drafterInput)
	if in.done {
		return "", nil
	}

	if in.retryCount > 0 {
		n.log.Info(ctx, "redrafting after rejection",
			zap.String("diagram", in.diagram.Name), zap.Int("retry", in.retryCount))
	} else {
		n.log.Info(ctx, "drafting", zap.String("diagram", in.diagram.Name))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate a %s diagram in PlantUML format.\n\n", strings.ToUpper(in.diagram.Type))
	fmt.Fprintf(&sb, "Diagram Name: %s\n", in.diagram.Name)
	fmt.Fprintf(&sb, "Focus: %s\n", in.diagram.Focus)
	if len(in.diagram.Files) > 0 {
		fmt.Fprintf(&sb, "Relevant Files: %s\n", strings.Join(in.diagram.Files, ", "))
	}
	if in.errorContext != "" {
		fmt.Fprintf(&sb, "\nPREVIOUS ATTEMPT FAILED. Fix these errors:\n%s\n\nGenerate corrected PlantUML code.\n", in.errorContext)
	}

	resp, err := n.client.Generate(ctx, llm.Request{
		Prompt: sb.String(),
		System: drafterSystemPrompt,
		Attachments: []llm.Attachment{
			{Name: "codebase_knowledge.xml", MIME: "text/xml", Content: in.knowledgeXML},
		},
		Temperature: 0.4,
	})
	if err != nil {
		return nil, err
	}

	code := CleanPlantUML(resp)
	n.log.Debug(ctx, "draft generated", zap.Int("lines", strings.Count(code, "\n")+1))
	return code, nil
}

func (n *drafterNode) Post(ctx context.Context, s *State, prep, exec any) (flow.Action, error) {
	in := prep.(drafterInput)
	if in.done {
		return ActionComplete, nil
	}

	s.CurrentUML = exec.(string)
	s.CurrentDiagram = in.diagram
	// Consumed; the critic sets a fresh one if this draft is rejected.
	s.CriticError = ""

	op := ratelimit.OpDrafter
	if in.retryCount > 0 {
		op = ratelimit.OpOnError
	}
	if err := n.pacer.Pace(ctx, op); err != nil {
		return "", err
	}
	return ActionValidate, nil
}

// CleanPlantUML strips markdown fences and guarantees the @startuml and
// @enduml wrapper.
func CleanPlantUML(resp string) string {
	text := llm.StripFences(resp)
	if !strings.Contains(text, "@startuml") {
		text = "@startuml\n" + text
	}
	if !strings.Contains(text, "@enduml") {
		text = text + "\n@enduml"
	}
	return strings.TrimSpace(text)
}
