// Package supervisor implements two-stage validation of generated
// content: a cheap local structural check first, then an escalation
// loop that obtains an LLM critique and regenerates, bounded by a
// retry budget.
package supervisor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/llm"
	"github.com/fyrsmithlabs/diagramd/internal/logging"
)

// Verdict is the structured result of an LLM critique.
type Verdict struct {
	IsValid  bool     `json:"is_valid"`
	Issues   []string `json:"issues"`
	Critique string   `json:"critique"`
}

// Context carries what the critique step needs to judge a candidate
// against its task.
type Context struct {
	// PreviousXML is the accumulator state before the merge under
	// review.
	PreviousXML string

	// BatchFiles are the paths the candidate was supposed to add.
	BatchFiles []string

	// OriginalPrompt is the prompt that produced the candidate.
	OriginalPrompt string
}

// RegenerateFunc produces a fresh candidate from a critique.
type RegenerateFunc func(ctx context.Context, critique string) (string, error)

// Validator is the local structural check. It must be cheap and
// deterministic; returning nil short-circuits any escalation.
type Validator func(candidate string) error

const supervisorSystemPrompt = `You are a senior code reviewer analyzing another model's output.
Judge whether the response satisfies its task. Return ONLY a JSON object:
{"is_valid": true/false, "issues": ["..."], "critique": "specific feedback for the worker"}
If the response is valid, return {"is_valid": true, "issues": [], "critique": ""}.`

// Supervisor escalates candidates that fail the local check.
type Supervisor struct {
	client     llm.Client
	validate   Validator
	maxRetries int
	log        *logging.Logger
}

// New creates a supervisor. maxRetries bounds the whole
// critique-and-regenerate loop, not individual provider calls.
func New(client llm.Client, validate Validator, maxRetries int, log *logging.Logger) *Supervisor {
	if log == nil {
		log = logging.Nop()
	}
	if maxRetries <= 0 {
		maxRetries = 10
	}
	return &Supervisor{
		client:     client,
		validate:   validate,
		maxRetries: maxRetries,
		log:        log.Named("supervisor"),
	}
}

// Supervise validates candidate and drives the correction loop.
//
// A candidate that passes the local check is returned immediately with
// ok=true and no external calls. Otherwise each round obtains a
// critique; a valid verdict accepts the current candidate, an invalid
// one regenerates with the critique folded in. Exhausting the budget
// returns the last candidate with ok=false rather than an error, so
// callers decide whether a degraded result is acceptable.
func (s *Supervisor) Supervise(ctx context.Context, candidate string, sctx Context, regenerate RegenerateFunc) (string, bool) {
	current := candidate

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		localErr := s.validate(current)
		if localErr == nil {
			s.log.Debug(ctx, "local validation passed", zap.Int("attempt", attempt))
			return current, true
		}

		s.log.Debug(ctx, "local validation failed, escalating",
			zap.Int("attempt", attempt), zap.Error(localErr))

		verdict := s.critique(ctx, current, sctx, localErr)
		if verdict.IsValid {
			return current, true
		}
		for i, issue := range verdict.Issues {
			if i >= 2 {
				break
			}
			s.log.Debug(ctx, "critique issue", zap.String("issue", issue))
		}

		if attempt == s.maxRetries {
			break
		}

		regenerated, err := regenerate(ctx, verdict.Critique)
		if err != nil {
			// Regeneration trouble burns the attempt; the next round
			// re-validates the unchanged candidate.
			s.log.Warn(ctx, "regeneration failed", zap.Error(err))
			continue
		}
		current = regenerated
	}

	s.log.Warn(ctx, "correction budget exhausted", zap.Int("max_retries", s.maxRetries))
	return current, false
}

// critique asks the supervisor model what went wrong. A critique that
// itself cannot be obtained or parsed is treated as an invalid verdict
// with generic feedback, mirroring how unusable worker output is
// handled.
func (s *Supervisor) critique(ctx context.Context, candidate string, sctx Context, localErr error) Verdict {
	prompt := buildCritiquePrompt(candidate, sctx, localErr)

	resp, err := s.client.Generate(ctx, llm.Request{
		Prompt: prompt,
		System: supervisorSystemPrompt,
	})
	if err != nil {
		s.log.Warn(ctx, "critique call failed", zap.Error(err))
		return fallbackVerdict(localErr)
	}

	var v Verdict
	if err := llm.DecodeJSON(resp, &v); err != nil {
		s.log.Warn(ctx, "critique verdict unparseable", zap.Error(err))
		return fallbackVerdict(localErr)
	}
	return v
}

func fallbackVerdict(localErr error) Verdict {
	return Verdict{
		IsValid:  false,
		Issues:   []string{"supervisor analysis failed"},
		Critique: fmt.Sprintf("Fix this error and return a structurally valid response: %v", localErr),
	}
}

func buildCritiquePrompt(candidate string, sctx Context, localErr error) string {
	prevPreview := truncate(sctx.PreviousXML, 3000)
	candPreview := truncate(candidate, 3000)
	promptPreview := truncate(sctx.OriginalPrompt, 1500)

	return fmt.Sprintf(`Analyze a worker model's output that failed a structural check.

=== CONTEXT ===
- Task: merge new file summaries into an existing knowledge document.
- Previous document size: %d characters
- Files sent in this batch: %v
- Detected error: %v

=== PREVIOUS DOCUMENT (before this batch) ===
%s

=== WORKER'S RESPONSE ===
%s

=== ORIGINAL PROMPT GIVEN TO WORKER ===
%s

Determine whether data was lost, structure corrupted, or content left
incomplete, and craft a specific critique telling the worker what to fix.`,
		len(sctx.PreviousXML), sctx.BatchFiles, localErr,
		prevPreview, candPreview, promptPreview)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
