package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/flow"
	"github.com/fyrsmithlabs/diagramd/internal/llm"
	"github.com/fyrsmithlabs/diagramd/internal/logging"
	"github.com/fyrsmithlabs/diagramd/internal/ratelimit"
	"github.com/fyrsmithlabs/diagramd/internal/retry"
)

const surveyorSystemPrompt = `You are a code surveyor selecting files for architectural analysis.

Select ALL files containing source code, business logic, models, controllers,
services, and essential configuration. Skip:
- Tests: tests/, spec/, __tests__/
- Cache/build output: __pycache__, node_modules, dist, build, venv, .git
- Binary assets and lockfiles

JSON OUTPUT FORMAT (strictly follow this):
{
    "analysis": "1-2 sentence summary of project structure",
    "include_paths": ["file1.py", "requirements.txt", "README.md"],
    "exclude_patterns": ["tests/", "node_modules/", "*.pyc"],
    "estimated_file_count": 12
}

RULES:
- Return ONLY valid JSON.
- Do not explain your reasoning outside the JSON.
- If in doubt, INCLUDE the file.`

// surveyorNode asks the model which files matter, retrying the parse up
// to three times with an explicit reformat request before declaring the
// run unrecoverable.
type surveyorNode struct {
	client llm.Client
	pacer  *ratelimit.Pacer
	log    *logging.Logger
}

const surveyorParseAttempts = 3

func newSurveyorNode(client llm.Client, pacer *ratelimit.Pacer, log *logging.Logger) *surveyorNode {
	return &surveyorNode{client: client, pacer: pacer, log: log.Named("surveyor")}
}

func (n *surveyorNode) Name() string { return "surveyor" }

func (n *surveyorNode) Prep(ctx context.Context, s *State) (any, error) {
	if s.Survey == nil {
		return nil, fmt.Errorf("%w: project survey (scout must run first)", ErrDependencyMissing)
	}
	return s.Survey.Map, nil
}

func (n *surveyorNode) Exec(ctx context.Context, prep any) (any, error) {
	projectMap := prep.(string)

	basePrompt := fmt.Sprintf(`Analyze this project structure and identify ALL the important source files needed to understand the architecture:

PROJECT STRUCTURE:
`+"```\n%s\n```"+`

IMPORTANT: Select ALL files that contain source code, business logic, models,
controllers, services, and essential configuration. Do NOT limit your
selection. Include everything needed for complete architectural understanding.

Return paths needed to understand the system architecture and generate accurate diagrams.`, projectMap)

	var lastErr error
	for attempt := 0; attempt < surveyorParseAttempts; attempt++ {
		prompt := basePrompt
		if attempt > 0 {
			n.log.Info(ctx, "requesting properly formatted JSON",
				zap.Int("attempt", attempt+1), zap.Error(lastErr))
			prompt = fmt.Sprintf(`Your previous response was not valid JSON. Error: %v

%s

CRITICAL: Return ONLY a valid JSON object. No markdown code blocks, no explanatory text.
Example format:
{"analysis": "...", "include_paths": ["file1.py", "file2.js"], "exclude_patterns": ["*.log"], "estimated_file_count": 10}`, lastErr, basePrompt)
		}

		resp, err := n.client.Generate(ctx, llm.Request{
			Prompt:      prompt,
			System:      surveyorSystemPrompt,
			Temperature: 0.3,
		})
		if err != nil {
			return nil, err
		}

		var v SurveyorVerdict
		if err := llm.DecodeJSON(resp, &v); err != nil {
			lastErr = err
			continue
		}
		if v.Analysis == "" {
			v.Analysis = "Unknown project type"
		}
		n.log.Info(ctx, "survey complete",
			zap.String("analysis", v.Analysis),
			zap.Int("selected", len(v.IncludePaths)))
		return &v, nil
	}

	// Unparseable output after explicit reformat requests means the
	// model cannot drive this pipeline; abort rather than guess.
	return nil, retry.Permanent(fmt.Errorf(
		"could not parse surveyor response after %d attempts: %w", surveyorParseAttempts, lastErr))
}

func (n *surveyorNode) Post(ctx context.Context, s *State, _, exec any) (flow.Action, error) {
	v := exec.(*SurveyorVerdict)
	s.Verdict = v
	s.ProjectAnalysis = v.Analysis

	data, err := json.MarshalIndent(v, "", "  ")
	if err == nil {
		path := filepath.Join(s.WorkDir, "upload_config.json")
		if werr := os.WriteFile(path, data, 0o644); werr != nil {
			n.log.Warn(ctx, "could not save surveyor verdict", zap.Error(werr))
		}
	}

	if err := n.pacer.Pace(ctx, ratelimit.OpSingleCall); err != nil {
		return "", err
	}
	return flow.ActionDefault, nil
}
