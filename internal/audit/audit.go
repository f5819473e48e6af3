// Package audit runs the post-generation duplicate audit: a plan-level
// pass that flags candidate pairs, then a content-level pass that
// compares the rendered sources before anything is archived. Losing
// diagrams move to _deprecated/, they are never deleted.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/llm"
	"github.com/fyrsmithlabs/diagramd/internal/logging"
	"github.com/fyrsmithlabs/diagramd/internal/plan"
)

// Candidate is a plan-level duplicate suspicion: phase 1 proposes
// dropping Dropped in favor of Kept.
type Candidate struct {
	Dropped int    `json:"dropped"`
	Kept    int    `json:"kept"`
	Reason  string `json:"reason"`
}

// Confidence levels phase 2 may report.
const (
	ConfidenceHigh   = "HIGH"
	ConfidenceMedium = "MEDIUM"
	ConfidenceLow    = "LOW"
)

// Decision statuses.
const (
	StatusKeepBoth = "KEEP_BOTH"
	StatusDropA    = "DROP_A"
	StatusDropB    = "DROP_B"
	StatusSkipped  = "SKIPPED"
)

// Decision is the verified outcome for one candidate pair.
type Decision struct {
	DroppedID   int    `json:"dropped_id"`
	KeptID      int    `json:"kept_id"`
	Status      string `json:"status"`
	Duplicates  bool   `json:"are_duplicates"`
	Winner      string `json:"winner,omitempty"`
	Confidence  string `json:"confidence,omitempty"`
	Reason      string `json:"reason"`
	DroppedFile string `json:"dropped_file,omitempty"`
	KeptFile    string `json:"kept_file,omitempty"`
}

// Result summarizes a full audit run.
type Result struct {
	Decisions  []Decision
	Moved      int
	Kept       int
	ReportPath string
}

const auditorSystemPrompt = `You are a diagram quality auditor. You judge whether two diagrams
convey the same information and which presentation is denser and clearer.
Return ONLY the JSON object requested, no extra text.`

// Auditor drives the two-phase audit over an output directory.
type Auditor struct {
	client    llm.Client
	outputDir string
	depDir    string
	log       *logging.Logger
}

// New creates an auditor for outputDir.
func New(client llm.Client, outputDir string, log *logging.Logger) *Auditor {
	if log == nil {
		log = logging.Nop()
	}
	return &Auditor{
		client:    client,
		outputDir: outputDir,
		depDir:    filepath.Join(outputDir, "_deprecated"),
		log:       log.Named("audit"),
	}
}

// Run executes both phases, archives the losers, and writes the
// markdown report. It never returns an error for judgment problems;
// anything the auditor cannot verify resolves to KEEP_BOTH or SKIPPED.
func (a *Auditor) Run(ctx context.Context, p *plan.Plan) (*Result, error) {
	if err := os.MkdirAll(a.depDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating deprecated dir: %w", err)
	}

	a.log.Info(ctx, "phase 1: plan audit", zap.Int("diagrams", len(p.Diagrams)))
	candidates := a.phase1(ctx, p)
	if len(candidates) == 0 {
		a.log.Info(ctx, "no duplicate candidates, all diagrams kept")
		res := &Result{}
		path, err := a.writeReport(res)
		if err != nil {
			return nil, err
		}
		res.ReportPath = path
		return res, nil
	}

	a.log.Info(ctx, "phase 2: content audit", zap.Int("candidates", len(candidates)))
	decisions := a.phase2(ctx, candidates, p)

	res := &Result{Decisions: decisions}
	archived := make(map[string]struct{})
	for i := range decisions {
		d := &decisions[i]
		var victim string
		switch d.Status {
		case StatusDropA:
			victim = d.DroppedFile
		case StatusDropB:
			victim = d.KeptFile
		default:
			res.Kept++
			continue
		}
		// A diagram already archived by an earlier decision in a
		// transitive cluster stays archived once.
		if _, done := archived[victim]; done || victim == "" {
			res.Kept++
			continue
		}
		if err := a.archive(ctx, victim); err != nil {
			a.log.Warn(ctx, "archive failed", zap.String("file", victim), zap.Error(err))
			res.Kept++
			continue
		}
		archived[victim] = struct{}{}
		res.Moved++
	}
	res.Decisions = decisions

	path, err := a.writeReport(res)
	if err != nil {
		return nil, err
	}
	res.ReportPath = path
	a.log.Info(ctx, "audit complete", zap.Int("moved", res.Moved), zap.Int("kept", res.Kept))
	return res, nil
}

// phase1 asks the model for duplicate suspects using plan metadata
// only. Parse trouble means no candidates rather than a failed audit.
func (a *Auditor) phase1(ctx context.Context, p *plan.Plan) []Candidate {
	if len(p.Diagrams) <= 1 {
		return nil
	}

	planJSON, err := json.MarshalIndent(p.Diagrams, "", "  ")
	if err != nil {
		return nil
	}

	prompt := fmt.Sprintf(`Analyze this list of proposed diagrams and identify POTENTIAL DUPLICATES.

=== DIAGRAM PLAN ===
%s

For each pair of diagrams that appear to represent the SAME THING:
- Identify which one to DROP and which to KEEP
- Use information density as the primary criterion

Return JSON:
{
    "drop_ids": [list of IDs to potentially drop],
    "reasoning": [
        {"dropped": id, "kept": id, "reason": "explanation"}
    ]
}

If no duplicates found, return: {"drop_ids": [], "reasoning": []}`, planJSON)

	resp, err := a.client.Generate(ctx, llm.Request{
		Prompt:      prompt,
		System:      auditorSystemPrompt,
		Temperature: 0.3,
	})
	if err != nil {
		a.log.Warn(ctx, "plan audit call failed", zap.Error(err))
		return nil
	}

	var out struct {
		Reasoning []Candidate `json:"reasoning"`
	}
	if err := llm.DecodeJSON(resp, &out); err != nil {
		a.log.Warn(ctx, "plan audit verdict unparseable", zap.Error(err))
		return nil
	}
	return out.Reasoning
}

// phase2 verifies each candidate against the rendered sources.
func (a *Auditor) phase2(ctx context.Context, candidates []Candidate, p *plan.Plan) []Decision {
	var out []Decision
	for _, c := range candidates {
		dropped, okD := p.ByID(c.Dropped)
		kept, okK := p.ByID(c.Kept)
		if !okD || !okK {
			out = append(out, Decision{
				DroppedID: c.Dropped, KeptID: c.Kept,
				Status: StatusSkipped, Reason: "diagram not in plan",
			})
			continue
		}

		droppedFile := a.findDiagramFile(dropped.Name)
		keptFile := a.findDiagramFile(kept.Name)
		if droppedFile == "" || keptFile == "" {
			missing := dropped.Name
			if droppedFile != "" {
				missing = kept.Name
			}
			out = append(out, Decision{
				DroppedID: c.Dropped, KeptID: c.Kept,
				Status: StatusSkipped,
				Reason: fmt.Sprintf("file not found: %s", missing),
			})
			continue
		}

		droppedSrc, err1 := os.ReadFile(droppedFile)
		keptSrc, err2 := os.ReadFile(keptFile)
		if err1 != nil || err2 != nil {
			out = append(out, Decision{
				DroppedID: c.Dropped, KeptID: c.Kept,
				Status: StatusSkipped, Reason: "could not read diagram source",
			})
			continue
		}

		d := a.compare(ctx, c, dropped.Name, string(droppedSrc), kept.Name, string(keptSrc))
		d.DroppedFile = droppedFile
		d.KeptFile = keptFile
		out = append(out, d)
	}
	return out
}

// compare makes the final call for one pair. Only a confident verdict
// drops anything; doubt keeps both.
func (a *Auditor) compare(ctx context.Context, c Candidate, nameA, srcA, nameB, srcB string) Decision {
	prompt := fmt.Sprintf(`Compare these two PlantUML diagrams.

=== DIAGRAM A (ID %d: %s) ===
`+"```plantuml\n%s\n```"+`

=== DIAGRAM B (ID %d: %s) ===
`+"```plantuml\n%s\n```"+`

**Previous Plan Analysis** (based on description only):
- Recommended: Drop A, Keep B
- Reason: %s

**Your Task**: Analyze the ACTUAL diagram content.
1. Are these truly duplicates showing the same information?
2. If yes, which one provides better visual clarity and information density?
3. If they show different aspects or views, they are NOT duplicates.

Return JSON:
{
    "are_duplicates": true/false,
    "winner": "A" or "B" or "BOTH",
    "confidence": "HIGH", "MEDIUM", or "LOW",
    "reason": "explanation"
}`, c.Dropped, nameA, clip(srcA, 3000), c.Kept, nameB, clip(srcB, 3000), c.Reason)

	base := Decision{DroppedID: c.Dropped, KeptID: c.Kept}

	resp, err := a.client.Generate(ctx, llm.Request{
		Prompt:      prompt,
		System:      auditorSystemPrompt,
		Temperature: 0.2,
	})
	if err != nil {
		base.Status = StatusKeepBoth
		base.Reason = fmt.Sprintf("comparison call failed: %v", err)
		return base
	}

	var verdict struct {
		Duplicates bool   `json:"are_duplicates"`
		Winner     string `json:"winner"`
		Confidence string `json:"confidence"`
		Reason     string `json:"reason"`
	}
	if err := llm.DecodeJSON(resp, &verdict); err != nil {
		base.Status = StatusKeepBoth
		base.Reason = fmt.Sprintf("parse error: %v", err)
		return base
	}

	base.Duplicates = verdict.Duplicates
	base.Winner = verdict.Winner
	base.Confidence = verdict.Confidence
	base.Reason = verdict.Reason

	switch {
	case !verdict.Duplicates || verdict.Winner == "BOTH":
		base.Status = StatusKeepBoth
	case verdict.Confidence == ConfidenceLow:
		base.Status = StatusKeepBoth
	case verdict.Winner == "A":
		// The plan had it backwards; B is the redundant one.
		base.Status = StatusDropB
	default:
		base.Status = StatusDropA
	}
	a.log.Info(ctx, "pair verdict",
		zap.Int("dropped_id", c.Dropped), zap.Int("kept_id", c.Kept),
		zap.String("status", base.Status), zap.String("confidence", verdict.Confidence))
	return base
}

var nonFilenameChars = regexp.MustCompile(`[^a-z0-9_]`)

// SanitizeName converts a diagram name into its filename form.
func SanitizeName(name string) string {
	s := strings.ToLower(strings.ReplaceAll(name, " ", "_"))
	s = nonFilenameChars.ReplaceAllString(s, "")
	if len(s) > 50 {
		s = s[:50]
	}
	return s
}

// findDiagramFile locates the .puml file for a diagram name, exact
// match first, then substring either way.
func (a *Auditor) findDiagramFile(name string) string {
	entries, err := os.ReadDir(a.outputDir)
	if err != nil {
		return ""
	}
	want := SanitizeName(name)

	var pumls []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".puml") {
			pumls = append(pumls, e.Name())
		}
	}
	for _, f := range pumls {
		base := strings.ToLower(strings.TrimSuffix(f, ".puml"))
		if base == want {
			return filepath.Join(a.outputDir, f)
		}
	}
	for _, f := range pumls {
		base := strings.ToLower(strings.TrimSuffix(f, ".puml"))
		if strings.Contains(base, want) || strings.Contains(want, base) {
			return filepath.Join(a.outputDir, f)
		}
	}
	return ""
}

// archive moves a diagram source and its rendered image into
// _deprecated/.
func (a *Auditor) archive(ctx context.Context, pumlPath string) error {
	base := filepath.Base(pumlPath)
	if err := os.Rename(pumlPath, filepath.Join(a.depDir, base)); err != nil {
		return err
	}
	a.log.Info(ctx, "archived diagram", zap.String("file", base))

	pngPath := strings.TrimSuffix(pumlPath, ".puml") + ".png"
	if _, err := os.Stat(pngPath); err == nil {
		pngBase := filepath.Base(pngPath)
		if err := os.Rename(pngPath, filepath.Join(a.depDir, pngBase)); err != nil {
			return err
		}
	}
	return nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n... (truncated)"
}
