// Package pipeline wires the generation nodes into the diagram flow:
// scout, surveyor, summarizer, architect, handshake, then the
// drafter/critic correction loop and the closing audit.
package pipeline

import (
	"errors"

	"github.com/fyrsmithlabs/diagramd/internal/audit"
	"github.com/fyrsmithlabs/diagramd/internal/knowledge"
	"github.com/fyrsmithlabs/diagramd/internal/plan"
	"github.com/fyrsmithlabs/diagramd/internal/repo"
)

// ErrDependencyMissing marks broken wiring: a node ran before the node
// that produces its input.
var ErrDependencyMissing = errors.New("pipeline dependency missing")

// GeneratedDiagram records one successfully rendered diagram.
type GeneratedDiagram struct {
	Name     string
	PNGPath  string
	PUMLPath string
}

// SkippedDiagram records a diagram abandoned after its correction
// budget ran out, with the rejection that exhausted it.
type SkippedDiagram struct {
	Name  string
	Cause string
}

// SurveyorVerdict is the file-selection decision the surveyor model
// returns for a project map.
type SurveyorVerdict struct {
	Analysis           string   `json:"analysis"`
	IncludePaths       []string `json:"include_paths"`
	ExcludePatterns    []string `json:"exclude_patterns"`
	EstimatedFileCount int      `json:"estimated_file_count"`
}

// State is the shared blackboard the nodes read and write. Each field
// is owned by the node that produces it; consumers treat absence as
// ErrDependencyMissing.
type State struct {
	RepoURL   string
	WorkDir   string
	OutputDir string

	// Scout.
	ClonePath     string
	Survey        *repo.Survey
	MapFile       string
	InventoryFile string

	// Surveyor.
	Verdict         *SurveyorVerdict
	ProjectAnalysis string

	// Summarizer.
	Knowledge     *knowledge.Result
	KnowledgeFile string

	// Architect.
	Plan     *plan.Plan
	PlanFile string

	// Handshake and the generation loop.
	Queue       []plan.Diagram
	Cursor      int
	RetryCount  int
	CriticError string

	CurrentUML     string
	CurrentDiagram plan.Diagram

	Generated []GeneratedDiagram
	Skipped   []SkippedDiagram

	// Audit.
	AuditResult *audit.Result
}
