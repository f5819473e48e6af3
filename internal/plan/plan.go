// Package plan defines the diagram plan the architect produces and the
// generation pipeline consumes.
package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/diagramd/internal/llm"
)

// Diagram is one planned diagram.
type Diagram struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Focus      string   `json:"focus"`
	Files      []string `json:"files"`
	Complexity string   `json:"complexity,omitempty"`
}

// Plan is the architect's full proposal.
type Plan struct {
	ProjectSummary string    `json:"project_summary"`
	Diagrams       []Diagram `json:"diagrams"`
}

// Parse extracts a plan from raw model output. An unparseable response
// falls back to a generic two-diagram plan so the pipeline can still
// produce something useful.
func Parse(raw string) *Plan {
	var p Plan
	if err := llm.DecodeJSON(raw, &p); err != nil {
		return fallbackPlan()
	}
	if len(p.Diagrams) == 0 {
		return fallbackPlan()
	}
	return &p
}

func fallbackPlan() *Plan {
	return &Plan{
		ProjectSummary: "Unable to fully analyze project",
		Diagrams: []Diagram{
			{
				ID:         1,
				Name:       "System Overview Class Diagram",
				Type:       "class",
				Focus:      "Main classes and their relationships",
				Complexity: "medium",
			},
			{
				ID:         2,
				Name:       "Component Architecture",
				Type:       "component",
				Focus:      "High-level system components and dependencies",
				Complexity: "low",
			},
		},
	}
}

// Save writes the plan as JSON into dir and returns the file path.
func (p *Plan) Save(dir string) (string, error) {
	path := filepath.Join(dir, "diagram_plan.json")
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing plan: %w", err)
	}
	return path, nil
}

// Load reads a previously saved plan.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding plan: %w", err)
	}
	return &p, nil
}

// ByID returns the diagram with the given id.
func (p *Plan) ByID(id int) (Diagram, bool) {
	for _, d := range p.Diagrams {
		if d.ID == id {
			return d, true
		}
	}
	return Diagram{}, false
}
