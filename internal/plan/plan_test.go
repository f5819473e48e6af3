package plan

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFencedPlan(t *testing.T) {
	raw := "```json\n" + `{
  "project_summary": "A small web service",
  "diagrams": [
    {"id": 1, "name": "Request Flow", "type": "sequence", "focus": "HTTP handling", "files": ["server.go"], "complexity": "low"}
  ]
}` + "\n```"

	p := Parse(raw)
	assert.Equal(t, "A small web service", p.ProjectSummary)
	require.Len(t, p.Diagrams, 1)
	assert.Equal(t, "Request Flow", p.Diagrams[0].Name)
	assert.Equal(t, []string{"server.go"}, p.Diagrams[0].Files)
}

func TestParseWithSurroundingProse(t *testing.T) {
	raw := `Here is my proposal:
{"project_summary": "CLI tool", "diagrams": [{"id": 3, "name": "Commands", "type": "class", "focus": "command tree"}]}
Happy to refine further.`

	p := Parse(raw)
	assert.Equal(t, "CLI tool", p.ProjectSummary)
	require.Len(t, p.Diagrams, 1)
	assert.Equal(t, 3, p.Diagrams[0].ID)
}

func TestParseFallsBackOnGarbage(t *testing.T) {
	p := Parse("I am unable to comply with this request.")
	assert.Equal(t, "Unable to fully analyze project", p.ProjectSummary)
	require.Len(t, p.Diagrams, 2)
	assert.Equal(t, "class", p.Diagrams[0].Type)
	assert.Equal(t, "component", p.Diagrams[1].Type)
}

func TestParseFallsBackOnEmptyDiagramList(t *testing.T) {
	p := Parse(`{"project_summary": "Empty", "diagrams": []}`)
	require.Len(t, p.Diagrams, 2)
	assert.Equal(t, 1, p.Diagrams[0].ID)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	orig := &Plan{
		ProjectSummary: "Round trip",
		Diagrams: []Diagram{
			{ID: 1, Name: "Overview", Type: "component", Focus: "top level", Files: []string{"main.go"}},
		},
	}

	path, err := orig.Save(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "diagram_plan.json"), path)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, orig, loaded)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestByID(t *testing.T) {
	p := &Plan{Diagrams: []Diagram{{ID: 1, Name: "A"}, {ID: 7, Name: "B"}}}

	d, ok := p.ByID(7)
	assert.True(t, ok)
	assert.Equal(t, "B", d.Name)

	_, ok = p.ByID(2)
	assert.False(t, ok)
}
