package pipeline

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/diagramd/internal/flow"
	"github.com/fyrsmithlabs/diagramd/internal/knowledge"
	"github.com/fyrsmithlabs/diagramd/internal/llm"
	"github.com/fyrsmithlabs/diagramd/internal/logging"
	"github.com/fyrsmithlabs/diagramd/internal/metrics"
	"github.com/fyrsmithlabs/diagramd/internal/plan"
	"github.com/fyrsmithlabs/diagramd/internal/ratelimit"
	"github.com/fyrsmithlabs/diagramd/internal/render"
)

func TestExcluded(t *testing.T) {
	cases := []struct {
		name     string
		path     string
		patterns []string
		want     bool
	}{
		{"no patterns", "src/main.go", nil, false},
		{"dir prefix at root", "tests/test_app.py", []string{"tests/"}, true},
		{"dir prefix nested", "src/tests/test_app.py", []string{"tests/"}, true},
		{"dir prefix no match", "src/contest.py", []string{"tests/"}, false},
		{"glob on basename", "build/cache.pyc", []string{"*.pyc"}, true},
		{"glob no match", "src/main.go", []string{"*.pyc"}, false},
		{"plain substring", "docs/generated_api.md", []string{"generated"}, true},
		{"empty pattern ignored", "src/main.go", []string{""}, false},
		{"second pattern matches", "migrations/0001_init.sql", []string{"*.lock", "migrations/"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, excluded(tc.path, tc.patterns))
		})
	}
}

func TestCleanPlantUML(t *testing.T) {
	assert.Equal(t, "@startuml\nclass A\n@enduml",
		CleanPlantUML("```plantuml\n@startuml\nclass A\n@enduml\n```"))

	assert.Equal(t, "@startuml\nclass A\n@enduml",
		CleanPlantUML("class A"))

	assert.Equal(t, "@startuml\nclass A\n@enduml",
		CleanPlantUML("@startuml\nclass A\n@enduml"))

	out := CleanPlantUML("class A\n@enduml")
	assert.True(t, strings.HasPrefix(out, "@startuml"))
	assert.True(t, strings.HasSuffix(out, "@enduml"))
}

func TestParseIDList(t *testing.T) {
	ids, err := parseIDList("1, 3,5")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 5}, ids)

	_, err = parseIDList("1,two")
	assert.Error(t, err)
}

func testPlan() *plan.Plan {
	return &plan.Plan{
		ProjectSummary: "demo",
		Diagrams: []plan.Diagram{
			{ID: 1, Name: "Overview", Type: "class", Focus: "core types"},
			{ID: 2, Name: "Flow", Type: "sequence", Focus: "request path"},
			{ID: 3, Name: "Deploy", Type: "component", Focus: "topology"},
		},
	}
}

func newTestHandshake(input string, nonInteractive bool) (*handshakeNode, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &handshakeNode{
		in:             strings.NewReader(input),
		out:            out,
		nonInteractive: nonInteractive,
		log:            logging.Nop(),
	}, out
}

func TestHandshakeNonInteractiveSelectsAll(t *testing.T) {
	n, out := newTestHandshake("", true)
	s := &State{Plan: testPlan()}

	prep, err := n.Prep(context.Background(), s)
	require.NoError(t, err)
	exec, err := n.Exec(context.Background(), prep)
	require.NoError(t, err)

	selected := exec.([]plan.Diagram)
	assert.Len(t, selected, 3)
	assert.Contains(t, out.String(), "PROPOSED ARCHITECTURAL DIAGRAMS")
	assert.Contains(t, out.String(), "Overview")

	action, err := n.Post(context.Background(), s, prep, exec)
	require.NoError(t, err)
	assert.Equal(t, flow.ActionDefault, action)
	assert.Len(t, s.Queue, 3)
	assert.Zero(t, s.Cursor)
}

func TestHandshakeSelectByID(t *testing.T) {
	n, _ := newTestHandshake("1,3\n", false)
	exec, err := n.Exec(context.Background(), testPlan().Diagrams)
	require.NoError(t, err)

	selected := exec.([]plan.Diagram)
	require.Len(t, selected, 2)
	assert.Equal(t, "Overview", selected[0].Name)
	assert.Equal(t, "Deploy", selected[1].Name)
}

func TestHandshakeRepromptsOnGarbage(t *testing.T) {
	n, out := newTestHandshake("banana\n99\n2\n", false)
	exec, err := n.Exec(context.Background(), testPlan().Diagrams)
	require.NoError(t, err)

	selected := exec.([]plan.Diagram)
	require.Len(t, selected, 1)
	assert.Equal(t, "Flow", selected[0].Name)
	assert.Contains(t, out.String(), "Invalid input")
	assert.Contains(t, out.String(), "No matching diagrams")
}

func TestHandshakeQuit(t *testing.T) {
	n, _ := newTestHandshake("quit\n", false)
	s := &State{Plan: testPlan()}

	exec, err := n.Exec(context.Background(), testPlan().Diagrams)
	require.NoError(t, err)
	assert.Empty(t, exec.([]plan.Diagram))

	action, err := n.Post(context.Background(), s, testPlan().Diagrams, exec)
	require.NoError(t, err)
	assert.Equal(t, ActionQuit, action)
	assert.Nil(t, s.Queue)
}

func TestHandshakeEOFSelectsAll(t *testing.T) {
	n, _ := newTestHandshake("", false)
	exec, err := n.Exec(context.Background(), testPlan().Diagrams)
	require.NoError(t, err)
	assert.Len(t, exec.([]plan.Diagram), 3)
}

func TestCriticPostSuccessAdvancesQueue(t *testing.T) {
	n := newCriticNode(nil, 3, metrics.New(), logging.Nop())
	s := &State{
		Queue:      testPlan().Diagrams,
		Cursor:     0,
		RetryCount: 2,
	}

	action, err := n.Post(context.Background(), s,
		criticInput{name: "Overview"},
		criticResult{success: true, pngPath: "/out/a.png", pumlPath: "/out/a.puml"})
	require.NoError(t, err)

	assert.Equal(t, ActionNext, action)
	assert.Equal(t, 1, s.Cursor)
	assert.Zero(t, s.RetryCount)
	require.Len(t, s.Generated, 1)
	assert.Equal(t, "Overview", s.Generated[0].Name)
}

func TestCriticPostRejectionRoutesRetry(t *testing.T) {
	n := newCriticNode(nil, 3, metrics.New(), logging.Nop())
	s := &State{Queue: testPlan().Diagrams}

	action, err := n.Post(context.Background(), s,
		criticInput{name: "Overview"},
		criticResult{errText: "Syntax validation failed: missing @enduml"})
	require.NoError(t, err)

	assert.Equal(t, ActionRetry, action)
	assert.Equal(t, 1, s.RetryCount)
	assert.Equal(t, "Syntax validation failed: missing @enduml", s.CriticError)
	assert.Zero(t, s.Cursor)
}

func TestCriticPostExhaustionSkipsDiagram(t *testing.T) {
	n := newCriticNode(nil, 3, metrics.New(), logging.Nop())
	s := &State{Queue: testPlan().Diagrams, RetryCount: 3}

	action, err := n.Post(context.Background(), s,
		criticInput{name: "Overview"},
		criticResult{errText: "Kroki rendering failed: 400"})
	require.NoError(t, err)

	assert.Equal(t, ActionNext, action)
	assert.Equal(t, 1, s.Cursor)
	assert.Zero(t, s.RetryCount)
	assert.Empty(t, s.CriticError)
	require.Len(t, s.Skipped, 1)
	assert.Equal(t, "Overview", s.Skipped[0].Name)
	assert.Equal(t, "Kroki rendering failed: 400", s.Skipped[0].Cause)
	assert.Empty(t, s.Generated)
}

func TestDrafterPrepDoneAtQueueEnd(t *testing.T) {
	n := &drafterNode{log: logging.Nop()}
	s := &State{Queue: testPlan().Diagrams, Cursor: 3}

	prep, err := n.Prep(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, prep.(drafterInput).done)

	action, err := n.Post(context.Background(), s, prep, "")
	require.NoError(t, err)
	assert.Equal(t, ActionComplete, action)
}

func TestDrafterPrepCarriesCriticError(t *testing.T) {
	n := &drafterNode{log: logging.Nop()}
	s := &State{
		Queue:       testPlan().Diagrams,
		Cursor:      1,
		RetryCount:  1,
		CriticError: "missing @enduml",
		Knowledge:   &knowledge.Result{XML: "<codebase_knowledge/>"},
	}

	prep, err := n.Prep(context.Background(), s)
	require.NoError(t, err)

	in := prep.(drafterInput)
	assert.False(t, in.done)
	assert.Equal(t, "Flow", in.diagram.Name)
	assert.Equal(t, "missing @enduml", in.errorContext)
	assert.Equal(t, 1, in.retryCount)
}

func TestDrafterPrepRequiresKnowledge(t *testing.T) {
	n := &drafterNode{log: logging.Nop()}
	s := &State{Queue: testPlan().Diagrams}

	_, err := n.Prep(context.Background(), s)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyMissing)
}

// drafterClient emits a fixed draft per diagram name. The FLAKY marker
// makes the render service reject the draft every time.
type drafterClient struct{}

func (drafterClient) Generate(_ context.Context, req llm.Request) (string, error) {
	if strings.Contains(req.Prompt, "Diagram Name: Flaky") {
		return "@startuml\nFLAKY\n@enduml", nil
	}
	return "@startuml\nclass Ok\n@enduml", nil
}

func TestGenerationLoopSkipsFailingDiagram(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "FLAKY") {
			http.Error(w, "syntax error", http.StatusBadRequest)
			return
		}
		w.Write([]byte("png"))
	}))
	defer srv.Close()

	noSleep := func(context.Context, time.Duration) error { return nil }
	pacer := ratelimit.NewPacer(ratelimit.ModeFast, ratelimit.WithPacerSleep(noSleep))
	renderer := render.NewClient(srv.URL, time.Second)

	engine := flow.NewEngine[*State]("drafter")
	engine.AddNode(newDrafterNode(drafterClient{}, pacer, logging.Nop()))
	engine.AddNode(newCriticNode(renderer, 2, metrics.New(), logging.Nop()))
	require.NoError(t, engine.Connect("drafter", ActionValidate, "critic"))
	require.NoError(t, engine.Connect("critic", ActionRetry, "drafter"))
	require.NoError(t, engine.Connect("critic", ActionNext, "drafter"))

	s := &State{
		Queue: []plan.Diagram{
			{ID: 1, Name: "Alpha", Type: "class", Focus: "a"},
			{ID: 2, Name: "Flaky", Type: "class", Focus: "b"},
			{ID: 3, Name: "Gamma", Type: "class", Focus: "c"},
		},
		OutputDir: t.TempDir(),
		Knowledge: &knowledge.Result{XML: "<codebase_knowledge/>"},
	}

	require.NoError(t, engine.Run(context.Background(), s))

	require.Len(t, s.Generated, 2)
	assert.Equal(t, "Alpha", s.Generated[0].Name)
	assert.Equal(t, "Gamma", s.Generated[1].Name)
	require.Len(t, s.Skipped, 1)
	assert.Equal(t, "Flaky", s.Skipped[0].Name)
	assert.Contains(t, s.Skipped[0].Cause, "rendering failed")
	assert.Equal(t, 3, s.Cursor)
	assert.FileExists(t, s.Generated[0].PNGPath)
	assert.FileExists(t, s.Generated[1].PUMLPath)
}

func TestSummaryVerdicts(t *testing.T) {
	t.Run("all skipped is a failure with the first cause", func(t *testing.T) {
		s, err := newSummary(&State{
			Plan:  testPlan(),
			Queue: testPlan().Diagrams,
			Skipped: []SkippedDiagram{
				{Name: "Overview", Cause: "Kroki rendering failed: 400"},
				{Name: "Flow", Cause: "Syntax validation failed: missing @enduml"},
			},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no diagrams generated")
		assert.Contains(t, err.Error(), "Overview")
		assert.Contains(t, err.Error(), "Kroki rendering failed: 400")
		require.NotNil(t, s)
		assert.Len(t, s.Skipped, 2)
	})

	t.Run("one artifact is a partial success", func(t *testing.T) {
		s, err := newSummary(&State{
			Plan:      testPlan(),
			Queue:     testPlan().Diagrams,
			Generated: []GeneratedDiagram{{Name: "Overview"}},
			Skipped:   []SkippedDiagram{{Name: "Flow", Cause: "render error"}},
		})
		require.NoError(t, err)
		assert.True(t, s.Partial())
	})

	t.Run("declined checkpoint is not a failure", func(t *testing.T) {
		s, err := newSummary(&State{Plan: testPlan()})
		require.NoError(t, err)
		assert.True(t, s.Cancelled)
	})
}
