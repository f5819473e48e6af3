package flow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/diagramd/internal/retry"
)

// testState is a minimal blackboard for engine tests.
type testState struct {
	visits  []string
	counter int
}

// funcNode builds nodes from closures so each test reads as a script.
type funcNode struct {
	name     string
	prep     func(ctx context.Context, s *testState) (any, error)
	exec     func(ctx context.Context, prep any) (any, error)
	post     func(ctx context.Context, s *testState, prep, exec any) (Action, error)
	policy   *retry.Policy
	fallback func(ctx context.Context, prep any, execErr error) (any, error)
}

func (n *funcNode) Name() string { return n.name }

func (n *funcNode) Prep(ctx context.Context, s *testState) (any, error) {
	if n.prep == nil {
		return nil, nil
	}
	return n.prep(ctx, s)
}

func (n *funcNode) Exec(ctx context.Context, prep any) (any, error) {
	if n.exec == nil {
		return nil, nil
	}
	return n.exec(ctx, prep)
}

func (n *funcNode) Post(ctx context.Context, s *testState, prep, exec any) (Action, error) {
	s.visits = append(s.visits, n.name)
	if n.post == nil {
		return ActionDefault, nil
	}
	return n.post(ctx, s, prep, exec)
}

func (n *funcNode) RetryPolicy() retry.Policy {
	if n.policy != nil {
		return *n.policy
	}
	return retry.Policy{MaxAttempts: 1}
}

type fallbackNode struct {
	*funcNode
}

func (n *fallbackNode) ExecFallback(ctx context.Context, prep any, execErr error) (any, error) {
	return n.funcNode.fallback(ctx, prep, execErr)
}

func TestEngineRunsLinearChain(t *testing.T) {
	e := NewEngine[*testState]("a")
	e.AddNode(&funcNode{name: "a"})
	e.AddNode(&funcNode{name: "b"})
	e.AddNode(&funcNode{name: "c", post: func(ctx context.Context, s *testState, _, _ any) (Action, error) {
		return ActionDone, nil
	}})
	require.NoError(t, e.Connect("a", ActionDefault, "b"))
	require.NoError(t, e.Connect("b", ActionDefault, "c"))

	s := &testState{}
	require.NoError(t, e.Run(context.Background(), s))
	assert.Equal(t, []string{"a", "b", "c"}, s.visits)
}

func TestEngineUnregisteredActionEndsRun(t *testing.T) {
	e := NewEngine[*testState]("a")
	e.AddNode(&funcNode{name: "a", post: func(ctx context.Context, s *testState, _, _ any) (Action, error) {
		return Action("nowhere"), nil
	}})
	e.AddNode(&funcNode{name: "b"})
	require.NoError(t, e.Connect("a", ActionDefault, "b"))

	s := &testState{}
	require.NoError(t, e.Run(context.Background(), s))
	assert.Equal(t, []string{"a"}, s.visits, "run must stop without reaching b")
}

func TestEngineRoutesByAction(t *testing.T) {
	e := NewEngine[*testState]("decide")
	e.AddNode(&funcNode{name: "decide", post: func(ctx context.Context, s *testState, _, _ any) (Action, error) {
		return Action("left"), nil
	}})
	e.AddNode(&funcNode{name: "l", post: func(ctx context.Context, s *testState, _, _ any) (Action, error) {
		return ActionDone, nil
	}})
	e.AddNode(&funcNode{name: "r", post: func(ctx context.Context, s *testState, _, _ any) (Action, error) {
		return ActionDone, nil
	}})
	require.NoError(t, e.Connect("decide", Action("left"), "l"))
	require.NoError(t, e.Connect("decide", Action("right"), "r"))

	s := &testState{}
	require.NoError(t, e.Run(context.Background(), s))
	assert.Equal(t, []string{"decide", "l"}, s.visits)
}

func TestEngineSupportsCycles(t *testing.T) {
	// worker loops back to itself until the counter reaches 3.
	e := NewEngine[*testState]("worker")
	e.AddNode(&funcNode{name: "worker", post: func(ctx context.Context, s *testState, _, _ any) (Action, error) {
		s.counter++
		if s.counter < 3 {
			return Action("again"), nil
		}
		return ActionDone, nil
	}})
	require.NoError(t, e.Connect("worker", Action("again"), "worker"))

	s := &testState{}
	require.NoError(t, e.Run(context.Background(), s))
	assert.Equal(t, 3, s.counter)
	assert.Len(t, s.visits, 3)
}

func TestEnginePrepErrorIsFatal(t *testing.T) {
	boom := errors.New("missing input")
	e := NewEngine[*testState]("a")
	e.AddNode(&funcNode{name: "a", prep: func(ctx context.Context, s *testState) (any, error) {
		return nil, boom
	}})

	err := e.Run(context.Background(), &testState{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "node a: prep")
}

func TestEngineRetriesExecAndSucceeds(t *testing.T) {
	calls := 0
	policy := retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 2}
	e := NewEngine[*testState]("a")
	e.AddNode(&funcNode{
		name:   "a",
		policy: &policy,
		exec: func(ctx context.Context, _ any) (any, error) {
			calls++
			if calls < 2 {
				return nil, errors.New("transient")
			}
			return "ok", nil
		},
		post: func(ctx context.Context, s *testState, _, exec any) (Action, error) {
			assert.Equal(t, "ok", exec)
			return ActionDone, nil
		},
	})

	require.NoError(t, e.Run(context.Background(), &testState{}))
	assert.Equal(t, 2, calls)
}

func TestEngineFallbackRescuesExhaustedExec(t *testing.T) {
	inner := &funcNode{
		name: "a",
		exec: func(ctx context.Context, _ any) (any, error) {
			return nil, errors.New("always broken")
		},
		fallback: func(ctx context.Context, _ any, execErr error) (any, error) {
			return fmt.Sprintf("rescued: %v", execErr), nil
		},
		post: func(ctx context.Context, s *testState, _, exec any) (Action, error) {
			assert.Contains(t, exec.(string), "rescued")
			return ActionDone, nil
		},
	}
	policy := retry.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 2}
	inner.policy = &policy

	e := NewEngine[*testState]("a")
	e.AddNode(&fallbackNode{funcNode: inner})
	require.NoError(t, e.Run(context.Background(), &testState{}))
}

func TestConnectRejectsUnknownNodesAndDuplicateEdges(t *testing.T) {
	e := NewEngine[*testState]("a")
	e.AddNode(&funcNode{name: "a"})
	e.AddNode(&funcNode{name: "b"})

	assert.Error(t, e.Connect("a", ActionDefault, "ghost"))
	assert.Error(t, e.Connect("ghost", ActionDefault, "a"))

	require.NoError(t, e.Connect("a", ActionDefault, "b"))
	assert.Error(t, e.Connect("a", ActionDefault, "b"), "duplicate edge must be rejected")

	to, ok := e.Next("a", ActionDefault)
	require.True(t, ok)
	assert.Equal(t, "b", to)
}

func TestEngineUnknownStartNode(t *testing.T) {
	e := NewEngine[*testState]("missing")
	err := e.Run(context.Background(), &testState{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start node")
}
