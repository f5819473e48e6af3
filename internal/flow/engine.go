package flow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/logging"
	"github.com/fyrsmithlabs/diagramd/internal/retry"
)

// edgeKey identifies one outgoing edge: a (node, action) pair.
type edgeKey struct {
	node   string
	action Action
}

// Engine executes a graph of nodes sequentially, routing between them
// by the Action each node's Post step returns.
//
// The edge table is built once at construction time. An action with no
// registered edge is implicit termination: the run stops in the state
// the last node left behind, and that is not an error.
type Engine[S any] struct {
	nodes        map[string]Node[S]
	edges        map[edgeKey]string
	start        string
	defaultRetry retry.Policy
	observe      func(node string, elapsed time.Duration)
	log          *logging.Logger
}

// Option configures an Engine.
type Option[S any] func(*Engine[S])

// WithDefaultRetry sets the retry policy applied to Exec steps of nodes
// that do not provide their own.
func WithDefaultRetry[S any](p retry.Policy) Option[S] {
	return func(e *Engine[S]) { e.defaultRetry = p }
}

// WithLogger sets the engine logger. Defaults to a no-op logger.
func WithLogger[S any](log *logging.Logger) Option[S] {
	return func(e *Engine[S]) { e.log = log }
}

// WithNodeObserver registers a callback invoked after each node
// completes, with the node name and the wall time its three steps took.
func WithNodeObserver[S any](fn func(node string, elapsed time.Duration)) Option[S] {
	return func(e *Engine[S]) { e.observe = fn }
}

// NewEngine creates an engine starting at the named node.
func NewEngine[S any](start string, opts ...Option[S]) *Engine[S] {
	e := &Engine[S]{
		nodes:        make(map[string]Node[S]),
		edges:        make(map[edgeKey]string),
		start:        start,
		defaultRetry: retry.DefaultPolicy(),
		log:          logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddNode registers a node. Registering two nodes with the same name is
// a construction error surfaced at Connect or Run time.
func (e *Engine[S]) AddNode(n Node[S]) {
	e.nodes[n.Name()] = n
}

// Connect registers the edge (from, action) -> to. Both endpoints must
// already be registered.
func (e *Engine[S]) Connect(from string, action Action, to string) error {
	if _, ok := e.nodes[from]; !ok {
		return fmt.Errorf("connect %s -[%s]-> %s: unknown source node", from, action, to)
	}
	if _, ok := e.nodes[to]; !ok {
		return fmt.Errorf("connect %s -[%s]-> %s: unknown target node", from, action, to)
	}
	key := edgeKey{node: from, action: action}
	if _, dup := e.edges[key]; dup {
		return fmt.Errorf("connect %s -[%s]-> %s: edge already registered", from, action, to)
	}
	e.edges[key] = to
	return nil
}

// Next reports the target of the (node, action) edge, if one exists.
func (e *Engine[S]) Next(from string, action Action) (string, bool) {
	to, ok := e.edges[edgeKey{node: from, action: action}]
	return to, ok
}

// Run drives the graph from the start node until a node returns
// ActionDone, returns an action with no registered edge, or fails.
//
// Prep and Post errors are fatal immediately: they represent missing
// upstream state or broken wiring, and downstream work is meaningless.
// Exec errors are retried under the node's policy; if retries are
// exhausted the node's ExecFallback (when implemented) gets one chance
// to turn the failure into an ordinary result before the run aborts.
func (e *Engine[S]) Run(ctx context.Context, state S) error {
	current, ok := e.nodes[e.start]
	if !ok {
		return fmt.Errorf("start node %q not registered", e.start)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := current.Name()
		nodeCtx := logging.WithNode(ctx, name)
		e.log.Debug(nodeCtx, "node starting")
		started := time.Now()

		prep, err := current.Prep(nodeCtx, state)
		if err != nil {
			return fmt.Errorf("node %s: prep: %w", name, err)
		}

		exec, err := e.execWithRetry(nodeCtx, current, prep)
		if err != nil {
			return fmt.Errorf("node %s: exec: %w", name, err)
		}

		action, err := current.Post(nodeCtx, state, prep, exec)
		if err != nil {
			return fmt.Errorf("node %s: post: %w", name, err)
		}
		if e.observe != nil {
			e.observe(name, time.Since(started))
		}

		if action == ActionDone {
			e.log.Debug(ctx, "run complete", zap.String("node", name))
			return nil
		}

		next, ok := e.Next(name, action)
		if !ok {
			// No edge for this action: the run ends here, in whatever
			// state the node left behind.
			e.log.Debug(ctx, "no edge registered, run ends",
				zap.String("node", name), zap.String("action", string(action)))
			return nil
		}

		e.log.Debug(ctx, "transition",
			zap.String("from", name),
			zap.String("action", string(action)),
			zap.String("to", next))
		current = e.nodes[next]
	}
}

// execWithRetry runs the node's Exec step under its retry policy and
// falls back to ExecFallback once retries are exhausted.
func (e *Engine[S]) execWithRetry(ctx context.Context, n Node[S], prep any) (any, error) {
	policy := e.defaultRetry
	if p, ok := n.(RetryPolicyProvider); ok {
		policy = p.RetryPolicy()
	}

	exec, err := retry.Do(ctx, policy, func(ctx context.Context) (any, error) {
		return n.Exec(ctx, prep)
	})
	if err == nil {
		return exec, nil
	}

	if fb, ok := n.(Fallback); ok {
		e.log.Warn(ctx, "exec retries exhausted, invoking fallback",
			zap.String("node", n.Name()), zap.Error(err))
		return fb.ExecFallback(ctx, prep, err)
	}
	return nil, err
}
