package flow

import (
	"context"

	"github.com/fyrsmithlabs/diagramd/internal/retry"
)

// Action is a label returned by a node's Post step. The engine uses it
// to select the outgoing edge for the next node.
type Action string

const (
	// ActionDefault is the conventional label for the single ordinary
	// transition out of a node.
	ActionDefault Action = "default"

	// ActionDone is the reserved terminal label. A node returning it
	// ends the run successfully regardless of registered edges.
	ActionDone Action = "done"
)

// Node is one stage of a pipeline operating on a shared state S.
//
// Prep gathers inputs from state. Exec performs the node's work on the
// prep result and must not touch state; Exec errors are treated as
// transient infrastructure failures and retried under the node's retry
// policy. Business-level rejections are not errors: they travel through
// the exec result and the returned Action. Post writes results back to
// state and chooses the next edge.
type Node[S any] interface {
	Name() string
	Prep(ctx context.Context, state S) (any, error)
	Exec(ctx context.Context, prep any) (any, error)
	Post(ctx context.Context, state S, prep, exec any) (Action, error)
}

// RetryPolicyProvider lets a node override the engine's default retry
// policy for its Exec step.
type RetryPolicyProvider interface {
	RetryPolicy() retry.Policy
}

// Fallback lets a node recover from an Exec whose retries are exhausted
// instead of failing the whole run. The returned value is passed to
// Post as the exec result, so the node can route a "skip" action.
type Fallback interface {
	ExecFallback(ctx context.Context, prep any, execErr error) (any, error)
}
