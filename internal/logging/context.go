package logging

import (
	"context"

	"go.uber.org/zap"
)

type runCtxKey struct{}
type nodeCtxKey struct{}

// WithRunID attaches a pipeline run identifier to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runCtxKey{}, runID)
}

// RunIDFromContext extracts the run identifier, if any.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(runCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithNode attaches the currently executing node name to the context.
func WithNode(ctx context.Context, node string) context.Context {
	return context.WithValue(ctx, nodeCtxKey{}, node)
}

// NodeFromContext extracts the node name, if any.
func NodeFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(nodeCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// ContextFields extracts correlation data from ctx as zap fields.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run.id", runID))
	}
	if node := NodeFromContext(ctx); node != "" {
		fields = append(fields, zap.String("node", node))
	}
	return fields
}
