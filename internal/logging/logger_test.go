package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestContextFieldsFoldedIntoEntries(t *testing.T) {
	log := NewTestLogger()

	ctx := WithRunID(context.Background(), "run-123")
	ctx = WithNode(ctx, "drafter")
	log.Info(ctx, "drafting", zap.String("diagram", "Overview"))

	entries := log.FilterMessage("drafting").All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "run-123", fields["run.id"])
	assert.Equal(t, "drafter", fields["node"])
	assert.Equal(t, "Overview", fields["diagram"])
}

func TestContextFieldsAbsentWithoutCorrelation(t *testing.T) {
	log := NewTestLogger()
	log.Info(context.Background(), "plain entry")

	entries := log.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.NotContains(t, fields, "run.id")
	assert.NotContains(t, fields, "node")
}

func TestNamedLogger(t *testing.T) {
	log := NewTestLogger()
	log.Named("pipeline").Named("critic").Warn(context.Background(), "rejected")

	entries := log.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "pipeline.critic", entries[0].LoggerName)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, NewDefaultConfig().Validate())

	bad := &Config{Level: "loud", Format: "console"}
	require.Error(t, bad.Validate())

	bad = &Config{Level: "info", Format: "xml"}
	require.Error(t, bad.Validate())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(&Config{Level: "nope", Format: "console"})
	assert.Error(t, err)
}
