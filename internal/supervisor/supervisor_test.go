package supervisor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/diagramd/internal/llm"
	"github.com/fyrsmithlabs/diagramd/internal/logging"
)

// scriptClient replays canned responses in order.
type scriptClient struct {
	responses []string
	err       error
	calls     int
	requests  []llm.Request
}

func (c *scriptClient) Generate(ctx context.Context, req llm.Request) (string, error) {
	c.calls++
	c.requests = append(c.requests, req)
	if c.err != nil {
		return "", c.err
	}
	i := c.calls - 1
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	return c.responses[i], nil
}

func alwaysValid(string) error   { return nil }
func alwaysInvalid(string) error { return errors.New("structurally broken") }

func noRegen(t *testing.T) RegenerateFunc {
	return func(ctx context.Context, critique string) (string, error) {
		t.Fatal("regenerate must not be called")
		return "", nil
	}
}

func TestSuperviseLocalPassShortCircuits(t *testing.T) {
	client := &scriptClient{}
	s := New(client, alwaysValid, 5, logging.Nop())

	got, ok := s.Supervise(context.Background(), "fine as is", Context{}, noRegen(t))
	assert.True(t, ok)
	assert.Equal(t, "fine as is", got)
	assert.Zero(t, client.calls, "local pass must not reach the provider")
}

func TestSuperviseCritiqueApprovesDespiteLocalFailure(t *testing.T) {
	client := &scriptClient{responses: []string{
		`{"is_valid": true, "issues": [], "critique": ""}`,
	}}
	s := New(client, alwaysInvalid, 5, logging.Nop())

	got, ok := s.Supervise(context.Background(), "odd but acceptable", Context{}, noRegen(t))
	assert.True(t, ok)
	assert.Equal(t, "odd but acceptable", got)
	assert.Equal(t, 1, client.calls)
}

func TestSuperviseRegeneratesUntilValid(t *testing.T) {
	client := &scriptClient{responses: []string{
		`{"is_valid": false, "issues": ["missing files section"], "critique": "add the files section"}`,
	}}
	validate := func(c string) error {
		if c == "fixed" {
			return nil
		}
		return errors.New("bad")
	}
	s := New(client, validate, 5, logging.Nop())

	regens := 0
	got, ok := s.Supervise(context.Background(), "broken", Context{}, func(ctx context.Context, critique string) (string, error) {
		regens++
		assert.Equal(t, "add the files section", critique)
		return "fixed", nil
	})
	assert.True(t, ok)
	assert.Equal(t, "fixed", got)
	assert.Equal(t, 1, regens)
}

func TestSuperviseExhaustionReturnsLastCandidate(t *testing.T) {
	client := &scriptClient{responses: []string{
		`{"is_valid": false, "issues": ["broken"], "critique": "still broken"}`,
	}}
	s := New(client, alwaysInvalid, 3, logging.Nop())

	attempt := 0
	got, ok := s.Supervise(context.Background(), "v0", Context{}, func(ctx context.Context, critique string) (string, error) {
		attempt++
		return fmt.Sprintf("v%d", attempt), nil
	})
	assert.False(t, ok, "exhausted budget must report failure")
	assert.Equal(t, "v2", got, "last regenerated candidate is returned")
	assert.Equal(t, 3, client.calls)
}

func TestSuperviseCritiqueCallFailureFallsBack(t *testing.T) {
	client := &scriptClient{err: errors.New("provider down")}
	s := New(client, alwaysInvalid, 2, logging.Nop())

	critiques := make([]string, 0, 2)
	got, ok := s.Supervise(context.Background(), "candidate", Context{}, func(ctx context.Context, critique string) (string, error) {
		critiques = append(critiques, critique)
		return "candidate", nil
	})
	assert.False(t, ok)
	assert.Equal(t, "candidate", got)
	require.Len(t, critiques, 1)
	assert.Contains(t, critiques[0], "structurally valid response")
}

func TestSuperviseUnparseableVerdictFallsBack(t *testing.T) {
	client := &scriptClient{responses: []string{"this is not json at all, no braces"}}
	s := New(client, alwaysInvalid, 2, logging.Nop())

	_, ok := s.Supervise(context.Background(), "candidate", Context{}, func(ctx context.Context, critique string) (string, error) {
		assert.NotEmpty(t, critique)
		return "candidate", nil
	})
	assert.False(t, ok)
}

func TestSuperviseRegenerationErrorBurnsAttempt(t *testing.T) {
	client := &scriptClient{responses: []string{
		`{"is_valid": false, "issues": [], "critique": "fix it"}`,
	}}
	s := New(client, alwaysInvalid, 2, logging.Nop())

	got, ok := s.Supervise(context.Background(), "original", Context{}, func(ctx context.Context, critique string) (string, error) {
		return "", errors.New("regen transport error")
	})
	assert.False(t, ok)
	assert.Equal(t, "original", got, "failed regeneration keeps the prior candidate")
}
