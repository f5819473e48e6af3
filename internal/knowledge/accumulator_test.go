package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/diagramd/internal/supervisor"
)

func TestNewAccumulatorSkeletonIsValid(t *testing.T) {
	acc := NewAccumulator("demo", "A <demo> project & more")

	assert.NoError(t, supervisor.ValidateKnowledgeXML(acc.XML()))
	assert.Contains(t, acc.XML(), `project="demo"`)
	assert.Contains(t, acc.XML(), "&lt;demo&gt;")
	assert.Zero(t, acc.MergedCount())
}

func TestCommitGrowsMergedSet(t *testing.T) {
	acc := NewAccumulator("demo", "")

	acc.Commit("<doc v1/>", []string{"a.go", "b.go"})
	assert.Equal(t, "<doc v1/>", acc.XML())
	assert.True(t, acc.Merged("a.go"))
	assert.True(t, acc.Merged("b.go"))
	assert.False(t, acc.Merged("c.go"))

	acc.Commit("<doc v2/>", []string{"c.go"})
	assert.Equal(t, 3, acc.MergedCount())
	assert.True(t, acc.Merged("a.go"), "earlier merges must survive later commits")
}

func TestReplaceKeepsMergedSet(t *testing.T) {
	acc := NewAccumulator("demo", "")
	acc.Commit("<doc v1/>", []string{"a.go"})

	acc.Replace("<doc enriched/>")
	assert.Equal(t, "<doc enriched/>", acc.XML())
	assert.Equal(t, 1, acc.MergedCount())
}
