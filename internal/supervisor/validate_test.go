package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateKnowledgeXMLAccepts(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<codebase_knowledge project="demo">
  <overview>A demo project.</overview>
  <files>
    <file path="main.go"><purpose>Entry point.</purpose></file>
  </files>
</codebase_knowledge>`
	assert.NoError(t, ValidateKnowledgeXML(doc))
}

func TestValidateKnowledgeXMLRejectsEmpty(t *testing.T) {
	assert.Error(t, ValidateKnowledgeXML(""))
	assert.Error(t, ValidateKnowledgeXML("   \n  "))
}

func TestValidateKnowledgeXMLRejectsMalformed(t *testing.T) {
	err := ValidateKnowledgeXML(`<codebase_knowledge><files></codebase_knowledge>`)
	assert.Error(t, err)
}

func TestValidateKnowledgeXMLRejectsWrongRoot(t *testing.T) {
	err := ValidateKnowledgeXML(`<knowledge><files></files></knowledge>`)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "codebase_knowledge")
}

func TestValidateKnowledgeXMLRequiresFilesSection(t *testing.T) {
	err := ValidateKnowledgeXML(`<codebase_knowledge><overview>x</overview></codebase_knowledge>`)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "files")
}

func TestValidateKnowledgeXMLToleratesProlog(t *testing.T) {
	doc := `<?xml version="1.0"?><codebase_knowledge><files/></codebase_knowledge>`
	assert.NoError(t, ValidateKnowledgeXML(doc))
}
