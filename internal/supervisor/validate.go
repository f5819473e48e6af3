package supervisor

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ValidateKnowledgeXML is the local structural check for the merged
// knowledge document: well-formed XML with a codebase_knowledge root
// that contains a files element somewhere below it.
func ValidateKnowledgeXML(candidate string) error {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return fmt.Errorf("empty response")
	}

	dec := xml.NewDecoder(strings.NewReader(trimmed))
	var (
		rootSeen  bool
		filesSeen bool
		depth     int
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if rootSeen && filesSeen && depth == 0 {
				// Trailing garbage after a complete document; the
				// cleaner upstream should have stripped it, tolerate.
				break
			}
			return fmt.Errorf("malformed xml: %w", err)
		}
		switch start := tok.(type) {
		case xml.StartElement:
			depth++
			if !rootSeen {
				if start.Name.Local != "codebase_knowledge" {
					return fmt.Errorf("unexpected root element %q, want codebase_knowledge", start.Name.Local)
				}
				rootSeen = true
				continue
			}
			if start.Name.Local == "files" {
				filesSeen = true
			}
		case xml.EndElement:
			depth--
		}
	}

	if !rootSeen {
		return fmt.Errorf("no codebase_knowledge root element")
	}
	if !filesSeen {
		return fmt.Errorf("missing files section")
	}
	return nil
}
