// Package render validates and renders PlantUML through a
// Kroki-compatible HTTP service.
package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to a Kroki-compatible rendering endpoint.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates a renderer client. Zero timeout means 30 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

// ValidateSyntax performs the cheap local structural check: the
// @startuml/@enduml envelope must be present and ordered. Semantic
// problems only surface at render time.
func ValidateSyntax(src string) error {
	start := strings.Index(src, "@startuml")
	if start < 0 {
		return fmt.Errorf("missing @startuml tag")
	}
	end := strings.Index(src, "@enduml")
	if end < 0 {
		return fmt.Errorf("missing @enduml tag")
	}
	if start > end {
		return fmt.Errorf("@startuml must come before @enduml")
	}
	return nil
}

// Render posts the PlantUML source and returns the PNG bytes.
func (c *Client) Render(ctx context.Context, src string) ([]byte, error) {
	url := c.baseURL + "/plantuml/png"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(src))
	if err != nil {
		return nil, fmt.Errorf("creating render request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading render response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("render service returned %d: %s", resp.StatusCode, truncate(string(body), 300))
	}
	return body, nil
}

// Report summarizes diagram complexity.
type Report struct {
	Lines    int
	Entities int
	Warnings []string
}

// Complexity analyzes diagram size and emits advisory warnings; it
// never fails a diagram.
func Complexity(src string) Report {
	lines := strings.Split(strings.TrimSpace(src), "\n")
	r := Report{Lines: len(lines)}

	entityKeywords := []string{"class ", "interface ", "abstract ", "entity ", "enum ", "component "}
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		for _, kw := range entityKeywords {
			if strings.HasPrefix(trimmed, kw) {
				r.Entities++
				break
			}
		}
	}

	if r.Lines > 100 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("diagram has %d lines (>100), may be too complex", r.Lines))
	}
	if r.Entities > 20 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("diagram has %d entities (>20), consider splitting", r.Entities))
	}
	return r
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
