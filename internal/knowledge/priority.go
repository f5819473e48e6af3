// Package knowledge builds the merged codebase knowledge document by
// folding file summaries into an XML accumulator batch by batch, with
// supervised validation guarding every merge.
package knowledge

import (
	"sort"
	"strings"
)

// File is one source file queued for summarization.
type File struct {
	Path    string
	Content string
	Lines   int
}

// Foundation-first ordering: configuration and utilities give the
// model context that later, more entangled files lean on.
var priorityTiers = []struct {
	tier     int
	patterns []string
}{
	{1, []string{"config", "settings", "constants", ".env", "application.properties", "pom.xml", "build.gradle", "package.json", "go.mod", "cargo.toml", "requirements"}},
	{2, []string{"util", "helper", "common", "shared", "lib"}},
	{3, []string{"model", "entity", "domain", "dto", "schema", "type"}},
	{4, []string{"service", "repository", "dao", "manager", "provider", "client"}},
	{5, []string{"controller", "handler", "route", "endpoint", "api", "resource"}},
	{6, []string{"main", "app", "index", "server", "cmd"}},
}

const defaultTier = 4

// Priority returns the processing tier for a path; lower runs first.
func Priority(path string) int {
	lower := strings.ToLower(path)
	for _, t := range priorityTiers {
		for _, pat := range t.patterns {
			if strings.Contains(lower, pat) {
				return t.tier
			}
		}
	}
	return defaultTier
}

// OrderFiles sorts files by tier. The sort is stable, so files in the
// same tier keep their input order.
func OrderFiles(files []File) []File {
	out := make([]File, len(files))
	copy(out, files)
	sort.SliceStable(out, func(i, j int) bool {
		return Priority(out[i].Path) < Priority(out[j].Path)
	})
	return out
}

// Batch splits an ordered queue into fixed-size batches. Small files
// below the line threshold are grouped just like the rest; the batch
// size caps how much the merge prompt has to absorb at once.
func Batch(files []File, size int) [][]File {
	if size <= 0 {
		size = 1
	}
	var batches [][]File
	for start := 0; start < len(files); start += size {
		end := start + size
		if end > len(files) {
			end = len(files)
		}
		batches = append(batches, files[start:end])
	}
	return batches
}
