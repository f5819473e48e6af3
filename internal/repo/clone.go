// Package repo clones the target repository and produces the project
// survey the pipeline works from: a readable tree map plus a structured
// file inventory.
package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
)

// Clone performs a shallow clone of url into dir/repo, replacing any
// previous clone. It returns the checkout path.
func Clone(ctx context.Context, url, dir string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("repository url is required")
	}

	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clearing clone dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating clone dir: %w", err)
	}

	path := filepath.Join(dir, "repo")
	_, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
	})
	if err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("cloning %s: %w", url, err)
	}
	return path, nil
}

// Cleanup removes the clone directory.
func Cleanup(dir string) error {
	if dir == "" {
		return nil
	}
	return os.RemoveAll(dir)
}
