package github

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/web3-hub/learning-hub/internal/domain/content"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
)

// DirSource reads <root>/<path>/README.md from a checkout of the content
// repository. It is the local mirror when no dev server is running.
type DirSource struct {
	root string
}

// NewDirSource creates a source rooted at dir. The directory must exist.
func NewDirSource(dir string) (*DirSource, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("github: resolve mirror dir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("github: mirror dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("github: mirror %s is not a directory", abs)
	}
	return &DirSource{root: abs}, nil
}

// Tier implements content.Source.
func (d *DirSource) Tier() content.Tier { return content.TierLocal }

// Root returns the mirror directory.
func (d *DirSource) Root() string { return d.root }

// Fetch implements content.Source.
func (d *DirSource) Fetch(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rel := filepath.FromSlash(strings.Trim(path, "/"))
	if rel == "" || !filepath.IsLocal(rel) {
		return "", shared.WrapError("content", "Resolve", shared.ErrInvalidInput, "content path escapes the mirror: "+path, nil)
	}

	data, err := os.ReadFile(filepath.Join(d.root, rel, "README.md"))
	if err != nil {
		return "", fmt.Errorf("github: read mirror %s: %w", path, err)
	}
	return string(data), nil
}
