package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/threadline-ai/threadline/core"
)

// FS stores artifacts as files under a root directory. Writes go through a
// temp file plus rename, so readers never observe partial contents.
type FS struct {
	root string
}

var _ core.ArtifactStore = (*FS)(nil)

// NewFS creates a filesystem store rooted at dir, creating it if needed.
func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create root: %w", err)
	}
	return &FS{root: dir}, nil
}

// Read implements core.ArtifactStore.
func (f *FS) Read(_ context.Context, name, path string) (string, error) {
	full, err := f.resolve(name, path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("artifact %s/%s: %w", path, name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("artifact: read %s/%s: %w", path, name, err)
	}
	return string(data), nil
}

// Write implements core.ArtifactStore.
func (f *FS) Write(_ context.Context, contents, name, path string) error {
	full, err := f.resolve(name, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("artifact: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("artifact: temp file: %w", err)
	}
	if _, err := tmp.WriteString(contents); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("artifact: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("artifact: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("artifact: rename: %w", err)
	}
	return nil
}

// List implements core.ArtifactStore. It returns artifact names directly
// under path, sorted.
func (f *FS) List(_ context.Context, path string) ([]string, error) {
	dir, err := f.resolve(".", path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("artifact: list %s: %w", path, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// resolve joins name and path under the root and rejects traversal outside
// it.
func (f *FS) resolve(name, path string) (string, error) {
	full := filepath.Join(f.root, filepath.FromSlash(path), name)
	rel, err := filepath.Rel(f.root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("artifact: path %q escapes store root", filepath.Join(path, name))
	}
	return full, nil
}
