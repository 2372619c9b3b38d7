package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// collection stores one JSON document per key under root/name.
type collection[T any] struct {
	dir string
}

func newCollection[T any](root, name string) collection[T] {
	return collection[T]{dir: filepath.Join(root, name)}
}

// key joins parts into a file-safe document key.
func key(parts ...string) string {
	return strings.Join(parts, "__")
}

func validateKey(k string) error {
	if k == "" {
		return errors.New("key cannot be empty")
	}

	if strings.Contains(k, "..") || strings.ContainsAny(k, `/\`) {
		return fmt.Errorf("key %q contains invalid characters", k)
	}

	return nil
}

func (c collection[T]) path(k string) string {
	return filepath.Join(c.dir, k+".json")
}

// get returns nil when the document does not exist.
func (c collection[T]) get(k string) (*T, error) {
	if err := validateKey(k); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(c.path(k))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", c.path(k), err)
	}

	var v T

	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", c.path(k), err)
	}

	return &v, nil
}

func (c collection[T]) put(k string, v *T) error {
	if err := validateKey(k); err != nil {
		return err
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", k, err)
	}

	tmp := c.path(k) + ".tmp"

	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, c.path(k)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", c.path(k), err)
	}

	return nil
}

// delete reports whether a document was removed.
func (c collection[T]) delete(k string) (bool, error) {
	if err := validateKey(k); err != nil {
		return false, err
	}

	err := os.Remove(c.path(k))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", c.path(k), err)
	}

	return true, nil
}

func (c collection[T]) all() ([]*T, error) {
	return c.matching(func(*T) bool { return true })
}

func (c collection[T]) matching(keep func(*T) bool) ([]*T, error) {
	files, err := fs.Glob(os.DirFS(c.dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.dir, err)
	}

	out := make([]*T, 0, len(files))

	for _, name := range files {
		v, err := c.get(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}

		if v != nil && keep(v) {
			out = append(out, v)
		}
	}

	return out, nil
}
