// Package confkit carries the small configuration plumbing shared by the
// api and orchestrator processes: per-domain config sections hydrated from
// sibling YAML files, and one-shot .env loading.
package confkit

import (
	"os"
	"path/filepath"
)

// Section is a configuration section whose body lives in its own file next
// to the main config (e.g. `LLM: {File: llm.yaml}`). Value is populated by
// Hydrate and never unmarshalled directly.
type Section[T any] struct {
	File  string `json:",optional"`
	Value *T     `json:"-"`
}

// Hydrate resolves File against the main config's directory and loads it
// through loader. A section with no File stays empty, which callers treat
// as "feature not configured". On success File is rewritten to the
// resolved absolute path so diagnostics show where the values came from.
func (s *Section[T]) Hydrate(base string, loader func(string) (*T, error)) error {
	if s.File == "" {
		return nil
	}
	path := ResolvePath(base, s.File)
	value, err := loader(path)
	if err != nil {
		return err
	}
	s.File, s.Value = path, value
	return nil
}

// ResolvePath expands env placeholders in file and anchors relative paths
// at base.
func ResolvePath(base, file string) string {
	file = os.ExpandEnv(file)
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(base, file)
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	_, err := os.Stat(p)
	return err == nil
}
