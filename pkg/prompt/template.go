// Package prompt holds the operator-facing prompt tooling: a reloadable
// text/template for teams that tune the decision prompt from disk, and the
// digest helper the audit journal stamps on every rendered prompt.
package prompt

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"text/template"
)

// Template is a disk-backed text/template with hot reload. The decision
// chain renders through one of these when a prompt file is configured;
// otherwise it falls back to its built-in prompt.
type Template struct {
	path  string
	funcs template.FuncMap

	mu     sync.RWMutex
	parsed *template.Template
	digest string
}

// NewTemplate parses the template at path. funcs may be nil. Missing keys
// in the render data are errors, so a template drifting ahead of the data
// shape fails loudly instead of emitting "<no value>" into a live prompt.
func NewTemplate(path string, funcs template.FuncMap) (*Template, error) {
	if path == "" {
		return nil, fmt.Errorf("prompt: template path is empty")
	}
	t := &Template{path: path, funcs: funcs}
	if err := t.parse(); err != nil {
		return nil, err
	}
	return t, nil
}

// Render executes the template against data.
func (t *Template) Render(data any) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.parsed == nil {
		return "", fmt.Errorf("prompt: template %q not parsed", t.path)
	}
	var buf bytes.Buffer
	if err := t.parsed.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("prompt: execute %q: %w", t.path, err)
	}
	return buf.String(), nil
}

// Reload re-reads and re-parses the file, picking up operator edits without
// a process restart.
func (t *Template) Reload() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.parse()
}

func (t *Template) parse() error {
	raw, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("prompt: read %q: %w", t.path, err)
	}

	parsed := template.New(filepath.Base(t.path)).Option("missingkey=error")
	if len(t.funcs) > 0 {
		parsed = parsed.Funcs(t.funcs)
	}
	if _, err := parsed.Parse(string(raw)); err != nil {
		return fmt.Errorf("prompt: parse %q: %w", t.path, err)
	}
	t.parsed = parsed
	t.digest = computeDigest(raw)
	return nil
}

// Digest returns the sha256 of the template source, so journals can tell
// which prompt revision produced a decision.
func (t *Template) Digest() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.digest
}
