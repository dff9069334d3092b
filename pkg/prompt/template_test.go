package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"text/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplate(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "decision.tmpl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestTemplateRender(t *testing.T) {
	path := writeTemplate(t, "You trade {{ .Symbol }} - {{ upper .Trend }}")
	tpl, err := NewTemplate(path, template.FuncMap{"upper": strings.ToUpper})
	require.NoError(t, err)

	out, err := tpl.Render(map[string]any{"Symbol": "EURUSD", "Trend": "bullish"})
	require.NoError(t, err)
	assert.Equal(t, "You trade EURUSD - BULLISH", out)
}

func TestTemplateMissingKeyFailsLoudly(t *testing.T) {
	path := writeTemplate(t, "{{ .NotThere }}")
	tpl, err := NewTemplate(path, nil)
	require.NoError(t, err)

	_, err = tpl.Render(map[string]any{"Symbol": "EURUSD"})
	assert.Error(t, err)
}

func TestTemplateReloadChangesDigest(t *testing.T) {
	path := writeTemplate(t, "v1")
	tpl, err := NewTemplate(path, nil)
	require.NoError(t, err)

	first := tpl.Digest()
	require.NotEmpty(t, first)

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o600))
	require.NoError(t, tpl.Reload())

	out, err := tpl.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "v2", out)
	assert.NotEqual(t, first, tpl.Digest())
}

func TestDigestOfRenderedPrompt(t *testing.T) {
	a := Digest("same prompt")
	b := Digest("same prompt")
	c := Digest("different prompt")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
