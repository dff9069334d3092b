package confkit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type sectionBody struct {
	Name string `yaml:"name"`
}

func yamlLoader(path string) (*sectionBody, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var body sectionBody
	if err := yaml.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

func TestSectionHydrate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "part.yaml"), []byte("name: hydrated\n"), 0o644))

	s := Section[sectionBody]{File: "part.yaml"}
	require.NoError(t, s.Hydrate(dir, yamlLoader))
	require.NotNil(t, s.Value)
	assert.Equal(t, "hydrated", s.Value.Name)
	assert.Equal(t, filepath.Join(dir, "part.yaml"), s.File, "File rewritten to the resolved path")
}

func TestSectionHydrateEmptyFileIsNoop(t *testing.T) {
	s := Section[sectionBody]{}
	require.NoError(t, s.Hydrate(t.TempDir(), yamlLoader))
	assert.Nil(t, s.Value)
}

func TestSectionHydrateSurfacesLoaderError(t *testing.T) {
	s := Section[sectionBody]{File: "missing.yaml"}
	assert.Error(t, s.Hydrate(t.TempDir(), yamlLoader))
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "/abs/x.yaml", ResolvePath("/base", "/abs/x.yaml"))
	assert.Equal(t, filepath.Join("/base", "rel.yaml"), ResolvePath("/base", "rel.yaml"))

	t.Setenv("CONF_DIR", "/from-env")
	assert.Equal(t, "/from-env/x.yaml", ResolvePath("/base", "$CONF_DIR/x.yaml"))
}
