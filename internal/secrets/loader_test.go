package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPrefersFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key")
	require.NoError(t, os.WriteFile(path, []byte("  from-file \n"), 0o600))
	t.Setenv("TEST_SCORER_KEY", "from-env")

	got, err := Load(Source{Name: "gemini api key", File: path, Env: "TEST_SCORER_KEY", Value: "inline"})
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)
}

func TestLoadFallsBackToEnvThenValue(t *testing.T) {
	t.Setenv("TEST_SCORER_KEY", " from-env ")

	got, err := Load(Source{Env: "TEST_SCORER_KEY", Value: "inline"})
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	t.Setenv("TEST_SCORER_KEY", "")
	got, err = Load(Source{Env: "TEST_SCORER_KEY", Value: " inline "})
	require.NoError(t, err)
	assert.Equal(t, "inline", got)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, []byte("   "), 0o600))

	_, err := Load(Source{Name: "judge api key", File: empty})
	assert.ErrorContains(t, err, "is empty")

	_, err = Load(Source{Name: "judge api key", File: filepath.Join(dir, "missing")})
	assert.ErrorContains(t, err, "reading judge api key")

	t.Setenv("TEST_SCORER_UNSET", "")
	_, err = Load(Source{Name: "judge api key", Env: "TEST_SCORER_UNSET"})
	assert.ErrorContains(t, err, "set TEST_SCORER_UNSET")

	_, err = Load(Source{})
	assert.EqualError(t, err, "secret is not configured")
}
