package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDoc = `
id: test-koha
name: Test Koha System
vendor: koha
region: midwest
catalogUrl: https://catalog.example.org
enabled: true
branches:
  - id: main
    name: Main Library
    code: MAIN
adapters:
  - protocol: koha
    baseUrl: https://sru.example.org
    clientKeyEnvVar: TEST_KOHA_KEY
    timeoutMs: 5000
`

const unresolvedEnvDoc = `
id: test-broken
name: Broken System
branches:
  - id: main
    name: Main
    code: MAIN
adapters:
  - protocol: koha
    baseUrl: ${MISSING_ENV_VAR_XYZ}
`

func TestLoadDirectorySkipsUnresolvedFileButLoadsOthers(t *testing.T) {
	t.Setenv("TEST_KOHA_KEY", "secret123")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "koha.yaml"), []byte(validDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte(unresolvedEnvDoc), 0o644))

	result, err := LoadDirectory(dir)
	require.NoError(t, err)

	require.Len(t, result.Systems, 1)
	assert.Equal(t, "test-koha", string(result.Systems[0].ID))
	assert.Equal(t, "secret123", result.Systems[0].Adapters[0].ClientKey)

	require.Len(t, result.Errors, 1)
}

func TestLoadDirectoryRejectsDuplicateSystemID(t *testing.T) {
	t.Setenv("TEST_KOHA_KEY", "secret123")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a-koha.yaml"), []byte(validDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b-koha-dup.yaml"), []byte(validDoc), 0o644))

	result, err := LoadDirectory(dir)
	require.NoError(t, err)

	require.Len(t, result.Systems, 1)
	assert.Equal(t, "test-koha", string(result.Systems[0].ID))

	require.Len(t, result.Errors, 1)
	dupErr, ok := result.Errors[filepath.Join(dir, "b-koha-dup.yaml")]
	require.True(t, ok)
	assert.Contains(t, dupErr.Error(), "duplicate system id")
	assert.Contains(t, dupErr.Error(), "a-koha.yaml")
}

func TestLoadDirectoryRejectsRelativeBaseURL(t *testing.T) {
	dir := t.TempDir()
	doc := `
id: test-relative
name: Test
branches:
  - id: main
    name: Main
    code: MAIN
adapters:
  - protocol: koha
    baseUrl: not-a-url
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(doc), 0o644))

	result, err := LoadDirectory(dir)
	require.NoError(t, err)
	assert.Empty(t, result.Systems)
	assert.Len(t, result.Errors, 1)
}

func TestLoadDirectoryRejectsDuplicateBranchIDs(t *testing.T) {
	dir := t.TempDir()
	doc := `
id: test-dup
name: Test
branches:
  - id: main
    name: Main
    code: MAIN
  - id: main
    name: Main Again
    code: MAIN2
adapters:
  - protocol: koha
    baseUrl: https://sru.example.org
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dup.yaml"), []byte(doc), 0o644))

	result, err := LoadDirectory(dir)
	require.NoError(t, err)
	assert.Empty(t, result.Systems)
	assert.Len(t, result.Errors, 1)
}
