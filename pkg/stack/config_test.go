package stack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const configJSON = `{
  "userpoolName": "P",
  "scopeName": "S",
  "resourceServerName": "R",
  "resourceServerIdentifier": "id1",
  "clientName": "C",
  "domainPrefix": "pfx"
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfigJSON(t *testing.T) {
	cfg, err := LoadConfig(writeFile(t, "config.json", configJSON))
	require.NoError(t, err)
	assert.Equal(t, testConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigYAML(t *testing.T) {
	content := `userpoolName: P
scopeName: S
resourceServerName: R
resourceServerIdentifier: id1
clientName: C
domainPrefix: pfx
`
	cfg, err := LoadConfig(writeFile(t, "config.yaml", content))
	require.NoError(t, err)
	assert.Equal(t, testConfig(), cfg)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("COGNITO_DOMAINPREFIX", "other")

	cfg, err := LoadConfig(writeFile(t, "config.json", configJSON))
	require.NoError(t, err)
	assert.Equal(t, "other", cfg.DomainPrefix)
	assert.Equal(t, "P", cfg.UserpoolName)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.True(t, IsCategory(err, ErrCategoryNotFound))
}

func TestLoadConfigMalformed(t *testing.T) {
	_, err := LoadConfig(writeFile(t, "config.json", `{"userpoolName": `))
	require.Error(t, err)
	assert.True(t, IsCategory(err, ErrCategoryValidation))
}

func TestConfigValidateMissing(t *testing.T) {
	cfg := testConfig()
	cfg.ClientName = ""
	cfg.ScopeName = "  "

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, IsCategory(err, ErrCategoryValidation))
	assert.Contains(t, err.Error(), "clientName, scopeName")

	var stErr *StackError
	require.ErrorAs(t, err, &stErr)
	assert.Equal(t, []string{"clientName", "scopeName"}, stErr.Details["missing"])
}
