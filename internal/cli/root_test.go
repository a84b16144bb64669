package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "soupstore", cmd.Use)
	assert.Contains(t, cmd.Long, "soups")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"register", "soups", "show", "drop", "upsert", "get", "delete", "query", "verify", "reset", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	defaults := map[string]string{
		"format":             "text",
		"db":                 "soupstore.db",
		"blob-backend":       "dir",
		"external-threshold": "-1",
		"passphrase":         "",
		"config":             "",
	}
	for name, def := range defaults {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, def, flag.DefValue, name)
	}
}

func TestQueryCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	queryCmd, _, err := cmd.Find([]string{"query"})
	require.NoError(t, err)

	for _, name := range []string{"kind", "path", "value", "begin", "end", "pattern", "select", "order-by", "order", "page-size", "page", "count", "explain"} {
		assert.NotNil(t, queryCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "all", queryCmd.Flags().Lookup("kind").DefValue)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "soups"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestParseIndexSpecs(t *testing.T) {
	specs, err := ParseIndexSpecs([]string{"name", "age:integer", "address.city:string", "meta:json1"})
	require.NoError(t, err)
	require.Len(t, specs, 4)
	assert.Equal(t, "name", specs[0].Path)
	assert.Equal(t, "string", string(specs[0].Type))
	assert.Equal(t, "integer", string(specs[1].Type))
	assert.Equal(t, "address.city", specs[2].Path)
	assert.Equal(t, 3, specs[3].Position)

	_, err = ParseIndexSpecs([]string{"age:decimal"})
	require.Error(t, err)
	_, err = ParseIndexSpecs([]string{":integer"})
	require.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soupstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db: /data/soups.db
driver: sqlite
blobs:
  backend: bolt
  threshold: 4096
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	opts := &RootOptions{Database: "soupstore.db", BlobBackend: "dir", ExternalThreshold: -1, Driver: "sqlite3"}
	cfg.Apply(opts, func(flag string) bool { return flag == "driver" })

	assert.Equal(t, "/data/soups.db", opts.Database)
	assert.Equal(t, "bolt", opts.BlobBackend)
	assert.Equal(t, 4096, opts.ExternalThreshold)
	// Set on the command line
	assert.Equal(t, "sqlite3", opts.Driver)
}

func TestLoadConfig_RejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soupstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: x.db\n"), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}
