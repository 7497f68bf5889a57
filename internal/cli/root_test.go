package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedYAML = `capabilities:
  - name: feed.page.v1
    owner: feed
    introducedIn: 1.0.0
  - name: feed.cursor.v2
    owner: feed
    introducedIn: 1.4.0
    replaces: feed.page.v1
  - name: feed.cursor.v3
    owner: feed
    introducedIn: 2.0.0
    replaces: feed.cursor.v2
  - name: profile.prefs.v1
    owner: profile
    introducedIn: 1.1.0
`

// writeRegistry writes content as a declaration file in a fresh directory
// and returns the directory.
func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "capabilities.yaml"), []byte(content), 0o644))
	return dir
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capibara.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CAPIBARA_INTROSPECTION_TOKEN", "")

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "capibara", cmd.Use)
	assert.Contains(t, cmd.Long, "capability")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"validate", "hash", "lineage", "resolve", "export", "schema", "serve", "mcp", "test"}

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

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	registryFlag := cmd.PersistentFlags().Lookup("registry")
	require.NotNil(t, registryFlag)
	assert.Equal(t, "r", registryFlag.Shorthand)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestResolveCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	resolveCmd, _, err := cmd.Find([]string{"resolve"})
	require.NoError(t, err)

	for _, name := range []string{"hash", "list", "strict"} {
		assert.NotNil(t, resolveCmd.Flags().Lookup(name), name)
	}
}

func TestExportCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	exportCmd, _, err := cmd.Find([]string{"export"})
	require.NoError(t, err)

	outputFlag := exportCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "yaml", "hash", "feed.page.v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
