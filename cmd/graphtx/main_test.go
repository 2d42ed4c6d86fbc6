package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "graphtx.yaml")
	body = strings.ReplaceAll(body, "$ROOT", dir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

const twoDatabases = `
storage_root: $ROOT
log_level: error
default_database: people
databases:
  people:
    settings:
      wal_compression: "true"
  places: {}
`

func TestCheckCommand(t *testing.T) {
	path := writeConfig(t, twoDatabases)

	out, err := execute(t, "check", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "configuration OK: 2 database(s)\n", out)
}

func TestCheckCommandRejectsBadConfig(t *testing.T) {
	path := writeConfig(t, `
storage_root: $ROOT
log_level: error
databases:
  people:
    type: remote
`)

	_, err := execute(t, "check", "-c", path)
	assert.Error(t, err)
}

func TestCheckCommandMissingFile(t *testing.T) {
	_, err := execute(t, "check", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestInspectCommand(t *testing.T) {
	path := writeConfig(t, twoDatabases)

	out, err := execute(t, "inspect", "-c", path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3, out)
	assert.True(t, strings.HasPrefix(lines[0], "DATABASE"))
	assert.Equal(t, []string{"people", "0", "0"}, strings.Fields(lines[1])[:3])
	assert.Equal(t, []string{"places", "0", "0"}, strings.Fields(lines[2])[:3])
}

func TestInspectCommandSingleDatabase(t *testing.T) {
	path := writeConfig(t, twoDatabases)

	out, err := execute(t, "inspect", "-c", path, "places")
	require.NoError(t, err)
	assert.Contains(t, out, "places")
	assert.NotContains(t, out, "people")
}

func TestInspectCommandUnknownDatabase(t *testing.T) {
	path := writeConfig(t, twoDatabases)

	_, err := execute(t, "inspect", "-c", path, "nowhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("inspect %s", "nowhere"))
}
