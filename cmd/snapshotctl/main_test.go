package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) string {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	origStdout := os.Stdout
	os.Stdout = w

	cmd := createRootCommand()
	cmd.SetArgs(args)
	execErr := cmd.Execute()

	w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	_, readErr := buf.ReadFrom(r)
	require.NoError(t, readErr)

	require.NoError(t, execErr)
	return buf.String()
}

func TestCreateRootCommandRegistersSubcommands(t *testing.T) {
	cmd := createRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "init")
	assert.Contains(t, names, "snapshot")
	assert.Contains(t, names, "history")
	assert.Contains(t, names, "consolidate")
	assert.Contains(t, names, "reverse")
	assert.Contains(t, names, "diff")
	assert.Contains(t, names, "state")
	assert.Contains(t, names, "config")
	assert.Contains(t, names, "validate")
}

func TestEndToEndInitSnapshotHistory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("v1\n"), 0o644))

	out := runCLI(t, "-w", dir, "init")
	assert.Contains(t, out, "ready")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("v2\n"), 0o644))
	diffPath := filepath.Join(dir, "change.diff")
	require.NoError(t, os.WriteFile(diffPath, []byte(
		"--- a/a.go\n+++ a/a.go\n@@ -1,1 +1,1 @@\n-v1\n+v2\n"), 0o644))

	snapOut := runCLI(t, "-w", dir, "snapshot", "create", "--diff-file", diffPath, "--files", "a.go", "--tool", "Edit")
	id := strings.TrimSpace(snapOut)
	assert.NotEmpty(t, id)

	histOut := runCLI(t, "-w", dir, "history")
	assert.Contains(t, histOut, id)

	stateOut := runCLI(t, "-w", dir, "state")
	assert.Contains(t, stateOut, id)
}

func TestConfigCommandPrintsYAMLByDefault(t *testing.T) {
	dir := t.TempDir()
	out := runCLI(t, "-w", dir, "config")
	assert.Contains(t, out, "workspace_path")
}

func TestConfigCommandRejectsUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	cmd := createRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"-w", dir, "config", "--format", "toml"})
	assert.Error(t, cmd.Execute())
}
