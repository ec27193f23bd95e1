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

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "crmexport version dev")
}

func TestGroups(t *testing.T) {
	out, err := execute(t, "groups")
	require.NoError(t, err)
	assert.Contains(t, out, "GROUP")
	for _, line := range []string{"final   quote, organisation", "final4  opp-stage", "users   users"} {
		assert.Contains(t, out, line)
	}
}

func TestRunRequiresGroup(t *testing.T) {
	_, err := execute(t, "run")
	assert.Error(t, err)
}

func TestRunsOnEmptyLog(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "runs", "--data-dir", dir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "STARTED"))
	_, err = os.Stat(filepath.Join(dir, "runs.db"))
	assert.NoError(t, err)
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "env.yaml")
	require.NoError(t, os.WriteFile(path, []byte("INSIGHTLY_API_KEY: from-file\nlog:\n  level: warn\n"), 0o644))
	t.Setenv("CRMEXPORT_LOG_LEVEL", "error")
	t.Setenv("CRMEXPORT_DATA_DIR", "/from/env")

	flags := &globalFlags{configFile: path, dataDir: dir, logFormat: "text"}
	cfg, err := flags.load()
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.CRM.APIKey)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "temp"), cfg.OutputDir)
}

func TestNewLogger_Format(t *testing.T) {
	flags := &globalFlags{dataDir: t.TempDir(), logFormat: "text", logLevel: "debug"}
	cfg, err := flags.load()
	require.NoError(t, err)

	var buf bytes.Buffer
	newLogger(cfg, &buf).Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello k=v")

	cfg.Log.Format = "json"
	buf.Reset()
	newLogger(cfg, &buf).Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}
