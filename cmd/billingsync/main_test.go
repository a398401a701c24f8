package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command against a fresh memory backend.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("SQLITE_DB_PATH", filepath.Join(dir, "state.db"))
	t.Setenv("MEMORY_FILES_DIR", filepath.Join(dir, "files"))
	t.Setenv("AMQP_URL", "")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"import", "process", "period", "serve", "worker", "auth"} {
		assert.Contains(t, names, want)
	}
}

func TestProcess_WrongSheetIsNotAFailure(t *testing.T) {
	out, err := execute(t, "process", "Sheet1")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrong sheet")
}

func TestProcess_MissingRawTableFails(t *testing.T) {
	out, err := execute(t, "process", "Feb-25 (RAW)")
	require.Error(t, err)
	var exit exitError
	assert.True(t, errors.As(err, &exit))
	assert.Contains(t, out, "Processing failed")
	assert.Contains(t, out, "Sheet Feb-25 (RAW) does not exist")
}

func TestProcess_RequiresSheetArgument(t *testing.T) {
	_, err := execute(t, "process")
	require.Error(t, err)
}

func TestWorker_RequiresBroker(t *testing.T) {
	_, err := execute(t, "worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AMQP_URL")
}

func TestPeriod_All(t *testing.T) {
	out, err := execute(t, "period", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "PERIOD")
}
