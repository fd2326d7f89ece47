package commands

import (
	"bytes"
	"context"
	"testing"

	"github.com/RezaEskandarii/genjob/custom_errors"
	"github.com/RezaEskandarii/genjob/types/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("GENJOB_INSTANCE", "cli-test")
	t.Setenv("GENJOB_STORAGE_DRIVER", "memory")
	t.Setenv("GENJOB_LOG_LEVEL", "error")

	cmd := NewRootCmd(config.NewJobHandler())
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestJobsList_Empty(t *testing.T) {
	out, err := run(t, "jobs", "list", "p1")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)
}

func TestJobsGet_NotFound(t *testing.T) {
	_, err := run(t, "jobs", "get", "p1-render-0")
	assert.ErrorIs(t, err, custom_errors.ErrJobNotFound)
}

func TestJobsGet_RequiresID(t *testing.T) {
	_, err := run(t, "jobs", "get")
	assert.Error(t, err)
}

func TestJobsStopProject(t *testing.T) {
	_, err := run(t, "jobs", "stop-project", "p1")
	assert.NoError(t, err)
}

func TestMigrate_MemoryStorage(t *testing.T) {
	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema is up to date")
}

func TestLoadConfigError(t *testing.T) {
	_, err := run(t, "--config", "/does/not/exist.yaml", "jobs", "list", "p1")
	assert.ErrorContains(t, err, "read config")
}
