package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func useMemoryBackends(t *testing.T) {
	t.Helper()
	t.Setenv("NETGRAPH_DATABASE_DRIVER", "memory")
	t.Setenv("NETGRAPH_STORAGE_BACKEND", "memory")
	t.Setenv("NETGRAPH_LOGGING_DEVELOPMENT", "false")
	t.Setenv("NETGRAPH_LOGGING_LEVEL", "error")
}

func TestMigrateCreatesSQLiteSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "graph.db")
	t.Setenv("NETGRAPH_DATABASE_DRIVER", "sqlite")
	t.Setenv("NETGRAPH_DATABASE_PATH", dbPath)
	t.Setenv("NETGRAPH_LOGGING_LEVEL", "error")

	_, err := execute(t, "migrate")
	require.NoError(t, err)

	info, err := os.Stat(dbPath)
	require.NoError(t, err)
	require.False(t, info.IsDir())
}

func TestNetworkRequiresARoot(t *testing.T) {
	useMemoryBackends(t)

	_, err := execute(t, "network")
	require.ErrorContains(t, err, "at least one of --github or --linkedin is required")
}

func TestNetworkReportsUnknownRoot(t *testing.T) {
	useMemoryBackends(t)

	_, err := execute(t, "network", "--github", "ghost")
	require.ErrorContains(t, err, "build network")
}

func TestCrawlGitHubRequiresLogin(t *testing.T) {
	useMemoryBackends(t)

	_, err := execute(t, "crawl", "github")
	require.Error(t, err)
}

func TestInvalidConfigFails(t *testing.T) {
	t.Setenv("NETGRAPH_DATABASE_DRIVER", "mysql")

	_, err := execute(t, "migrate")
	require.ErrorContains(t, err, "database.driver")
}
