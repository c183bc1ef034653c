package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchConfigMissingFileIsNoOp(t *testing.T) {
	a := NewAggregator(nil)
	t.Cleanup(a.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := WatchConfig(ctx, a, filepath.Join(t.TempDir(), "absent.json"))
	assert.NoError(t, err)
}

func TestWatchConfigReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"servers":{}}`), 0644))

	clients := map[string]rpcClient{"late": newFakeClient(echoTool("echo"))}
	a := NewAggregator(nil)
	a.spawn = func(name string, spec ChildConfig) (rpcClient, error) {
		return clients[name], nil
	}
	t.Cleanup(a.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, WatchConfig(ctx, a, path))

	// A new child appears in the file; the watcher should pick it up.
	require.NoError(t, os.WriteFile(path, []byte(`{"servers":{"late":{"command":"fake"}}}`), 0644))

	require.Eventually(t, func() bool {
		infos := a.Children()
		return len(infos) == 1 && infos[0].Name == "late" && infos[0].Status == StatusConnected
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	// Give the watcher goroutine a moment to wind down before goleak runs.
	time.Sleep(100 * time.Millisecond)
}
