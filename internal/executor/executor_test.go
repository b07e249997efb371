package executor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/benjamin-robertson/bolt/internal/target"
	transporttest "github.com/benjamin-robertson/bolt/internal/transport/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTargets(names ...string) []target.Target {
	targets := make([]target.Target, len(names))
	for i, name := range names {
		targets[i] = target.Target{Name: name, Host: name, Port: 22, Transport: "ssh"}
	}
	return targets
}

func TestRunCommandAllSucceed(t *testing.T) {
	dialer := transporttest.NewMockDialer()
	dialer.Connection("web1").Responses["hostname"] = transporttest.Response{Stdout: "web1\n"}
	dialer.Connection("web2").Responses["hostname"] = transporttest.Response{Stdout: "web2\n"}

	exec := NewSSHExecutor(dialer, 10)
	defer exec.Shutdown()

	rs, err := exec.RunCommand(context.Background(), makeTargets("web1", "web2"), "hostname")
	require.NoError(t, err)

	assert.True(t, rs.Ok())
	require.Len(t, rs.Results, 2)
	assert.Equal(t, "web1\n", rs.Results[0].Stdout)
	ok, failed := rs.Counts()
	assert.Equal(t, 2, ok)
	assert.Equal(t, 0, failed)
}

func TestRunCommandPartialFailureIsolation(t *testing.T) {
	dialer := transporttest.NewMockDialer()
	dialer.Connection("web1").Default = transporttest.Response{ExitCode: 0}
	dialer.Connection("web2").Default = transporttest.Response{ExitCode: 1, Stderr: "boom"}
	dialer.Connection("web3").Default = transporttest.Response{ExitCode: 0}

	exec := NewSSHExecutor(dialer, 10)
	defer exec.Shutdown()

	rs, err := exec.RunCommand(context.Background(), makeTargets("web1", "web2", "web3"), "true")
	require.NoError(t, err)

	// One failure does not abort the others.
	assert.False(t, rs.Ok())
	require.Len(t, rs.Results, 3)
	assert.True(t, rs.Results[0].OK())
	assert.False(t, rs.Results[1].OK())
	assert.True(t, rs.Results[2].OK())
}

func TestRunCommandDialFailure(t *testing.T) {
	dialer := transporttest.NewMockDialer()
	dialer.FailDial("down1")

	exec := NewSSHExecutor(dialer, 2)
	defer exec.Shutdown()

	rs, err := exec.RunCommand(context.Background(), makeTargets("down1", "up1"), "hostname")
	require.NoError(t, err)

	assert.False(t, rs.Ok())
	assert.Error(t, rs.Results[0].Err)
	assert.True(t, rs.Results[1].OK())
}

func TestRunCommandResultsInTargetOrder(t *testing.T) {
	dialer := transporttest.NewMockDialer()
	names := []string{"e", "d", "c", "b", "a"}

	exec := NewSSHExecutor(dialer, 5)
	defer exec.Shutdown()

	rs, err := exec.RunCommand(context.Background(), makeTargets(names...), "true")
	require.NoError(t, err)

	got := make([]string, len(rs.Results))
	for i, r := range rs.Results {
		got[i] = r.Target.Name
	}
	assert.Equal(t, names, got)
}

func TestRunScriptUploadsAndExecutes(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "deploy.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho hi\n"), 0o755))

	dialer := transporttest.NewMockDialer()
	exec := NewSSHExecutor(dialer, 1)
	defer exec.Shutdown()

	rs, err := exec.RunScript(context.Background(), makeTargets("web1"),
		script, []string{"--force", "v2"}, map[string]string{"PT_version": "v2"})
	require.NoError(t, err)
	assert.True(t, rs.Ok())

	conn := dialer.Connection("web1")
	require.Len(t, conn.Uploads, 1)
	cmds := conn.ExecutedCommands()
	require.NotEmpty(t, cmds)
	last := cmds[len(cmds)-1]
	assert.Contains(t, last, "PT_version='v2'")
	assert.Contains(t, last, "'--force' 'v2'")
}

func TestRunScriptMissingFile(t *testing.T) {
	exec := NewSSHExecutor(transporttest.NewMockDialer(), 1)
	defer exec.Shutdown()

	_, err := exec.RunScript(context.Background(), makeTargets("web1"),
		"/nonexistent/script.sh", nil, nil)
	assert.Error(t, err)
}

func TestUploadFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "app.conf")
	require.NoError(t, os.WriteFile(src, []byte("key = value\n"), 0o644))

	dialer := transporttest.NewMockDialer()
	exec := NewSSHExecutor(dialer, 2)
	defer exec.Shutdown()

	rs, err := exec.UploadFile(context.Background(), makeTargets("web1", "web2"), src, "/etc/app.conf")
	require.NoError(t, err)

	assert.True(t, rs.Ok())
	assert.Equal(t, []byte("key = value\n"), dialer.Connection("web1").Uploads["/etc/app.conf"])
	assert.Equal(t, []byte("key = value\n"), dialer.Connection("web2").Uploads["/etc/app.conf"])
}

func TestUploadFileRejectsDirectory(t *testing.T) {
	exec := NewSSHExecutor(transporttest.NewMockDialer(), 1)
	defer exec.Shutdown()

	_, err := exec.UploadFile(context.Background(), makeTargets("web1"), t.TempDir(), "/tmp/x")
	assert.Error(t, err)
}

func TestEventsDeliveredInEmissionOrder(t *testing.T) {
	dialer := transporttest.NewMockDialer()
	exec := NewSSHExecutor(dialer, 4)
	defer exec.Shutdown()

	var mu sync.Mutex
	var first, second []Event
	exec.Subscribe(ObserverFunc(func(e Event) {
		mu.Lock()
		first = append(first, e)
		mu.Unlock()
	}))
	exec.Subscribe(ObserverFunc(func(e Event) {
		mu.Lock()
		second = append(second, e)
		mu.Unlock()
	}))

	_, err := exec.RunCommand(context.Background(), makeTargets("a", "b", "c"), "true")
	require.NoError(t, err)

	// start + result per target, same sequence for every observer.
	assert.Len(t, first, 6)
	assert.Equal(t, first, second)
	for _, e := range first {
		assert.NotEmpty(t, e.RunID)
		assert.False(t, e.Time.IsZero())
	}
}

func TestCancellationSkipsUndispatchedTargets(t *testing.T) {
	dialer := transporttest.NewMockDialer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := NewSSHExecutor(dialer, 1)
	defer exec.Shutdown()

	rs, err := exec.RunCommand(ctx, makeTargets("a", "b"), "true")
	require.NoError(t, err)

	assert.False(t, rs.Ok())
	for _, r := range rs.Results {
		assert.Error(t, r.Err)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	exec := NewSSHExecutor(transporttest.NewMockDialer(), 1)

	assert.NotPanics(t, func() {
		exec.Shutdown()
		exec.Shutdown()
		exec.Shutdown()
	})

	// Runs after shutdown fail cleanly rather than hanging.
	_, err := exec.RunCommand(context.Background(), makeTargets("a"), "true")
	assert.Error(t, err)
}
