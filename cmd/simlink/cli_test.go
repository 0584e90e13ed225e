package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/simlink/internal/config"
	"github.com/danmuck/simlink/internal/shm"
	"github.com/danmuck/simlink/internal/testutil/testlog"
)

func executeCLI(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	stdout := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return stdout.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := executeCLI(t, context.Background(), "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.toml")
	out, err := executeCLI(t, context.Background(), "config", "init", "--kind", "agent", "--out", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote agent config")

	_, err = executeCLI(t, context.Background(), "config", "init", "--kind", "agent", "--out", path)
	assert.Error(t, err)
	_, err = executeCLI(t, context.Background(), "config", "init", "--kind", "agent", "--out", path, "--force")
	assert.NoError(t, err)

	cfg, err := config.Load(path, config.KindAgent)
	require.NoError(t, err)
	assert.Equal(t, shm.Creator, cfg.Role)
}

func TestSimRequiresConfig(t *testing.T) {
	_, err := executeCLI(t, context.Background(), "sim")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "config" not set`)
}

func TestInspectMissingSegment(t *testing.T) {
	_, err := executeCLI(t, context.Background(), "inspect", "--dir", t.TempDir(), "--segment", "seg9")
	require.ErrorIs(t, err, shm.ErrSegmentNotFound)
	assert.Equal(t, 2, exitCode(err))
	assert.Equal(t, 1, exitCode(errors.New("other")))
}

func TestInspectLiveSegment(t *testing.T) {
	dir := t.TempDir()
	cfg := shm.NamesFor(4).AgentConfig(shm.Creator, 512)
	cfg.Dir = dir
	ch, err := shm.Open(context.Background(), cfg)
	require.NoError(t, err)
	defer ch.Close()

	out, err := executeCLI(t, context.Background(), "inspect", "--dir", dir, "--segment", "seg4", "--json")
	require.NoError(t, err)
	var info shm.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, uint32(512), info.Capacity)
	assert.Equal(t, "py2cpp4", info.Slots[0].Name)

	out, err = executeCLI(t, context.Background(), "inspect", "--dir", dir, "--segment", "seg4")
	require.NoError(t, err)
	assert.Contains(t, out, "lock      lockable4")
}

func TestSimAndAgentEpisode(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	dir := t.TempDir()
	common := fmt.Sprintf("env_id = 5\ndir = %q\nattach_timeout = \"10s\"\n", dir)
	agentPath := writeFile(t, dir, "agent.toml", common+"role = \"creator\"\ncapacity = 2048\n")
	simPath := writeFile(t, dir, "sim.toml", common+"role = \"attacher\"\nsteps = 100\n")

	type result struct {
		out string
		err error
	}
	agentDone := make(chan result, 1)
	go func() {
		out, err := executeCLI(t, ctx, "agent", "--config", agentPath)
		agentDone <- result{out, err}
	}()

	simOut, err := executeCLI(t, ctx, "sim", "--config", simPath, "--size", "8", "--seed", "3")
	require.NoError(t, err)
	assert.Contains(t, simOut, "stopped by controller")

	agent := <-agentDone
	require.NoError(t, agent.err)
	assert.Contains(t, agent.out, "reason=game_over")
	assert.Contains(t, agent.out, "stopped=false")
}

func TestSimEndsSimulationAfterStepBudget(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	dir := t.TempDir()
	common := fmt.Sprintf("env_id = 6\ndir = %q\n", dir)
	agentPath := writeFile(t, dir, "agent.toml", common+"role = \"creator\"\n")
	// A budget of one step cannot reach a target that starts elsewhere.
	simPath := writeFile(t, dir, "sim.toml", common+"steps = 1\n")

	agentDone := make(chan string, 1)
	go func() {
		out, err := executeCLI(t, ctx, "agent", "--config", agentPath)
		if err != nil {
			t.Errorf("agent: %v", err)
		}
		agentDone <- out
	}()

	simOut, err := executeCLI(t, ctx, "sim", "--config", simPath, "--size", "64", "--seed", "1")
	require.NoError(t, err)
	assert.Contains(t, simOut, "simulation ended after 2 steps")
	assert.Contains(t, <-agentDone, "reason=simulation_ended")
}
