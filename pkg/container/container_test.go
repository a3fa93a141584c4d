/*
Copyright 2025 Paradrop Labs
*/

package container

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leilei1881/Paradrop/pkg/chute"
)

func TestPrepareEnvironment(t *testing.T) {
	c := &chute.Chute{
		Name:        "hello",
		Version:     "2",
		Environment: map[string]string{"CUSTOM": "value", "PARADROP_CHUTE_NAME": "spoofed"},
	}
	c.SetCache(chute.CacheInternalDataDir, "/data")
	c.SetCache(chute.CacheInternalSystemDir, "/paradrop")

	env := PrepareEnvironment(c, "router-1")

	assert.Contains(t, env, "CUSTOM=value")
	assert.Contains(t, env, "PARADROP_CHUTE_NAME=hello")
	assert.Contains(t, env, "PARADROP_CHUTE_VERSION=2")
	assert.Contains(t, env, "PARADROP_ROUTER_ID=router-1")
	assert.Contains(t, env, "PARADROP_DATA_DIR=/data")
	assert.Contains(t, env, "PARADROP_SYSTEM_DIR=/paradrop")

	// The agent-provided name wins over the user's spoof attempt.
	for _, kv := range env {
		if strings.HasPrefix(kv, "PARADROP_CHUTE_NAME=") {
			assert.Equal(t, "PARADROP_CHUTE_NAME=hello", kv)
		}
	}

	// Output is sorted for reproducible container configs.
	sorted := append([]string(nil), env...)
	for i := 1; i < len(sorted); i++ {
		assert.LessOrEqual(t, sorted[i-1], sorted[i])
	}
}

func TestPrepareEnvironmentWithoutVersion(t *testing.T) {
	env := PrepareEnvironment(&chute.Chute{Name: "c"}, "r")
	for _, kv := range env {
		assert.False(t, strings.HasPrefix(kv, "PARADROP_CHUTE_VERSION="))
	}
}

func TestPortMaps(t *testing.T) {
	c := &chute.Chute{
		Name: "c",
		HostConfig: &chute.HostConfig{
			PortBindings: map[string]int{
				"80":     8080,
				"53/udp": 53,
			},
		},
	}

	exposed, bindings, err := portMaps(c)
	require.NoError(t, err)
	require.Len(t, exposed, 2)
	require.Len(t, bindings, 2)

	assert.Contains(t, exposed, nat.Port("80/tcp"))
	assert.Contains(t, exposed, nat.Port("53/udp"))
	assert.Equal(t, "8080", bindings[nat.Port("80/tcp")][0].HostPort)
	assert.Equal(t, "53", bindings[nat.Port("53/udp")][0].HostPort)
}

func TestPortMapsEmpty(t *testing.T) {
	exposed, bindings, err := portMaps(&chute.Chute{Name: "c"})
	require.NoError(t, err)
	assert.Nil(t, exposed)
	assert.Nil(t, bindings)
}

func TestPortMapsBadSpec(t *testing.T) {
	c := &chute.Chute{
		Name: "c",
		HostConfig: &chute.HostConfig{
			PortBindings: map[string]int{"not-a-port": 1},
		},
	}
	_, _, err := portMaps(c)
	assert.Error(t, err)
}

func TestBuildContextRequiresDockerfile(t *testing.T) {
	dir := t.TempDir()
	_, err := BuildContext(dir)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"),
		[]byte("FROM scratch\n"), 0o644))
	r, err := BuildContext(dir)
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestDrainBuildOutput(t *testing.T) {
	var lines []string
	sink := func(msg string) { lines = append(lines, msg) }

	stream := strings.NewReader(
		`{"stream":"Step 1/2 : FROM scratch\n"}` + "\n" +
			`{"stream":"\n"}` + "\n" +
			`{"stream":"Successfully built abc123\n"}` + "\n")
	require.NoError(t, drainBuildOutput(stream, sink))
	assert.Equal(t, []string{"Step 1/2 : FROM scratch", "Successfully built abc123"}, lines)

	failing := strings.NewReader(
		`{"stream":"Step 1/1 : RUN false\n"}` + "\n" +
			`{"errorDetail":{"message":"command failed"}}` + "\n")
	err := drainBuildOutput(failing, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command failed")
}
