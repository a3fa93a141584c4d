/*
Copyright 2025 Paradrop Labs
*/

package update

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leilei1881/Paradrop/pkg/chute"
	"github.com/leilei1881/Paradrop/pkg/container"
	"github.com/leilei1881/Paradrop/pkg/pdconf"
	"github.com/leilei1881/Paradrop/pkg/settings"
)

// fakeEngine records container engine calls.
type fakeEngine struct {
	pulled   []string
	built    []string
	created  []string
	started  []string
	stopped  []string
	removed  []string
	images   []string
	startErr error
}

func (f *fakeEngine) BuildImage(ctx context.Context, tag string, buildContext io.Reader, progress container.ProgressSink) error {
	f.built = append(f.built, tag)
	return nil
}

func (f *fakeEngine) PullImage(ctx context.Context, image string, auth container.Auth, progress container.ProgressSink) error {
	f.pulled = append(f.pulled, image)
	return nil
}

func (f *fakeEngine) CreateContainer(ctx context.Context, ch *chute.Chute, env []string) (string, error) {
	f.created = append(f.created, ch.Name)
	return "id-" + ch.Name, nil
}

func (f *fakeEngine) StartContainer(ctx context.Context, id string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, id)
	return nil
}

func (f *fakeEngine) StopContainer(ctx context.Context, name string) error {
	f.stopped = append(f.stopped, name)
	return nil
}

func (f *fakeEngine) RemoveContainer(ctx context.Context, name string, force bool) error {
	f.removed = append(f.removed, name)
	return nil
}

func (f *fakeEngine) RemoveImage(ctx context.Context, image string) error {
	f.images = append(f.images, image)
	return nil
}

func (f *fakeEngine) Inspect(ctx context.Context, name string) (container.State, error) {
	return container.State{}, errors.Wrap(container.ErrChuteNotFound, name)
}

// nopExecutor swallows the host commands the confd reload would run.
type nopExecutor struct{}

func (nopExecutor) Run(*pdconf.Command) error { return nil }

func testAgent(t *testing.T, engine Engine) *Agent {
	t.Helper()
	root := t.TempDir()
	cfg := &settings.Settings{
		DynamicNetworkPool: "192.168.128.0/22",
		SubnetPrefixLen:    24,
		WriteDir:           filepath.Join(root, "run"),
		ConfigDir:          filepath.Join(root, "config"),
		DataDir:            filepath.Join(root, "chutes"),
		SystemDir:          filepath.Join(root, "system"),
		ChuteStoreDir:      filepath.Join(root, "store"),
		InternalDataDir:    "/data",
		InternalSystemDir:  "/paradrop",
		RouterID:           "router-1",
		WifiDevices:        []string{"wlan0"},
		GlueTool:           "true",
		Debug:              true,
	}
	for _, dir := range []string{cfg.WriteDir, cfg.ConfigDir, cfg.DataDir, cfg.SystemDir} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}

	agent, err := NewAgent(cfg, engine, zap.NewNop())
	require.NoError(t, err)
	agent.ConfD.SetExecutor(nopExecutor{})
	return agent
}

func createRequest(name string) map[string]interface{} {
	return map[string]interface{}{
		"updateClass":    "CHUTE",
		"updateType":     "create",
		"name":           name,
		"tok":            "tok-1",
		"version":        "1",
		"external_image": "registry.example.com/" + name + ":latest",
		"net": map[string]interface{}{
			"wifi": map[string]interface{}{
				"intfName":   "wlan0",
				"type":       "wifi",
				"ssid":       "TestNet",
				"encryption": "psk2",
				"key":        "password",
				"dhcp": map[string]interface{}{
					"start":     100,
					"limit":     100,
					"leasetime": "12h",
				},
			},
		},
	}
}

func runUpdate(t *testing.T, agent *Agent, req map[string]interface{}) (*Update, Result) {
	t.Helper()
	u, err := ParseRequest(agent, req)
	require.NoError(t, err)
	u.Execute()
	select {
	case result := <-u.Result():
		return u, result
	default:
		t.Fatal("update did not complete")
		return nil, Result{}
	}
}

func TestParseRequest(t *testing.T) {
	agent := testAgent(t, &fakeEngine{})

	req := createRequest("hello")
	req["mystery"] = 42

	u, err := ParseRequest(agent, req)
	require.NoError(t, err)
	assert.Equal(t, TypeCreate, u.Type)
	assert.Equal(t, "hello", u.Name)
	assert.Equal(t, "tok-1", u.Tok)
	require.NotNil(t, u.New)
	assert.Equal(t, "registry.example.com/hello:latest", u.New.ExternalImage)
	require.Contains(t, u.New.Net, "wifi")
	assert.Equal(t, "TestNet", u.New.Net["wifi"].SSID)

	// Unknown fields are preserved for diagnostics only.
	assert.Equal(t, 42, u.Extra["mystery"])
}

func TestParseRequestBadClass(t *testing.T) {
	agent := testAgent(t, &fakeEngine{})
	_, err := ParseRequest(agent, map[string]interface{}{
		"updateClass": "ROUTER",
		"updateType":  "create",
		"name":        "x",
	})
	require.ErrorIs(t, err, ErrBadUpdateType)

	_, err = ParseRequest(agent, map[string]interface{}{
		"updateClass": "CHUTE",
		"updateType":  "explode",
		"name":        "x",
	})
	require.ErrorIs(t, err, ErrBadUpdateType)
}

func TestCreateChute(t *testing.T) {
	engine := &fakeEngine{}
	agent := testAgent(t, engine)

	u, result := runUpdate(t, agent, createRequest("hello"))
	require.True(t, result.Success, "update failed: %s", result.Message)
	assert.NotEmpty(t, result.Responses)

	// The engine saw the full lifecycle.
	assert.Equal(t, []string{"registry.example.com/hello:latest"}, engine.pulled)
	assert.Equal(t, []string{"hello"}, engine.created)
	assert.Equal(t, []string{"hello"}, engine.started)

	// The chute was committed to the store.
	stored, err := agent.Store.Get("hello")
	require.NoError(t, err)
	assert.Equal(t, "1", stored.Version)

	// Addressing follows the host=.1 chute=.2 convention.
	ifaces := u.New.Interfaces()
	require.Len(t, ifaces, 1)
	assert.Equal(t, "192.168.128.1", ifaces[0].ExternalIpaddr)
	assert.Equal(t, "192.168.128.2", ifaces[0].InternalIpaddr)
	assert.Equal(t, "192.168.128.2/24", ifaces[0].IpaddrWithPrefix)
	assert.Equal(t, "hello.wlan0", ifaces[0].ExternalIntf)
	assert.LessOrEqual(t, len(ifaces[0].ExternalIntf), 15)
	assert.Equal(t, "wlan0", ifaces[0].Device)

	// The declared host config was written for confd.
	data, err := os.ReadFile(filepath.Join(agent.Settings.ConfigDir, "chute-hello"))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "config interface hello.wlan0")
	assert.Contains(t, content, "config zone hello.wlan0")
	assert.Contains(t, content, "config wifi-iface hello.wlan0")
	assert.Contains(t, content, "config dhcp hello.wlan0")
	assert.Contains(t, content, "option ssid 'TestNet'")
}

func TestCreateExistingChuteFails(t *testing.T) {
	engine := &fakeEngine{}
	agent := testAgent(t, engine)

	_, result := runUpdate(t, agent, createRequest("hello"))
	require.True(t, result.Success)

	_, result = runUpdate(t, agent, createRequest("hello"))
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "already exists")
}

func TestCreateAbortRollsBack(t *testing.T) {
	engine := &fakeEngine{startErr: errors.New("no such image")}
	agent := testAgent(t, engine)

	_, result := runUpdate(t, agent, createRequest("hello"))
	require.False(t, result.Success)

	// The half-started container was removed and nothing was committed.
	assert.Equal(t, []string{"hello"}, engine.removed)
	_, err := agent.Store.Get("hello")
	assert.ErrorIs(t, err, chute.ErrChuteNotFound)

	// The leased subnet was returned to the pool: a fresh create gets
	// the same one.
	engine.startErr = nil
	u, result := runUpdate(t, agent, createRequest("hello"))
	require.True(t, result.Success, result.Message)
	assert.Equal(t, "192.168.128.1", u.New.Interfaces()[0].ExternalIpaddr)
}

func TestDeleteChute(t *testing.T) {
	engine := &fakeEngine{}
	agent := testAgent(t, engine)

	_, result := runUpdate(t, agent, createRequest("hello"))
	require.True(t, result.Success)

	_, result = runUpdate(t, agent, map[string]interface{}{
		"updateClass": "CHUTE",
		"updateType":  "delete",
		"name":        "hello",
		"tok":         "tok-2",
	})
	require.True(t, result.Success, result.Message)

	assert.Equal(t, []string{"hello"}, engine.removed)
	_, err := agent.Store.Get("hello")
	assert.ErrorIs(t, err, chute.ErrChuteNotFound)

	// The chute's declared config is gone.
	_, err = os.Stat(filepath.Join(agent.Settings.ConfigDir, "chute-hello"))
	assert.True(t, os.IsNotExist(err))

	// Its subnet is reusable.
	u, result := runUpdate(t, agent, createRequest("other"))
	require.True(t, result.Success, result.Message)
	assert.Equal(t, "192.168.128.1", u.New.Interfaces()[0].ExternalIpaddr)
}

func TestDeleteUnknownChuteFails(t *testing.T) {
	agent := testAgent(t, &fakeEngine{})
	_, result := runUpdate(t, agent, map[string]interface{}{
		"updateClass": "CHUTE",
		"updateType":  "delete",
		"name":        "ghost",
	})
	require.False(t, result.Success)
}

func TestCompleteExactlyOnce(t *testing.T) {
	agent := testAgent(t, &fakeEngine{})
	u, err := ParseRequest(agent, createRequest("hello"))
	require.NoError(t, err)

	u.Complete(false, "first")
	u.Complete(true, "second")

	result := <-u.Result()
	assert.False(t, result.Success)
	assert.Equal(t, "first", result.Message)

	select {
	case <-u.Result():
		t.Fatal("complete delivered more than one result")
	default:
	}
}

func TestPlanAbortOrder(t *testing.T) {
	agent := testAgent(t, &fakeEngine{})
	u, err := ParseRequest(agent, map[string]interface{}{
		"updateClass": "CHUTE",
		"updateType":  "create",
		"name":        "hello",
	})
	require.NoError(t, err)

	var aborted []string
	record := func(name string) PlanFunc {
		return func(u *Update) error {
			aborted = append(aborted, name)
			return nil
		}
	}

	u.Plans.Add(10, "a", func(u *Update) error { return nil }, record("a"))
	u.Plans.Add(20, "b", func(u *Update) error { return nil }, record("b"))
	u.Plans.Add(30, "c", func(u *Update) error { return errors.New("boom") }, record("c"))

	u.Plans.aggregate()
	var executed []planEntry
	for _, entry := range u.Plans.entries {
		if err := entry.run(u); err != nil {
			u.abort(executed)
			break
		}
		executed = append(executed, entry)
	}

	// Aborts run in reverse order of execution; the failed step's own
	// abort does not run.
	assert.Equal(t, []string{"b", "a"}, aborted)
}

func TestNameValidation(t *testing.T) {
	agent := testAgent(t, &fakeEngine{})

	for _, name := range []string{"", "bad/name", "-leading"} {
		req := createRequest("x")
		req["name"] = name
		u, err := ParseRequest(agent, req)
		require.NoError(t, err)
		u.New.Name = name
		u.Execute()
		result := <-u.Result()
		assert.False(t, result.Success, "name %q should be rejected", name)
	}
}
