/*
Copyright 2025 Paradrop Labs
*/

// Package container adapts the external container engine: image
// build/pull, container lifecycle, and inspection of running state. The
// engine is reached over its local unix socket.
package container

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	containertypes "github.com/docker/docker/api/types/container"
	imagetypes "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/leilei1881/Paradrop/pkg/chute"
)

var (
	// ErrChuteNotFound is returned when the engine has no container for
	// the chute.
	ErrChuteNotFound = errors.New("the chute could not be found")
	// ErrChuteNotRunning is returned when the chute's container exists
	// but is stopped.
	ErrChuteNotRunning = errors.New("the chute is not running")
)

// restartRetries bounds the engine's on-failure restart policy.
const restartRetries = 5

// Auth carries registry credentials for image pulls.
type Auth struct {
	Username string
	Password string
}

// State is the inspected runtime state of a chute container.
type State struct {
	Running   bool
	IPAddress string
}

// Client wraps the engine API with the operations the update pipeline
// needs.
type Client struct {
	api *client.Client
	log *zap.Logger
}

// NewClient connects to the engine's local socket, negotiating the API
// version.
func NewClient(log *zap.Logger) (*Client, error) {
	api, err := client.NewClientWithOpts(client.FromEnv,
		client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "connect container engine")
	}
	return &Client{api: api, log: log}, nil
}

// ProgressSink receives human-readable progress lines from streaming
// engine operations.
type ProgressSink func(msg string)

// BuildImage builds the chute image from a tar build context and streams
// progress into the sink. Returns an error if any build step reports one.
func (c *Client) BuildImage(ctx context.Context, tag string, buildContext io.Reader, progress ProgressSink) error {
	resp, err := c.api.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:   []string{tag},
		Remove: true,
	})
	if err != nil {
		return errors.Wrap(err, "build image")
	}
	defer resp.Body.Close()
	return drainBuildOutput(resp.Body, progress)
}

// drainBuildOutput forwards build step output and surfaces errors reported
// mid-stream.
func drainBuildOutput(r io.Reader, progress ProgressSink) error {
	dec := json.NewDecoder(bufio.NewReader(r))
	var failed error
	for {
		var msg struct {
			Stream      string `json:"stream"`
			ErrorDetail struct {
				Message string `json:"message"`
			} `json:"errorDetail"`
		}
		if err := dec.Decode(&msg); err == io.EOF {
			break
		} else if err != nil {
			return errors.Wrap(err, "decode build output")
		}
		if msg.ErrorDetail.Message != "" {
			failed = errors.Errorf("image build failed: %s", msg.ErrorDetail.Message)
			continue
		}
		if line := strings.TrimSpace(msg.Stream); line != "" && progress != nil {
			progress(line)
		}
	}
	return failed
}

// PullImage pulls an image from a registry, forwarding layer status lines
// into the sink.
func (c *Client) PullImage(ctx context.Context, image string, auth Auth, progress ProgressSink) error {
	opts := imagetypes.PullOptions{}
	if auth.Username != "" {
		encoded, err := registry.EncodeAuthConfig(registry.AuthConfig{
			Username: auth.Username,
			Password: auth.Password,
		})
		if err != nil {
			return errors.Wrap(err, "encode registry auth")
		}
		opts.RegistryAuth = encoded
	}

	out, err := c.api.ImagePull(ctx, image, opts)
	if err != nil {
		return errors.Wrapf(err, "pull %s", image)
	}
	defer out.Close()

	dec := json.NewDecoder(out)
	for {
		var msg struct {
			Status         string                 `json:"status"`
			ID             string                 `json:"id"`
			Error          string                 `json:"error"`
			ProgressDetail map[string]interface{} `json:"progressDetail"`
		}
		if err := dec.Decode(&msg); err == io.EOF {
			break
		} else if err != nil {
			return errors.Wrap(err, "decode pull output")
		}
		if msg.Error != "" {
			return errors.Errorf("pull failed: %s", msg.Error)
		}
		// Lines with progress detail are the moving progress bars;
		// forwarding them would flood the response log.
		if len(msg.ProgressDetail) == 0 && msg.Status != "" && msg.ID != "" && progress != nil {
			progress(fmt.Sprintf("%s: %s", msg.Status, msg.ID))
		}
	}
	return nil
}

// CreateContainer creates the chute's container and returns its ID. The
// container gets bridge networking, an on-failure restart policy, and
// NET_ADMIN so the chute can manage its own interfaces.
func (c *Client) CreateContainer(ctx context.Context, ch *chute.Chute, env []string) (string, error) {
	exposed, bindings, err := portMaps(ch)
	if err != nil {
		return "", err
	}

	hostConfig := &containertypes.HostConfig{
		NetworkMode: "bridge",
		RestartPolicy: containertypes.RestartPolicy{
			Name:              "on-failure",
			MaximumRetryCount: restartRetries,
		},
		CapAdd:       strslice.StrSlice{"NET_ADMIN"},
		PortBindings: bindings,
	}
	if ch.HostConfig != nil {
		hostConfig.DNS = ch.HostConfig.DNS
	}
	if vols, ok := ch.GetCache(chute.CacheVolumes).(map[string]string); ok {
		for host, bind := range vols {
			hostConfig.Binds = append(hostConfig.Binds, host+":"+bind)
		}
	}

	created, err := c.api.ContainerCreate(ctx, &containertypes.Config{
		Image:        ch.ImageName(),
		Env:          env,
		ExposedPorts: exposed,
	}, hostConfig, nil, nil, ch.Name)
	if err != nil {
		return "", errors.Wrapf(err, "create container %s", ch.Name)
	}
	return created.ID, nil
}

// portMaps renders the chute's port bindings for the engine. Keys are
// "port" or "port/protocol"; the protocol defaults to tcp.
func portMaps(ch *chute.Chute) (nat.PortSet, nat.PortMap, error) {
	if ch.HostConfig == nil || len(ch.HostConfig.PortBindings) == 0 {
		return nil, nil, nil
	}
	exposed := make(nat.PortSet)
	bindings := make(nat.PortMap)
	for key, hostPort := range ch.HostConfig.PortBindings {
		spec, proto := key, "tcp"
		if i := strings.IndexByte(key, '/'); i >= 0 {
			spec, proto = key[:i], key[i+1:]
		}
		port, err := nat.NewPort(proto, spec)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "port binding %q", key)
		}
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostPort: strconv.Itoa(hostPort)}}
	}
	return exposed, bindings, nil
}

// StartContainer starts a created container.
func (c *Client) StartContainer(ctx context.Context, id string) error {
	if err := c.api.ContainerStart(ctx, id, containertypes.StartOptions{}); err != nil {
		return errors.Wrapf(err, "start container %s", id)
	}
	return nil
}

// StopContainer stops the chute's container.
func (c *Client) StopContainer(ctx context.Context, name string) error {
	if err := c.api.ContainerStop(ctx, name, containertypes.StopOptions{}); err != nil {
		if errdefs.IsNotFound(err) {
			return errors.Wrap(ErrChuteNotFound, name)
		}
		return errors.Wrapf(err, "stop container %s", name)
	}
	return nil
}

// RemoveContainer removes the chute's container.
func (c *Client) RemoveContainer(ctx context.Context, name string, force bool) error {
	err := c.api.ContainerRemove(ctx, name, containertypes.RemoveOptions{Force: force})
	if err != nil && !errdefs.IsNotFound(err) {
		return errors.Wrapf(err, "remove container %s", name)
	}
	return nil
}

// RemoveImage removes an image; a missing image is not an error.
func (c *Client) RemoveImage(ctx context.Context, image string) error {
	_, err := c.api.ImageRemove(ctx, image, imagetypes.RemoveOptions{})
	if err != nil && !errdefs.IsNotFound(err) {
		return errors.Wrapf(err, "remove image %s", image)
	}
	return nil
}

// Inspect looks up a chute's container by name and returns its state.
func (c *Client) Inspect(ctx context.Context, name string) (State, error) {
	info, err := c.api.ContainerInspect(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return State{}, errors.Wrap(ErrChuteNotFound, name)
		}
		return State{}, errors.Wrapf(err, "inspect container %s", name)
	}
	state := State{
		Running: info.State != nil && info.State.Running,
	}
	if info.NetworkSettings != nil {
		state.IPAddress = info.NetworkSettings.IPAddress
	}
	return state, nil
}

// ChuteIP returns the IP address of a running chute.
func (c *Client) ChuteIP(ctx context.Context, name string) (string, error) {
	state, err := c.Inspect(ctx, name)
	if err != nil {
		return "", err
	}
	if !state.Running {
		return "", errors.Wrap(ErrChuteNotRunning, name)
	}
	return state.IPAddress, nil
}
