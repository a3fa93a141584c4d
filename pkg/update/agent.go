/*
Copyright 2025 Paradrop Labs
*/

package update

import (
	"context"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/leilei1881/Paradrop/pkg/chute"
	"github.com/leilei1881/Paradrop/pkg/container"
	"github.com/leilei1881/Paradrop/pkg/ipam"
	"github.com/leilei1881/Paradrop/pkg/pdconf"
	"github.com/leilei1881/Paradrop/pkg/settings"
)

// Engine is the port onto the external container engine. The concrete
// implementation lives in the container package; tests substitute fakes.
type Engine interface {
	BuildImage(ctx context.Context, tag string, buildContext io.Reader, progress container.ProgressSink) error
	PullImage(ctx context.Context, image string, auth container.Auth, progress container.ProgressSink) error
	CreateContainer(ctx context.Context, ch *chute.Chute, env []string) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, name string) error
	RemoveContainer(ctx context.Context, name string, force bool) error
	RemoveImage(ctx context.Context, image string) error
	Inspect(ctx context.Context, name string) (container.State, error)
}

// Agent bundles the long-lived collaborators an update needs. One Agent
// exists per process, created at startup; there are no package globals.
type Agent struct {
	Settings *settings.Settings
	Store    *chute.Store
	Pool     *ipam.Pool
	Engine   Engine
	ConfD    *pdconf.Manager
	Log      *zap.Logger
}

// NewAgent wires the agent context from settings.
func NewAgent(s *settings.Settings, engine Engine, log *zap.Logger) (*Agent, error) {
	store, err := chute.NewStore(s.ChuteStoreDir)
	if err != nil {
		return nil, err
	}
	pool, err := ipam.NewPool(s.DynamicNetworkPool, s.SubnetPrefixLen)
	if err != nil {
		return nil, err
	}
	// Rebuild the pool state from the persisted interface records so a
	// restarted agent does not hand out subnets already in use.
	for _, c := range store.List() {
		for _, iface := range c.Interfaces() {
			if _, subnet, err := net.ParseCIDR(iface.Subnet); err == nil {
				pool.Reserve(*subnet)
			}
		}
	}
	return &Agent{
		Settings: s,
		Store:    store,
		Pool:     pool,
		Engine:   engine,
		ConfD:    pdconf.NewManager(s.WriteDir, log.Named("pdconf")),
		Log:      log,
	}, nil
}

// Pipeline serializes update execution: one update is in flight at a
// time, and the next begins only after the previous completed.
type Pipeline struct {
	agent   *Agent
	updates chan *Update
}

// NewPipeline returns a pipeline bound to the agent.
func NewPipeline(agent *Agent) *Pipeline {
	return &Pipeline{agent: agent, updates: make(chan *Update, 16)}
}

// Submit queues an update for execution.
func (p *Pipeline) Submit(u *Update) {
	p.updates <- u
}

// Run drains the queue until the context is cancelled. Queued updates
// that never ran are completed unsuccessfully so requesters are not left
// waiting.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case u := <-p.updates:
					u.Complete(false, "agent shutting down")
				default:
					return
				}
			}
		case u := <-p.updates:
			u.Execute()
		}
	}
}
