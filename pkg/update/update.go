/*
Copyright 2025 Paradrop Labs
*/

// Package update transforms chute intents (create, update, delete, start,
// stop, restart) into a prioritized multi-phase plan executed across the
// container, networking, and resource subsystems, with rollback on
// failure.
package update

import (
	"fmt"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/leilei1881/Paradrop/pkg/chute"
)

// Type is the requested chute operation.
type Type string

const (
	TypeCreate  Type = "create"
	TypeUpdate  Type = "update"
	TypeDelete  Type = "delete"
	TypeStart   Type = "start"
	TypeStop    Type = "stop"
	TypeRestart Type = "restart"
)

// ClassChute is the only defined update class.
const ClassChute = "CHUTE"

// ErrBadUpdateType is returned for requests with an unknown class or
// operation.
var ErrBadUpdateType = errors.New("bad update type")

// Result is delivered to the requester exactly once per update.
type Result struct {
	Success bool
	Message string
	// Responses carries the progress log; attached in debug mode only.
	Responses []string
}

// Update is the scratchpad for a single chute operation: the old and new
// snapshots, the accumulated responses, and the execution plan.
type Update struct {
	Class string
	Type  Type
	Name  string
	// Tok is the requester's correlation token.
	Tok string

	New *chute.Chute
	Old *chute.Chute

	// Responses accumulates human-readable progress and warnings.
	Responses []string
	// Failure is the terminal reason when the update fails.
	Failure error

	// Extra preserves unknown request fields for diagnostics only.
	Extra map[string]interface{}

	Plans *PlanMap

	agent *Agent
	log   *zap.Logger

	done     chan Result
	complete sync.Once
}

// request is the wire shape of an inbound update. Unknown fields land in
// Extra.
type request struct {
	UpdateClass   string                       `mapstructure:"updateClass"`
	UpdateType    string                       `mapstructure:"updateType"`
	Name          string                       `mapstructure:"name"`
	Tok           string                       `mapstructure:"tok"`
	Version       string                       `mapstructure:"version"`
	ExternalImage string                       `mapstructure:"external_image"`
	Environment   map[string]string            `mapstructure:"environment"`
	HostConfig    *chute.HostConfig            `mapstructure:"host_config"`
	Net           map[string]chute.NetworkSpec `mapstructure:"net"`
	Extra         map[string]interface{}       `mapstructure:",remain"`
}

// ParseRequest decodes an inbound request dict into an update bound to the
// agent.
func ParseRequest(agent *Agent, req map[string]interface{}) (*Update, error) {
	var r request
	if err := mapstructure.Decode(req, &r); err != nil {
		return nil, errors.Wrap(err, "decode update request")
	}
	if r.UpdateClass != ClassChute {
		return nil, errors.Wrapf(ErrBadUpdateType, "class %q", r.UpdateClass)
	}
	switch Type(r.UpdateType) {
	case TypeCreate, TypeUpdate, TypeDelete, TypeStart, TypeStop, TypeRestart:
	default:
		return nil, errors.Wrapf(ErrBadUpdateType, "type %q", r.UpdateType)
	}

	u := &Update{
		Class: r.UpdateClass,
		Type:  Type(r.UpdateType),
		Name:  r.Name,
		Tok:   r.Tok,
		Extra: r.Extra,
		Plans: &PlanMap{},
		agent: agent,
		log:   agent.Log.With(zap.String("chute", r.Name), zap.String("updateType", r.UpdateType)),
		done:  make(chan Result, 1),
	}

	switch u.Type {
	case TypeCreate, TypeUpdate:
		u.New = &chute.Chute{
			Name:          r.Name,
			Version:       r.Version,
			ExternalImage: r.ExternalImage,
			Environment:   r.Environment,
			HostConfig:    r.HostConfig,
			Net:           r.Net,
		}
	}
	return u, nil
}

func (u *Update) String() string {
	return fmt.Sprintf("<Update(%s) :: %s - %s @ %s>", u.Class, u.Name, u.Type, u.Tok)
}

// Result returns the channel the final result is delivered on.
func (u *Update) Result() <-chan Result {
	return u.done
}

// Progress appends a human-readable message to the response log.
func (u *Update) Progress(msg string) {
	u.Responses = append(u.Responses, msg)
	u.log.Info(msg)
}

// Complete finalizes the update and delivers the result to the requester.
// It is safe to call more than once; only the first call takes effect.
func (u *Update) Complete(success bool, message string) {
	u.complete.Do(func() {
		result := Result{Success: success, Message: message}
		if u.agent.Settings.Debug {
			result.Responses = u.Responses
		}
		u.done <- result
	})
}

// Execute walks the update through its phases: generate the plans from
// each concern module, aggregate them by priority, and run them. On a
// step failure the already-executed steps' abort entries run in reverse
// order and the update completes unsuccessfully.
func (u *Update) Execute() {
	if err := u.generatePlans(); err != nil {
		u.Failure = err
		u.log.Warn("failed to generate plans", zap.Error(err))
		u.Complete(false, err.Error())
		return
	}

	u.Plans.aggregate()

	var executed []planEntry
	for _, entry := range u.Plans.entries {
		u.log.Debug("executing plan step", zap.String("step", entry.label))
		if err := entry.run(u); err != nil {
			u.Failure = err
			u.log.Warn("plan step failed, aborting",
				zap.String("step", entry.label), zap.Error(err))
			u.abort(executed)
			u.Complete(false, err.Error())
			return
		}
		executed = append(executed, entry)
	}

	u.Complete(true, fmt.Sprintf("Chute %s %s success", u.Name, u.Type))
}

func (u *Update) abort(executed []planEntry) {
	for i := len(executed) - 1; i >= 0; i-- {
		if executed[i].abort == nil {
			continue
		}
		if err := executed[i].abort(u); err != nil {
			u.log.Warn("abort step failed",
				zap.String("step", executed[i].label), zap.Error(err))
		}
	}
}

// generatePlans runs the concern modules in order. A module error aborts
// planning before anything touches the host.
func (u *Update) generatePlans() error {
	modules := []struct {
		name     string
		generate func(u *Update) error
	}{
		{"name", generateNamePlans},
		{"state", generateStatePlans},
		{"runtime", generateRuntimePlans},
		{"files", generateFilePlans},
		{"struct", generateStructPlans},
		{"resource", generateResourcePlans},
		{"traffic", generateTrafficPlans},
	}
	for _, m := range modules {
		if err := m.generate(u); err != nil {
			return errors.Wrapf(err, "%s plans", m.name)
		}
	}
	return nil
}
