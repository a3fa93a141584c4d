/*
Copyright 2025 Paradrop Labs
*/

// Package pdconf reduces a declared network configuration to an ordered
// command plan against the host (iproute2, iptables, hostapd, dnsmasq) and
// reconciles the running state with the declared state across edits.
package pdconf

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/leilei1881/Paradrop/pkg/uci"
)

// Priority buckets control command ordering within a reconciliation:
// creation precedes configuration precedes linking precedes daemon start.
// Reverts use the negated priority so teardown runs in reverse dependency
// order.
type Priority int

const (
	PrioCreateIface Priority = 10
	PrioConfigIface Priority = 20
	PrioCreateQdisc Priority = 30
	PrioCreateVlan  Priority = 40
	PrioAddLink     Priority = 50
	PrioStartDaemon Priority = 60
)

// ErrCommandFailed wraps a non-zero exit or spawn failure.
var ErrCommandFailed = errors.New("command failed")

// commandTimeout bounds a single child process. A command that does not
// terminate within the deadline is treated as a failure.
const commandTimeout = 30 * time.Second

// Command is a single host action: an argv with a priority bucket and the
// section that contributed it. Kill commands resolve their argv from a PID
// file; a missing file is a warning, not an error.
type Command struct {
	Priority Priority
	Args     []string
	Section  *uci.Section

	// PidFile is set on kill commands; Args are resolved from it.
	PidFile string
}

// NewCommand returns a plain argv command.
func NewCommand(prio Priority, section *uci.Section, args ...string) *Command {
	return &Command{Priority: prio, Args: args, Section: section}
}

// NewKillCommand returns a command that signals the process recorded in
// pidFile.
func NewKillCommand(prio Priority, section *uci.Section, pidFile string) *Command {
	return &Command{Priority: prio, Section: section, PidFile: pidFile}
}

// resolve returns the argv to execute, reading the PID file for kill
// commands. ok is false when the PID file is absent.
func (c *Command) resolve() (args []string, ok bool) {
	if c.PidFile == "" {
		return c.Args, true
	}
	data, err := os.ReadFile(c.PidFile)
	if err != nil {
		return nil, false
	}
	return []string{"kill", strings.TrimSpace(string(data))}, true
}

func (c *Command) String() string {
	if args, ok := c.resolve(); ok {
		return strings.Join(args, " ")
	}
	return "kill @" + c.PidFile
}

// Executor runs commands. The process executor is the default; tests
// record instead of executing.
type Executor interface {
	Run(cmd *Command) error
}

// ProcessExecutor launches each command as a child process and checks its
// exit status.
type ProcessExecutor struct {
	Log *zap.Logger
}

func (e *ProcessExecutor) Run(cmd *Command) error {
	args, ok := cmd.resolve()
	if !ok {
		// Missing PID file: the daemon may not have been running.
		e.Log.Warn("pid file not found, skipping kill",
			zap.String("pidFile", cmd.PidFile))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	e.Log.Debug("exec", zap.Strings("args", args))
	child := exec.CommandContext(ctx, args[0], args[1:]...)
	out, err := child.CombinedOutput()
	if err != nil {
		return errors.Wrapf(ErrCommandFailed, "%s: %v (%s)",
			strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
