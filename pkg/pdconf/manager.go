/*
Copyright 2025 Paradrop Labs
*/

package pdconf

import (
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/leilei1881/Paradrop/pkg/uci"
)

// handler holds the per-type behaviors. Sections that do not override the
// update pair fall back to a full revert of the old section followed by an
// apply of the new one.
type handler struct {
	apply        func(hc *handlerContext, s *uci.Section) ([]*Command, error)
	revert       func(hc *handlerContext, s *uci.Section) ([]*Command, error)
	updateApply  func(hc *handlerContext, old, new *uci.Section) ([]*Command, error)
	updateRevert func(hc *handlerContext, old, new *uci.Section) ([]*Command, error)
}

// handlerContext carries what a handler needs to produce commands: the
// manager (write dir for derived files) and the collection the section is
// being resolved against.
type handlerContext struct {
	manager *Manager
	configs *uci.Collection
}

// handlers dispatches by section type. Types are unique across packages.
var handlers = map[string]handler{
	"interface": {apply: interfaceApply, revert: interfaceRevert},
	"zone":      {apply: zoneApply, revert: zoneRevert},
	"redirect":  {apply: redirectApply, revert: redirectRevert},
	"dnsmasq":   {apply: noCommands, revert: noCommands},
	"dhcp":      {apply: dhcpApply, revert: dhcpRevert},
	"wifi-device": {
		apply:  noCommands,
		revert: noCommands,
	},
	"wifi-iface": {
		apply:        wifiIfaceApply,
		revert:       wifiIfaceRevert,
		updateApply:  wifiIfaceUpdateApply,
		updateRevert: wifiIfaceUpdateRevert,
	},
}

func noCommands(*handlerContext, *uci.Section) ([]*Command, error) {
	return nil, nil
}

// Manager owns the current configuration collection and the on-disk
// derived files in its write dir. Only one load is in flight at a time;
// callers serialize.
type Manager struct {
	log      *zap.Logger
	writeDir string
	current  *uci.Collection
	executor Executor

	// PreviousCommands records the last emitted plan for inspection.
	PreviousCommands []*Command
}

// NewManager returns a manager writing derived files and PID files under
// writeDir.
func NewManager(writeDir string, log *zap.Logger) *Manager {
	m := &Manager{
		log:      log,
		writeDir: writeDir,
		current:  withDefaults(uci.NewCollection()),
	}
	m.executor = &ProcessExecutor{Log: log}
	return m
}

// WriteDir returns the directory derived files are written to.
func (m *Manager) WriteDir() string { return m.writeDir }

// SetExecutor replaces the command executor. Used by callers that record
// or simulate command execution.
func (m *Manager) SetExecutor(e Executor) { m.executor = e }

// withDefaults registers fallback sections. A default dnsmasq section
// exists so dhcp sections always resolve a resolver counterpart.
func withDefaults(c *uci.Collection) *uci.Collection {
	dnsmasq, _ := uci.NewSection("dnsmasq", "default")
	c.SetDefault(dnsmasq)
	return c
}

// LoadConfig parses the file or directory at search, diffs it against the
// currently loaded configuration, and applies (or records, when execute is
// false) the resulting command plan. On success the parsed configuration
// becomes current.
func (m *Manager) LoadConfig(search string, execute bool) error {
	next, err := uci.ParsePath(search)
	if err != nil {
		return err
	}
	withDefaults(next)
	return m.transition(next, execute)
}

// Unload reverts every loaded section, leaving the manager empty.
func (m *Manager) Unload(execute bool) error {
	return m.transition(withDefaults(uci.NewCollection()), execute)
}

type plannedCommand struct {
	cmd *Command
	// applied marks commands contributed by sections being applied (as
	// opposed to reverted); used for rollback bookkeeping.
	applied bool
	seq     int
}

func (m *Manager) transition(next *uci.Collection, execute bool) error {
	var planned []plannedCommand

	add := func(cmds []*Command, applied bool) {
		for _, c := range cmds {
			planned = append(planned, plannedCommand{cmd: c, applied: applied, seq: len(planned)})
		}
	}

	// Removed and changed sections are reverted against the old
	// collection; added and changed sections apply against the new one.
	oldCtx := &handlerContext{manager: m, configs: m.current}
	newCtx := &handlerContext{manager: m, configs: next}

	for _, old := range m.current.All() {
		h, ok := handlers[old.Type]
		if !ok {
			continue
		}
		if new, exists := next.Get(old.Identity()); !exists {
			cmds, err := h.revert(oldCtx, old)
			if err != nil {
				return err
			}
			add(cmds, false)
		} else if !old.Equal(new) {
			if h.updateRevert != nil {
				cmds, err := h.updateRevert(oldCtx, old, new)
				if err != nil {
					return err
				}
				add(cmds, false)
			} else {
				cmds, err := h.revert(oldCtx, old)
				if err != nil {
					return err
				}
				add(cmds, false)
			}
		}
	}

	for _, new := range next.All() {
		h, ok := handlers[new.Type]
		if !ok {
			continue
		}
		if old, exists := m.current.Get(new.Identity()); !exists {
			cmds, err := h.apply(newCtx, new)
			if err != nil {
				return err
			}
			add(cmds, true)
		} else if !old.Equal(new) {
			if h.updateApply != nil {
				cmds, err := h.updateApply(newCtx, old, new)
				if err != nil {
					return err
				}
				add(cmds, true)
			} else {
				cmds, err := h.apply(newCtx, new)
				if err != nil {
					return err
				}
				add(cmds, true)
			}
		}
	}

	// Stable sort by priority; same-priority commands keep the order the
	// sections contributed them in.
	sort.SliceStable(planned, func(i, j int) bool {
		return planned[i].cmd.Priority < planned[j].cmd.Priority
	})

	m.PreviousCommands = make([]*Command, len(planned))
	for i, p := range planned {
		m.PreviousCommands[i] = p.cmd
	}

	if execute {
		if err := m.execute(planned, newCtx); err != nil {
			return err
		}
	}

	m.current = next
	return nil
}

// execute runs the plan in order. A failure while applying rolls back the
// sections already touched and leaves the current configuration unchanged;
// a failure while reverting is recorded and teardown continues best-effort.
func (m *Manager) execute(planned []plannedCommand, ctx *handlerContext) error {
	var touched []*uci.Section
	seen := make(map[uci.Identity]bool)

	for _, p := range planned {
		err := m.executor.Run(p.cmd)
		if err == nil {
			if p.applied && p.cmd.Section != nil && !seen[p.cmd.Section.Identity()] {
				seen[p.cmd.Section.Identity()] = true
				touched = append(touched, p.cmd.Section)
			}
			continue
		}
		if !p.applied {
			m.log.Warn("revert command failed, continuing",
				zap.String("command", p.cmd.String()), zap.Error(err))
			continue
		}

		m.log.Error("apply command failed, rolling back",
			zap.String("command", p.cmd.String()), zap.Error(err))
		if p.cmd.Section != nil && !seen[p.cmd.Section.Identity()] {
			touched = append(touched, p.cmd.Section)
		}
		m.rollback(touched, ctx)
		return errors.Wrap(err, "apply failed")
	}
	return nil
}

func (m *Manager) rollback(touched []*uci.Section, ctx *handlerContext) {
	var cmds []*Command
	for _, s := range touched {
		h, ok := handlers[s.Type]
		if !ok {
			continue
		}
		reverts, err := h.revert(ctx, s)
		if err != nil {
			m.log.Warn("cannot generate rollback", zap.String("section", s.String()), zap.Error(err))
			continue
		}
		cmds = append(cmds, reverts...)
	}
	sort.SliceStable(cmds, func(i, j int) bool { return cmds[i].Priority < cmds[j].Priority })
	for _, c := range cmds {
		if err := m.executor.Run(c); err != nil {
			m.log.Warn("rollback command failed", zap.String("command", c.String()), zap.Error(err))
		}
	}
}
