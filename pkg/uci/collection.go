/*
Copyright 2025 Paradrop Labs
*/

package uci

import (
	"github.com/pkg/errors"
)

// ErrNotFound is returned by lookups that resolve no section.
var ErrNotFound = errors.New("section not found")

// Collection is an ordered set of sections keyed by identity, with a
// secondary index by (package, type). A named default section may be
// registered per type and is returned by LookupDefault when no name
// matches.
type Collection struct {
	order    []Identity
	sections map[Identity]*Section
	byType   map[[2]string][]*Section
	defaults map[[2]string]*Section
}

func NewCollection() *Collection {
	return &Collection{
		sections: make(map[Identity]*Section),
		byType:   make(map[[2]string][]*Section),
		defaults: make(map[[2]string]*Section),
	}
}

// Add inserts a section, replacing any previous section with the same
// identity while keeping the original position.
func (c *Collection) Add(s *Section) {
	id := s.Identity()
	if _, ok := c.sections[id]; !ok {
		c.order = append(c.order, id)
		key := [2]string{s.Package, s.Type}
		c.byType[key] = append(c.byType[key], s)
	}
	c.sections[id] = s
}

// SetDefault registers the fallback section returned by LookupDefault for
// the section's (package, type).
func (c *Collection) SetDefault(s *Section) {
	c.defaults[[2]string{s.Package, s.Type}] = s
}

// Get returns the section with the given identity.
func (c *Collection) Get(id Identity) (*Section, bool) {
	s, ok := c.sections[id]
	return s, ok
}

// Lookup resolves a cross-section reference.
func (c *Collection) Lookup(pkg, typ, name string) (*Section, error) {
	s, ok := c.sections[Identity{Package: pkg, Type: typ, Name: name}]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s.%s.%s", pkg, typ, name)
	}
	return s, nil
}

// LookupDefault resolves a cross-section reference, falling back to the
// registered default section for the type when no name matches.
func (c *Collection) LookupDefault(pkg, typ, name string) (*Section, error) {
	if s, err := c.Lookup(pkg, typ, name); err == nil {
		return s, nil
	}
	if d, ok := c.defaults[[2]string{pkg, typ}]; ok {
		return d, nil
	}
	return nil, errors.Wrapf(ErrNotFound, "%s.%s.%s (no default)", pkg, typ, name)
}

// ByType returns all sections of the given type in insertion order.
func (c *Collection) ByType(pkg, typ string) []*Section {
	return c.byType[[2]string{pkg, typ}]
}

// All returns every section in insertion order.
func (c *Collection) All() []*Section {
	out := make([]*Section, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.sections[id])
	}
	return out
}

// Len returns the number of sections.
func (c *Collection) Len() int {
	return len(c.order)
}
