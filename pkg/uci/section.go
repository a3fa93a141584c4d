/*
Copyright 2025 Paradrop Labs
*/

package uci

import (
	"fmt"
	"sort"
	"strconv"
)

// Identity names a section uniquely within a configuration.
type Identity struct {
	Package string
	Type    string
	Name    string
}

func (id Identity) String() string {
	return fmt.Sprintf("%s.%s.%s", id.Package, id.Type, id.Name)
}

// Section is a single parsed config block with its option values. Scalars
// and lists are kept separately; typed access goes through the schema so
// defaults apply uniformly. Unknown options are preserved as raw strings
// but are never acted upon.
type Section struct {
	Package   string
	Type      string
	Name      string
	Anonymous bool

	// Source is the file the section was parsed from, for diagnostics.
	Source string

	values map[string]string
	lists  map[string][]string
}

// NewSection returns an empty section of the given type. The package is
// derived from the schema.
func NewSection(sectionType, name string) (*Section, error) {
	schema, ok := SchemaFor(sectionType)
	if !ok {
		return nil, fmt.Errorf("unrecognized section type %q", sectionType)
	}
	return &Section{
		Package: schema.Package,
		Type:    sectionType,
		Name:    name,
		values:  make(map[string]string),
		lists:   make(map[string][]string),
	}, nil
}

func (s *Section) Identity() Identity {
	return Identity{Package: s.Package, Type: s.Type, Name: s.Name}
}

func (s *Section) String() string {
	return fmt.Sprintf("config %s %s", s.Type, s.Name)
}

// Set assigns a scalar option value.
func (s *Section) Set(name, value string) {
	s.values[name] = value
}

// Append adds a value to a list option.
func (s *Section) Append(name, value string) {
	s.lists[name] = append(s.lists[name], value)
}

// Has reports whether the option was explicitly set.
func (s *Section) Has(name string) bool {
	if _, ok := s.values[name]; ok {
		return true
	}
	_, ok := s.lists[name]
	return ok
}

// Get returns the scalar value of an option, falling back to the schema
// default when unset.
func (s *Section) Get(name string) string {
	if v, ok := s.values[name]; ok {
		return v
	}
	schema, _ := SchemaFor(s.Type)
	if opt, ok := schema.option(name); ok {
		return opt.Default
	}
	return ""
}

// GetInt returns an integer option value. Unset options with no default
// return zero.
func (s *Section) GetInt(name string) int {
	v := s.Get(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// GetBool interprets an option using the usual truthy spellings.
func (s *Section) GetBool(name string) bool {
	switch s.Get(name) {
	case "1", "yes", "on", "true":
		return true
	}
	return false
}

// GetList returns a list option. The result is never nil. A scalar
// assignment to a list option counts as a single-element list.
func (s *Section) GetList(name string) []string {
	if l, ok := s.lists[name]; ok {
		return l
	}
	if v, ok := s.values[name]; ok {
		return []string{v}
	}
	schema, _ := SchemaFor(s.Type)
	if opt, ok := schema.option(name); ok && opt.DefaultList != nil {
		return opt.DefaultList
	}
	return []string{}
}

// Equal reports whether the two sections have the same identity and the
// same option values.
func (s *Section) Equal(other *Section) bool {
	if other == nil || s.Identity() != other.Identity() {
		return false
	}
	return s.optionsEqual(other)
}

// OptionsMatch reports whether the two sections have the same type and the
// same option values, ignoring their names. It is reflexive and symmetric.
func (s *Section) OptionsMatch(other *Section) bool {
	if other == nil || s.Package != other.Package || s.Type != other.Type {
		return false
	}
	return s.optionsEqual(other)
}

func (s *Section) optionsEqual(other *Section) bool {
	if len(s.values) != len(other.values) || len(s.lists) != len(other.lists) {
		return false
	}
	for k, v := range s.values {
		if ov, ok := other.values[k]; !ok || ov != v {
			return false
		}
	}
	for k, l := range s.lists {
		ol, ok := other.lists[k]
		if !ok || len(ol) != len(l) {
			return false
		}
		for i := range l {
			if l[i] != ol[i] {
				return false
			}
		}
	}
	return true
}

// optionNames returns the explicitly set option names in stable order,
// scalars before lists. Used by the writer.
func (s *Section) optionNames() (scalars, lists []string) {
	for k := range s.values {
		scalars = append(scalars, k)
	}
	for k := range s.lists {
		lists = append(lists, k)
	}
	sort.Strings(scalars)
	sort.Strings(lists)
	return scalars, lists
}
