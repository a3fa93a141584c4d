/*
Copyright 2025 Paradrop Labs
*/

package chute

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/leilei1881/Paradrop/internal/files"
)

// ErrChuteNotFound is returned when a named chute is not in the store.
var ErrChuteNotFound = errors.New("chute not found")

// Store holds the installed chutes. Persistence is one YAML file per
// chute under the store directory; an empty directory is an empty store.
// Access is serialized by the update pipeline's single-writer rule.
type Store struct {
	dir    string
	chutes map[string]*Chute
}

// NewStore opens the store rooted at dir, loading any persisted chutes.
func NewStore(dir string) (*Store, error) {
	s := &Store{dir: dir, chutes: make(map[string]*Chute)}
	if dir == "" {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create chute store dir")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read chute store dir")
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		var c Chute
		if err := files.ReadYAMLConfig(filepath.Join(dir, e.Name()), &c); err != nil {
			return nil, errors.Wrapf(err, "load chute %s", e.Name())
		}
		s.chutes[c.Name] = &c
	}
	return s, nil
}

// Get returns the stored chute with the given name.
func (s *Store) Get(name string) (*Chute, error) {
	c, ok := s.chutes[name]
	if !ok {
		return nil, errors.Wrap(ErrChuteNotFound, name)
	}
	return c, nil
}

// List returns the stored chutes sorted by name.
func (s *Store) List() []*Chute {
	out := make([]*Chute, 0, len(s.chutes))
	for _, c := range s.chutes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Save stores the chute and persists it.
func (s *Store) Save(c *Chute) error {
	s.chutes[c.Name] = c
	if s.dir == "" {
		return nil
	}
	return files.WriteYAMLConfig(s.path(c.Name), c)
}

// Delete removes the chute from the store and from disk.
func (s *Store) Delete(name string) error {
	delete(s.chutes, name)
	if s.dir == "" {
		return nil
	}
	if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "delete chute %s", name)
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".yaml")
}
