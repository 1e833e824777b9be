// Package memory implements an in-memory GroupProvider for tests and
// ephemeral deployments. Every mutating call is journaled so tests can
// assert on the exact sequence of persistence operations.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"groupcore/pkg/domain"
)

// Op records one mutating provider call.
type Op struct {
	Name string
	Args []string
}

type groupRow struct {
	description string
	members     map[string]bool // username -> admin flag
	props       map[string]string
}

func newGroupRow(description string) *groupRow {
	return &groupRow{
		description: description,
		members:     make(map[string]bool),
		props:       make(map[string]string),
	}
}

// Store implements domain.GroupProvider backed by process memory.
type Store struct {
	mu     sync.RWMutex
	groups map[string]*groupRow
	ops    []Op
	failOn map[string]error
}

var _ domain.GroupProvider = (*Store)(nil)

// NewStore returns an empty in-memory provider.
func NewStore() *Store {
	return &Store{
		groups: make(map[string]*groupRow),
		failOn: make(map[string]error),
	}
}

// FailWith arranges for every subsequent call of the named operation to
// return err. Passing a nil error clears the injection.
func (s *Store) FailWith(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failOn, op)
		return
	}
	s.failOn[op] = err
}

// Ops returns a copy of the journal of mutating calls.
func (s *Store) Ops() []Op {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Op, len(s.ops))
	copy(out, s.ops)
	return out
}

// ResetOps clears the journal.
func (s *Store) ResetOps() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = nil
}

func (s *Store) record(name string, args ...string) {
	s.ops = append(s.ops, Op{Name: name, Args: args})
}

func (s *Store) injected(op string) error {
	return s.failOn[op]
}

// CreateGroup persists a new empty group.
func (s *Store) CreateGroup(_ context.Context, name, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateGroup"); err != nil {
		return err
	}
	if _, exists := s.groups[name]; exists {
		return domain.ErrGroupExists
	}
	s.groups[name] = newGroupRow(description)
	s.record("CreateGroup", name, description)
	return nil
}

// LoadGroup returns the persisted snapshot for name.
func (s *Store) LoadGroup(_ context.Context, name string) (domain.GroupRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[name]
	if !ok {
		return domain.GroupRecord{}, domain.ErrGroupNotFound
	}
	rec := domain.GroupRecord{Name: name, Description: g.description}
	for user, admin := range g.members {
		if admin {
			rec.Admins = append(rec.Admins, user)
		} else {
			rec.Members = append(rec.Members, user)
		}
	}
	sort.Strings(rec.Members)
	sort.Strings(rec.Admins)
	return rec, nil
}

// DeleteGroup removes the group and all dependent rows.
func (s *Store) DeleteGroup(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("DeleteGroup"); err != nil {
		return err
	}
	if _, ok := s.groups[name]; !ok {
		return domain.ErrGroupNotFound
	}
	delete(s.groups, name)
	s.record("DeleteGroup", name)
	return nil
}

// GroupNames lists all persisted group names ascending.
func (s *Store) GroupNames(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.groups))
	for name := range s.groups {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// AddMember persists a membership row.
func (s *Store) AddMember(_ context.Context, group, username string, admin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("AddMember"); err != nil {
		return err
	}
	g, ok := s.groups[group]
	if !ok {
		return domain.ErrGroupNotFound
	}
	g.members[username] = admin
	s.record("AddMember", group, username, fmt.Sprintf("%t", admin))
	return nil
}

// DeleteMember removes a membership row regardless of role.
func (s *Store) DeleteMember(_ context.Context, group, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("DeleteMember"); err != nil {
		return err
	}
	g, ok := s.groups[group]
	if !ok {
		return domain.ErrGroupNotFound
	}
	delete(g.members, username)
	s.record("DeleteMember", group, username)
	return nil
}

// SetName renames a group, carrying dependent rows over.
func (s *Store) SetName(_ context.Context, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("SetName"); err != nil {
		return err
	}
	g, ok := s.groups[oldName]
	if !ok {
		return domain.ErrGroupNotFound
	}
	if _, taken := s.groups[newName]; taken {
		return domain.ErrGroupExists
	}
	delete(s.groups, oldName)
	s.groups[newName] = g
	s.record("SetName", oldName, newName)
	return nil
}

// SetDescription updates the description column.
func (s *Store) SetDescription(_ context.Context, group, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("SetDescription"); err != nil {
		return err
	}
	g, ok := s.groups[group]
	if !ok {
		return domain.ErrGroupNotFound
	}
	g.description = description
	s.record("SetDescription", group, description)
	return nil
}

// LoadProperties returns all property rows for the group, keys ascending.
func (s *Store) LoadProperties(_ context.Context, group string) ([]domain.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("LoadProperties"); err != nil {
		return nil, err
	}
	g, ok := s.groups[group]
	if !ok {
		return nil, domain.ErrGroupNotFound
	}
	out := make([]domain.Property, 0, len(g.props))
	for k, v := range g.props {
		out = append(out, domain.Property{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// InsertProperty persists a new property row.
func (s *Store) InsertProperty(_ context.Context, group, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("InsertProperty"); err != nil {
		return err
	}
	g, ok := s.groups[group]
	if !ok {
		return domain.ErrGroupNotFound
	}
	if _, exists := g.props[key]; exists {
		return fmt.Errorf("property %q already exists in group %q", key, group)
	}
	g.props[key] = value
	s.record("InsertProperty", group, key, value)
	return nil
}

// UpdateProperty overwrites an existing property row.
func (s *Store) UpdateProperty(_ context.Context, group, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("UpdateProperty"); err != nil {
		return err
	}
	g, ok := s.groups[group]
	if !ok {
		return domain.ErrGroupNotFound
	}
	if _, exists := g.props[key]; !exists {
		return fmt.Errorf("property %q not found in group %q", key, group)
	}
	g.props[key] = value
	s.record("UpdateProperty", group, key, value)
	return nil
}

// DeleteProperty removes a property row.
func (s *Store) DeleteProperty(_ context.Context, group, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("DeleteProperty"); err != nil {
		return err
	}
	g, ok := s.groups[group]
	if !ok {
		return domain.ErrGroupNotFound
	}
	delete(g.props, key)
	s.record("DeleteProperty", group, key)
	return nil
}
