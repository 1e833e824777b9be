package group

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"groupcore/internal/logger"
	"groupcore/pkg/domain"
)

// Config assembles a Manager's collaborators. Provider and Resolver are
// required; everything else defaults to a no-op or a sane bound.
type Config struct {
	Provider domain.GroupProvider
	Resolver domain.IdentityResolver
	Roster   domain.RosterObserver
	Metrics  MetricsRecorder
	Logger   *logger.Logger
	// CacheBytes bounds the entity cache (DefaultCacheBytes when <= 0).
	CacheBytes int64
	// QueueCapacity bounds the event queue (DefaultQueueCapacity when <= 0).
	QueueCapacity int
}

// Manager is the group registry: it creates, loads, and deletes groups,
// owns the entity cache and the event dispatcher, and threads the shared
// collaborators into every Group it hands out.
type Manager struct {
	deps *deps

	// loadMu serializes populate-on-miss so concurrent lookups of one name
	// construct a single Group instance. Cache hits bypass it.
	loadMu sync.Mutex
}

// NewManager validates cfg and builds a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("group: provider required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("group: resolver required")
	}
	roster := cfg.Roster
	if roster == nil {
		roster = domain.NopRosterObserver{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		deps: &deps{
			provider:   cfg.Provider,
			resolver:   cfg.Resolver,
			roster:     roster,
			dispatcher: NewDispatcher(cfg.QueueCapacity, log),
			cache:      NewCache(cfg.CacheBytes),
			metrics:    metrics,
			log:        log,
		},
	}, nil
}

// Subscribe registers fn for every subsequent group event and returns an
// unsubscribe function.
func (m *Manager) Subscribe(fn func(domain.Event)) func() {
	return m.deps.dispatcher.Subscribe(fn)
}

// Close drains and stops the event dispatcher.
func (m *Manager) Close() {
	m.deps.dispatcher.Close()
	m.deps.log.Sync()
}

func normalizeGroupName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("group name required")
	}
	return name, nil
}

// CreateGroup persists a new empty group, caches it, and dispatches
// group_created. Returns domain.ErrGroupExists when the name is taken.
func (m *Manager) CreateGroup(ctx context.Context, name string) (*Group, error) {
	name, err := normalizeGroupName(name)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	err = m.deps.provider.CreateGroup(ctx, name, "")
	m.deps.observe(ctx, "group.create", started, err)
	if errors.Is(err, domain.ErrGroupExists) {
		return nil, domain.ErrGroupExists
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "CreateGroup", Err: err}
	}
	g := newGroup(m.deps, domain.GroupRecord{Name: name})
	m.deps.cache.Put(g)
	m.deps.dispatcher.Dispatch(domain.Event{
		Type:       domain.EventGroupCreated,
		Group:      name,
		OccurredAt: time.Now().UTC(),
	})
	m.deps.log.Debug("group created", "group", name)
	return g, nil
}

// GetGroup returns the live entity for name, loading and caching it on a
// miss. Returns domain.ErrGroupNotFound when no such group is persisted.
func (m *Manager) GetGroup(ctx context.Context, name string) (*Group, error) {
	name, err := normalizeGroupName(name)
	if err != nil {
		return nil, err
	}
	if g, ok := m.deps.cache.Get(name); ok {
		return g, nil
	}
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	if g, ok := m.deps.cache.Get(name); ok {
		return g, nil
	}
	started := time.Now()
	rec, err := m.deps.provider.LoadGroup(ctx, name)
	m.deps.observe(ctx, "group.load", started, err)
	if errors.Is(err, domain.ErrGroupNotFound) {
		return nil, domain.ErrGroupNotFound
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "LoadGroup", Err: err}
	}
	g := newGroup(m.deps, rec)
	m.deps.cache.Put(g)
	return g, nil
}

// DeleteGroup removes the group from the store, evicts it from the cache,
// and dispatches group_deleted.
func (m *Manager) DeleteGroup(ctx context.Context, g *Group) error {
	name := g.Name()
	started := time.Now()
	err := m.deps.provider.DeleteGroup(ctx, name)
	m.deps.observe(ctx, "group.delete", started, err)
	if errors.Is(err, domain.ErrGroupNotFound) {
		return domain.ErrGroupNotFound
	}
	if err != nil {
		return &domain.PersistenceError{Op: "DeleteGroup", Err: err}
	}
	m.deps.cache.Remove(name)
	m.deps.dispatcher.Dispatch(domain.Event{
		Type:       domain.EventGroupDeleted,
		Group:      name,
		OccurredAt: time.Now().UTC(),
	})
	m.deps.log.Debug("group deleted", "group", name)
	return nil
}

// GroupNames lists all persisted group names ascending.
func (m *Manager) GroupNames(ctx context.Context) ([]string, error) {
	names, err := m.deps.provider.GroupNames(ctx)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "GroupNames", Err: err}
	}
	return names, nil
}
