// Package group implements the write-through group entity: a named
// collection of member and admin usernames with lazily loaded extended
// properties, kept consistent across the entity cache, the persistence
// provider, and the event dispatcher. Mutations persist first and commit to
// memory only on success, so a persistence failure leaves the entity, the
// cache, and the event stream untouched.
package group

import (
	"context"
	"sync"
	"time"

	"groupcore/internal/logger"
	"groupcore/pkg/domain"
)

// deps bundles the collaborators the manager threads into every Group.
type deps struct {
	provider   domain.GroupProvider
	resolver   domain.IdentityResolver
	roster     domain.RosterObserver
	dispatcher *Dispatcher
	cache      *Cache
	metrics    MetricsRecorder
	log        *logger.Logger
}

func (d *deps) observe(ctx context.Context, op string, started time.Time, err error) {
	d.metrics.Observe(ctx, op, err == nil, time.Since(started))
}

// Group is the live entity for one group. All mutating methods are
// write-through: the provider is updated before memory, and an event is
// dispatched only after both succeed.
type Group struct {
	deps *deps

	mu          sync.RWMutex
	name        string
	description string
	members     map[string]struct{}
	admins      map[string]struct{}

	propMu sync.Mutex
	props  map[string]string // nil until first loaded
}

func newGroup(d *deps, rec domain.GroupRecord) *Group {
	g := &Group{
		deps:        d,
		name:        rec.Name,
		description: rec.Description,
		members:     make(map[string]struct{}, len(rec.Members)),
		admins:      make(map[string]struct{}, len(rec.Admins)),
	}
	for _, u := range rec.Members {
		g.members[u] = struct{}{}
	}
	for _, u := range rec.Admins {
		// Role exclusivity: admin wins if the record lists a user twice.
		delete(g.members, u)
		g.admins[u] = struct{}{}
	}
	return g
}

// Name returns the current group name.
func (g *Group) Name() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.name
}

// Description returns the current description.
func (g *Group) Description() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.description
}

// IsUser reports whether the username holds either role in the group.
// Unnormalizable usernames hold no role.
func (g *Group) IsUser(username string) bool {
	norm, err := g.deps.resolver.Normalize(username)
	if err != nil {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, member := g.members[norm]
	_, admin := g.admins[norm]
	return member || admin
}

// CachedSize approximates the entity's cache footprint: a fixed overhead
// plus the string bytes of the name and description. Role sets and
// properties are excluded so the size stays stable across membership churn.
func (g *Group) CachedSize() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	const overhead = 512
	return overhead + int64(len(g.name)) + int64(len(g.description))
}

// SetName renames the group. The provider persists the rename first, then
// the cache entry migrates old name to new under the cache lock, then the
// in-memory name updates, then a group_modified event fires carrying the
// original name. A no-op when the name is unchanged.
func (g *Group) SetName(ctx context.Context, newName string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	old := g.name
	if newName == old {
		return nil
	}
	started := time.Now()
	err := g.deps.provider.SetName(ctx, old, newName)
	g.deps.observe(ctx, "group.set_name", started, err)
	if err != nil {
		return &domain.PersistenceError{Op: "SetName", Err: err}
	}
	g.deps.cache.Rename(old, newName)
	g.name = newName
	g.dispatchLocked(domain.EventGroupModified, map[string]string{
		domain.ParamType:          domain.ModificationName,
		domain.ParamOriginalValue: old,
	})
	return nil
}

// SetDescription updates the description, persisting before committing.
// A no-op when the description is unchanged.
func (g *Group) SetDescription(ctx context.Context, description string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	old := g.description
	if description == old {
		return nil
	}
	started := time.Now()
	err := g.deps.provider.SetDescription(ctx, g.name, description)
	g.deps.observe(ctx, "group.set_description", started, err)
	if err != nil {
		return &domain.PersistenceError{Op: "SetDescription", Err: err}
	}
	g.description = description
	g.dispatchLocked(domain.EventGroupModified, map[string]string{
		domain.ParamType:          domain.ModificationDescription,
		domain.ParamOriginalValue: old,
	})
	return nil
}

// dispatchLocked emits an event for the group. Callers hold g.mu (read or
// write) so the name is stable.
func (g *Group) dispatchLocked(t domain.EventType, params map[string]string) {
	g.deps.dispatcher.Dispatch(domain.Event{
		Type:       t,
		Group:      g.name,
		Params:     params,
		OccurredAt: time.Now().UTC(),
	})
}
