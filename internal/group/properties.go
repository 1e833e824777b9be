package group

import (
	"context"
	"sort"
	"time"

	"groupcore/pkg/domain"
)

// PropertyView is the command surface for a group's extended properties.
// The property map is materialized lazily: the first accessor loads all
// rows in one call while later accessors reuse the map.
type PropertyView struct {
	g *Group
}

// Properties returns the property view for the group.
func (g *Group) Properties() *PropertyView {
	return &PropertyView{g: g}
}

// loadLocked materializes the property map if needed. Callers hold propMu.
// Concurrent first-accessors block on propMu and re-check, so the bulk load
// runs exactly once per entity.
func (v *PropertyView) loadLocked(ctx context.Context) error {
	g := v.g
	if g.props != nil {
		return nil
	}
	started := time.Now()
	rows, err := g.deps.provider.LoadProperties(ctx, g.Name())
	g.deps.observe(ctx, "property.load", started, err)
	if err != nil {
		return &domain.PersistenceError{Op: "LoadProperties", Err: err}
	}
	props := make(map[string]string, len(rows))
	for _, p := range rows {
		props[p.Key] = p.Value
	}
	g.props = props
	return nil
}

// Get returns the value for key and whether it exists.
func (v *PropertyView) Get(ctx context.Context, key string) (string, bool, error) {
	v.g.propMu.Lock()
	defer v.g.propMu.Unlock()
	if err := v.loadLocked(ctx); err != nil {
		return "", false, err
	}
	val, ok := v.g.props[key]
	return val, ok, nil
}

// Len returns the number of properties.
func (v *PropertyView) Len(ctx context.Context) (int, error) {
	v.g.propMu.Lock()
	defer v.g.propMu.Unlock()
	if err := v.loadLocked(ctx); err != nil {
		return 0, err
	}
	return len(v.g.props), nil
}

// Keys returns all property keys sorted ascending.
func (v *PropertyView) Keys(ctx context.Context) ([]string, error) {
	v.g.propMu.Lock()
	defer v.g.propMu.Unlock()
	if err := v.loadLocked(ctx); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(v.g.props))
	for k := range v.g.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Put sets key to value, returning the previous value and whether the key
// existed. A new key persists through InsertProperty and dispatches
// property_added; an existing key persists through UpdateProperty and
// dispatches property_modified carrying the original value. Writing the
// value a key already holds is a no-op.
func (v *PropertyView) Put(ctx context.Context, key, value string) (string, bool, error) {
	g := v.g
	g.propMu.Lock()
	defer g.propMu.Unlock()
	if err := v.loadLocked(ctx); err != nil {
		return "", false, err
	}
	prev, existed := g.props[key]
	if existed && prev == value {
		return prev, true, nil
	}

	started := time.Now()
	var err error
	if existed {
		err = g.deps.provider.UpdateProperty(ctx, g.Name(), key, value)
	} else {
		err = g.deps.provider.InsertProperty(ctx, g.Name(), key, value)
	}
	g.deps.observe(ctx, "property.put", started, err)
	if err != nil {
		op := "InsertProperty"
		if existed {
			op = "UpdateProperty"
		}
		return "", false, &domain.PersistenceError{Op: op, Err: err}
	}
	g.props[key] = value

	if existed {
		v.dispatch(domain.EventPropertyModified, map[string]string{
			domain.ParamPropertyKey:   key,
			domain.ParamOriginalValue: prev,
		})
	} else {
		v.dispatch(domain.EventPropertyAdded, map[string]string{
			domain.ParamPropertyKey: key,
		})
	}
	return prev, existed, nil
}

func (v *PropertyView) dispatch(t domain.EventType, params map[string]string) {
	g := v.g
	g.deps.dispatcher.Dispatch(domain.Event{
		Type:       t,
		Group:      g.Name(),
		Params:     params,
		OccurredAt: time.Now().UTC(),
	})
}

// Cursor returns an iterator over a snapshot of the properties, keys
// ascending. Removal goes through the cursor only.
func (v *PropertyView) Cursor(ctx context.Context) (*PropertyCursor, error) {
	v.g.propMu.Lock()
	defer v.g.propMu.Unlock()
	if err := v.loadLocked(ctx); err != nil {
		return nil, err
	}
	snapshot := make([]domain.Property, 0, len(v.g.props))
	for k, val := range v.g.props {
		snapshot = append(snapshot, domain.Property{Key: k, Value: val})
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Key < snapshot[j].Key })
	return &PropertyCursor{view: v, remaining: snapshot}, nil
}

// PropertyCursor iterates a snapshot of the property map. Remove applies to
// the property most recently returned by Next.
type PropertyCursor struct {
	view      *PropertyView
	remaining []domain.Property
	current   domain.Property
	valid     bool
}

// Next advances the cursor, returning the next property and whether one
// remained.
func (c *PropertyCursor) Next() (domain.Property, bool) {
	if len(c.remaining) == 0 {
		c.valid = false
		return domain.Property{}, false
	}
	c.current = c.remaining[0]
	c.remaining = c.remaining[1:]
	c.valid = true
	return c.current, true
}

// Remove deletes the property last returned by Next. Calling Remove before
// Next, or twice for one element, fails with a *domain.InvalidCursorError.
// The delete is persisted first, then the map entry is dropped and a
// property_deleted event dispatched.
func (c *PropertyCursor) Remove(ctx context.Context) error {
	if !c.valid {
		return &domain.InvalidCursorError{View: "property"}
	}
	c.valid = false
	g := c.view.g
	g.propMu.Lock()
	defer g.propMu.Unlock()
	if _, ok := g.props[c.current.Key]; !ok {
		// Already removed concurrently; nothing to do.
		return nil
	}
	started := time.Now()
	err := g.deps.provider.DeleteProperty(ctx, g.Name(), c.current.Key)
	g.deps.observe(ctx, "property.delete", started, err)
	if err != nil {
		return &domain.PersistenceError{Op: "DeleteProperty", Err: err}
	}
	delete(g.props, c.current.Key)
	c.view.dispatch(domain.EventPropertyDeleted, map[string]string{
		domain.ParamPropertyKey: c.current.Key,
	})
	return nil
}
