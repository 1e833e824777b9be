package group

import (
	"context"
	"sort"
	"time"

	"groupcore/pkg/domain"
)

// MemberView is the command surface for one role set of a group.
type MemberView struct {
	g    *Group
	role domain.Role
}

// Members returns the view over the ordinary member role set.
func (g *Group) Members() *MemberView {
	return &MemberView{g: g, role: domain.RoleMember}
}

// Admins returns the view over the administrator role set.
func (g *Group) Admins() *MemberView {
	return &MemberView{g: g, role: domain.RoleAdmin}
}

// Role returns the role this view manages.
func (v *MemberView) Role() domain.Role { return v.role }

func (v *MemberView) set() map[string]struct{} {
	if v.role == domain.RoleAdmin {
		return v.g.admins
	}
	return v.g.members
}

func (v *MemberView) oppositeSet() map[string]struct{} {
	if v.role == domain.RoleAdmin {
		return v.g.members
	}
	return v.g.admins
}

func (v *MemberView) addedEvent() (domain.EventType, string) {
	if v.role == domain.RoleAdmin {
		return domain.EventAdminAdded, domain.ParamAdmin
	}
	return domain.EventMemberAdded, domain.ParamMember
}

func (v *MemberView) removedEvent() (domain.EventType, string) {
	if v.role == domain.RoleAdmin {
		return domain.EventAdminRemoved, domain.ParamAdmin
	}
	return domain.EventMemberRemoved, domain.ParamMember
}

// Add grants the view's role to username. The username is normalized and
// resolved first; a user holding the opposite role is rejected with a
// *domain.RoleConflictError. Adding a user who already holds this role is
// an idempotent no-op returning (false, nil) with no persistence call and
// no event. On success the membership is persisted, committed to memory,
// announced to the roster observer, and dispatched.
func (v *MemberView) Add(ctx context.Context, username string) (bool, error) {
	g := v.g
	norm, err := g.deps.resolver.Normalize(username)
	if err != nil {
		return false, err
	}
	known, err := g.deps.resolver.Exists(ctx, norm)
	if err != nil {
		return false, err
	}
	if !known {
		return false, &domain.InvalidPrincipalError{Username: norm}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := v.oppositeSet()[norm]; held {
		return false, &domain.RoleConflictError{Group: g.name, Username: norm, Held: v.role.Opposite()}
	}
	if _, held := v.set()[norm]; held {
		return false, nil
	}

	started := time.Now()
	err = g.deps.provider.AddMember(ctx, g.name, norm, v.role == domain.RoleAdmin)
	g.deps.observe(ctx, "member.add", started, err)
	if err != nil {
		return false, &domain.PersistenceError{Op: "AddMember", Err: err}
	}
	v.set()[norm] = struct{}{}
	g.deps.roster.MemberAdded(ctx, g.name, norm)
	evt, param := v.addedEvent()
	g.dispatchLocked(evt, map[string]string{param: norm})
	return true, nil
}

// Contains reports whether the normalized username holds this role.
func (v *MemberView) Contains(username string) bool {
	norm, err := v.g.deps.resolver.Normalize(username)
	if err != nil {
		return false
	}
	v.g.mu.RLock()
	defer v.g.mu.RUnlock()
	_, ok := v.set()[norm]
	return ok
}

// Len returns the number of usernames holding this role.
func (v *MemberView) Len() int {
	v.g.mu.RLock()
	defer v.g.mu.RUnlock()
	return len(v.set())
}

// Usernames returns the role set sorted ascending.
func (v *MemberView) Usernames() []string {
	v.g.mu.RLock()
	defer v.g.mu.RUnlock()
	out := make([]string, 0, len(v.set()))
	for u := range v.set() {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Cursor returns an iterator over a snapshot of the role set. Removal goes
// through the cursor only, mirroring the view's add-side write-through.
func (v *MemberView) Cursor() *MemberCursor {
	return &MemberCursor{view: v, remaining: v.Usernames()}
}

// MemberCursor iterates a snapshot of one role set. Remove applies to the
// element most recently returned by Next.
type MemberCursor struct {
	view      *MemberView
	remaining []string
	current   string
	valid     bool
}

// Next advances the cursor, returning the next username and whether one
// remained.
func (c *MemberCursor) Next() (string, bool) {
	if len(c.remaining) == 0 {
		c.valid = false
		return "", false
	}
	c.current = c.remaining[0]
	c.remaining = c.remaining[1:]
	c.valid = true
	return c.current, true
}

// Remove revokes the role from the username last returned by Next. Calling
// Remove before Next, or twice for one element, fails with a
// *domain.InvalidCursorError. The removal is persisted first; only then is
// the in-memory set updated, the roster observer notified, and the removal
// event dispatched.
func (c *MemberCursor) Remove(ctx context.Context) error {
	if !c.valid {
		return &domain.InvalidCursorError{View: string(c.view.role)}
	}
	c.valid = false
	g := c.view.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := c.view.set()[c.current]; !held {
		// Already removed concurrently; nothing to do.
		return nil
	}
	started := time.Now()
	err := g.deps.provider.DeleteMember(ctx, g.name, c.current)
	g.deps.observe(ctx, "member.remove", started, err)
	if err != nil {
		return &domain.PersistenceError{Op: "DeleteMember", Err: err}
	}
	delete(c.view.set(), c.current)
	g.deps.roster.MemberRemoved(ctx, g.name, c.current)
	evt, param := c.view.removedEvent()
	g.dispatchLocked(evt, map[string]string{param: c.current})
	return nil
}
