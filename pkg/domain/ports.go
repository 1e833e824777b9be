package domain

import "context"

// GroupProvider is the persistence port for group state. Implementations
// are the durable source of truth on restart; the loaded entity is the
// source of truth for the running process. Conflicting writes to the same
// row are serialized by the underlying store, not by callers.
type GroupProvider interface {
	// CreateGroup persists a new empty group. Returns ErrGroupExists when
	// the name is already taken.
	CreateGroup(ctx context.Context, name, description string) error
	// LoadGroup returns the persisted snapshot for name, or ErrGroupNotFound.
	LoadGroup(ctx context.Context, name string) (GroupRecord, error)
	// DeleteGroup removes the group and all of its member and property rows.
	DeleteGroup(ctx context.Context, name string) error
	// GroupNames lists all persisted group names in ascending order.
	GroupNames(ctx context.Context) ([]string, error)

	// AddMember persists a membership row for the group.
	AddMember(ctx context.Context, group, username string, admin bool) error
	// DeleteMember removes a membership row regardless of role.
	DeleteMember(ctx context.Context, group, username string) error

	// SetName renames the group, carrying all member and property rows over.
	SetName(ctx context.Context, oldName, newName string) error
	// SetDescription updates the group description.
	SetDescription(ctx context.Context, group, description string) error

	// LoadProperties returns all property rows for the group.
	LoadProperties(ctx context.Context, group string) ([]Property, error)
	// InsertProperty persists a new property row.
	InsertProperty(ctx context.Context, group, key, value string) error
	// UpdateProperty overwrites the value of an existing property row.
	UpdateProperty(ctx context.Context, group, key, value string) error
	// DeleteProperty removes a property row.
	DeleteProperty(ctx context.Context, group, key string) error
}

// IdentityResolver validates usernames before they join a role set.
type IdentityResolver interface {
	// Normalize canonicalizes a username, returning an
	// *InvalidPrincipalError when it cannot be prepared.
	Normalize(username string) (string, error)
	// Exists reports whether the normalized username resolves to a known
	// identity.
	Exists(ctx context.Context, username string) (bool, error)
}

// RosterObserver receives synchronous membership side-effect hooks as part
// of the mutation path, after the change has been durably persisted.
type RosterObserver interface {
	MemberAdded(ctx context.Context, group, username string)
	MemberRemoved(ctx context.Context, group, username string)
}

// NopRosterObserver ignores all membership hooks.
type NopRosterObserver struct{}

// MemberAdded implements RosterObserver.
func (NopRosterObserver) MemberAdded(context.Context, string, string) {}

// MemberRemoved implements RosterObserver.
func (NopRosterObserver) MemberRemoved(context.Context, string, string) {}
