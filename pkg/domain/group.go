// Package domain defines the core group entity types, change events, error
// kinds, and the ports (persistence, identity, roster) consumed by groupcore.
package domain

// Role identifies the membership role a username holds within a group.
type Role string

// Membership roles. A username holds at most one role per group.
const (
	// RoleMember identifies an ordinary group member.
	RoleMember Role = "member"
	// RoleAdmin identifies a group administrator.
	RoleAdmin Role = "admin"
)

// Opposite returns the other role.
func (r Role) Opposite() Role {
	if r == RoleAdmin {
		return RoleMember
	}
	return RoleAdmin
}

// Property is a single extended property row belonging to a group.
type Property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GroupRecord is the persisted snapshot of a group used to construct the
// live entity on a cache miss. Role sets are disjoint by construction; the
// loader is expected to report each username under exactly one role.
type GroupRecord struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Members     []string `json:"members"`
	Admins      []string `json:"admins"`
}
