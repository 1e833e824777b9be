package domain

import "time"

// EventType identifies the kind of group change an Event describes.
type EventType string

// Event types dispatched for committed group mutations.
const (
	// EventGroupCreated fires when a new group is created.
	EventGroupCreated EventType = "group_created"
	// EventGroupDeleted fires when a group is deleted.
	EventGroupDeleted EventType = "group_deleted"
	// EventGroupModified fires for scalar attribute edits (name, description).
	EventGroupModified EventType = "group_modified"
	// EventMemberAdded fires when a username gains the member role.
	EventMemberAdded EventType = "member_added"
	// EventMemberRemoved fires when a username loses the member role.
	EventMemberRemoved EventType = "member_removed"
	// EventAdminAdded fires when a username gains the admin role.
	EventAdminAdded EventType = "admin_added"
	// EventAdminRemoved fires when a username loses the admin role.
	EventAdminRemoved EventType = "admin_removed"
	// EventPropertyAdded fires when a new property key is inserted.
	EventPropertyAdded EventType = "property_added"
	// EventPropertyModified fires when an existing property value changes.
	EventPropertyModified EventType = "property_modified"
	// EventPropertyDeleted fires when a property key is removed.
	EventPropertyDeleted EventType = "property_deleted"
)

// Contextual parameter keys carried in Event.Params.
const (
	ParamType          = "type"
	ParamOriginalValue = "originalValue"
	ParamPropertyKey   = "propertyKey"
	ParamMember        = "member"
	ParamAdmin         = "admin"
)

// Values for the ParamType parameter of EventGroupModified events.
const (
	ModificationName        = "nameModified"
	ModificationDescription = "descriptionModified"
)

// Event is a structured notification describing one committed group
// mutation. Events are dispatched after the mutation is durably persisted,
// so subscribers never observe a change that could still roll back.
type Event struct {
	Type       EventType         `json:"type"`
	Group      string            `json:"group"`
	Params     map[string]string `json:"params,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Param returns the named contextual parameter, or "" when absent.
func (e Event) Param(key string) string {
	if e.Params == nil {
		return ""
	}
	return e.Params[key]
}
