package domain

import (
	"errors"
	"fmt"
)

// ErrGroupNotFound is returned when a lookup misses both cache and store.
var ErrGroupNotFound = errors.New("group not found")

// ErrGroupExists is returned when creating a group whose name is taken.
var ErrGroupExists = errors.New("group already exists")

// InvalidPrincipalError indicates a username that fails normalization or
// does not resolve to a known identity.
type InvalidPrincipalError struct {
	Username string
	Err      error
}

func (e *InvalidPrincipalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid principal %q: %v", e.Username, e.Err)
	}
	return fmt.Sprintf("invalid principal %q", e.Username)
}

func (e *InvalidPrincipalError) Unwrap() error { return e.Err }

// RoleConflictError indicates an insert of a username that already holds
// the opposing role in the same group.
type RoleConflictError struct {
	Group    string
	Username string
	Held     Role
}

func (e *RoleConflictError) Error() string {
	return fmt.Sprintf("user %q already holds role %s in group %q", e.Username, e.Held, e.Group)
}

// InvalidCursorError indicates a removal attempted without an active
// iteration position.
type InvalidCursorError struct {
	View string
}

func (e *InvalidCursorError) Error() string {
	return fmt.Sprintf("%s cursor has no current element", e.View)
}

// PersistenceError wraps a failed call to the persistence port. The
// in-memory state is left unchanged when one of these is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
