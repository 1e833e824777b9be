// Package identity provides username canonicalization and directory lookup
// used to validate principals before they enter a group role set.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"groupcore/pkg/domain"
)

// maxUsernameBytes bounds the canonical form, matching XMPP node limits.
const maxUsernameBytes = 1023

// Characters that may never appear in a canonical username.
const prohibited = "\"&'/:<>@ "

// Directory answers whether a canonical username names a known identity.
type Directory interface {
	Exists(ctx context.Context, username string) (bool, error)
}

// Resolver canonicalizes usernames node-prep style and checks them against
// a directory. It implements domain.IdentityResolver.
type Resolver struct {
	dir Directory
}

var _ domain.IdentityResolver = (*Resolver)(nil)

// NewResolver constructs a resolver backed by the supplied directory.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Normalize lowercases and validates the username. The empty string, any
// prohibited character, control characters, and over-long names are
// rejected with an *domain.InvalidPrincipalError.
func (r *Resolver) Normalize(username string) (string, error) {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return "", &domain.InvalidPrincipalError{Username: username, Err: errors.New("empty username")}
	}
	if len(trimmed) > maxUsernameBytes {
		return "", &domain.InvalidPrincipalError{Username: username, Err: fmt.Errorf("username exceeds %d bytes", maxUsernameBytes)}
	}
	lowered := strings.ToLower(trimmed)
	for _, ch := range lowered {
		if unicode.IsControl(ch) || strings.ContainsRune(prohibited, ch) {
			return "", &domain.InvalidPrincipalError{Username: username, Err: fmt.Errorf("prohibited character %q", ch)}
		}
	}
	return lowered, nil
}

// Exists reports whether the username resolves through the directory.
func (r *Resolver) Exists(ctx context.Context, username string) (bool, error) {
	return r.dir.Exists(ctx, username)
}

// StaticDirectory is an in-memory Directory seeded with known usernames.
// Intended for tests and ephemeral deployments.
type StaticDirectory struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

var _ Directory = (*StaticDirectory)(nil)

// NewStaticDirectory seeds a directory with the given usernames.
func NewStaticDirectory(usernames ...string) *StaticDirectory {
	d := &StaticDirectory{users: make(map[string]struct{}, len(usernames))}
	for _, u := range usernames {
		d.users[u] = struct{}{}
	}
	return d
}

// Add registers a username with the directory.
func (d *StaticDirectory) Add(username string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[username] = struct{}{}
}

// Remove drops a username from the directory.
func (d *StaticDirectory) Remove(username string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.users, username)
}

// Exists implements Directory.
func (d *StaticDirectory) Exists(_ context.Context, username string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[username]
	return ok, nil
}

// Usernames returns all registered usernames in ascending order.
func (d *StaticDirectory) Usernames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.users))
	for u := range d.users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
