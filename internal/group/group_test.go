package group

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"groupcore/internal/identity"
	"groupcore/internal/infra/persistence/memory"
	"groupcore/pkg/domain"
)

// countingProvider decorates a provider with read-path call counters so
// tests can assert on lazy-load behavior.
type countingProvider struct {
	domain.GroupProvider
	loadGroupCalls atomic.Int32
	loadPropsCalls atomic.Int32
}

func (p *countingProvider) LoadGroup(ctx context.Context, name string) (domain.GroupRecord, error) {
	p.loadGroupCalls.Add(1)
	return p.GroupProvider.LoadGroup(ctx, name)
}

func (p *countingProvider) LoadProperties(ctx context.Context, group string) ([]domain.Property, error) {
	p.loadPropsCalls.Add(1)
	return p.GroupProvider.LoadProperties(ctx, group)
}

type recordingRoster struct {
	mu      sync.Mutex
	added   []string
	removed []string
}

func (r *recordingRoster) MemberAdded(_ context.Context, group, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, group+"/"+username)
}

func (r *recordingRoster) MemberRemoved(_ context.Context, group, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, group+"/"+username)
}

func (r *recordingRoster) addedCalls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.added...)
}

func (r *recordingRoster) removedCalls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.removed...)
}

type eventSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *eventSink) add(e domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventSink) snapshot() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

// wait blocks until at least n events were delivered or the deadline hits.
func (s *eventSink) wait(t *testing.T, n int) []domain.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		evts := s.snapshot()
		if len(evts) >= n {
			return evts
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d events, have %d: %+v", n, len(evts), evts)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

type testEnv struct {
	m        *Manager
	store    *memory.Store
	provider *countingProvider
	dir      *identity.StaticDirectory
	roster   *recordingRoster
	sink     *eventSink
}

func newTestEnv(t *testing.T, users ...string) *testEnv {
	t.Helper()
	store := memory.NewStore()
	provider := &countingProvider{GroupProvider: store}
	dir := identity.NewStaticDirectory(users...)
	roster := &recordingRoster{}
	m, err := NewManager(Config{
		Provider: provider,
		Resolver: identity.NewResolver(dir),
		Roster:   roster,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(m.Close)
	sink := &eventSink{}
	m.Subscribe(sink.add)
	return &testEnv{m: m, store: store, provider: provider, dir: dir, roster: roster, sink: sink}
}

func (e *testEnv) mustCreate(t *testing.T, name string) *Group {
	t.Helper()
	g, err := e.m.CreateGroup(context.Background(), name)
	if err != nil {
		t.Fatalf("create group %s: %v", name, err)
	}
	return g
}

func TestSetNameMigratesCacheAndDispatches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.mustCreate(t, "alpha")
	env.sink.wait(t, 1)

	if err := g.SetName(ctx, "beta"); err != nil {
		t.Fatalf("set name: %v", err)
	}
	if g.Name() != "beta" {
		t.Fatalf("name = %q", g.Name())
	}

	// Old name resolves nowhere; new name resolves to the same instance.
	if _, err := env.m.GetGroup(ctx, "alpha"); !errors.Is(err, domain.ErrGroupNotFound) {
		t.Fatalf("old name lookup: %v", err)
	}
	got, err := env.m.GetGroup(ctx, "beta")
	if err != nil {
		t.Fatalf("new name lookup: %v", err)
	}
	if got != g {
		t.Fatalf("cache handed out a second instance")
	}

	evts := env.sink.wait(t, 2)
	evt := evts[1]
	if evt.Type != domain.EventGroupModified || evt.Group != "beta" {
		t.Fatalf("event = %+v", evt)
	}
	if evt.Param(domain.ParamType) != domain.ModificationName || evt.Param(domain.ParamOriginalValue) != "alpha" {
		t.Fatalf("event params = %v", evt.Params)
	}
}

func TestSetNamePersistFailureLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.mustCreate(t, "alpha")
	env.sink.wait(t, 1)

	boom := errors.New("disk gone")
	env.store.FailWith("SetName", boom)
	err := g.SetName(ctx, "beta")
	var perr *domain.PersistenceError
	if !errors.As(err, &perr) || !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if g.Name() != "alpha" {
		t.Fatalf("name mutated after failed persist: %q", g.Name())
	}
	got, err := env.m.GetGroup(ctx, "alpha")
	if err != nil || got != g {
		t.Fatalf("cache entry disturbed: %v, %v", got, err)
	}
	if len(env.sink.snapshot()) != 1 {
		t.Fatalf("events = %+v", env.sink.snapshot())
	}
}

func TestSetDescription(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.mustCreate(t, "g")
	env.sink.wait(t, 1)
	env.store.ResetOps()

	if err := g.SetDescription(ctx, "first"); err != nil {
		t.Fatalf("set description: %v", err)
	}
	if g.Description() != "first" {
		t.Fatalf("description = %q", g.Description())
	}
	evts := env.sink.wait(t, 2)
	evt := evts[1]
	if evt.Param(domain.ParamType) != domain.ModificationDescription || evt.Param(domain.ParamOriginalValue) != "" {
		t.Fatalf("event params = %v", evt.Params)
	}

	// Unchanged value is a no-op: no persistence call, no event.
	if err := g.SetDescription(ctx, "first"); err != nil {
		t.Fatalf("idempotent set: %v", err)
	}
	if ops := env.store.Ops(); len(ops) != 1 {
		t.Fatalf("ops = %+v", ops)
	}
	if len(env.sink.snapshot()) != 2 {
		t.Fatalf("events = %+v", env.sink.snapshot())
	}
}

func TestIsUserChecksBothRoles(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	ctx := context.Background()
	g := env.mustCreate(t, "g")
	if _, err := g.Admins().Add(ctx, "alice"); err != nil {
		t.Fatalf("add admin: %v", err)
	}
	if _, err := g.Members().Add(ctx, "bob"); err != nil {
		t.Fatalf("add member: %v", err)
	}

	if !g.IsUser("alice") || !g.IsUser("bob") {
		t.Fatalf("expected both roles to count as users")
	}
	// Normalization applies before the check.
	if !g.IsUser("  BOB ") {
		t.Fatalf("normalized lookup failed")
	}
	if g.IsUser("carol") || g.IsUser("not valid") {
		t.Fatalf("unexpected membership")
	}
}

func TestCachedSizeTracksNameAndDescription(t *testing.T) {
	env := newTestEnv(t)
	g := env.mustCreate(t, "g")
	base := g.CachedSize()
	if err := g.SetDescription(context.Background(), "0123456789"); err != nil {
		t.Fatalf("set description: %v", err)
	}
	if g.CachedSize() != base+10 {
		t.Fatalf("size = %d, want %d", g.CachedSize(), base+10)
	}
}

func TestRoleExclusivityAfterRoleChange(t *testing.T) {
	env := newTestEnv(t, "bob")
	ctx := context.Background()
	g := env.mustCreate(t, "g")
	if _, err := g.Members().Add(ctx, "bob"); err != nil {
		t.Fatalf("add member: %v", err)
	}

	// Moving a user between roles means removing first, then adding.
	cur := g.Members().Cursor()
	if _, ok := cur.Next(); !ok {
		t.Fatalf("cursor empty")
	}
	if err := cur.Remove(ctx); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if added, err := g.Admins().Add(ctx, "bob"); err != nil || !added {
		t.Fatalf("promote: %v, %v", added, err)
	}

	if g.Members().Contains("bob") {
		t.Fatalf("bob still holds member role")
	}
	if !g.Admins().Contains("bob") {
		t.Fatalf("bob missing admin role")
	}
	if fmt.Sprintf("%v", g.Admins().Usernames()) != "[bob]" {
		t.Fatalf("admins = %v", g.Admins().Usernames())
	}
}
