package memory

import (
	"context"
	"errors"
	"testing"

	"groupcore/pkg/domain"
)

func TestGroupLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if err := s.CreateGroup(ctx, "eng", "Engineering"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateGroup(ctx, "eng", "dup"); !errors.Is(err, domain.ErrGroupExists) {
		t.Fatalf("duplicate create: %v, want ErrGroupExists", err)
	}

	if err := s.AddMember(ctx, "eng", "alice", false); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := s.AddMember(ctx, "eng", "bob", true); err != nil {
		t.Fatalf("add admin: %v", err)
	}

	rec, err := s.LoadGroup(ctx, "eng")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.Description != "Engineering" {
		t.Fatalf("description = %q", rec.Description)
	}
	if len(rec.Members) != 1 || rec.Members[0] != "alice" {
		t.Fatalf("members = %v", rec.Members)
	}
	if len(rec.Admins) != 1 || rec.Admins[0] != "bob" {
		t.Fatalf("admins = %v", rec.Admins)
	}

	if err := s.DeleteMember(ctx, "eng", "alice"); err != nil {
		t.Fatalf("delete member: %v", err)
	}
	rec, _ = s.LoadGroup(ctx, "eng")
	if len(rec.Members) != 0 {
		t.Fatalf("members after delete = %v", rec.Members)
	}

	if err := s.DeleteGroup(ctx, "eng"); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	if _, err := s.LoadGroup(ctx, "eng"); !errors.Is(err, domain.ErrGroupNotFound) {
		t.Fatalf("load after delete: %v, want ErrGroupNotFound", err)
	}
}

func TestRenameCarriesRows(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	if err := s.CreateGroup(ctx, "a", "desc"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.AddMember(ctx, "a", "alice", false); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.InsertProperty(ctx, "a", "k", "v"); err != nil {
		t.Fatalf("insert prop: %v", err)
	}

	if err := s.SetName(ctx, "a", "b"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := s.LoadGroup(ctx, "a"); !errors.Is(err, domain.ErrGroupNotFound) {
		t.Fatalf("old name still loads: %v", err)
	}
	rec, err := s.LoadGroup(ctx, "b")
	if err != nil {
		t.Fatalf("load renamed: %v", err)
	}
	if len(rec.Members) != 1 || rec.Members[0] != "alice" {
		t.Fatalf("members after rename = %v", rec.Members)
	}
	props, err := s.LoadProperties(ctx, "b")
	if err != nil || len(props) != 1 || props[0].Key != "k" {
		t.Fatalf("props after rename = %v, %v", props, err)
	}

	if err := s.CreateGroup(ctx, "c", ""); err != nil {
		t.Fatalf("create c: %v", err)
	}
	if err := s.SetName(ctx, "b", "c"); !errors.Is(err, domain.ErrGroupExists) {
		t.Fatalf("rename onto taken name: %v, want ErrGroupExists", err)
	}
}

func TestPropertyRows(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	if err := s.CreateGroup(ctx, "g", ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.InsertProperty(ctx, "g", "color", "blue"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.InsertProperty(ctx, "g", "color", "red"); err == nil {
		t.Fatalf("duplicate insert should fail")
	}
	if err := s.UpdateProperty(ctx, "g", "color", "green"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.UpdateProperty(ctx, "g", "missing", "x"); err == nil {
		t.Fatalf("update of missing key should fail")
	}
	props, err := s.LoadProperties(ctx, "g")
	if err != nil {
		t.Fatalf("load props: %v", err)
	}
	if len(props) != 1 || props[0].Value != "green" {
		t.Fatalf("props = %v", props)
	}
	if err := s.DeleteProperty(ctx, "g", "color"); err != nil {
		t.Fatalf("delete prop: %v", err)
	}
	props, _ = s.LoadProperties(ctx, "g")
	if len(props) != 0 {
		t.Fatalf("props after delete = %v", props)
	}
}

func TestOpsJournalAndFailureInjection(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	if err := s.CreateGroup(ctx, "g", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	s.ResetOps()

	if err := s.AddMember(ctx, "g", "alice", false); err != nil {
		t.Fatalf("add: %v", err)
	}
	ops := s.Ops()
	if len(ops) != 1 || ops[0].Name != "AddMember" {
		t.Fatalf("ops = %+v", ops)
	}
	if ops[0].Args[2] != "false" {
		t.Fatalf("admin flag arg = %q", ops[0].Args[2])
	}

	boom := errors.New("boom")
	s.FailWith("AddMember", boom)
	if err := s.AddMember(ctx, "g", "bob", false); !errors.Is(err, boom) {
		t.Fatalf("injected failure: %v", err)
	}
	if len(s.Ops()) != 1 {
		t.Fatalf("failed call must not be journaled")
	}
	s.FailWith("AddMember", nil)
	if err := s.AddMember(ctx, "g", "bob", false); err != nil {
		t.Fatalf("after clearing injection: %v", err)
	}
}

func TestGroupNames(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := s.CreateGroup(ctx, name, ""); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	names, err := s.GroupNames(ctx)
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("names = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}
