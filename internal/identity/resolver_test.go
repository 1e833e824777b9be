package identity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"groupcore/pkg/domain"
)

func TestNormalizeCanonicalizes(t *testing.T) {
	r := NewResolver(NewStaticDirectory())
	cases := []struct {
		in   string
		want string
	}{
		{"Alice", "alice"},
		{"  bob  ", "bob"},
		{"carol.d", "carol.d"},
		{"MIXED_case-99", "mixed_case-99"},
	}
	for _, tc := range cases {
		got, err := r.Normalize(tc.in)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	r := NewResolver(NewStaticDirectory())
	cases := []string{
		"",
		"   ",
		"user@host",
		"a b",
		"it's",
		"a/b",
		"x:y",
		"<bracket>",
		"amp&ersand",
		"tab\tchar",
		strings.Repeat("a", 1024),
	}
	for _, in := range cases {
		if _, err := r.Normalize(in); err == nil {
			t.Fatalf("Normalize(%q): expected error", in)
		} else {
			var ipe *domain.InvalidPrincipalError
			if !errors.As(err, &ipe) {
				t.Fatalf("Normalize(%q): error %T, want *domain.InvalidPrincipalError", in, err)
			}
		}
	}
}

func TestStaticDirectoryExists(t *testing.T) {
	d := NewStaticDirectory("alice", "bob")
	ctx := context.Background()
	r := NewResolver(d)

	ok, err := r.Exists(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("Exists(alice) = %v, %v, want true", ok, err)
	}
	ok, err = r.Exists(ctx, "mallory")
	if err != nil || ok {
		t.Fatalf("Exists(mallory) = %v, %v, want false", ok, err)
	}

	d.Add("carol")
	if ok, _ := r.Exists(ctx, "carol"); !ok {
		t.Fatalf("Exists(carol) after Add: want true")
	}
	d.Remove("bob")
	if ok, _ := r.Exists(ctx, "bob"); ok {
		t.Fatalf("Exists(bob) after Remove: want false")
	}

	if got := d.Usernames(); len(got) != 2 || got[0] != "alice" || got[1] != "carol" {
		t.Fatalf("Usernames() = %v", got)
	}
}
