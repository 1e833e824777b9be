package fs

import (
	"context"
	"io"
	"strings"
	"testing"

	"groupcore/internal/blob/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	info, err := s.Put(ctx, "events/g/1.json", strings.NewReader(`{"type":"member_added"}`), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"group": "g"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.ETag == "" || info.Size == 0 {
		t.Fatalf("info = %+v", info)
	}
	if _, err := s.Put(ctx, "events/g/1.json", strings.NewReader("x"), core.PutOptions{}); err == nil {
		t.Fatalf("duplicate put should fail")
	}

	got, rc, err := s.Get(ctx, "events/g/1.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !strings.Contains(string(body), "member_added") {
		t.Fatalf("body = %s", body)
	}
	if got.ContentType != "application/json" || got.Metadata["group"] != "g" || got.ETag != info.ETag {
		t.Fatalf("got = %+v", got)
	}

	head, err := s.Head(ctx, "events/g/1.json")
	if err != nil || head.Size != info.Size {
		t.Fatalf("head = %+v, %v", head, err)
	}
}

func TestKeySanitization(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, key := range []string{"", "  ", "/abs/path", "../escape", "a/../../b"} {
		if _, err := s.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err == nil {
			t.Fatalf("key %q should be rejected", key)
		}
	}
}

func TestDeleteAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, key := range []string{"events/b/2.json", "events/a/1.json", "other/x"} {
		if _, err := s.Put(ctx, key, strings.NewReader("{}"), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := s.List(ctx, "events/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "events/a/1.json" || infos[1].Key != "events/b/2.json" {
		t.Fatalf("list = %+v", infos)
	}

	ok, err := s.Delete(ctx, "events/a/1.json")
	if err != nil || !ok {
		t.Fatalf("delete = %v, %v", ok, err)
	}
	ok, err = s.Delete(ctx, "events/a/1.json")
	if err != nil || ok {
		t.Fatalf("second delete = %v, %v", ok, err)
	}
	infos, _ = s.List(ctx, "events/")
	if len(infos) != 1 {
		t.Fatalf("list after delete = %+v", infos)
	}
}

func TestSignURLReturnsFileURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Put(ctx, "events/g/1.json", strings.NewReader("{}"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	u, err := s.SignURL(ctx, "events/g/1.json", 0)
	if err != nil {
		t.Fatalf("sign url: %v", err)
	}
	if !strings.HasPrefix(u, "file://") || !strings.HasSuffix(u, "events/g/1.json") {
		t.Fatalf("url = %q", u)
	}
}
