package group

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"groupcore/internal/blob"
	"groupcore/pkg/domain"
)

func TestArchiverWritesEventsToBlobStore(t *testing.T) {
	store := blob.NewMemory()
	d := NewDispatcher(8, nil)
	NewArchiver(store, nil).Attach(d)

	now := time.Now().UTC()
	d.Dispatch(domain.Event{Type: domain.EventGroupCreated, Group: "eng", OccurredAt: now})
	d.Dispatch(domain.Event{
		Type:       domain.EventMemberAdded,
		Group:      "eng",
		Params:     map[string]string{domain.ParamMember: "alice"},
		OccurredAt: now.Add(time.Millisecond),
	})
	d.Close()

	ctx := context.Background()
	infos, err := store.List(ctx, "events/eng/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("archived = %+v", infos)
	}

	info, rc, err := store.Get(ctx, infos[0].Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	raw, _ := io.ReadAll(rc)
	_ = rc.Close()
	var evt domain.Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.Type != domain.EventGroupCreated || evt.Group != "eng" {
		t.Fatalf("event = %+v", evt)
	}
	if info.ContentType != "application/json" || info.Metadata["event_type"] != string(domain.EventGroupCreated) {
		t.Fatalf("blob info = %+v", info)
	}
}

// failingBlobStore rejects every write.
type failingBlobStore struct {
	blob.Store
	puts int
}

func (s *failingBlobStore) Put(context.Context, string, io.Reader, blob.PutOptions) (blob.Info, error) {
	s.puts++
	return blob.Info{}, errors.New("bucket unavailable")
}

func TestArchiverSwallowsWriteFailures(t *testing.T) {
	store := &failingBlobStore{Store: blob.NewMemory()}
	a := NewArchiver(store, nil)

	// Archive must not panic or propagate; the event stream is
	// fire-and-forget.
	a.Archive(domain.Event{Type: domain.EventGroupDeleted, Group: "eng", OccurredAt: time.Now()})
	if store.puts != 1 {
		t.Fatalf("puts = %d", store.puts)
	}
	infos, err := store.Store.List(context.Background(), "")
	if err != nil || len(infos) != 0 {
		t.Fatalf("stored = %+v, %v", infos, err)
	}
}
