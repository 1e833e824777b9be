package group

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"groupcore/internal/blob"
	"groupcore/internal/logger"
	"groupcore/pkg/domain"
)

// Archiver is a dispatcher subscriber that writes each event as a JSON
// document to a blob store, keyed
// events/<group>/<unix-nanos>-<seq>.json. The event stream is
// fire-and-forget by contract, so archive failures are logged and never
// reach the mutation path.
type Archiver struct {
	store blob.Store
	log   *logger.Logger
	seq   atomic.Uint64
}

// NewArchiver returns an archiver writing to store.
func NewArchiver(store blob.Store, log *logger.Logger) *Archiver {
	if log == nil {
		log = logger.Nop()
	}
	return &Archiver{store: store, log: log}
}

// Attach subscribes the archiver to d, returning the unsubscribe function.
func (a *Archiver) Attach(d *Dispatcher) func() {
	return d.Subscribe(a.Archive)
}

// Archive serializes and stores one event.
func (a *Archiver) Archive(evt domain.Event) {
	key := fmt.Sprintf("events/%s/%d-%06d.json", evt.Group, evt.OccurredAt.UTC().UnixNano(), a.seq.Add(1))
	payload, err := json.Marshal(evt)
	if err != nil {
		a.log.Warn("encode archived event", "key", key, "error", err)
		return
	}
	_, err = a.store.Put(context.Background(), key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"event_type": string(evt.Type)},
	})
	if err != nil {
		a.log.Warn("archive event", "key", key, "error", err)
	}
}
