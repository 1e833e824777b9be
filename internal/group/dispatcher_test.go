package group

import (
	"fmt"
	"testing"

	"groupcore/pkg/domain"
)

func TestDispatchPreservesOrder(t *testing.T) {
	d := NewDispatcher(8, nil)
	sink := &eventSink{}
	d.Subscribe(sink.add)

	const n = 100
	for i := 0; i < n; i++ {
		d.Dispatch(domain.Event{Type: domain.EventGroupModified, Group: fmt.Sprintf("g%03d", i)})
	}
	d.Close()

	evts := sink.snapshot()
	if len(evts) != n {
		t.Fatalf("delivered = %d, want %d", len(evts), n)
	}
	for i, evt := range evts {
		if evt.Group != fmt.Sprintf("g%03d", i) {
			t.Fatalf("event %d out of order: %+v", i, evt)
		}
		if evt.OccurredAt.IsZero() {
			t.Fatalf("event %d missing timestamp", i)
		}
	}
}

func TestMultipleSubscribersSeeEveryEvent(t *testing.T) {
	d := NewDispatcher(0, nil)
	first, second := &eventSink{}, &eventSink{}
	d.Subscribe(first.add)
	d.Subscribe(second.add)

	d.Dispatch(domain.Event{Type: domain.EventGroupCreated, Group: "g"})
	d.Close()

	if len(first.snapshot()) != 1 || len(second.snapshot()) != 1 {
		t.Fatalf("delivery counts = %d, %d", len(first.snapshot()), len(second.snapshot()))
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	d := NewDispatcher(0, nil)
	sink := &eventSink{}
	unsubscribe := d.Subscribe(sink.add)
	unsubscribe()

	d.Dispatch(domain.Event{Type: domain.EventGroupCreated, Group: "g"})
	d.Close()

	if len(sink.snapshot()) != 0 {
		t.Fatalf("events = %+v", sink.snapshot())
	}
}

func TestDispatchAfterCloseIsDropped(t *testing.T) {
	d := NewDispatcher(0, nil)
	sink := &eventSink{}
	d.Subscribe(sink.add)
	d.Close()

	d.Dispatch(domain.Event{Type: domain.EventGroupCreated, Group: "g"})
	if len(sink.snapshot()) != 0 {
		t.Fatalf("events = %+v", sink.snapshot())
	}
	// Double close is a no-op.
	d.Close()
}
