package metrics

import (
	"testing"
	"time"
)

func TestMultiObserverFansOut(t *testing.T) {
	a := NewMemoryObserver()
	b := NewMemoryObserver()
	multi := NewMultiObserver(a, nil, b)
	Record(multi, EventFragmentDelivered, map[string]string{"channel": "transcribed"})
	if a.Count(EventFragmentDelivered) != 1 || b.Count(EventFragmentDelivered) != 1 {
		t.Fatalf("expected both observers to record the event")
	}
}

func TestAsyncObserverDelivers(t *testing.T) {
	mem := NewMemoryObserver()
	async := NewAsyncObserver(mem, 4)
	Record(async, EventStageSkipped, nil)
	deadline := time.Now().Add(time.Second)
	for mem.Count(EventStageSkipped) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("event not delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	async.Close()
	Record(async, EventStageSkipped, nil)
	if async.Dropped() != 0 {
		t.Fatalf("closed observer should ignore events silently")
	}
}

func TestRecordNilObserver(t *testing.T) {
	Record(nil, EventStageFailed, nil)
}
