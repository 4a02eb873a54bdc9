package gateway

import "testing"

func TestOutQueueFIFO(t *testing.T) {
	q := newOutQueue(4)
	q.Push(queuedPublish{topic: "a"})
	q.Push(queuedPublish{topic: "b"})

	if item, ok := q.Pop(); !ok || item.topic != "a" {
		t.Errorf("Pop = (%v, %v), want a", item.topic, ok)
	}
	if item, ok := q.Pop(); !ok || item.topic != "b" {
		t.Errorf("Pop = (%v, %v), want b", item.topic, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop on empty queue reported an item")
	}
}

func TestOutQueueEvictsOldest(t *testing.T) {
	q := newOutQueue(2)
	if q.Push(queuedPublish{topic: "a"}) {
		t.Error("first push evicted")
	}
	q.Push(queuedPublish{topic: "b"})
	if !q.Push(queuedPublish{topic: "c"}) {
		t.Error("overflow push did not report eviction")
	}

	if q.Len() != 2 {
		t.Fatalf("Len = %d, want 2", q.Len())
	}
	if item, _ := q.Pop(); item.topic != "b" {
		t.Errorf("surviving head = %q, want b", item.topic)
	}
}
