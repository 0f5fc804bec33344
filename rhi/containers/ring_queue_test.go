package containers

import "testing"

func TestRingQueueFIFOOrder(t *testing.T) {
	q := NewRingQueue[int](2)
	q.Enqueue(1)
	q.Enqueue(2)
	q.Enqueue(3) // forces a grow past the initial capacity of 2

	for _, want := range []int{1, 2, 3} {
		got, ok := q.Dequeue()
		if !ok || got != want {
			t.Fatalf("Dequeue() = (%d, %v), want (%d, true)", got, ok, want)
		}
	}
	if !q.IsEmpty() {
		t.Fatal("queue should be empty after draining everything enqueued")
	}
}

func TestRingQueuePeekDoesNotRemove(t *testing.T) {
	q := NewRingQueue[string](4)
	q.Enqueue("a")
	if v, ok := q.Peek(); !ok || v != "a" {
		t.Fatalf("Peek() = (%q, %v)", v, ok)
	}
	if q.Len() != 1 {
		t.Fatalf("Peek must not remove the element, len = %d", q.Len())
	}
}

func TestRingQueueWrapsAroundWithoutGrowing(t *testing.T) {
	q := NewRingQueue[int](3)
	q.Enqueue(1)
	q.Enqueue(2)
	q.Dequeue()
	q.Enqueue(3)
	q.Enqueue(4) // wraps the write index back to index 0 without growing

	var got []int
	for !q.IsEmpty() {
		v, _ := q.Dequeue()
		got = append(got, v)
	}
	want := []int{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRingQueueDequeueEmptyReturnsFalse(t *testing.T) {
	q := NewRingQueue[int](2)
	if _, ok := q.Dequeue(); ok {
		t.Fatal("Dequeue on an empty queue should report ok=false")
	}
}
