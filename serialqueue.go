package nxt

// Serial identifies a point on the device submission timeline. Serials are
// assigned once per queue submission, in submission order, and a resource
// guarded by serial S may be reclaimed once the device reports completion of
// serial S.
type Serial uint64

type serialEntry[T any] struct {
	serial  Serial
	payload T
}

// SerialQueue is an ordered association of payloads with the serial at which
// they become reclaimable. Serials must be enqueued in non-decreasing order;
// payloads come back out in the order they went in.
type SerialQueue[T any] struct {
	entries []serialEntry[T]
}

// Enqueue appends payload guarded by serial. The serial must be at least as
// large as every serial already in the queue.
func (q *SerialQueue[T]) Enqueue(serial Serial, payload T) {
	if n := len(q.entries); n > 0 && q.entries[n-1].serial > serial {
		panic("nxt: serial queue received a non-monotonic serial")
	}
	q.entries = append(q.entries, serialEntry[T]{serial: serial, payload: payload})
}

// ReclaimUpTo removes and returns, in insertion order, the maximal prefix of
// payloads whose serial is less than or equal to serial. Entries guarded by a
// later serial are left intact.
func (q *SerialQueue[T]) ReclaimUpTo(serial Serial) []T {
	split := 0
	for split < len(q.entries) && q.entries[split].serial <= serial {
		split++
	}
	if split == 0 {
		return nil
	}

	reclaimed := make([]T, split)
	for i := 0; i < split; i++ {
		reclaimed[i] = q.entries[i].payload
	}
	q.entries = append(q.entries[:0], q.entries[split:]...)
	return reclaimed
}

// Empty reports whether the queue holds no entries.
func (q *SerialQueue[T]) Empty() bool {
	return len(q.entries) == 0
}

// Len returns the number of entries currently held.
func (q *SerialQueue[T]) Len() int {
	return len(q.entries)
}

// FirstSerial returns the serial guarding the oldest entry.
func (q *SerialQueue[T]) FirstSerial() Serial {
	if len(q.entries) == 0 {
		panic("nxt: FirstSerial on an empty serial queue")
	}
	return q.entries[0].serial
}
