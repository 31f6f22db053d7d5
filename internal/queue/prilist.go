// internal/queue/prilist.go

package queue

// PriList is the sorted-list strategy. Keys are arbitrary (priorities of a
// sparse range, absolute ticks); insertion is a linear scan, Get is O(1).
type PriList[T any] struct {
	l list[T]
	n int
}

var _ Q[int] = (*PriList[int])(nil)

// NewPriList creates an empty sorted-list queue.
func NewPriList[T any]() *PriList[T] {
	return &PriList[T]{}
}

// Put scans from the head and links n behind every node whose key is <= key.
func (q *PriList[T]) Put(n *Node[T], key uint64) error {
	if n.owner != nil {
		return ErrQueued
	}
	mark := q.l.head
	for mark != nil && mark.key <= key {
		mark = mark.next
	}
	if mark == nil {
		q.l.pushBack(n)
	} else {
		q.l.insertBefore(n, mark)
	}
	q.linked(n, key)
	return nil
}

// PutFromTail gives the same ordering as Put but scans from the tail. Callers
// use it when the key is likely to be among the largest queued.
func (q *PriList[T]) PutFromTail(n *Node[T], key uint64) error {
	if n.owner != nil {
		return ErrQueued
	}
	mark := q.l.tail
	for mark != nil && mark.key > key {
		mark = mark.prev
	}
	if mark == nil {
		q.l.pushFront(n)
	} else {
		q.l.insertAfter(n, mark)
	}
	q.linked(n, key)
	return nil
}

func (q *PriList[T]) linked(n *Node[T], key uint64) {
	n.key = key
	n.owner = q
	q.n++
}

func (q *PriList[T]) First() *Node[T] { return q.l.head }

func (q *PriList[T]) Get() *Node[T] {
	n := q.l.head
	if n != nil {
		q.unlink(n)
	}
	return n
}

// GetExpired unlinks and returns the head if its key is <= limit.
func (q *PriList[T]) GetExpired(limit uint64) *Node[T] {
	n := q.l.head
	if n == nil || n.key > limit {
		return nil
	}
	q.unlink(n)
	return n
}

func (q *PriList[T]) Remove(n *Node[T]) bool {
	if n.owner != q {
		return false
	}
	q.unlink(n)
	return true
}

func (q *PriList[T]) unlink(n *Node[T]) {
	q.l.unlink(n)
	n.owner = nil
	q.n--
}

// Resort changes the key of n. When the new key still sits between its
// neighbours the node is updated in place.
func (q *PriList[T]) Resort(n *Node[T], key uint64) error {
	if n.owner != q || n.key == key {
		return nil
	}
	if (n.prev == nil || n.prev.key <= key) && (n.next == nil || key <= n.next.key) {
		n.key = key
		return nil
	}
	q.unlink(n)
	return q.Put(n, key)
}

func (q *PriList[T]) Key(n *Node[T]) uint64 { return n.key }

// Calibrate adds delta to every key. Relative order is unchanged.
func (q *PriList[T]) Calibrate(delta int64) {
	for n := q.l.head; n != nil; n = n.next {
		n.key = uint64(int64(n.key) + delta)
	}
}

func (q *PriList[T]) Each(fn func(n *Node[T]) bool) *Node[T] {
	for n := q.l.head; n != nil; {
		next := n.next
		if !fn(n) {
			return n
		}
		n = next
	}
	return nil
}

func (q *PriList[T]) Info(max int) []T {
	return info[T](q, max)
}

func (q *PriList[T]) Len() int { return q.n }

func (q *PriList[T]) Empty() bool { return q.l.head == nil }
