// internal/queue/bmap.go

package queue

import "math/bits"

// BMap is the bitmap strategy: one FIFO bucket per priority level, plus a two
// level bitmap of the non-empty buckets. Key 0 is the highest priority.
//
// metaBMap has one bit per group of eight buckets; bMap[group] has one bit per
// non-empty bucket in that group. The highest priority is found with two
// find-first-set operations regardless of how many nodes are queued.
type BMap[T any] struct {
	buckets  []list[T]
	bMap     [MaxLevels / 8]uint8
	metaBMap uint32
	n        int
}

var _ Q[int] = (*BMap[int])(nil)

// NewBMap creates a bitmap queue with keys 0..levels-1.
func NewBMap[T any](levels int) (*BMap[T], error) {
	if levels < 1 || levels > MaxLevels {
		return nil, ErrLevels
	}
	return &BMap[T]{buckets: make([]list[T], levels)}, nil
}

// Levels returns the number of priority levels.
func (q *BMap[T]) Levels() int { return len(q.buckets) }

// Put appends n to the tail of the bucket for key.
func (q *BMap[T]) Put(n *Node[T], key uint64) error {
	return q.put(n, key, false)
}

// PutHead inserts n at the head of the bucket for key, so it is the next node
// of that priority to be returned.
func (q *BMap[T]) PutHead(n *Node[T], key uint64) error {
	return q.put(n, key, true)
}

func (q *BMap[T]) put(n *Node[T], key uint64, head bool) error {
	if key >= uint64(len(q.buckets)) {
		return ErrKey
	}
	if n.owner != nil {
		return ErrQueued
	}
	b := &q.buckets[key]
	if head {
		b.pushFront(n)
	} else {
		b.pushBack(n)
	}
	n.key = key
	n.owner = q
	q.n++

	group := key >> 3
	q.bMap[group] |= 1 << (key & 7)
	q.metaBMap |= 1 << group
	return nil
}

// highest returns the smallest non-empty key. The queue must not be empty.
func (q *BMap[T]) highest() uint64 {
	group := bits.TrailingZeros32(q.metaBMap)
	bit := bits.TrailingZeros8(q.bMap[group])
	return uint64(group<<3 | bit)
}

func (q *BMap[T]) First() *Node[T] {
	if q.metaBMap == 0 {
		return nil
	}
	return q.buckets[q.highest()].head
}

func (q *BMap[T]) Get() *Node[T] {
	n := q.First()
	if n != nil {
		q.unlink(n)
	}
	return n
}

func (q *BMap[T]) Remove(n *Node[T]) bool {
	if n.owner != q {
		return false
	}
	q.unlink(n)
	return true
}

func (q *BMap[T]) unlink(n *Node[T]) {
	b := &q.buckets[n.key]
	b.unlink(n)
	n.owner = nil
	q.n--
	if !b.empty() {
		return
	}
	group := n.key >> 3
	q.bMap[group] &^= 1 << (n.key & 7)
	if q.bMap[group] == 0 {
		q.metaBMap &^= 1 << group
	}
}

// Resort moves n to the tail of the bucket for key. A node that is not in q,
// or is already at key, is left alone.
func (q *BMap[T]) Resort(n *Node[T], key uint64) error {
	if key >= uint64(len(q.buckets)) {
		return ErrKey
	}
	if n.owner != q || n.key == key {
		return nil
	}
	q.unlink(n)
	return q.put(n, key, false)
}

func (q *BMap[T]) Key(n *Node[T]) uint64 { return n.key }

func (q *BMap[T]) Each(fn func(n *Node[T]) bool) *Node[T] {
	for meta := q.metaBMap; meta != 0; meta &= meta - 1 {
		group := bits.TrailingZeros32(meta)
		for word := q.bMap[group]; word != 0; word &= word - 1 {
			key := group<<3 | bits.TrailingZeros8(word)
			for n := q.buckets[key].head; n != nil; {
				next := n.next
				if !fn(n) {
					return n
				}
				n = next
			}
		}
	}
	return nil
}

func (q *BMap[T]) Info(max int) []T {
	return info[T](q, max)
}

func (q *BMap[T]) Len() int { return q.n }

func (q *BMap[T]) Empty() bool { return q.metaBMap == 0 }

func info[T any](q Q[T], max int) []T {
	if max <= 0 || q.Empty() {
		return nil
	}
	out := make([]T, 0, min(max, q.Len()))
	q.Each(func(n *Node[T]) bool {
		out = append(out, n.Value)
		return len(out) < max
	})
	return out
}
