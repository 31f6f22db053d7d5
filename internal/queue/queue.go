// internal/queue/queue.go

// Package queue implements the kernel's ordered containers. Two strategies share
// one contract: BMap, a two-level bitmap over a fixed number of dense priority
// levels, and PriList, a doubly linked list kept in ascending key order.
//
// Nodes are intrusive: the object being ordered embeds a Node by value and the
// queues link those nodes together. A node remembers which queue holds it, so
// removing a node that is not queued (or resorting it to the key it already
// has) is a no-op instead of a corruption.
package queue

import "errors"

// MaxLevels is the largest priority level count a BMap supports.
const MaxLevels = 256

var (
	// ErrLevels is returned when a BMap is created with a level count outside 1..MaxLevels.
	ErrLevels = errors.New("queue: priority levels must be within 1..256")
	// ErrKey is returned when a key does not fit the queue's priority levels.
	ErrKey = errors.New("queue: key out of range")
	// ErrQueued is returned when a node that is already linked into a queue is put again.
	ErrQueued = errors.New("queue: node already queued")
)

// Node is the link and sort key embedded in a queued object.
type Node[T any] struct {
	next, prev *Node[T]
	key        uint64
	owner      any

	// Value is the object that embeds this node.
	Value T
}

// Key returns the key the node was last queued with.
func (n *Node[T]) Key() uint64 { return n.key }

// Queued reports whether the node is linked into any queue.
func (n *Node[T]) Queued() bool { return n.owner != nil }

// Q is the contract both strategies implement.
type Q[T any] interface {
	// Put links n with the given key. Equal keys keep insertion order.
	Put(n *Node[T], key uint64) error
	// Get unlinks and returns the node with the smallest key, or nil.
	Get() *Node[T]
	// First returns the node Get would return, without unlinking it.
	First() *Node[T]
	// Remove unlinks n. It reports false if n was not in this queue.
	Remove(n *Node[T]) bool
	// Resort moves n to a new key.
	Resort(n *Node[T], key uint64) error
	// Key returns the key of n.
	Key(n *Node[T]) uint64
	// Each calls fn on every node in key order until fn returns false,
	// returning the node it stopped at (nil if it visited all of them).
	Each(fn func(n *Node[T]) bool) *Node[T]
	// Info returns up to max values in key order without mutating the queue.
	Info(max int) []T
	Len() int
	Empty() bool
}

// list is the doubly linked chain shared by BMap buckets and PriList.
type list[T any] struct {
	head, tail *Node[T]
}

func (l *list[T]) empty() bool { return l.head == nil }

func (l *list[T]) pushBack(n *Node[T]) {
	n.next = nil
	n.prev = l.tail
	if l.tail != nil {
		l.tail.next = n
	} else {
		l.head = n
	}
	l.tail = n
}

func (l *list[T]) pushFront(n *Node[T]) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	} else {
		l.tail = n
	}
	l.head = n
}

// insertBefore links n ahead of mark, which must be in l.
func (l *list[T]) insertBefore(n, mark *Node[T]) {
	n.next = mark
	n.prev = mark.prev
	if mark.prev != nil {
		mark.prev.next = n
	} else {
		l.head = n
	}
	mark.prev = n
}

// insertAfter links n behind mark, which must be in l.
func (l *list[T]) insertAfter(n, mark *Node[T]) {
	n.prev = mark
	n.next = mark.next
	if mark.next != nil {
		mark.next.prev = n
	} else {
		l.tail = n
	}
	mark.next = n
}

func (l *list[T]) unlink(n *Node[T]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.next, n.prev = nil, nil
}
