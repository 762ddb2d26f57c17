// Package memory implements the bounded FIFO of deferred replies that the
// engine falls back on when nothing in the current input matches.
package memory

import (
	"fmt"
	"strings"
)

// DefaultCapacity is used when New is given a capacity below one.
const DefaultCapacity = 8

// Policy decides what Offer does when the queue is full.
type Policy int

const (
	// DropOldest evicts the oldest entry to make room for the new one.
	DropOldest Policy = iota
	// RefuseNew keeps the queue as it is and rejects the new entry.
	RefuseNew
)

func (p Policy) String() string {
	switch p {
	case DropOldest:
		return "drop-oldest"
	case RefuseNew:
		return "refuse-new"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses the names printed by Policy.String. The empty string is
// DropOldest.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop-oldest", "dropoldest":
		return DropOldest, nil
	case "refuse-new", "refusenew":
		return RefuseNew, nil
	default:
		return DropOldest, fmt.Errorf("unknown memory policy %q (want drop-oldest or refuse-new)", s)
	}
}

// Queue is a bounded FIFO of sentences. It is not safe for concurrent use.
type Queue struct {
	items    []string
	capacity int
	policy   Policy
}

// New returns an empty queue holding at most capacity entries.
func New(capacity int, policy Policy) *Queue {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Queue{items: make([]string, 0, capacity), capacity: capacity, policy: policy}
}

// Offer appends sentence. It reports false when the sentence was not stored,
// which only happens on a full queue under RefuseNew.
func (q *Queue) Offer(sentence string) bool {
	if len(q.items) == q.capacity {
		if q.policy == RefuseNew {
			return false
		}
		q.pop()
	}
	q.items = append(q.items, sentence)
	return true
}

// Poll removes and returns the oldest entry.
func (q *Queue) Poll() (string, bool) {
	if len(q.items) == 0 {
		return "", false
	}
	return q.pop(), true
}

func (q *Queue) pop() string {
	head := q.items[0]
	n := copy(q.items, q.items[1:])
	q.items[n] = ""
	q.items = q.items[:n]
	return head
}

// Len returns the number of queued entries.
func (q *Queue) Len() int { return len(q.items) }

// Cap returns the queue's capacity.
func (q *Queue) Cap() int { return q.capacity }

// Policy returns the overflow policy.
func (q *Queue) Policy() Policy { return q.policy }

// Reset drops every entry.
func (q *Queue) Reset() {
	clear(q.items)
	q.items = q.items[:0]
}
