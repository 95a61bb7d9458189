package chatstate

import (
	"sync"

	"github.com/xtaci/chatd/internal/protocol"
	"github.com/xtaci/chatd/internal/queue"
)

// Room is a bounded membership set over which chat is fanned out.
// Members are stored as handles, not session pointers; the sender
// resolves handles back to sessions through the owning State at
// broadcast time.
type Room struct {
	ID         int
	mu         sync.Mutex
	members    []queue.Handle
	maxMembers int
}

// UserCount reports the room's current membership size.
func (r *Room) UserCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *Room) hasMemberLocked(h queue.Handle) bool {
	for _, m := range r.members {
		if m == h {
			return true
		}
	}
	return false
}

// join adds h to the room unless it is already a member (idempotent) or
// the room is at capacity. Returns true if h is (now) a member.
func (r *Room) join(h queue.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasMemberLocked(h) {
		return true
	}
	if len(r.members) >= r.maxMembers {
		return false
	}
	r.members = append(r.members, h)
	return true
}

// leave swap-removes h from the membership set if present.
func (r *Room) leave(h queue.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.members {
		if m == h {
			last := len(r.members) - 1
			r.members[i] = r.members[last]
			r.members = r.members[:last]
			return
		}
	}
}

// targets returns a snapshot of member handles, excluding except, taken
// under the room lock. The caller must not hold any other lock while
// iterating the result, since broadcast sends happen outside room.mu.
func (r *Room) targets(except queue.Handle) []queue.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]queue.Handle, 0, len(r.members))
	for _, m := range r.members {
		if m == except {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Outbox is how chatstate hands outbound packets back to the reactor
// without importing it: Send enqueues one SEND job per call, and Wakeup
// interrupts the reactor's blocking wait after a batch of sends.
type Outbox interface {
	Send(h queue.Handle, pkt protocol.Packet)
	Wakeup()
}
