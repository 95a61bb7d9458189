// Package metrics holds chatd's runtime counters: plain atomic fields
// snapshotted and periodically logged, the same shape as the teacher's
// SNMP counters (kcp.DefaultSnmp), generalized from a KCP-transport
// counter set to chatd's own set of events.
package metrics

import "sync/atomic"

// Counters are process-wide, lock-free counters updated by the reactor
// and worker pool. All fields are safe for concurrent use via the
// atomic package.
type Counters struct {
	ConnectionsAccepted atomic.Uint64
	ConnectionsRejected atomic.Uint64
	BytesRead           atomic.Uint64
	BytesWritten        atomic.Uint64
	PacketsDecoded      atomic.Uint64
	ProtocolErrors      atomic.Uint64
	JobsPacket          atomic.Uint64
	JobsDisconnect      atomic.Uint64
	RoomsCreated        atomic.Uint64
	BroadcastsDropped   atomic.Uint64
}

// Snapshot is a point-in-time copy of Counters suitable for logging or
// serialization, since atomic.Uint64 values themselves are not
// copy-safe while concurrently updated.
type Snapshot struct {
	ConnectionsAccepted uint64
	ConnectionsRejected uint64
	BytesRead           uint64
	BytesWritten        uint64
	PacketsDecoded      uint64
	ProtocolErrors      uint64
	JobsPacket          uint64
	JobsDisconnect      uint64
	RoomsCreated        uint64
	BroadcastsDropped   uint64
}

// Header names Snapshot's fields in the order ToSlice emits them, for a
// CSV writer's header row.
func (Snapshot) Header() []string {
	return []string{
		"ConnectionsAccepted", "ConnectionsRejected", "BytesRead", "BytesWritten",
		"PacketsDecoded", "ProtocolErrors", "JobsPacket", "JobsDisconnect",
		"RoomsCreated", "BroadcastsDropped",
	}
}

// ToSlice renders the snapshot as strings, in Header order.
func (s Snapshot) ToSlice() []string {
	return []string{
		itoa(s.ConnectionsAccepted), itoa(s.ConnectionsRejected),
		itoa(s.BytesRead), itoa(s.BytesWritten),
		itoa(s.PacketsDecoded), itoa(s.ProtocolErrors),
		itoa(s.JobsPacket), itoa(s.JobsDisconnect),
		itoa(s.RoomsCreated), itoa(s.BroadcastsDropped),
	}
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		ConnectionsAccepted: c.ConnectionsAccepted.Load(),
		ConnectionsRejected: c.ConnectionsRejected.Load(),
		BytesRead:           c.BytesRead.Load(),
		BytesWritten:        c.BytesWritten.Load(),
		PacketsDecoded:      c.PacketsDecoded.Load(),
		ProtocolErrors:      c.ProtocolErrors.Load(),
		JobsPacket:          c.JobsPacket.Load(),
		JobsDisconnect:      c.JobsDisconnect.Load(),
		RoomsCreated:        c.RoomsCreated.Load(),
		BroadcastsDropped:   c.BroadcastsDropped.Load(),
	}
}
