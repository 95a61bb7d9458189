// Package chatstate owns the session table and room table (C5): the
// server's only view of "who is connected" and "who is in which room".
// It is a direct translation of the source's state.c, generalized to a
// Go-native concurrency discipline: the session table and each room's
// membership are guarded by their own locks, and rooms store member
// handles rather than raw session pointers so that no goroutine ever
// holds a reference into memory another goroutine might be freeing
// (design note "(b)" in the spec: resolve through the session table at
// broadcast time).
package chatstate

import "github.com/xtaci/chatd/internal/queue"

// NoRoom is the room_id sentinel meaning "not a member of any room".
const NoRoom = -1

// Session is the server-side bookkeeping for one connection, keyed by
// its handle. A session exists iff a worker has observed the handle at
// least once; it is created lazily on the first inbound packet.
type Session struct {
	ID     int
	Handle queue.Handle
	RoomID int
	Alive  bool
}
