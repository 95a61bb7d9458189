package chatstate

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/xtaci/chatd/internal/metrics"
	"github.com/xtaci/chatd/internal/protocol"
	"github.com/xtaci/chatd/internal/queue"
)

// Config carries the capacity limits the source fixes as compile-time
// constants (MAX_CLIENTS, MAX_ROOMS, MAX_ROOM_USER).
type Config struct {
	MaxClients  int
	MaxRooms    int
	MaxRoomUser int
}

// State is the process-wide session table and room table. It is a
// composed, explicitly-initialized value rather than a package global
// (design note: "model them as composed long-lived values"), owned
// exclusively by the worker pool; the reactor never touches it.
type State struct {
	cfg Config
	log *logrus.Entry
	mx  *metrics.Counters

	sessionsMu    sync.Mutex
	sessions      []*Session // dense, indexed by handle
	nextSessionID int

	roomsMu sync.Mutex
	rooms   []*Room
}

// New allocates a state layer sized per cfg.
func New(cfg Config, log *logrus.Entry, mx *metrics.Counters) *State {
	return &State{
		cfg:           cfg,
		log:           log,
		mx:            mx,
		sessions:      make([]*Session, cfg.MaxClients),
		nextSessionID: 1,
	}
}

func (s *State) validHandle(h queue.Handle) bool {
	return h >= 0 && int(h) < s.cfg.MaxClients
}

// SessionGet returns the session for h, or nil if none exists.
func (s *State) SessionGet(h queue.Handle) *Session {
	if !s.validHandle(h) {
		return nil
	}
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	return s.sessions[h]
}

// SessionCreate is idempotent: if a session already exists for h it is
// returned unchanged; otherwise one is allocated with the next
// session_id, alive=true, room=NoRoom. Allocation happens under the
// sessions lock so two workers racing on the same handle's first packet
// can never double-create.
func (s *State) SessionCreate(h queue.Handle) *Session {
	if !s.validHandle(h) {
		return nil
	}
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	if existing := s.sessions[h]; existing != nil {
		return existing
	}

	sess := &Session{
		ID:     s.nextSessionID,
		Handle: h,
		RoomID: NoRoom,
		Alive:  true,
	}
	s.nextSessionID++
	s.sessions[h] = sess

	s.log.WithFields(logrus.Fields{"session_id": sess.ID, "handle": h}).Debug("session created")
	return sess
}

// SessionRemove removes h's entry from the table before flipping
// alive=false, so that a concurrent SessionGet never observes a
// removed-but-alive session.
func (s *State) SessionRemove(h queue.Handle) {
	if !s.validHandle(h) {
		return
	}
	s.sessionsMu.Lock()
	sess := s.sessions[h]
	if sess == nil {
		s.sessionsMu.Unlock()
		return
	}
	s.sessions[h] = nil
	s.sessionsMu.Unlock()

	sess.Alive = false
	s.log.WithFields(logrus.Fields{"session_id": sess.ID, "handle": h}).Debug("session removed")
}

// AllHandles returns every handle slot up to MaxClients, for shutdown's
// full sweep.
func (s *State) AllHandles() []queue.Handle {
	out := make([]queue.Handle, s.cfg.MaxClients)
	for i := range out {
		out[i] = queue.Handle(i)
	}
	return out
}

// RoomCreate appends a new room with the next dense room_id. It fails
// (returns nil) once MaxRooms slots are in use.
func (s *State) RoomCreate() *Room {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()
	if len(s.rooms) >= s.cfg.MaxRooms {
		return nil
	}
	r := &Room{ID: len(s.rooms), maxMembers: s.cfg.MaxRoomUser}
	s.rooms = append(s.rooms, r)
	s.log.WithField("room_id", r.ID).Debug("room created")
	return r
}

// RoomGet returns the room at id, or nil if id is out of range.
func (s *State) RoomGet(id int) *Room {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()
	if id < 0 || id >= len(s.rooms) {
		return nil
	}
	return s.rooms[id]
}

// RoomFind returns the first room with free capacity, or nil.
func (s *State) RoomFind() *Room {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()
	for _, r := range s.rooms {
		if r.UserCount() < s.cfg.MaxRoomUser {
			return r
		}
	}
	return nil
}

// RoomJoin adds sess to r (idempotent, no-op past capacity) and, on
// success, sets sess.RoomID.
func (s *State) RoomJoin(r *Room, sess *Session) {
	if r == nil || sess == nil {
		return
	}
	if r.join(sess.Handle) {
		sess.RoomID = r.ID
		s.log.WithFields(logrus.Fields{"session_id": sess.ID, "room_id": r.ID}).Debug("joined room")
	}
}

// RoomLeave removes sess from its current room, if any, and clears
// sess.RoomID.
func (s *State) RoomLeave(sess *Session) {
	if sess == nil || sess.RoomID < 0 {
		return
	}
	r := s.RoomGet(sess.RoomID)
	if r == nil {
		sess.RoomID = NoRoom
		return
	}
	r.leave(sess.Handle)
	s.log.WithFields(logrus.Fields{"session_id": sess.ID, "room_id": r.ID}).Debug("left room")
	sess.RoomID = NoRoom
}

// RoomBroadcast fans pkt out to every other living member of r. Targets
// are collected under the room lock and released before any send is
// issued, so broadcast never blocks peers on slow I/O and never nests
// the room lock inside the outbox's internal queue lock. The chat
// transform (append '\n', rebuild as a CHAT packet) happens outside the
// lock; a broadcast that would overflow MaxPayload is dropped.
func (s *State) RoomBroadcast(r *Room, sender *Session, pkt protocol.Packet, out Outbox) {
	if r == nil {
		return
	}
	except := queue.Handle(-1)
	if sender != nil {
		except = sender.Handle
	}
	targets := r.targets(except)
	if len(targets) == 0 {
		return
	}
	if len(pkt.Payload) == 0 {
		return
	}

	outPkt := protocol.Packet{
		Type:    protocol.Chat,
		Payload: append(append([]byte(nil), pkt.Payload...), '\n'),
	}
	if len(outPkt.Payload) > protocol.MaxPayload {
		s.mx.BroadcastsDropped.Add(1)
		s.log.WithField("room_id", r.ID).Warn("dropping broadcast: would overflow MaxPayload")
		return
	}

	for _, h := range targets {
		// Re-check liveness: a member may have disconnected between the
		// targets() snapshot and this loop, in which case SessionGet
		// returns nil or a dead session and the send is simply skipped;
		// the reactor's own existence check is the final authority.
		if live := s.sessionForHandle(h); live == nil || !live.Alive {
			continue
		}
		out.Send(h, outPkt)
	}
	out.Wakeup()
}

func (s *State) sessionForHandle(h queue.Handle) *Session {
	return s.SessionGet(h)
}
