package worker

import (
	"github.com/sirupsen/logrus"

	"github.com/xtaci/chatd/internal/chatstate"
	"github.com/xtaci/chatd/internal/protocol"
	"github.com/xtaci/chatd/internal/queue"
)

// handlePacket dispatches a decoded packet for an already-live session,
// translating logic.c's handle_packet switch.
func (p *Pool) handlePacket(sess *chatstate.Session, pkt protocol.Packet, log *logrus.Entry) {
	switch pkt.Type {
	case protocol.JoinRoom:
		if sess.RoomID != chatstate.NoRoom {
			return // already in a room: silently ignore, per spec leniency
		}
		r := p.state.RoomFind()
		if r == nil {
			r = p.state.RoomCreate()
			if r != nil {
				p.mx.RoomsCreated.Add(1)
			}
		}
		if r == nil {
			log.WithField("session_id", sess.ID).Warn("no room capacity available")
			return // at MaxRooms capacity: silently ignore
		}
		p.state.RoomJoin(r, sess)

	case protocol.Chat:
		if sess.RoomID == chatstate.NoRoom {
			return // chat before join: silently ignore (S2)
		}
		r := p.state.RoomGet(sess.RoomID)
		if r == nil {
			return
		}
		p.state.RoomBroadcast(r, sess, pkt, p.outbox)

	case protocol.LeaveRoom:
		if sess.RoomID == chatstate.NoRoom {
			return
		}
		p.state.RoomLeave(sess)

	case protocol.GameAction, protocol.GameResult:
		// Reserved, currently ignored by the server.

	default:
		log.WithField("type", pkt.Type).Debug("ignoring unknown packet type")
	}
}

// handleDisconnect tears down session/room state for a handle the
// reactor has already closed, translating logic.c's handle_disconnect.
func (p *Pool) handleDisconnect(h queue.Handle, log *logrus.Entry) {
	sess := p.state.SessionGet(h)
	if sess == nil {
		return // already cleaned up, or never created
	}
	if sess.RoomID != chatstate.NoRoom {
		p.state.RoomLeave(sess)
	}
	p.state.SessionRemove(h)
	log.WithField("handle", h).Debug("disconnect processed")
}

// handleShutdown performs the full shutdown sweep over every handle
// slot, translating logic.c's handle_shutdown. Every worker that
// receives a JobShutdown runs this independently; it is safe because
// every operation it calls is idempotent against an already-removed
// session.
func (p *Pool) handleShutdown(log *logrus.Entry) {
	log.Debug("graceful shutdown sweep starting")
	for _, h := range p.state.AllHandles() {
		sess := p.state.SessionGet(h)
		if sess == nil {
			continue
		}
		if sess.RoomID != chatstate.NoRoom {
			p.state.RoomLeave(sess)
		}
		p.state.SessionRemove(h)
	}
	log.Debug("graceful shutdown sweep complete")
}
