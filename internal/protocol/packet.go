// Package protocol implements the wire framing and codec for chatd's
// length-prefixed packets: recovering packet boundaries from a stream of
// bytes delivered in arbitrary chunks, and serializing packets back onto
// the wire.
package protocol

import "fmt"

// Type identifies the kind of a packet, matching the wire enum.
type Type uint16

const (
	Chat       Type = 1
	JoinRoom   Type = 2
	LeaveRoom  Type = 3
	GameAction Type = 4
	GameResult Type = 5
)

func (t Type) String() string {
	switch t {
	case Chat:
		return "CHAT"
	case JoinRoom:
		return "JOIN_ROOM"
	case LeaveRoom:
		return "LEAVE_ROOM"
	case GameAction:
		return "GAME_ACTION"
	case GameResult:
		return "GAME_RESULT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint16(t))
	}
}

const (
	// MaxPayload bounds a packet's payload in bytes.
	MaxPayload = 1024
	// headerSize is the on-wire length of the length+type prefix.
	headerSize = 4
	// MaxPacketLen is the largest legal value of the wire "length" field:
	// sizeof(type) + MaxPayload.
	MaxPacketLen = 2 + MaxPayload
)

// Packet is a decoded protocol message. Length is sizeof(type)+len(Payload)
// and is only meaningful on the wire; callers construct Packet with just
// Type and Payload and let Encode compute it.
type Packet struct {
	Type    Type
	Payload []byte
}

// WireLength returns the value that would go in the wire "length" field.
func (p Packet) WireLength() int {
	return 2 + len(p.Payload)
}
