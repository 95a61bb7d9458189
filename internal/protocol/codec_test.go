package protocol

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		pkt  Packet
	}{
		{"empty payload", Packet{Type: JoinRoom}},
		{"chat", Packet{Type: Chat, Payload: []byte("hi")}},
		{"max payload", Packet{Type: GameAction, Payload: bytes.Repeat([]byte{'x'}, MaxPayload)}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			wire, err := Encode(c.pkt)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			buf := NewBuffer(4096)
			if _, err := buf.Write(wire); err != nil {
				t.Fatalf("Write: %v", err)
			}

			got, ok, err := buf.Next()
			if err != nil {
				t.Fatalf("Next returned error: %v", err)
			}
			if !ok {
				t.Fatalf("Next reported NeedMore on a complete packet")
			}
			if got.Type != c.pkt.Type || !bytes.Equal(got.Payload, c.pkt.Payload) {
				t.Fatalf("round trip mismatch: got %+v, want %+v", got, c.pkt)
			}
			if buf.Len() != 0 {
				t.Fatalf("expected buffer to be fully drained, got %d bytes left", buf.Len())
			}
		})
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := Encode(Packet{Type: Chat, Payload: bytes.Repeat([]byte{'x'}, MaxPayload+1)})
	if err == nil {
		t.Fatalf("expected Encode to reject an oversized payload")
	}
}

// TestMultiplePacketsAcrossChunks exercises the framing round-trip
// property: however a concatenated sequence of packets is chunked on the
// wire, Next applied in a loop recovers exactly that sequence.
func TestMultiplePacketsAcrossChunks(t *testing.T) {
	want := []Packet{
		{Type: JoinRoom},
		{Type: Chat, Payload: []byte("hello")},
		{Type: LeaveRoom},
		{Type: Chat, Payload: []byte("ABCD")},
	}

	var wire []byte
	for _, p := range want {
		w, err := Encode(p)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		wire = append(wire, w...)
	}

	chunkSizes := []int{1, 3, 7, len(wire)}
	for _, chunk := range chunkSizes {
		buf := NewBuffer(8192)
		var got []Packet
		for off := 0; off < len(wire); off += chunk {
			end := off + chunk
			if end > len(wire) {
				end = len(wire)
			}
			if _, err := buf.Write(wire[off:end]); err != nil {
				t.Fatalf("chunk=%d Write: %v", chunk, err)
			}
			for {
				pkt, ok, err := buf.Next()
				if err != nil {
					t.Fatalf("chunk=%d Next: %v", chunk, err)
				}
				if !ok {
					break
				}
				got = append(got, pkt)
			}
		}

		if len(got) != len(want) {
			t.Fatalf("chunk=%d: got %d packets, want %d", chunk, len(got), len(want))
		}
		for i := range want {
			if got[i].Type != want[i].Type || !bytes.Equal(got[i].Payload, want[i].Payload) {
				t.Fatalf("chunk=%d packet %d mismatch: got %+v, want %+v", chunk, i, got[i], want[i])
			}
		}
	}
}

func TestNextNeedsMoreDoesNotMutate(t *testing.T) {
	buf := NewBuffer(4096)
	partial := []byte{0x00, 0x05, 0x00, 0x01, 'A'} // length=5, only 1 of 3 payload bytes present
	if _, err := buf.Write(partial); err != nil {
		t.Fatalf("Write: %v", err)
	}

	before := append([]byte(nil), buf.data...)
	_, ok, err := buf.Next()
	if ok || err != nil {
		t.Fatalf("expected NeedMore, got ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(before, buf.data) {
		t.Fatalf("NeedMore must not mutate the buffer")
	}
}

func TestNextProtocolErrorZeroLength(t *testing.T) {
	buf := NewBuffer(4096)
	if _, err := buf.Write([]byte{0x00, 0x00, 0x00, 0x01}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, ok, err := buf.Next()
	if ok || err != ErrProtocolViolation {
		t.Fatalf("expected ErrProtocolViolation, got ok=%v err=%v", ok, err)
	}
}

func TestNextProtocolErrorOversizedLength(t *testing.T) {
	buf := NewBuffer(MaxPacketLen + 16)
	oversized := uint16(MaxPacketLen + 1)
	header := []byte{byte(oversized >> 8), byte(oversized), 0x00, 0x01}
	if _, err := buf.Write(header); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, ok, err := buf.Next()
	if ok || err != ErrProtocolViolation {
		t.Fatalf("expected ErrProtocolViolation, got ok=%v err=%v", ok, err)
	}
}

func TestWriteRejectsOverflow(t *testing.T) {
	buf := NewBuffer(4)
	if _, err := buf.Write([]byte{1, 2, 3, 4, 5}); err != ErrBufferFull {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}
}

// S4 from the test matrix: a zero length field is a protocol violation,
// the error on which the reactor disconnects that client.
func TestScenarioS4MalformedLength(t *testing.T) {
	buf := NewBuffer(64)
	if _, err := buf.Write([]byte{0x00, 0x00, 0x00, 0x01}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, _, err := buf.Next(); err != ErrProtocolViolation {
		t.Fatalf("expected protocol violation, got %v", err)
	}
}

// S5 from the test matrix: a packet split across two reads, with a delay
// between them, still decodes to exactly one packet.
func TestScenarioS5PartialPacketAcrossReads(t *testing.T) {
	buf := NewBuffer(64)
	first := []byte{0x00, 0x05, 0x00, 0x01, 'A', 'B', 'C'}
	second := []byte{'D'}

	if _, err := buf.Write(first); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, ok, err := buf.Next(); ok || err != nil {
		t.Fatalf("expected NeedMore after partial write, got ok=%v err=%v", ok, err)
	}

	if _, err := buf.Write(second); err != nil {
		t.Fatalf("Write: %v", err)
	}
	pkt, ok, err := buf.Next()
	if err != nil || !ok {
		t.Fatalf("expected a complete packet, got ok=%v err=%v", ok, err)
	}
	if pkt.Type != Chat || string(pkt.Payload) != "ABCD" {
		t.Fatalf("unexpected packet: %+v", pkt)
	}
}
