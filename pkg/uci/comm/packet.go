package comm

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/robotalks/uci.go/pkg/uci/msgs"
)

// MessageType is the MT field of a packet.
type MessageType byte

// Message types.
const (
	MTData         MessageType = 0
	MTCommand      MessageType = 1
	MTResponse     MessageType = 2
	MTNotification MessageType = 3
)

// IsValid tells if the message type is defined.
func (mt MessageType) IsValid() bool {
	return mt <= MTNotification
}

// String implements fmt.Stringer.
func (mt MessageType) String() string {
	switch mt {
	case MTData:
		return "data"
	case MTCommand:
		return "cmd"
	case MTResponse:
		return "rsp"
	case MTNotification:
		return "ntf"
	}
	return fmt.Sprintf("mt(%d)", byte(mt))
}

// Packet size limits.
const (
	HeaderSize = 4
	// MaxPayload is the default limit of the payload of a single packet.
	MaxPayload = 4096
	// MaxMessage is the limit of a payload reassembled from segments.
	MaxMessage = math.MaxUint16
)

const (
	mtShift byte = 5
	pbfBit  byte = 0x10
	gidMask byte = 0x0f
)

// MakeGroupID composes the GroupID header byte.
func MakeGroupID(mt MessageType, gid byte, pbf bool) byte {
	b := byte(mt)<<mtShift | gid&gidMask
	if pbf {
		b |= pbfBit
	}
	return b
}

// Header is the fixed packet header.
type Header struct {
	GroupID byte
	Opcode  byte
	Length  uint16
}

// ParseHeader decodes a header from at least HeaderSize bytes.
func ParseHeader(b []byte) Header {
	return Header{
		GroupID: b[0],
		Opcode:  b[1],
		Length:  binary.BigEndian.Uint16(b[2:4]),
	}
}

// MT returns the message type.
func (h Header) MT() MessageType {
	return MessageType(h.GroupID >> mtShift)
}

// PBF tells if more segments follow.
func (h Header) PBF() bool {
	return h.GroupID&pbfBit != 0
}

// GID returns the group id.
func (h Header) GID() byte {
	return h.GroupID & gidMask
}

// OID returns the operation id.
func (h Header) OID() byte {
	return h.Opcode & msgs.OIDMask
}

// String implements fmt.Stringer.
func (h Header) String() string {
	pbf := ""
	if h.PBF() {
		pbf = "+"
	}
	return fmt.Sprintf("%s%s[%x:%02x] len=%d", h.MT(), pbf, h.GID(), h.OID(), h.Length)
}

// Packet is a complete UCI packet.
// It must not be mutated once handed to a handler.
type Packet struct {
	Header
	Payload []byte
}

// NewPacket creates a packet from parts.
func NewPacket(mt MessageType, gid, oid byte, payload []byte) *Packet {
	return &Packet{
		Header: Header{
			GroupID: MakeGroupID(mt, gid, false),
			Opcode:  oid & msgs.OIDMask,
			Length:  uint16(len(payload)),
		},
		Payload: payload,
	}
}

// Frame writes the header and payload into a new buffer.
// The payload must not exceed MaxMessage bytes.
func Frame(groupID, opcode byte, payload []byte) []byte {
	if len(payload) > MaxMessage {
		panic(fmt.Sprintf("comm: payload of %d bytes can't be framed", len(payload)))
	}
	b := make([]byte, HeaderSize+len(payload))
	b[0], b[1] = groupID, opcode
	binary.BigEndian.PutUint16(b[2:4], uint16(len(payload)))
	copy(b[HeaderSize:], payload)
	return b
}

// Bytes returns encoded bytes for sending.
// Length is always taken from the payload.
func (p *Packet) Bytes() []byte {
	return Frame(p.GroupID, p.Opcode, p.Payload)
}

// WriteTo writes encoded bytes.
func (p *Packet) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.Bytes())
	return int64(n), err
}

// String implements fmt.Stringer.
func (p *Packet) String() string {
	return fmt.Sprintf("%s % x", p.Header, p.Payload)
}
