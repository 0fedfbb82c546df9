package comm

import "fmt"

// Segment splits a packet whose payload exceeds maxPayload into
// segments with PBF set on all but the last one. maxPayload is capped
// at MaxMessage, which is also used if maxPayload <= 0.
func Segment(pkt *Packet, maxPayload int) []*Packet {
	if maxPayload <= 0 || maxPayload > MaxMessage {
		maxPayload = MaxMessage
	}
	if len(pkt.Payload) <= maxPayload {
		return []*Packet{pkt}
	}
	var segs []*Packet
	for off := 0; off < len(pkt.Payload); off += maxPayload {
		end := off + maxPayload
		if end > len(pkt.Payload) {
			end = len(pkt.Payload)
		}
		seg := &Packet{
			Header: Header{
				GroupID: MakeGroupID(pkt.MT(), pkt.GID(), end < len(pkt.Payload)),
				Opcode:  pkt.Opcode,
				Length:  uint16(end - off),
			},
			Payload: pkt.Payload[off:end],
		}
		segs = append(segs, seg)
	}
	return segs
}

// Reassembler joins segments into complete packets.
type Reassembler struct {
	// MaxMessage limits the reassembled payload, MaxMessage if 0.
	MaxMessage int

	partial *Packet
}

// Add adds a packet. It returns the complete packet when pkt is
// unsegmented or the last segment.
// A *FramingError is returned when a partial message is dropped, which
// may come together with a complete packet.
func (r *Reassembler) Add(pkt *Packet) (*Packet, error) {
	var err error
	if r.partial != nil && !sameMessage(r.partial.Header, pkt.Header) {
		err = r.drop("segment interrupted")
	}
	if r.partial == nil {
		if !pkt.PBF() {
			return pkt, err
		}
		r.partial = &Packet{
			Header:  Header{GroupID: MakeGroupID(pkt.MT(), pkt.GID(), false), Opcode: pkt.Opcode},
			Payload: append([]byte(nil), pkt.Payload...),
		}
	} else {
		r.partial.Payload = append(r.partial.Payload, pkt.Payload...)
	}
	if len(r.partial.Payload) > r.maxMessage() {
		return nil, r.drop(fmt.Sprintf("message exceeds %d bytes", r.maxMessage()))
	}
	if pkt.PBF() {
		return nil, err
	}
	complete := r.partial
	complete.Length = uint16(len(complete.Payload))
	r.partial = nil
	return complete, err
}

// Pending tells if a partial message is being reassembled.
func (r *Reassembler) Pending() bool {
	return r.partial != nil
}

// Reset drops the partial message.
func (r *Reassembler) Reset() {
	r.partial = nil
}

func (r *Reassembler) drop(reason string) error {
	err := &FramingError{
		Header:    r.partial.Header,
		Reason:    reason,
		Discarded: len(r.partial.Payload),
	}
	r.partial = nil
	return err
}

func (r *Reassembler) maxMessage() int {
	if r.MaxMessage > 0 {
		return r.MaxMessage
	}
	return MaxMessage
}

func sameMessage(a, b Header) bool {
	return a.MT() == b.MT() && a.GID() == b.GID() && a.OID() == b.OID()
}
