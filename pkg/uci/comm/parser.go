package comm

// Parser accumulates received bytes and extracts complete packets.
// Bytes can be fed in arbitrary chunks, the extracted packets and
// their order don't depend on how the input is split.
type Parser struct {
	// MaxPayload limits the declared payload length, MaxPayload if 0.
	MaxPayload int

	buf []byte
}

// Feed appends received bytes.
func (p *Parser) Feed(data []byte) {
	p.buf = append(p.buf, data...)
}

// Next extracts the next complete packet.
// It returns nil without error when more bytes are needed.
// On an invalid header, one byte is discarded to find the next header
// and a *FramingError is returned, Next should be called again.
func (p *Parser) Next() (*Packet, error) {
	if len(p.buf) < HeaderSize {
		return nil, nil
	}
	h := ParseHeader(p.buf)
	var reason string
	switch {
	case !h.MT().IsValid():
		reason = "invalid message type"
	case int(h.Length) > p.maxPayload():
		reason = "payload too large"
	}
	if reason != "" {
		p.discard(1)
		return nil, &FramingError{Header: h, Reason: reason, Discarded: 1}
	}
	size := HeaderSize + int(h.Length)
	if len(p.buf) < size {
		return nil, nil
	}
	pkt := &Packet{Header: h, Payload: make([]byte, h.Length)}
	copy(pkt.Payload, p.buf[HeaderSize:size])
	p.discard(size)
	return pkt, nil
}

// Defragment feeds data and extracts the next complete packet, if any.
// Further packets already buffered are extracted by Next.
func (p *Parser) Defragment(data []byte) (*Packet, error) {
	p.Feed(data)
	return p.Next()
}

// Buffered returns the number of bytes not yet extracted.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// Reset drops all buffered bytes.
func (p *Parser) Reset() {
	p.buf = nil
}

func (p *Parser) maxPayload() int {
	if p.MaxPayload > 0 {
		return p.MaxPayload
	}
	return MaxPayload
}

func (p *Parser) discard(n int) {
	rest := len(p.buf) - n
	if rest == 0 {
		p.buf = p.buf[:0]
		return
	}
	copy(p.buf, p.buf[n:])
	p.buf = p.buf[:rest]
}
