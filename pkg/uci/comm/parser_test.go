package comm

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/uci.go/pkg/uci/codec"
	"github.com/robotalks/uci.go/pkg/uci/msgs"
)

func TestParserScenario(t *testing.T) {
	msg := msgs.Map(msgs.P("temperature", msgs.Int(-5)), msgs.P("label", msgs.Text("ok")))
	payload := codec.Encode(msg)
	framed := Frame(1, 2, payload)

	for split := 1; split < len(framed); split++ {
		var p Parser
		pkt, err := p.Defragment(framed[:split])
		require.NoError(t, err)
		require.Nilf(t, pkt, "split %d", split)

		pkt, err = p.Defragment(framed[split:])
		require.NoError(t, err)
		require.NotNilf(t, pkt, "split %d", split)
		require.Equal(t, Header{GroupID: 1, Opcode: 2, Length: uint16(len(payload))}, pkt.Header)
		decoded, err := codec.Decode(pkt.Payload)
		require.NoError(t, err)
		require.True(t, msg.Equal(decoded))

		pkt, err = p.Next()
		require.NoError(t, err)
		require.Nil(t, pkt)
		require.Zero(t, p.Buffered())
	}
}

func TestParserStalledFrame(t *testing.T) {
	payload := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	framed := Frame(MakeGroupID(MTNotification, 1, false), 3, payload)
	next := Frame(MakeGroupID(MTNotification, 1, false), 4, nil)

	var p Parser
	pkt, err := p.Defragment(framed[:HeaderSize+6])
	require.NoError(t, err)
	require.Nil(t, pkt)
	require.Equal(t, HeaderSize+6, p.Buffered())

	pkt, err = p.Defragment(framed[HeaderSize+6 : HeaderSize+9])
	require.NoError(t, err)
	require.Nil(t, pkt)

	pkt, err = p.Defragment(append(framed[HeaderSize+9:], next[:2]...))
	require.NoError(t, err)
	require.NotNil(t, pkt)
	require.Equal(t, uint16(10), pkt.Length)
	require.Equal(t, payload, pkt.Payload)
	require.Equal(t, 2, p.Buffered())

	pkt, err = p.Defragment(next[2:])
	require.NoError(t, err)
	require.Equal(t, byte(4), pkt.OID())
	require.Empty(t, pkt.Payload)
}

func TestParserMultipleFramesInOneChunk(t *testing.T) {
	var stream []byte
	for i := byte(0); i < 3; i++ {
		stream = append(stream, Frame(MakeGroupID(MTResponse, 0, false), i, []byte{i})...)
	}
	var p Parser
	p.Feed(stream)
	for i := byte(0); i < 3; i++ {
		pkt, err := p.Next()
		require.NoError(t, err)
		require.Equal(t, i, pkt.OID())
		require.Equal(t, []byte{i}, pkt.Payload)
	}
	pkt, err := p.Next()
	require.NoError(t, err)
	require.Nil(t, pkt)
}

func TestParserFramingError(t *testing.T) {
	testCases := []struct {
		name   string
		junk   []byte
		errors int
	}{
		{"invalid message type", []byte{0xe0}, 1},
		{"too large", []byte{0x60, 0x00, 0xff}, 3},
		{"multiple junk bytes", []byte{0xff, 0xfe, 0x80}, 3},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			good := Frame(MakeGroupID(MTNotification, 2, false), 1, []byte{7})
			p := Parser{MaxPayload: 16}
			p.Feed(append(append([]byte{}, tc.junk...), good...))
			var errs int
			for {
				pkt, err := p.Next()
				if err != nil {
					var framingErr *FramingError
					require.True(t, errors.As(err, &framingErr))
					errs++
					continue
				}
				require.NotNil(t, pkt)
				require.Equal(t, []byte{7}, pkt.Payload)
				break
			}
			require.Equal(t, tc.errors, errs)
			require.Zero(t, p.Buffered())
		})
	}
}

func TestParserReset(t *testing.T) {
	var p Parser
	p.Feed([]byte{0x60, 0x01, 0x00})
	require.Equal(t, 3, p.Buffered())
	p.Reset()
	require.Zero(t, p.Buffered())
}

type parseOutcome struct {
	packets []*Packet
	errors  int
}

func parseChunks(chunks [][]byte) parseOutcome {
	var out parseOutcome
	var p Parser
	for _, chunk := range chunks {
		p.Feed(chunk)
		for {
			pkt, err := p.Next()
			if err != nil {
				out.errors++
				continue
			}
			if pkt == nil {
				break
			}
			out.packets = append(out.packets, pkt)
		}
	}
	return out
}

func TestParserChunkingInvariance(t *testing.T) {
	var stream []byte
	stream = append(stream, Frame(MakeGroupID(MTResponse, 0, false), 2, codec.Encode(msgs.Text("info")))...)
	stream = append(stream, 0xff)
	stream = append(stream, Frame(MakeGroupID(MTNotification, 2, false), 0, nil)...)
	stream = append(stream, Frame(MakeGroupID(MTNotification, 0xe, true), 2, make([]byte, 300))...)
	stream = append(stream, Frame(MakeGroupID(MTNotification, 0xe, false), 2, []byte{1, 2, 3})...)

	expect := parseChunks([][]byte{stream})
	require.Len(t, expect.packets, 4)
	require.Equal(t, 1, expect.errors)

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		var chunks [][]byte
		for rest := stream; len(rest) > 0; {
			n := 1 + r.Intn(len(rest))
			if n > 16 && r.Intn(2) == 0 {
				n = 1 + r.Intn(16)
			}
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		require.Equal(t, expect, parseChunks(chunks))
	}
}
