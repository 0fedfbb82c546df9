package comm

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/uci.go/pkg/framework"
)

// FrameHandler is called once per complete packet, in arrival order.
type FrameHandler interface {
	HandleFrame(context.Context, *Packet) error
}

// HandleFrameFunc is func type of FrameHandler.
type HandleFrameFunc func(context.Context, *Packet) error

// HandleFrame implements FrameHandler.
func (f HandleFrameFunc) HandleFrame(ctx context.Context, pkt *Packet) error {
	return f(ctx, pkt)
}

// Options configures a Session.
type Options struct {
	// MaxPayload limits the payload of a received packet.
	MaxPayload int
	// MaxMessage limits a payload reassembled from segments.
	MaxMessage int
	// SegmentSize is the max payload of a sent packet, larger payloads
	// are segmented.
	SegmentSize int
	// ReadBufferSize is the size of buffer for a single read.
	ReadBufferSize int
}

// DefaultReadBufferSize is used when Options.ReadBufferSize is 0.
const DefaultReadBufferSize = 4096

// Session owns the link and the accumulated bytes of partial packets.
// Only one Read and one Write/Send may be in progress at a time,
// reentrant calls fail with ErrBusy.
type Session struct {
	Handler FrameHandler

	rw      io.ReadWriter
	opts    Options
	parser  Parser
	reasm   Reassembler
	readBuf []byte

	reading int32
	writing int32

	closed    int32
	closeOnce sync.Once
	closeErr  error
	doneCh    chan struct{}
	hooksLock sync.Mutex
	hooks     []func()
}

// NewSession creates a session over the link.
// If rw implements io.Closer, it's closed with the session.
func NewSession(rw io.ReadWriter, opts Options) *Session {
	if opts.SegmentSize <= 0 {
		opts.SegmentSize = MaxPayload
	}
	if opts.SegmentSize > MaxMessage {
		opts.SegmentSize = MaxMessage
	}
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = DefaultReadBufferSize
	}
	return &Session{
		rw:      rw,
		opts:    opts,
		parser:  Parser{MaxPayload: opts.MaxPayload},
		reasm:   Reassembler{MaxMessage: opts.MaxMessage},
		readBuf: make([]byte, opts.ReadBufferSize),
		doneCh:  make(chan struct{}),
	}
}

// Read runs one receive cycle: it reads once from the link and calls
// Handler for every completed packet. It returns the number of packets
// handled. Framing and handler errors don't stop the cycle, they are
// aggregated and returned after all packets are handled.
// A link failure is returned as *TransportError and closes the session.
func (s *Session) Read(ctx context.Context) (int, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	if !atomic.CompareAndSwapInt32(&s.reading, 0, 1) {
		return 0, ErrBusy
	}
	defer atomic.StoreInt32(&s.reading, 0)
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n, readErr := s.rw.Read(s.readBuf)
	if n > 0 {
		glog.V(3).Infof("RX % x", s.readBuf[:n])
		s.parser.Feed(s.readBuf[:n])
	}

	var errs framework.AggregatedError
	count := 0
	for {
		pkt, err := s.parser.Next()
		if err != nil {
			glog.Warningf("RX %v", err)
			errs.Add(err)
			continue
		}
		if pkt == nil {
			break
		}
		glog.V(2).Infof("RX %s", pkt.Header)
		if pkt, err = s.reasm.Add(pkt); err != nil {
			glog.Warningf("RX %v", err)
			errs.Add(err)
		}
		if pkt == nil {
			continue
		}
		count++
		if h := s.Handler; h != nil {
			errs.Add(h.HandleFrame(ctx, pkt))
		}
	}

	if readErr != nil {
		if s.isClosed() {
			return count, ErrClosed
		}
		err := &TransportError{Op: "read", Err: readErr}
		glog.Errorf("%v", err)
		s.Close()
		errs.Add(err)
	}
	return count, errs.Aggregate()
}

// Write sends a framed packet. A link failure is returned as
// *TransportError and closes the session.
func (s *Session) Write(ctx context.Context, packet []byte) error {
	if s.isClosed() {
		return ErrClosed
	}
	if !atomic.CompareAndSwapInt32(&s.writing, 0, 1) {
		return ErrBusy
	}
	defer atomic.StoreInt32(&s.writing, 0)
	return s.write(ctx, packet)
}

// Send frames and sends a packet, segmented by Options.SegmentSize.
func (s *Session) Send(ctx context.Context, pkt *Packet) error {
	if s.isClosed() {
		return ErrClosed
	}
	if !atomic.CompareAndSwapInt32(&s.writing, 0, 1) {
		return ErrBusy
	}
	defer atomic.StoreInt32(&s.writing, 0)
	for _, seg := range Segment(pkt, s.opts.SegmentSize) {
		glog.V(2).Infof("TX %s", seg.Header)
		if err := s.write(ctx, seg.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) write(ctx context.Context, packet []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	glog.V(3).Infof("TX % x", packet)
	n, err := s.rw.Write(packet)
	if err == nil && n < len(packet) {
		err = io.ErrShortWrite
	}
	if err != nil {
		if s.isClosed() {
			return ErrClosed
		}
		err = &TransportError{Op: "write", Err: err}
		glog.Errorf("%v", err)
		s.Close()
		return err
	}
	return nil
}

// Run pumps Read until ctx is cancelled or the session fails.
// The link must implement io.Closer for Run to be cancellable while
// blocked in reading.
func (s *Session) Run(ctx context.Context) error {
	return framework.RunWithContextCancel(ctx, func() { s.Close() }, func() error {
		for {
			_, err := s.Read(ctx)
			if err == nil {
				continue
			}
			if IsFatal(err) || errors.Is(err, ErrBusy) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			glog.V(1).Infof("read cycle: %v", err)
		}
	})
}

// Close closes the session and the link. It's safe to call multiple
// times, hooks registered by OnClose run once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		atomic.StoreInt32(&s.closed, 1)
		if closer, ok := s.rw.(io.Closer); ok {
			s.closeErr = closer.Close()
		}
		close(s.doneCh)
		s.hooksLock.Lock()
		hooks := s.hooks
		s.hooks = nil
		s.hooksLock.Unlock()
		for _, fn := range hooks {
			fn()
		}
		glog.V(1).Info("session closed")
	})
	return s.closeErr
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.doneCh
}

// OnClose registers a hook called when the session is closed.
// It's called immediately if the session is already closed.
func (s *Session) OnClose(fn func()) {
	s.hooksLock.Lock()
	if !s.isClosed() {
		s.hooks = append(s.hooks, fn)
		s.hooksLock.Unlock()
		return
	}
	s.hooksLock.Unlock()
	fn()
}

func (s *Session) isClosed() bool {
	return atomic.LoadInt32(&s.closed) != 0
}
