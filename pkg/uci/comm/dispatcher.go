package comm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/uci.go/pkg/uci/codec"
	"github.com/robotalks/uci.go/pkg/uci/msgs"
)

// Platform brackets the dispatcher lifecycle and receives reports.
type Platform interface {
	// Init is called once before any command is issued.
	Init(context.Context) error
	// Exit is called once when the dispatcher exits.
	Exit()
	// Report is called once per notification, within the Read cycle.
	Report(context.Context, *msgs.Report) error
}

// PlatformFuncs implements Platform with funcs, nil funcs are no-ops.
type PlatformFuncs struct {
	InitFunc   func(context.Context) error
	ExitFunc   func()
	ReportFunc func(context.Context, *msgs.Report) error
}

// Init implements Platform.
func (p PlatformFuncs) Init(ctx context.Context) error {
	if p.InitFunc != nil {
		return p.InitFunc(ctx)
	}
	return nil
}

// Exit implements Platform.
func (p PlatformFuncs) Exit() {
	if p.ExitFunc != nil {
		p.ExitFunc()
	}
}

// Report implements Platform.
func (p PlatformFuncs) Report(ctx context.Context, r *msgs.Report) error {
	if p.ReportFunc != nil {
		return p.ReportFunc(ctx, r)
	}
	return nil
}

// State is the state of a Command.
type State int

// Command states.
const (
	StateIdle State = iota
	StateAwaitingResponse
	StateCompleted
	StateCancelled
	StateTimedOut
)

// IsTerminal tells if the state is final.
func (s State) IsTerminal() bool {
	return s >= StateCompleted
}

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingResponse:
		return "awaiting-response"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateTimedOut:
		return "timed-out"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Command is an issued command awaiting its response.
type Command struct {
	GID      byte
	OID      byte
	Payload  msgs.Typed
	Deadline time.Time

	lock    sync.Mutex
	state   State
	result  msgs.Typed
	err     error
	doneCh  chan struct{}
	release func(*Command)
}

func newCommand(gid, oid byte, payload msgs.Typed) *Command {
	return &Command{
		GID:     gid & gidMask,
		OID:     oid & msgs.OIDMask,
		Payload: payload,
		doneCh:  make(chan struct{}),
	}
}

// State returns the current state.
func (c *Command) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// Done is closed when the command reaches a terminal state.
func (c *Command) Done() <-chan struct{} {
	return c.doneCh
}

// Result returns the decoded response, or the error the command ended
// with. It returns ErrPending before the command is done.
func (c *Command) Result() (msgs.Typed, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.state.IsTerminal() {
		return msgs.Typed{}, ErrPending
	}
	return c.result, c.err
}

// Wait waits for the result. If ctx expires first, the command is
// timed out (deadline) or cancelled (cancel).
func (c *Command) Wait(ctx context.Context) (msgs.Typed, error) {
	select {
	case <-c.doneCh:
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			c.finish(StateTimedOut, msgs.Typed{}, ErrTimeout)
		} else {
			c.finish(StateCancelled, msgs.Typed{}, ErrCancelled)
		}
	}
	return c.Result()
}

// String implements fmt.Stringer.
func (c *Command) String() string {
	return fmt.Sprintf("cmd[%x:%02x] %s", c.GID, c.OID, c.State())
}

// finish moves an awaiting command to a terminal state.
// Only the first call takes effect.
func (c *Command) finish(state State, result msgs.Typed, err error) bool {
	c.lock.Lock()
	if c.state != StateAwaitingResponse {
		c.lock.Unlock()
		return false
	}
	c.state, c.result, c.err = state, result, err
	release := c.release
	close(c.doneCh)
	c.lock.Unlock()
	if release != nil {
		release(c)
	}
	return true
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// Timeout sets the deadline of issued commands, 0 for none.
	// Deadlines are checked by Expire.
	Timeout time.Duration
	// Registry names reports, msgs.DefaultRegistry if nil.
	Registry *msgs.Registry
	// Codec encodes/decodes payloads, codec.Default if nil.
	Codec *codec.Codec
	// Clock provides the time for deadlines, time.Now if nil.
	Clock func() time.Time
}

type dispatcherState int

const (
	dispatcherNew dispatcherState = iota
	dispatcherReady
	dispatcherExited
)

// Dispatcher issues commands over a session, correlates responses and
// turns notifications into reports for the platform.
type Dispatcher struct {
	session  *Session
	platform Platform
	opts     DispatcherOptions

	lock    sync.Mutex
	state   dispatcherState
	pending *Command
}

// NewDispatcher creates a dispatcher and installs it as the handler
// of the session.
func NewDispatcher(s *Session, p Platform, opts DispatcherOptions) *Dispatcher {
	if opts.Registry == nil {
		opts.Registry = msgs.DefaultRegistry
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if p == nil {
		p = PlatformFuncs{}
	}
	d := &Dispatcher{session: s, platform: p, opts: opts}
	s.Handler = d
	s.OnClose(d.cancelPending)
	return d
}

// Session returns the session.
func (d *Dispatcher) Session() *Session {
	return d.session
}

// Init initializes the platform. Commands can only be issued after that.
func (d *Dispatcher) Init(ctx context.Context) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	switch d.state {
	case dispatcherReady:
		return nil
	case dispatcherExited:
		return ErrClosed
	}
	if err := d.platform.Init(ctx); err != nil {
		return &InitError{Err: err}
	}
	d.state = dispatcherReady
	glog.V(1).Info("dispatcher ready")
	return nil
}

// Exit cancels the pending command, closes the session and exits the
// platform if it was initialized.
func (d *Dispatcher) Exit() {
	d.lock.Lock()
	state := d.state
	d.state = dispatcherExited
	d.lock.Unlock()
	if state == dispatcherExited {
		return
	}
	d.cancelPending()
	if err := d.session.Close(); err != nil {
		glog.Warningf("close session: %v", err)
	}
	if state == dispatcherReady {
		d.platform.Exit()
	}
	glog.V(1).Info("dispatcher exited")
}

// Do issues a command. The returned command is awaiting response.
func (d *Dispatcher) Do(ctx context.Context, gid, oid byte, payload msgs.Typed) (*Command, error) {
	cmd := newCommand(gid, oid, payload)
	d.lock.Lock()
	switch {
	case d.state == dispatcherNew:
		d.lock.Unlock()
		return nil, ErrNotReady
	case d.state == dispatcherExited:
		d.lock.Unlock()
		return nil, ErrClosed
	case d.pending != nil:
		d.lock.Unlock()
		return nil, ErrBusy
	}
	// awaiting before the write, as the response may be handled before
	// Send returns.
	cmd.state = StateAwaitingResponse
	cmd.release = d.release
	if d.opts.Timeout > 0 {
		cmd.Deadline = d.opts.Clock().Add(d.opts.Timeout)
	}
	d.pending = cmd
	d.lock.Unlock()

	pkt := NewPacket(MTCommand, gid, oid, d.opts.Codec.Encode(payload))
	if err := d.session.Send(ctx, pkt); err != nil {
		d.release(cmd)
		return nil, err
	}
	glog.V(2).Infof("issued %s", cmd)
	return cmd, nil
}

// Call issues a command and waits for the result.
func (d *Dispatcher) Call(ctx context.Context, gid, oid byte, payload msgs.Typed) (msgs.Typed, error) {
	cmd, err := d.Do(ctx, gid, oid, payload)
	if err != nil {
		return msgs.Typed{}, err
	}
	return cmd.Wait(ctx)
}

// Pending returns the command awaiting response, nil if none.
func (d *Dispatcher) Pending() *Command {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.pending
}

// Expire times out the pending command if its deadline is not after now.
// It returns true if a command is timed out.
func (d *Dispatcher) Expire(now time.Time) bool {
	d.lock.Lock()
	cmd := d.pending
	d.lock.Unlock()
	if cmd == nil || cmd.Deadline.IsZero() || now.Before(cmd.Deadline) {
		return false
	}
	if !cmd.finish(StateTimedOut, msgs.Typed{}, ErrTimeout) {
		return false
	}
	glog.Warningf("%s", cmd)
	return true
}

// HandleFrame implements FrameHandler.
func (d *Dispatcher) HandleFrame(ctx context.Context, pkt *Packet) error {
	switch pkt.MT() {
	case MTResponse:
		return d.handleResponse(pkt)
	case MTNotification:
		return d.handleNotification(ctx, pkt)
	}
	return &DispatchError{Header: pkt.Header, Reason: "unexpected message type"}
}

func (d *Dispatcher) handleResponse(pkt *Packet) error {
	d.lock.Lock()
	cmd := d.pending
	d.lock.Unlock()
	if cmd == nil || cmd.GID != pkt.GID() || cmd.OID != pkt.OID() {
		err := &DispatchError{Header: pkt.Header, Reason: "no matching command"}
		glog.Warningf("%v", err)
		return err
	}
	v, err := d.opts.Codec.Decode(pkt.Payload)
	cmd.finish(StateCompleted, v, err)
	glog.V(2).Infof("%s", cmd)
	return err
}

func (d *Dispatcher) handleNotification(ctx context.Context, pkt *Packet) error {
	v, err := d.opts.Codec.Decode(pkt.Payload)
	if err != nil {
		glog.Warningf("%s: %v", pkt.Header, err)
		return err
	}
	r := msgs.NewReport(d.opts.Registry, pkt.GID(), pkt.OID(), v)
	glog.V(2).Infof("report %s", r.Name)
	return d.platform.Report(ctx, r)
}

// release clears the pending command if it's cmd.
func (d *Dispatcher) release(cmd *Command) {
	d.lock.Lock()
	if d.pending == cmd {
		d.pending = nil
	}
	d.lock.Unlock()
}

func (d *Dispatcher) cancelPending() {
	d.lock.Lock()
	cmd := d.pending
	d.lock.Unlock()
	if cmd != nil && cmd.finish(StateCancelled, msgs.Typed{}, ErrCancelled) {
		glog.V(1).Infof("%s", cmd)
	}
}
