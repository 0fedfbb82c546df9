package comm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/uci.go/pkg/uci/codec"
	"github.com/robotalks/uci.go/pkg/uci/msgs"
)

type fakePlatform struct {
	lock    sync.Mutex
	inits   int
	exits   int
	reports []*msgs.Report
	initErr error
}

func (p *fakePlatform) Init(ctx context.Context) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.inits++
	return p.initErr
}

func (p *fakePlatform) Exit() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.exits++
}

func (p *fakePlatform) Report(ctx context.Context, r *msgs.Report) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.reports = append(p.reports, r)
	return nil
}

type dispatcherTestEnv struct {
	t        *testing.T
	link     *fakeLink
	session  *Session
	platform *fakePlatform
	disp     *Dispatcher
	now      time.Time
}

func newDispatcherTestEnv(t *testing.T, timeout time.Duration) *dispatcherTestEnv {
	env := &dispatcherTestEnv{
		t:        t,
		link:     newFakeLink(4),
		platform: &fakePlatform{},
		now:      time.Unix(1000, 0),
	}
	env.session = NewSession(env.link, Options{})
	env.disp = NewDispatcher(env.session, env.platform, DispatcherOptions{
		Timeout: timeout,
		Clock:   func() time.Time { return env.now },
	})
	return env
}

func (e *dispatcherTestEnv) init() *dispatcherTestEnv {
	require.NoError(e.t, e.disp.Init(context.Background()))
	return e
}

// receive pushes a packet from the device and runs one read cycle.
func (e *dispatcherTestEnv) receive(mt MessageType, gid, oid byte, payload []byte) error {
	e.link.push(NewPacket(mt, gid, oid, payload).Bytes())
	n, err := e.session.Read(context.Background())
	require.Equal(e.t, 1, n)
	return err
}

func TestDispatcherNotReady(t *testing.T) {
	env := newDispatcherTestEnv(t, 0)
	_, err := env.disp.Do(context.Background(), msgs.GroupCore, msgs.OIDCoreDeviceInfo, msgs.Map())
	require.Equal(t, ErrNotReady, err)

	env.platform.initErr = errors.New("no power")
	err = env.disp.Init(context.Background())
	var initErr *InitError
	require.True(t, errors.As(err, &initErr))

	env.platform.initErr = nil
	require.NoError(t, env.disp.Init(context.Background()))
	require.NoError(t, env.disp.Init(context.Background()))
	require.Equal(t, 2, env.platform.inits)
}

func TestDispatcherCommand(t *testing.T) {
	env := newDispatcherTestEnv(t, 0).init()
	ctx := context.Background()
	payload := msgs.Map(msgs.P("verbose", msgs.Int(1)))

	cmd, err := env.disp.Do(ctx, msgs.GroupCore, msgs.OIDCoreDeviceInfo, payload)
	require.NoError(t, err)
	require.Equal(t, StateAwaitingResponse, cmd.State())
	require.Equal(t, Frame(0x20, msgs.OIDCoreDeviceInfo, codec.Encode(payload)), env.link.written(t))
	_, err = cmd.Result()
	require.Equal(t, ErrPending, err)

	_, err = env.disp.Do(ctx, msgs.GroupCore, msgs.OIDCoreGetCaps, msgs.Map())
	require.Equal(t, ErrBusy, err)

	info := msgs.Map(msgs.P("version", msgs.Text("1.0")), msgs.P("status", msgs.Int(0)))
	require.NoError(t, env.receive(MTResponse, msgs.GroupCore, msgs.OIDCoreDeviceInfo, codec.Encode(info)))

	<-cmd.Done()
	require.Equal(t, StateCompleted, cmd.State())
	result, err := cmd.Result()
	require.NoError(t, err)
	require.True(t, info.Equal(result))
	require.Nil(t, env.disp.Pending())

	cmd, err = env.disp.Do(ctx, msgs.GroupCore, msgs.OIDCoreGetCaps, msgs.Map())
	require.NoError(t, err)
	require.Equal(t, StateAwaitingResponse, cmd.State())
}

func TestDispatcherCall(t *testing.T) {
	env := newDispatcherTestEnv(t, 0).init()
	type callResult struct {
		val msgs.Typed
		err error
	}
	resultCh := make(chan callResult, 1)
	go func() {
		v, err := env.disp.Call(context.Background(), msgs.GroupSession, msgs.OIDSessionGetCount, msgs.Map())
		resultCh <- callResult{v, err}
	}()
	env.link.written(t)
	require.NoError(t, env.receive(MTResponse, msgs.GroupSession, msgs.OIDSessionGetCount, codec.Encode(msgs.Uint(3))))
	r := <-resultCh
	require.NoError(t, r.err)
	require.True(t, msgs.Int(3).Equal(r.val))
}

func TestDispatcherUnmatchedResponse(t *testing.T) {
	env := newDispatcherTestEnv(t, 0).init()
	err := env.receive(MTResponse, msgs.GroupCore, msgs.OIDCoreDeviceInfo, codec.Encode(msgs.Map()))
	var dispatchErr *DispatchError
	require.True(t, errors.As(err, &dispatchErr))
	require.False(t, IsFatal(err))

	cmd, err := env.disp.Do(context.Background(), msgs.GroupCore, msgs.OIDCoreDeviceInfo, msgs.Map())
	require.NoError(t, err)
	err = env.receive(MTResponse, msgs.GroupCore, msgs.OIDCoreGetCaps, codec.Encode(msgs.Map()))
	require.True(t, errors.As(err, &dispatchErr))
	require.Equal(t, StateAwaitingResponse, cmd.State())

	err = env.receive(MTCommand, msgs.GroupCore, msgs.OIDCoreDeviceInfo, codec.Encode(msgs.Map()))
	require.True(t, errors.As(err, &dispatchErr))
	require.Equal(t, StateAwaitingResponse, cmd.State())
}

func TestDispatcherResponseDecodeError(t *testing.T) {
	env := newDispatcherTestEnv(t, 0).init()
	cmd, err := env.disp.Do(context.Background(), msgs.GroupCore, msgs.OIDCoreGetConfig, msgs.List())
	require.NoError(t, err)
	err = env.receive(MTResponse, msgs.GroupCore, msgs.OIDCoreGetConfig, []byte{0xf9, 0x3c, 0x00})
	var decodeErr *codec.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	require.False(t, IsFatal(err))

	require.Equal(t, StateCompleted, cmd.State())
	_, err = cmd.Result()
	require.True(t, errors.As(err, &decodeErr))
	require.Nil(t, env.disp.Pending())
}

func TestDispatcherReports(t *testing.T) {
	env := newDispatcherTestEnv(t, 0).init()
	diag := msgs.Map(msgs.P("rssi", msgs.Int(-70)), msgs.PI(1, msgs.Bytes([]byte{1, 2})))
	require.NoError(t, env.receive(MTNotification, msgs.GroupVendor, msgs.OIDVendorRangingDiag, codec.Encode(diag)))
	require.NoError(t, env.receive(MTNotification, 0xb, 0x2a, codec.Encode(msgs.Text("?"))))

	require.Len(t, env.platform.reports, 2)
	r := env.platform.reports[0]
	require.True(t, r.Recognized)
	require.Equal(t, "vendor.ranging_diagnostics", r.Name)
	require.True(t, diag.Equal(r.Payload))

	r = env.platform.reports[1]
	require.False(t, r.Recognized)
	require.Equal(t, byte(0xb), r.Group)
	require.Equal(t, byte(0x2a), r.OID)
	require.True(t, msgs.Text("?").Equal(r.Payload))

	err := env.receive(MTNotification, msgs.GroupRanging, msgs.OIDRangeData, []byte{0x82, 0x01})
	var decodeErr *codec.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	require.Len(t, env.platform.reports, 2)
}

func TestDispatcherReportWhileAwaiting(t *testing.T) {
	env := newDispatcherTestEnv(t, 0).init()
	cmd, err := env.disp.Do(context.Background(), msgs.GroupRanging, msgs.OIDRangeStart, msgs.Map())
	require.NoError(t, err)
	require.NoError(t, env.receive(MTNotification, msgs.GroupRanging, msgs.OIDRangeData, codec.Encode(msgs.Map())))
	require.Equal(t, StateAwaitingResponse, cmd.State())
	require.Len(t, env.platform.reports, 1)
	require.Equal(t, "range.data", env.platform.reports[0].Name)
}

func TestDispatcherExitCancels(t *testing.T) {
	env := newDispatcherTestEnv(t, 0).init()
	cmd, err := env.disp.Do(context.Background(), msgs.GroupCore, msgs.OIDCoreDeviceReset, msgs.Map())
	require.NoError(t, err)

	env.disp.Exit()
	<-cmd.Done()
	require.Equal(t, StateCancelled, cmd.State())
	_, err = cmd.Result()
	require.Equal(t, ErrCancelled, err)
	require.Equal(t, 1, env.platform.exits)
	<-env.session.Done()

	env.disp.Exit()
	require.Equal(t, 1, env.platform.exits)

	env.link.push(NewPacket(MTResponse, msgs.GroupCore, msgs.OIDCoreDeviceReset, codec.Encode(msgs.Map())).Bytes())
	_, err = env.session.Read(context.Background())
	require.Equal(t, ErrClosed, err)
	require.Equal(t, StateCancelled, cmd.State())

	_, err = env.disp.Do(context.Background(), msgs.GroupCore, msgs.OIDCoreDeviceReset, msgs.Map())
	require.Equal(t, ErrClosed, err)
	require.Equal(t, ErrClosed, env.disp.Init(context.Background()))
}

func TestDispatcherExitBeforeInit(t *testing.T) {
	env := newDispatcherTestEnv(t, 0)
	env.disp.Exit()
	require.Zero(t, env.platform.exits)
}

func TestDispatcherTransportErrorCancels(t *testing.T) {
	env := newDispatcherTestEnv(t, 0).init()
	cmd, err := env.disp.Do(context.Background(), msgs.GroupCore, msgs.OIDCoreDeviceInfo, msgs.Map())
	require.NoError(t, err)
	close(env.link.readCh)
	_, err = env.session.Read(context.Background())
	require.True(t, IsFatal(err))
	require.Equal(t, StateCancelled, cmd.State())
}

func TestDispatcherWriteFailure(t *testing.T) {
	env := newDispatcherTestEnv(t, 0).init()
	env.link.writeErr = errors.New("unplugged")
	cmd, err := env.disp.Do(context.Background(), msgs.GroupCore, msgs.OIDCoreDeviceInfo, msgs.Map())
	require.Nil(t, cmd)
	require.True(t, IsFatal(err))
	require.Nil(t, env.disp.Pending())
}

func TestDispatcherExpire(t *testing.T) {
	env := newDispatcherTestEnv(t, time.Second).init()
	cmd, err := env.disp.Do(context.Background(), msgs.GroupSession, msgs.OIDSessionInit, msgs.Map())
	require.NoError(t, err)
	require.Equal(t, env.now.Add(time.Second), cmd.Deadline)

	require.False(t, env.disp.Expire(env.now.Add(time.Second-time.Nanosecond)))
	require.Equal(t, StateAwaitingResponse, cmd.State())
	require.True(t, env.disp.Expire(env.now.Add(time.Second)))
	require.Equal(t, StateTimedOut, cmd.State())
	_, err = cmd.Result()
	require.Equal(t, ErrTimeout, err)
	require.False(t, env.disp.Expire(env.now.Add(time.Hour)))

	// a late response matches nothing.
	err = env.receive(MTResponse, msgs.GroupSession, msgs.OIDSessionInit, codec.Encode(msgs.Map()))
	var dispatchErr *DispatchError
	require.True(t, errors.As(err, &dispatchErr))
	require.Equal(t, StateTimedOut, cmd.State())

	_, err = env.disp.Do(context.Background(), msgs.GroupSession, msgs.OIDSessionInit, msgs.Map())
	require.NoError(t, err)
}

func TestDispatcherNoTimeoutNeverExpires(t *testing.T) {
	env := newDispatcherTestEnv(t, 0).init()
	cmd, err := env.disp.Do(context.Background(), msgs.GroupCore, msgs.OIDCoreDeviceInfo, msgs.Map())
	require.NoError(t, err)
	require.True(t, cmd.Deadline.IsZero())
	require.False(t, env.disp.Expire(env.now.Add(time.Hour)))
}

func TestCommandWaitContext(t *testing.T) {
	testCases := []struct {
		name   string
		ctx    func() (context.Context, context.CancelFunc)
		state  State
		expect error
	}{
		{
			"deadline",
			func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 10*time.Millisecond)
			},
			StateTimedOut,
			ErrTimeout,
		},
		{
			"cancel",
			func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx, cancel
			},
			StateCancelled,
			ErrCancelled,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newDispatcherTestEnv(t, 0).init()
			cmd, err := env.disp.Do(context.Background(), msgs.GroupCore, msgs.OIDCoreDeviceInfo, msgs.Map())
			require.NoError(t, err)
			ctx, cancel := tc.ctx()
			defer cancel()
			_, err = cmd.Wait(ctx)
			require.Equal(t, tc.expect, err)
			require.Equal(t, tc.state, cmd.State())
			require.Nil(t, env.disp.Pending())
		})
	}
}

func TestStateString(t *testing.T) {
	require.Equal(t, "awaiting-response", StateAwaitingResponse.String())
	require.True(t, StateTimedOut.IsTerminal())
	require.False(t, StateAwaitingResponse.IsTerminal())
}
