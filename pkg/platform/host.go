// Package platform hosts a UCI device: it drives the session in a
// framework.Loop, checks command deadlines and delivers reports.
package platform

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/uci.go/pkg/framework"
	"github.com/robotalks/uci.go/pkg/uci/comm"
	"github.com/robotalks/uci.go/pkg/uci/link"
	"github.com/robotalks/uci.go/pkg/uci/link/mqtt"
	"github.com/robotalks/uci.go/pkg/uci/msgs"
)

// Host implements comm.Platform.
type Host struct {
	Config     *Config
	Loop       *framework.Loop
	Session    *comm.Session
	Dispatcher *comm.Dispatcher

	// Handlers receive reports after subscribers, in the loop.
	Handlers []msgs.ReportHandler

	readyCh   chan struct{}
	singleton bool
	queue     *mqtt.Queue

	subsLock sync.Mutex
	subs     map[*subscriber]struct{}
	closed   bool
}

type subscriber struct {
	ch   chan *msgs.Report
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// NewHost creates a Host on the session.
func NewHost(conf *Config, s *comm.Session) (*Host, error) {
	opts, err := conf.DispatcherOptions()
	if err != nil {
		return nil, err
	}
	h := &Host{
		Config:  conf,
		Loop:    framework.NewLoop(),
		Session: s,
		readyCh: make(chan struct{}),
		subs:    make(map[*subscriber]struct{}),
	}
	h.Dispatcher = comm.NewDispatcher(s, h, opts)
	h.Loop.Interval = conf.ExpireInterval
	h.Loop.Add(h)
	return h, nil
}

// AddToLoop implements framework.LoopAdder.
func (h *Host) AddToLoop(l *framework.Loop) {
	l.AddRunnable(framework.NamedRun("session", h.Session))
	l.AddController(framework.PrLvTimers, framework.ControlFunc(h.expire))
	l.AddController(framework.PrLvReports, framework.ControlFunc(h.deliver))
}

// Open opens the link from config as the process-wide session
// and creates a Host on it.
func Open(ctx context.Context, conf *Config) (*Host, error) {
	s, err := comm.Init(link.Opener(ctx, conf.LinkURL), nil, conf.SessionOptions())
	if err != nil {
		return nil, err
	}
	h, err := NewHost(conf, s)
	if err != nil {
		comm.Exit()
		return nil, err
	}
	h.singleton = true
	return h, nil
}

// Run implements framework.Runnable.
func (h *Host) Run(ctx context.Context) error {
	defer h.closeSubscribers()
	defer h.Dispatcher.Exit()
	if err := h.Dispatcher.Init(ctx); err != nil {
		return err
	}
	return h.Loop.Run(ctx)
}

// Ready is closed when commands can be issued.
func (h *Host) Ready() <-chan struct{} {
	return h.readyCh
}

// Call issues a command and waits for the response.
func (h *Host) Call(ctx context.Context, gid, oid byte, payload msgs.Typed) (msgs.Typed, error) {
	return h.Dispatcher.Call(ctx, gid, oid, payload)
}

// Subscribe returns a channel receiving reports. Reports are dropped if
// the channel is full. The channel is closed by the returned func or
// when the host exits.
func (h *Host) Subscribe(size int) (<-chan *msgs.Report, func()) {
	sub := &subscriber{ch: make(chan *msgs.Report, size)}
	h.subsLock.Lock()
	defer h.subsLock.Unlock()
	if h.closed {
		sub.close()
		return sub.ch, func() {}
	}
	h.subs[sub] = struct{}{}
	return sub.ch, func() {
		h.subsLock.Lock()
		delete(h.subs, sub)
		h.subsLock.Unlock()
		sub.close()
	}
}

// Init implements comm.Platform.
func (h *Host) Init(ctx context.Context) error {
	if url := h.Config.MQTTURL; url != "" {
		q, err := mqtt.NewQueueFromURL(url)
		if err != nil {
			return err
		}
		if err := q.Connect(); err != nil {
			return err
		}
		h.queue = q
		h.Handlers = append(h.Handlers, mqtt.NewReportPublisher(q, h.Config.DeviceID))
		glog.Infof("publishing reports to %s as %s", url, h.Config.DeviceID)
	}
	close(h.readyCh)
	glog.Infof("host ready on %s", h.Config.LinkURL)
	return nil
}

// Exit implements comm.Platform.
func (h *Host) Exit() {
	if h.queue != nil {
		h.queue.Close()
	}
	h.closeSubscribers()
	if h.singleton {
		comm.Exit()
	}
	glog.Info("host exited")
}

// Report implements comm.Platform. Reports are delivered in the next
// loop iteration.
func (h *Host) Report(ctx context.Context, r *msgs.Report) error {
	glog.V(1).Infof("report %s", r)
	var ctl framework.LoopControl = h.Loop
	if loopCtl := framework.LoopCtlFrom(ctx); loopCtl != nil {
		ctl = loopCtl
	}
	ctl.PostMessage(r)
	ctl.TriggerNext()
	return nil
}

func (h *Host) expire(cc framework.ControlContext) error {
	h.Dispatcher.Expire(cc.Time())
	return nil
}

func (h *Host) deliver(cc framework.ControlContext) error {
	cc.Messages().ProcessMessages(func(msg framework.Message) bool {
		r, ok := msg.(*msgs.Report)
		if !ok {
			return false
		}
		h.fanOut(r)
		for _, handler := range h.Handlers {
			if err := handler.HandleReport(cc.Context(), r); err != nil {
				glog.Warningf("report %s: %v", r.Name, err)
			}
		}
		return true
	})
	return nil
}

func (h *Host) fanOut(r *msgs.Report) {
	h.subsLock.Lock()
	defer h.subsLock.Unlock()
	for sub := range h.subs {
		select {
		case sub.ch <- r:
		default:
			glog.Warningf("subscriber full, report %s dropped", r.Name)
		}
	}
}

func (h *Host) closeSubscribers() {
	h.subsLock.Lock()
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.closed = true
	h.subsLock.Unlock()
	for sub := range subs {
		sub.close()
	}
}
