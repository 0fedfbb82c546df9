package framework

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is the iteration interval of a Loop if not specified.
const DefaultInterval = 100 * time.Millisecond

// Loop runs controllers periodically in priority order, together with
// background runnables. Messages posted by runnables are consumed by
// controllers in the next iteration, those not taken are dropped
// after that.
type Loop struct {
	Interval time.Duration
	// Clock provides iteration time, time.Now if nil.
	Clock func() time.Time

	controllers [PriorityLevels][]Controller
	runners     []Runnable

	lock     sync.Mutex
	messages []Message
	wakeUpCh chan struct{}
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

type loopIteration struct {
	*Loop
	ctx           context.Context
	time          time.Time
	priorityLevel int
	messages      []Message
}

type loopCtxKey struct{}

// LoopCtlFrom gets LoopControl from the context passed to runnables.
func LoopCtlFrom(ctx context.Context) LoopControl {
	ctl, _ := ctx.Value(loopCtxKey{}).(LoopControl)
	return ctl
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{
		Interval: DefaultInterval,
		wakeUpCh: make(chan struct{}, 1),
	}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers to the loop.
// Controllers which are also Runnable are run in background as well.
func (l *Loop) AddController(priorityLevel int, ctls ...Controller) *Loop {
	l.controllers[priorityLevel] = append(l.controllers[priorityLevel], ctls...)
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnable implementions.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// Run implements Runnable. It stops when ctx is done or any of the
// runnables exits, and returns the aggregated errors of runnables.
func (l *Loop) Run(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runner := NewRunnerWith(context.WithValue(loopCtx, loopCtxKey{}, LoopControl(l)))
	for _, r := range l.runners {
		runner.Go(cancelOnExit(r, cancel))
	}

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-loopCtx.Done():
			if err := runner.Wait(); err != nil {
				return err
			}
			return ctx.Err()
		case <-ticker.C:
			l.runIteration(loopCtx)
		case <-l.wakeUpCh:
			l.runIteration(loopCtx)
		}
	}
}

// PostMessage implements LoopControl.
func (l *Loop) PostMessage(msg Message) {
	l.lock.Lock()
	l.messages = append(l.messages, msg)
	l.lock.Unlock()
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

func (l *Loop) now() time.Time {
	if l.Clock != nil {
		return l.Clock()
	}
	return time.Now()
}

func (l *Loop) runIteration(ctx context.Context) {
	iter := &loopIteration{Loop: l, time: l.now()}
	l.lock.Lock()
	iter.messages, l.messages = l.messages, nil
	l.lock.Unlock()
	iter.ctx = ctx
	for i := 0; i < PriorityLevels; i++ {
		iter.priorityLevel = i
		for _, ctl := range l.controllers[i] {
			if err := ctl.Control(iter); err != nil {
				glog.Errorf("controller error: %v", err)
			}
		}
	}
}

func (t *loopIteration) Context() context.Context {
	return t.ctx
}

func (t *loopIteration) Time() time.Time {
	return t.time
}

func (t *loopIteration) PriorityLevel() int {
	return t.priorityLevel
}

func (t *loopIteration) Messages() MessageStore {
	return t
}

func (t *loopIteration) ProcessMessages(fn func(Message) bool) {
	remains := t.messages[:0]
	for _, msg := range t.messages {
		if !fn(msg) {
			remains = append(remains, msg)
		}
	}
	for i := len(remains); i < len(t.messages); i++ {
		t.messages[i] = nil
	}
	t.messages = remains
}

func (t *loopIteration) Len() int {
	return len(t.messages)
}

func cancelOnExit(r Runnable, cancel context.CancelFunc) Runnable {
	run := RunFunc(func(ctx context.Context) error {
		defer cancel()
		return r.Run(ctx)
	})
	if named, ok := r.(Named); ok {
		return NamedRun(named.Name(), run)
	}
	return run
}
