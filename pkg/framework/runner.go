package framework

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/golang/glog"
)

// ErrForcedExit is returned by Runner.Wait when stop is requested twice.
var ErrForcedExit = errors.New("forced exit")

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun wraps a Runnable with a name.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{name: name, Runnable: runnable}
}

// Runner runs Runnables until all of them exit. The first failing
// Runnable stops the others and its error becomes the Cause.
// Exits with context.Canceled are not failures.
type Runner struct {
	Context context.Context

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	count   int
	lock    sync.Mutex
	errs    AggregatedError
	forceCh chan struct{}
}

// NewRunner creates a runner with a default background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a runner derived from ctx.
func NewRunnerWith(ctx context.Context) *Runner {
	r := &Runner{forceCh: make(chan struct{})}
	r.Context, r.cancel = context.WithCancel(ctx)
	return r
}

// HandleSignals stops the runner on CtrlC or SIGTERM, a second signal
// forces Wait to return.
func (r *Runner) HandleSignals() *Runner {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		glog.Infof("stop requested: %v", sig)
		r.Stop()
		<-sigCh
		glog.Error("stop requested again, force exit")
		close(r.forceCh)
	}()
	return r
}

// Go spawns Runnables with the runner context.
func (r *Runner) Go(runners ...Runnable) *Runner {
	return r.GoWith(r.Context, runners...)
}

// GoWith spawns Runnables with a specified context. The context should
// be derived from the runner context for Stop to take effect.
func (r *Runner) GoWith(ctx context.Context, runners ...Runnable) *Runner {
	for _, runner := range runners {
		name := strconv.Itoa(r.count)
		if named, ok := runner.(Named); ok {
			name = named.Name()
		}
		r.count++
		r.wg.Add(1)
		glog.V(4).Infof("start Runner[%s]", name)
		go func(runner Runnable, name string) {
			defer r.wg.Done()
			err := runner.Run(ctx)
			glog.V(4).Infof("Runner[%s] stopped: %v", name, err)
			if err != nil && !errors.Is(err, context.Canceled) {
				r.fail(fmt.Errorf("%s: %w", name, err))
			}
		}(runner, name)
	}
	return r
}

// Stop cancels the runner context.
func (r *Runner) Stop() {
	r.cancel()
}

// Cause returns the error of the first failing Runnable.
func (r *Runner) Cause() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if len(r.errs.Errors) == 0 {
		return nil
	}
	return r.errs.Errors[0]
}

// Wait waits until all Runnables exit and returns their failures,
// the Cause first.
func (r *Runner) Wait() error {
	doneCh := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(doneCh)
	}()
	select {
	case <-r.forceCh:
		return ErrForcedExit
	case <-doneCh:
	}
	r.cancel()
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.errs.Aggregate()
}

func (r *Runner) fail(err error) {
	r.lock.Lock()
	first := len(r.errs.Errors) == 0
	r.errs.Add(err)
	r.lock.Unlock()
	if first {
		glog.Errorf("stopping: %v", err)
		r.cancel()
	}
}

// RunWithContextCancel runs a func which doesn't accept a context.
// onCancel is called only when the context is canceled, and is expected
// to make fn return.
func RunWithContextCancel(ctx context.Context, onCancel func(), fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	select {
	case <-ctx.Done():
		if onCancel != nil {
			onCancel()
		}
		<-errCh
		return context.Canceled
	case err := <-errCh:
		return err
	}
}
