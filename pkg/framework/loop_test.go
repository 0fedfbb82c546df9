package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopPriorityOrder(t *testing.T) {
	var order []int
	record := func(n int) Controller {
		return ControlFunc(func(cc ControlContext) error {
			order = append(order, n)
			require.Equal(t, n, cc.PriorityLevel())
			return nil
		})
	}
	l := NewLoop().
		AddController(PrLvLow, record(PrLvLow)).
		AddController(PrLvTop, record(PrLvTop)).
		AddController(PrLvTimers, record(PrLvTimers), ControlFunc(func(ControlContext) error {
			return errors.New("ignored")
		}))
	l.runIteration(context.Background())
	require.Equal(t, []int{PrLvTop, PrLvTimers, PrLvLow}, order)
}

func TestLoopMessages(t *testing.T) {
	var seen []Message
	l := NewLoop()
	l.AddController(PrLvHigh, ControlFunc(func(cc ControlContext) error {
		cc.Messages().ProcessMessages(func(msg Message) bool {
			return msg.(int)%2 == 0
		})
		return nil
	}))
	l.AddController(PrLvLow, ControlFunc(func(cc ControlContext) error {
		cc.Messages().ProcessMessages(func(msg Message) bool {
			seen = append(seen, msg)
			return false
		})
		require.Equal(t, 2, cc.Messages().Len())
		return nil
	}))
	for i := 1; i <= 4; i++ {
		l.PostMessage(i)
	}
	l.runIteration(context.Background())
	require.Equal(t, []Message{1, 3}, seen)

	seen = nil
	l.runIteration(context.Background())
	require.Empty(t, seen)
}

func TestLoopClock(t *testing.T) {
	now := time.Unix(42, 0)
	var got time.Time
	l := NewLoop()
	l.Clock = func() time.Time { return now }
	l.AddController(PrLvTimers, ControlFunc(func(cc ControlContext) error {
		got = cc.Time()
		return nil
	}))
	l.runIteration(context.Background())
	require.Equal(t, now, got)
}

func TestLoopRunnablePostsMessage(t *testing.T) {
	receivedCh := make(chan Message, 1)
	l := NewLoop()
	l.Interval = time.Hour
	l.AddRunnable(RunFunc(func(ctx context.Context) error {
		ctl := LoopCtlFrom(ctx)
		ctl.PostMessage("hello")
		ctl.TriggerNext()
		<-ctx.Done()
		return ctx.Err()
	}))
	l.AddController(PrLvReports, ControlFunc(func(cc ControlContext) error {
		cc.Messages().ProcessMessages(func(msg Message) bool {
			receivedCh <- msg
			return true
		})
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := make(chan error, 1)
	go func() {
		resultCh <- l.Run(ctx)
	}()
	select {
	case msg := <-receivedCh:
		require.Equal(t, "hello", msg)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
	cancel()
	require.Equal(t, context.Canceled, <-resultCh)
}

func TestLoopStopsOnRunnableError(t *testing.T) {
	boom := errors.New("boom")
	l := NewLoop()
	l.AddRunnable(
		NamedRun("failing", RunFunc(func(ctx context.Context) error {
			return boom
		})),
		RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	)
	err := l.Run(context.Background())
	require.True(t, errors.Is(err, boom))
}

func TestLoopCtlFromWithoutLoop(t *testing.T) {
	require.Nil(t, LoopCtlFrom(context.Background()))
}
