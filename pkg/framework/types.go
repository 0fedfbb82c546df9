package framework

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Message is anything posted to a Loop and consumed by controllers
// in the next iteration.
type Message interface{}

// Controller defines the logic run in every loop iteration.
type Controller interface {
	Control(ControlContext) error
}

// ControlFunc defines the func form of Controller.
type ControlFunc func(ControlContext) error

// Control implements Controller.
func (f ControlFunc) Control(ctx ControlContext) error {
	return f(ctx)
}

// TimeSource provides the time for controlling logic.
type TimeSource interface {
	Time() time.Time
}

// ControlContext provides the context of current iteration.
type ControlContext interface {
	TimeSource
	// Context retrieves context.Context.
	Context() context.Context
	// PriorityLevel gets the current priority level.
	PriorityLevel() int
	// Messages retrieves the messages collected when
	// this iteration starts.
	Messages() MessageStore

	LoopControl
}

// PriorityLevels is the total levels of priorities.
const PriorityLevels int = 16

// Predefine priority levels
const (
	PrLvTop    int = 0
	PrLvHigh   int = 4
	PrLvNormal int = 8
	PrLvLow    int = 12
	PrLvIdle   int = PriorityLevels - 1

	// PrLvTimers is the alias of priority level for deadline checks.
	PrLvTimers = PrLvHigh
	// PrLvReports is the alias of priority level for report delivery.
	PrLvReports = PrLvNormal
)

// LoopControl exposes access to the loop.
type LoopControl interface {
	// PostMessage enqueues the message for next iteration.
	PostMessage(Message)
	// TriggerNext schedules the next iteration to be executed
	// immediately after the current iteration.
	TriggerNext()
}

// MessageStore provides access to the messages of an iteration.
type MessageStore interface {
	// ProcessMessages calls fn with each message in posting order.
	// Messages for which fn returns true are taken and not seen by
	// later controllers.
	ProcessMessages(fn func(Message) bool)
	// Len returns the number of messages not taken.
	Len() int
}
