package strix

import (
	"github.com/casualjim/strix/internal/delivery"
	"github.com/casualjim/strix/internal/executor"
)

// Executor runs asynchronous delivery tasks for a stage. Submit must not
// wait for the task to run; an executor that cannot take more work returns
// an error and the delivery is dropped.
type Executor = executor.Executor

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc = executor.Func

// InlineExecutor runs delivery tasks on the posting goroutine.
type InlineExecutor = executor.Inline

// GoExecutor runs every delivery task on its own goroutine.
type GoExecutor = executor.Go

// ErrQueueFull is returned by pools that have no room for another task.
var ErrQueueFull = executor.ErrQueueFull

// Result describes one handler invocation.
type Result = delivery.Result

// Outcome classifies a Result.
type Outcome = delivery.Outcome

const (
	Delivered = delivery.Delivered
	Failed    = delivery.Failed
	Panicked  = delivery.Panicked
	Filtered  = delivery.Filtered
	Cancelled = delivery.Cancelled
	Dropped   = delivery.Dropped
)

// Authorizer decides which topics a caller may publish to and which topic
// patterns a subscriber may register for.
type Authorizer interface {
	CanPublish(topic string) bool
	CanSubscribe(pattern string) bool
}

// AuthorizerFuncs builds an Authorizer from functions. A nil function allows
// everything.
type AuthorizerFuncs struct {
	Publish   func(topic string) bool
	Subscribe func(pattern string) bool
}

func (a AuthorizerFuncs) CanPublish(topic string) bool {
	return a.Publish == nil || a.Publish(topic)
}

func (a AuthorizerFuncs) CanSubscribe(pattern string) bool {
	return a.Subscribe == nil || a.Subscribe(pattern)
}

// StageResolver turns a stage name into an executor. ExecutorFor returns
// nil when the stage has none.
type StageResolver interface {
	ExecutorFor(stage string) Executor
}

// StageResolverFunc adapts a function to StageResolver.
type StageResolverFunc func(stage string) Executor

func (f StageResolverFunc) ExecutorFor(stage string) Executor {
	return f(stage)
}

// Observer is told about the broker's work. Implementations must be cheap
// and safe for concurrent use: they run on publishing and delivering
// goroutines.
type Observer interface {
	// EventPublished is called once per publish or post that passed
	// authorization, with the number of resolved handlers.
	EventPublished(topic string, handlers int, async bool)
	// EventDelivered is called for every delivery attempt that reached the
	// filter stage.
	EventDelivered(topic, subscriber string, result Result)
	// EventDropped is called when an asynchronous delivery could not be
	// handed to its executor.
	EventDropped(topic, subscriber string, err error)
	// RegistrationRemoved is called when the broker removes a registration
	// on its own, for example because its filter does not compile.
	RegistrationRemoved(subscriber string, reason error)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) EventPublished(string, int, bool) {}
func (NopObserver) EventDelivered(string, string, Result) {}
func (NopObserver) EventDropped(string, string, error) {}
func (NopObserver) RegistrationRemoved(string, error) {}
