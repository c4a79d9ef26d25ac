package strix

import (
	"log/slog"

	"github.com/facebookgo/clock"
	"github.com/fogfish/opts"
)

var (
	// WithLogger sets the logger for warnings and handler failures.
	WithLogger = opts.ForName[Broker, *slog.Logger]("logger")
	// WithSlots shares a slot table between brokers or with key declarations
	// made before the broker exists.
	WithSlots = opts.ForName[Broker, *Slots]("slots")
	// WithAuthorizer sets the publish and subscribe permission check.
	WithAuthorizer = opts.ForName[Broker, Authorizer]("authorizer")
	// WithStageResolver sets the lookup for executors not bound on the broker.
	WithStageResolver = opts.ForName[Broker, StageResolver]("stages")
	// WithObserver sets the observer told about publishes and deliveries.
	WithObserver = opts.ForName[Broker, Observer]("observer")
	// WithClock sets the clock used for event timestamps and the scheduler.
	WithClock = opts.ForName[Broker, clock.Clock]("clock")
	// WithDefaultStage sets the stage for topics without a stage mapping.
	WithDefaultStage = opts.ForName[Broker, string]("defaultStage")
)

// DefaultReentrant sets the reentrancy of registrations that do not declare it.
func DefaultReentrant(reentrant bool) opts.Option[Broker] {
	return opts.Type[Broker](func(b *Broker) error {
		b.defaultReentrant.Store(reentrant)
		return nil
	})
}

// WithStage binds an executor to a stage name.
func WithStage(stage string, x Executor) opts.Option[Broker] {
	return opts.Type[Broker](func(b *Broker) error {
		b.bound.Add(stage, x)
		return nil
	})
}

// WithStageMapping routes the topics matching pattern to stage.
func WithStageMapping(pattern, stage string) opts.Option[Broker] {
	return opts.Type[Broker](func(b *Broker) error {
		b.mappings = append(b.mappings, [2]string{pattern, stage})
		return nil
	})
}
