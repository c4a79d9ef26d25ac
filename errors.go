package strix

import "errors"

var (
	// ErrReadOnly is returned when mutating an event that was already published.
	ErrReadOnly = errors.New("strix: event is read-only")
	// ErrPublishDenied is returned when the authorizer rejects a publish.
	ErrPublishDenied = errors.New("strix: publish denied")
	// ErrSubscribeDenied is returned when the authorizer rejects a topic pattern.
	ErrSubscribeDenied = errors.New("strix: subscribe denied")
	// ErrStageUnavailable is returned by asynchronous posts whose stage has
	// no executor bound. Nothing is delivered in that case.
	ErrStageUnavailable = errors.New("strix: no executor bound to stage")
	// ErrClosed is returned after the broker was closed.
	ErrClosed = errors.New("strix: broker closed")
	// ErrNotInitialized is returned when calling into a nil broker.
	ErrNotInitialized = errors.New("strix: broker not initialized")
	// ErrNilHandler is returned when registering without a handler.
	ErrNilHandler = errors.New("strix: handler is required")
	// ErrNilEvent is returned when publishing a nil event.
	ErrNilEvent = errors.New("strix: event is required")
	// ErrNoTopics is returned when a registration has no valid topic pattern.
	ErrNoTopics = errors.New("strix: no valid topic pattern")
	// ErrInvalidSubscriber is returned for an empty subscriber identity.
	ErrInvalidSubscriber = errors.New("strix: subscriber identity is required")
	// ErrInvalidTopic is returned for malformed topic names.
	ErrInvalidTopic = errors.New("strix: invalid topic name")
	// ErrCycle is returned when attaching a parent would make an event its own ancestor.
	ErrCycle = errors.New("strix: parent would create a cycle")
	// ErrParentSet is returned when attaching a second, different parent.
	ErrParentSet = errors.New("strix: event already has a parent")
)
