/*
Package strix is an in-process, topic based event broker.

Publishers create events on slash-delimited topics such as
"app/orders/created" and hand them to a Broker. The broker resolves the
handlers registered for the topic and delivers the event to each of them,
either synchronously on the publishing goroutine or asynchronously on the
executor of the topic's stage.

# Basic Usage

	b := strix.NewBroker(strix.WithLogger(logger))
	defer b.Close(ctx)

	err := b.Register(ctx, "audit", strix.HandlerFunc(func(ctx context.Context, evt *strix.Event) error {
	    logger.Info("order", "id", evt.Property("order_id"))
	    return nil
	}), strix.Topics("app/orders/*"), strix.Rank(10), strix.Filter("(total>=100)"))

	evt, _ := b.CreateTopic("app/orders/created")
	_ = evt.Set("order_id", "o-123")
	_ = evt.Set("total", 250)
	handle, err := b.Post(ctx, evt)

# Topics and patterns

A registration lists topic patterns: exact topic names, "prefix/*" for
every topic below prefix, and "*" for every topic. Handlers run in
descending rank; equal ranks run in registration order. That order is exact
for synchronous publishes. For asynchronous posts it is only the order in
which deliveries are submitted.

# Delivery guarantees

Deliveries are best effort and at most once per handler. A handler that is
not reentrant receives asynchronous deliveries one at a time, in the order
they were posted. Handler errors and panics are logged and never reach the
publisher.

# Causality

The context passed to a handler carries the event being handled. Events
published with that context become children of it, and inheritable
event-local values (see InheritableKey) flow from parents to children.
Scheduled posts (Schedule, Every, Cron) keep the parent that was current
when they were scheduled.

# Stages

Every topic maps to a stage name: through a discrete mapping, the longest
matching wildcard mapping, or the default stage. Asynchronous deliveries run
on the executor bound to that stage, either on the broker (BindStage,
StartStage) or through a StageResolver. Posting to a stage without an
executor fails with ErrStageUnavailable.
*/
package strix
