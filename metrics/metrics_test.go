package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/casualjim/strix"
	"github.com/casualjim/strix/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	c := New(reg)

	b := strix.NewBroker(
		strix.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		strix.WithObserver(c),
		strix.WithStage("rejecting", strix.ExecutorFunc(func(func()) error { return strix.ErrQueueFull })),
		strix.WithStageMapping("full/*", "rejecting"),
	)

	require.NoError(t, b.Register(ctx, "ok", strix.HandlerFunc(func(context.Context, *strix.Event) error {
		return nil
	}), strix.Topics("orders", "full/*")))
	require.NoError(t, b.Register(ctx, "failing", strix.HandlerFunc(func(context.Context, *strix.Event) error {
		return errors.New("boom")
	}), strix.Topics("orders")))
	require.NoError(t, b.Register(ctx, "picky", strix.HandlerFunc(func(context.Context, *strix.Event) error {
		return nil
	}), strix.Topics("orders"), strix.Filter("(vip=true)")))
	require.NoError(t, b.Register(ctx, "broken", strix.HandlerFunc(func(context.Context, *strix.Event) error {
		return nil
	}), strix.Topics("orders"), strix.Filter("(vip=")))

	_, err := b.PublishTopic(ctx, "orders", types.NewProperties().With("vip", false))
	require.NoError(t, err)
	_, err = b.PostTopic(ctx, "full/queue", nil)
	require.NoError(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(c.published.WithLabelValues("orders", "sync")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.published.WithLabelValues("full/queue", "async")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.delivered.WithLabelValues("ok", "delivered")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.delivered.WithLabelValues("failing", "failed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.delivered.WithLabelValues("picky", "filtered")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.dropped.WithLabelValues("ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.removed.WithLabelValues("broken")), 0)

	assert.Equal(t, 2, testutil.CollectAndCount(c.duration), "filtered deliveries are not timed")
	assert.Equal(t, 1, testutil.CollectAndCount(c.handlers))
}

func TestNewRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
