package strix

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInheritableLocals(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker()
	k := InheritableKey(b.Slots(), "K", 0)

	p := b.Create(MustTopic("p"))
	q := b.Create(MustTopic("q"))
	r := b.Create(MustTopic("r"))
	require.NoError(t, q.SetParent(p))
	require.NoError(t, r.SetParent(p))

	k.Set(p, 5)
	k.Set(q, 9)

	assert.Equal(t, 5, k.Get(p))
	assert.Equal(t, 9, k.Get(q))
	assert.Equal(t, 5, k.Get(r))

	removed, ok := k.Remove(q)
	require.True(t, ok)
	assert.Equal(t, 9, removed)
	assert.Equal(t, 5, k.Get(q), "after removal the ancestor value shows through")

	t.Run("parent values written later are visible", func(t *testing.T) {
		k.Set(p, 7)
		assert.Equal(t, 7, k.Get(r))
	})

	t.Run("child values written before linking survive", func(t *testing.T) {
		c := b.Create(MustTopic("c"))
		k.Set(c, 1)
		require.NoError(t, c.SetParent(p))
		assert.Equal(t, 1, k.Get(c))

		other := InheritableKey(b.Slots(), "other", "none")
		other.Set(p, "from-parent")
		assert.Equal(t, "from-parent", other.Get(c))
	})

	t.Run("flows through publish", func(t *testing.T) {
		trace := InheritableKey(b.Slots(), "trace", "")
		seen := make(chan string, 1)
		require.NoError(t, b.Register(ctx, "outer", HandlerFunc(func(ctx context.Context, evt *Event) error {
			trace.Set(evt, "abc")
			_, err := b.PublishTopic(ctx, "inner", nil)
			return err
		}), Topics("outer")))
		require.NoError(t, b.Register(ctx, "inner", HandlerFunc(func(_ context.Context, evt *Event) error {
			seen <- trace.Get(evt)
			return nil
		}), Topics("inner")))

		_, err := b.PublishTopic(ctx, "outer", nil)
		require.NoError(t, err)
		assert.Equal(t, "abc", <-seen)
	})
}

func TestLocalKeys(t *testing.T) {
	b := newTestBroker()
	k := LocalKey(b.Slots(), "attempts", 3)
	assert.False(t, k.Inheritable())
	assert.Equal(t, "attempts", k.Name())
	assert.Equal(t, 3, k.Default())

	parent := b.Create(MustTopic("p"))
	child := b.Create(MustTopic("c"))
	require.NoError(t, child.SetParent(parent))

	v, ok := k.Lookup(parent)
	assert.False(t, ok)
	assert.Equal(t, 3, v)

	k.Set(parent, 1)
	assert.Equal(t, 1, k.Get(parent))
	assert.Equal(t, 3, k.Get(child), "local values are not inherited")

	t.Run("writable after publish", func(t *testing.T) {
		_, err := b.Publish(context.Background(), parent)
		require.NoError(t, err)
		k.Set(parent, 2)
		assert.Equal(t, 2, k.Get(parent))
	})

	t.Run("slots are shared by name", func(t *testing.T) {
		again := LocalKey(b.Slots(), "attempts", 0)
		assert.Equal(t, 2, again.Get(parent))
	})

	t.Run("other types count as absent", func(t *testing.T) {
		str := LocalKey(b.Slots(), "attempts", "none")
		v, ok := str.Lookup(parent)
		assert.False(t, ok)
		assert.Equal(t, "none", v)
	})

	t.Run("nil values", func(t *testing.T) {
		ptr := LocalKey[*int](b.Slots(), "ptr", new(int))
		ptr.Set(parent, nil)
		v, ok := ptr.Lookup(parent)
		assert.True(t, ok)
		assert.Nil(t, v)
	})
}
