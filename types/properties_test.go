package types

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProperties_String(t *testing.T) {
	tests := []struct {
		name  string
		props *Properties
		want  string
	}{
		{
			name:  "empty bag",
			props: NewProperties(),
			want:  "{}",
		},
		{
			name:  "insertion order is kept",
			props: NewProperties().With("zeta", 1).With("alpha", "a"),
			want:  `{"zeta":1,"alpha":"a"}`,
		},
		{
			name:  "from map sorts keys",
			props: FromMap(map[string]any{"b": true, "a": nil}),
			want:  `{"a":null,"b":true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.props.String())
		})
	}
}

func TestProperties_Operations(t *testing.T) {
	t.Run("set and get", func(t *testing.T) {
		p := NewProperties()
		_, existed := p.Set("key", "value")
		assert.False(t, existed)

		got, ok := p.Get("key")
		require.True(t, ok)
		assert.Equal(t, "value", got)
	})

	t.Run("update returns previous", func(t *testing.T) {
		p := NewProperties().With("key", "old")
		prev, existed := p.Set("key", "new")
		assert.True(t, existed)
		assert.Equal(t, "old", prev)
	})

	t.Run("delete", func(t *testing.T) {
		p := NewProperties().With("key", "value")
		old, ok := p.Delete("key")
		assert.True(t, ok)
		assert.Equal(t, "value", old)
		assert.Equal(t, 0, p.Len())
	})

	t.Run("nil bag reads", func(t *testing.T) {
		var p *Properties
		_, ok := p.Get("x")
		assert.False(t, ok)
		assert.Equal(t, 0, p.Len())
		assert.Empty(t, slices.Collect(p.Keys()))
	})

	t.Run("clone is independent", func(t *testing.T) {
		p := NewProperties().With("a", 1).With("b", 2)
		c := p.Clone()
		c.Set("c", 3)
		assert.Equal(t, 2, p.Len())
		assert.Equal(t, []string{"a", "b", "c"}, slices.Collect(c.Keys()))
	})

	t.Run("map copy", func(t *testing.T) {
		p := NewProperties().With("a", 1)
		assert.Equal(t, map[string]any{"a": 1}, p.Map())
	})
}

func TestProperties_JSONRoundTrip(t *testing.T) {
	var p Properties
	require.NoError(t, p.UnmarshalJSON([]byte(`{"second":2,"first":"one"}`)))
	assert.Equal(t, []string{"second", "first"}, slices.Collect(p.Keys()))
	assert.Equal(t, `{"second":2,"first":"one"}`, p.String())
}

func TestFromStruct(t *testing.T) {
	type line struct {
		SKU string `json:"sku"`
	}
	type order struct {
		ID    string  `json:"id"`
		Total float64 `json:"total"`
		Lines []line  `json:"lines"`
	}

	props, err := FromStruct(order{ID: "o-1", Total: 12.5, Lines: []line{{SKU: "a"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "lines", "total"}, slices.Collect(props.Keys()))

	total, ok := props.Get("total")
	require.True(t, ok)
	assert.InDelta(t, 12.5, total, 0)

	lines, _ := props.Get("lines")
	assert.Equal(t, []any{map[string]any{"sku": "a"}}, lines)

	_, err = FromStruct(func() {})
	assert.Error(t, err)

	_, err = FromStruct([]int{1})
	assert.Error(t, err, "only objects become property bags")
}
