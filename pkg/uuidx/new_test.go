package uuidx

import (
	"slices"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	ids := make([]string, 0, 64)
	seen := make(map[uuid.UUID]struct{}, 64)
	for range 64 {
		id := New()
		assert.Equal(t, uuid.Version(7), id.Version())
		assert.Equal(t, uuid.RFC4122, id.Variant())
		seen[id] = struct{}{}
		ids = append(ids, id.String())
	}
	assert.Len(t, seen, 64)
	assert.True(t, slices.IsSorted(ids), "ids sort in creation order")
}

func TestNewString(t *testing.T) {
	s := NewString()
	assert.Regexp(t, "^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$", s)

	id, err := uuid.Parse(s)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}
