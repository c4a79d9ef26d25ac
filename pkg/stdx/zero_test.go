package stdx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZero(t *testing.T) {
	assert.Equal(t, 0, Zero[int]())
	assert.Equal(t, "", Zero[string]())
	assert.Nil(t, Zero[*int]())
	assert.Equal(t, struct{ A int }{}, Zero[struct{ A int }]())
}

func TestAs(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   int
		wantOK bool
	}{
		{name: "matching type", input: 5, want: 5, wantOK: true},
		{name: "nil value", input: nil, want: 0, wantOK: false},
		{name: "other type", input: "5", want: 0, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := As[int](tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}
