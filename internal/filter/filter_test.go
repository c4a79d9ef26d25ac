package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type props map[string]any

func (p props) Get(key string) (any, bool) {
	v, ok := p[key]
	return v, ok
}

type order struct {
	Total  float64  `json:"total"`
	Status string   `json:"status"`
	Tags   []string `json:"tags"`
}

func TestCompile(t *testing.T) {
	valid := []string{
		"(kind=order)",
		"( kind = order )",
		"(&(a=1)(b=2))",
		"(|(a=1)(!(b=2)))",
		"(a=*)",
		"(a=ab*cd*)",
		`(a=paren\(\))`,
		"(total>=10)",
		"(total<=10)",
		"(name~=John Smith)",
	}
	for _, expr := range valid {
		t.Run("valid "+expr, func(t *testing.T) {
			f, err := Compile(expr)
			require.NoError(t, err)
			assert.Equal(t, expr, f.String())
		})
	}

	invalid := []string{
		"",
		"kind=order",
		"(kind=order",
		"(kind=order))",
		"(=order)",
		"(kind order)",
		"(&)",
		"(!)",
		"(a=(b))",
		`(a=b\`,
		"(total>=1*)",
	}
	for _, expr := range invalid {
		t.Run("invalid "+expr, func(t *testing.T) {
			_, err := Compile(expr)
			require.Error(t, err)
			var syn *SyntaxError
			assert.ErrorAs(t, err, &syn)
		})
	}
}

func TestMustCompile(t *testing.T) {
	assert.Panics(t, func() { MustCompile("(") })
	assert.NotPanics(t, func() { MustCompile("(a=b)") })
}

func TestMatch(t *testing.T) {
	p := props{
		"kind":     "order",
		"count":    42,
		"ratio":    0.5,
		"big":      uint64(7),
		"urgent":   true,
		"name":     "John  Smith",
		"tags":     []string{"red", "blue"},
		"nothing":  nil,
		"path":     "a*b?c",
		"order":    order{Total: 120, Status: "open", Tags: []string{"vip"}},
		"settings": map[string]any{"mode": "fast"},
		"dotted.k": "direct",
	}

	cases := []struct {
		expr string
		want bool
	}{
		{"(kind=order)", true},
		{"(kind=Order)", false},
		{"(kind~=ORDER)", true},
		{"(name~=johnsmith)", true},
		{"(missing=x)", false},
		{"(kind=*)", true},
		{"(missing=*)", false},
		{"(nothing=*)", true},
		{"(nothing=x)", false},
		{"(count=42)", true},
		{"(count>=40)", true},
		{"(count<=41)", false},
		{"(count=4x)", false},
		{"(count>=41.5)", true},
		{"(ratio<=0.5)", true},
		{"(ratio>=0.6)", false},
		{"(big=7)", true},
		{"(urgent=true)", true},
		{"(urgent=false)", false},
		{"(urgent>=true)", false},
		{"(tags=blue)", true},
		{"(tags=green)", false},
		{"(tags=bl*)", true},
		{"(kind=or*)", true},
		{"(kind=*der)", true},
		{"(kind=o*d*r)", true},
		{"(kind=o*x*r)", false},
		{`(path=a\*b?c)`, true},
		{`(path=a\**)`, true},
		{`(path=*b?*)`, true},
		{`(path=*bxc)`, false},
		{"(order.total>=100)", true},
		{"(order.status=open)", true},
		{"(order.tags=vip)", true},
		{"(order.missing=*)", false},
		{"(settings.mode=fast)", true},
		{"(dotted.k=direct)", true},
		{"(&(kind=order)(count>=10))", true},
		{"(&(kind=order)(count>=100))", false},
		{"(|(kind=invoice)(count>=10))", true},
		{"(|(kind=invoice)(count>=100))", false},
		{"(!(kind=invoice))", true},
		{"(&(kind=order)(|(order.total>=100)(urgent=false))(!(test=*)))", true},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			f, err := Compile(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.want, f.Match(p))
		})
	}

	t.Run("nil filter matches everything", func(t *testing.T) {
		var f *Filter
		assert.True(t, f.Match(p))
		assert.Empty(t, f.String())
	})

	t.Run("nil properties match nothing", func(t *testing.T) {
		assert.False(t, MustCompile("(a=*)").Match(nil))
	})
}
