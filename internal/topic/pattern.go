// Package topic indexes topic interests and resolves a topic name to the
// ordered list of interested entries plus the executor of its stage.
//
// Topics are slash-delimited names such as "app/orders/created". A pattern is
// either a discrete topic name, a wildcard "prefix/*" matching every topic
// below prefix, or the universal wildcard "*".
package topic

import "strings"

const (
	// Separator delimits topic segments.
	Separator = "/"
	// Wildcard is the universal pattern and the wildcard segment.
	Wildcard = "*"
)

// Kind tells discrete patterns from wildcard ones.
type Kind int

const (
	// Invalid patterns are ignored by the registry.
	Invalid Kind = iota
	// Discrete patterns match one exact topic name.
	Discrete
	// Prefix patterns match every topic below a prefix.
	Prefix
)

func (k Kind) String() string {
	switch k {
	case Discrete:
		return "discrete"
	case Prefix:
		return "prefix"
	default:
		return "invalid"
	}
}

// Parse classifies pattern and returns its index key: the topic itself for
// discrete patterns, the prefix without the trailing "/*" for wildcards, and
// the empty string for the universal wildcard.
func Parse(pattern string) (Kind, string) {
	if pattern == Wildcard {
		return Prefix, ""
	}
	if prefix, ok := strings.CutSuffix(pattern, Separator+Wildcard); ok {
		if !ValidName(prefix) {
			return Invalid, ""
		}
		return Prefix, prefix
	}
	if !ValidName(pattern) {
		return Invalid, ""
	}
	return Discrete, pattern
}

// ValidName reports whether name is a usable topic name: non-empty, not
// starting or ending with a separator, without empty segments and without
// wildcards.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	if strings.HasPrefix(name, Separator) || strings.HasSuffix(name, Separator) {
		return false
	}
	if strings.Contains(name, Separator+Separator) {
		return false
	}
	return !strings.Contains(name, Wildcard)
}

// Prefixes returns the wildcard keys that can match topic, longest first,
// ending with the universal key "".
func Prefixes(topic string) []string {
	out := make([]string, 0, strings.Count(topic, Separator)+1)
	for i := strings.LastIndex(topic, Separator); i > 0; i = strings.LastIndex(topic[:i], Separator) {
		out = append(out, topic[:i])
	}
	return append(out, "")
}
