package stdx

// Must0 panics if err is not nil.
func Must0(err error) {
	if err != nil {
		panic(err)
	}
}

// Must1 returns v, or panics when err is not nil.
//
// Intended for wiring code (examples, tests, package-level keys) where a
// failure means the program cannot start anyway.
func Must1[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
