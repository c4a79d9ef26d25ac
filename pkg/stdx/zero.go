package stdx

// Zero returns the zero value for a given type T.
func Zero[T any]() T {
	var zero T
	return zero
}

// As performs a checked type assertion that tolerates a nil value.
// It returns the zero value of T and false when v is nil or not a T.
func As[T any](v any) (T, bool) {
	if v == nil {
		return Zero[T](), false
	}
	t, ok := v.(T)
	return t, ok
}
