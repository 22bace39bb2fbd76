package internal

//go:fix inline
func Ptr[T any](t T) *T { return new(t) }

// Deref returns the value pointed to by p, or def if p is nil.
func Deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
