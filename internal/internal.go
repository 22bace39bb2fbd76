// Package internal is code only for consumption from within the missioncontrol
// project.
package internal

// Filter returns the elements of s for which keep returns true. The returned
// slice never aliases s.
func Filter[T any](s []T, keep func(T) bool) []T {
	filtered := make([]T, 0, len(s))
	for _, x := range s {
		if keep(x) {
			filtered = append(filtered, x)
		}
	}
	return filtered
}
