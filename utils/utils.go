// Package utils provides utility functions for the application.
package utils

// ToPtr returns a pointer to v. Handy for building filter structs.
func ToPtr[T any](v T) *T {
	return &v
}
