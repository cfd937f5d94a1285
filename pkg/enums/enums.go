// Package enums holds the string enumerations shared by the database
// schema, the HTTP surface and the outbox wire format.
package enums

import "fmt"

func parse[T ~string](valid []T, value, kind string) (T, error) {
	for _, candidate := range valid {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}
