package enums

import (
	"fmt"
	"slices"
)

func oneOf[T ~string](v T, valid []T) bool {
	return slices.Contains(valid, v)
}

func parseOneOf[T ~string](kind, raw string, valid []T) (T, error) {
	if v := T(raw); oneOf(v, valid) {
		return v, nil
	}
	var zero T
	return zero, errorf(kind, raw)
}

func errorf(kind, raw string) error {
	return fmt.Errorf("invalid %s %q", kind, raw)
}
