package assert

import "fmt"

// Check validates a runtime precondition. Returns a descriptive error instead
// of panicking so callers on hot paths can degrade gracefully (fail-open).
func Check(cond bool, format string, args ...interface{}) error {
	if cond {
		return nil
	}
	return fmt.Errorf("assertion failed: "+format, args...)
}

// NotNil validates that a handle is non-nil.
func NotNil(v interface{}, name string) error {
	if v == nil {
		return fmt.Errorf("assertion failed: %s must not be nil", name)
	}
	return nil
}

// InRange validates that an index lies within [lo, hi] inclusive.
func InRange(v, lo, hi int, name string) error {
	if v < lo || v > hi {
		return fmt.Errorf("assertion failed: %s out of range: %d not in [%d, %d]", name, v, lo, hi)
	}
	return nil
}
