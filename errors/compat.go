package errors

import baseErrors "errors"

// Is reports whether any error in err's tree matches target. Delegates to the
// standard library so callers don't need a second errors import.
func Is(err, target error) bool {
	return baseErrors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return baseErrors.As(err, target)
}

// Join wraps the standard library's Join.
func Join(errs ...error) error {
	return baseErrors.Join(errs...)
}
