package repository

import "errors"

// ErrNotFound is returned when a requested row does not exist. Callers that
// treat absence as a normal outcome check for it with errors.Is.
var ErrNotFound = errors.New("not found")
