package domain

import "errors"

// ErrNotFound is returned by stores when an owner-scoped lookup matches no row.
var ErrNotFound = errors.New("not found")
