package repository

import "errors"

// ErrNotFound is returned by writes that matched no record
var ErrNotFound = errors.New("record not found")
