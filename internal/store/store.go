// Package store holds what the blob persistence backends share.
package store

import "errors"

// ErrNotFound is returned by Load when nothing was saved under the key.
var ErrNotFound = errors.New("store: blob not found")
