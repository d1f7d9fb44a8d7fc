package common

import "errors"

// Error kinds shared by the cache, the staging log and the block store.
// Store I/O errors are never wrapped in either of these.
var (
	ErrDecode    = errors.New("decode error")
	ErrInvariant = errors.New("internal invariant violated")
)

var ErrCoordinate = errors.New("coordinate out of bounds")
