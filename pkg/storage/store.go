package storage

import "errors"

var (
	ErrOutOfBounds = errors.New("storage: read out of bounds")
	ErrNegative    = errors.New("storage: negative offset or length")
	ErrClosed      = errors.New("storage: store closed")
)

// Store is a growable, offset-addressed byte extent.
//
// Read returns exactly length bytes or fails. Write past the current end
// grows the extent; any gap reads back as zeros. Delete is a hint that the
// range is no longer needed and does not change Len.
type Store interface {
	Read(offset, length int64) ([]byte, error)
	Write(offset int64, data []byte) error
	Truncate(length int64) error
	Delete(offset, length int64) error
	Len() (int64, error)
	IsEmpty() (bool, error)
}

// Syncer is implemented by stores that can force their contents to durable media.
type Syncer interface {
	Sync() error
}

// Sync calls s.Sync when s supports it.
func Sync(s Store) error {
	if sy, ok := s.(Syncer); ok {
		return sy.Sync()
	}
	return nil
}

func checkRange(offset, length int64) error {
	if offset < 0 || length < 0 {
		return ErrNegative
	}
	return nil
}
