package storage

import "sync"

// MemStore keeps the whole extent in memory.
type MemStore struct {
	mu   sync.RWMutex
	data []byte
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

// NewMemStoreFrom starts with a copy of data.
func NewMemStoreFrom(data []byte) *MemStore {
	return &MemStore{data: append([]byte(nil), data...)}
}

func (s *MemStore) Read(offset, length int64) ([]byte, error) {
	if err := checkRange(offset, length); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset+length > int64(len(s.data)) {
		return nil, ErrOutOfBounds
	}
	out := make([]byte, length)
	copy(out, s.data[offset:offset+length])
	return out, nil
}

func (s *MemStore) Write(offset int64, data []byte) error {
	if err := checkRange(offset, 0); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	end := offset + int64(len(data))
	if end > int64(len(s.data)) {
		s.grow(end)
	}
	copy(s.data[offset:end], data)
	return nil
}

func (s *MemStore) grow(n int64) {
	if n <= int64(cap(s.data)) {
		old := len(s.data)
		s.data = s.data[:n]
		clear(s.data[old:])
		return
	}
	next := make([]byte, n, max(n, int64(2*cap(s.data))))
	copy(next, s.data)
	s.data = next
}

func (s *MemStore) Truncate(length int64) error {
	if err := checkRange(0, length); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if length > int64(len(s.data)) {
		s.grow(length)
		return nil
	}
	s.data = s.data[:length]
	return nil
}

// Delete zeroes the part of the range that lies inside the extent.
func (s *MemStore) Delete(offset, length int64) error {
	if err := checkRange(offset, length); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	end := min(offset+length, int64(len(s.data)))
	if offset < end {
		clear(s.data[offset:end])
	}
	return nil
}

func (s *MemStore) Len() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data)), nil
}

func (s *MemStore) IsEmpty() (bool, error) {
	n, err := s.Len()
	return n == 0, err
}

// Bytes returns a copy of the extent.
func (s *MemStore) Bytes() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.data...)
}
