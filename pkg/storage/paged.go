package storage

import "sync"

// PageSize is the unit a PagedStore reads and writes through its Pager.
const PageSize = 4096

// PageBatch is one atomic change to a paged extent.
type PageBatch struct {
	Put    map[uint64][]byte
	Drop   []uint64
	Length int64
}

// Pager persists fixed-size pages plus the logical extent length. A page
// that was never written reads back as nil.
type Pager interface {
	Page(id uint64) ([]byte, error)
	Apply(b PageBatch) error
	Length() (int64, error)
	Sync() error
	Close() error
}

// PagedStore maps a byte extent onto PageSize pages of a Pager.
type PagedStore struct {
	mu     sync.Mutex
	pager  Pager
	length int64
	closed bool
}

func NewPagedStore(p Pager) (*PagedStore, error) {
	n, err := p.Length()
	if err != nil {
		return nil, err
	}
	return &PagedStore{pager: p, length: n}, nil
}

func (s *PagedStore) page(id uint64) ([]byte, error) {
	data, err := s.pager.Page(id)
	if err != nil {
		return nil, err
	}
	page := make([]byte, PageSize)
	copy(page, data)
	return page, nil
}

func (s *PagedStore) Read(offset, length int64) ([]byte, error) {
	if err := checkRange(offset, length); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if offset+length > s.length {
		return nil, ErrOutOfBounds
	}
	out := make([]byte, length)
	for pos := offset; pos < offset+length; {
		id := uint64(pos / PageSize)
		page, err := s.page(id)
		if err != nil {
			return nil, err
		}
		in := pos % PageSize
		n := copy(out[pos-offset:], page[in:])
		pos += int64(n)
	}
	return out, nil
}

func (s *PagedStore) Write(offset int64, data []byte) error {
	if err := checkRange(offset, 0); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	end := offset + int64(len(data))
	batch := PageBatch{Put: make(map[uint64][]byte), Length: max(s.length, end)}
	for pos := offset; pos < end; {
		id := uint64(pos / PageSize)
		page, err := s.page(id)
		if err != nil {
			return err
		}
		in := pos % PageSize
		n := copy(page[in:], data[pos-offset:])
		batch.Put[id] = page
		pos += int64(n)
	}
	if err := s.pager.Apply(batch); err != nil {
		return err
	}
	s.length = batch.Length
	return nil
}

func (s *PagedStore) Truncate(length int64) error {
	if err := checkRange(0, length); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	batch := PageBatch{Length: length}
	if length < s.length {
		keep := uint64((length + PageSize - 1) / PageSize)
		last := uint64((s.length + PageSize - 1) / PageSize)
		for id := keep; id < last; id++ {
			batch.Drop = append(batch.Drop, id)
		}
		if tail := length % PageSize; tail != 0 {
			id := uint64(length / PageSize)
			page, err := s.page(id)
			if err != nil {
				return err
			}
			clear(page[tail:])
			batch.Put = map[uint64][]byte{id: page}
		}
	}
	if err := s.pager.Apply(batch); err != nil {
		return err
	}
	s.length = length
	return nil
}

// Delete drops the pages that lie entirely inside the range; they read back
// as zeros afterwards.
func (s *PagedStore) Delete(offset, length int64) error {
	if err := checkRange(offset, length); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	first := uint64((offset + PageSize - 1) / PageSize)
	end := uint64(min(offset+length, s.length) / PageSize)
	batch := PageBatch{Length: s.length}
	for id := first; id < end; id++ {
		batch.Drop = append(batch.Drop, id)
	}
	if len(batch.Drop) == 0 {
		return nil
	}
	return s.pager.Apply(batch)
}

func (s *PagedStore) Len() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.length, nil
}

func (s *PagedStore) IsEmpty() (bool, error) {
	n, err := s.Len()
	return n == 0, err
}

// Sync makes every applied batch durable.
func (s *PagedStore) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.pager.Sync()
}

func (s *PagedStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return s.pager.Close()
}
