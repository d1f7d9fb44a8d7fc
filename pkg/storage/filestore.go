package storage

import (
	"errors"
	"io"
	"os"
)

// FileStore is a Store over a single file. Every call after Close fails
// with ErrClosed.
type FileStore struct {
	file *os.File
}

func OpenFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &FileStore{file: f}, nil
}

// check maps the error os.File returns after Close to ErrClosed.
func check(err error) error {
	if errors.Is(err, os.ErrClosed) {
		return ErrClosed
	}
	return err
}

func (s *FileStore) Read(offset, length int64) ([]byte, error) {
	if err := checkRange(offset, length); err != nil {
		return nil, err
	}
	size, err := s.Len()
	if err != nil {
		return nil, err
	}
	if offset+length > size {
		return nil, ErrOutOfBounds
	}
	buf := make([]byte, length)
	n, err := s.file.ReadAt(buf, offset)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
		return nil, check(err)
	}
	return buf, nil
}

func (s *FileStore) Write(offset int64, data []byte) error {
	if err := checkRange(offset, 0); err != nil {
		return err
	}
	_, err := s.file.WriteAt(data, offset)
	return check(err)
}

func (s *FileStore) Truncate(length int64) error {
	if err := checkRange(0, length); err != nil {
		return err
	}
	return check(s.file.Truncate(length))
}

// Delete is accepted as a hint only.
func (s *FileStore) Delete(offset, length int64) error {
	return checkRange(offset, length)
}

func (s *FileStore) Len() (int64, error) {
	st, err := s.file.Stat()
	if err != nil {
		return 0, check(err)
	}
	return st.Size(), nil
}

func (s *FileStore) IsEmpty() (bool, error) {
	n, err := s.Len()
	return n == 0, err
}

func (s *FileStore) Sync() error {
	return check(s.file.Sync())
}

func (s *FileStore) Close() error {
	return check(s.file.Close())
}
