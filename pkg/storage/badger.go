package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var metaLenKey = []byte("meta:len")

// BadgerPager keeps pages in a badger database under "page:<id>" keys.
type BadgerPager struct {
	db       *badger.DB
	inMemory bool
}

// OpenBadgerPager opens a pager in dir, or an in-memory one when dir is empty.
func OpenBadgerPager(dir string) (*BadgerPager, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerPager{db: db, inMemory: dir == ""}, nil
}

// OpenBadgerStore is a PagedStore over a BadgerPager.
func OpenBadgerStore(dir string) (*PagedStore, error) {
	p, err := OpenBadgerPager(dir)
	if err != nil {
		return nil, err
	}
	s, err := NewPagedStore(p)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

func pageKey(id uint64) []byte {
	key := make([]byte, 5+8)
	copy(key, "page:")
	binary.BigEndian.PutUint64(key[5:], id)
	return key
}

func (p *BadgerPager) Page(id uint64) ([]byte, error) {
	var page []byte
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pageKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		page, err = item.ValueCopy(nil)
		return err
	})
	return page, err
}

func (p *BadgerPager) Apply(b PageBatch) error {
	wb := p.db.NewWriteBatch()
	defer wb.Cancel()

	for id, page := range b.Put {
		if err := wb.Set(pageKey(id), page); err != nil {
			return err
		}
	}
	for _, id := range b.Drop {
		if err := wb.Delete(pageKey(id)); err != nil {
			return err
		}
	}
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(b.Length))
	if err := wb.Set(metaLenKey, n[:]); err != nil {
		return err
	}
	return wb.Flush()
}

func (p *BadgerPager) Length() (int64, error) {
	var n int64
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaLenKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("badger pager: bad length record of %d bytes", len(val))
			}
			n = int64(binary.BigEndian.Uint64(val))
			return nil
		})
	})
	return n, err
}

// Sync flushes badger's write-ahead and value logs to disk. In-memory
// databases have nothing to sync.
func (p *BadgerPager) Sync() error {
	if p.inMemory {
		return nil
	}
	return p.db.Sync()
}

func (p *BadgerPager) Close() error {
	return p.db.Close()
}
