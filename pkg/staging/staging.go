// Package staging is an append-only log of insert/delete rows kept in a
// write cache, with a full in-memory mirror that queries run against.
//
// Record layout, repeated back to back with no file header:
//
//	[Tag 1B: 0 insert, 1 delete] [Point P bytes] [Value V bytes]
package staging

import (
	"fmt"

	"go.uber.org/zap"

	"spatialdb/pkg/common"
	"spatialdb/pkg/logging"
	"spatialdb/pkg/storage"
	"spatialdb/pkg/storage/writecache"
)

const TagSize = 1

type options struct {
	cacheEnabled bool
	log          *zap.SugaredLogger
}

type Option func(*options)

// WithCache turns the write cache in front of the store on or off.
func WithCache(enabled bool) Option {
	return func(o *options) { o.cacheEnabled = enabled }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *options) { o.log = log }
}

// Log is not safe for concurrent use.
type Log[B any, P common.Point[B], V any] struct {
	cache  *writecache.Cache
	schema common.Schema[P, V]
	rows   []common.Row[P, V]
	log    *zap.SugaredLogger
}

// Open wraps store and, if it already holds records, replays them into the
// mirror. The schema must match the one the records were written with.
func Open[B any, P common.Point[B], V any](store storage.Store, schema common.Schema[P, V], opts ...Option) (*Log[B, P, V], error) {
	o := options{cacheEnabled: true, log: logging.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	empty, err := store.IsEmpty()
	if err != nil {
		return nil, err
	}
	cache, err := writecache.Open(store, writecache.WithEnabled(o.cacheEnabled), writecache.WithLogger(o.log))
	if err != nil {
		return nil, err
	}
	l := &Log[B, P, V]{cache: cache, schema: schema, log: o.log}
	if !empty {
		if err := l.load(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// RecordSize is the encoded size of one row.
func (l *Log[B, P, V]) RecordSize() int {
	return TagSize + l.schema.PairSize()
}

func (l *Log[B, P, V]) load() error {
	n, err := l.cache.Len()
	if err != nil {
		return err
	}
	size := int64(l.RecordSize())
	if n%size != 0 {
		return fmt.Errorf("%w: staging store of %d bytes is not a multiple of record size %d", common.ErrDecode, n, size)
	}
	buf, err := l.cache.Read(0, n)
	if err != nil {
		return err
	}

	rows := make([]common.Row[P, V], 0, n/size)
	for off := int64(0); off < n; off += size {
		rec := buf[off : off+size]
		op := common.Op(rec[0])
		if op != common.OpInsert && op != common.OpDelete {
			return fmt.Errorf("%w: unexpected row tag %d in record %d", common.ErrDecode, rec[0], off/size)
		}
		p, v, err := l.schema.DecodePair(rec[TagSize:])
		if err != nil {
			return fmt.Errorf("record %d: %w", off/size, err)
		}
		rows = append(rows, common.Row[P, V]{Op: op, Point: p, Value: v})
	}
	l.rows = rows
	l.log.Debugf("staging: replayed %d rows", len(rows))
	return nil
}

// Batch appends rows to the store (through the cache) and to the mirror.
// Every row is encoded before anything is written, so a failed Batch leaves
// both untouched.
func (l *Log[B, P, V]) Batch(rows []common.Row[P, V]) error {
	size := l.RecordSize()
	buf := make([]byte, 0, size*len(rows))
	for i, row := range rows {
		if row.Op != common.OpInsert && row.Op != common.OpDelete {
			return fmt.Errorf("%w: row %d has unknown op %d", common.ErrInvariant, i, row.Op)
		}
		start := len(buf)
		buf = append(buf, byte(row.Op))
		var err error
		buf, err = l.schema.AppendPair(buf, row.Point, row.Value)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if len(buf)-start != size {
			return fmt.Errorf("%w: row %d encoded to %d bytes, want %d", common.ErrInvariant, i, len(buf)-start, size)
		}
	}

	offset, err := l.cache.Len()
	if err != nil {
		return err
	}
	if err := l.cache.Write(offset, buf); err != nil {
		return err
	}
	l.rows = append(l.rows, rows...)
	return nil
}

// Commit flushes the write cache to the store.
func (l *Log[B, P, V]) Commit() error {
	return l.cache.Commit()
}

// Clear empties the store and the mirror.
func (l *Log[B, P, V]) Clear() error {
	if err := l.cache.Truncate(0); err != nil {
		return err
	}
	l.rows = nil
	return nil
}

// Bytes is the length of the staging store as seen through the cache.
func (l *Log[B, P, V]) Bytes() (int64, error) {
	return l.cache.Len()
}

// Len is the number of staged rows.
func (l *Log[B, P, V]) Len() (int, error) {
	n, err := l.Bytes()
	if err != nil {
		return 0, err
	}
	return int(n / int64(l.RecordSize())), nil
}

// Rows exposes the mirror in append order. Callers must not modify it.
func (l *Log[B, P, V]) Rows() []common.Row[P, V] {
	return l.rows
}

// Pending reports what the cache still holds back from the store.
func (l *Log[B, P, V]) Pending() (ranges int, bytes int64) {
	return l.cache.Pending()
}

// Query iterates over staged inserts whose point overlaps bounds.
func (l *Log[B, P, V]) Query(bounds B) *Iterator[B, P, V] {
	return NewIterator[B](l.rows, bounds)
}
