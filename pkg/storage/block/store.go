// Package block appends immutable, length-framed batches of (point, value)
// pairs to a store and reads them back by offset.
//
// Block layout:
//
//	+0       u32 big-endian, total length of the block including this prefix
//	+4..len  back-to-back fixed-size (point, value) encodings
package block

import (
	"fmt"

	"go.uber.org/zap"

	"spatialdb/pkg/common"
	"spatialdb/pkg/logging"
	"spatialdb/pkg/storage"
)

type options struct {
	chunk int
	log   *zap.SugaredLogger
}

type Option func(*options)

// WithChunkSize sets how many bytes a block read asks the store for at once.
func WithChunkSize(n int) Option {
	return func(o *options) { o.chunk = n }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *options) { o.log = log }
}

// Store writes blocks directly to its underlying store; there is no cache in
// between.
type Store[B any, P common.Point[B], V any] struct {
	store  storage.Store
	schema common.Schema[P, V]
	opts   options
}

func Open[B any, P common.Point[B], V any](store storage.Store, schema common.Schema[P, V], opts ...Option) *Store[B, P, V] {
	o := options{chunk: DefaultChunkSize, log: logging.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[B, P, V]{store: store, schema: schema, opts: o}
}

// Batch appends rows as one block and returns the offset that identifies it.
func (s *Store[B, P, V]) Batch(rows []common.Pair[P, V]) (int64, error) {
	buf := make([]byte, PrefixSize, PrefixSize+len(rows)*s.schema.PairSize())
	var err error
	for _, row := range rows {
		buf, err = s.schema.AppendPair(buf, row.Point, row.Value)
		if err != nil {
			return 0, err
		}
	}
	if buf, err = frame(buf); err != nil {
		return 0, err
	}

	offset, err := s.store.Len()
	if err != nil {
		return 0, err
	}
	if err := s.store.Write(offset, buf); err != nil {
		return 0, err
	}
	s.opts.log.Debugf("block: wrote %d rows (%d bytes) at %d", len(rows), len(buf), offset)
	return offset, nil
}

// Read returns the raw payload of the block at offset.
func (s *Store[B, P, V]) Read(offset int64) ([]byte, error) {
	n, err := s.store.Len()
	if err != nil {
		return nil, err
	}
	return ReadBlock(s.store, offset, n, s.opts.chunk)
}

// List decodes every row of the block at offset.
func (s *Store[B, P, V]) List(offset int64) ([]common.Pair[P, V], error) {
	buf, err := s.Read(offset)
	if err != nil {
		return nil, err
	}
	return s.Parse(buf)
}

// Parse decodes a payload of k whole records.
func (s *Store[B, P, V]) Parse(buf []byte) ([]common.Pair[P, V], error) {
	size := s.schema.PairSize()
	if len(buf)%size != 0 {
		return nil, fmt.Errorf("%w: payload of %d bytes is not a multiple of %d", common.ErrDecode, len(buf), size)
	}
	rows := make([]common.Pair[P, V], 0, len(buf)/size)
	for i := 0; i < len(buf); i += size {
		p, v, err := s.schema.DecodePair(buf[i : i+size])
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i/size, err)
		}
		rows = append(rows, common.Pair[P, V]{Point: p, Value: v})
	}
	return rows, nil
}

// Query is List filtered to rows whose point overlaps bounds, in block order.
func (s *Store[B, P, V]) Query(offset int64, bounds B) ([]common.Pair[P, V], error) {
	rows, err := s.List(offset)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, row := range rows {
		if row.Point.Overlaps(bounds) {
			out = append(out, row)
		}
	}
	return out, nil
}

// Len is the size of the underlying store.
func (s *Store[B, P, V]) Len() (int64, error) {
	return s.store.Len()
}
