// Package writecache buffers writes to a storage.Store as sorted,
// non-overlapping byte ranges and applies them on Commit.
package writecache

import (
	"fmt"
	"slices"
	"sort"

	"go.uber.org/zap"

	"spatialdb/pkg/common"
	"spatialdb/pkg/logging"
	"spatialdb/pkg/storage"
)

type pendingRange struct {
	offset int64
	data   []byte
}

func (r pendingRange) end() int64 {
	return r.offset + int64(len(r.data))
}

// Cache is a write-back cache in front of a Store. Writes stay in memory
// until Commit; reads see the store with all pending writes laid over it.
// A Cache is not safe for concurrent use.
type Cache struct {
	store   storage.Store
	pending []pendingRange
	length  int64
	enabled bool
	log     *zap.SugaredLogger
}

type Option func(*Cache)

// WithEnabled turns buffering on or off. A disabled cache forwards every
// call to the store.
func WithEnabled(enabled bool) Option {
	return func(c *Cache) { c.enabled = enabled }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Cache) { c.log = log }
}

// Open wraps store. The store length is read once here; afterwards the cache
// tracks its own length.
func Open(store storage.Store, opts ...Option) (*Cache, error) {
	c := &Cache{
		store:   store,
		enabled: true,
		log:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	n, err := store.Len()
	if err != nil {
		return nil, err
	}
	c.length = n
	return c, nil
}

// overlaps treats touching intervals as overlapping so adjacent writes merge.
func overlaps(aStart, aEnd, bStart, bEnd int64) bool {
	return aStart <= bEnd && bStart <= aEnd
}

func (c *Cache) Write(offset int64, data []byte) error {
	if !c.enabled {
		return c.store.Write(offset, data)
	}
	if offset < 0 {
		return storage.ErrNegative
	}
	if len(data) == 0 {
		return nil
	}

	start, end := offset, offset+int64(len(data))
	var overlapping []int
	for i, r := range c.pending {
		if overlaps(offset, offset+int64(len(data)), r.offset, r.end()) {
			overlapping = append(overlapping, i)
			start = min(start, r.offset)
			end = max(end, r.end())
		}
	}

	merged := pendingRange{offset: start, data: make([]byte, end-start)}
	for _, i := range overlapping {
		r := c.pending[i]
		copy(merged.data[r.offset-start:], r.data)
	}
	copy(merged.data[offset-start:], data)

	if len(overlapping) == 0 {
		j := sort.Search(len(c.pending), func(i int) bool {
			return c.pending[i].offset > merged.offset
		})
		c.pending = slices.Insert(c.pending, j, merged)
	} else {
		for k := len(overlapping) - 1; k >= 0; k-- {
			c.pending = slices.Delete(c.pending, overlapping[k], overlapping[k]+1)
		}
		c.pending = slices.Insert(c.pending, overlapping[0], merged)
	}
	c.length = max(c.length, end)
	return nil
}

// Read returns exactly length bytes. Bytes past the end of the store that no
// pending write covers read as zeros.
func (c *Cache) Read(offset, length int64) ([]byte, error) {
	if !c.enabled {
		return c.store.Read(offset, length)
	}
	if offset < 0 || length < 0 {
		return nil, storage.ErrNegative
	}

	slen, err := c.store.Len()
	if err != nil {
		return nil, err
	}
	var data []byte
	if slen > offset {
		data, err = c.store.Read(offset, min(slen-offset, length))
		if err != nil {
			return nil, err
		}
	}
	if int64(len(data)) < length {
		data = append(data, make([]byte, length-int64(len(data)))...)
	}

	end := offset + length
	for _, r := range c.pending {
		if r.offset > end {
			break
		}
		if !overlaps(offset, end, r.offset, r.end()) {
			continue
		}
		dstart := max(r.offset, offset) - offset
		dend := min(r.end(), end) - offset
		qstart := max(r.offset, offset) - r.offset
		qend := min(r.end(), end) - r.offset
		if dend-dstart != qend-qstart {
			return nil, fmt.Errorf("%w: overlay of %d bytes from a %d byte range", common.ErrInvariant, dend-dstart, qend-qstart)
		}
		copy(data[dstart:dend], r.data[qstart:qend])
	}
	if int64(len(data)) != length {
		return nil, fmt.Errorf("%w: requested %d bytes, produced %d", common.ErrInvariant, length, len(data))
	}
	return data, nil
}

// Truncate cuts the extent to length. Pending ranges wholly below the cut are
// kept, a range straddling it is trimmed and ranges at or past it are dropped.
func (c *Cache) Truncate(length int64) error {
	if !c.enabled {
		return c.store.Truncate(length)
	}
	if length < 0 {
		return storage.ErrNegative
	}
	if err := c.store.Truncate(length); err != nil {
		return err
	}

	kept := c.pending[:0]
	for _, r := range c.pending {
		switch {
		case r.end() <= length:
			kept = append(kept, r)
		case r.offset < length:
			r.data = r.data[:length-r.offset]
			kept = append(kept, r)
		}
	}
	clear(c.pending[len(kept):])
	c.pending = kept
	c.length = length
	return nil
}

// Commit writes the pending ranges to the store in offset order. A range is
// only forgotten once its write succeeded.
func (c *Cache) Commit() error {
	var written int
	var bytes int64
	for len(c.pending) > 0 {
		r := c.pending[0]
		if err := c.store.Write(r.offset, r.data); err != nil {
			return err
		}
		c.pending[0] = pendingRange{}
		c.pending = c.pending[1:]
		written++
		bytes += int64(len(r.data))
	}
	c.pending = nil
	if written > 0 {
		c.log.Debugf("writecache: committed %d ranges, %d bytes", written, bytes)
	}
	return nil
}

func (c *Cache) Delete(offset, length int64) error {
	return c.store.Delete(offset, length)
}

func (c *Cache) Len() (int64, error) {
	if !c.enabled {
		return c.store.Len()
	}
	return c.length, nil
}

func (c *Cache) IsEmpty() (bool, error) {
	if !c.enabled {
		return c.store.IsEmpty()
	}
	return c.length == 0, nil
}

func (c *Cache) Enabled() bool {
	return c.enabled
}

// Pending reports the number of buffered ranges and their total size.
func (c *Cache) Pending() (ranges int, bytes int64) {
	for _, r := range c.pending {
		bytes += int64(len(r.data))
	}
	return len(c.pending), bytes
}

var _ storage.Store = (*Cache)(nil)
