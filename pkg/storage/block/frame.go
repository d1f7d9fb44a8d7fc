package block

import (
	"encoding/binary"
	"fmt"

	"spatialdb/pkg/common"
	"spatialdb/pkg/storage"
)

const (
	// PrefixSize is the length of the big-endian u32 that opens every block.
	// The prefix counts itself.
	PrefixSize       = 4
	DefaultChunkSize = 1024
)

// ReadBlock returns the payload of the length-prefixed block at offset,
// reading at most chunk bytes per store call.
func ReadBlock(s storage.Store, offset, storeLen int64, chunk int) ([]byte, error) {
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	if offset < 0 || offset+PrefixSize > storeLen {
		return nil, fmt.Errorf("%w: block prefix at %d past end of store (%d)", common.ErrDecode, offset, storeLen)
	}
	head, err := s.Read(offset, PrefixSize)
	if err != nil {
		return nil, err
	}
	total := int64(binary.BigEndian.Uint32(head))
	if total < PrefixSize {
		return nil, fmt.Errorf("%w: block at %d declares length %d", common.ErrDecode, offset, total)
	}
	end := offset + total
	if end > storeLen {
		return nil, fmt.Errorf("%w: block at %d of length %d truncated by store end %d", common.ErrDecode, offset, total, storeLen)
	}

	payload := make([]byte, 0, total-PrefixSize)
	for pos := offset + PrefixSize; pos < end; {
		n := min(int64(chunk), end-pos)
		buf, err := s.Read(pos, n)
		if err != nil {
			return nil, err
		}
		payload = append(payload, buf...)
		pos += n
	}
	return payload, nil
}

// frame prepends the length prefix to payload space reserved by the caller.
func frame(buf []byte) ([]byte, error) {
	if int64(len(buf)) > int64(^uint32(0)) {
		return nil, fmt.Errorf("block of %d bytes exceeds the u32 length prefix", len(buf))
	}
	binary.BigEndian.PutUint32(buf[:PrefixSize], uint32(len(buf)))
	return buf, nil
}
