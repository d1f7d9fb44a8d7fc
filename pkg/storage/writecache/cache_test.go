package writecache

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spatialdb/pkg/storage"
)

// countingStore records writes and can be told to fail them.
type countingStore struct {
	*storage.MemStore
	writes  int
	failAt  int
	failErr error
}

func (s *countingStore) Write(offset int64, data []byte) error {
	s.writes++
	if s.failErr != nil && s.writes == s.failAt {
		return s.failErr
	}
	return s.MemStore.Write(offset, data)
}

func requireSortedDisjoint(t *testing.T, c *Cache) {
	t.Helper()
	for i := 1; i < len(c.pending); i++ {
		prev, cur := c.pending[i-1], c.pending[i]
		require.Less(t, prev.end(), cur.offset, "ranges %d and %d overlap or touch", i-1, i)
	}
}

// model is a plain byte array overwritten at every written range.
type model []byte

func (m *model) write(offset int64, data []byte) {
	end := offset + int64(len(data))
	if end > int64(len(*m)) {
		*m = append(*m, make([]byte, end-int64(len(*m)))...)
	}
	copy((*m)[offset:], data)
}

func (m model) read(offset, length int64) []byte {
	out := make([]byte, length)
	if offset < int64(len(m)) {
		copy(out, m[offset:min(offset+length, int64(len(m)))])
	}
	return out
}

func TestReadWriteCoherence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	initial := make([]byte, 64)
	rng.Read(initial)

	store := storage.NewMemStoreFrom(initial)
	c, err := Open(store)
	require.NoError(t, err)

	m := model(append([]byte(nil), initial...))
	for i := 0; i < 500; i++ {
		offset := rng.Int63n(300)
		data := make([]byte, 1+rng.Intn(40))
		rng.Read(data)

		require.NoError(t, c.Write(offset, data))
		m.write(offset, data)
		requireSortedDisjoint(t, c)

		n, err := c.Len()
		require.NoError(t, err)
		require.Equal(t, int64(len(m)), n)

		roff := rng.Int63n(350)
		rlen := rng.Int63n(80)
		got, err := c.Read(roff, rlen)
		require.NoError(t, err)
		require.Equal(t, m.read(roff, rlen), got, "iteration %d read(%d,%d)", i, roff, rlen)
	}

	// nothing reached the store yet
	assert.Equal(t, initial, store.Bytes())

	require.NoError(t, c.Commit())
	assert.Equal(t, []byte(m), store.Bytes())
}

func TestCommitIsIdempotent(t *testing.T) {
	store := &countingStore{MemStore: storage.NewMemStore()}
	c, err := Open(store)
	require.NoError(t, err)

	require.NoError(t, c.Write(0, []byte("abc")))
	require.NoError(t, c.Write(10, []byte("xyz")))
	require.NoError(t, c.Commit())
	assert.Equal(t, 2, store.writes)

	before, err := c.Read(0, 13)
	require.NoError(t, err)

	require.NoError(t, c.Commit())
	assert.Equal(t, 2, store.writes)

	after, err := c.Read(0, 13)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, []byte("abc\x00\x00\x00\x00\x00\x00\x00xyz"), after)
}

func TestWriteMergesOverlappingAndTouchingRanges(t *testing.T) {
	c, err := Open(storage.NewMemStore())
	require.NoError(t, err)

	require.NoError(t, c.Write(20, []byte("22222")))
	require.NoError(t, c.Write(10, []byte("11111")))
	require.NoError(t, c.Write(40, []byte("44")))
	require.Len(t, c.pending, 3)
	assert.Equal(t, []int64{10, 20, 40}, []int64{c.pending[0].offset, c.pending[1].offset, c.pending[2].offset})

	// bridges the first two ranges; the new bytes win
	require.NoError(t, c.Write(14, []byte("abcdefg")))
	require.Len(t, c.pending, 2)
	assert.Equal(t, int64(10), c.pending[0].offset)
	assert.Equal(t, []byte("1111abcdefg2222"), c.pending[0].data)

	// touching the end of a range merges with it
	require.NoError(t, c.Write(42, []byte("55")))
	require.Len(t, c.pending, 2)
	assert.Equal(t, []byte("4455"), c.pending[1].data)

	// a gap keeps ranges apart
	require.NoError(t, c.Write(30, []byte("3")))
	require.Len(t, c.pending, 3)
	requireSortedDisjoint(t, c)

	ranges, bytes := c.Pending()
	assert.Equal(t, 3, ranges)
	assert.Equal(t, int64(15+1+4), bytes)
}

func TestReadPadsPastStoreEnd(t *testing.T) {
	store := storage.NewMemStoreFrom([]byte("base"))
	c, err := Open(store)
	require.NoError(t, err)

	require.NoError(t, c.Write(8, []byte("far")))
	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	storeLen, err := store.Len()
	require.NoError(t, err)
	assert.Equal(t, int64(4), storeLen)

	got, err := c.Read(2, 12)
	require.NoError(t, err)
	assert.Equal(t, []byte("se\x00\x00\x00\x00far\x00\x00\x00"), got)
}

func TestTruncatePolicy(t *testing.T) {
	store := storage.NewMemStoreFrom([]byte("0123456789"))
	c, err := Open(store)
	require.NoError(t, err)

	require.NoError(t, c.Write(2, []byte("ab")))
	require.NoError(t, c.Write(6, []byte("cdef")))
	require.NoError(t, c.Write(12, []byte("gh")))

	require.NoError(t, c.Truncate(8))

	require.Len(t, c.pending, 2)
	assert.Equal(t, []byte("ab"), c.pending[0].data)
	assert.Equal(t, int64(6), c.pending[1].offset)
	assert.Equal(t, []byte("cd"), c.pending[1].data)

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	got, err := c.Read(0, 10)
	require.NoError(t, err)
	assert.Equal(t, []byte("01ab45cd\x00\x00"), got)

	require.NoError(t, c.Commit())
	assert.Equal(t, []byte("01ab45cd"), store.Bytes())

	require.NoError(t, c.Truncate(0))
	empty, err := c.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
	assert.Empty(t, c.pending)
}

func TestDisabledCacheDelegates(t *testing.T) {
	store := &countingStore{MemStore: storage.NewMemStore()}
	c, err := Open(store, WithEnabled(false))
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	require.NoError(t, c.Write(0, []byte("direct")))
	assert.Equal(t, 1, store.writes)
	assert.Equal(t, []byte("direct"), store.Bytes())
	assert.Empty(t, c.pending)

	_, err = c.Read(0, 10)
	assert.True(t, errors.Is(err, storage.ErrOutOfBounds))

	require.NoError(t, c.Truncate(3))
	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestCommitErrorKeepsUnwrittenRanges(t *testing.T) {
	boom := errors.New("disk on fire")
	store := &countingStore{MemStore: storage.NewMemStore(), failAt: 2, failErr: boom}
	c, err := Open(store)
	require.NoError(t, err)

	require.NoError(t, c.Write(0, []byte("aa")))
	require.NoError(t, c.Write(5, []byte("bb")))
	require.NoError(t, c.Write(10, []byte("cc")))

	err = c.Commit()
	assert.Same(t, boom, err)
	require.Len(t, c.pending, 2)
	assert.Equal(t, int64(5), c.pending[0].offset)

	store.failErr = nil
	require.NoError(t, c.Commit())
	assert.Equal(t, []byte("aa\x00\x00\x00bb\x00\x00\x00cc"), store.Bytes())
}

func TestEmptyWriteIsNoop(t *testing.T) {
	c, err := Open(storage.NewMemStore())
	require.NoError(t, err)
	require.NoError(t, c.Write(100, nil))
	assert.Empty(t, c.pending)
	n, err := c.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}
