package staging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spatialdb/pkg/common"
	"spatialdb/pkg/storage"
)

type row = common.Row[common.Point3, common.Value]

func val(t *testing.T, s string) common.Value {
	t.Helper()
	v, err := common.ValueFromString(s)
	require.NoError(t, err)
	return v
}

func pt(x, y, z uint32) common.Point3 {
	return common.Point3{X: x, Y: y, Z: z}
}

func open(t *testing.T, store storage.Store, opts ...Option) *Log[common.Box3, common.Point3, common.Value] {
	t.Helper()
	l, err := Open[common.Box3](store, common.Schema3(), opts...)
	require.NoError(t, err)
	return l
}

func collect(it *Iterator[common.Box3, common.Point3, common.Value]) []common.Pair[common.Point3, common.Value] {
	var out []common.Pair[common.Point3, common.Value]
	for p, v := range it.All() {
		out = append(out, common.Pair[common.Point3, common.Value]{Point: p, Value: v})
	}
	return out
}

func TestRecordLayout(t *testing.T) {
	mem := storage.NewMemStore()
	l := open(t, mem)
	require.Equal(t, 29, l.RecordSize())

	require.NoError(t, l.Batch([]row{common.Delete(pt(1, 2, 3), val(t, "x"))}))
	require.NoError(t, l.Commit())

	raw := mem.Bytes()
	require.Len(t, raw, 29)
	assert.Equal(t, byte(1), raw[0])
	assert.Equal(t, []byte{0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 3}, raw[1:13])
	assert.Equal(t, byte('x'), raw[13])
}

func TestStagingRoundTrip(t *testing.T) {
	mem := storage.NewMemStore()
	l := open(t, mem)

	rows := []row{
		common.Insert(pt(1, 1, 1), val(t, "one")),
		common.Delete(pt(2, 2, 2), val(t, "two")),
		common.Insert(pt(3, 3, 3), val(t, "three")),
	}
	require.NoError(t, l.Batch(rows[:2]))
	require.NoError(t, l.Batch(rows[2:]))

	n, err := l.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// not committed yet: a fresh log over the same bytes sees nothing
	empty, err := mem.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, l.Commit())

	reopened := open(t, mem)
	assert.Equal(t, rows, reopened.Rows())
	n, err = reopened.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	b, err := reopened.Bytes()
	require.NoError(t, err)
	assert.Equal(t, int64(3*29), b)
}

func TestQuerySkipsDeletesAndFiltersBounds(t *testing.T) {
	l := open(t, storage.NewMemStore())

	p1, p2, p3 := pt(1, 1, 1), pt(2, 2, 2), pt(9, 9, 9)
	require.NoError(t, l.Batch([]row{
		common.Insert(p1, val(t, "v1")),
		common.Delete(p2, val(t, "v2")),
		common.Insert(p3, val(t, "v3")),
		common.Insert(pt(50, 50, 50), val(t, "out")),
	}))

	box, err := common.NewBox3(0, 0, 0, 10, 10, 10)
	require.NoError(t, err)

	want := []common.Pair[common.Point3, common.Value]{
		{Point: p1, Value: val(t, "v1")},
		{Point: p3, Value: val(t, "v3")},
	}
	assert.Equal(t, want, collect(l.Query(box)))

	// restartable with fresh bounds
	small, err := common.NewBox3(0, 0, 0, 1, 1, 1)
	require.NoError(t, err)
	it := l.Query(small)
	require.True(t, it.Next())
	assert.Equal(t, p1, it.Point())
	assert.Equal(t, "v1", it.Value().String())
	assert.False(t, it.Next())
	assert.False(t, it.Next())

	assert.Equal(t, want, collect(l.Query(box)))
}

func TestQueryIteratorStopsEarly(t *testing.T) {
	l := open(t, storage.NewMemStore())
	require.NoError(t, l.Batch([]row{
		common.Insert(pt(1, 1, 1), val(t, "a")),
		common.Insert(pt(2, 2, 2), val(t, "b")),
	}))
	box, err := common.NewBox3(0, 0, 0, 5, 5, 5)
	require.NoError(t, err)

	it := l.Query(box)
	for p := range it.All() {
		assert.Equal(t, pt(1, 1, 1), p)
		break
	}
	require.True(t, it.Next())
	assert.Equal(t, pt(2, 2, 2), it.Point())
}

func TestClearResetsState(t *testing.T) {
	mem := storage.NewMemStore()
	l := open(t, mem)

	require.NoError(t, l.Batch([]row{
		common.Insert(pt(1, 1, 1), val(t, "a")),
		common.Insert(pt(2, 2, 2), val(t, "b")),
	}))
	require.NoError(t, l.Commit())
	require.NoError(t, l.Clear())

	n, err := l.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
	b, err := l.Bytes()
	require.NoError(t, err)
	assert.Zero(t, b)
	assert.Empty(t, l.Rows())
	assert.Empty(t, mem.Bytes())

	next := common.Insert(pt(7, 7, 7), val(t, "c"))
	require.NoError(t, l.Batch([]row{next}))
	require.NoError(t, l.Commit())
	assert.Len(t, mem.Bytes(), 29)

	reopened := open(t, mem)
	assert.Equal(t, []row{next}, reopened.Rows())
}

func TestClearDropsUncommittedRows(t *testing.T) {
	mem := storage.NewMemStore()
	l := open(t, mem)
	require.NoError(t, l.Batch([]row{common.Insert(pt(1, 1, 1), val(t, "a"))}))
	require.NoError(t, l.Clear())
	require.NoError(t, l.Commit())
	assert.Empty(t, mem.Bytes())
}

// shortCodec claims 12 bytes but encodes 11.
type shortCodec struct{ common.Point3Codec }

func (shortCodec) Encode(p common.Point3) ([]byte, error) {
	return make([]byte, 11), nil
}

func TestBatchRejectsWrongRecordSize(t *testing.T) {
	mem := storage.NewMemStore()
	schema := common.Schema[common.Point3, common.Value]{Points: shortCodec{}, Values: common.ValueCodec{}}
	l, err := Open[common.Box3](mem, schema)
	require.NoError(t, err)

	err = l.Batch([]row{common.Insert(pt(1, 1, 1), val(t, "a"))})
	require.True(t, errors.Is(err, common.ErrInvariant), "got %v", err)

	assert.Empty(t, l.Rows())
	n, err := l.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBatchIsAllOrNothing(t *testing.T) {
	l := open(t, storage.NewMemStore())
	err := l.Batch([]row{
		common.Insert(pt(1, 1, 1), val(t, "ok")),
		{Op: common.Op(9), Point: pt(2, 2, 2)},
	})
	require.True(t, errors.Is(err, common.ErrInvariant))
	assert.Empty(t, l.Rows())
	b, err := l.Bytes()
	require.NoError(t, err)
	assert.Zero(t, b)
}

func TestOpenRejectsBadTag(t *testing.T) {
	raw := make([]byte, 29)
	raw[0] = 2
	_, err := Open[common.Box3](storage.NewMemStoreFrom(raw), common.Schema3())
	require.True(t, errors.Is(err, common.ErrDecode), "got %v", err)
}

func TestOpenRejectsPartialRecord(t *testing.T) {
	_, err := Open[common.Box3](storage.NewMemStoreFrom(make([]byte, 30)), common.Schema3())
	require.True(t, errors.Is(err, common.ErrDecode), "got %v", err)
}

func TestUncachedLogWritesThrough(t *testing.T) {
	mem := storage.NewMemStore()
	l := open(t, mem, WithCache(false))
	require.NoError(t, l.Batch([]row{common.Insert(pt(1, 1, 1), val(t, "a"))}))
	assert.Len(t, mem.Bytes(), 29)

	ranges, _ := l.Pending()
	assert.Zero(t, ranges)
}
