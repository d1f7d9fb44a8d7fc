package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spatialdb/pkg/common"
)

func val(t *testing.T, s string) common.Value {
	t.Helper()
	v, err := common.ValueFromString(s)
	require.NoError(t, err)
	return v
}

func TestApplyKeepsLastState(t *testing.T) {
	mt := NewMergeTable(8)
	p := common.Point3{X: 3, Y: 1, Z: 4}
	a, b := val(t, "a"), val(t, "b")

	mt.Apply(common.Insert(p, a))
	mt.Apply(common.Insert(p, b))
	mt.Apply(common.Delete(p, a))
	assert.Equal(t, 2, mt.Count())
	assert.Equal(t, 1, mt.Tombstones())
	assert.True(t, mt.Deleted(p, a))
	assert.False(t, mt.Deleted(p, b))

	mt.Apply(common.Insert(p, a))
	assert.Equal(t, 0, mt.Tombstones())
	assert.False(t, mt.Deleted(p, a))

	mt.Apply(common.Delete(p, b))
	mt.Apply(common.Delete(p, b))
	assert.Equal(t, 1, mt.Tombstones())
	assert.Equal(t, []common.Point3{p}, mt.DeletedPoints())
}

func TestLiveIsZOrdered(t *testing.T) {
	mt := NewMergeTable(4)
	v := val(t, "v")
	pts := []common.Point3{{X: 2}, {X: 1, Y: 1, Z: 1}, {}, {Y: 1}, {X: 1}}
	for _, p := range pts {
		mt.Apply(common.Insert(p, v))
	}

	live := mt.Live()
	require.Len(t, live, len(pts))
	var got []uint64
	for _, pair := range live {
		got = append(got, pair.Point.Morton())
	}
	assert.Equal(t, []uint64{0, 1, 2, 7, 8}, got)
}

func TestPutDoesNotOverrideTombstone(t *testing.T) {
	mt := NewMergeTable(4)
	p, v := common.Point3{X: 1}, val(t, "v")
	mt.Apply(common.Delete(p, v))

	assert.False(t, mt.Put(p, v))
	assert.True(t, mt.Deleted(p, v))

	assert.True(t, mt.Put(common.Point3{X: 2}, v))
	assert.False(t, mt.Put(common.Point3{X: 2}, v))
	assert.Len(t, mt.Live(), 1)
}
