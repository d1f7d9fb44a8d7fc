package memory

import (
	"bytes"
	"sync"

	"github.com/google/btree"

	"spatialdb/pkg/common"
)

// Item is one (point, value) pair in Z-order, live or tombstoned.
type Item struct {
	Key     uint64
	Point   common.Point3
	Value   common.Value
	Deleted bool
}

func (i Item) Pair() common.Pair[common.Point3, common.Value] {
	return common.Pair[common.Point3, common.Value]{Point: i.Point, Value: i.Value}
}

func less(a, b Item) bool {
	if a.Key != b.Key {
		return a.Key < b.Key
	}
	if a.Point != b.Point {
		if a.Point.X != b.Point.X {
			return a.Point.X < b.Point.X
		}
		if a.Point.Y != b.Point.Y {
			return a.Point.Y < b.Point.Y
		}
		return a.Point.Z < b.Point.Z
	}
	return bytes.Compare(a.Value[:], b.Value[:]) < 0
}

func itemOf(p common.Point3, v common.Value) Item {
	return Item{Key: p.Morton(), Point: p, Value: v}
}

// MergeTable folds a sequence of insert/delete rows into the last state of
// each (point, value) pair.
type MergeTable struct {
	tree *btree.BTreeG[Item]
	lock sync.RWMutex
	dead int
}

func NewMergeTable(degree int) *MergeTable {
	return &MergeTable{
		tree: btree.NewG(degree, less),
	}
}

// Apply records row; a later row for the same pair replaces an earlier one.
func (mt *MergeTable) Apply(row common.Row[common.Point3, common.Value]) {
	mt.lock.Lock()
	defer mt.lock.Unlock()

	item := itemOf(row.Point, row.Value)
	item.Deleted = row.Op == common.OpDelete
	old, replaced := mt.tree.ReplaceOrInsert(item)
	if replaced && old.Deleted {
		mt.dead--
	}
	if item.Deleted {
		mt.dead++
	}
}

// Put adds a live pair unless the table already holds a state for it.
func (mt *MergeTable) Put(p common.Point3, v common.Value) bool {
	mt.lock.Lock()
	defer mt.lock.Unlock()

	item := itemOf(p, v)
	if mt.tree.Has(item) {
		return false
	}
	mt.tree.ReplaceOrInsert(item)
	return true
}

// Get returns the recorded state of (p, v).
func (mt *MergeTable) Get(p common.Point3, v common.Value) (Item, bool) {
	mt.lock.RLock()
	defer mt.lock.RUnlock()
	return mt.tree.Get(itemOf(p, v))
}

// Deleted reports whether (p, v) is tombstoned.
func (mt *MergeTable) Deleted(p common.Point3, v common.Value) bool {
	item, ok := mt.Get(p, v)
	return ok && item.Deleted
}

// Iterator visits every item in Z-order until fn returns false.
func (mt *MergeTable) Iterator(fn func(item Item) bool) {
	mt.lock.RLock()
	defer mt.lock.RUnlock()
	mt.tree.Ascend(fn)
}

// Live returns the pairs that are not tombstoned, in Z-order.
func (mt *MergeTable) Live() []common.Pair[common.Point3, common.Value] {
	out := make([]common.Pair[common.Point3, common.Value], 0, mt.Count()-mt.Tombstones())
	mt.Iterator(func(item Item) bool {
		if !item.Deleted {
			out = append(out, item.Pair())
		}
		return true
	})
	return out
}

// DeletedPoints returns the points of all tombstones.
func (mt *MergeTable) DeletedPoints() []common.Point3 {
	var out []common.Point3
	mt.Iterator(func(item Item) bool {
		if item.Deleted {
			out = append(out, item.Point)
		}
		return true
	})
	return out
}

func (mt *MergeTable) Count() int {
	mt.lock.RLock()
	defer mt.lock.RUnlock()
	return mt.tree.Len()
}

func (mt *MergeTable) Tombstones() int {
	mt.lock.RLock()
	defer mt.lock.RUnlock()
	return mt.dead
}
