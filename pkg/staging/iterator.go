package staging

import (
	"iter"

	"spatialdb/pkg/common"
)

// Iterator walks a snapshot of the mirror and yields inserts overlapping its
// bounds. Deletes are skipped. It never touches the store.
type Iterator[B any, P common.Point[B], V any] struct {
	rows   []common.Row[P, V]
	bounds B
	index  int
	cur    common.Pair[P, V]
}

func NewIterator[B any, P common.Point[B], V any](rows []common.Row[P, V], bounds B) *Iterator[B, P, V] {
	return &Iterator[B, P, V]{rows: rows, bounds: bounds}
}

func (it *Iterator[B, P, V]) Next() bool {
	for it.index < len(it.rows) {
		row := it.rows[it.index]
		it.index++
		if row.Op == common.OpInsert && row.Point.Overlaps(it.bounds) {
			it.cur = row.Pair()
			return true
		}
	}
	return false
}

func (it *Iterator[B, P, V]) Point() P { return it.cur.Point }

func (it *Iterator[B, P, V]) Value() V { return it.cur.Value }

func (it *Iterator[B, P, V]) Pair() common.Pair[P, V] { return it.cur }

// All drains the iterator as a range-over-func sequence.
func (it *Iterator[B, P, V]) All() iter.Seq2[P, V] {
	return func(yield func(P, V) bool) {
		for it.Next() {
			if !yield(it.cur.Point, it.cur.Value) {
				return
			}
		}
	}
}
