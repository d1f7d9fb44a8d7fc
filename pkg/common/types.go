package common

import "fmt"

// Op is the tag byte stored in front of every staged record.
type Op uint8

const (
	OpInsert Op = 0
	OpDelete Op = 1
)

func (op Op) String() string {
	switch op {
	case OpInsert:
		return "insert"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", uint8(op))
	}
}

// Pair is one (point, value) entry of a data block.
type Pair[P, V any] struct {
	Point P
	Value V
}

// Row is a logged mutation: an insert or a delete of a (point, value) pair.
type Row[P, V any] struct {
	Op    Op
	Point P
	Value V
}

func Insert[P, V any](p P, v V) Row[P, V] {
	return Row[P, V]{Op: OpInsert, Point: p, Value: v}
}

func Delete[P, V any](p P, v V) Row[P, V] {
	return Row[P, V]{Op: OpDelete, Point: p, Value: v}
}

// Pair drops the tag.
func (r Row[P, V]) Pair() Pair[P, V] {
	return Pair[P, V]{Point: r.Point, Value: r.Value}
}

// String 方便调试打印
func (r Row[P, V]) String() string {
	return fmt.Sprintf("Row{%s %v -> %v}", r.Op, r.Point, r.Value)
}
