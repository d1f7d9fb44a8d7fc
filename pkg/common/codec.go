package common

import "fmt"

// Codec serializes values of T to a fixed number of bytes.
type Codec[T any] interface {
	Size() int
	Encode(v T) ([]byte, error)
	Decode(b []byte) (T, error)
}

// Point is the capability a key type needs to be filtered by a region B.
type Point[B any] interface {
	Overlaps(bounds B) bool
}

// Schema binds the point and value codecs used by one store. Every store
// opened over the same bytes must use the same schema.
type Schema[P, V any] struct {
	Points Codec[P]
	Values Codec[V]
}

// PairSize is the encoded size of a (point, value) pair.
func (s Schema[P, V]) PairSize() int {
	return s.Points.Size() + s.Values.Size()
}

// AppendPair appends the encoding of (p, v) to dst.
func (s Schema[P, V]) AppendPair(dst []byte, p P, v V) ([]byte, error) {
	pb, err := s.Points.Encode(p)
	if err != nil {
		return dst, err
	}
	if len(pb) != s.Points.Size() {
		return dst, fmt.Errorf("%w: point encoded to %d bytes, want %d", ErrInvariant, len(pb), s.Points.Size())
	}
	vb, err := s.Values.Encode(v)
	if err != nil {
		return dst, err
	}
	if len(vb) != s.Values.Size() {
		return dst, fmt.Errorf("%w: value encoded to %d bytes, want %d", ErrInvariant, len(vb), s.Values.Size())
	}
	dst = append(dst, pb...)
	return append(dst, vb...), nil
}

// DecodePair decodes exactly PairSize bytes.
func (s Schema[P, V]) DecodePair(b []byte) (P, V, error) {
	var p P
	var v V
	if len(b) != s.PairSize() {
		return p, v, fmt.Errorf("%w: pair of %d bytes, want %d", ErrDecode, len(b), s.PairSize())
	}
	n := s.Points.Size()
	p, err := s.Points.Decode(b[:n])
	if err != nil {
		return p, v, fmt.Errorf("%w: point: %v", ErrDecode, err)
	}
	v, err = s.Values.Decode(b[n:])
	if err != nil {
		return p, v, fmt.Errorf("%w: value: %v", ErrDecode, err)
	}
	return p, v, nil
}
