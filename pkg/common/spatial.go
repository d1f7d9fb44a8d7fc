package common

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxCoord is the largest coordinate that still interleaves into a 63-bit
// Morton code (21 bits per axis).
const MaxCoord = 1<<21 - 1

const (
	Point3Size = 12
	ValueSize  = 16
)

func Part1By2(n uint32) uint64 {
	x := uint64(n) & 0x1fffff
	x = (x | x<<32) & 0x1f00000000ffff
	x = (x | x<<16) & 0x1f0000ff0000ff
	x = (x | x<<8) & 0x100f00f00f00f00f
	x = (x | x<<4) & 0x10c30c30c30c30c3
	x = (x | x<<2) & 0x1249249249249249
	return x
}

func Compact1By2(x uint64) uint32 {
	x &= 0x1249249249249249
	x = (x ^ (x >> 2)) & 0x10c30c30c30c30c3
	x = (x ^ (x >> 4)) & 0x100f00f00f00f00f
	x = (x ^ (x >> 8)) & 0x1f0000ff0000ff
	x = (x ^ (x >> 16)) & 0x1f00000000ffff
	x = (x ^ (x >> 32)) & 0x1fffff
	return uint32(x)
}

func Encode3D(x, y, z uint32) (uint64, error) {
	if x > MaxCoord || y > MaxCoord || z > MaxCoord {
		return 0, fmt.Errorf("%w: (%d,%d,%d) max %d", ErrCoordinate, x, y, z, MaxCoord)
	}
	return Part1By2(z)<<2 | Part1By2(y)<<1 | Part1By2(x), nil
}

func Decode3D(code uint64) (uint32, uint32, uint32) {
	return Compact1By2(code), Compact1By2(code >> 1), Compact1By2(code >> 2)
}

// Point3 is a point on the 3D integer grid.
type Point3 struct {
	X, Y, Z uint32
}

// Box3 is an axis-aligned box with inclusive corners.
type Box3 struct {
	Min, Max Point3
}

func (p Point3) Valid() bool {
	return p.X <= MaxCoord && p.Y <= MaxCoord && p.Z <= MaxCoord
}

// Morton returns the Z-order code of p. Coordinates above MaxCoord are masked.
func (p Point3) Morton() uint64 {
	return Part1By2(p.Z)<<2 | Part1By2(p.Y)<<1 | Part1By2(p.X)
}

func (p Point3) Overlaps(b Box3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

func (p Point3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z)
}

func NewBox3(minX, minY, minZ, maxX, maxY, maxZ uint32) (Box3, error) {
	if minX > maxX || minY > maxY || minZ > maxZ {
		return Box3{}, errors.New("invalid bounding box")
	}
	return Box3{Min: Point3{minX, minY, minZ}, Max: Point3{maxX, maxY, maxZ}}, nil
}

// PointBox is the degenerate box holding only p.
func PointBox(p Point3) Box3 {
	return Box3{Min: p, Max: p}
}

// Extend grows b to cover p.
func (b Box3) Extend(p Point3) Box3 {
	b.Min = Point3{min(b.Min.X, p.X), min(b.Min.Y, p.Y), min(b.Min.Z, p.Z)}
	b.Max = Point3{max(b.Max.X, p.X), max(b.Max.Y, p.Y), max(b.Max.Z, p.Z)}
	return b
}

func (b Box3) Intersects(o Box3) bool {
	return b.Min.X <= o.Max.X && o.Min.X <= b.Max.X &&
		b.Min.Y <= o.Max.Y && o.Min.Y <= b.Max.Y &&
		b.Min.Z <= o.Max.Z && o.Min.Z <= b.Max.Z
}

func (b Box3) String() string {
	return fmt.Sprintf("[%s..%s]", b.Min, b.Max)
}

// Value is a fixed 16-byte payload.
type Value [ValueSize]byte

// ValueFromString copies s into a Value, failing if it does not fit.
func ValueFromString(s string) (Value, error) {
	var v Value
	if len(s) > ValueSize {
		return v, fmt.Errorf("value %q longer than %d bytes", s, ValueSize)
	}
	copy(v[:], s)
	return v, nil
}

func (v Value) String() string {
	n := 0
	for n < len(v) && v[n] != 0 {
		n++
	}
	return string(v[:n])
}

// Point3Codec encodes a Point3 as three big-endian uint32s.
type Point3Codec struct{}

func (Point3Codec) Size() int { return Point3Size }

func (Point3Codec) Encode(p Point3) ([]byte, error) {
	b := make([]byte, Point3Size)
	binary.BigEndian.PutUint32(b[0:4], p.X)
	binary.BigEndian.PutUint32(b[4:8], p.Y)
	binary.BigEndian.PutUint32(b[8:12], p.Z)
	return b, nil
}

func (Point3Codec) Decode(b []byte) (Point3, error) {
	if len(b) != Point3Size {
		return Point3{}, fmt.Errorf("point: got %d bytes, want %d", len(b), Point3Size)
	}
	return Point3{
		X: binary.BigEndian.Uint32(b[0:4]),
		Y: binary.BigEndian.Uint32(b[4:8]),
		Z: binary.BigEndian.Uint32(b[8:12]),
	}, nil
}

type ValueCodec struct{}

func (ValueCodec) Size() int { return ValueSize }

func (ValueCodec) Encode(v Value) ([]byte, error) {
	b := make([]byte, ValueSize)
	copy(b, v[:])
	return b, nil
}

func (ValueCodec) Decode(b []byte) (Value, error) {
	var v Value
	if len(b) != ValueSize {
		return v, fmt.Errorf("value: got %d bytes, want %d", len(b), ValueSize)
	}
	copy(v[:], b)
	return v, nil
}

// Schema3 is the schema for Point3 keys with Value payloads.
func Schema3() Schema[Point3, Value] {
	return Schema[Point3, Value]{Points: Point3Codec{}, Values: ValueCodec{}}
}
