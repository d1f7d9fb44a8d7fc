package structure

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
)

// BloomFilter answers "definitely absent" for Morton keys. Blocks carry one
// so a flush can skip reading blocks a delete cannot touch.
type BloomFilter struct {
	bitset []byte
	k      uint
	m      uint
	count  uint
	lock   sync.RWMutex
}

func NewBloomFilter(n uint, p float64) *BloomFilter {
	// m = - (n * ln(p)) / (ln(2)^2)
	// k = (m / n) * ln(2)
	if n == 0 {
		n = 1
	}
	m := uint(math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)))
	m = (m + 7) &^ 7
	k := uint(math.Ceil((float64(m) / float64(n)) * math.Ln2))

	return &BloomFilter{
		bitset: make([]byte, m/8),
		k:      k,
		m:      m,
	}
}

// FromBytes restores a filter written by Bytes.
func FromBytes(b []byte) (*BloomFilter, error) {
	if len(b) < 2 || b[0] == 0 {
		return nil, fmt.Errorf("bloom: malformed filter of %d bytes", len(b))
	}
	bits := append([]byte(nil), b[1:]...)
	return &BloomFilter{
		bitset: bits,
		k:      uint(b[0]),
		m:      uint(len(bits)) * 8,
	}, nil
}

// Bytes is the hash count followed by the bitset.
func (bf *BloomFilter) Bytes() []byte {
	bf.lock.RLock()
	defer bf.lock.RUnlock()
	return append([]byte{byte(bf.k)}, bf.bitset...)
}

func (bf *BloomFilter) Add(key uint64) {
	bf.lock.Lock()
	defer bf.lock.Unlock()

	h1, h2 := hash1(key), hash2(key)
	for i := uint(0); i < bf.k; i++ {
		pos := (h1 + uint32(i)*h2) % uint32(bf.m)
		bf.bitset[pos/8] |= 1 << (pos % 8)
	}
	bf.count++
}

func (bf *BloomFilter) Contains(key uint64) bool {
	bf.lock.RLock()
	defer bf.lock.RUnlock()

	h1, h2 := hash1(key), hash2(key)
	for i := uint(0); i < bf.k; i++ {
		pos := (h1 + uint32(i)*h2) % uint32(bf.m)
		if bf.bitset[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

func hash1(n uint64) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], n)
	h := fnv.New32a()
	h.Write(buf[:])
	return h.Sum32()
}

func hash2(n uint64) uint32 {
	return uint32(n ^ (n >> 32))
}

func (bf *BloomFilter) Stats() map[string]interface{} {
	bf.lock.RLock()
	defer bf.lock.RUnlock()
	return map[string]interface{}{
		"bloom_bits_size": bf.m,
		"bloom_hashes":    bf.k,
		"bloom_count":     bf.count,
	}
}
