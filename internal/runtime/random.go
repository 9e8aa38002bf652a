package runtime

import (
	"encoding/binary"
	"hash/fnv"
	"math"
)

// RandomSource yields reproducible draws in [0, 1) for a seed and a key that
// identifies where in the playthrough the draw happens.
type RandomSource interface {
	Draw(seed int64, key string) float64
}

// HashSource is the default RandomSource. It hashes the seed and the key with
// FNV-1a, so the same state always draws the same number.
type HashSource struct{}

func (HashSource) Draw(seed int64, key string) float64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(seed))
	h.Write(buf[:])
	h.Write([]byte(key))
	x := mix(h.Sum64())
	// Keep the top 53 bits so the result maps exactly onto a float64 mantissa.
	return float64(x>>11) / float64(uint64(1)<<53)
}

// mix is the murmur3 64-bit finalizer.
func mix(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

// FixedSource always draws the same value. Useful in tests.
type FixedSource float64

func (f FixedSource) Draw(int64, string) float64 {
	return math.Min(math.Max(float64(f), 0), math.Nextafter(1, 0))
}
