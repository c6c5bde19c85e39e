package array

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash"
)

// Fingerprint returns a content hash of the array (dtype, shape and every
// element). The broadcast loop uses it to skip re-cloning a display value
// that hasn't changed since the last frame, and workspace round-trip tests
// use it to assert semantic equality after a save/load cycle.
func (a NDArray) Fingerprint() uint64 {
	h := xxhash.New()
	h.Write([]byte(a.Dtype))
	var buf [8]byte
	for _, s := range a.Shape {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(s)))
		h.Write(buf[:])
	}
	for _, f := range a.Floats {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}
	for _, n := range a.Ints {
		binary.LittleEndian.PutUint64(buf[:], uint64(n))
		h.Write(buf[:])
	}
	for _, b := range a.Bools {
		if b {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}
	return h.Sum64()
}
