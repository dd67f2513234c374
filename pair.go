package collator

import "unsafe"

// Key is the set of types Pair's raw-byte serialization supports for K:
// built-in ordered scalars whose in-memory representation already is the
// value, not a pointer to it. This is a strict subset of cmp.Ordered —
// notably, ~string is excluded. A Go string is a {data pointer, length}
// header: serializing it with the byte view below (the same technique
// used for V) would write that pointer into the partition file, and
// reading it back would hand the runtime a string header pointing at
// whatever happened to occupy that file offset. Every Key type here is
// safe to serialize this way because its value and its representation
// are the same bits.
type Key interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr |
		~float32 | ~float64
}

// Pair is a single key-value record. K is any fixed-layout ordered scalar
// (see Key); V is any fixed-layout type whose size is known at compile
// time from unsafe.Sizeof.
//
// Neither K nor V may contain pointers, slices, strings, or maps: those
// have indirect or variable-size representations, and the raw byte view
// below would serialize the pointer value, not the pointed-to data. This
// mirrors the spec's own "opaque bytes of a fixed size" value model — a
// plain struct of fixed-width fields, a fixed-size array, or a scalar.
// K's constraint enforces this at compile time; V's constraint (any)
// cannot, so it is documented instead.
type Pair[K Key, V any] struct {
	Key K
	Val V
}

// pairSize returns sizeof(Pair[K,V]) for the given type arguments.
func pairSize[K Key, V any]() int {
	var p Pair[K, V]
	return int(unsafe.Sizeof(p))
}

// pairsToBytes returns a zero-copy byte view over pairs, laid out as the
// host memory representation of each Pair with no framing, no header, and
// no checksum — the file format spec.md §6 requires, and the direct Go
// translation of the original implementation's reinterpret_cast<char*>.
//
// The returned slice aliases pairs; it must not be retained past the
// lifetime of pairs or across any append that might reallocate pairs.
func pairsToBytes[K Key, V any](pairs []Pair[K, V]) []byte {
	if len(pairs) == 0 {
		return nil
	}
	sz := pairSize[K, V]()
	return unsafe.Slice((*byte)(unsafe.Pointer(&pairs[0])), sz*len(pairs))
}

// bytesToPairs is the inverse of pairsToBytes: it reinterprets a byte
// buffer, whose length must be an exact multiple of sizeof(Pair[K,V]), as
// a slice of pairs. The returned slice aliases buf.
func bytesToPairs[K Key, V any](buf []byte) []Pair[K, V] {
	if len(buf) == 0 {
		return nil
	}
	sz := pairSize[K, V]()
	n := len(buf) / sz
	return unsafe.Slice((*Pair[K, V])(unsafe.Pointer(&buf[0])), n)
}

// keyBytes returns a zero-copy byte view over a single key's in-memory
// representation, the same unsafe technique as pairsToBytes applied to
// one scalar. Used by the non-identity Hasher implementations below to
// hash arbitrary fixed-layout keys uniformly, regardless of width.
func keyBytes[K Key](k *K) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(k)), unsafe.Sizeof(*k))
}
