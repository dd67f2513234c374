package collator

import (
	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
)

// integer is the set of key types IdentityHasher accepts — any built-in
// integer type, signed or unsigned. Narrower than Key: identity-hashing a
// float would truncate it to uint64, losing its fractional bits and
// inviting collisions, so floats are excluded here even though they are a
// valid Pair key type.
type integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Hasher maps a key to a non-negative integer address space. The collator
// masks off the low bits of Hash(k) to pick a partition, so Hash need not
// be cryptographically strong — only well-distributed across its low bits
// for the key domain in use.
type Hasher[K any] interface {
	Hash(k K) uint64
}

// IdentityHasher routes integer keys by their own value, matching the
// reference implementation's Identity_Functor. It is the right choice only
// when keys are already close to uniformly distributed over their low
// bits (e.g. random or hashed upstream) — keys that share their low bits,
// such as multiples of the partition count, will pile into a handful of
// partitions.
type IdentityHasher[K integer] struct{}

// Hash implements Hasher.
func (IdentityHasher[K]) Hash(k K) uint64 { return uint64(k) }

// XXHasher hashes a key's raw in-memory representation with xxHash64. Use
// this (or one of the other hashers below) whenever keys are not already
// uniformly distributed over their low bits — keys on a fixed stride,
// coarsely rounded timestamps, non-random identifiers.
type XXHasher[K Key] struct{}

// Hash implements Hasher.
func (XXHasher[K]) Hash(k K) uint64 { return xxhash.Sum64(keyBytes(&k)) }

// Murmur3Hasher hashes a key's raw in-memory representation with
// MurmurHash3 (64-bit).
type Murmur3Hasher[K Key] struct{}

// Hash implements Hasher.
func (Murmur3Hasher[K]) Hash(k K) uint64 { return murmur3.Sum64(keyBytes(&k)) }

// XXH3Hasher hashes a key's raw in-memory representation with xxHash3
// (64-bit).
type XXH3Hasher[K Key] struct{}

// Hash implements Hasher.
func (XXH3Hasher[K]) Hash(k K) uint64 { return xxh3.Hash(keyBytes(&k)) }

// partitionOf returns the partition index for key k under hasher h, given
// a partition count that is a power of two.
func partitionOf[K any](h Hasher[K], k K, partitionCount uint32) uint32 {
	return uint32(h.Hash(k)) & (partitionCount - 1)
}
