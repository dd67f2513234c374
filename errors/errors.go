// Package errors defines all exported error sentinels for the collator.
//
// This is the single source of truth for error values. Both the top-level
// collator package and its internal packages import from here, ensuring
// errors.Is checks work across package boundaries.
package errors

import "errors"

// Configuration errors — returned by New.
var (
	ErrPartitionCapacityZero = errors.New("collator: partition buffer capacity rounds to zero for this value size")
	ErrPartitionCountNotPow2 = errors.New("collator: partition count must be a power of two")
	ErrBufferCountZero       = errors.New("collator: buffer count must be positive")
)

// State-machine errors — returned for out-of-order calls a racing caller
// could plausibly trigger. Resource-leak-class violations (destroying a
// collator with buffers still checked out, double Close) panic instead;
// see collator.go.
var (
	ErrInvalidState    = errors.New("collator: operation not valid in current state")
	ErrStatsNotEnabled = errors.New("collator: stats were not requested via WithComputeStats")
)

// I/O failure — wraps the first failing operation (open/read/write/unlink).
var ErrIOFailure = errors.New("collator: I/O failure")

// Iterator errors.
var ErrIteratorAtEnd = errors.New("collator: iterator has no current element")
