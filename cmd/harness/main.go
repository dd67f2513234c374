// Harness is a reference driver for the collator library: N concurrent
// producers deposit randomly keyed pairs, the stream is closed, the
// result is collated with a configurable thread count, and the harness
// walks the output once to verify that partitions come in id order and
// keys are non-decreasing within each partition.
//
// Usage:
//
//	go run ./cmd/harness -work-pref /tmp/run1 -pairs 20000000 -producers 8 -threads 4
//
// Flags:
//
//	-work-pref   path prefix for partition files (default: temp dir)
//	-pairs       total key-value pairs to deposit (default: 20,000,000)
//	-producers   concurrent producer goroutines (default: 4)
//	-partitions  partition count, must be a power of two (default: 128)
//	-threads     sort-phase worker count (default: GOMAXPROCS)
//	-stats       compute pair/key/mode statistics during collate
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jamshed/key-value-collator"
)

func main() {
	workPref := flag.String("work-pref", "", "path prefix for partition files (default: a fresh temp dir)")
	numPairs := flag.Uint64("pairs", 20_000_000, "total key-value pairs to deposit")
	numProducers := flag.Int("producers", 4, "concurrent producer goroutines")
	numPartitions := flag.Uint("partitions", 128, "partition count, must be a power of two")
	numThreads := flag.Int("threads", runtime.GOMAXPROCS(0), "sort-phase worker count")
	withStats := flag.Bool("stats", true, "compute pair/key/mode statistics during collate")
	flag.Parse()

	log := logrus.StandardLogger()

	pref := *workPref
	if pref == "" {
		dir, err := os.MkdirTemp("", "kv-collator-")
		if err != nil {
			log.WithError(err).Fatal("create temp dir")
		}
		defer func() { _ = os.RemoveAll(dir) }()
		pref = dir + "/run"
	}

	opts := []collator.Option{
		collator.WithPartitionCount(uint32(*numPartitions)),
		collator.WithBufferCount(2 * *numProducers),
	}
	if *withStats {
		opts = append(opts, collator.WithComputeStats())
	}

	c, err := collator.New[uint32, uint64](pref, collator.IdentityHasher[uint32]{}, opts...)
	if err != nil {
		log.WithError(err).Fatal("construct collator")
	}

	log.WithFields(logrus.Fields{
		"pairs":      *numPairs,
		"producers":  *numProducers,
		"partitions": *numPartitions,
	}).Info("depositing")

	depositStart := time.Now()
	perProducer := *numPairs / uint64(*numProducers)
	var wg sync.WaitGroup
	for p := range *numProducers {
		wg.Add(1)
		go func(producer int) {
			defer wg.Done()
			count := perProducer
			if producer == *numProducers-1 {
				count = *numPairs - perProducer*uint64(*numProducers-1)
			}

			rng := rand.New(rand.NewPCG(uint64(producer), 0xC011A708))
			var deposited uint64
			for deposited < count {
				buf, err := c.CheckoutBuffer()
				if err != nil {
					log.WithError(err).Fatal("checkout buffer")
				}
				buf = buf[:0]
				for len(buf) < cap(buf) && deposited < count {
					k := rng.Uint32()
					buf = append(buf, collator.Pair[uint32, uint64]{Key: k, Val: uint64(k) * 2})
					deposited++
				}
				c.ReturnBuffer(buf)
			}
		}(p)
	}
	wg.Wait()

	if err := c.CloseDepositStream(); err != nil {
		log.WithError(err).Fatal("close deposit stream")
	}
	log.WithField("elapsed", time.Since(depositStart)).Info("deposit complete")

	collateStart := time.Now()
	if err := c.Collate(context.Background(), *numThreads); err != nil {
		log.WithError(err).Fatal("collate")
	}
	log.WithField("elapsed", time.Since(collateStart)).Info("collate complete")

	if *withStats {
		pairCount, _ := c.PairCount()
		uniqueKeys, _ := c.UniqueKeyCount()
		modeFreq, _ := c.ModeFrequency()
		log.WithFields(logrus.Fields{
			"pair_count":  pairCount,
			"unique_keys": uniqueKeys,
			"mode_freq":   modeFreq,
		}).Info("stats")
	}

	verifyStart := time.Now()
	it, err := c.Begin()
	if err != nil {
		log.WithError(err).Fatal("begin iteration")
	}
	end := c.End()

	var groups uint64
	var prev uint32
	havePrev := false
	// IdentityHasher routes each key to partition k & mask.
	mask := uint32(*numPartitions) - 1
	for !it.Equal(end) {
		k := it.Deref()
		if havePrev && (k&mask < prev&mask || (k&mask == prev&mask && k < prev)) {
			log.WithFields(logrus.Fields{"prev": prev, "next": k}).Fatal("key-group iteration order violated")
		}
		prev, havePrev = k, true
		groups++
		if err := it.Advance(); err != nil {
			log.WithError(err).Fatal("advance iterator")
		}
	}
	if err := it.Close(); err != nil {
		log.WithError(err).Fatal("close iterator")
	}

	fmt.Printf("verified %d key-groups in %s\n", groups, time.Since(verifyStart))

	if err := c.Close(); err != nil {
		log.WithError(err).Fatal("close collator")
	}
}
