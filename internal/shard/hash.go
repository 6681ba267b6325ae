// Package shard assigns series to shards and renders the pre-built
// per-shard exposition bodies.
package shard

import "github.com/cespare/xxhash/v2"

// AssignShard maps a series key and shard count to a shard id in [0, n).
// It is a pure function of (key, n): the same inputs always yield the same
// id, which is what lets readers and writers agree on placement without any
// shared lookup table (spec §3 invariant 2).
//
// n == 0 is a programming error, not a runtime condition - config validation
// rejects num_shards == 0 before this is ever called.
func AssignShard(key []byte, n uint32) uint32 {
	h := xxhash.Sum64(key)
	return uint32(jumpConsistentHash(h, int32(n)))
}

// jumpConsistentHash is Lamping & Veach's algorithm (2014), ported
// bit-for-bit from the reference C++ implementation. It minimizes
// reassignment when n changes (spec §3 invariant 3, §8 test vectors).
func jumpConsistentHash(key uint64, numBuckets int32) int32 {
	var b, j int64 = -1, 0
	for j < int64(numBuckets) {
		b = j
		key = key*2862933555777941757 + 1
		j = int64(float64(b+1) * (float64(int64(1)<<31) / float64((key>>33)+1)))
	}
	return int32(b)
}
