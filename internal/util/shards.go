package util

import "runtime"

// MaxShards caps the automatic shard count.
const MaxShards = 256

// ReasonableShardCount picks a default shard count from CPU parallelism:
// nextPow2(2*GOMAXPROCS), clamped to [1..MaxShards].
func ReasonableShardCount() int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	return ClampShards(p * 2)
}

// ClampShards rounds n up to a power of two within [1..MaxShards].
func ClampShards(n int) int {
	if n < 1 {
		return 1
	}
	s := int(NextPow2(uint64(n)))
	if s > MaxShards {
		s = MaxShards
	}
	return s
}

// NextPow2 returns the smallest power of two >= x (x == 0 -> 1).
// Overflow clamps to 1<<63.
func NextPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	x++
	if x == 0 {
		return 1 << 63
	}
	return x
}
