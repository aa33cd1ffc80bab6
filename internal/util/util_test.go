package util

import "testing"

func TestNextPow2(t *testing.T) {
	t.Parallel()

	cases := map[uint64]uint64{0: 1, 1: 1, 2: 2, 3: 4, 5: 8, 64: 64, 65: 128, 1<<63 + 1: 1 << 63}
	for in, want := range cases {
		if got := NextPow2(in); got != want {
			t.Fatalf("NextPow2(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestClampShards(t *testing.T) {
	t.Parallel()

	if got := ClampShards(0); got != 1 {
		t.Fatalf("ClampShards(0) = %d", got)
	}
	if got := ClampShards(5); got != 8 {
		t.Fatalf("ClampShards(5) = %d", got)
	}
	if got := ClampShards(10_000); got != MaxShards {
		t.Fatalf("ClampShards(10000) = %d", got)
	}
	if n := ReasonableShardCount(); n < 1 || n > MaxShards || n&(n-1) != 0 {
		t.Fatalf("ReasonableShardCount() = %d", n)
	}
}

func TestShardIndexStable(t *testing.T) {
	t.Parallel()

	h := Hash64("did:plc:abc")
	if h != Hash64("did:plc:abc") {
		t.Fatal("hash must be deterministic")
	}
	for _, n := range []int{1, 2, 16, 256} {
		if idx := ShardIndex(h, n); idx < 0 || idx >= n {
			t.Fatalf("ShardIndex out of range: %d for %d shards", idx, n)
		}
	}
}
