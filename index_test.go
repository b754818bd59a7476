package jojodiff

import "testing"

func TestLargestPrimeAtMost(t *testing.T) {
	cases := []struct{ n, want int }{
		{1, 2},
		{2, 2},
		{3, 3},
		{4, 3},
		{10, 7},
		{100, 97},
		{0, 2},
		{-5, 2},
	}
	for _, c := range cases {
		if got := largestPrimeAtMost(c.n); got != c.want {
			t.Errorf("largestPrimeAtMost(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestNewIndexSizing(t *testing.T) {
	idx := NewIndex(1<<20, 4)
	if idx.Prime() <= 0 {
		t.Fatalf("Prime() = %d, want positive", idx.Prime())
	}
	if idx.ByteSize() > 1<<20 {
		t.Fatalf("ByteSize() = %d exceeds requested capacity %d", idx.ByteSize(), 1<<20)
	}
	wantMax := (1 << 20) / indexEntryWidth
	if idx.Prime() > wantMax {
		t.Fatalf("Prime() = %d exceeds the slot count implied by capacity", idx.Prime())
	}
}

func TestNewIndexDegenerateCapacity(t *testing.T) {
	idx := NewIndex(0, 4)
	if idx.Prime() < 2 {
		t.Fatalf("Prime() = %d, want at least 2 slots even for a zero capacity request", idx.Prime())
	}
}

func TestIndexAddGetRoundTrip(t *testing.T) {
	idx := NewIndex(1<<16, 4)
	idx.Add(12345, 9000, 0)
	pos, ok := idx.Get(12345)
	if !ok {
		t.Fatalf("Get after Add: not found")
	}
	if pos != 9000 {
		t.Fatalf("Get after Add: pos = %d, want 9000", pos)
	}
}

func TestIndexGetMiss(t *testing.T) {
	idx := NewIndex(1<<16, 4)
	if _, ok := idx.Get(999); ok {
		t.Fatalf("Get on empty index returned ok=true")
	}
}

func TestIndexReset(t *testing.T) {
	idx := NewIndex(1<<16, 4)
	idx.Add(1, 100, 0)
	idx.Get(1) // bump hits
	idx.Reset()
	if _, ok := idx.Get(1); ok {
		t.Fatalf("Get after Reset found a stale entry")
	}
	if idx.Hits() != 0 {
		t.Fatalf("Hits() = %d after Reset, want 0", idx.Hits())
	}
}

func TestIndexOverwritePolicyEventuallyOverwrites(t *testing.T) {
	// A 2-slot index fed many distinct keys must eventually overwrite,
	// since it has nowhere else to put new entries once both slots are
	// claimed and the collision counter drains.
	idx := NewIndex(2*indexEntryWidth, 4)
	firstKey := uint64(1)
	idx.Add(firstKey, 1, 0)
	overwritten := false
	for k := uint64(2); k < 10000; k++ {
		idx.Add(k, int64(k), 0)
		if _, ok := idx.Get(firstKey); !ok {
			overwritten = true
			break
		}
	}
	if !overwritten {
		t.Fatalf("a 2-slot index never overwrote its first entry after 10000 distinct insertions")
	}
}

func TestIndexDistributionBucketsSumToStoredEntries(t *testing.T) {
	idx := NewIndex(1<<16, 4)
	for i := int64(1); i <= 50; i++ {
		idx.Add(uint64(i)*7919, i*100, 0)
	}
	dist := idx.Distribution(5000, 10)
	var total int
	for _, c := range dist {
		total += c
	}
	if total == 0 {
		t.Fatalf("Distribution reported zero entries across all buckets despite 50 insertions")
	}
}

func BenchmarkIndexAdd(b *testing.B) {
	idx := NewIndex(1<<20, 4)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		idx.Add(uint64(i), int64(i), 0)
	}
}

func BenchmarkIndexGet(b *testing.B) {
	idx := NewIndex(1<<20, 4)
	const n = 4096
	for i := 0; i < n; i++ {
		idx.Add(uint64(i), int64(i), 0)
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		idx.Get(uint64(i % n))
	}
}
