package jojodiff

import "testing"

func TestHashWidthSampleSize(t *testing.T) {
	cases := []struct {
		w    HashWidth
		want int
	}{
		{Hash32, 4},
		{Hash64, 8},
	}
	for _, c := range cases {
		if got := c.w.SampleSize(); got != c.want {
			t.Errorf("HashWidth(%d).SampleSize() = %d, want %d", c.w, got, c.want)
		}
	}
}

func TestRollingHashDeterministic(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	h1 := NewRollingHash(Hash32)
	h2 := NewRollingHash(Hash32)
	for _, b := range data {
		if got, want := h1.Update(b), h2.Update(b); got != want {
			t.Fatalf("two fresh hashes diverged folding in the same bytes: %d != %d", got, want)
		}
	}
}

func TestRollingHashSameWindowSameValue(t *testing.T) {
	// Two independent runs over the same window, from a cold start,
	// must land on the same fingerprint regardless of what follows.
	window := []byte("abcdefgh")
	h1 := NewRollingHash(Hash32)
	var v1 uint64
	for _, b := range window {
		v1 = h1.Update(b)
	}

	h2 := NewRollingHash(Hash32)
	var v2 uint64
	for _, b := range window {
		v2 = h2.Update(b)
	}
	h2.Update('X') // diverge after the shared window
	// h2's value after the window (before 'X') should equal h1's v1.
	if v2 != v1 {
		t.Fatalf("a run that continues past the window had a different fingerprint at the window's end: %d != %d", v2, v1)
	}
	h3 := NewRollingHash(Hash32)
	var v3 uint64
	for _, b := range window {
		v3 = h3.Update(b)
	}
	if v1 != v3 {
		t.Fatalf("rehashing the same window gave different fingerprints: %d != %d", v1, v3)
	}
}

func TestRollingHashReset(t *testing.T) {
	h := NewRollingHash(Hash32)
	for _, b := range []byte("some bytes") {
		h.Update(b)
	}
	h.Reset()
	if h.Value() != 0 || h.EqualRun() != 0 {
		t.Fatalf("Reset left state behind: value=%d equalRun=%d", h.Value(), h.EqualRun())
	}

	h2 := NewRollingHash(Hash32)
	if got, want := h.Update('z'), h2.Update('z'); got != want {
		t.Fatalf("hash after Reset does not behave like a fresh hash: %d != %d", got, want)
	}
}

func TestRollingHashEqualRunSaturates(t *testing.T) {
	h := NewRollingHash(Hash32)
	ss := h.SampleSize()
	for i := 0; i < ss+10; i++ {
		h.Update('a')
	}
	if run := h.EqualRun(); run != ss {
		t.Fatalf("EqualRun() = %d, want it to saturate at sampleSize=%d", run, ss)
	}
}

func TestRollingHashEqualRunResetsOnChange(t *testing.T) {
	h := NewRollingHash(Hash32)
	for i := 0; i < 5; i++ {
		h.Update('a')
	}
	h.Update('b')
	if run := h.EqualRun(); run != 0 {
		t.Fatalf("EqualRun() = %d after a byte change, want 0", run)
	}
}

func TestRollingHashWarmupLen(t *testing.T) {
	h := NewRollingHash(Hash32)
	ss := h.SampleSize()
	if got, want := h.WarmupLen(false), ss-1; got != want {
		t.Errorf("WarmupLen(false) = %d, want %d", got, want)
	}
	if got, want := h.WarmupLen(true), 2*ss-1; got != want {
		t.Errorf("WarmupLen(true) = %d, want %d", got, want)
	}
}

func TestHash64UsesFullWidth(t *testing.T) {
	h := NewRollingHash(Hash64)
	if h.mask != ^uint64(0) {
		t.Fatalf("Hash64 mask = %#x, want all bits set", h.mask)
	}
}

func BenchmarkRollingHashUpdate(b *testing.B) {
	data := make([]byte, 64*1024)
	for i := range data {
		data[i] = byte(i)
	}
	h := NewRollingHash(Hash32)
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		for _, c := range data {
			h.Update(c)
		}
	}
}
