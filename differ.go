package jojodiff

import (
	"errors"
	"io"

	"github.com/vppillai/jojodiff/jerr"
)

// IndexStrategy selects how the source position index of §4.3 gets
// populated.
type IndexStrategy int

const (
	// Prescan indexes the entire source before diffing starts. Best when
	// the source fits comfortably in the index's capacity and random
	// access to it is cheap (e.g. the mmap-backed ByteSource).
	Prescan IndexStrategy = iota
	// Incremental indexes source positions as the main loop walks over
	// them, and at each mismatch also indexes a bounded window of source
	// ahead of the cursor (as SearchLocal does) before searching. Best
	// for large sources read sequentially.
	Incremental
	// SearchLocal defers all indexing to the moment a mismatch is found:
	// it indexes only a bounded window of source starting at the
	// mismatch point, trading recall for a bounded worst-case cost per
	// search.
	SearchLocal
)

// Options configures a Differ.
type Options struct {
	HashWidth          HashWidth
	Index              IndexStrategy
	IndexCapacityBytes int
	MatchTableSize     int
	CompareAll         bool
	AheadMax           int

	// MatchMin/MatchMax tune the -n/-x flags: the shortest confirmed run
	// worth keeping, and the length at which a run is trusted without
	// further extension. Zero means "use the package default".
	MatchMin int64
	MatchMax int64

	// Sink, if set, is notified of every operator the differ emits, in
	// stream order, purely for human-readable tracing (the -l/-r
	// sinks). It never influences the patch itself.
	Sink func(op Op, orgPos, newPos, length int64) error
}

// DefaultOptions returns the settings used when the caller has no
// reason to deviate: a 32-bit hash, incremental indexing, a 32 MiB index
// and a match table of 128 candidates.
func DefaultOptions() Options {
	return Options{
		HashWidth:          Hash32,
		Index:              Incremental,
		IndexCapacityBytes: 32 << 20,
		MatchTableSize:     128,
		CompareAll:         false,
		AheadMax:           1 << 16,
	}
}

// Differ computes the patch between an org (source) and new_
// (destination) ByteSource, writing it through an Encoder.
type Differ struct {
	org, new_ ByteSource
	enc       *Encoder
	opts      Options

	sampleSize int
	hash       *RollingHash
	indexWarm  int64
	midStream  bool

	index *Index
	mt    *MatchTable

	stats DifferStats
}

// NewDiffer constructs a Differ over org/new_, writing its patch to out.
func NewDiffer(org, new_ ByteSource, out io.Writer, opts Options) *Differ {
	hash := NewRollingHash(opts.HashWidth)
	index := NewIndex(opts.IndexCapacityBytes, hash.SampleSize())
	return &Differ{
		org: org, new_: new_,
		enc:        NewEncoder(out),
		opts:       opts,
		sampleSize: hash.SampleSize(),
		hash:       hash,
		index:      index,
		mt:         NewMatchTableWithBounds(index, org, new_, opts.MatchTableSize, opts.CompareAll, opts.AheadMax, opts.MatchMin, opts.MatchMax),
	}
}

// Stats reports operator counts accumulated so far.
func (d *Differ) Stats() DifferStats { return d.stats }

// Index returns the position index this Differ searched against, for
// -vv diagnostic reporting (hit count, bucket distribution).
func (d *Differ) Index() *Index { return d.index }

// HashRepairs returns the match table's count of hits folded into an
// existing candidate rather than allocated as a new one, for -vv
// diagnostic reporting.
func (d *Differ) HashRepairs() int { return d.mt.HashRepairs() }

func (d *Differ) notify(op Op, orgPos, newPos, length int64) error {
	if d.opts.Sink == nil {
		return nil
	}
	return d.opts.Sink(op, orgPos, newPos, length)
}

// Diff runs the full comparison, writing a complete patch (including
// its terminating marker) to the Encoder's writer.
func (d *Differ) Diff() error {
	if d.opts.Index == Prescan {
		if err := d.prescan(); err != nil {
			return err
		}
	}

	var pOrg, pNew int64
	var eqlRun int64

	flushEQL := func() error {
		if eqlRun == 0 {
			return nil
		}
		d.stats.EQLOps++
		d.stats.EQLBytes += eqlRun
		n := eqlRun
		eqlRun = 0
		if err := d.enc.EQL(n); err != nil {
			return err
		}
		return d.notify(OpEQL, pOrg-n, pNew-n, n)
	}

	for {
		ob, errO := d.org.Get(pOrg, Read)
		nb, errN := d.new_.Get(pNew, Read)

		orgDone := errors.Is(errO, io.EOF)
		newDone := errors.Is(errN, io.EOF)
		if errO != nil && !orgDone {
			return jerr.Wrap(jerr.ErrRead, "reading source")
		}
		if errN != nil && !newDone {
			return jerr.Wrap(jerr.ErrRead, "reading destination")
		}

		if orgDone && newDone {
			if err := flushEQL(); err != nil {
				return err
			}
			return d.enc.End()
		}

		if !orgDone && !newDone && ob == nb {
			eqlRun++
			if d.opts.Index == Incremental {
				d.indexIncremental(pOrg, ob)
			}
			pOrg++
			pNew++
			continue
		}

		if err := flushEQL(); err != nil {
			return err
		}
		if d.opts.Index == Incremental && !orgDone {
			// index the byte under the mismatch cursor too, matching the
			// original's unconditional per-iteration index advance: every
			// org position the main loop visits gets indexed, not only the
			// ones that happened to also match the destination.
			d.indexIncremental(pOrg, ob)
		}
		d.resetIndexingHash()

		if orgDone {
			return d.flushTailInsert(pNew)
		}
		if newDone {
			return d.flushTailDelete(pOrg)
		}

		newOrg, newNew, err := d.search(pOrg, pNew)
		if err != nil {
			return err
		}
		if err := d.emitGap(pOrg, pNew, newOrg, newNew); err != nil {
			return err
		}
		pOrg, pNew = newOrg, newNew
	}
}

// resetIndexingHash restarts the incremental-indexing rolling hash
// after a non-contiguous jump; the warm-up before its fingerprints are
// trusted is longer than at a true stream start (§4.1).
func (d *Differ) resetIndexingHash() {
	d.hash.Reset()
	d.indexWarm = 0
	d.midStream = true
}

func (d *Differ) indexIncremental(pOrg int64, b byte) {
	d.hash.Update(b)
	d.indexWarm++
	if d.indexWarm > int64(d.hash.WarmupLen(d.midStream)) {
		d.index.Add(d.hash.Value(), pOrg-int64(d.sampleSize)+1, d.hash.EqualRun())
	}
}

// prescan indexes the whole source before diffing begins (§4.3,
// IndexStrategy Prescan).
func (d *Differ) prescan() error {
	h := NewRollingHash(d.opts.HashWidth)
	var pos, n int64
	for {
		b, err := d.org.Get(pos, Read)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return jerr.Wrap(jerr.ErrRead, "prescanning source")
		}
		h.Update(b)
		n++
		if n > int64(h.WarmupLen(false)) {
			d.index.Add(h.Value(), pos-int64(d.sampleSize)+1, h.EqualRun())
		}
		pos++
	}
}

// localIndex implements IndexStrategy SearchLocal: a bounded scan of
// the source starting at pOrg, indexed just in time for the search that
// is about to probe it.
func (d *Differ) localIndex(pOrg int64) {
	h := NewRollingHash(d.opts.HashWidth)
	var n int64
	for pos := pOrg; pos-pOrg <= int64(d.opts.AheadMax); pos++ {
		b, err := d.org.Get(pos, HardAhead)
		if err != nil {
			return
		}
		h.Update(b)
		n++
		if n > int64(h.WarmupLen(true)) {
			d.index.Add(h.Value(), pos-int64(d.sampleSize)+1, h.EqualRun())
		}
	}
}

// search implements §4.6: scan forward through the destination from a
// mismatch at (pOrg, pNew), probing the source index with a rolling
// hash and feeding every hit to the match table, until a best candidate
// is confirmed or the search horizon is exhausted.
func (d *Differ) search(pOrg, pNew int64) (newOrg, newNew int64, err error) {
	// Incremental only ever indexed positions the main loop walked in
	// lockstep; the region the search is about to jump into has never
	// been visited, so it needs the same just-in-time ahead-scan
	// SearchLocal relies on, or the index has nothing to find there.
	if d.opts.Index == SearchLocal || d.opts.Index == Incremental {
		d.localIndex(pOrg)
	}

	// Seed the table with the direct continuation so a single
	// insertion/deletion is never worse than the forced fallback below.
	d.mt.Add(pOrg, pNew, pNew)

	h := NewRollingHash(d.opts.HashWidth)
	limit := pNew + int64(d.opts.AheadMax)
	cleanupEvery := int64(d.sampleSize) * 64
	var sinceCleanup, n int64

	for cursor := pNew; cursor < limit; cursor++ {
		b, errB := d.new_.Get(cursor, Read)
		if errors.Is(errB, io.EOF) {
			break
		}
		if errB != nil {
			return 0, 0, jerr.Wrap(jerr.ErrRead, "searching destination")
		}
		h.Update(b)
		n++

		if n > int64(h.WarmupLen(true)) {
			if orgHit, ok := d.index.Get(h.Value()); ok {
				windowStart := cursor - int64(d.sampleSize) + 1
				if outcome := d.mt.Add(orgHit, windowStart, cursor); outcome == OutBest {
					o, w := d.bestOrFallback(pOrg, pNew)
					return o, w, nil
				}
			}
		}

		sinceCleanup++
		if sinceCleanup >= cleanupEvery {
			sinceCleanup = 0
			if outcome := d.mt.Cleanup(pOrg-maxDist, cursor); outcome == OutFull {
				// table saturated with unreusable records; stop growing
				// the search window and settle for the current best.
				break
			}
		}
	}

	o, w := d.bestOrFallback(pOrg, pNew)
	return o, w, nil
}

// bestOrFallback returns the match table's current best candidate, or a
// forced single-byte substitution when no candidate makes forward
// progress past pNew. The fallback is what guarantees Diff always
// terminates even against pathological inputs.
func (d *Differ) bestOrFallback(pOrg, pNew int64) (int64, int64) {
	if org, nw, ok := d.mt.GetBest(); ok && nw > pNew {
		return org, nw
	}
	return pOrg + 1, pNew + 1
}

// emitGap writes the operators that bridge a mismatch at (oldOrg,
// oldNew) to the resynchronisation point (newOrg, newNew): a MOD byte
// for the common aligned one-for-one substitution, or a DEL/BKT length
// plus an INS run in the general case.
func (d *Differ) emitGap(oldOrg, oldNew, newOrg, newNew int64) error {
	if newOrg-oldOrg == 1 && newNew-oldNew == 1 {
		b, err := d.new_.Get(oldNew, Read)
		if err != nil {
			return jerr.Wrap(jerr.ErrRead, "reading destination for MOD")
		}
		d.stats.MODBytes++
		if err := d.enc.Data(OpMOD, b); err != nil {
			return err
		}
		return d.notify(OpMOD, oldOrg, oldNew, 1)
	}

	if newOrg > oldOrg {
		d.stats.DELOps++
		if err := d.enc.DEL(newOrg - oldOrg); err != nil {
			return err
		}
		if err := d.notify(OpDEL, oldOrg, oldNew, newOrg-oldOrg); err != nil {
			return err
		}
	} else if newOrg < oldOrg {
		d.stats.BKTOps++
		if err := d.enc.BKT(oldOrg - newOrg); err != nil {
			return err
		}
		if err := d.notify(OpBKT, newOrg, oldNew, oldOrg-newOrg); err != nil {
			return err
		}
	}

	if newNew == oldNew {
		return nil
	}
	for p := oldNew; p < newNew; p++ {
		b, err := d.new_.Get(p, Read)
		if err != nil {
			return jerr.Wrap(jerr.ErrRead, "reading destination for INS")
		}
		d.stats.INSBytes++
		if err := d.enc.Data(OpINS, b); err != nil {
			return err
		}
	}
	return d.notify(OpINS, newOrg, oldNew, newNew-oldNew)
}

func (d *Differ) flushTailInsert(pNew int64) error {
	start := pNew
	for {
		b, err := d.new_.Get(pNew, Read)
		if errors.Is(err, io.EOF) {
			if pNew > start {
				if err := d.notify(OpINS, -1, start, pNew-start); err != nil {
					return err
				}
			}
			return d.enc.End()
		}
		if err != nil {
			return jerr.Wrap(jerr.ErrRead, "reading destination tail")
		}
		d.stats.INSBytes++
		if err := d.enc.Data(OpINS, b); err != nil {
			return err
		}
		pNew++
	}
}

func (d *Differ) flushTailDelete(pOrg int64) error {
	var n int64
	for {
		_, err := d.org.Get(pOrg+n, Read)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return jerr.Wrap(jerr.ErrRead, "reading source tail")
		}
		n++
	}
	if n > 0 {
		d.stats.DELOps++
		if err := d.enc.DEL(n); err != nil {
			return err
		}
		if err := d.notify(OpDEL, pOrg, -1, n); err != nil {
			return err
		}
	}
	return d.enc.End()
}
