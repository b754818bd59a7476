// Command jojodiff computes and applies binary deltas between two
// files.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/vppillai/jojodiff"
	"github.com/vppillai/jojodiff/internal/bytesource"
	"github.com/vppillai/jojodiff/internal/sink"
	"github.com/vppillai/jojodiff/jerr"
)

// verbosity implements flag.Value so -v can be repeated to stack (-v -v
// or -vv via shorthand expansion is not attempted; stacking is by
// repetition, matching the original's own -v/-v convention).
type verbosity int

func (v *verbosity) String() string   { return fmt.Sprintf("%d", int(*v)) }
func (v *verbosity) Set(string) error { *v++; return nil }
func (v *verbosity) IsBoolFlag() bool { return true }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type config struct {
	modeUndiff, modeSelfTest bool
	verbose                  verbosity
	listSink, regionSink     bool
	heavier, lazier          bool
	srcSeq, dstSeq           bool
	indexMB, blockBytes      int
	bufKB, aheadKB           int
	matchMin, matchMax       int64
	syncStdio, useMmap       bool
}

func run(args []string, stdout, stderr io.Writer) int {
	var cfg config
	fs := flag.NewFlagSet("jojodiff", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.BoolVar(&cfg.modeUndiff, "u", false, "undiff: apply a patch instead of creating one")
	fs.BoolVar(&cfg.modeSelfTest, "t", false, "self-test: diff, undiff, and compare in one run")
	fs.Var(&cfg.verbose, "v", "increase verbosity (stackable: -v -v)")
	fs.BoolVar(&cfg.listSink, "l", false, "trace each patch operator to stderr (listing format)")
	fs.BoolVar(&cfg.regionSink, "r", false, "trace each patch operator to stderr (region format)")
	fs.BoolVar(&cfg.heavier, "b", false, "search harder for matches")
	fs.BoolVar(&cfg.lazier, "f", false, "search less for matches")
	fs.BoolVar(&cfg.srcSeq, "p", false, "source is sequential (no backward seeks)")
	fs.BoolVar(&cfg.dstSeq, "q", false, "destination is sequential (no backward seeks)")
	fs.IntVar(&cfg.indexMB, "i", 32, "position index size in MB")
	fs.IntVar(&cfg.blockBytes, "k", 8192, "block size in bytes")
	fs.IntVar(&cfg.bufKB, "m", 1024, "buffer size in KB for each of source and destination")
	fs.IntVar(&cfg.aheadKB, "a", 64, "search window in KB")
	fs.Int64Var(&cfg.matchMin, "n", 0, "minimum match length (0 = default)")
	fs.Int64Var(&cfg.matchMax, "x", 0, "maximum match length (0 = default)")
	fs.BoolVar(&cfg.syncStdio, "s", false, "force the synchronous os.File backend, even for stdin")
	fs.BoolVar(&cfg.useMmap, "mm", false, "use the mmap-backed byte source for seekable regular files")
	fs.Bool("j", false, "diff mode (default; accepted for symmetry with -u/-t)")

	if err := fs.Parse(args); err != nil {
		return -jerr.CodeOf(jerr.Wrap(jerr.ErrArgument, "parsing flags"))
	}

	rest := fs.Args()
	if len(rest) < 2 {
		fmt.Fprintln(stderr, "usage: jojodiff [flags] source destination [patch-file]")
		return -jerr.CodeOf(jerr.ErrArgument)
	}

	switch {
	case cfg.modeSelfTest:
		return runSelfTest(cfg, rest, stdout, stderr)
	case cfg.modeUndiff:
		return runUndiff(cfg, rest, stdout, stderr)
	default:
		return runDiff(cfg, rest, stdout, stderr)
	}
}

func (cfg config) options() jojodiff.Options {
	opts := jojodiff.DefaultOptions()
	opts.IndexCapacityBytes = cfg.indexMB * 1 << 20
	opts.AheadMax = cfg.aheadKB * 1024
	opts.MatchMin = cfg.matchMin
	opts.MatchMax = cfg.matchMax
	if cfg.heavier {
		opts.AheadMax *= 4
		opts.MatchTableSize *= 4
		// -b: compare candidates exhaustively, paying for I/O past the
		// lookahead window (HardAhead) instead of giving up at its edge.
		opts.CompareAll = true
	}
	if cfg.lazier {
		opts.AheadMax /= 4
		if opts.AheadMax < 1024 {
			opts.AheadMax = 1024
		}
		opts.MatchTableSize /= 4
		if opts.MatchTableSize < 64 {
			opts.MatchTableSize = 64
		}
		opts.CompareAll = false
	}
	return opts
}

func (cfg config) openSource(path string) (jojodiff.ByteSource, func() error, error) {
	if cfg.useMmap && !cfg.syncStdio && path != "-" {
		m, err := bytesource.NewMmap(path)
		if err == nil {
			return m, m.Close, nil
		}
		fmt.Fprintf(os.Stderr, "jojodiff: -mm requested but could not mmap %s (%v), falling back\n", path, err)
	}
	return cfg.openFile(path, cfg.srcSeq, func(path string) error { return jerr.Wrap(jerr.ErrOpenSource, path) })
}

func (cfg config) openDest(path string) (jojodiff.ByteSource, func() error, error) {
	// the differ reads ahead of the compare cursor while searching and
	// then comes back to emit the gap, so the destination is sequential
	// only when -q declares it so.
	return cfg.openFile(path, cfg.dstSeq, func(path string) error { return jerr.Wrap(jerr.ErrOpenDest, path) })
}

func (cfg config) openFile(path string, sequential bool, wrapErr func(path string) error) (jojodiff.ByteSource, func() error, error) {
	bufSize := cfg.bufKB * 1024
	if path == "-" {
		f := os.Stdin
		if err := bytesource.SetBinaryMode(f); err != nil {
			return nil, nil, err
		}
		bs := bytesource.NewFileHandle(f, bufSize, cfg.blockBytes, sequential)
		return bs, func() error { return nil }, nil
	}
	bs, err := bytesource.NewFile(path, bufSize, cfg.blockBytes, sequential)
	if err != nil {
		return nil, nil, wrapErr(path)
	}
	return bs, bs.Close, nil
}

func openOut(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, jerr.Wrap(jerr.ErrOpenOut, path)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func buildSink(cfg config, w io.Writer) (func(op jojodiff.Op, orgPos, newPos, length int64) error, func() error) {
	var s sink.Writer
	switch {
	case cfg.listSink:
		s = sink.NewListing(w)
	case cfg.regionSink:
		s = sink.NewRegions(w)
	default:
		return nil, func() error { return nil }
	}
	return s.Operator, s.Flush
}

func runDiff(cfg config, rest []string, stdout, stderr io.Writer) int {
	src, closeSrc, err := cfg.openSource(rest[0])
	if err != nil {
		return fail(stderr, err)
	}
	defer closeSrc()

	dst, closeDst, err := cfg.openDest(rest[1])
	if err != nil {
		return fail(stderr, err)
	}
	defer closeDst()

	patchPath := ""
	if len(rest) >= 3 {
		patchPath = rest[2]
	}
	out, err := openOut(patchPath)
	if err != nil {
		return fail(stderr, err)
	}
	defer out.Close()

	opts := cfg.options()
	notify, flushSink := buildSink(cfg, stderr)
	opts.Sink = notify

	d := jojodiff.NewDiffer(src, dst, out, opts)
	if err := d.Diff(); err != nil {
		return fail(stderr, err)
	}
	if err := flushSink(); err != nil {
		return fail(stderr, err)
	}

	stats := d.Stats()
	if cfg.verbose > 0 {
		fmt.Fprintf(stderr, "jojodiff: EQL=%d(%dB) MOD=%dB INS=%dB DEL=%d BKT=%d\n",
			stats.EQLOps, stats.EQLBytes, stats.MODBytes, stats.INSBytes, stats.DELOps, stats.BKTOps)
	}
	if cfg.verbose > 1 {
		reportIndexDiagnostics(stderr, rest[0], d)
	}

	if stats.MODBytes+stats.INSBytes+stats.DELOps+stats.BKTOps == 0 {
		return 2 // ok, no differences
	}
	return 0 // ok, with differences
}

// reportIndexDiagnostics prints the -vv position-index diagnostics: the
// hash-table hit counter (JHashPos::get_hashhits) and collision
// threshold, plus a distribution histogram of indexed positions across
// the source.
func reportIndexDiagnostics(stderr io.Writer, srcPath string, d *jojodiff.Differ) {
	idx := d.Index()
	fmt.Fprintf(stderr, "jojodiff: index hits=%d overrideThreshold=%d hashRepairs=%d\n",
		idx.Hits(), idx.OverrideThreshold(), d.HashRepairs())

	if srcPath == "-" {
		return
	}
	fi, err := os.Stat(srcPath)
	if err != nil || fi.Size() == 0 {
		return
	}
	const buckets = 16
	dist := idx.Distribution(fi.Size(), buckets)
	fmt.Fprintf(stderr, "jojodiff: index distribution %v\n", dist)
}

func runUndiff(cfg config, rest []string, stdout, stderr io.Writer) int {
	src, closeSrc, err := cfg.openSource(rest[0])
	if err != nil {
		return fail(stderr, err)
	}
	defer closeSrc()

	var patchReader io.Reader
	var closePatch func() error
	if len(rest) >= 3 {
		f, err := os.Open(rest[2])
		if err != nil {
			return fail(stderr, jerr.Wrap(jerr.ErrOpenSource, rest[2]))
		}
		patchReader, closePatch = f, f.Close
	} else {
		if err := bytesource.SetBinaryMode(os.Stdin); err != nil {
			return fail(stderr, err)
		}
		patchReader, closePatch = os.Stdin, func() error { return nil }
	}
	defer closePatch()

	out, err := openOut(rest[1])
	if err != nil {
		return fail(stderr, err)
	}
	defer out.Close()

	if err := jojodiff.Apply(src, patchReader, out); err != nil {
		return fail(stderr, err)
	}
	return 2
}

// runSelfTest diffs source into destination, undiffs the result back
// against source, and compares the outcome against destination,
// running the comparison concurrently with a content digest of both
// files (§11.4): neither depends on the other's result.
func runSelfTest(cfg config, rest []string, stdout, stderr io.Writer) int {
	srcPath, dstPath := rest[0], rest[1]

	patch, err := os.CreateTemp("", "jojodiff-selftest-*.patch")
	if err != nil {
		return fail(stderr, jerr.Wrap(jerr.ErrOpenOut, "temp patch file"))
	}
	patchPath := patch.Name()
	defer os.Remove(patchPath)
	patch.Close()

	if code := runDiff(cfg, []string{srcPath, dstPath, patchPath}, stdout, stderr); code > 2 {
		return code
	}

	rebuilt, err := os.CreateTemp("", "jojodiff-selftest-*.out")
	if err != nil {
		return fail(stderr, jerr.Wrap(jerr.ErrOpenOut, "temp rebuilt file"))
	}
	rebuiltPath := rebuilt.Name()
	defer os.Remove(rebuiltPath)
	rebuilt.Close()

	if code := runUndiff(cfg, []string{srcPath, rebuiltPath, patchPath}, stdout, stderr); code > 2 {
		return code
	}

	var equal bool
	var srcDigest, dstDigest uint64
	g, _ := errgroup.WithContext(context.Background())
	g.Go(func() error {
		var err error
		equal, err = filesEqual(rebuiltPath, dstPath)
		return err
	})
	g.Go(func() error {
		var err error
		srcDigest, err = digestFile(srcPath)
		return err
	})
	g.Go(func() error {
		var err error
		dstDigest, err = digestFile(dstPath)
		return err
	})
	if err := g.Wait(); err != nil {
		return fail(stderr, err)
	}

	if cfg.verbose > 0 {
		fmt.Fprintf(stderr, "jojodiff: self-test src=%016x dst=%016x\n", srcDigest, dstDigest)
	}
	if !equal {
		fmt.Fprintln(stderr, "jojodiff: self-test FAILED: undiff(diff(source,dest)) != dest")
		return -jerr.CodeOf(jerr.ErrGeneric)
	}
	fmt.Fprintln(stderr, "jojodiff: self-test passed")
	return 2
}

func filesEqual(a, b string) (bool, error) {
	fa, err := os.Open(a)
	if err != nil {
		return false, jerr.Wrap(jerr.ErrOpenSource, a)
	}
	defer fa.Close()
	fb, err := os.Open(b)
	if err != nil {
		return false, jerr.Wrap(jerr.ErrOpenDest, b)
	}
	defer fb.Close()

	bufA := make([]byte, 64*1024)
	bufB := make([]byte, 64*1024)
	for {
		na, erra := io.ReadFull(fa, bufA)
		nb, errb := io.ReadFull(fb, bufB)
		if na != nb {
			return false, nil
		}
		if na > 0 && !bytesEqual(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		doneA := erra == io.EOF || erra == io.ErrUnexpectedEOF
		doneB := errb == io.EOF || errb == io.ErrUnexpectedEOF
		if doneA != doneB {
			return false, nil
		}
		if doneA {
			return true, nil
		}
		if erra != nil {
			return false, jerr.Wrap(jerr.ErrRead, a)
		}
		if errb != nil {
			return false, jerr.Wrap(jerr.ErrRead, b)
		}
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func digestFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, jerr.Wrap(jerr.ErrOpenSource, path)
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, jerr.Wrap(jerr.ErrRead, path)
	}
	return h.Sum64(), nil
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "jojodiff: %v\n", err)
	code := jerr.CodeOf(err)
	if code < 0 {
		return -code
	}
	return code
}
