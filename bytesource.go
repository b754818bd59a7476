package jojodiff

import "errors"

// ReadMode selects how aggressively a ByteSource may perform I/O when
// satisfying a read, per §4.2.
type ReadMode int

const (
	// Read may perform I/O and evict buffered data to satisfy the request.
	Read ReadMode = iota
	// HardAhead may perform I/O but fails rather than evicting the
	// window's lookahead base position.
	HardAhead
	// SoftAhead never performs I/O past the current window; it returns
	// ErrEndOfBuffer instead of reading further.
	SoftAhead
)

// ErrEndOfBuffer is returned by ByteSource.Get/GetBuf when a SoftAhead
// (or base-protecting HardAhead) read runs past the currently buffered
// window. It is a *tentative* non-result: more bytes may become
// available once the base advances, so callers must never treat it as a
// confirmed mismatch (§7).
var ErrEndOfBuffer = errors.New("jojodiff: end of buffer")

// ByteSource is the random-access byte reader contract the differ and
// the patch applier are built against (§4.2). Two concrete
// implementations live in internal/bytesource: a block-buffered
// circular-window reader over *os.File, and an mmap-backed reader.
type ByteSource interface {
	// Get returns the byte at pos, io.EOF at end of stream, or
	// ErrEndOfBuffer under SoftAhead/HardAhead when pos is not (yet)
	// available without violating the mode's I/O restriction.
	Get(pos int64, mode ReadMode) (byte, error)

	// GetBuf returns a slice into the current window starting at pos,
	// or a nil slice with ErrEndOfBuffer/io.EOF.
	GetBuf(pos int64, mode ReadMode) ([]byte, error)

	// SetLookaheadBase fixes the base position beyond which SoftAhead
	// (and base-protecting HardAhead) reads must fail once the window
	// would have to move past base+bufferSize-blockSize.
	SetLookaheadBase(pos int64)

	IsSequential() bool
	SeekCount() int64
	BufferStartPosition() int64
	BufferSize() int
}
