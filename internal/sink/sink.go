// Package sink provides the human-readable debug writers selected by
// the -l/-r command-line flags: one line per patch operator, in the
// style of the original's ufPutLen/JOutRgn comment-table trace.
package sink

import (
	"bufio"
	"fmt"
	"io"

	"github.com/vppillai/jojodiff"
)

// Writer receives one notification per patch operator as the differ
// emits it, purely for human-readable tracing; it never influences the
// patch itself.
type Writer interface {
	Operator(op jojodiff.Op, orgPos, newPos, length int64) error
	Flush() error
}

// Listing writes one line per operator, e.g.:
//
//	EQL    org=1024       new=1024       len=512
//	MOD    org=1536       new=1536       len=1
//
// selected by -l.
type Listing struct {
	w *bufio.Writer
}

func NewListing(w io.Writer) *Listing { return &Listing{w: bufio.NewWriter(w)} }

func (l *Listing) Operator(op jojodiff.Op, orgPos, newPos, length int64) error {
	_, err := fmt.Fprintf(l.w, "%-4s   org=%-10d new=%-10d len=%d\n", op, orgPos, newPos, length)
	return err
}

func (l *Listing) Flush() error { return l.w.Flush() }

// Regions writes one line per operator as a half-open [start,end) range
// on whichever side the operator consumes, e.g.:
//
//	EQL org[1024,1536) -> new[1024,1536)
//	INS             -> new[1536,1540)
//	DEL org[1536,1544)
//
// selected by -r.
type Regions struct {
	w *bufio.Writer
}

func NewRegions(w io.Writer) *Regions { return &Regions{w: bufio.NewWriter(w)} }

func (r *Regions) Operator(op jojodiff.Op, orgPos, newPos, length int64) error {
	var err error
	switch op {
	case jojodiff.OpEQL, jojodiff.OpMOD:
		_, err = fmt.Fprintf(r.w, "%-3s org[%d,%d) -> new[%d,%d)\n",
			op, orgPos, orgPos+length, newPos, newPos+length)
	case jojodiff.OpINS:
		_, err = fmt.Fprintf(r.w, "%-3s             -> new[%d,%d)\n", op, newPos, newPos+length)
	case jojodiff.OpDEL, jojodiff.OpBKT:
		_, err = fmt.Fprintf(r.w, "%-3s org[%d,%d)\n", op, orgPos, orgPos+length)
	}
	return err
}

func (r *Regions) Flush() error { return r.w.Flush() }
