package jojodiff

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/vppillai/jojodiff/jerr"
)

// Op identifies one of the patch operators of §4.7.
type Op byte

const (
	OpEQL Op = 0xA3
	OpBKT Op = 0xA2
	OpDEL Op = 0xA4
	OpINS Op = 0xA5
	OpMOD Op = 0xA6
	opESC Op = 0xA7
)

func (o Op) String() string {
	switch o {
	case OpEQL:
		return "EQL"
	case OpMOD:
		return "MOD"
	case OpINS:
		return "INS"
	case OpDEL:
		return "DEL"
	case OpBKT:
		return "BKT"
	}
	return "???"
}

func isOpcode(b byte) bool {
	switch Op(b) {
	case OpEQL, OpBKT, OpDEL, OpINS, OpMOD:
		return true
	}
	return false
}

// Encoder writes the binary patch framing of §4.7: escape-doubled data
// payloads for MOD/INS, length-prefixed EQL/DEL/BKT, and the
// start-of-stream implicit-MOD optimisation that lets a plain data byte
// open a MOD run without its own ESC MOD marker.
type Encoder struct {
	w          *bufio.Writer
	lastOp     Op
	wroteAnyOp bool
}

// NewEncoder wraps w with the patch framing. Callers must call End to
// flush the terminating ESC and any buffered bytes.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

func (e *Encoder) putOp(op Op) error {
	if _, err := e.w.Write([]byte{byte(opESC), byte(op)}); err != nil {
		return err
	}
	e.lastOp = op
	e.wroteAnyOp = true
	return nil
}

// EQL emits an EQL operator of the given length. A non-positive length
// is a no-op so callers can unconditionally flush pending runs.
func (e *Encoder) EQL(n int64) error { return e.lengthOp(OpEQL, n) }

// DEL emits a DEL operator of the given length.
func (e *Encoder) DEL(n int64) error { return e.lengthOp(OpDEL, n) }

// BKT emits a BKT operator of the given length.
func (e *Encoder) BKT(n int64) error { return e.lengthOp(OpBKT, n) }

func (e *Encoder) lengthOp(op Op, n int64) error {
	if n <= 0 {
		return nil
	}
	if err := e.putOp(op); err != nil {
		return err
	}
	return e.putLength(n)
}

// Data writes one byte of MOD or INS payload, doubling ESC bytes and
// emitting the operator marker (or relying on the start-of-stream
// implicit MOD) as needed.
func (e *Encoder) Data(op Op, b byte) error {
	if e.lastOp != op || !e.wroteAnyOp {
		if op == OpMOD && !e.wroteAnyOp {
			e.lastOp = op
			e.wroteAnyOp = true
		} else if err := e.putOp(op); err != nil {
			return err
		}
	}
	if b == byte(opESC) {
		_, err := e.w.Write([]byte{b, b})
		return err
	}
	return e.w.WriteByte(b)
}

// End writes the terminating ESC with no following opcode and flushes
// the underlying writer.
func (e *Encoder) End() error {
	if err := e.w.WriteByte(byte(opESC)); err != nil {
		return err
	}
	return e.w.Flush()
}

// putLength writes n using the §4.7 off-by-one variable-length code.
func (e *Encoder) putLength(n int64) error {
	switch {
	case n <= 252:
		return e.w.WriteByte(byte(n - 1))
	case n <= 508:
		if err := e.w.WriteByte(252); err != nil {
			return err
		}
		return e.w.WriteByte(byte(n - 253))
	case n <= 253+256+0xFFFF:
		if err := e.w.WriteByte(253); err != nil {
			return err
		}
		var buf [2]byte
		binary.BigEndian.PutUint16(buf[:], uint16(n-253-256))
		_, err := e.w.Write(buf[:])
		return err
	case n <= 253+256+0xFFFFFFFF:
		if err := e.w.WriteByte(254); err != nil {
			return err
		}
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(n-253-256))
		_, err := e.w.Write(buf[:])
		return err
	default:
		if err := e.w.WriteByte(255); err != nil {
			return err
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(n-253-256))
		_, err := e.w.Write(buf[:])
		return err
	}
}

// Decoder reads the binary patch framing of §4.7.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder { return &Decoder{r: bufio.NewReader(r)} }

func (d *Decoder) readByte() (byte, error) { return d.r.ReadByte() }

// GetLength decodes one length value per §4.7, the inverse of
// Encoder.putLength.
func (d *Decoder) GetLength() (int64, error) {
	b, err := d.readByte()
	if err != nil {
		return 0, err
	}
	switch {
	case b < 252:
		return int64(b) + 1, nil
	case b == 252:
		x, err := d.readByte()
		if err != nil {
			return 0, jerr.Wrap(jerr.ErrCorruptPatch, "truncated length")
		}
		return 253 + int64(x), nil
	case b == 253:
		var buf [2]byte
		if _, err := io.ReadFull(d.r, buf[:]); err != nil {
			return 0, jerr.Wrap(jerr.ErrCorruptPatch, "truncated length")
		}
		return 253 + 256 + int64(binary.BigEndian.Uint16(buf[:])), nil
	case b == 254:
		var buf [4]byte
		if _, err := io.ReadFull(d.r, buf[:]); err != nil {
			return 0, jerr.Wrap(jerr.ErrCorruptPatch, "truncated length")
		}
		return 253 + 256 + int64(binary.BigEndian.Uint32(buf[:])), nil
	default:
		var buf [8]byte
		if _, err := io.ReadFull(d.r, buf[:]); err != nil {
			return 0, jerr.Wrap(jerr.ErrCorruptPatch, "truncated length")
		}
		return 253 + 256 + int64(binary.BigEndian.Uint64(buf[:])), nil
	}
}

// Visitor receives decoded patch operators in stream order.
type Visitor interface {
	EQL(n int64) error
	DEL(n int64) error
	BKT(n int64) error
	MOD(data []byte) error
	INS(data []byte) error
}

// Decode reads the full patch stream, dispatching operators to v. It
// mirrors JPatcht::jpatch's state machine: ESC <opcode> introduces an
// operator, a non-opcode byte at stream start or right after a
// length-bearing op is an implicit MOD, and a doubled ESC decodes to
// one literal ESC byte.
func Decode(r io.Reader, v Visitor) error {
	d := NewDecoder(r)
	cur := Op(0) // 0 = "read the next operator from input"
	var pending []byte

	for {
		if cur == Op(0) {
			b, err := d.readByte()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return jerr.Wrap(jerr.ErrRead, "reading patch")
			}
			if b == byte(opESC) {
				nb, err := d.readByte()
				if err == io.EOF {
					// a lone ESC with nothing after it is the stream
					// terminator, not a truncated escape.
					return nil
				}
				if err != nil {
					return jerr.Wrap(jerr.ErrRead, "reading patch")
				}
				switch {
				case isOpcode(nb):
					cur = Op(nb)
				case nb == byte(opESC):
					// a doubled ESC at the very start of the stream is
					// the implicit-MOD encoding of one literal ESC byte.
					cur = OpMOD
					pending = []byte{byte(opESC)}
				default:
					cur = OpMOD
					pending = []byte{b, nb}
				}
			} else {
				cur = OpMOD
				pending = []byte{b}
			}
			continue
		}

		switch cur {
		case OpEQL, OpDEL, OpBKT:
			n, err := d.GetLength()
			if err != nil {
				return err
			}
			var verr error
			switch cur {
			case OpEQL:
				verr = v.EQL(n)
			case OpDEL:
				verr = v.DEL(n)
			case OpBKT:
				verr = v.BKT(n)
			}
			if verr != nil {
				return verr
			}
			cur = Op(0)

		default: // OpMOD, OpINS
			data, next, err := d.readDataRun(cur, pending)
			pending = nil
			if err != nil {
				return err
			}
			if len(data) > 0 {
				var verr error
				if cur == OpMOD {
					verr = v.MOD(data)
				} else {
					verr = v.INS(data)
				}
				if verr != nil {
					return verr
				}
			}
			cur = next
		}
	}
}

// readDataRun consumes MOD/INS payload bytes (unescaping doubled ESCs)
// until the next ESC <opcode> or end of stream, mirroring
// JPatcht::ufGetDta.
func (d *Decoder) readDataRun(opr Op, pending []byte) ([]byte, Op, error) {
	out := append([]byte(nil), pending...)
	for {
		b, err := d.readByte()
		if err == io.EOF {
			return out, Op(0), nil
		}
		if err != nil {
			return out, Op(0), jerr.Wrap(jerr.ErrRead, "reading patch")
		}
		if b != byte(opESC) {
			out = append(out, b)
			continue
		}
		nb, err := d.readByte()
		if err == io.EOF {
			// a lone ESC with nothing after it is the stream terminator:
			// end the run here, leaving nothing pending.
			return out, Op(0), nil
		}
		if err != nil {
			return out, Op(0), jerr.Wrap(jerr.ErrRead, "reading patch")
		}
		switch {
		case nb == byte(opESC):
			out = append(out, byte(opESC))
		case isOpcode(nb) && Op(nb) == opr:
			// <ESC> MOD within a MOD run (or INS within INS) is
			// meaningless: treat it as data.
			out = append(out, byte(opr))
		case isOpcode(nb):
			return out, Op(nb), nil
		default:
			out = append(out, byte(opESC), nb)
		}
	}
}

// Applier implements Visitor, replaying a decoded patch against a
// ByteSource source and an io.Writer destination (§4.7 "Operator
// semantics during apply").
type Applier struct {
	src    ByteSource
	dst    io.Writer
	srcPos int64
}

// NewApplier constructs an Applier over the given source and
// destination.
func NewApplier(src ByteSource, dst io.Writer) *Applier {
	return &Applier{src: src, dst: dst}
}

func (a *Applier) EQL(n int64) error {
	for i := int64(0); i < n; i++ {
		b, err := a.src.Get(a.srcPos, Read)
		if err != nil {
			return jerr.Wrap(jerr.ErrRead, "EQL copy from source")
		}
		if _, err := a.dst.Write([]byte{b}); err != nil {
			return jerr.Wrap(jerr.ErrWrite, "EQL copy to destination")
		}
		a.srcPos++
	}
	return nil
}

func (a *Applier) DEL(n int64) error {
	a.srcPos += n
	return nil
}

func (a *Applier) BKT(n int64) error {
	a.srcPos -= n
	if a.srcPos < 0 {
		return jerr.Wrap(jerr.ErrCorruptPatch, "backtrack before start of source")
	}
	return nil
}

func (a *Applier) MOD(data []byte) error {
	if _, err := a.dst.Write(data); err != nil {
		return jerr.Wrap(jerr.ErrWrite, "MOD")
	}
	a.srcPos += int64(len(data))
	return nil
}

func (a *Applier) INS(data []byte) error {
	if _, err := a.dst.Write(data); err != nil {
		return jerr.Wrap(jerr.ErrWrite, "INS")
	}
	return nil
}

// Apply decodes patch r against source src, writing the reconstructed
// destination to dst. It is the inverse of Differ.Diff.
func Apply(src ByteSource, r io.Reader, dst io.Writer) error {
	return Decode(r, NewApplier(src, dst))
}
