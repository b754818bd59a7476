package jojodiff

import (
	"bytes"
	"testing"
)

type recordingVisitor struct {
	ops []string
}

func (r *recordingVisitor) EQL(n int64) error { r.ops = append(r.ops, sprintOp("EQL", n)); return nil }
func (r *recordingVisitor) DEL(n int64) error { r.ops = append(r.ops, sprintOp("DEL", n)); return nil }
func (r *recordingVisitor) BKT(n int64) error { r.ops = append(r.ops, sprintOp("BKT", n)); return nil }
func (r *recordingVisitor) MOD(data []byte) error {
	r.ops = append(r.ops, sprintData("MOD", data))
	return nil
}
func (r *recordingVisitor) INS(data []byte) error {
	r.ops = append(r.ops, sprintData("INS", data))
	return nil
}

func sprintOp(op string, n int64) string { return op + ":" + itoa(n) }
func sprintData(op string, data []byte) string {
	return op + "=" + string(data)
}
func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestPutLengthGetLengthRoundTrip(t *testing.T) {
	lengths := []int64{1, 2, 252, 253, 254, 508, 509, 510, 65808, 65809, 70000, 1 << 20, 1 << 32, 1<<32 + 1}
	for _, n := range lengths {
		var buf bytes.Buffer
		enc := NewEncoder(&buf)
		if err := enc.putLength(n); err != nil {
			t.Fatalf("putLength(%d): %v", n, err)
		}
		if err := enc.w.Flush(); err != nil {
			t.Fatalf("flush after putLength(%d): %v", n, err)
		}
		dec := NewDecoder(&buf)
		got, err := dec.GetLength()
		if err != nil {
			t.Fatalf("GetLength after putLength(%d): %v", n, err)
		}
		if got != n {
			t.Errorf("round trip of length %d produced %d", n, got)
		}
	}
}

func TestEncodeDecodeEQLDELBKT(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := enc.EQL(10); err != nil {
		t.Fatal(err)
	}
	if err := enc.DEL(3); err != nil {
		t.Fatal(err)
	}
	if err := enc.BKT(2); err != nil {
		t.Fatal(err)
	}
	if err := enc.End(); err != nil {
		t.Fatal(err)
	}

	v := &recordingVisitor{}
	if err := Decode(&buf, v); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []string{"EQL:10", "DEL:3", "BKT:2"}
	if !stringSlicesEqual(v.ops, want) {
		t.Fatalf("ops = %v, want %v", v.ops, want)
	}
}

func TestEncodeDecodeImplicitMODAtStreamStart(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := enc.Data(OpMOD, 'h'); err != nil {
		t.Fatal(err)
	}
	if err := enc.Data(OpMOD, 'i'); err != nil {
		t.Fatal(err)
	}
	if err := enc.End(); err != nil {
		t.Fatal(err)
	}

	// The very first byte of a patch stream must not be an ESC MOD
	// marker: the data starts plain.
	if buf.Bytes()[0] == byte(opESC) {
		t.Fatalf("implicit MOD at stream start still wrote a leading ESC: %x", buf.Bytes())
	}

	v := &recordingVisitor{}
	if err := Decode(bytes.NewReader(buf.Bytes()), v); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []string{"MOD=hi"}
	if !stringSlicesEqual(v.ops, want) {
		t.Fatalf("ops = %v, want %v", v.ops, want)
	}
}

func TestEncodeDecodeEscapedDataByteAtStreamStart(t *testing.T) {
	// The implicit-MOD-at-start optimisation must still unescape a
	// doubled ESC correctly when the very first payload byte is ESC
	// itself.
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := enc.Data(OpMOD, byte(opESC)); err != nil {
		t.Fatal(err)
	}
	if err := enc.End(); err != nil {
		t.Fatal(err)
	}

	v := &recordingVisitor{}
	if err := Decode(bytes.NewReader(buf.Bytes()), v); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []string{"MOD=" + string([]byte{byte(opESC)})}
	if !stringSlicesEqual(v.ops, want) {
		t.Fatalf("ops = %v, want %v (got a doubled ESC byte instead of one literal ESC)", v.ops, want)
	}
}

func TestEncodeDecodeEscapedDataByte(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := enc.Data(OpMOD, byte(opESC)); err != nil {
		t.Fatal(err)
	}
	if err := enc.Data(OpMOD, 'z'); err != nil {
		t.Fatal(err)
	}
	if err := enc.End(); err != nil {
		t.Fatal(err)
	}

	v := &recordingVisitor{}
	if err := Decode(bytes.NewReader(buf.Bytes()), v); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []string{"MOD=" + string([]byte{byte(opESC), 'z'})}
	if !stringSlicesEqual(v.ops, want) {
		t.Fatalf("ops = %v, want %v", v.ops, want)
	}
}

func TestEncodeDecodeMixedStream(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.EQL(5)
	enc.Data(OpINS, 'x')
	enc.Data(OpINS, 'y')
	enc.DEL(7)
	enc.BKT(1)
	enc.Data(OpMOD, 'm')
	enc.End()

	v := &recordingVisitor{}
	if err := Decode(bytes.NewReader(buf.Bytes()), v); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []string{"EQL:5", "INS=xy", "DEL:7", "BKT:1", "MOD=m"}
	if !stringSlicesEqual(v.ops, want) {
		t.Fatalf("ops = %v, want %v", v.ops, want)
	}
}

func TestApplyReconstructsDestination(t *testing.T) {
	src := []byte("The quick brown fox jumps over the lazy dog.")
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.EQL(4) // "The "
	enc.Data(OpMOD, 'S')
	enc.Data(OpMOD, 'l')
	enc.Data(OpMOD, 'o')
	enc.Data(OpMOD, 'w')
	enc.DEL(1) // skip the 'k' left over from "quick"
	enc.EQL(int64(len(" brown fox jumps over the lazy dog.")))
	enc.End()

	var dst bytes.Buffer
	if err := Apply(newMemSource(src), bytes.NewReader(buf.Bytes()), &dst); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := "The Slow brown fox jumps over the lazy dog."
	if dst.String() != want {
		t.Fatalf("Apply produced %q, want %q", dst.String(), want)
	}
}

func TestApplierBKTBeforeStartIsCorrupt(t *testing.T) {
	a := NewApplier(newMemSource([]byte("abc")), &bytes.Buffer{})
	if err := a.BKT(1); err == nil {
		t.Fatalf("BKT past the start of source did not error")
	}
}

func stringSlicesEqual(a, b []string) bool {
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
