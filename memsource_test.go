package jojodiff

import "io"

// memSource is a trivial ByteSource over an in-memory byte slice, used
// throughout this package's tests in place of a real file.
type memSource struct {
	data []byte
	base int64
	seq  bool
}

func newMemSource(data []byte) *memSource { return &memSource{data: data} }

func (m *memSource) Get(pos int64, mode ReadMode) (byte, error) {
	buf, err := m.GetBuf(pos, mode)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (m *memSource) GetBuf(pos int64, mode ReadMode) ([]byte, error) {
	if pos < 0 {
		return nil, io.EOF
	}
	if pos >= int64(len(m.data)) {
		return nil, io.EOF
	}
	return m.data[pos:], nil
}

func (m *memSource) SetLookaheadBase(pos int64) { m.base = pos }
func (m *memSource) IsSequential() bool         { return m.seq }
func (m *memSource) SeekCount() int64           { return 0 }
func (m *memSource) BufferStartPosition() int64 { return 0 }
func (m *memSource) BufferSize() int            { return len(m.data) }

var _ ByteSource = (*memSource)(nil)
