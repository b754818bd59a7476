package bytesource

import (
	"io"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/vppillai/jojodiff"
	"github.com/vppillai/jojodiff/jerr"
)

// Mmap is a ByteSource backed by a memory-mapped file: every byte of
// the file is "in buffer" from the start, so HardAhead/SoftAhead never
// fail and SetLookaheadBase is a no-op. Best suited to the source side
// of a diff when random access beats sequential re-reads, e.g. under
// IndexStrategy Prescan or SearchLocal.
type Mmap struct {
	f    *os.File
	m    mmap.MMap
	size int64
}

// NewMmap opens path read-only and maps it into memory.
func NewMmap(path string) (*Mmap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, jerr.Wrap(jerr.ErrOpenSource, path)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, jerr.Wrap(jerr.ErrOpenSource, path)
	}
	if !fi.Mode().IsRegular() {
		// pipes and devices report size 0 and cannot be mapped
		f.Close()
		return nil, jerr.Wrap(jerr.ErrOpenSource, path+": not a regular file")
	}
	if fi.Size() == 0 {
		return &Mmap{f: f, m: nil, size: 0}, nil
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, jerr.Wrap(jerr.ErrAllocation, "mmap "+path)
	}
	return &Mmap{f: f, m: m, size: fi.Size()}, nil
}

func (m *Mmap) Close() error {
	if m.m != nil {
		if err := m.m.Unmap(); err != nil {
			return jerr.Wrap(jerr.ErrGeneric, "munmap")
		}
	}
	return m.f.Close()
}

func (m *Mmap) Get(pos int64, _ ReadMode) (byte, error) {
	if pos < 0 {
		return 0, jerr.Wrap(jerr.ErrUnsupportedOffset, "negative position")
	}
	if pos >= m.size {
		return 0, io.EOF
	}
	return m.m[pos], nil
}

func (m *Mmap) GetBuf(pos int64, _ ReadMode) ([]byte, error) {
	if pos < 0 {
		return nil, jerr.Wrap(jerr.ErrUnsupportedOffset, "negative position")
	}
	if pos >= m.size {
		return nil, io.EOF
	}
	return m.m[pos:], nil
}

func (m *Mmap) SetLookaheadBase(int64) {}

func (m *Mmap) IsSequential() bool         { return false }
func (m *Mmap) SeekCount() int64           { return 0 }
func (m *Mmap) BufferStartPosition() int64 { return 0 }
func (m *Mmap) BufferSize() int            { return int(m.size) }

var _ jojodiff.ByteSource = (*Mmap)(nil)
