package bytesource

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestMmapGetMatchesFileContent(t *testing.T) {
	data := []byte("mmap-backed content for random access reads")
	path := filepath.Join(t.TempDir(), "mmap.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m, err := NewMmap(path)
	if err != nil {
		t.Fatalf("NewMmap: %v", err)
	}
	defer m.Close()

	for i, want := range data {
		got, err := m.Get(int64(i), Read)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if got != want {
			t.Fatalf("Get(%d) = %q, want %q", i, got, want)
		}
	}
	if _, err := m.Get(int64(len(data)), Read); err != io.EOF {
		t.Fatalf("Get past end = %v, want io.EOF", err)
	}
}

func TestMmapEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m, err := NewMmap(path)
	if err != nil {
		t.Fatalf("NewMmap on an empty file: %v", err)
	}
	defer m.Close()

	if _, err := m.Get(0, Read); err != io.EOF {
		t.Fatalf("Get(0) on an empty mapped file = %v, want io.EOF", err)
	}
}

func TestMmapIsNotSequential(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	os.WriteFile(path, []byte("x"), 0o644)
	m, err := NewMmap(path)
	if err != nil {
		t.Fatalf("NewMmap: %v", err)
	}
	defer m.Close()
	if m.IsSequential() {
		t.Fatalf("Mmap reported itself as sequential")
	}
}
