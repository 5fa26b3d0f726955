package provider

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestChecksumReader(t *testing.T) {
	data := []byte("hello world")

	cr := NewChecksumReader(bytes.NewReader(data))

	readData, err := io.ReadAll(cr)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	if !bytes.Equal(readData, data) {
		t.Errorf("Expected read data to match %q, got %q", data, readData)
	}

	if cr.Checksum() == 0 {
		t.Error("Expected non-zero checksum")
	}

	if cr.BytesRead() != int64(len(data)) {
		t.Errorf("Expected %d bytes read, got %d", len(data), cr.BytesRead())
	}
}

func TestChecksumPool(t *testing.T) {
	pool := NewChecksumPool()

	h1 := pool.Get()
	h1.Write([]byte("test"))
	checksum1 := h1.Sum64()
	pool.Put(h1)

	// After reset, should produce same checksum for same data
	h2 := pool.Get()
	h2.Write([]byte("test"))
	checksum2 := h2.Sum64()
	pool.Put(h2)

	if checksum1 != checksum2 {
		t.Errorf("Expected same checksum after pool reuse: %d vs %d", checksum1, checksum2)
	}
}

func TestChecksumPool_FileChecksumMatchesReader(t *testing.T) {
	data := []byte("test data for checksum consistency")
	path := filepath.Join(t.TempDir(), "blob.bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cr := NewChecksumReader(bytes.NewReader(data))
	if _, err := io.ReadAll(cr); err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	sum, err := NewChecksumPool().FileChecksum(path)
	if err != nil {
		t.Fatalf("FileChecksum failed: %v", err)
	}

	if sum != cr.Checksum() {
		t.Errorf("Checksum mismatch: file=%d, reader=%d", sum, cr.Checksum())
	}
}

func TestChecksumPool_FileChecksumMissingFile(t *testing.T) {
	_, err := NewChecksumPool().FileChecksum(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestVerifyChecksum(t *testing.T) {
	tests := []struct {
		name     string
		actual   uint64
		expected uint64
		wantErr  bool
	}{
		{"matching", 12345, 12345, false},
		{"mismatch", 12345, 54321, true},
		{"zero", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyChecksum(tt.actual, tt.expected)
			if (err != nil) != tt.wantErr {
				t.Errorf("VerifyChecksum(%d, %d) = %v, wantErr %v", tt.actual, tt.expected, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrChecksumMismatch) {
				t.Errorf("expected ErrChecksumMismatch, got %v", err)
			}
		})
	}
}
