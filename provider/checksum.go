package provider

import (
	"errors"
	"fmt"
	"hash"
	"hash/crc64"
	"io"
	"os"
	"sync"
)

// ErrChecksumMismatch is returned when a stored object does not hash to the
// value computed while reading its source.
var ErrChecksumMismatch = errors.New("checksum mismatch")

var crcTable = crc64.MakeTable(crc64.ISO)

// ChecksumReader wraps an io.Reader to compute a CRC64 checksum while reading.
type ChecksumReader struct {
	r    io.Reader
	hash hash.Hash64
	n    int64
}

// NewChecksumReader creates a new ChecksumReader that wraps the given reader.
func NewChecksumReader(r io.Reader) *ChecksumReader {
	return &ChecksumReader{
		r:    r,
		hash: crc64.New(crcTable),
	}
}

// Read reads data from the underlying reader and updates the checksum.
func (cr *ChecksumReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.n += int64(n)
		cr.hash.Write(p[:n])
	}
	return n, err
}

// Checksum returns the current checksum value.
func (cr *ChecksumReader) Checksum() uint64 {
	return cr.hash.Sum64()
}

// BytesRead returns the total number of bytes read.
func (cr *ChecksumReader) BytesRead() int64 {
	return cr.n
}

// ChecksumPool manages reusable checksum hashers to reduce allocations.
type ChecksumPool struct {
	pool sync.Pool
}

// NewChecksumPool creates a new ChecksumPool.
func NewChecksumPool() *ChecksumPool {
	return &ChecksumPool{
		pool: sync.Pool{
			New: func() any {
				return crc64.New(crcTable)
			},
		},
	}
}

// Get retrieves a hasher from the pool.
func (cp *ChecksumPool) Get() hash.Hash64 {
	return cp.pool.Get().(hash.Hash64)
}

// Put returns a hasher to the pool after resetting it.
func (cp *ChecksumPool) Put(h hash.Hash64) {
	h.Reset()
	cp.pool.Put(h)
}

// FileChecksum hashes the file at path with a pooled hasher.
func (cp *ChecksumPool) FileChecksum(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := cp.Get()
	defer cp.Put(h)

	if _, err := io.Copy(h, f); err != nil {
		return 0, fmt.Errorf("hashing %s: %w", path, err)
	}
	return h.Sum64(), nil
}

// VerifyChecksum returns ErrChecksumMismatch when actual differs from expected.
func VerifyChecksum(actual, expected uint64) error {
	if actual != expected {
		return fmt.Errorf("%w: got %016x, want %016x", ErrChecksumMismatch, actual, expected)
	}
	return nil
}
