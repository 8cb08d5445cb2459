// Package blockio reads binary images as a sequence of fixed-size blocks.
package blockio

import (
	"fmt"
	"io"
	"os"
)

// DefaultBlockSize is the block size used when none is configured.
const DefaultBlockSize = 512

// Scanner reads a file sequentially from offset 0 as fixed-size blocks.
// Each block is paired with the byte offset it starts at; the offset always
// advances by the configured block size, so a final short block (a file
// whose size is not a multiple of the block size, no padding added) still
// starts block-aligned. The sequence is finite and forward-only: once Scan
// returns false it never returns true again.
type Scanner struct {
	f      *os.File
	buf    []byte
	block  []byte
	offset int64
	next   int64
	err    error
	done   bool
}

// Open opens the file at path for block-wise scanning. blockSize must be
// positive.
func Open(path string, blockSize int) (*Scanner, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	return &Scanner{
		f:   f,
		buf: make([]byte, blockSize),
	}, nil
}

// Scan advances to the next block. It returns false when the input is
// exhausted or a read fails; Err distinguishes the two.
func (s *Scanner) Scan() bool {
	if s.done {
		return false
	}

	n, err := io.ReadFull(s.f, s.buf)
	switch {
	case err == nil:
		// Full block.
	case err == io.EOF:
		// Nothing read; the input ended on a block boundary.
		s.done = true
		return false
	case err == io.ErrUnexpectedEOF:
		// Short final block: yield it now, stop on the next call.
		s.done = true
	default:
		s.err = err
		s.done = true
		return false
	}

	s.block = s.buf[:n]
	s.offset = s.next
	s.next += int64(len(s.buf))
	return true
}

// Block returns the current block. Its contents are only valid until the
// next call to Scan; callers that need the bytes later must copy them.
func (s *Scanner) Block() []byte {
	return s.block
}

// Offset returns the byte offset the current block starts at.
func (s *Scanner) Offset() int64 {
	return s.offset
}

// Err returns the first read error encountered, if any. End of input is not
// an error.
func (s *Scanner) Err() error {
	return s.err
}

// Close closes the underlying file.
func (s *Scanner) Close() error {
	return s.f.Close()
}
