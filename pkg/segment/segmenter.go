package segment

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gitlab.com/tinyland/lab/imgsplit/pkg/blockio"
)

// DefaultMinSkip is the zero-run length, in blocks, at which a run is
// dropped when none is configured.
const DefaultMinSkip = 1024

// segmentBufferSize is the write buffer size for segment files.
const segmentBufferSize = 64 * 1024

// Options configure a Segmenter.
type Options struct {
	// OutDir is the directory segment files are created in. It must
	// already exist. Empty means the current directory.
	OutDir string

	// Pattern names segment files by start offset. If unset, Extract
	// derives one from the image file name.
	Pattern Pattern

	// BlockSize is the scan granularity in bytes. Non-positive means
	// blockio.DefaultBlockSize.
	BlockSize int

	// MinSkip is the number of consecutive zero blocks at which the run
	// is dropped and the current segment ends. Shorter runs between data
	// blocks are written through. Zero or one means any zero block ends
	// the segment.
	MinSkip int

	// DryRun logs what would be written without creating any files.
	DryRun bool

	Logger *slog.Logger
}

// SegmentInfo describes one extracted segment.
type SegmentInfo struct {
	// Path of the segment file inside OutDir
	Path string
	// Offset in the image of the segment's first data block
	Offset int64
	// Bytes written to the segment file
	Bytes int64
}

// Result summarizes an extraction run.
type Result struct {
	// Segments in creation order
	Segments []SegmentInfo
	// BlocksRead from the image, a short final block included
	BlocksRead int64
	// BytesRead is the total image size consumed
	BytesRead int64
	// BytesWritten across all segment files
	BytesWritten int64
	// BytesSkipped as dropped zero runs
	BytesSkipped int64
}

// Segmenter consumes a block stream in offset order and writes every
// region between long zero runs to its own file.
//
// Zero blocks are never written as they arrive. They accumulate as a
// pending run and are flushed into the current segment only if data
// follows before the run reaches MinSkip blocks; once it does, the run
// is dropped and the segment is closed. A pending run still unflushed
// when the input ends is dropped too, so no segment ends in a zero tail
// shorter than MinSkip blocks.
type Segmenter struct {
	opts Options

	zeroRun      int64 // blocks in the zero run in progress
	pendingZeros int64 // bytes of that run neither written nor dropped yet
	zeroBuf      []byte

	file   *os.File
	w      *bufio.Writer
	opened bool

	result Result
}

// New returns a Segmenter ready to process blocks from offset 0.
func New(opts Options) *Segmenter {
	if opts.BlockSize <= 0 {
		opts.BlockSize = blockio.DefaultBlockSize
	}
	if opts.OutDir == "" {
		opts.OutDir = "."
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Segmenter{
		opts:    opts,
		zeroBuf: make([]byte, opts.BlockSize),
	}
}

// Process consumes the next block. offset is where the block starts in
// the input; blocks must arrive in order, without gaps.
func (s *Segmenter) Process(block []byte, offset int64) error {
	s.result.BlocksRead++
	s.result.BytesRead += int64(len(block))

	if blockio.IsZero(block) {
		s.zeroRun++
		if s.zeroRun >= int64(s.opts.MinSkip) {
			// The run is long enough to drop, along with whatever
			// part of it was still pending.
			s.result.BytesSkipped += s.pendingZeros + int64(len(block))
			s.pendingZeros = 0
			return s.closeSegment()
		}
		s.pendingZeros += int64(len(block))
		return nil
	}

	s.zeroRun = 0
	if !s.opened {
		// Pending zeros carried across an open are written below but
		// do not influence the name: the segment is labeled by the
		// first data block.
		if err := s.openSegment(offset); err != nil {
			return err
		}
	}
	if s.pendingZeros > 0 {
		if err := s.writeZeros(s.pendingZeros); err != nil {
			return err
		}
		s.pendingZeros = 0
	}
	return s.write(block)
}

// Finish flushes and closes the current segment, if any, and returns the
// run summary. A zero run still pending at this point is dropped.
func (s *Segmenter) Finish() (*Result, error) {
	s.result.BytesSkipped += s.pendingZeros
	s.pendingZeros = 0
	if err := s.closeSegment(); err != nil {
		return nil, err
	}
	return &s.result, nil
}

// Close releases the open segment file, if any, without flushing buffered
// data. It is a no-op after a clean Finish; it exists so callers can bail
// out mid-run without leaking the descriptor. The partial file stays in
// place.
func (s *Segmenter) Close() error {
	if !s.opened || s.file == nil {
		s.opened = false
		return nil
	}
	s.opened = false
	return s.file.Close()
}

func (s *Segmenter) openSegment(offset int64) error {
	path := filepath.Join(s.opts.OutDir, s.opts.Pattern.Format(offset))

	if s.opts.DryRun {
		s.opts.Logger.Debug("would create segment file", "path", path, "offset", offset)
	} else {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create segment file: %w", err)
		}
		s.file = f
		s.w = bufio.NewWriterSize(f, segmentBufferSize)
		s.opts.Logger.Debug("segment opened", "path", path, "offset", offset)
	}

	s.result.Segments = append(s.result.Segments, SegmentInfo{
		Path:   path,
		Offset: offset,
	})
	s.opened = true
	return nil
}

func (s *Segmenter) closeSegment() error {
	if !s.opened {
		return nil
	}
	s.opened = false

	seg := &s.result.Segments[len(s.result.Segments)-1]
	if s.opts.DryRun {
		s.opts.Logger.Info("would write segment", "path", seg.Path, "offset", seg.Offset, "bytes", seg.Bytes)
		return nil
	}

	if err := s.w.Flush(); err != nil {
		s.file.Close()
		return fmt.Errorf("failed to write segment data: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close segment file: %w", err)
	}
	s.file = nil
	s.w = nil

	s.opts.Logger.Info("segment written", "path", seg.Path, "offset", seg.Offset, "bytes", seg.Bytes)
	return nil
}

func (s *Segmenter) write(b []byte) error {
	if !s.opts.DryRun {
		if _, err := s.w.Write(b); err != nil {
			return fmt.Errorf("failed to write segment data: %w", err)
		}
	}
	s.result.Segments[len(s.result.Segments)-1].Bytes += int64(len(b))
	s.result.BytesWritten += int64(len(b))
	return nil
}

func (s *Segmenter) writeZeros(n int64) error {
	for n > 0 {
		chunk := int64(len(s.zeroBuf))
		if chunk > n {
			chunk = n
		}
		if err := s.write(s.zeroBuf[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// Extract splits the image at imagePath into segment files per opts and
// returns a summary of the run. Output files that were already written
// when an error occurs are left in place.
func Extract(imagePath string, opts Options) (*Result, error) {
	if opts.BlockSize <= 0 {
		opts.BlockSize = blockio.DefaultBlockSize
	}
	if opts.Pattern == (Pattern{}) {
		opts.Pattern = DefaultPattern(imagePath)
	}

	sc, err := blockio.Open(imagePath, opts.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer sc.Close()

	seg := New(opts)
	defer seg.Close()

	for sc.Scan() {
		if err := seg.Process(sc.Block(), sc.Offset()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	return seg.Finish()
}
