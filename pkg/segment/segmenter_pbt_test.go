package segment

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"pgregory.net/rapid"
)

type refSegment struct {
	offset int64
	data   []byte
}

// referenceSplit is a naive rendition of the per-block rules, kept
// deliberately close to their prose form: a run counter, an explicit
// queue of zero bytes, and at most one open segment.
func referenceSplit(input []byte, bs, minskip int) []refSegment {
	var (
		segs    []refSegment
		queued  []byte
		zeroRun int
		open    bool
	)

	for off := 0; off < len(input); off += bs {
		end := off + bs
		if end > len(input) {
			end = len(input)
		}
		block := input[off:end]

		if bytes.Count(block, []byte{0}) == len(block) {
			zeroRun++
			if zeroRun >= minskip {
				queued = nil
				open = false
			} else {
				queued = append(queued, block...)
			}
			continue
		}

		zeroRun = 0
		if !open {
			segs = append(segs, refSegment{offset: int64(off)})
			open = true
		}
		cur := &segs[len(segs)-1]
		cur.data = append(cur.data, queued...)
		queued = nil
		cur.data = append(cur.data, block...)
	}
	return segs
}

// genImage produces inputs built from alternating zero and data runs so
// run lengths land on both sides of the skip threshold.
func genImage(rt *rapid.T, bs, minskip int) []byte {
	var input []byte
	runs := rapid.IntRange(0, 8).Draw(rt, "runs")
	for i := 0; i < runs; i++ {
		if rapid.Bool().Draw(rt, "zero_run") {
			n := rapid.IntRange(1, bs*(minskip+2)).Draw(rt, "zero_len")
			input = append(input, make([]byte, n)...)
		} else {
			n := rapid.IntRange(1, bs*3).Draw(rt, "data_len")
			input = append(input, rapid.SliceOfN(rapid.Byte(), n, n).Draw(rt, "data")...)
		}
	}
	return input
}

// TestSegmenterMatchesModel cross-checks Extract against the reference on
// randomized images with leading, interior and trailing zero runs.
func TestSegmenterMatchesModel(t *testing.T) {
	tmpDir := t.TempDir()
	pattern := mustPattern(t, "seg_%d.bin")
	iter := 0

	rapid.Check(t, func(rt *rapid.T) {
		bs := rapid.IntRange(1, 16).Draw(rt, "bs")
		minskip := rapid.IntRange(0, 4).Draw(rt, "minskip")
		input := genImage(rt, bs, minskip)

		// Fresh directories per iteration so runs cannot see each
		// other's files.
		iter++
		outDir := filepath.Join(tmpDir, fmt.Sprintf("out%d", iter))
		if err := os.Mkdir(outDir, 0755); err != nil {
			rt.Fatalf("failed to create output dir: %v", err)
		}
		imagePath := filepath.Join(tmpDir, fmt.Sprintf("image%d.bin", iter))
		if err := os.WriteFile(imagePath, input, 0644); err != nil {
			rt.Fatalf("failed to write image: %v", err)
		}

		res, err := Extract(imagePath, Options{
			OutDir:    outDir,
			Pattern:   pattern,
			BlockSize: bs,
			MinSkip:   minskip,
		})
		if err != nil {
			rt.Fatalf("Extract failed: %v", err)
		}

		want := referenceSplit(input, bs, minskip)
		if len(res.Segments) != len(want) {
			rt.Fatalf("segment count mismatch: got %d, want %d", len(res.Segments), len(want))
		}

		var wantWritten int64
		for i, ws := range want {
			got := res.Segments[i]
			if got.Offset != ws.offset {
				rt.Fatalf("segment %d offset: got %d, want %d", i, got.Offset, ws.offset)
			}
			if got.Bytes != int64(len(ws.data)) {
				rt.Fatalf("segment %d size: got %d, want %d", i, got.Bytes, len(ws.data))
			}
			data, err := os.ReadFile(got.Path)
			if err != nil {
				rt.Fatalf("failed to read segment %d: %v", i, err)
			}
			if !bytes.Equal(data, ws.data) {
				rt.Fatalf("segment %d at offset %d differs from reference", i, ws.offset)
			}
			wantWritten += int64(len(ws.data))
		}

		entries, err := os.ReadDir(outDir)
		if err != nil {
			rt.Fatalf("failed to read output dir: %v", err)
		}
		if len(entries) != len(want) {
			rt.Fatalf("output file count: got %d, want %d", len(entries), len(want))
		}

		if res.BytesRead != int64(len(input)) {
			rt.Fatalf("BytesRead: got %d, want %d", res.BytesRead, len(input))
		}
		if res.BytesWritten != wantWritten {
			rt.Fatalf("BytesWritten: got %d, want %d", res.BytesWritten, wantWritten)
		}
		if res.BytesRead != res.BytesWritten+res.BytesSkipped {
			rt.Fatalf("every byte must be written or skipped: read %d, written %d, skipped %d",
				res.BytesRead, res.BytesWritten, res.BytesSkipped)
		}
		var wantBlocks int64
		if len(input) > 0 {
			wantBlocks = int64((len(input) + bs - 1) / bs)
		}
		if res.BlocksRead != wantBlocks {
			rt.Fatalf("BlocksRead: got %d, want %d", res.BlocksRead, wantBlocks)
		}
	})
}

// TestSegmenterRoundTrip verifies that writing every segment back at its
// recorded offset into a zero-filled buffer reconstructs the image.
// Images here start with a data byte: a leading zero run below the
// threshold is folded into the first segment without moving its recorded
// offset back, which deliberately breaks placement by offset.
func TestSegmenterRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	pattern := mustPattern(t, "seg_%d.bin")
	iter := 0

	rapid.Check(t, func(rt *rapid.T) {
		bs := rapid.IntRange(1, 16).Draw(rt, "bs")
		minskip := rapid.IntRange(0, 4).Draw(rt, "minskip")
		input := append([]byte{0xff}, genImage(rt, bs, minskip)...)

		iter++
		outDir := filepath.Join(tmpDir, fmt.Sprintf("out%d", iter))
		if err := os.Mkdir(outDir, 0755); err != nil {
			rt.Fatalf("failed to create output dir: %v", err)
		}
		imagePath := filepath.Join(tmpDir, fmt.Sprintf("image%d.bin", iter))
		if err := os.WriteFile(imagePath, input, 0644); err != nil {
			rt.Fatalf("failed to write image: %v", err)
		}

		res, err := Extract(imagePath, Options{
			OutDir:    outDir,
			Pattern:   pattern,
			BlockSize: bs,
			MinSkip:   minskip,
		})
		if err != nil {
			rt.Fatalf("Extract failed: %v", err)
		}

		restored := make([]byte, len(input))
		for _, seg := range res.Segments {
			data, err := os.ReadFile(seg.Path)
			if err != nil {
				rt.Fatalf("failed to read segment at offset %d: %v", seg.Offset, err)
			}
			copy(restored[seg.Offset:], data)
		}

		if !bytes.Equal(restored, input) {
			rt.Fatalf("segments do not reconstruct the image (bs=%d, minskip=%d, %d bytes)",
				bs, minskip, len(input))
		}
	})
}
