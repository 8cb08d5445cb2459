// Package segment splits a block stream into per-region output files,
// dropping runs of zero blocks long enough to be worth a gap.
package segment

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidPattern indicates a segment name pattern that cannot format a
// single integer offset.
var ErrInvalidPattern = errors.New("invalid segment name pattern")

// pattern verbs that format an integer offset.
const patternVerbs = "bdoxX"

// Pattern names segment files by the byte offset they start at. The zero
// value is not usable; obtain one from ParsePattern or DefaultPattern.
type Pattern struct {
	format string
}

// ParsePattern validates format as a segment name pattern. The pattern must
// contain exactly one integer formatting verb (%b, %d, %o, %x or %X, with
// optional flags and a field width up to 255, e.g. %08x); %% produces a
// literal percent sign.
func ParsePattern(format string) (Pattern, error) {
	verbs := 0
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		i++
		if i >= len(format) {
			return Pattern{}, fmt.Errorf("%w: %q ends with a bare %%", ErrInvalidPattern, format)
		}
		if format[i] == '%' {
			continue
		}
		for i < len(format) && strings.IndexByte("+-# 0", format[i]) >= 0 {
			i++
		}
		width := 0
		for i < len(format) && format[i] >= '0' && format[i] <= '9' {
			width = width*10 + int(format[i]-'0')
			if width > 255 {
				// Wider than any filename a filesystem will take.
				return Pattern{}, fmt.Errorf("%w: %q declares a field width over 255", ErrInvalidPattern, format)
			}
			i++
		}
		if i >= len(format) {
			return Pattern{}, fmt.Errorf("%w: %q ends with an incomplete verb", ErrInvalidPattern, format)
		}
		if strings.IndexByte(patternVerbs, format[i]) < 0 {
			return Pattern{}, fmt.Errorf("%w: %q uses verb %%%c, want one of %%b %%d %%o %%x %%X", ErrInvalidPattern, format, format[i])
		}
		verbs++
	}
	if verbs != 1 {
		return Pattern{}, fmt.Errorf("%w: %q has %d integer verbs, want exactly one", ErrInvalidPattern, format, verbs)
	}
	return Pattern{format: format}, nil
}

// DefaultPattern derives a pattern from the image file name by inserting a
// hexadecimal offset before the extension: disk.img becomes
// disk_0x%08x.img. Percent signs in the name are escaped, so the derived
// pattern is always valid.
func DefaultPattern(imagePath string) Pattern {
	base := filepath.Base(imagePath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	name = strings.ReplaceAll(name, "%", "%%")
	ext = strings.ReplaceAll(ext, "%", "%%")
	return Pattern{format: name + "_0x%08x" + ext}
}

// Format renders the file name for a segment starting at offset.
func (p Pattern) Format(offset int64) string {
	return fmt.Sprintf(p.format, offset)
}

func (p Pattern) String() string {
	return p.format
}
