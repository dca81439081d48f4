package mirror

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

var rangeRegexp = regexp.MustCompile(`^bytes=(\d+)-(\d+)?$`)

// ByteRange is an inclusive byte interval from a Range header.
// When HasLast is false the range extends to the end of the data.
type ByteRange struct {
	First   uint64
	Last    uint64
	HasLast bool
}

// ParseByteRange parses a single "bytes=first-[last]" range.
// An empty header yields a nil range and no error.
func ParseByteRange(header string) (*ByteRange, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}

	m := rangeRegexp.FindStringSubmatch(header)
	if m == nil {
		return nil, errors.Wrapf(ErrInvalidRange, "%q", header)
	}

	first, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidRange, "%q", header)
	}
	br := &ByteRange{First: first}
	if m[2] == "" {
		return br, nil
	}

	last, err := strconv.ParseUint(m[2], 10, 64)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidRange, "%q", header)
	}
	if last < first {
		return nil, errors.Wrapf(ErrInvalidRange, "%q: last before first", header)
	}
	br.Last = last
	br.HasLast = true
	return br, nil
}

// Clamp resolves the range against data of length size. It returns the
// inclusive bounds, or ErrUnsatisfiableRange when First is past the end.
func (br *ByteRange) Clamp(size uint64) (first, last uint64, err error) {
	if br.First >= size {
		return 0, 0, errors.Wrapf(ErrUnsatisfiableRange, "first byte %d of %d", br.First, size)
	}
	last = size - 1
	if br.HasLast && br.Last < last {
		last = br.Last
	}
	return br.First, last, nil
}
