package growing

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// DefaultChunkSize is the chunk size of ChunkDelta.
const DefaultChunkSize = 4096

// Snapshot is one materialized version of the growing file.
type Snapshot struct {
	PlainPath    string
	ArtifactPath string
}

// DeltaReport is the download cost of moving from one snapshot to the next.
type DeltaReport struct {
	PercentToDownload    int    `json:"percent_to_download"`
	PercentChunksChanged int    `json:"percent_chunks_changed"`
	HeaderSize           uint64 `json:"header_size"`
}

// DeltaTool measures the difference between two snapshots. The output is
// text containing two "<n> of <m>" occurrences (bytes, then chunks) and a
// "Header size: <n>" line, as printed by zck_delta_size and zck_read_header.
type DeltaTool interface {
	Measure(ctx context.Context, prev, cur Snapshot) (string, error)
}

// ErrNoReport marks delta output that could not be turned into a report.
var ErrNoReport = errors.New("no delta report")

// ParseDeltaReport extracts a DeltaReport from delta tool output.
func ParseDeltaReport(out string) (*DeltaReport, error) {
	fields := strings.Fields(out)
	var pct []int
	for i, f := range fields {
		if f != "of" || i == 0 || i+1 >= len(fields) {
			continue
		}
		n, err1 := strconv.ParseFloat(fields[i-1], 64)
		m, err2 := strconv.ParseFloat(fields[i+1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		if m <= 0 {
			return nil, errors.Mark(errors.Newf("zero total in %q", fields[i-1]+" of "+fields[i+1]), ErrNoReport)
		}
		pct = append(pct, clampPercent(math.Round(100*n/m)))
		if len(pct) == 2 {
			break
		}
	}
	if len(pct) < 2 {
		return nil, errors.Mark(errors.Newf("expected two \"<n> of <m>\" occurrences, found %d", len(pct)), ErrNoReport)
	}

	headerSize, err := parseHeaderSize(out)
	if err != nil {
		return nil, errors.Mark(err, ErrNoReport)
	}

	return &DeltaReport{
		PercentToDownload:    pct[0],
		PercentChunksChanged: pct[1],
		HeaderSize:           headerSize,
	}, nil
}

func parseHeaderSize(out string) (uint64, error) {
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ": ")
		if !ok || strings.TrimSpace(key) != "Header size" {
			continue
		}
		size, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return 0, errors.Wrap(err, "header size")
		}
		return size, nil
	}
	return 0, errors.New("no header size")
}

func clampPercent(p float64) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return int(p)
}

// ChunkDelta compares the plain contents of two snapshots chunk by chunk.
// A chunk of the new snapshot must be downloaded unless a chunk with the
// same digest exists in the previous one.
type ChunkDelta struct {
	ChunkSize int
}

// Measure implements DeltaTool.
func (d ChunkDelta) Measure(_ context.Context, prev, cur Snapshot) (string, error) {
	size := d.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	known := make(map[[sha256.Size]byte]struct{})
	err := eachChunk(prev.PlainPath, size, func(c []byte) {
		known[sha256.Sum256(c)] = struct{}{}
	})
	if err != nil {
		return "", err
	}

	var totalBytes, needBytes, totalChunks, needChunks uint64
	err = eachChunk(cur.PlainPath, size, func(c []byte) {
		totalChunks++
		totalBytes += uint64(len(c))
		if _, ok := known[sha256.Sum256(c)]; !ok {
			needChunks++
			needBytes += uint64(len(c))
		}
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Would need to download %d of %d bytes\n", needBytes, totalBytes)
	fmt.Fprintf(&b, "Would need to download %d of %d chunks\n", needChunks, totalChunks)
	fmt.Fprintf(&b, "Header size: %d\n", totalChunks*sha256.Size)
	return b.String(), nil
}

func eachChunk(p string, size int, fn func([]byte)) error {
	f, err := os.Open(p) // #nosec G304 - generator owned path
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, size)
	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			fn(buf[:n])
		}
		switch {
		case err == io.EOF || err == io.ErrUnexpectedEOF:
			return nil
		case err != nil:
			return err
		}
	}
}

// ExecDelta runs zck_delta_size and zck_read_header on the artifacts.
type ExecDelta struct {
	DeltaCommand  string
	HeaderCommand string
}

// NewZckDelta returns the ExecDelta using the zchunk command line tools.
func NewZckDelta() *ExecDelta {
	return &ExecDelta{
		DeltaCommand:  "zck_delta_size",
		HeaderCommand: "zck_read_header",
	}
}

// Measure implements DeltaTool.
func (d *ExecDelta) Measure(ctx context.Context, prev, cur Snapshot) (string, error) {
	delta, err := exec.CommandContext(ctx, d.DeltaCommand, cur.ArtifactPath, prev.ArtifactPath).Output() // #nosec G204 - operator configured tool
	if err != nil {
		return "", errors.Wrap(err, d.DeltaCommand)
	}
	header, err := exec.CommandContext(ctx, d.HeaderCommand, cur.ArtifactPath).Output() // #nosec G204 - operator configured tool
	if err != nil {
		return "", errors.Wrap(err, d.HeaderCommand)
	}
	return string(bytes.Join([][]byte{delta, header}, []byte("\n"))), nil
}
