// Package growing produces a file that grows between releases, so a client
// with delta download support can be exercised against shrinking
// "bytes still needed" fractions.
package growing

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/mirrorctl/mockmirror/internal/artifact"
)

const (
	// MaxExponent caps the growth size at 2^26 bytes.
	MaxExponent = 26
	// DefaultInitialExponent gives a first growth of 1 KiB.
	DefaultInitialExponent = 10

	artifactPrefix = "gf"
	oldSuffix      = "_old"
)

// Source selects where growth content comes from.
type Source int

const (
	// SourceSeed takes a prefix of a fixed corpus.
	SourceSeed Source = iota
	// SourceRandom appends pseudo-random bytes to the running content.
	SourceRandom
)

func (s Source) String() string {
	if s == SourceRandom {
		return "random"
	}
	return "seed"
}

// Config configures a Generator.
type Config struct {
	// Dir receives the artifact, its plain form and the previous snapshot.
	Dir string
	// Name is embedded in the artifact name: "gf" + Name + Compressor.Ext().
	Name string

	Source Source
	// Seed is the corpus for SourceSeed.
	Seed []byte
	// RandomSeed makes SourceRandom reproducible.
	RandomSeed uint64

	InitialExponent int
	// MaxExponent lowers the cap; zero means MaxExponent.
	MaxExponent int

	Compressor Compressor
	Delta      DeltaTool
}

// GrowthResult is the outcome of one Grow call.
type GrowthResult struct {
	Success  bool               `json:"success"`
	Exponent int                `json:"exponent"`
	Size     uint64             `json:"size"`
	Content  int                `json:"content_length"`
	Artifact *artifact.FileInfo `json:"artifact,omitempty"`
	Report   *DeltaReport       `json:"delta,omitempty"`
}

// Generator owns the growing file state. It is safe for concurrent use.
type Generator struct {
	cfg Config

	mu           sync.Mutex
	exponent     int
	size         uint64
	capped       bool
	content      []byte
	prev         *Snapshot
	prevArtifact *artifact.FileInfo
	rng          *rand.ChaCha8
}

// SizeFor returns min(2^exponent, 2^maxExponent).
func SizeFor(exponent, maxExponent int) uint64 {
	if exponent > maxExponent {
		exponent = maxExponent
	}
	return uint64(1) << uint(exponent) // #nosec G115 - exponent is bounded by MaxExponent
}

// NewContentReader returns an endless deterministic byte stream for seed.
func NewContentReader(seed uint64) io.Reader {
	return newChaCha8(seed)
}

func newChaCha8(seed uint64) *rand.ChaCha8 {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	return rand.NewChaCha8(key)
}

// New constructs a Generator. Dir is created if missing.
func New(cfg Config) (*Generator, error) {
	if cfg.MaxExponent == 0 {
		cfg.MaxExponent = MaxExponent
	}
	if cfg.MaxExponent < 0 || cfg.MaxExponent > MaxExponent {
		return nil, errors.Newf("max exponent %d out of range [1, %d]", cfg.MaxExponent, MaxExponent)
	}
	if cfg.InitialExponent == 0 {
		cfg.InitialExponent = DefaultInitialExponent
	}
	if cfg.InitialExponent < 0 || cfg.InitialExponent > cfg.MaxExponent {
		return nil, errors.Newf("initial exponent %d out of range [0, %d]", cfg.InitialExponent, cfg.MaxExponent)
	}
	if cfg.Source == SourceSeed && len(cfg.Seed) == 0 {
		return nil, errors.New("seed source requires content")
	}
	if strings.ContainsAny(cfg.Name, `/\`) {
		return nil, errors.New("invalid growing file name: " + cfg.Name)
	}
	if cfg.Compressor == nil {
		cfg.Compressor = XZCompressor{}
	}
	if cfg.Delta == nil {
		cfg.Delta = ChunkDelta{}
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "growing file directory")
	}
	cfg.Dir = dir
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, errors.Wrap(err, "growing file directory")
	}

	g := &Generator{
		cfg:      cfg,
		exponent: cfg.InitialExponent,
		size:     SizeFor(cfg.InitialExponent, cfg.MaxExponent),
	}
	if cfg.Source == SourceRandom {
		g.rng = newChaCha8(cfg.RandomSeed)
	}
	return g, nil
}

// ArtifactName returns the file name of the served artifact.
func (g *Generator) ArtifactName() string {
	return artifactPrefix + g.cfg.Name + g.cfg.Compressor.Ext()
}

// ArtifactPath returns the full path of the served artifact.
func (g *Generator) ArtifactPath() string {
	return filepath.Join(g.cfg.Dir, g.ArtifactName())
}

func (g *Generator) plainPath() string {
	return filepath.Join(g.cfg.Dir, artifactPrefix+g.cfg.Name)
}

// oldPath inserts "_old" before the extension: gfx.zck -> gfx_old.zck.
func oldPath(p string) string {
	ext := filepath.Ext(p)
	return strings.TrimSuffix(p, ext) + oldSuffix + ext
}

// Exponent returns the current exponent.
func (g *Generator) Exponent() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.exponent
}

// Size returns the size used by the next growth.
func (g *Generator) Size() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.size
}

// Grow runs one growth cycle: extend the content, materialize and compress
// it, measure the delta against the previous snapshot, rotate snapshots and
// advance the exponent.
//
// Only failures writing the plain file are returned. Compressor and delta
// tool failures are logged and leave the result without a report.
func (g *Generator) Grow(ctx context.Context) (*GrowthResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.extend()

	plain := g.plainPath()
	err := writeFileAtomic(plain, func(w io.Writer) error {
		_, err := w.Write(g.content)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "materialize growing file")
	}

	res := &GrowthResult{Content: len(g.content)}
	cur := Snapshot{PlainPath: plain, ArtifactPath: g.ArtifactPath()}
	if err := g.cfg.Compressor.Compress(ctx, cur.PlainPath, cur.ArtifactPath); err != nil {
		slog.Warn("failed to compress growing file", "path", cur.PlainPath, "error", err)
	} else {
		res.Artifact = g.describe(cur.ArtifactPath)
		if res.Artifact != nil && res.Artifact.Same(g.prevArtifact) {
			slog.Debug("growing file unchanged", "path", cur.ArtifactPath, "size", res.Artifact.Size())
		}
		g.prevArtifact = res.Artifact
		res.Report = g.measure(ctx, cur)
		g.rotate(cur)
	}

	res.Success = g.advance()
	res.Exponent = g.exponent
	res.Size = g.size
	return res, nil
}

func (g *Generator) extend() {
	switch g.cfg.Source {
	case SourceRandom:
		if g.capped {
			return
		}
		chunk := make([]byte, g.size)
		_, _ = g.rng.Read(chunk)
		g.content = append(g.content, chunk...)
	default:
		n := min(g.size, uint64(len(g.cfg.Seed)))
		g.content = g.cfg.Seed[:n]
	}
}

func (g *Generator) describe(p string) *artifact.FileInfo {
	fi, err := artifact.Describe(p)
	if err != nil {
		slog.Warn("failed to describe growing artifact", "path", p, "error", err)
		return nil
	}
	return fi
}

func (g *Generator) measure(ctx context.Context, cur Snapshot) *DeltaReport {
	if g.prev == nil {
		return nil
	}
	out, err := g.cfg.Delta.Measure(ctx, *g.prev, cur)
	if err != nil {
		slog.Warn("delta tool failed", "path", cur.ArtifactPath, "error", err)
		return nil
	}
	report, err := ParseDeltaReport(out)
	if err != nil {
		slog.Warn("unparsable delta output", "path", cur.ArtifactPath, "error", err)
		return nil
	}
	return report
}

func (g *Generator) rotate(cur Snapshot) {
	old := Snapshot{PlainPath: oldPath(cur.PlainPath), ArtifactPath: oldPath(cur.ArtifactPath)}
	if err := copyFileAtomic(cur.PlainPath, old.PlainPath); err != nil {
		slog.Warn("failed to keep previous snapshot", "path", old.PlainPath, "error", err)
		g.prev = nil
		return
	}
	if err := copyFileAtomic(cur.ArtifactPath, old.ArtifactPath); err != nil {
		slog.Warn("failed to keep previous snapshot", "path", old.ArtifactPath, "error", err)
		g.prev = nil
		return
	}
	g.prev = &old
}

// advance moves to the next exponent. At the cap the exponent and size
// stay put and false is returned.
func (g *Generator) advance() bool {
	next := g.exponent + 1
	if next > g.cfg.MaxExponent {
		g.capped = true
		return false
	}
	g.exponent = next
	g.size = SizeFor(next, g.cfg.MaxExponent)
	return true
}
