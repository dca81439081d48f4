package growing

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ulikunitz/xz"
)

func seedCorpus(t *testing.T, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	if _, err := io.ReadFull(NewContentReader(42), buf); err != nil {
		t.Fatal(err)
	}
	return buf
}

func TestSizeFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		exponent int
		want     uint64
	}{
		{0, 1},
		{10, 1024},
		{25, 1 << 25},
		{26, 1 << 26},
		{27, 1 << 26},
		{40, 1 << 26},
	}
	for _, c := range cases {
		if got := SizeFor(c.exponent, MaxExponent); got != c.want {
			t.Errorf("SizeFor(%d) = %d, want %d", c.exponent, got, c.want)
		}
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cases := []struct {
		name string
		cfg  Config
	}{
		{"seed without content", Config{Dir: dir}},
		{"exponent above cap", Config{Dir: dir, Source: SourceRandom, InitialExponent: 27}},
		{"cap above 26", Config{Dir: dir, Source: SourceRandom, MaxExponent: 30}},
		{"name with slash", Config{Dir: dir, Source: SourceRandom, Name: "../x"}},
	}
	for _, c := range cases {
		if _, err := New(c.cfg); err == nil {
			t.Errorf("%s: New succeeded, want error", c.name)
		}
	}
}

func TestGrowSeedSource(t *testing.T) {
	t.Parallel()

	const maxExp = 14
	dir := t.TempDir()
	seed := seedCorpus(t, 1<<maxExp)
	g, err := New(Config{
		Dir:         dir,
		Name:        "test",
		Source:      SourceSeed,
		Seed:        seed,
		MaxExponent: maxExp,
	})
	if err != nil {
		t.Fatal(err)
	}
	if g.ArtifactName() != "gftest.xz" {
		t.Errorf(`g.ArtifactName() = %q, want "gftest.xz"`, g.ArtifactName())
	}

	ctx := context.Background()
	wantSuccess := []bool{true, true, true, true, false, false}
	lastPct := 101
	for i, want := range wantSuccess {
		res, err := g.Grow(ctx)
		if err != nil {
			t.Fatalf("grow %d: %v", i, err)
		}
		if res.Success != want {
			t.Errorf("grow %d: success = %v, want %v", i, res.Success, want)
		}
		if res.Size != SizeFor(res.Exponent, maxExp) || res.Size > 1<<maxExp {
			t.Errorf("grow %d: size %d does not follow exponent %d", i, res.Size, res.Exponent)
		}
		if res.Artifact == nil {
			t.Fatalf("grow %d: no artifact", i)
		}

		if i == 0 {
			if res.Report != nil {
				t.Errorf("first grow has a report: %+v", res.Report)
			}
			continue
		}
		if res.Report == nil {
			t.Fatalf("grow %d: missing report", i)
		}
		pct := res.Report.PercentToDownload
		if pct < 0 || pct > 100 {
			t.Errorf("grow %d: percent %d out of bounds", i, pct)
		}
		if pct > lastPct {
			t.Errorf("grow %d: percent grew from %d to %d", i, lastPct, pct)
		}
		lastPct = pct
	}

	if g.Exponent() != maxExp {
		t.Errorf("g.Exponent() = %d, want %d", g.Exponent(), maxExp)
	}
	if lastPct != 0 {
		t.Errorf("unchanged content should need 0%%, got %d", lastPct)
	}

	// the artifact decompresses to the full seed prefix
	f, err := os.Open(g.ArtifactPath())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	r, err := xz.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(plain, seed) {
		t.Errorf("artifact holds %d bytes, want the %d byte seed", len(plain), len(seed))
	}

	if _, err := os.Stat(filepath.Join(dir, "gftest_old.xz")); err != nil {
		t.Errorf("previous snapshot missing: %v", err)
	}
}

func TestGrowDeltaSequence(t *testing.T) {
	t.Parallel()

	g, err := New(Config{
		Dir:         t.TempDir(),
		Source:      SourceSeed,
		Seed:        seedCorpus(t, 1<<13),
		MaxExponent: 13,
	})
	if err != nil {
		t.Fatal(err)
	}

	// 1 KiB, 2 KiB, 4 KiB, 8 KiB against 4 KiB chunks
	want := []int{-1, 100, 100, 50}
	for i, w := range want {
		res, err := g.Grow(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if w < 0 {
			continue
		}
		if res.Report == nil || res.Report.PercentToDownload != w {
			t.Errorf("grow %d: report %+v, want %d%%", i, res.Report, w)
		}
	}
}

func TestGrowRandomSource(t *testing.T) {
	t.Parallel()

	g, err := New(Config{
		Dir:             t.TempDir(),
		Source:          SourceRandom,
		RandomSeed:      7,
		InitialExponent: 10,
		MaxExponent:     12,
	})
	if err != nil {
		t.Fatal(err)
	}

	wantContent := []int{1024, 1024 + 2048, 1024 + 2048 + 4096, 1024 + 2048 + 4096}
	for i, want := range wantContent {
		res, err := g.Grow(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if res.Content != want {
			t.Errorf("grow %d: content length %d, want %d", i, res.Content, want)
		}
	}
	if g.Size() != 4096 {
		t.Errorf("g.Size() = %d, want 4096", g.Size())
	}
}

func TestGrowRelativeDir(t *testing.T) {
	t.Parallel()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	dir, err := filepath.Rel(wd, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(dir, "..") {
		t.Fatalf("relative dir %q has no parent reference", dir)
	}

	g, err := New(Config{Dir: dir, Source: SourceRandom, RandomSeed: 3})
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(g.ArtifactPath()) {
		t.Errorf("g.ArtifactPath() = %q, want absolute", g.ArtifactPath())
	}
	res, err := g.Grow(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Errorf("res.Success = false, want true")
	}
	if _, err := os.Stat(g.ArtifactPath()); err != nil {
		t.Error(err)
	}
}

type failingCompressor struct{}

func (failingCompressor) Ext() string { return ".zck" }

func (failingCompressor) Compress(context.Context, string, string) error {
	return errors.New("zck: not installed")
}

type failingDelta struct{}

func (failingDelta) Measure(context.Context, Snapshot, Snapshot) (string, error) {
	return "", errors.New("zck_delta_size: exit status 1")
}

func TestGrowToolFailures(t *testing.T) {
	t.Parallel()

	t.Run("compressor", func(t *testing.T) {
		t.Parallel()
		g, err := New(Config{Dir: t.TempDir(), Source: SourceRandom, Compressor: failingCompressor{}})
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 2; i++ {
			res, err := g.Grow(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if res.Artifact != nil || res.Report != nil {
				t.Errorf("grow %d: got artifact/report from a failing compressor", i)
			}
			if !res.Success {
				t.Errorf("grow %d: growth itself should succeed", i)
			}
		}
	})

	t.Run("delta", func(t *testing.T) {
		t.Parallel()
		g, err := New(Config{Dir: t.TempDir(), Source: SourceRandom, Delta: failingDelta{}})
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 3; i++ {
			res, err := g.Grow(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if res.Report != nil {
				t.Errorf("grow %d: report from a failing delta tool", i)
			}
			if res.Artifact == nil {
				t.Errorf("grow %d: artifact missing", i)
			}
		}
	})

	t.Run("missing external tools", func(t *testing.T) {
		t.Parallel()
		g, err := New(Config{
			Dir:    t.TempDir(),
			Source: SourceRandom,
			Delta:  &ExecDelta{DeltaCommand: "/nonexistent/zck_delta_size", HeaderCommand: "/nonexistent/zck_read_header"},
		})
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 2; i++ {
			res, err := g.Grow(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if res.Report != nil {
				t.Errorf("grow %d: unexpected report", i)
			}
		}
	})
}
