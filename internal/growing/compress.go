package growing

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ulikunitz/xz"
)

// Compressor turns the plain materialized content into the distributable
// artifact.
type Compressor interface {
	// Compress reads plainPath and writes the artifact to artifactPath.
	Compress(ctx context.Context, plainPath, artifactPath string) error
	// Ext is the artifact file extension, including the dot.
	Ext() string
}

// XZCompressor compresses in-process with github.com/ulikunitz/xz.
type XZCompressor struct{}

// Ext implements Compressor.
func (XZCompressor) Ext() string { return ".xz" }

// Compress implements Compressor.
func (XZCompressor) Compress(_ context.Context, plainPath, artifactPath string) error {
	in, err := os.Open(plainPath) // #nosec G304 - generator owned path
	if err != nil {
		return err
	}
	defer in.Close()

	return writeFileAtomic(artifactPath, func(w io.Writer) error {
		xw, err := xz.NewWriter(w)
		if err != nil {
			return errors.Wrap(err, "xz.NewWriter")
		}
		if _, err := io.Copy(xw, in); err != nil {
			xw.Close()
			return errors.Wrap(err, "xz compress "+plainPath)
		}
		return xw.Close()
	})
}

// ExecCompressor runs an external compressor such as zck.
//
// Args are passed after the command; the placeholders "{in}" and "{out}"
// are replaced by the plain and artifact paths.
type ExecCompressor struct {
	Command   string
	Args      []string
	Extension string
}

// NewZckCompressor returns the compressor invoking "zck <in> -o <out>".
func NewZckCompressor() *ExecCompressor {
	return &ExecCompressor{
		Command:   "zck",
		Args:      []string{"{in}", "-o", "{out}"},
		Extension: ".zck",
	}
}

// Ext implements Compressor.
func (c *ExecCompressor) Ext() string { return c.Extension }

// Compress implements Compressor.
func (c *ExecCompressor) Compress(ctx context.Context, plainPath, artifactPath string) error {
	// the tool writes next to the artifact; the rename publishes it
	partPath := artifactPath + ".part"
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		a = strings.ReplaceAll(a, "{in}", plainPath)
		args[i] = strings.ReplaceAll(a, "{out}", partPath)
	}
	cmd := exec.CommandContext(ctx, c.Command, args...) // #nosec G204 - command comes from the operator's config
	out, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(partPath)
		return errors.Wrapf(err, "%s: %s", c.Command, strings.TrimSpace(string(out)))
	}
	if err := os.Rename(partPath, artifactPath); err != nil {
		return err
	}
	return DirSync(filepath.Dir(artifactPath))
}
