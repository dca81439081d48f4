package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/mirrorctl/mockmirror/internal/artifact"
	"github.com/mirrorctl/mockmirror/internal/growing"
)

var seedCmd = &cobra.Command{
	Use:   "seed <path>",
	Short: "Write deterministic seed content for the growing file",
	Long: `Write 2^exponent pseudo-random bytes, reproducible from --seed, to use as
the growing file content. The SHA-256 of the written file is printed.

Examples:
  mockmirror seed growing_content
  mockmirror seed growing_content --seed 7 --exponent 20`,
	Args: cobra.ExactArgs(1),
	Run:  runSeed,
}

func runSeed(cmd *cobra.Command, args []string) {
	seed, _ := cmd.Flags().GetUint64("seed")
	exponent, _ := cmd.Flags().GetInt("exponent")

	fi, err := writeSeed(args[0], seed, exponent, os.Stderr)
	if err != nil {
		fail(cmd, "failed to write seed content", err)
	}
	fmt.Printf("%s  %s\n", fi.SHA256(), args[0])
}

// writeSeed writes the content to p, showing progress on progress unless
// it is nil.
func writeSeed(p string, seed uint64, exponent int, progress io.Writer) (*artifact.FileInfo, error) {
	if exponent < 0 || exponent > growing.MaxExponent {
		return nil, errors.Newf("exponent %d out of range [0, %d]", exponent, growing.MaxExponent)
	}
	total := int64(growing.SizeFor(exponent, growing.MaxExponent)) // #nosec G115 - at most 2^26

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644) // #nosec G304 - operator supplied output path
	if err != nil {
		return nil, err
	}

	var src io.Reader = io.LimitReader(growing.NewContentReader(seed), total)
	if progress != nil {
		bar := pb.Full.Start64(total)
		bar.Set(pb.Bytes, true)
		bar.SetWriter(progress)
		defer bar.Finish()
		src = bar.NewProxyReader(src)
	}

	fi, err := artifact.CopyWithFileInfo(f, src, filepath.Base(p))
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, errors.Wrapf(err, "write %s", p)
	}
	return fi, nil
}
