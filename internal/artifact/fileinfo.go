package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"math"
	"os"

	"github.com/cockroachdb/errors"
)

// FileInfo describes a served artifact: its path, size and SHA-256 digest.
type FileInfo struct {
	path   string
	size   uint64
	sha256 []byte // nil means the digest was not computed
}

// Same returns true if t describes the same content as fi.
func (fi *FileInfo) Same(t *FileInfo) bool {
	if fi == t {
		return true
	}
	if fi == nil || t == nil {
		return false
	}
	if fi.size != t.size {
		return false
	}
	if fi.sha256 != nil && !bytes.Equal(fi.sha256, t.sha256) {
		return false
	}
	return true
}

// Path returns the identifying path string of the file.
func (fi *FileInfo) Path() string {
	return fi.path
}

// Size returns the number of bytes of the file body.
func (fi *FileInfo) Size() uint64 {
	return fi.size
}

// SHA256 returns the hex encoded SHA-256 digest, or "" if none was computed.
func (fi *FileInfo) SHA256() string {
	if fi.sha256 == nil {
		return ""
	}
	return hex.EncodeToString(fi.sha256)
}

type fileInfoJSON struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (fi *FileInfo) MarshalJSON() ([]byte, error) {
	if fi.size > math.MaxInt64 {
		return nil, errors.Newf("file size %d exceeds maximum int64 value", fi.size)
	}
	return json.Marshal(&fileInfoJSON{
		Path:   fi.path,
		Size:   int64(fi.size),
		SHA256: fi.SHA256(),
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (fi *FileInfo) UnmarshalJSON(data []byte) error {
	var fij fileInfoJSON
	if err := json.Unmarshal(data, &fij); err != nil {
		return err
	}
	if fij.Size < 0 {
		return errors.Newf("negative file size %d not allowed", fij.Size)
	}
	fi.path = fij.Path
	fi.size = uint64(fij.Size)
	fi.sha256 = nil
	if fij.SHA256 != "" {
		sum, err := hex.DecodeString(fij.SHA256)
		if err != nil {
			return errors.Wrap(err, "UnmarshalJSON sha256 for "+fij.Path)
		}
		fi.sha256 = sum
	}
	return nil
}

// CopyWithFileInfo copies from src to dst until either EOF is reached
// on src or an error occurs, and returns FileInfo calculated while copying.
func CopyWithFileInfo(dst io.Writer, src io.Reader, p string) (*FileInfo, error) {
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(h, dst), src)
	if err != nil {
		return nil, err
	}
	return &FileInfo{
		path:   p,
		size:   uint64(n), // #nosec G115 - io.Copy never returns a negative count
		sha256: h.Sum(nil),
	}, nil
}

// Describe computes the FileInfo of an existing file.
func Describe(p string) (*FileInfo, error) {
	f, err := os.Open(p) // #nosec G304 - callers pass paths they created
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return CopyWithFileInfo(io.Discard, f, p)
}

// FromBytes computes the FileInfo of an in-memory body.
func FromBytes(p string, data []byte) *FileInfo {
	sum := sha256.Sum256(data)
	return &FileInfo{
		path:   p,
		size:   uint64(len(data)),
		sha256: sum[:],
	}
}
