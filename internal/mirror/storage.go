package mirror

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	staticDir = "static"

	corruptSuffix = "\n\n"
)

// validatePath validates that a path is safe for use within the storage directory.
// It prevents directory traversal attacks by checking for:
// 1. Parent directory references (..)
// 2. Absolute paths
// Returns an error if the path is unsafe.
func validatePath(p string) error {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return errors.Wrapf(ErrBadRequest, "unsafe path (contains directory traversal): %s", p)
		}
	}

	if filepath.IsAbs(filepath.FromSlash(p)) {
		return errors.Wrapf(ErrBadRequest, "unsafe path (absolute path not allowed): %s", p)
	}

	return nil
}

// Asset is a static file loaded into memory.
type Asset struct {
	// Path is the path below the root, starting with "static/".
	Path string
	Data []byte
	// Corrupted is true when corruptSuffix was appended.
	Corrupted bool
}

// Storage serves files of a directory tree holding a static/ directory.
type Storage struct {
	dir string
}

// NewStorage constructs Storage.
//
// dir must be an existing directory. It is made absolute.
func NewStorage(dir string) (*Storage, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.Mode().IsDir() {
		return nil, errors.New("not a directory: " + dir)
	}

	return &Storage{dir: dir}, nil
}

// Dir returns the directory of the Storage.
func (s *Storage) Dir() string {
	return s.dir
}

// GrowingDir returns the directory of the growing file artifacts.
func (s *Storage) GrowingDir() string {
	return filepath.Join(s.dir, staticDir, "zchunk", "growing_file")
}

// Resolve maps a request path to a path below the root. Everything before
// the first "static/" is dropped, so /broken_counts/static/a and /static/a
// name the same file.
func (s *Storage) Resolve(urlPath string) (string, error) {
	i := strings.Index(urlPath, staticDir+"/")
	if i < 0 {
		return "", errors.Wrapf(ErrBadRequest, "no %s/ in %q", staticDir, urlPath)
	}
	rel := urlPath[i:]
	if err := validatePath(rel); err != nil {
		return "", err
	}
	return rel, nil
}

// Load reads the file named by urlPath. If corrupt is set and the file name
// contains keyword, two newlines are appended to the in-memory copy. An
// empty keyword matches every file.
//
// Any error opening or reading the file is reported as ErrNotFound.
func (s *Storage) Load(urlPath string, corrupt bool, keyword string) (*Asset, error) {
	rel, err := s.Resolve(urlPath)
	if err != nil {
		return nil, err
	}

	fp := filepath.Join(s.dir, filepath.FromSlash(rel))
	data, err := os.ReadFile(fp) // #nosec G304 - fp is validated by Resolve
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, rel), ErrNotFound)
	}

	a := &Asset{Path: rel, Data: data}
	if corrupt && strings.Contains(path.Base(rel), keyword) {
		a.Data = append(a.Data, corruptSuffix...)
		a.Corrupted = true
	}
	return a, nil
}

// Exists reports whether urlPath names a regular file.
func (s *Storage) Exists(urlPath string) bool {
	rel, err := s.Resolve(urlPath)
	if err != nil {
		return false
	}
	st, err := os.Stat(filepath.Join(s.dir, filepath.FromSlash(rel)))
	return err == nil && st.Mode().IsRegular()
}
