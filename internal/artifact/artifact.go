// Package artifact packages a local directory subset into a compressed
// bundle for upload.
//
// A bundle is a zip archive of the files selected by the ignore-pattern
// matcher, plus explicit zero-length entries for every ancestor directory
// of an included file (the receiving service requires directory entries to
// exist independent of file entries). Construction enforces a byte budget
// on the running compressed size and aborts as soon as it is exceeded.
package artifact

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/flate"

	"github.com/peakplatform/peak-go/internal/ignorefile"
)

// DefaultMaxSize is the compressed-size budget for a bundle.
const DefaultMaxSize = 10 << 20

// Filename and media type of the uploaded archive part.
const (
	UploadName      = "artifact"
	UploadFilename  = "artifact.zip"
	UploadMediaType = "application/zip"
)

// InvalidPathError indicates a local path input that cannot be packaged or
// written to.
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid path %s: %s", e.Path, e.Reason)
}

// FileLimitExceededError indicates the bundle outgrew its byte budget.
// Construction stops at the first file that crosses the limit; no usable
// stream is produced.
type FileLimitExceededError struct {
	Limit int64
}

func (e *FileLimitExceededError) Error() string {
	return fmt.Sprintf("compressed artifact exceeds the %d byte limit", e.Limit)
}

// Bundle is a rewound, readable compressed archive. Callers own disposal:
// Close must run on every exit path to release any backing temp storage.
type Bundle struct {
	store *spool
	dirs  []string
}

// Read reads archive bytes. The stream starts at the beginning of the
// archive.
func (b *Bundle) Read(p []byte) (int, error) { return b.store.Read(p) }

// Seek repositions the stream, letting a transport retry resend the
// archive without repackaging.
func (b *Bundle) Seek(offset int64, whence int) (int64, error) {
	return b.store.Seek(offset, whence)
}

// Size returns the compressed archive size in bytes.
func (b *Bundle) Size() int64 { return b.store.Size() }

// Dirs returns the ancestor directories written as explicit entries,
// sorted, without the packaged root.
func (b *Bundle) Dirs() []string { return b.dirs }

// Close releases the bundle's backing storage.
func (b *Bundle) Close() error { return b.store.Close() }

// Compress packages the directory at root into a Bundle using the default
// size budget. Ignore files, when given, must live directly under root;
// with none given a root-level .dockerignore applies if present.
func Compress(root string, ignoreFiles []string) (*Bundle, error) {
	return CompressWithLimit(root, ignoreFiles, DefaultMaxSize)
}

// CompressWithLimit is Compress with an explicit compressed-size budget.
func CompressWithLimit(root string, ignoreFiles []string, maxSize int64) (*Bundle, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &InvalidPathError{Path: root, Reason: "path does not exist"}
	}
	if !info.IsDir() {
		return nil, &InvalidPathError{Path: root, Reason: "path is not a directory"}
	}

	files, err := includeSet(root, ignoreFiles)
	if err != nil {
		return nil, err
	}

	store := &spool{}
	bundle, err := writeArchive(store, root, files, maxSize)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return bundle, nil
}

func writeArchive(store *spool, root string, files []string, maxSize int64) (*Bundle, error) {
	zw := zip.NewWriter(store)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})

	dirs := make(map[string]bool)
	for _, rel := range files {
		w, err := zw.Create(rel)
		if err != nil {
			return nil, err
		}
		src, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, err
		}
		_, err = io.Copy(w, src)
		_ = src.Close()
		if err != nil {
			return nil, err
		}

		// The budget applies to write progress, not the finalized
		// archive, so an oversized tree fails fast.
		if err := zw.Flush(); err != nil {
			return nil, err
		}
		if store.Size() > maxSize {
			return nil, &FileLimitExceededError{Limit: maxSize}
		}

		for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
			dirs[dir] = true
		}
	}

	// Explicit directory entries after all files, root excluded.
	sortedDirs := make([]string, 0, len(dirs))
	for dir := range dirs {
		sortedDirs = append(sortedDirs, dir)
	}
	sort.Strings(sortedDirs)
	for _, dir := range sortedDirs {
		if _, err := zw.Create(dir + "/"); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	if store.Size() > maxSize {
		return nil, &FileLimitExceededError{Limit: maxSize}
	}
	if _, err := store.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return &Bundle{store: store, dirs: sortedDirs}, nil
}

func includeSet(root string, ignoreFiles []string) ([]string, error) {
	matcher, err := ignorefile.Load(root, ignoreFiles)
	if err != nil {
		return nil, err
	}
	return ignorefile.Files(root, matcher)
}

// Tree renders the include set for root as an indented tree, for dry-run
// previews that never hit the network.
func Tree(root string, ignoreFiles []string) (string, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return "", &InvalidPathError{Path: root, Reason: "path is not an existing directory"}
	}
	files, err := includeSet(root, ignoreFiles)
	if err != nil {
		return "", err
	}
	return ignorefile.Tree(root, files), nil
}
