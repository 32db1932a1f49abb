package explore

import (
	"archive/tar"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

var archiveSuffixes = []string{".tar.gz", ".tar.bz2", ".tgz", ".tbz2", ".tar"}

// ErrUnsupportedSource reports a source path that is neither a directory
// nor a supported archive.
var ErrUnsupportedSource = errors.New("explore: source is neither a directory nor a supported archive")

// IsArchive reports whether name carries a supported archive suffix.
func IsArchive(name string) bool {
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func archiveStem(name string) string {
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}

// Decompress unpacks the tar stream r into dest inside fsys. The archive
// name selects the compression wrapper. Member names are confined to
// dest; anything absolute or escaping with ".." fails the whole unpack.
func Decompress(r io.Reader, name string, fsys billy.Filesystem, dest string) error {
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("open gzip stream %s: %w", name, err)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(name, ".tar.bz2"), strings.HasSuffix(name, ".tbz2"):
		r = bzip2.NewReader(r)
	case strings.HasSuffix(name, ".tar"):
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedSource, name)
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive %s: %w", name, err)
		}
		member := path.Clean(hdr.Name)
		if path.IsAbs(member) || member == ".." || strings.HasPrefix(member, "../") {
			return fmt.Errorf("archive %s: member %q escapes extraction root", name, hdr.Name)
		}
		target := fsys.Join(dest, member)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := fsys.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := fsys.MkdirAll(fsys.Join(target, ".."), 0o755); err != nil {
				return fmt.Errorf("create directory for %s: %w", target, err)
			}
			f, err := fsys.Create(target)
			if err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return fmt.Errorf("write %s: %w", target, err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", target, err)
			}
		}
	}
}

// PrepareSource turns a source path into an explorable filesystem. Plain
// directories are served in place. Archives are unpacked under
// extractionDir into a directory named after the archive; the returned
// cleanup removes it again and is nil for plain directories.
func PrepareSource(src, extractionDir string) (billy.Filesystem, func() error, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, nil, fmt.Errorf("stat source %s: %w", src, err)
	}
	if info.IsDir() {
		return osfs.New(src), nil, nil
	}
	if !IsArchive(src) {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, src)
	}

	dest := filepath.Join(extractionDir, archiveStem(filepath.Base(src)))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create extraction directory %s: %w", dest, err)
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, nil, fmt.Errorf("open archive %s: %w", src, err)
	}
	defer f.Close()

	fsys := osfs.New(dest)
	if err := Decompress(f, filepath.Base(src), fsys, "."); err != nil {
		os.RemoveAll(dest)
		return nil, nil, err
	}
	cleanup := func() error { return os.RemoveAll(dest) }
	return fsys, cleanup, nil
}
