// Package artifact collects workspace files by glob pattern and
// packs them into compressed archives.
package artifact

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/gzip"

	"beaconci/internal/pipeline"
)

// ErrNoFiles is returned when an archive spec matches nothing in the
// workspace. A failed stage may legitimately have produced no output,
// so callers usually log and move on.
var ErrNoFiles = errors.New("no files matched archive spec")

// Collect walks root and returns the relative (slash-separated) paths
// matching the spec's globs, minus exclusions. Results are sorted for
// deterministic archives.
func Collect(root string, spec pipeline.ArchiveSpec) ([]string, error) {
	var matched []string

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		included := false
		for _, glob := range spec.Globs {
			if matchPattern(glob, rel) {
				included = true
				break
			}
		}
		if !included {
			return nil
		}
		for _, glob := range spec.Exclude {
			if matchPattern(glob, rel) {
				return nil
			}
		}
		matched = append(matched, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk workspace: %w", err)
	}

	sort.Strings(matched)
	return matched, nil
}

// WriteArchive collects the spec's files under root and writes them
// as a gzipped tarball to destPath. It returns the archive size in
// bytes, or ErrNoFiles when nothing matched.
func WriteArchive(root string, spec pipeline.ArchiveSpec, destPath string) (int64, error) {
	files, err := Collect(root, spec)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, ErrNoFiles
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, err
	}
	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive %s: %w", destPath, err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	for _, rel := range files {
		if err := addFile(tw, root, rel); err != nil {
			tw.Close()
			gz.Close()
			return 0, err
		}
	}

	if err := tw.Close(); err != nil {
		return 0, err
	}
	if err := gz.Close(); err != nil {
		return 0, err
	}

	info, err := out.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func addFile(tw *tar.Writer, root, rel string) error {
	full := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = rel

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	f, err := os.Open(full)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to archive %s: %w", rel, err)
	}
	return nil
}
