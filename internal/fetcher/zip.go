package fetcher

import (
	"archive/zip"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// EachZIPEntry calls fn for every file in the archive whose name ends in
// suffix (case-insensitive). Directories are skipped. An empty suffix matches
// every file.
func EachZIPEntry(zipPath, suffix string, fn func(name string, r io.Reader) error) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	suffix = strings.ToLower(suffix)
	matched := 0
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), suffix) {
			continue
		}
		matched++
		if err := eachEntry(f, fn); err != nil {
			return err
		}
	}
	if matched == 0 {
		return eris.Errorf("zip: no %s entries in %s", suffix, zipPath)
	}
	return nil
}

func eachEntry(f *zip.File, fn func(name string, r io.Reader) error) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "zip: open entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck
	return fn(f.Name, rc)
}
