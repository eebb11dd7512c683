// Package fetcher opens snapshot datasets wherever they live: local files,
// http(s) URLs, or zip archives of either.
package fetcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Opener resolves dataset locations to readers.
type Opener struct {
	remote Fetcher
}

// NewOpener creates an Opener. A nil remote uses an HTTPFetcher with default
// options.
func NewOpener(remote Fetcher) *Opener {
	if remote == nil {
		remote = NewHTTPFetcher(HTTPOptions{})
	}
	return &Opener{remote: remote}
}

// IsRemote reports whether location is an http(s) URL.
func IsRemote(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// Open returns a reader over location's bytes.
func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if IsRemote(location) {
		return o.remote.Download(ctx, location)
	}
	f, err := os.Open(filepath.Clean(location))
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", location)
	}
	return f, nil
}

// Each calls fn once per dataset found at location. A ".zip" location yields
// every ".json" entry of the archive in archive order; anything else yields
// the location itself. Remote archives are downloaded to a temporary file
// first.
func (o *Opener) Each(ctx context.Context, location string, fn func(name string, r io.Reader) error) error {
	if !strings.EqualFold(filepath.Ext(stripQuery(location)), ".zip") {
		rc, err := o.Open(ctx, location)
		if err != nil {
			return err
		}
		defer rc.Close() //nolint:errcheck
		return fn(location, rc)
	}

	archive := location
	if IsRemote(location) {
		tmp, err := os.CreateTemp("", "snapshot-*.zip")
		if err != nil {
			return eris.Wrap(err, "fetcher: create temp archive")
		}
		_ = tmp.Close()
		defer os.Remove(tmp.Name()) //nolint:errcheck

		if _, err := o.remote.DownloadToFile(ctx, location, tmp.Name()); err != nil {
			return err
		}
		archive = tmp.Name()
	}
	return EachZIPEntry(archive, ".json", fn)
}

func stripQuery(location string) string {
	if i := strings.IndexAny(location, "?#"); i >= 0 {
		return location[:i]
	}
	return location
}
