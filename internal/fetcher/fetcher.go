// Package fetcher downloads remote sources over HTTP and FTP and parses the
// tabular formats product catalogs ship in.
package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/hubizz/hubizz/internal/model"
)

// Fetcher downloads a remote resource.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

var (
	_ Fetcher = (*HTTPFetcher)(nil)
	_ Fetcher = (*FTPFetcher)(nil)
)

// Opener reads a source named by a local path or an http, https, or ftp URL.
type Opener struct {
	HTTP Fetcher
	FTP  Fetcher
}

// NewOpener returns an Opener backed by the given fetchers.
func NewOpener(httpFetcher, ftpFetcher Fetcher) *Opener {
	return &Opener{HTTP: httpFetcher, FTP: ftpFetcher}
}

// Open returns a reader over source. The caller closes it.
func (o *Opener) Open(ctx context.Context, source string) (io.ReadCloser, error) {
	switch scheme := Scheme(source); scheme {
	case "http", "https":
		if o.HTTP == nil {
			return nil, model.Wrap(model.ErrConfiguration, eris.New("fetch: no http fetcher configured"))
		}
		return o.HTTP.Download(ctx, source)
	case "ftp":
		if o.FTP == nil {
			return nil, model.Wrap(model.ErrConfiguration, eris.New("fetch: no ftp fetcher configured"))
		}
		return o.FTP.Download(ctx, source)
	case "", "file":
		path := strings.TrimPrefix(source, "file://")
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			return nil, model.Wrap(model.ErrNotFound, eris.Wrapf(err, "fetch: open %s", path))
		}
		if err != nil {
			return nil, eris.Wrapf(err, "fetch: open %s", path)
		}
		return f, nil
	default:
		return nil, model.Wrap(model.ErrInvalidInput, eris.Errorf("fetch: unsupported scheme %q", scheme))
	}
}

// ReadAll opens source and reads it fully.
func (o *Opener) ReadAll(ctx context.Context, source string) ([]byte, error) {
	rc, err := o.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, eris.Wrapf(err, "fetch: read %s", source)
	}
	return buf.Bytes(), nil
}

// Scheme returns the lower-cased URL scheme of source, or "" for a plain path.
func Scheme(source string) string {
	i := strings.Index(source, "://")
	if i <= 0 {
		return ""
	}
	u, err := url.Parse(source)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}
