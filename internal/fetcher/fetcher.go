// Package fetcher opens portfolio exports from local paths, HTTP(S) URLs
// and FTP drops.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Fetcher downloads a single remote source.
type Fetcher interface {
	// Download returns the body of source. The caller closes it.
	Download(ctx context.Context, source string) (io.ReadCloser, error)
}

// Kind classifies a source string.
type Kind string

const (
	KindLocal Kind = "file"
	KindHTTP  Kind = "http"
	KindFTP   Kind = "ftp"
)

// KindOf reports how source will be opened. Anything that is not an
// http, https or ftp URL is treated as a local path.
func KindOf(source string) Kind {
	u, err := url.Parse(source)
	if err != nil {
		return KindLocal
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return KindHTTP
	case "ftp":
		return KindFTP
	}
	return KindLocal
}

// IsSpreadsheet reports whether source names an .xlsx workbook, ignoring
// any query string.
func IsSpreadsheet(source string) bool {
	p := source
	if u, err := url.Parse(source); err == nil && u.Scheme != "" {
		p = u.Path
	}
	return strings.EqualFold(filepath.Ext(p), ".xlsx")
}

// Options configures the fetchers built by New.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	RatePerSec float64
}

// Router dispatches a source to the fetcher for its kind.
type Router struct {
	HTTP Fetcher
	FTP  Fetcher
}

// New returns a Router with an HTTPFetcher and an FTPFetcher built from opts.
func New(opts Options) *Router {
	return &Router{
		HTTP: NewHTTPFetcher(HTTPOptions{
			UserAgent:  opts.UserAgent,
			Timeout:    opts.Timeout,
			MaxRetries: opts.MaxRetries,
			RatePerSec: opts.RatePerSec,
		}),
		FTP: NewFTPFetcher(FTPOptions{Timeout: opts.Timeout}),
	}
}

// Open returns the contents of source.
func (r *Router) Open(ctx context.Context, source string) (io.ReadCloser, error) {
	if strings.TrimSpace(source) == "" {
		return nil, eris.New("fetch: empty source")
	}
	switch KindOf(source) {
	case KindHTTP:
		return r.HTTP.Download(ctx, source)
	case KindFTP:
		return r.FTP.Download(ctx, source)
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: open %s", source)
	}
	return f, nil
}

// ReadAll opens source and reads it fully.
func (r *Router) ReadAll(ctx context.Context, source string) ([]byte, error) {
	rc, err := r.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: read %s", source)
	}
	return data, nil
}

// Materialize returns a local path holding the contents of source. Local
// paths are returned as-is; remote sources are copied into a temp file
// that cleanup removes.
func (r *Router) Materialize(ctx context.Context, source string) (path string, cleanup func(), err error) {
	if KindOf(source) == KindLocal {
		return source, func() {}, nil
	}

	rc, err := r.Open(ctx, source)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close() //nolint:errcheck

	tmp, err := os.CreateTemp("", "risk-source-*"+sourceExt(source))
	if err != nil {
		return "", nil, eris.Wrap(err, "fetch: create temp file")
	}
	cleanup = func() { _ = os.Remove(tmp.Name()) }

	if _, err := io.Copy(tmp, rc); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", nil, eris.Wrapf(err, "fetch: copy %s", source)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, eris.Wrap(err, "fetch: close temp file")
	}
	return tmp.Name(), cleanup, nil
}

func sourceExt(source string) string {
	if u, err := url.Parse(source); err == nil {
		return filepath.Ext(u.Path)
	}
	return ""
}
