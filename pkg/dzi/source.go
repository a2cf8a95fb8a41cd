package dzi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jpfielding/dzi.go/pkg/util"
)

// Source yields the encoded bytes of individual DZI tiles. Implementations
// are not safe for concurrent use; the engine calls CopyTile sequentially.
type Source interface {
	// Manifest returns the parsed descriptor. Read-only.
	Manifest() *Manifest
	// Name is the source base name (manifest filename without extension).
	Name() string
	// ID is a stable identity derived from the source content.
	ID() string
	// CopyTile writes the raw encoded bytes of one tile to w. Idempotent on
	// retry.
	CopyTile(ctx context.Context, level, col, row int, w io.Writer) error
	Close() error
}

// Options configures source construction.
type Options struct {
	// Retries is the number of fetch attempts per tile (default 3).
	Retries int
	// RetryInterval is the fixed delay between attempts (default 1s).
	RetryInterval time.Duration
	// Client overrides the HTTP client.
	Client *http.Client
}

func (o Options) withDefaults() Options {
	if o.Retries <= 0 {
		o.Retries = 3
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = time.Second
	}
	if o.Client == nil {
		o.Client = http.DefaultClient
	}
	return o
}

// Open resolves a manifest URI into a Source. http(s) URIs and file URIs (or
// plain paths) naming a .dzi/.xml descriptor become tile-tree sources; a
// local path naming any supported raster becomes a degenerate single-level
// source.
func Open(ctx context.Context, uri string, opts Options) (Source, error) {
	opts = opts.withDefaults()
	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return openHTTP(ctx, uri, opts)
	default:
		p := strings.TrimPrefix(uri, "file://")
		switch strings.ToLower(filepath.Ext(p)) {
		case ".dzi", ".xml":
			return openLocal(p)
		default:
			return openRaster(p)
		}
	}
}

// httpSource serves tiles from {baseURI}/{baseName}_files/{level}/{col}_{row}.{format}.
type httpSource struct {
	man      *Manifest
	baseURI  string
	baseName string
	id       string
	opts     Options
	retries  atomic.Int64
}

func openHTTP(ctx context.Context, uri string, opts Options) (*httpSource, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}
	s := &httpSource{opts: opts}
	var buf bytes.Buffer
	if err := s.fetch(ctx, uri, &buf); err != nil {
		return nil, err
	}
	if s.man, err = ParseManifest(buf.Bytes()); err != nil {
		return nil, err
	}
	s.id = util.UUIDFromBytes(buf.Bytes())
	dir, file := path.Split(u.Path)
	s.baseName = strings.TrimSuffix(file, path.Ext(file))
	u.Path = strings.TrimSuffix(dir, "/")
	s.baseURI = u.String()
	return s, nil
}

func (s *httpSource) Manifest() *Manifest { return s.man }
func (s *httpSource) Name() string        { return s.baseName }
func (s *httpSource) ID() string          { return s.id }
func (s *httpSource) Close() error        { return nil }

// Retries reports how many extra attempts were made beyond first tries.
func (s *httpSource) Retries() int64 { return s.retries.Load() }

func (s *httpSource) CopyTile(ctx context.Context, level, col, row int, w io.Writer) error {
	uri := fmt.Sprintf("%s/%s_files/%d/%d_%d.%s", s.baseURI, s.baseName, level, col, row, s.man.Format)
	err := s.fetch(ctx, uri, w)
	var fe *FetchError
	if errors.As(err, &fe) {
		fe.Level, fe.Col, fe.Row = level, col, row
	}
	return err
}

// fetch GETs uri into w, retrying on any non-2xx or transport error with a
// fixed interval between attempts. Cancellation is checked at the head of
// every attempt.
func (s *httpSource) fetch(ctx context.Context, uri string, w io.Writer) error {
	var attempts []error
	for i := 0; i < s.opts.Retries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			s.retries.Add(1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.opts.RetryInterval):
			}
		}
		err := s.get(ctx, uri, w)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		attempts = append(attempts, err)
	}
	return &FetchError{Attempts: attempts}
}

func (s *httpSource) get(ctx context.Context, uri string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	resp, err := s.opts.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrTileNotFound, uri)
		}
		return fmt.Errorf("GET %s: %s", uri, resp.Status)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// localSource serves tiles from a {baseName}_files directory next to the
// manifest.
type localSource struct {
	man      *Manifest
	dir      string
	baseName string
	id       string
}

func openLocal(manifestPath string) (*localSource, error) {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}
	man, err := ParseManifest(raw)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(manifestPath)
	return &localSource{
		man:      man,
		dir:      filepath.Dir(manifestPath),
		baseName: strings.TrimSuffix(base, filepath.Ext(base)),
		id:       util.UUIDFromBytes(raw),
	}, nil
}

func (s *localSource) Manifest() *Manifest { return s.man }
func (s *localSource) Name() string        { return s.baseName }
func (s *localSource) ID() string          { return s.id }
func (s *localSource) Close() error        { return nil }

func (s *localSource) CopyTile(ctx context.Context, level, col, row int, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := filepath.Join(s.dir, fmt.Sprintf("%s_files", s.baseName),
		fmt.Sprintf("%d", level), fmt.Sprintf("%d_%d.%s", col, row, s.man.Format))
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrTileNotFound, p)
		}
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
