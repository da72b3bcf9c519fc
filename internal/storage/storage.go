// Package storage publishes output files to a local directory, a Google Cloud
// Storage prefix or an S3 compatible bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/DHI-GRAS/tidepods/internal/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Location schemes.
const (
	SchemeLocal = ""
	SchemeGCS   = "gs"
	SchemeS3    = "s3"
)

// DefaultConcurrency is the number of files uploaded in parallel.
const DefaultConcurrency = 4

// A Location is an output destination: a local directory, or a bucket and
// object prefix.
type Location struct {
	Scheme string
	// Bucket is empty for local locations.
	Bucket string
	// Prefix is the local directory, or the object key prefix.
	Prefix string
}

// ParseLocation parses "gs://bucket/prefix", "s3://bucket/prefix" or a local
// directory path.
func ParseLocation(s string) (Location, error) {
	if s == "" {
		return Location{}, fmt.Errorf("empty output location")
	}
	if !strings.Contains(s, "://") {
		return Location{Scheme: SchemeLocal, Prefix: s}, nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return Location{}, fmt.Errorf("parse output location %q: %w", s, err)
	}
	switch u.Scheme {
	case SchemeGCS, SchemeS3:
	default:
		return Location{}, fmt.Errorf("unsupported output location %q, expecting a directory, gs:// or s3://", s)
	}
	if u.Host == "" {
		return Location{}, fmt.Errorf("output location %q has no bucket", s)
	}
	return Location{Scheme: u.Scheme, Bucket: u.Host, Prefix: strings.Trim(u.Path, "/")}, nil
}

// Remote reports whether l is a bucket location.
func (l Location) Remote() bool {
	return l.Scheme != SchemeLocal
}

// Key returns the object key, or local path, of a file named name.
func (l Location) Key(name string) string {
	if !l.Remote() {
		return filepath.Join(l.Prefix, name)
	}
	if l.Prefix == "" {
		return name
	}
	return path.Join(l.Prefix, name)
}

// URL returns the full address of a file named name.
func (l Location) URL(name string) string {
	if !l.Remote() {
		return l.Key(name)
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Key(name)
}

func (l Location) String() string {
	if !l.Remote() {
		return l.Prefix
	}
	return strings.TrimSuffix(l.Scheme+"://"+l.Bucket+"/"+l.Prefix, "/")
}

// An Uploader stores the local file at path under key.
type Uploader interface {
	Upload(ctx context.Context, key, path string) error
}

// PublishError reports a file that could not be published.
type PublishError struct {
	File string
	URL  string
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s to %s: %v", e.File, e.URL, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// A Publisher copies files to a Location.
type Publisher struct {
	Location    Location
	Uploader    Uploader
	Concurrency int
}

// Publish uploads files concurrently, each under its base name, and returns
// their destination URLs in the order of files. The first failure cancels the
// remaining uploads.
func (p *Publisher) Publish(ctx context.Context, files []string) ([]string, error) {
	n := p.Concurrency
	if n <= 0 {
		n = DefaultConcurrency
	}
	urls := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n)
	for i, f := range files {
		name := filepath.Base(f)
		g.Go(func() error {
			if err := p.Uploader.Upload(gctx, p.Location.Key(name), f); err != nil {
				return &PublishError{File: f, URL: p.Location.URL(name), Err: err}
			}
			urls[i] = p.Location.URL(name)
			log.Logger(gctx).Debug("published", zap.String("url", urls[i]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

// Local copies files into a directory, creating it if needed.
type Local struct{}

func (Local) Upload(ctx context.Context, key, path string) error {
	if err := os.MkdirAll(filepath.Dir(key), 0o755); err != nil {
		return err
	}
	if samePath(key, path) {
		return nil
	}
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(key)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copy to %s: %w", key, err)
	}
	return dst.Close()
}

func samePath(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}

// ContentType guesses the media type of an output file from its extension.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".geojson", ".json":
		return "application/geo+json"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".csv":
		return "text/csv"
	case ".prom":
		return "text/plain; version=0.0.4"
	}
	return "application/octet-stream"
}
