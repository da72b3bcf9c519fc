package sentinel2

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// A Loader reads tile metadata from local or gs:// SAFE products. The zero
// value, and a nil Loader, only read local products.
type Loader struct {
	GCS *storage.Client
}

// Load finds and reads the tile metadata of the SAFE product at loc.
func (l *Loader) Load(ctx context.Context, loc string) (*Metadata, error) {
	if !strings.HasPrefix(loc, "gs://") {
		return Load(loc)
	}
	if l == nil || l.GCS == nil {
		return nil, fmt.Errorf("%s: no cloud storage client", loc)
	}
	bucket, prefix, err := splitGCS(loc)
	if err != nil {
		return nil, err
	}
	name := prefix
	if path.Base(prefix) != MetadataFile {
		if name, err = findObject(ctx, l.GCS.Bucket(bucket), prefix); err != nil {
			return nil, fmt.Errorf("%s: %w", loc, err)
		}
	}
	r, err := l.GCS.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", bucket, name, err)
	}
	defer r.Close()
	md, err := ReadMetadata(r)
	if err != nil {
		return nil, fmt.Errorf("gs://%s/%s: %w", bucket, name, err)
	}
	return md, nil
}

func splitGCS(url string) (bucket, prefix string, err error) {
	bucket, prefix, _ = strings.Cut(strings.TrimPrefix(url, "gs://"), "/")
	prefix = strings.TrimSuffix(prefix, "/")
	if bucket == "" || prefix == "" {
		return "", "", fmt.Errorf("invalid product location %q, expecting gs://bucket/product.SAFE", url)
	}
	return bucket, prefix, nil
}

// findObject returns the first metadata object below prefix.
func findObject(ctx context.Context, bkt *storage.BucketHandle, prefix string) (string, error) {
	q := &storage.Query{Prefix: prefix + "/"}
	if err := q.SetAttrSelection([]string{"Name"}); err != nil {
		return "", err
	}
	it := bkt.Objects(ctx, q)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return "", fmt.Errorf("no %s found", MetadataFile)
		}
		if err != nil {
			return "", fmt.Errorf("list objects: %w", err)
		}
		if path.Base(attrs.Name) == MetadataFile {
			return attrs.Name, nil
		}
	}
}
