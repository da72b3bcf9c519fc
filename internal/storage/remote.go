package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	gcs "cloud.google.com/go/storage"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// GCS uploads to a Google Cloud Storage bucket.
type GCS struct {
	Client *gcs.Client
	Bucket string
}

func (g *GCS) Upload(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := g.Client.Bucket(g.Bucket).Object(key).NewWriter(ctx)
	w.ContentType = ContentType(key)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", g.Bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gs://%s/%s: %w", g.Bucket, key, err)
	}
	return nil
}

// S3Config holds the connection settings of an S3 compatible endpoint.
type S3Config struct {
	Endpoint  string // e.g. "localhost:9000"
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// S3 uploads to an S3 compatible bucket through minio.
type S3 struct {
	Client *minio.Client
	Bucket string
}

// NewS3 connects to cfg.Endpoint and creates bucket if it does not exist.
func NewS3(ctx context.Context, cfg S3Config, bucket string) (*S3, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client for %s: %w", cfg.Endpoint, err)
	}
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return &S3{Client: client, Bucket: bucket}, nil
}

func (s *S3) Upload(ctx context.Context, key, path string) error {
	_, err := s.Client.FPutObject(ctx, s.Bucket, key, path, minio.PutObjectOptions{
		ContentType: ContentType(key),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.Bucket, key, err)
	}
	return nil
}

// Clients carries the remote clients a publisher may need. GCS is created
// lazily by the caller; S3 settings are only used for s3:// locations.
type Clients struct {
	GCS *gcs.Client
	S3  S3Config
}

// Open returns a publisher for loc.
func Open(ctx context.Context, loc Location, cl Clients) (*Publisher, error) {
	p := &Publisher{Location: loc}
	switch loc.Scheme {
	case SchemeLocal:
		p.Uploader = Local{}
	case SchemeGCS:
		if cl.GCS == nil {
			return nil, fmt.Errorf("no storage client for %s", loc)
		}
		p.Uploader = &GCS{Client: cl.GCS, Bucket: loc.Bucket}
	case SchemeS3:
		s3, err := NewS3(ctx, cl.S3, loc.Bucket)
		if err != nil {
			return nil, err
		}
		p.Uploader = s3
	default:
		return nil, fmt.Errorf("unsupported location scheme %q", loc.Scheme)
	}
	return p, nil
}
