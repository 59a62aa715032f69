// Package archive uploads run summaries to S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"rulehistory/internal/report"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// objectStore is the subset of *minio.Client the archive uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Archive struct {
	client objectStore
	bucket string

	ensureOnce sync.Once
	ensureErr  error
}

func New(cfg Config) (*Archive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return newArchive(client, cfg.Bucket), nil
}

func newArchive(client objectStore, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket}
}

// ObjectKey is where a run summary is stored inside the bucket.
func ObjectKey(s report.Summary) string {
	return path.Join("runs", s.StartedAt.UTC().Format("2006/01/02"), s.RunID+".json")
}

// Upload stores the summary as indented JSON and returns its object key.
func (a *Archive) Upload(ctx context.Context, s report.Summary) (string, error) {
	if err := a.ensureBucket(ctx); err != nil {
		return "", err
	}
	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	key := ObjectKey(s)
	if _, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"run-mode": s.Mode,
		},
	}); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

func (a *Archive) ensureBucket(ctx context.Context) error {
	a.ensureOnce.Do(func() {
		exists, err := a.client.BucketExists(ctx, a.bucket)
		if err != nil {
			a.ensureErr = fmt.Errorf("check bucket %s: %w", a.bucket, err)
			return
		}
		if exists {
			return
		}
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			a.ensureErr = fmt.Errorf("create bucket %s: %w", a.bucket, err)
		}
	})
	return a.ensureErr
}
