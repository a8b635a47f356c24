package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/draftledger/draftledger/backend/go-services/internal/document"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig holds MinIO connection configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Enabled reports whether an endpoint was configured.
func (c *MinIOConfig) Enabled() bool { return c != nil && c.Endpoint != "" }

// objectStore is the part of *minio.Client the archive uses.
type objectStore interface {
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expires time.Duration, params url.Values) (*url.URL, error)
}

// SnapshotArchive writes every document version to object storage as a
// standalone file and signs download links for them. Objects are keyed by
// document and version number, and versions never change, so rewriting an
// object is harmless.
type SnapshotArchive struct {
	client objectStore
	bucket string
}

// NewSnapshotArchive connects to MinIO and ensures the bucket exists.
func NewSnapshotArchive(ctx context.Context, cfg *MinIOConfig) (*SnapshotArchive, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		// ignore "already exists" style errors
		exist, xerr := mc.BucketExists(ctx, cfg.Bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return &SnapshotArchive{client: mc, bucket: cfg.Bucket}, nil
}

func extension(format string) (string, string) {
	switch format {
	case document.FormatHTML:
		return "html", "text/html; charset=utf-8"
	case document.FormatPlain:
		return "txt", "text/plain; charset=utf-8"
	default:
		return "md", "text/markdown; charset=utf-8"
	}
}

// ObjectKey is "documents/<document id>/v<number>.<ext>".
func ObjectKey(v *document.Version) string {
	ext, _ := extension(v.ContentFormat)
	return fmt.Sprintf("documents/%s/v%d.%s", v.DocumentID, v.VersionNumber, ext)
}

func (s *SnapshotArchive) Put(ctx context.Context, v *document.Version) error {
	_, contentType := extension(v.ContentFormat)
	meta := map[string]string{
		"checksum-sha256": v.ChecksumSHA256,
		"created-by":      v.CreatedBy,
	}
	if v.RevertedFrom != nil {
		meta["reverted-from"] = strconv.Itoa(*v.RevertedFrom)
	}
	_, err := s.client.PutObject(ctx, s.bucket, ObjectKey(v), strings.NewReader(v.Content), int64(len(v.Content)),
		minio.PutObjectOptions{ContentType: contentType, UserMetadata: meta})
	if err != nil {
		return fmt.Errorf("archive %s: %w", ObjectKey(v), err)
	}
	return nil
}

// URL returns a presigned GET URL valid for ttl. The download is served as
// an attachment named after the version.
func (s *SnapshotArchive) URL(ctx context.Context, v *document.Version, ttl time.Duration) (string, error) {
	ext, _ := extension(v.ContentFormat)
	params := make(url.Values)
	params.Set("response-content-disposition", fmt.Sprintf(`attachment; filename="%s-v%d.%s"`, v.DocumentID, v.VersionNumber, ext))
	u, err := s.client.PresignedGetObject(ctx, s.bucket, ObjectKey(v), ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", ObjectKey(v), err)
	}
	return u.String(), nil
}
