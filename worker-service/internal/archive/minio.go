package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type MinIOArchiver struct {
	client objectPutter
	bucket string
	prefix string
	now    func() time.Time
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

func NewMinIOArchiver(ctx context.Context, cfg Config) (*MinIOArchiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return newArchiver(client, cfg.Bucket, cfg.Prefix), nil
}

func newArchiver(client objectPutter, bucket, prefix string) *MinIOArchiver {
	return &MinIOArchiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}
}

// ObjectKey builds <prefix>/<source>/YYYY/MM/DD/<id>.ndjson.sz.
func ObjectKey(prefix, source string, at time.Time, id uuid.UUID) string {
	at = at.UTC()
	return path.Join(
		prefix,
		source,
		fmt.Sprintf("%d/%02d/%02d", at.Year(), at.Month(), at.Day()),
		id.String()+".ndjson.sz",
	)
}

// Archive uploads the lines as one snappy-compressed NDJSON object and
// returns its key.
func (m *MinIOArchiver) Archive(ctx context.Context, source string, lines [][]byte) (string, error) {
	if len(lines) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	for _, l := range lines {
		buf.Write(l)
		buf.WriteByte('\n')
	}
	compressed := snappy.Encode(nil, buf.Bytes())

	objectPath := ObjectKey(m.prefix, source, m.now(), uuid.New())

	_, err := m.client.PutObject(ctx, m.bucket, objectPath, bytes.NewReader(compressed), int64(len(compressed)), minio.PutObjectOptions{
		ContentType: "application/x-snappy",
		UserMetadata: map[string]string{
			"lines":  fmt.Sprintf("%d", len(lines)),
			"source": source,
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload to minio: %w", err)
	}

	return objectPath, nil
}
