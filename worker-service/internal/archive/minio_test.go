package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	bucket string
	key    string
	body   []byte
	opts   minio.PutObjectOptions
	err    error
}

func (f *fakeStore) PutObject(_ context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if int64(len(b)) != size {
		return minio.UploadInfo{}, errors.New("size mismatch")
	}
	f.bucket, f.key, f.body, f.opts = bucket, object, b, opts
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func TestObjectKey(t *testing.T) {
	id := uuid.MustParse("6f1c1f3e-7d7a-4c5e-9a8f-0f5b2d1f9e11")
	at := time.Date(2024, 3, 9, 23, 30, 0, 0, time.FixedZone("X", -2*3600))

	assert.Equal(t, "raw/feed/2024/03/10/6f1c1f3e-7d7a-4c5e-9a8f-0f5b2d1f9e11.ndjson.sz", ObjectKey("raw", "feed", at, id))
	assert.Equal(t, "collector/2024/03/10/6f1c1f3e-7d7a-4c5e-9a8f-0f5b2d1f9e11.ndjson.sz", ObjectKey("", "collector", at, id))
}

func TestArchive(t *testing.T) {
	store := &fakeStore{}
	a := newArchiver(store, "tracker-archive", "raw")
	a.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	lines := [][]byte{[]byte(`{"uuid":"a"}`), []byte(`{"uuid":"b"}`)}
	key, err := a.Archive(context.Background(), "feed", lines)
	require.NoError(t, err)

	assert.Equal(t, "tracker-archive", store.bucket)
	assert.Equal(t, key, store.key)
	assert.True(t, strings.HasPrefix(key, "raw/feed/2024/03/01/"))
	assert.Equal(t, "2", store.opts.UserMetadata["lines"])

	plain, err := snappy.Decode(nil, store.body)
	require.NoError(t, err)
	assert.Equal(t, "{\"uuid\":\"a\"}\n{\"uuid\":\"b\"}\n", string(plain))
}

func TestArchive_EmptyAndError(t *testing.T) {
	store := &fakeStore{}
	a := newArchiver(store, "b", "p")

	key, err := a.Archive(context.Background(), "feed", nil)
	require.NoError(t, err)
	assert.Empty(t, key)
	assert.Nil(t, store.body)

	store.err = errors.New("boom")
	_, err = a.Archive(context.Background(), "feed", [][]byte{[]byte("x")})
	assert.ErrorContains(t, err, "upload to minio")
	assert.False(t, bytes.Equal(store.body, []byte("x")))
}
