package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/histsync/pkg/retry"
)

type fakeS3 struct {
	mu      sync.Mutex
	fails   int
	err     error
	objects map[string][]byte
	calls   int
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestCompressRoundTrip(t *testing.T) {
	in := []byte(`{"run_id":"r1","values_copied":12345}`)
	out, err := Decompress(Compress(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = Decompress([]byte("not snappy at all"))
	assert.Error(t, err)
}

func TestLocalBackend(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	b := NewLocalBackend(dir)

	loc, err := b.Put(context.Background(), "run-1.json"+Ext, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run-1.json.snappy"), loc)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)

	_, err = os.Stat(loc + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestS3Backend(t *testing.T) {
	ctx := context.Background()

	t.Run("bucket is required", func(t *testing.T) {
		_, err := NewS3Backend(ctx, S3Config{})
		assert.ErrorIs(t, err, ErrNoBucket)
	})

	t.Run("uploads under the prefix", func(t *testing.T) {
		fake := &fakeS3{}
		b, err := NewS3Backend(ctx, S3Config{Bucket: "bkt", Prefix: "histsync/"}, WithClient(fake))
		require.NoError(t, err)

		loc, err := b.Put(ctx, "r1.json.snappy", []byte("payload"))
		require.NoError(t, err)
		assert.Equal(t, "s3://bkt/histsync/r1.json.snappy", loc)
		assert.Equal(t, []byte("payload"), fake.objects["bkt/histsync/r1.json.snappy"])
	})

	t.Run("retries transient failures", func(t *testing.T) {
		fake := &fakeS3{fails: 2, err: errors.New("503 SlowDown")}
		r := retry.New(retry.WithMaxAttempts(3), retry.WithRetryIf(retry.IsTransient), retry.WithSleeper(noSleep))
		b, err := NewS3Backend(ctx, S3Config{Bucket: "bkt"}, WithClient(fake), WithRetryer(r))
		require.NoError(t, err)

		_, err = b.Put(ctx, "r1", []byte("p"))
		require.NoError(t, err)
		assert.Equal(t, 3, fake.calls)
	})

	t.Run("gives up on permanent failures", func(t *testing.T) {
		fake := &fakeS3{fails: 10, err: errors.New("AccessDenied")}
		r := retry.New(retry.WithMaxAttempts(3), retry.WithRetryIf(retry.IsTransient), retry.WithSleeper(noSleep))
		b, err := NewS3Backend(ctx, S3Config{Bucket: "bkt"}, WithClient(fake), WithRetryer(r))
		require.NoError(t, err)

		_, err = b.Put(ctx, "r1", []byte("p"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AccessDenied")
		assert.Equal(t, 1, fake.calls)
	})
}

func TestArchiver(t *testing.T) {
	ctx := context.Background()

	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNoBackends)

	dir := t.TempDir()
	fake := &fakeS3{}
	s3b, err := NewS3Backend(ctx, S3Config{Bucket: "bkt"}, WithClient(fake))
	require.NoError(t, err)
	a, err := New([]Backend{NewLocalBackend(dir), s3b})
	require.NoError(t, err)

	_, err = a.Archive(ctx, "  ", []byte("x"))
	assert.ErrorIs(t, err, ErrEmptyName)

	report := []byte(`{"points_copied":3}`)
	entries, err := a.Archive(ctx, "run-42.json", report)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "local", entries[0].Backend)
	assert.Equal(t, "s3://bkt/run-42.json.snappy", entries[1].Location)

	packed, err := os.ReadFile(entries[0].Location)
	require.NoError(t, err)
	plain, err := Decompress(packed)
	require.NoError(t, err)
	assert.Equal(t, report, plain)

	t.Run("one failing backend does not stop the others", func(t *testing.T) {
		bad := &fakeS3{fails: 100, err: errors.New("AccessDenied")}
		r := retry.New(retry.WithMaxAttempts(1))
		s3bad, err := NewS3Backend(ctx, S3Config{Bucket: "bkt"}, WithClient(bad), WithRetryer(r))
		require.NoError(t, err)
		a, err := New([]Backend{s3bad, NewLocalBackend(dir)})
		require.NoError(t, err)

		entries, err := a.Archive(ctx, "run-43.json", report)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "s3:")
		require.Len(t, entries, 1)
		assert.Equal(t, "local", entries[0].Backend)
	})
}
