package blob

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/foresight/internal/domain"
)

// exerciseStore checks the contract every backend must honour
func exerciseStore(t *testing.T, store domain.BlobStore) {
	t.Helper()
	ctx := context.Background()

	_, found, err := store.Get(ctx, "NAS_NVDA")
	require.NoError(t, err)
	assert.False(t, found)

	exists, err := store.Exists(ctx, "NAS_NVDA")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Set(ctx, "NAS_NVDA", []byte("v1")))
	require.NoError(t, store.Set(ctx, "NAS_NVDA", []byte("v2")))

	data, found, err := store.Get(ctx, "NAS_NVDA")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v2"), data)

	exists, err = store.Exists(ctx, "NAS_NVDA")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	exerciseStore(t, store)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreCopiesData(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", buf))
	buf[0] = 'x'

	data, _, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	exerciseStore(t, NewRedisStore(client, ""))
	assert.True(t, mr.Exists("NAS_NVDA"))
	assert.Equal(t, 0.0, mr.TTL("NAS_NVDA").Seconds(), "artifacts never expire")
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	_, _, err := NewRedisStore(client, "").Get(context.Background(), "NAS_NVDA")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
}

// fakeS3 serves path-style object requests for a single bucket
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/models-bucket/")
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		data, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			}
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(data)
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeS3Store(t *testing.T) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string][]byte)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewS3Store(context.Background(), S3Config{
		Bucket:          "models-bucket",
		Endpoint:        srv.URL,
		Region:          "auto",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		Prefix:          "models/",
		MaxAttempts:     1,
	})
	require.NoError(t, err)
	return store, fake
}

func TestS3Store(t *testing.T) {
	store, fake := newFakeS3Store(t)
	exerciseStore(t, store)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []byte("v2"), fake.objects["models/NAS_NVDA"])
}

func TestS3StoreUnavailable(t *testing.T) {
	store, fake := newFakeS3Store(t)
	fake.fail = true

	_, _, err := store.Get(context.Background(), "NAS_NVDA")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{})
	assert.Error(t, err)
}

func TestDirectory(t *testing.T) {
	d := NewDirectory(t.TempDir())

	keys, err := d.List()
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, d.Write("NPS_NABIL", []byte("b")))
	require.NoError(t, d.Write("NAS_NVDA", []byte("a")))
	assert.Error(t, d.Write("../escape", []byte("x")))

	keys, err = d.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"NAS_NVDA", "NPS_NABIL"}, keys)

	data, err := d.Read("NAS_NVDA")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)

	require.NoError(t, d.Remove("NAS_NVDA"))
	require.NoError(t, d.Remove("NAS_NVDA"))
	keys, err = d.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"NPS_NABIL"}, keys)
}
