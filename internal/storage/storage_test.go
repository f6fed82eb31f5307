package storage_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/labelscan/internal/config"
	"github.com/kiranshivaraju/labelscan/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopStore(t *testing.T) {
	url, err := storage.NopStore{}.Put(context.Background(), "k", "image/png", []byte("x"))
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestObjectKey(t *testing.T) {
	id := uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057")

	assert.Equal(t, "scans/alice/01890a5d-ac96-774b-bcce-b302099a8057.jpg", storage.ObjectKey("alice", id, "image/jpeg"))
	assert.Equal(t, "scans/alice/01890a5d-ac96-774b-bcce-b302099a8057.webp", storage.ObjectKey("alice", id, "image/webp"))
	assert.Equal(t, "scans/alice/01890a5d-ac96-774b-bcce-b302099a8057.bin", storage.ObjectKey("alice", id, "application/octet-stream"))
}

type capturedPut struct {
	method      string
	path        string
	contentType string
	body        []byte
}

func newS3Server(t *testing.T, status int) (*httptest.Server, *capturedPut, *sync.Mutex) {
	t.Helper()
	var mu sync.Mutex
	got := &capturedPut{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got.method = r.Method
		got.path = r.URL.Path
		got.contentType = r.Header.Get("Content-Type")
		got.body = body
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, got, &mu
}

func testStorageConfig(endpoint string) config.StorageConfig {
	return config.StorageConfig{
		Bucket:        "labels",
		Endpoint:      endpoint,
		Region:        "auto",
		AccessKey:     "test-access",
		SecretKey:     "test-secret",
		PublicBaseURL: "https://cdn.example.com/",
	}
}

func TestS3Store_Put(t *testing.T) {
	srv, got, mu := newS3Server(t, http.StatusOK)

	st, err := storage.NewS3Store(context.Background(), testStorageConfig(srv.URL))
	require.NoError(t, err)

	url, err := st.Put(context.Background(), "scans/alice/1.png", "image/png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/scans/alice/1.png", url)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "/labels/scans/alice/1.png", got.path)
	assert.Equal(t, "image/png", got.contentType)
	assert.Equal(t, []byte("png-bytes"), got.body)
}

func TestS3Store_PutError(t *testing.T) {
	srv, _, _ := newS3Server(t, http.StatusForbidden)

	st, err := storage.NewS3Store(context.Background(), testStorageConfig(srv.URL))
	require.NoError(t, err)

	_, err = st.Put(context.Background(), "scans/alice/1.png", "image/png", []byte("png-bytes"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scans/alice/1.png")
}
