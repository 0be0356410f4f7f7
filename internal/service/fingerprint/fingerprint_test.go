package fingerprint

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profilewatch/internal/profile"
)

func TestComputeHashDeterministic(t *testing.T) {
	a := ComputeHash([]byte("picture"))
	b := ComputeHash([]byte("picture"))
	c := ComputeHash([]byte("other picture"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, string(a), 64)
	// sha256("")
	assert.Equal(t, profile.ContentHash("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"), ComputeHash(nil))
}

func newFetcher(t *testing.T, cfg Config) *Fetcher {
	t.Helper()
	f, err := New(cfg)
	require.NoError(t, err)
	return f
}

func TestFetchAndHashSuccess(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	f := newFetcher(t, Config{UserAgent: "test-agent"})
	img, err := f.FetchAndHash(context.Background(), profile.Some(srv.URL))
	require.NoError(t, err)

	assert.Equal(t, []byte("jpeg-bytes"), img.Bytes)
	assert.Equal(t, ComputeHash([]byte("jpeg-bytes")), img.Hash)
	assert.Equal(t, "image/jpeg", img.ContentType)
	assert.Equal(t, "test-agent", gotUA)
}

func TestFetchAndHashNoURL(t *testing.T) {
	f := newFetcher(t, Config{})
	_, err := f.FetchAndHash(context.Background(), profile.None[string]())

	assert.ErrorIs(t, err, profile.ErrNoURL)
	assert.True(t, profile.IsNetwork(err))
}

func TestFetchAndHashBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := newFetcher(t, Config{})
	_, err := f.FetchAndHash(context.Background(), profile.Some(srv.URL))

	var ne *profile.NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, http.StatusNotFound, ne.StatusCode)
	assert.Equal(t, srv.URL, ne.URL)
}

func TestFetchAndHashTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	f := newFetcher(t, Config{MaxBytes: 32})
	_, err := f.FetchAndHash(context.Background(), profile.Some(srv.URL))
	assert.ErrorIs(t, err, profile.ErrTooLarge)

	f = newFetcher(t, Config{MaxBytes: 64})
	img, err := f.FetchAndHash(context.Background(), profile.Some(srv.URL))
	require.NoError(t, err)
	assert.Len(t, img.Bytes, 64)
}

func TestFetchAndHashTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f := newFetcher(t, Config{Timeout: 50 * time.Millisecond})
	_, err := f.FetchAndHash(context.Background(), profile.Some(srv.URL))
	assert.True(t, profile.IsNetwork(err))
}
