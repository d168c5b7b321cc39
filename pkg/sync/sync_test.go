package sync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `{"flags":[{"id": "a", "type": "boolean", "enabled": true, "defaultValue": false}]}`

func TestFilePathSync_Fetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.json")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	fp := &FilePathSync{URI: path}
	raw, err := fp.Fetch(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, fixture, string(raw))
}

func TestFilePathSync_FetchMissingPath(t *testing.T) {
	fp := &FilePathSync{}
	_, err := fp.Fetch(context.Background())
	assert.Error(t, err)
}

func TestFilePathSync_NotifyOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.json")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fp := &FilePathSync{URI: path}
	changed := make(chan struct{}, 1)
	go fp.Notify(ctx, changed)

	// give the watcher a moment to attach
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("expected a change signal after the file was written")
	}
}

func TestHTTPSync_FetchAndETag(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(fixture))
	}))
	defer server.Close()

	h := &HTTPSync{URI: server.URL}

	raw, err := h.Fetch(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, fixture, string(raw))
	h.Accept()

	// second fetch carries the accepted ETag and maps 304 onto ErrNotModified
	_, err = h.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrNotModified)
	assert.Equal(t, 2, requests)
}

func TestHTTPSync_UnacceptedETagNotSent(t *testing.T) {
	// the ETag of a payload never accepted must not turn into an
	// If-None-Match, or a rejected payload would 304 forever
	var conditional []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conditional = append(conditional, r.Header.Get("If-None-Match"))
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(fixture))
	}))
	defer server.Close()

	h := &HTTPSync{URI: server.URL}

	_, err := h.Fetch(context.Background())
	require.NoError(t, err)
	h.Reject()

	_, err = h.Fetch(context.Background())
	require.NoError(t, err)

	require.Len(t, conditional, 2)
	assert.Equal(t, "", conditional[0])
	assert.Equal(t, "", conditional[1])
}

func TestHTTPSync_AcceptSupersedesOldETag(t *testing.T) {
	// accepting a newer payload replaces the comparison ETag
	var served string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == served {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", served)
		_, _ = w.Write([]byte(fixture))
	}))
	defer server.Close()

	h := &HTTPSync{URI: server.URL}

	served = `"v1"`
	_, err := h.Fetch(context.Background())
	require.NoError(t, err)
	h.Accept()

	served = `"v2"`
	_, err = h.Fetch(context.Background())
	require.NoError(t, err)
	h.Accept()

	_, err = h.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrNotModified)
}

func TestHTTPSync_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	h := &HTTPSync{URI: server.URL}
	_, err := h.Fetch(context.Background())
	assert.Error(t, err)
}

func TestHTTPSync_HonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	h := &HTTPSync{URI: server.URL}
	_, err := h.Fetch(ctx)
	assert.Error(t, err)
}
