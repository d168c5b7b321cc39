package sync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// HTTPSync fetches flag definitions over HTTP. It remembers the ETag of
// the last payload the refresh manager accepted and sends If-None-Match
// so an unchanged authority can answer 304 instead of shipping the full
// payload again. A freshly fetched ETag is only staged: it becomes the
// comparison value via Accept, and is discarded via Reject when the
// manager drops the payload, so a rejected payload keeps being fetched
// in full until the authority serves something acceptable.
type HTTPSync struct {
	URI    string
	Client *http.Client

	mu     sync.Mutex
	etag   string // ETag of the last accepted payload
	staged string
}

func (h *HTTPSync) Source() string {
	return h.URI
}

func (h *HTTPSync) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URI, nil)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.etag != "" {
		req.Header.Set("If-None-Match", h.etag)
	}
	h.mu.Unlock()

	resp, err := h.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		return nil, ErrNotModified
	case http.StatusOK:
	default:
		return nil, fmt.Errorf("authority returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.staged = resp.Header.Get("ETag")
	h.mu.Unlock()

	return body, nil
}

// Accept commits the staged ETag: the last fetched payload was swapped
// in, so a matching 304 may now stand for it.
func (h *HTTPSync) Accept() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.etag = h.staged
	h.staged = ""
}

// Reject discards the staged ETag: the last fetched payload was
// dropped, so the next fetch must not be answered with 304 on its
// behalf.
func (h *HTTPSync) Reject() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.staged = ""
}

// Notify is a no-op: a plain HTTP authority has no push channel, change
// detection rides on the periodic refresh schedule.
func (h *HTTPSync) Notify(_ context.Context, _ chan<- struct{}) {}

func (h *HTTPSync) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return &http.Client{Timeout: 15 * time.Second}
}
