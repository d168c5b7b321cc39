// Package sync fetches raw flag definition payloads from the external
// authority. Implementations only move bytes: validation and snapshot
// construction belong to the refresh manager.
package sync

import (
	"context"
	"errors"
)

// ErrNotModified is returned by a fetch when the authority reports the
// definitions are unchanged since the last accepted payload. The
// refresh manager keeps the current snapshot and treats the attempt as
// successful.
var ErrNotModified = errors.New("flag definitions not modified")

// ISync is a source of raw definition payloads.
type ISync interface {
	// Fetch returns the authority's current payload. It must honor ctx
	// cancellation.
	Fetch(ctx context.Context) ([]byte, error)

	// Notify emits a best-effort signal on changed whenever the
	// authority's content may have changed, until ctx is done. Sources
	// without a push channel may return immediately.
	Notify(ctx context.Context, changed chan<- struct{})

	// Source names the authority, for logs and errors.
	Source() string
}

// Acknowledger is implemented by syncers that stage source-side state,
// such as ETags, until the refresh manager has decided on the fetched
// payload. Accept commits the staged state after a successful swap;
// Reject discards it so a rejected payload is fetched again on the
// next attempt instead of being shadowed by a not-modified answer.
type Acknowledger interface {
	Accept()
	Reject()
}
