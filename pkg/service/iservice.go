package service

import (
	"context"

	"github.com/gigboard/flagcore/pkg/refresh"
)

// Refresher is the slice of the refresh manager the service needs for
// the manual trigger endpoint.
type Refresher interface {
	Refresh(ctx context.Context) refresh.Result
}

// IService exposes the engine to out-of-process callers.
type IService interface {
	Serve(ctx context.Context) error
}
