// Package runtime wires the engine together. There is no ambient
// global: every Runtime is an explicitly constructed store/evaluator/
// refresher triple, so multiple independent instances can coexist and
// tests can build isolated ones.
package runtime

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/gigboard/flagcore/pkg/eval"
	"github.com/gigboard/flagcore/pkg/model"
	"github.com/gigboard/flagcore/pkg/refresh"
	"github.com/gigboard/flagcore/pkg/service"
	"github.com/gigboard/flagcore/pkg/store"
	"github.com/gigboard/flagcore/pkg/sync"
)

// Runtime is the assembled engine and its public API.
type Runtime struct {
	Store     *store.Store
	Evaluator eval.IEvaluator
	Manager   *refresh.Manager
	Service   service.IService
}

// Options for assembling a Runtime.
type Options struct {
	Syncer    sync.ISync
	Refresh   refresh.Config
	Service   *service.HTTPServiceConfiguration
	EventSink eval.EventSink
}

// New assembles a runtime from a syncer and configuration.
func New(opts Options) *Runtime {
	s := store.New()

	var evalOpts []eval.Option
	if opts.EventSink != nil {
		evalOpts = append(evalOpts, eval.WithEventSink(opts.EventSink))
	}
	evaluator := eval.NewEvaluator(s, evalOpts...)
	manager := refresh.NewManager(s, opts.Syncer, opts.Refresh)

	var svc service.IService
	if opts.Service != nil {
		svc = &service.HTTPService{
			HTTPServiceConfiguration: opts.Service,
			Eval:                     evaluator,
			Refresher:                manager,
			Store:                    s,
		}
	}

	return &Runtime{
		Store:     s,
		Evaluator: evaluator,
		Manager:   manager,
		Service:   svc,
	}
}

// IsEnabled is the engine's primary decision call. It never errors and
// never blocks on I/O.
func (r *Runtime) IsEnabled(flagID string, ctx model.EvaluationContext) bool {
	return r.Evaluator.IsEnabled(flagID, ctx)
}

// AllFlags returns a read-only view of the current definitions.
func (r *Runtime) AllFlags() map[string]model.FlagDefinition {
	return r.Evaluator.AllFlags()
}

// RefreshFlags triggers one refresh cycle and reports its outcome.
func (r *Runtime) RefreshFlags(ctx context.Context) refresh.Result {
	return r.Manager.Refresh(ctx)
}

// Start loads the initial snapshot, starts the refresh schedule and, if
// configured, serves the HTTP API until ctx is cancelled. A failed
// initial load is not fatal: the engine starts on its empty snapshot
// and keeps retrying.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.Manager.InitialLoad(ctx); err != nil {
		log.Warnf("starting without flag definitions: %v", err)
	}
	r.Manager.Start(ctx)

	if r.Service == nil {
		<-ctx.Done()
		return nil
	}
	return r.Service.Serve(ctx)
}
