package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/gigboard/flagcore/pkg/eval"
	"github.com/gigboard/flagcore/pkg/model"
	"github.com/gigboard/flagcore/pkg/store"
)

type HTTPServiceConfiguration struct {
	Port int32
}

// HTTPService serves the engine's public API over HTTP.
type HTTPService struct {
	HTTPServiceConfiguration *HTTPServiceConfiguration
	Eval                     eval.IEvaluator
	Refresher                Refresher
	Store                    *store.Store
}

func (h *HTTPService) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/flags/{flagID}/resolve", h.resolve)
	r.Get("/flags", h.allFlags)
	r.Post("/refresh", h.refresh)
	r.Get("/flags/stream", h.stream)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

// Serve blocks until ctx is cancelled, then shuts the listener down
// gracefully.
func (h *HTTPService) Serve(ctx context.Context) error {
	if h.HTTPServiceConfiguration == nil {
		return errors.New("http service configuration has not been initialised")
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", h.HTTPServiceConfiguration.Port),
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// resolve answers a single flag decision. The engine contract carries
// through HTTP: an unknown flag is a 200 with decision=false, never an
// error the caller has to handle.
func (h *HTTPService) resolve(w http.ResponseWriter, r *http.Request) {
	flagID := chi.URLParam(r, "flagID")

	var evalCtx model.EvaluationContext
	if r.Body != nil {
		// an empty or malformed body degrades to an empty context
		if err := json.NewDecoder(r.Body).Decode(&evalCtx); err != nil {
			log.Debugf("resolve %s: unable to decode context, using empty: %v", flagID, err)
			evalCtx = model.EvaluationContext{}
		}
	}

	result, found := h.Eval.Resolve(flagID, evalCtx)
	if !found {
		log.Warnf("unknown flag %q requested", flagID)
	}
	writeJSON(w, result)
}

func (h *HTTPService) allFlags(w http.ResponseWriter, _ *http.Request) {
	snapshot := h.Store.Current()
	writeJSON(w, map[string]interface{}{
		"version": snapshot.Version,
		"flags":   snapshot.Flags(),
	})
}

func (h *HTTPService) refresh(w http.ResponseWriter, r *http.Request) {
	result := h.Refresher.Refresh(r.Context())

	body := map[string]interface{}{
		"success": result.Success,
		"version": result.Version,
	}
	if result.Err != nil {
		body["error"] = result.Err.Error()
	}
	if len(result.Dropped) > 0 {
		dropped := make([]string, 0, len(result.Dropped))
		for _, d := range result.Dropped {
			dropped = append(dropped, d.Error())
		}
		body["dropped"] = dropped
	}

	w.Header().Set("Content-Type", "application/json")
	if !result.Success {
		w.WriteHeader(http.StatusBadGateway)
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("unable to write response: %v", err)
	}
}

// stream pushes snapshot changes as server-sent events, one event per
// swap, starting with the current state.
func (h *HTTPService) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := h.Store.Subscribe(r)
	defer h.Store.Unsubscribe(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	current := h.Store.Current()
	flags, err := json.Marshal(current.Definitions)
	if err != nil {
		log.Errorf("unable to marshal snapshot v%d: %v", current.Version, err)
		return
	}
	writeEvent(w, store.Payload{Version: current.Version, Flags: string(flags)})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case payload := <-sub:
			writeEvent(w, payload)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, p store.Payload) {
	fmt.Fprintf(w, "id: %d\ndata: %s\n\n", p.Version, p.Flags)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("unable to write response: %v", err)
	}
}
