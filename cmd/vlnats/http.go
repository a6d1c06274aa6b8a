package main

import (
	"context"
	"net/http"
	"time"

	"github.com/troian/healthcheck"
	"go.uber.org/zap"

	"github.com/VolantMQ/vlnats/metrics"
)

type httpServer struct {
	mux    *http.ServeMux
	server *http.Server
	done   chan struct{}
}

func newHTTPServer(addr string, health healthcheck.Handler, stats metrics.Provider) *httpServer {
	srv := &httpServer{
		mux:  http.NewServeMux(),
		done: make(chan struct{}),
	}

	srv.mux.HandleFunc("/live", health.LiveEndpoint)
	srv.mux.HandleFunc("/ready", health.ReadyEndpoint)
	srv.mux.Handle("/metrics", stats.Handler())

	srv.server = &http.Server{
		Addr:              addr,
		Handler:           srv.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return srv
}

func (h *httpServer) start() {
	go func() {
		defer close(h.done)

		logger.Info("starting http server on " + h.server.Addr)

		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", zap.Error(err))
		}

		logger.Info("stopped http server on " + h.server.Addr)
	}()
}

// shutdown is safe on nil server
func (h *httpServer) shutdown() {
	if h == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = h.server.Shutdown(ctx)

	<-h.done
}
