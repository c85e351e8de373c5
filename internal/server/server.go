// Package server is the HTTP surface: the webhook endpoint, the registration
// trigger, the liveness probes, and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"broadcastbot/internal/router"
	"broadcastbot/internal/webex"
	"broadcastbot/internal/webhooks"
	"broadcastbot/pkg/logx"
)

// handleTimeout bounds one offloaded webhook handling, detached from the
// already-answered HTTP request.
const handleTimeout = 2 * time.Minute

// Identity provides the bot info shown on the registration page.
type Identity interface {
	Me(ctx context.Context) (*webex.Person, error)
}

type Server struct {
	srv      *http.Server
	events   *router.Router
	webhooks *webhooks.Manager
	identity Identity
	log      logx.Logger
}

func New(port int, events *router.Router, wm *webhooks.Manager, identity Identity, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		events:   events,
		webhooks: wm,
		identity: identity,
		log:      log,
	}

	r := mux.NewRouter()
	r.HandleFunc("/webhook", s.handleWebhookPost).Methods(http.MethodPost)
	r.HandleFunc("/webhook", s.handleWebhookRegister).Methods(http.MethodGet)
	r.HandleFunc("/startup", handleHello).Methods(http.MethodGet)
	r.HandleFunc("/", handleHello).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start runs the listener in the background and reports startup failure on
// the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", logx.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// handleHello is the fixed-success probe used by supervisors and the
// registration sanity check.
func handleHello(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Hello World!"))
}

// requestURL reconstructs the externally visible URL of a request, honoring
// the proxy scheme header.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if xfp := r.Header.Get("X-Forwarded-Proto"); xfp != "" {
		scheme = xfp
	}
	return scheme + "://" + r.Host + r.URL.Path
}
