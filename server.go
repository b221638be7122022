package recoverd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodyhq/recoverd/assets"
	"github.com/custodyhq/recoverd/derive"
	"github.com/custodyhq/recoverd/keystore"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/lightningnetwork/lnd/healthcheck"
)

const (
	// maxRequestBodySize bounds the body of a recovery request.
	maxRequestBodySize = 16 << 20

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// server exposes the derivation engine and the recovery pipeline over HTTP.
type server struct {
	started int32 // To be used atomically.
	stopped int32 // To be used atomically.

	cfg *Config

	registry *assets.Registry
	store    *keystore.Store
	engine   *derive.Engine
	metrics  *metrics
	validate *validator.Validate

	// recoverMu serializes recoveries, the store is a single slot.
	recoverMu sync.Mutex

	// livenessMonitor shuts the daemon down once a health check has
	// exhausted its attempts.
	livenessMonitor *healthcheck.Monitor

	httpServers []*http.Server

	wg sync.WaitGroup
}

// newServer creates a server over the given registry and store.
func newServer(cfg *Config, registry *assets.Registry,
	store *keystore.Store) (*server, error) {

	engine, err := derive.New(derive.Config{
		Registry: registry,
		Keys:     store,
		MaxRange: cfg.Derive.MaxRange,
		Workers:  cfg.Derive.Workers,
	})
	if err != nil {
		return nil, err
	}

	s := &server{
		cfg:      cfg,
		registry: registry,
		store:    store,
		engine:   engine,
		metrics:  newMetrics(),
		validate: validator.New(),
	}
	s.livenessMonitor = s.newLivenessMonitor()

	return s, nil
}

// newLivenessMonitor creates the monitor of the data directory's free disk
// space. A failing check is logged as critical, which requests a shutdown.
func (s *server) newLivenessMonitor() *healthcheck.Monitor {
	hc := s.cfg.HealthChecks
	diskCheck := healthcheck.NewObservation(
		"disk space",
		func() error {
			free, err := healthcheck.AvailableDiskSpaceRatio(
				s.cfg.DataDir,
			)
			if err != nil {
				return err
			}

			// If we have more free space than we require,
			// we return a nil error.
			if free > hc.DiskRequired {
				return nil
			}

			return fmt.Errorf("require: %v free space, got: %v",
				hc.DiskRequired, free)
		},
		hc.DiskInterval, hc.DiskTimeout, hc.DiskBackoff,
		hc.DiskAttempts,
	)

	return healthcheck.NewMonitor(&healthcheck.Config{
		Checks:   []*healthcheck.Observation{diskCheck},
		Shutdown: srvrLog.Criticalf,
	})
}

// router builds the HTTP API routes.
func (s *server) router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/derive-keys", s.deriveKeys).Methods(http.MethodGet)
	r.HandleFunc("/recover-keys", s.recoverKeys).Methods(http.MethodPost)
	r.HandleFunc("/show-extended-keys", s.showExtendedKeys).
		Methods(http.MethodGet)
	r.HandleFunc("/assets", s.listAssets).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)

	return r
}

// logRequests logs every request. Only the path is logged since query
// strings may carry extended private keys.
func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		srvrLog.Debugf("%s %s from %s (%v)", r.Method, r.URL.Path,
			r.RemoteAddr, time.Since(start))
	})
}

// Start binds the API listener and, if enabled, the metrics listener and
// begins serving.
func (s *server) Start() error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return nil
	}

	if err := s.livenessMonitor.Start(); err != nil {
		return fmt.Errorf("unable to start liveness monitor: %w", err)
	}

	listeners := []struct {
		name    string
		addr    string
		handler http.Handler
	}{
		{"REST", s.cfg.REST.Listen, s.router()},
	}
	if s.cfg.Prometheus.Enable {
		listeners = append(listeners, struct {
			name    string
			addr    string
			handler http.Handler
		}{"Prometheus", s.cfg.Prometheus.Listen, s.metrics.handler()})
	}

	for _, l := range listeners {
		lis, err := net.Listen("tcp", l.addr)
		if err != nil {
			s.shutdownHTTP()
			s.wg.Wait()
			if stopErr := s.livenessMonitor.Stop(); stopErr != nil {
				srvrLog.Warnf("Unable to stop liveness "+
					"monitor: %v", stopErr)
			}

			return fmt.Errorf("unable to listen on %s: %w", l.addr,
				err)
		}

		httpServer := &http.Server{
			Handler:           l.handler,
			ReadHeaderTimeout: readHeaderTimeout,
		}
		s.httpServers = append(s.httpServers, httpServer)

		srvrLog.Infof("%s server listening on %s", l.name, lis.Addr())

		s.wg.Add(1)
		go func(name string) {
			defer s.wg.Done()

			err := httpServer.Serve(lis)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				srvrLog.Errorf("%s server failed: %v", name,
					err)
			}
		}(l.name)
	}

	return nil
}

// Stop gracefully shuts down all listeners.
func (s *server) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.stopped, 0, 1) {
		return nil
	}

	s.shutdownHTTP()
	s.wg.Wait()

	if err := s.livenessMonitor.Stop(); err != nil {
		srvrLog.Warnf("Unable to stop liveness monitor: %v", err)
	}

	return nil
}

func (s *server) shutdownHTTP() {
	ctx, cancel := context.WithTimeout(
		context.Background(), shutdownTimeout,
	)
	defer cancel()

	for _, httpServer := range s.httpServers {
		if err := httpServer.Shutdown(ctx); err != nil {
			srvrLog.Warnf("Unable to shut down http server: %v",
				err)
		}
	}
}
