// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/A-10-g/EcoChain-DAO/event"
	"github.com/A-10-g/EcoChain-DAO/ledger"
)

const DefaultHost = "0.0.0.0"

type Api struct {
	config   ApiConfig
	metrics  apiMetrics
	limiter  *rateLimiter
	server   *http.Server
	listener net.Listener
	closing  chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
}

type ApiConfig struct {
	Logger       *slog.Logger
	EventBus     *event.EventBus
	LedgerState  *ledger.LedgerState
	PromRegistry prometheus.Registerer
	Host         string
	// Port 0 binds an ephemeral port, see Addr
	Port            uint
	TlsCertFilePath string
	TlsKeyFilePath  string
	// JwtSecret enables bearer token authentication. When empty, the caller
	// identity is taken from the identity header
	JwtSecret       string
	AdminIdentities []string
	// RateLimit is the allowed requests per second per caller. Zero disables
	// rate limiting
	RateLimit float64
	RateBurst int
}

func NewApi(cfg ApiConfig) *Api {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "api")
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.EventBus == nil && cfg.LedgerState != nil {
		cfg.EventBus = cfg.LedgerState.EventBus()
	}
	a := &Api{
		config:  cfg,
		limiter: newRateLimiter(cfg.RateLimit, cfg.RateBurst),
		closing: make(chan struct{}),
	}
	a.metrics.init(cfg.PromRegistry)
	return a
}

// Handler returns the HTTP handler serving the ledger service and the
// health check
func (a *Api) Handler() http.Handler {
	mux := http.NewServeMux()
	opts := []connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithCompressMinBytes(1024),
		connect.WithInterceptors(&callerInterceptor{api: a}),
	}
	s := &ledgerServiceServer{api: a}
	s.register(mux, opts...)
	mux.Handle(
		grpchealth.NewHandler(
			grpchealth.NewStaticChecker(LedgerServiceName),
			connect.WithCompressMinBytes(1024),
		),
	)
	return mux
}

func (a *Api) isAdmin(identity string) bool {
	return identity != "" && slices.Contains(a.config.AdminIdentities, identity)
}

// Start binds the listener and serves in the background
func (a *Api) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return errors.New("api already started")
	}
	addr := net.JoinHostPort(a.config.Host, fmt.Sprintf("%d", a.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	a.listener = listener
	useTls := a.config.TlsCertFilePath != "" && a.config.TlsKeyFilePath != ""
	a.server = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 60 * time.Second,
	}
	if !useTls {
		// Use h2c so we can serve HTTP/2 without TLS
		a.server.Handler = h2c.NewHandler(a.server.Handler, &http2.Server{})
	}
	server := a.server
	go func() {
		var err error
		if useTls {
			a.config.Logger.Info(
				"starting API TLS listener on " + listener.Addr().String(),
			)
			err = server.ServeTLS(
				listener,
				a.config.TlsCertFilePath,
				a.config.TlsKeyFilePath,
			)
		} else {
			a.config.Logger.Info(
				"starting API listener on " + listener.Addr().String(),
			)
			err = server.Serve(listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.config.Logger.Error(
				"API server failed",
				"error", err,
			)
		}
	}()
	return nil
}

// Addr returns the bound listener address, or nil before Start
func (a *Api) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Stop ends open event streams and gracefully shuts the server down
func (a *Api) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() {
		close(a.closing)
	})
	a.mu.Lock()
	server := a.server
	a.server = nil
	a.listener = nil
	a.mu.Unlock()
	if server == nil {
		return nil
	}
	a.config.Logger.Debug("shutting down API server")
	if err := server.Shutdown(ctx); err != nil {
		_ = server.Close()
		return fmt.Errorf("API server shutdown: %w", err)
	}
	return nil
}
