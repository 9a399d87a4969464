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

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	ecochain "github.com/A-10-g/EcoChain-DAO"
	"github.com/A-10-g/EcoChain-DAO/internal/config"
)

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(
		"config",
		"component", "node",
		"database_path", cfg.DatabasePath,
		"blob_plugin", cfg.BlobPlugin,
		"metadata_plugin", cfg.MetadataPlugin,
		"bind_addr", cfg.BindAddr,
		"api_port", cfg.ApiPort,
		"metrics_port", cfg.MetricsPort,
		"jwt_auth", cfg.JwtSecret != "",
	)
	policy, err := cfg.Policy.LedgerPolicy()
	if err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	shutdownTimeout, err := config.ParseDurationOr(
		cfg.ShutdownTimeout,
		ecochain.DefaultShutdownTimeout,
	)
	if err != nil {
		return fmt.Errorf("invalid shutdown timeout: %w", err)
	}
	housekeepingInterval, err := config.ParseDurationOr(
		cfg.HousekeepingInterval,
		ecochain.DefaultHousekeepingInterval,
	)
	if err != nil {
		return fmt.Errorf("invalid housekeeping interval: %w", err)
	}

	n, err := ecochain.New(
		ecochain.NewConfig(
			ecochain.WithLogger(logger),
			ecochain.WithDatabasePath(cfg.DatabasePath),
			ecochain.WithBlobPlugin(cfg.BlobPlugin),
			ecochain.WithMetadataPlugin(cfg.MetadataPlugin),
			ecochain.WithMetadataDsn(cfg.MetadataDsn),
			ecochain.WithPolicy(policy),
			ecochain.WithApiHost(cfg.BindAddr),
			ecochain.WithApiPort(cfg.ApiPort),
			ecochain.WithTlsCertFilePath(cfg.TlsCertFilePath),
			ecochain.WithTlsKeyFilePath(cfg.TlsKeyFilePath),
			ecochain.WithJwtSecret(cfg.JwtSecret),
			ecochain.WithAdminIdentities(cfg.AdminIdentities...),
			ecochain.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
			ecochain.WithTracing(cfg.TracingExporter != ""),
			ecochain.WithTracingExporter(cfg.TracingExporter),
			ecochain.WithTracingEndpoint(cfg.TracingEndpoint),
			ecochain.WithHousekeepingInterval(housekeepingInterval),
			ecochain.WithShutdownTimeout(shutdownTimeout),
			// Enable metrics with default prometheus registry
			ecochain.WithPrometheusRegistry(prometheus.DefaultRegisterer),
		),
	)
	if err != nil {
		return err
	}

	// Metrics and debug listener
	var metricsServer *http.Server
	if cfg.MetricsPort > 0 {
		http.Handle("/metrics", promhttp.Handler())
		metricsAddr := net.JoinHostPort(
			cfg.BindAddr,
			strconv.FormatUint(uint64(cfg.MetricsPort), 10),
		)
		logger.Info(
			"serving prometheus metrics on "+metricsAddr,
			"component", "node",
		)
		metricsServer = &http.Server{
			Addr:              metricsAddr,
			ReadHeaderTimeout: 60 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
	}

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	g, ctx := errgroup.WithContext(signalCtx)
	if metricsServer != nil {
		g.Go(func() error {
			err := metricsServer.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics listener: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		if err := n.Run(ctx); err != nil {
			return fmt.Errorf("node: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		if signalCtx.Err() != nil {
			logger.Info(
				"signal received, initiating graceful shutdown",
				"component", "node",
			)
		}
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		var err error
		if metricsServer != nil {
			if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
				err = fmt.Errorf("metrics server shutdown: %w", shutdownErr)
			}
		}
		if stopErr := n.Stop(); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error(
			"node stopped with errors",
			"component", "node",
			"error", err,
		)
		return err
	}
	logger.Info("shutdown complete", "component", "node")
	return nil
}
