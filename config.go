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

package ecochain

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/A-10-g/EcoChain-DAO/ledger"
)

const (
	TracingExporterStdout = "stdout"
	TracingExporterOtlp   = "otlp"

	DefaultShutdownTimeout      = 30 * time.Second
	DefaultHousekeepingInterval = time.Minute
)

type Config struct {
	promRegistry         prometheus.Registerer
	logger               *slog.Logger
	clock                func() time.Time
	dataDir              string
	blobPlugin           string
	metadataPlugin       string
	metadataDsn          string
	apiHost              string
	tlsCertFilePath      string
	tlsKeyFilePath       string
	jwtSecret            string
	tracingExporter      string
	tracingEndpoint      string
	adminIdentities      []string
	policy               ledger.Policy
	rateLimit            float64
	rateBurst            int
	apiPort              uint
	housekeepingInterval time.Duration
	shutdownTimeout      time.Duration
	tracing              bool
}

// ConfigOptionFunc is a type that represents functions that modify the node config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new config object with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:               slog.New(slog.NewJSONHandler(io.Discard, nil)),
		policy:               ledger.DefaultPolicy(),
		housekeepingInterval: DefaultHousekeepingInterval,
		shutdownTimeout:      DefaultShutdownTimeout,
		tracingExporter:      TracingExporterOtlp,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (n *Node) configValidate() error {
	if n.config.apiPort > 65535 {
		return fmt.Errorf("invalid API port: %d", n.config.apiPort)
	}
	if (n.config.tlsCertFilePath == "") != (n.config.tlsKeyFilePath == "") {
		return errors.New(
			"TLS requires both a certificate and a key file",
		)
	}
	if n.config.rateLimit < 0 {
		return fmt.Errorf("invalid rate limit: %v", n.config.rateLimit)
	}
	if n.config.housekeepingInterval <= 0 {
		return fmt.Errorf(
			"invalid housekeeping interval: %s",
			n.config.housekeepingInterval,
		)
	}
	if n.config.policy.VotingPeriod < 0 {
		return fmt.Errorf(
			"invalid voting period: %s",
			n.config.policy.VotingPeriod,
		)
	}
	if n.config.tracing {
		switch n.config.tracingExporter {
		case TracingExporterStdout, TracingExporterOtlp:
		default:
			return fmt.Errorf(
				"unknown tracing exporter: %s",
				n.config.tracingExporter,
			)
		}
	}
	return nil
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithClock overrides the time source used by the ledger
func WithClock(clock func() time.Time) ConfigOptionFunc {
	return func(c *Config) {
		c.clock = clock
	}
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithBlobPlugin specifies the blob storage plugin to use.
func WithBlobPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.blobPlugin = plugin
	}
}

// WithMetadataPlugin specifies the metadata storage plugin to use.
func WithMetadataPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataPlugin = plugin
	}
}

// WithMetadataDsn specifies the connection string for networked metadata plugins
func WithMetadataDsn(dsn string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataDsn = dsn
	}
}

// WithPolicy specifies the rewards and limits applied by the ledger
func WithPolicy(policy ledger.Policy) ConfigOptionFunc {
	return func(c *Config) {
		c.policy = policy
	}
}

// WithApiHost specifies the address to bind the API listener to
func WithApiHost(host string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiHost = host
	}
}

// WithApiPort specifies the port for the API listener. Port 0 picks a free port
func WithApiPort(port uint) ConfigOptionFunc {
	return func(c *Config) {
		c.apiPort = port
	}
}

func WithTlsCertFilePath(path string) ConfigOptionFunc {
	return func(c *Config) {
		c.tlsCertFilePath = path
	}
}

func WithTlsKeyFilePath(path string) ConfigOptionFunc {
	return func(c *Config) {
		c.tlsKeyFilePath = path
	}
}

// WithJwtSecret enables HS256 bearer token authentication on the API
func WithJwtSecret(secret string) ConfigOptionFunc {
	return func(c *Config) {
		c.jwtSecret = secret
	}
}

// WithAdminIdentities specifies the identities allowed to close proposals through the API
func WithAdminIdentities(identities ...string) ConfigOptionFunc {
	return func(c *Config) {
		c.adminIdentities = identities
	}
}

// WithRateLimit specifies the per-caller API request rate and burst. A zero limit disables rate limiting
func WithRateLimit(limit float64, burst int) ConfigOptionFunc {
	return func(c *Config) {
		c.rateLimit = limit
		c.rateBurst = burst
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingExporter selects the span exporter, either "otlp" or "stdout"
func WithTracingExporter(exporter string) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingExporter = exporter
	}
}

// WithTracingEndpoint overrides the OTLP endpoint
func WithTracingEndpoint(endpoint string) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingEndpoint = endpoint
	}
}

// WithHousekeepingInterval specifies how often expired proposals are closed
func WithHousekeepingInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.housekeepingInterval = interval
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
