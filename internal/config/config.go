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

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/A-10-g/EcoChain-DAO/ledger"
)

type ctxKey string

const configContextKey ctxKey = "ecochain.config"

const (
	DefaultBlobPlugin           = "badger"
	DefaultMetadataPlugin       = "sqlite"
	DefaultShutdownTimeout      = "30s"
	DefaultHousekeepingInterval = "1m"

	TracingExporterStdout = "stdout"
	TracingExporterOtlp   = "otlp"
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	DatabasePath         string       `yaml:"databasePath"         split_words:"true"`
	BlobPlugin           string       `yaml:"blobPlugin"           envconfig:"database_blob_plugin"`
	MetadataPlugin       string       `yaml:"metadataPlugin"       envconfig:"database_metadata_plugin"`
	MetadataDsn          string       `yaml:"metadataDsn"          envconfig:"database_metadata_dsn"`
	BindAddr             string       `yaml:"bindAddr"             split_words:"true"`
	TlsCertFilePath      string       `yaml:"tlsCertFilePath"      envconfig:"tls_cert_file_path"`
	TlsKeyFilePath       string       `yaml:"tlsKeyFilePath"       envconfig:"tls_key_file_path"`
	ShutdownTimeout      string       `yaml:"shutdownTimeout"      split_words:"true"`
	HousekeepingInterval string       `yaml:"housekeepingInterval" split_words:"true"`
	JwtSecret            string       `yaml:"jwtSecret"            split_words:"true"`
	TracingExporter      string       `yaml:"tracingExporter"      split_words:"true"`
	TracingEndpoint      string       `yaml:"tracingEndpoint"      split_words:"true"`
	AdminIdentities      []string     `yaml:"adminIdentities"      split_words:"true"`
	Policy               PolicyConfig `yaml:"policy"`
	RateLimit            float64      `yaml:"rateLimit"            split_words:"true"`
	RateBurst            int          `yaml:"rateBurst"            split_words:"true"`
	ApiPort              uint         `yaml:"apiPort"              split_words:"true"`
	MetricsPort          uint         `yaml:"metricsPort"          split_words:"true"`
}

// PolicyConfig carries the ledger reward and limit settings. Durations are
// strings accepted by time.ParseDuration
type PolicyConfig struct {
	VotingPeriod       string `yaml:"votingPeriod"       split_words:"true"`
	LockTimeout        string `yaml:"lockTimeout"        split_words:"true"`
	RegistrationGrant  uint64 `yaml:"registrationGrant"  split_words:"true"`
	SubmissionReward   uint64 `yaml:"submissionReward"   split_words:"true"`
	ValidationReward   uint64 `yaml:"validationReward"   split_words:"true"`
	RejectionReward    uint64 `yaml:"rejectionReward"    split_words:"true"`
	VotingReward       uint64 `yaml:"votingReward"       split_words:"true"`
	ProposalReward     uint64 `yaml:"proposalReward"     split_words:"true"`
	MinProposalBalance uint64 `yaml:"minProposalBalance" split_words:"true"`
	MaxSupply          uint64 `yaml:"maxSupply"          split_words:"true"`
}

// LedgerPolicy converts the settings into a ledger policy
func (p PolicyConfig) LedgerPolicy() (ledger.Policy, error) {
	ret := ledger.Policy{
		RegistrationGrant:  p.RegistrationGrant,
		SubmissionReward:   p.SubmissionReward,
		ValidationReward:   p.ValidationReward,
		RejectionReward:    p.RejectionReward,
		VotingReward:       p.VotingReward,
		ProposalReward:     p.ProposalReward,
		MinProposalBalance: p.MinProposalBalance,
		MaxSupply:          p.MaxSupply,
	}
	var err error
	if p.VotingPeriod != "" {
		ret.VotingPeriod, err = time.ParseDuration(p.VotingPeriod)
		if err != nil {
			return ledger.Policy{}, fmt.Errorf("invalid voting period: %w", err)
		}
		if ret.VotingPeriod < 0 {
			return ledger.Policy{}, errors.New("invalid voting period: negative")
		}
	}
	if p.LockTimeout != "" {
		ret.LockTimeout, err = time.ParseDuration(p.LockTimeout)
		if err != nil {
			return ledger.Policy{}, fmt.Errorf("invalid lock timeout: %w", err)
		}
	}
	if ret.LockTimeout <= 0 {
		return ledger.Policy{}, errors.New("invalid lock timeout: must be positive")
	}
	return ret, nil
}

// DefaultConfig returns a config populated with defaults
func DefaultConfig() *Config {
	defaultPolicy := ledger.DefaultPolicy()
	return &Config{
		DatabasePath:         ".ecochain",
		BlobPlugin:           DefaultBlobPlugin,
		MetadataPlugin:       DefaultMetadataPlugin,
		BindAddr:             "0.0.0.0",
		ShutdownTimeout:      DefaultShutdownTimeout,
		HousekeepingInterval: DefaultHousekeepingInterval,
		RateLimit:            20,
		RateBurst:            40,
		ApiPort:              8080,
		MetricsPort:          12799,
		Policy: PolicyConfig{
			LockTimeout:        defaultPolicy.LockTimeout.String(),
			RegistrationGrant:  defaultPolicy.RegistrationGrant,
			SubmissionReward:   defaultPolicy.SubmissionReward,
			ValidationReward:   defaultPolicy.ValidationReward,
			RejectionReward:    defaultPolicy.RejectionReward,
			VotingReward:       defaultPolicy.VotingReward,
			ProposalReward:     defaultPolicy.ProposalReward,
			MinProposalBalance: defaultPolicy.MinProposalBalance,
			MaxSupply:          defaultPolicy.MaxSupply,
		},
	}
}

// LoadConfig applies the YAML config file, if any, and then the environment
// on top of the defaults. Without an explicit path, ~/.ecochain/ecochain.yaml
// and /etc/ecochain/ecochain.yaml are tried in that order
func LoadConfig(configFile string) (*Config, error) {
	cfg := DefaultConfig()
	if configFile == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".ecochain", "ecochain.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}
		if configFile == "" {
			systemPath := "/etc/ecochain/ecochain.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process("ecochain", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be caught by parsing alone
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Policy.LedgerPolicy(); err != nil {
		errs = append(errs, err)
	}
	for name, val := range map[string]string{
		"shutdown timeout":      c.ShutdownTimeout,
		"housekeeping interval": c.HousekeepingInterval,
	} {
		if val == "" {
			continue
		}
		if _, err := time.ParseDuration(val); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
		}
	}
	switch c.TracingExporter {
	case "", TracingExporterStdout, TracingExporterOtlp:
	default:
		errs = append(
			errs,
			fmt.Errorf(
				"invalid tracing exporter %q (must be %q or %q)",
				c.TracingExporter,
				TracingExporterStdout,
				TracingExporterOtlp,
			),
		)
	}
	if (c.TlsCertFilePath == "") != (c.TlsKeyFilePath == "") {
		errs = append(errs, errors.New("TLS needs both a certificate and a key"))
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		errs = append(errs, errors.New("rate limit settings must not be negative"))
	}
	return errors.Join(errs...)
}

// ParseDurationOr parses val, falling back to def when val is empty
func ParseDurationOr(val string, def time.Duration) (time.Duration, error) {
	if val == "" {
		return def, nil
	}
	return time.ParseDuration(val)
}
