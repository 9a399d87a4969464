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
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/A-10-g/EcoChain-DAO/api"
	"github.com/A-10-g/EcoChain-DAO/event"
	"github.com/A-10-g/EcoChain-DAO/ledger"
)

type Node struct {
	eventBus           *event.EventBus
	ledgerState        *ledger.LedgerState
	api                *api.Api
	housekeepingCancel context.CancelFunc
	shutdownFuncs      []func(context.Context) error
	config             Config
	done               chan struct{}
	housekeepingWg     sync.WaitGroup
	mu                 sync.Mutex
	shutdownOnce       sync.Once
}

func New(cfg Config) (*Node, error) {
	n := &Node{
		config: cfg,
		done:   make(chan struct{}),
	}
	if err := n.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	n.eventBus = event.NewEventBus(cfg.promRegistry, cfg.logger)
	return n, nil
}

// Run starts the node and blocks until ctx is done or Stop is called. The
// caller is expected to call Stop afterward, including when Run fails
func (n *Node) Run(ctx context.Context) error {
	if err := n.start(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-n.done:
	}
	return nil
}

func (n *Node) start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	select {
	case <-n.done:
		return errors.New("node already stopped")
	default:
	}
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Load state
	state, err := ledger.NewLedgerState(
		ledger.LedgerStateConfig{
			Logger:         n.config.logger,
			EventBus:       n.eventBus,
			PromRegistry:   n.config.promRegistry,
			Clock:          n.config.clock,
			DataDir:        n.config.dataDir,
			BlobPlugin:     n.config.blobPlugin,
			MetadataPlugin: n.config.metadataPlugin,
			MetadataDsn:    n.config.metadataDsn,
			Policy:         n.config.policy,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to load ledger state: %w", err)
	}
	n.ledgerState = state
	// Configure API
	n.api = api.NewApi(
		api.ApiConfig{
			Logger:          n.config.logger,
			EventBus:        n.eventBus,
			LedgerState:     n.ledgerState,
			PromRegistry:    n.config.promRegistry,
			Host:            n.config.apiHost,
			Port:            n.config.apiPort,
			TlsCertFilePath: n.config.tlsCertFilePath,
			TlsKeyFilePath:  n.config.tlsKeyFilePath,
			JwtSecret:       n.config.jwtSecret,
			AdminIdentities: n.config.adminIdentities,
			RateLimit:       n.config.rateLimit,
			RateBurst:       n.config.rateBurst,
		},
	)
	if err := n.api.Start(); err != nil {
		return err
	}
	// Close expired proposals in the background
	if n.config.policy.VotingPeriod > 0 {
		n.startHousekeeping()
	}
	n.config.logger.Info(
		"node started",
		"component", "node",
		"total_supply", n.ledgerState.TotalSupply(),
	)
	return nil
}

func (n *Node) startHousekeeping() {
	ctx, cancel := context.WithCancel(context.Background())
	n.housekeepingCancel = cancel
	n.housekeepingWg.Add(1)
	go func() {
		defer n.housekeepingWg.Done()
		ticker := time.NewTicker(n.config.housekeepingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n.closeExpiredProposals(ctx)
			}
		}
	}()
}

func (n *Node) closeExpiredProposals(ctx context.Context) {
	closed, err := n.ledgerState.CloseExpiredProposals(ctx)
	if err != nil {
		if ctx.Err() == nil {
			n.config.logger.Warn(
				"failed to close expired proposals",
				"component", "node",
				"error", err,
			)
		}
		return
	}
	for _, prop := range closed {
		n.config.logger.Info(
			"closed expired proposal",
			"component", "node",
			"proposal", prop.ID,
			"yes_votes", prop.YesVotes,
			"no_votes", prop.NoVotes,
		)
	}
}

// LedgerState returns the ledger once Run has started it
func (n *Node) LedgerState() *ledger.LedgerState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledgerState
}

// ApiAddr returns the bound API address once Run has started it
func (n *Node) ApiAddr() net.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.api == nil {
		return nil
	}
	return n.api.Addr()
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	shutdownTimeout := DefaultShutdownTimeout
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown", "component", "node")

	// Phase 1: Stop accepting new work
	n.config.logger.Debug(
		"shutdown phase 1: stopping new work",
		"component", "node",
	)

	if n.api != nil {
		if stopErr := n.api.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}

	if n.housekeepingCancel != nil {
		n.housekeepingCancel()
		n.housekeepingWg.Wait()
	}

	// Phase 2: Close ledger and database
	n.config.logger.Debug(
		"shutdown phase 2: closing ledger",
		"component", "node",
	)

	if n.ledgerState != nil {
		if closeErr := n.ledgerState.Close(); closeErr != nil {
			err = errors.Join(
				err,
				fmt.Errorf("ledger state close: %w", closeErr),
			)
		}
	}

	// Phase 3: Cleanup resources
	n.config.logger.Debug(
		"shutdown phase 3: cleanup resources",
		"component", "node",
	)

	// Call registered shutdown functions
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	if n.eventBus != nil {
		n.eventBus.Stop()
	}

	n.config.logger.Debug("graceful shutdown complete", "component", "node")
	close(n.done)
	return err
}
