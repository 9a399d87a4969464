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

package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type stateMetrics struct {
	operations      *prometheus.CounterVec
	operationTiming *prometheus.HistogramVec
}

func (m *stateMetrics) init(promRegistry prometheus.Registerer, ls *LedgerState) {
	promautoFactory := promauto.With(promRegistry)
	m.operations = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecochain_ledger_operations_total",
			Help: "ledger mutations by operation and result",
		},
		[]string{"operation", "result"},
	)
	m.operationTiming = promautoFactory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecochain_ledger_operation_duration_seconds",
			Help:    "time to admit, persist and install a ledger mutation",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"operation"},
	)
	promautoFactory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "ecochain_ledger_total_supply",
			Help: "tokens currently in circulation",
		},
		func() float64 {
			return float64(ls.TotalSupply())
		},
	)
	promautoFactory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "ecochain_ledger_users",
			Help: "registered users",
		},
		func() float64 {
			ls.RLock()
			defer ls.RUnlock()
			return float64(len(ls.users))
		},
	)
	promautoFactory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "ecochain_ledger_active_proposals",
			Help: "proposals accepting votes",
		},
		func() float64 {
			return float64(len(ls.ListActiveProposals()))
		},
	)
	promautoFactory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "ecochain_ledger_pending_submissions",
			Help: "data submissions awaiting validation",
		},
		func() float64 {
			ls.RLock()
			defer ls.RUnlock()
			return float64(ls.pendingCount())
		},
	)
}

func (m *stateMetrics) observe(operation string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = ErrorName(err)
		if result == "" {
			result = "error"
		}
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.operationTiming.WithLabelValues(operation).Observe(elapsed.Seconds())
}
