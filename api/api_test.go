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

package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/A-10-g/EcoChain-DAO/api"
	"github.com/A-10-g/EcoChain-DAO/event"
	"github.com/A-10-g/EcoChain-DAO/ledger"
)

type testEnv struct {
	ledger   *ledger.LedgerState
	server   *httptest.Server
	registry *prometheus.Registry
}

func newTestEnv(t *testing.T, cfg api.ApiConfig) *testEnv {
	t.Helper()
	registry := prometheus.NewRegistry()
	eventBus := event.NewEventBus(registry, nil)
	t.Cleanup(eventBus.Stop)
	ls, err := ledger.NewLedgerState(ledger.LedgerStateConfig{
		EventBus: eventBus,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ls.Close()
	})
	cfg.LedgerState = ls
	cfg.EventBus = eventBus
	cfg.PromRegistry = registry
	a := api.NewApi(cfg)
	server := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		_ = a.Stop(context.Background())
		server.Close()
	})
	return &testEnv{
		ledger:   ls,
		server:   server,
		registry: registry,
	}
}

func (e *testEnv) client(opts ...api.ClientOptionFunc) *api.Client {
	return api.NewClient(e.server.Client(), e.server.URL, opts...)
}

func (e *testEnv) as(identity string) *api.Client {
	return e.client(api.WithIdentity(identity))
}

func gaugeValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetGauge().GetValue()
		}
	}
	return total
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, api.ApiConfig{})
	alice := env.as("alice")
	bob := env.as("bob")

	user, err := alice.Register(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Identity)
	assert.Equal(t, uint64(1000), user.Balance)
	_, err = bob.Register(ctx, "")
	require.NoError(t, err)

	_, err = alice.Register(ctx, "")
	require.ErrorIs(t, err, ledger.ErrAlreadyRegistered)
	assert.Equal(t, connect.CodeAlreadyExists, connect.CodeOf(err))

	sub, err := alice.SubmitData(ctx, ledger.Payload{Data: "pm2.5=12", Type: "air_quality"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sub.ID)

	_, err = alice.ValidateData(ctx, sub.ID)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	pending, err := bob.GetUnvalidatedData(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	validated, err := bob.ValidateData(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, validated.Validated)
	assert.Equal(t, "bob", validated.Validator)

	_, err = bob.ValidateData(ctx, sub.ID)
	require.ErrorIs(t, err, ledger.ErrAlreadyValidated)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	aliceBalance, err := bob.GetUserBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1050), aliceBalance)
	bobBalance, err := bob.GetUserBalance(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(1025), bobBalance)

	supply, err := alice.GetTotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2075), supply)

	from, err := alice.TransferTokens(ctx, "bob", 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), from.Balance)
	_, err = alice.TransferTokens(ctx, "carol", 1)
	require.ErrorIs(t, err, ledger.ErrUserNotFound)
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	prop, err := alice.CreateProposal(ctx, "Plant trees")
	require.NoError(t, err)
	prop, err = bob.VoteOnProposal(ctx, prop.ID, ledger.VoteYes)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), prop.YesVotes)
	_, err = bob.VoteOnProposal(ctx, prop.ID, ledger.VoteNo)
	require.ErrorIs(t, err, ledger.ErrAlreadyVoted)
	_, err = alice.VoteOnProposal(ctx, prop.ID, ledger.VoteChoice("maybe"))
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	active, err := alice.GetActiveProposals(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, []string{"bob"}, active[0].Voters)

	stats, err := alice.GetSystemStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats[ledger.StatTotalUsers])
	assert.Equal(t, uint64(1), stats[ledger.StatValidatedData])
	assert.Equal(t, uint64(1), stats[ledger.StatTotalVotes])

	users, err := alice.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	registered, err := alice.IsUserRegistered(ctx, "carol")
	require.NoError(t, err)
	assert.False(t, registered)
}

func TestRegisterWithoutIdentity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, api.ApiConfig{})
	anon := env.client()

	first, err := anon.Register(ctx, "first")
	require.NoError(t, err)
	second, err := anon.Register(ctx, "second")
	require.NoError(t, err)
	assert.NotEmpty(t, first.Identity)
	assert.NotEqual(t, first.Identity, second.Identity)

	_, err = anon.SubmitData(ctx, ledger.Payload{Data: "x"})
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	// Lookups by explicit identity do not need a caller
	user, err := anon.GetUserInfo(ctx, first.Identity)
	require.NoError(t, err)
	assert.Equal(t, "first", user.Name)
}

func signToken(t *testing.T, secret string, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(
		jwt.SigningMethodHS256,
		jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJwtAuthentication(t *testing.T) {
	ctx := context.Background()
	const secret = "test-secret"
	env := newTestEnv(t, api.ApiConfig{JwtSecret: secret})

	alice := env.client(api.WithBearerToken(signToken(t, secret, "alice")))
	user, err := alice.Register(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Identity)

	// Without a token nobody gets a generated account
	anonymous := env.client()
	for range 3 {
		_, err = anonymous.Register(ctx, "")
		require.Error(t, err)
		assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	}
	assert.Equal(t, uint64(1000), env.ledger.TotalSupply())
	assert.Len(t, env.ledger.ListUsers(), 1)

	forged := env.client(api.WithBearerToken(signToken(t, "other-secret", "alice")))
	_, err = forged.GetUserInfo(ctx, "")
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	// The identity header is ignored once tokens are required
	spoofed := env.as("alice")
	_, err = spoofed.SubmitData(ctx, ledger.Payload{Data: "x"})
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	info, err := alice.GetUserInfo(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), info.DataSubmissions)
}

func TestCloseProposalRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, api.ApiConfig{AdminIdentities: []string{"operator"}})
	alice := env.as("alice")
	_, err := alice.Register(ctx, "")
	require.NoError(t, err)
	prop, err := alice.CreateProposal(ctx, "Clean the river")
	require.NoError(t, err)

	_, err = alice.CloseProposal(ctx, prop.ID)
	require.Error(t, err)
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))
	assert.False(t, errors.Is(err, ledger.ErrUnauthorized))

	closed, err := env.as("operator").CloseProposal(ctx, prop.ID)
	require.NoError(t, err)
	assert.False(t, closed.Active)

	_, err = alice.CloseProposal(ctx, 99)
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))
	_, err = env.as("operator").CloseProposal(ctx, 99)
	require.ErrorIs(t, err, ledger.ErrProposalNotFound)
}

func TestRateLimit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, api.ApiConfig{RateLimit: 0.001, RateBurst: 2})
	alice := env.as("alice")
	for range 2 {
		_, err := alice.GetTotalSupply(ctx)
		require.NoError(t, err)
	}
	_, err := alice.GetTotalSupply(ctx)
	require.Error(t, err)
	assert.Equal(t, connect.CodeResourceExhausted, connect.CodeOf(err))

	// Other callers have their own bucket
	_, err = env.as("bob").GetTotalSupply(ctx)
	require.NoError(t, err)
}

func TestWatchEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	env := newTestEnv(t, api.ApiConfig{})

	stream, err := env.client().WatchEvents(ctx, string(ledger.UserRegisteredEventType))
	require.NoError(t, err)
	defer stream.Close()

	var received []api.EventMessage
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for len(received) < 2 && stream.Receive() {
			received = append(received, *stream.Msg())
		}
	}()

	require.Eventually(t, func() bool {
		return gaugeValue(t, env.registry, "event_bus_subscribers") == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, err = env.as("alice").Register(ctx, "")
	require.NoError(t, err)
	_, err = env.as("alice").SubmitData(ctx, ledger.Payload{Data: "ignored"})
	require.NoError(t, err)
	_, err = env.as("bob").Register(ctx, "")
	require.NoError(t, err)

	wg.Wait()
	require.Len(t, received, 2)
	for i, identity := range []string{"alice", "bob"} {
		assert.Equal(t, string(ledger.UserRegisteredEventType), received[i].Type)
		var evt ledger.UserRegisteredEvent
		require.NoError(t, json.Unmarshal(received[i].Data, &evt))
		assert.Equal(t, identity, evt.User.Identity)
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, api.ApiConfig{})
	resp, err := env.server.Client().Post(
		env.server.URL+"/grpc.health.v1.Health/Check",
		"application/json",
		strings.NewReader(`{"service":"`+api.LedgerServiceName+`"}`),
	)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "SERVING", body["status"])
}

func TestRequestMetrics(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, api.ApiConfig{})
	_, err := env.as("alice").GetUserInfo(ctx, "")
	require.Error(t, err)

	families, err := env.registry.Gather()
	require.NoError(t, err)
	var found bool
	for _, family := range families {
		if family.GetName() != "ecochain_api_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, label := range metric.GetLabel() {
				labels[label.GetName()] = label.GetValue()
			}
			if labels["procedure"] == api.GetUserInfoProcedure &&
				labels["code"] == connect.CodeNotFound.String() {
				found = true
				assert.Equal(t, float64(1), metric.GetCounter().GetValue())
			}
		}
	}
	assert.True(t, found)
}
