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
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

const (
	// IdentityHeader names the caller when no JWT secret is configured
	IdentityHeader = "Ecochain-Identity"

	maxRateLimiters = 10000
)

type callerKey struct{}

func withCaller(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, callerKey{}, identity)
}

// CallerFromContext returns the authenticated caller identity, if any
func CallerFromContext(ctx context.Context) string {
	identity, _ := ctx.Value(callerKey{}).(string)
	return identity
}

func requireCaller(ctx context.Context) (string, error) {
	identity := CallerFromContext(ctx)
	if identity == "" {
		return "", connect.NewError(
			connect.CodeUnauthenticated,
			errors.New("caller identity required"),
		)
	}
	return identity, nil
}

func (a *Api) callerIdentity(header http.Header) (string, error) {
	if a.config.JwtSecret == "" {
		return strings.TrimSpace(header.Get(IdentityHeader)), nil
	}
	authz := header.Get("Authorization")
	if authz == "" {
		return "", nil
	}
	tokenString, ok := strings.CutPrefix(authz, "Bearer ")
	if !ok {
		return "", connect.NewError(
			connect.CodeUnauthenticated,
			errors.New("malformed authorization header"),
		)
	}
	token, err := jwt.Parse(
		tokenString,
		func(*jwt.Token) (any, error) {
			return []byte(a.config.JwtSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return "", connect.NewError(
			connect.CodeUnauthenticated,
			fmt.Errorf("invalid token: %w", err),
		)
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", connect.NewError(
			connect.CodeUnauthenticated,
			errors.New("token has no subject"),
		)
	}
	return subject, nil
}

// admit resolves the caller and applies the rate limit
func (a *Api) admit(
	ctx context.Context,
	procedure string,
	header http.Header,
	peerAddr string,
) (context.Context, error) {
	identity, err := a.callerIdentity(header)
	if err != nil {
		return ctx, err
	}
	key := identity
	if key == "" {
		key = peerHost(peerAddr)
	}
	if !a.limiter.allow(key) {
		a.config.Logger.Debug(
			"rate limit exceeded",
			"procedure", procedure,
			"caller", key,
		)
		return ctx, connect.NewError(
			connect.CodeResourceExhausted,
			errors.New("rate limit exceeded"),
		)
	}
	return withCaller(ctx, identity), nil
}

func peerHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

type callerInterceptor struct {
	api *Api
}

func (i *callerInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(
		ctx context.Context,
		req connect.AnyRequest,
	) (connect.AnyResponse, error) {
		start := time.Now()
		procedure := req.Spec().Procedure
		ctx, err := i.api.admit(ctx, procedure, req.Header(), req.Peer().Addr)
		var res connect.AnyResponse
		if err == nil {
			res, err = next(ctx, req)
		}
		i.api.metrics.observe(procedure, err, time.Since(start))
		return res, err
	}
}

func (i *callerInterceptor) WrapStreamingClient(
	next connect.StreamingClientFunc,
) connect.StreamingClientFunc {
	return next
}

func (i *callerInterceptor) WrapStreamingHandler(
	next connect.StreamingHandlerFunc,
) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()
		procedure := conn.Spec().Procedure
		ctx, err := i.api.admit(
			ctx,
			procedure,
			conn.RequestHeader(),
			conn.Peer().Addr,
		)
		if err == nil {
			err = next(ctx, conn)
		}
		i.api.metrics.observe(procedure, err, time.Since(start))
		return err
	}
}

// rateLimiter keeps one token bucket per caller. A nil rateLimiter allows
// everything
type rateLimiter struct {
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
}

func newRateLimiter(limit float64, burst int) *rateLimiter {
	if limit <= 0 {
		return nil
	}
	if burst < 1 {
		burst = max(1, int(math.Ceil(limit)))
	}
	return &rateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(limit),
		burst:    burst,
	}
}

func (r *rateLimiter) allow(key string) bool {
	if r == nil {
		return true
	}
	r.mu.Lock()
	limiter, ok := r.limiters[key]
	if !ok {
		if len(r.limiters) >= maxRateLimiters {
			// Start over rather than grow without bound
			r.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(r.limit, r.burst)
		r.limiters[key] = limiter
	}
	r.mu.Unlock()
	return limiter.Allow()
}
