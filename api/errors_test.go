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
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/A-10-g/EcoChain-DAO/ledger"
)

func TestToConnectError(t *testing.T) {
	testDefs := []struct {
		err  error
		code connect.Code
		name string
	}{
		{ledger.ErrUserNotFound, connect.CodeNotFound, "UserNotFound"},
		{ledger.ErrDataNotFound, connect.CodeNotFound, "DataNotFound"},
		{ledger.ErrProposalNotFound, connect.CodeNotFound, "ProposalNotFound"},
		{ledger.ErrAlreadyRegistered, connect.CodeAlreadyExists, "AlreadyRegistered"},
		{ledger.ErrInsufficientBalance, connect.CodeFailedPrecondition, "InsufficientBalance"},
		{ledger.ErrAlreadyValidated, connect.CodeFailedPrecondition, "AlreadyValidated"},
		{ledger.ErrProposalNotActive, connect.CodeFailedPrecondition, "ProposalNotActive"},
		{ledger.ErrAlreadyVoted, connect.CodeFailedPrecondition, "AlreadyVoted"},
		{ledger.ErrSupplyExhausted, connect.CodeFailedPrecondition, "SupplyExhausted"},
		{ledger.ErrUnauthorized, connect.CodePermissionDenied, "Unauthorized"},
		{ledger.ErrInvalidArgument, connect.CodeInvalidArgument, "InvalidArgument"},
		{ledger.ErrUnavailable, connect.CodeUnavailable, "Unavailable"},
		{context.Canceled, connect.CodeCanceled, ""},
		{errors.New("boom"), connect.CodeInternal, ""},
	}
	for _, testDef := range testDefs {
		wrapped := fmt.Errorf("%w: detail", testDef.err)
		err := toConnectError(wrapped)
		var connectErr *connect.Error
		require.ErrorAs(t, err, &connectErr)
		assert.Equal(t, testDef.code, connectErr.Code(), testDef.err.Error())
		assert.Equal(t, testDef.name, connectErr.Meta().Get(ErrorHeader))
	}
	assert.NoError(t, toConnectError(nil))
}

func TestFromConnectError(t *testing.T) {
	err := fromConnectError(
		toConnectError(fmt.Errorf("%w: alice", ledger.ErrInsufficientBalance)),
	)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
	assert.Equal(t, "insufficient balance: alice", err.Error())

	plain := connect.NewError(connect.CodeInternal, errors.New("boom"))
	assert.Equal(t, error(plain), fromConnectError(plain))
}

func TestRateLimiter(t *testing.T) {
	var disabled *rateLimiter
	assert.True(t, disabled.allow("anyone"))
	assert.Nil(t, newRateLimiter(0, 10))

	limiter := newRateLimiter(0.001, 0)
	assert.Equal(t, 1, limiter.burst)
	assert.True(t, limiter.allow("alice"))
	assert.False(t, limiter.allow("alice"))
	assert.True(t, limiter.allow("bob"))
}
