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

	"connectrpc.com/connect"

	"github.com/A-10-g/EcoChain-DAO/ledger"
)

// ErrorHeader carries the ledger error name on failed calls
const ErrorHeader = "Ecochain-Error"

func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}
	code := connect.CodeInternal
	switch {
	case errors.Is(err, ledger.ErrUserNotFound),
		errors.Is(err, ledger.ErrDataNotFound),
		errors.Is(err, ledger.ErrProposalNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, ledger.ErrAlreadyRegistered):
		code = connect.CodeAlreadyExists
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrAlreadyValidated),
		errors.Is(err, ledger.ErrProposalNotActive),
		errors.Is(err, ledger.ErrAlreadyVoted),
		errors.Is(err, ledger.ErrSupplyExhausted):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, ledger.ErrUnauthorized):
		code = connect.CodePermissionDenied
	case errors.Is(err, ledger.ErrInvalidArgument):
		code = connect.CodeInvalidArgument
	case errors.Is(err, ledger.ErrUnavailable):
		code = connect.CodeUnavailable
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	}
	ret := connect.NewError(code, err)
	if name := ledger.ErrorName(err); name != "" {
		ret.Meta().Set(ErrorHeader, name)
	}
	return ret
}

// RemoteError is a ledger error returned by the server. It matches the
// ledger sentinel with errors.Is
type RemoteError struct {
	Err   error
	Cause *connect.Error
}

func (e *RemoteError) Error() string {
	return e.Cause.Message()
}

func (e *RemoteError) Unwrap() []error {
	return []error{e.Err, e.Cause}
}

func fromConnectError(err error) error {
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		return err
	}
	name := connectErr.Meta().Get(ErrorHeader)
	if ledgerErr := ledger.ErrorFromName(name); ledgerErr != nil {
		return &RemoteError{Err: ledgerErr, Cause: connectErr}
	}
	return err
}
