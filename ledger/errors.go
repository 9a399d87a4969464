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
	"errors"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrAlreadyRegistered   = errors.New("user already registered")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDataNotFound        = errors.New("data submission not found")
	ErrAlreadyValidated    = errors.New("data submission already validated")
	ErrProposalNotFound    = errors.New("proposal not found")
	ErrProposalNotActive   = errors.New("proposal not active")
	ErrAlreadyVoted        = errors.New("already voted on proposal")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidArgument     = errors.New("invalid argument")

	// ErrUnavailable reports that an operation could not acquire the ledger
	// or reach storage in time. Nothing was changed
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrSupplyExhausted is returned when issuing tokens would exceed the
	// configured maximum supply
	ErrSupplyExhausted = errors.New("token supply exhausted")
)

var errorNames = []struct {
	err  error
	name string
}{
	{ErrUserNotFound, "UserNotFound"},
	{ErrAlreadyRegistered, "AlreadyRegistered"},
	{ErrInsufficientBalance, "InsufficientBalance"},
	{ErrDataNotFound, "DataNotFound"},
	{ErrAlreadyValidated, "AlreadyValidated"},
	{ErrProposalNotFound, "ProposalNotFound"},
	{ErrProposalNotActive, "ProposalNotActive"},
	{ErrAlreadyVoted, "AlreadyVoted"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrUnavailable, "Unavailable"},
	{ErrInvalidArgument, "InvalidArgument"},
	{ErrSupplyExhausted, "SupplyExhausted"},
}

// ErrorName returns the stable name of the ledger error wrapped by err, or
// an empty string for anything else
func ErrorName(err error) string {
	for _, item := range errorNames {
		if errors.Is(err, item.err) {
			return item.name
		}
	}
	return ""
}

// ErrorFromName is the inverse of ErrorName
func ErrorFromName(name string) error {
	for _, item := range errorNames {
		if item.name == name {
			return item.err
		}
	}
	return nil
}
