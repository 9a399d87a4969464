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
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// Credit issues amount new tokens to identity, raising the total supply
func (ls *LedgerState) Credit(
	ctx context.Context,
	identity string,
	amount uint64,
	reason string,
) (User, error) {
	if amount == 0 {
		return User{}, fmt.Errorf("%w: zero amount", ErrInvalidArgument)
	}
	var ret User
	err := ls.mutate(
		ctx,
		"credit",
		func(m *mutation) error {
			if err := m.credit(identity, amount, reason); err != nil {
				return err
			}
			ret = *m.user(identity)
			return nil
		},
		attribute.String("identity", identity),
		attribute.Int64("amount", int64(amount)),
	)
	return ret, err
}

// Debit burns amount tokens held by identity, lowering the total supply
func (ls *LedgerState) Debit(
	ctx context.Context,
	identity string,
	amount uint64,
	reason string,
) (User, error) {
	if amount == 0 {
		return User{}, fmt.Errorf("%w: zero amount", ErrInvalidArgument)
	}
	var ret User
	err := ls.mutate(
		ctx,
		"debit",
		func(m *mutation) error {
			if err := m.debit(identity, amount, reason); err != nil {
				return err
			}
			ret = *m.user(identity)
			return nil
		},
		attribute.String("identity", identity),
		attribute.Int64("amount", int64(amount)),
	)
	return ret, err
}

// Transfer moves amount from one user to another. Both balances change
// together or not at all, and the total supply is unaffected
func (ls *LedgerState) Transfer(
	ctx context.Context,
	from string,
	to string,
	amount uint64,
) error {
	if amount == 0 {
		return fmt.Errorf("%w: zero amount", ErrInvalidArgument)
	}
	if from == to {
		return fmt.Errorf("%w: transfer to self", ErrUnauthorized)
	}
	err := ls.mutate(
		ctx,
		"transfer",
		func(m *mutation) error {
			return m.transfer(from, to, amount, reasonTransfer)
		},
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.Int64("amount", int64(amount)),
	)
	if err != nil {
		return err
	}
	ls.logger.Debug(
		"transferred tokens",
		"from", from,
		"to", to,
		"amount", amount,
	)
	return nil
}

func (ls *LedgerState) TotalSupply() uint64 {
	ls.RLock()
	defer ls.RUnlock()
	return ls.totals.supply
}
