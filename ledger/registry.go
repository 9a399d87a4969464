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
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	reasonRegistration = "registration"
	reasonTransfer     = "transfer"
)

// Register creates a user and issues the registration grant. An empty
// identity is replaced by a generated one. Registering an existing identity
// fails with ErrAlreadyRegistered
func (ls *LedgerState) Register(
	ctx context.Context,
	identity string,
	name string,
) (User, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = uuid.NewString()
	}
	if len(identity) > MaxIdentityLength {
		return User{}, fmt.Errorf(
			"%w: identity longer than %d bytes",
			ErrInvalidArgument,
			MaxIdentityLength,
		)
	}
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxNameLength {
		return User{}, fmt.Errorf(
			"%w: name longer than %d characters",
			ErrInvalidArgument,
			MaxNameLength,
		)
	}
	var ret User
	err := ls.mutate(
		ctx,
		"register",
		func(m *mutation) error {
			if m.user(identity) != nil {
				return fmt.Errorf("%w: %s", ErrAlreadyRegistered, identity)
			}
			user := &User{
				RegisteredAt: m.now,
				Identity:     identity,
				Name:         name,
			}
			m.addUser(user)
			if err := m.credit(identity, ls.config.Policy.RegistrationGrant, reasonRegistration); err != nil {
				return err
			}
			ret = *user
			m.publish(UserRegisteredEventType, UserRegisteredEvent{User: ret})
			return nil
		},
		attribute.String("identity", identity),
	)
	if err != nil {
		return User{}, err
	}
	ls.logger.Info(
		"registered user",
		"identity", identity,
		"balance", ret.Balance,
	)
	return ret, nil
}

// LookupUser returns the user registered under identity
func (ls *LedgerState) LookupUser(identity string) (User, error) {
	ls.RLock()
	defer ls.RUnlock()
	u, ok := ls.users[identity]
	if !ok {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, identity)
	}
	return *u, nil
}

func (ls *LedgerState) Balance(identity string) (uint64, error) {
	u, err := ls.LookupUser(identity)
	if err != nil {
		return 0, err
	}
	return u.Balance, nil
}

func (ls *LedgerState) IsUserRegistered(identity string) bool {
	ls.RLock()
	defer ls.RUnlock()
	_, ok := ls.users[identity]
	return ok
}

// ListUsers returns all users by registration time
func (ls *LedgerState) ListUsers() []User {
	ls.RLock()
	ret := make([]User, 0, len(ls.users))
	for _, u := range ls.users {
		ret = append(ret, *u)
	}
	ls.RUnlock()
	slices.SortFunc(ret, func(a, b User) int {
		if c := a.RegisteredAt.Compare(b.RegisteredAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Identity, b.Identity)
	})
	return ret
}
