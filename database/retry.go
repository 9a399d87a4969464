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

package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	badger "github.com/dgraph-io/badger/v4"
)

// IsTransient reports whether err is a storage conflict that may succeed
// when the transaction is run again
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrPartialCommit) {
		return false
	}
	if errors.Is(err, badger.ErrConflict) {
		return true
	}
	// sqlite reports lock contention only through the message
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked")
}

// Update runs fn in a read-write transaction and commits it. A transient
// conflict reruns fn in a fresh transaction, up to the configured retry
// limit, so fn must not have side effects outside the transaction. The last
// error is returned once retries run out
func (d *Database) Update(ctx context.Context, fn func(*Txn) error) error {
	op := func() error {
		err := d.Transaction(true).Do(fn)
		if err == nil || IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 5 * time.Millisecond
	expBackoff.MaxInterval = 100 * time.Millisecond
	return backoff.RetryNotify(
		op,
		backoff.WithContext(
			backoff.WithMaxRetries(expBackoff, d.maxRetries),
			ctx,
		),
		func(err error, wait time.Duration) {
			d.logger.Debug(
				"retrying transaction after transient error",
				"component", "database",
				"error", err,
				"wait", wait,
			)
		},
	)
}
