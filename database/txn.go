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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/A-10-g/EcoChain-DAO/database/types"
)

// ErrPartialCommit is returned when the blob store committed but the
// metadata store did not. The blob store is then ahead of the metadata store
// until RecoverJournal rolls it back
var ErrPartialCommit = errors.New("partial commit")

// Txn coordinates a blob transaction and a metadata transaction so that a
// ledger change lands in both stores or in neither
type Txn struct {
	db          *Database
	blobTxn     types.Txn
	metadataTxn types.Txn
	lock        sync.Mutex
	finished    bool
	readWrite   bool
}

func NewTxn(db *Database, readWrite bool) *Txn {
	t := &Txn{db: db, readWrite: readWrite}
	if db.blob != nil {
		t.blobTxn = db.blob.NewTransaction(readWrite)
	}
	// Reads are served from the in-memory ledger, so only writers need a
	// metadata transaction
	if readWrite && db.metadata != nil {
		t.metadataTxn = db.metadata.Transaction()
	}
	return t
}

func (t *Txn) DB() *Database {
	return t.db
}

// Metadata returns the underlying metadata transaction handle
func (t *Txn) Metadata() types.Txn {
	return t.metadataTxn
}

// Blob returns the blob transaction handle
func (t *Txn) Blob() types.Txn {
	return t.blobTxn
}

// Do executes the specified function in the context of the transaction. Any errors returned will result
// in the transaction being rolled back
func (t *Txn) Do(fn func(*Txn) error) error {
	if err := fn(t); err != nil {
		if err2 := t.Rollback(); err2 != nil {
			return fmt.Errorf(
				"rollback failed: %w: original error: %w",
				err2,
				err,
			)
		}
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (t *Txn) Commit() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.finished {
		return nil
	}
	if !t.readWrite {
		return t.rollback()
	}
	if t.blobTxn == nil || t.metadataTxn == nil {
		t.finished = true
		return types.ErrNoStoreAvailable
	}
	if err := t.db.updateCommitTimestamp(t, time.Now().UnixMilli()); err != nil {
		_ = t.blobTxn.Rollback()
		_ = t.metadataTxn.Rollback()
		t.finished = true
		return fmt.Errorf("failed to update commit timestamp: %w", err)
	}
	// Commit blob first so that a blob failure never leaves metadata ahead
	if err := t.blobTxn.Commit(); err != nil {
		_ = t.metadataTxn.Rollback()
		t.finished = true
		return fmt.Errorf("blob commit failed: %w", err)
	}
	if err := t.metadataTxn.Commit(); err != nil {
		// Until the journal is rolled back, the blob store holds entries
		// the metadata store never recorded
		t.db.logger.Error(
			"partial commit: blob committed, metadata failed",
			"component", "database",
			"error", err,
		)
		_ = t.metadataTxn.Rollback()
		t.finished = true
		return fmt.Errorf(
			"%w: metadata commit failed after blob commit: %w",
			ErrPartialCommit,
			err,
		)
	}
	t.finished = true
	return nil
}

func (t *Txn) Rollback() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.rollback()
}

func (t *Txn) rollback() error {
	if t.finished {
		return nil
	}
	var errs []error
	if t.blobTxn != nil {
		if err := t.blobTxn.Rollback(); err != nil {
			errs = append(errs, fmt.Errorf("blob rollback: %w", err))
		}
	}
	if t.metadataTxn != nil {
		if err := t.metadataTxn.Rollback(); err != nil {
			errs = append(errs, fmt.Errorf("metadata rollback: %w", err))
		}
	}
	t.finished = true
	return errors.Join(errs...)
}

// Release rolls back the transaction and logs any failure. Use this in defer
// statements
func (t *Txn) Release() {
	if err := t.Rollback(); err != nil {
		t.db.logger.Debug(
			"transaction release failed",
			"component", "database",
			"error", err,
			"read_write", t.readWrite,
		)
	}
}
