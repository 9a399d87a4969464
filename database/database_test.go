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

package database_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/A-10-g/EcoChain-DAO/database"
	"github.com/A-10-g/EcoChain-DAO/database/models"
	"github.com/A-10-g/EcoChain-DAO/database/types"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T, dataDir string) *database.Database {
	t.Helper()
	db, err := database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func issue(to string, amount, supplyAfter uint64) *models.JournalEntry {
	return &models.JournalEntry{
		Kind:        models.JournalEntryKindIssue,
		To:          to,
		Amount:      amount,
		SupplyAfter: supplyAfter,
		Reason:      "registration",
	}
}

func TestUpdateCommitsBothStores(t *testing.T) {
	db := newTestDatabase(t, "")
	err := db.Update(context.Background(), func(txn *database.Txn) error {
		if err := db.Metadata().SetUser(&models.User{Identity: "alice", Balance: 1000}, txn.Metadata()); err != nil {
			return err
		}
		_, err := db.AppendJournal(txn, issue("alice", 1000, 1000))
		return err
	})
	require.NoError(t, err)

	users, err := db.Metadata().GetUsers(nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	head, err := db.GetJournalHead(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), head.Seq)
	assert.Len(t, head.Hash, 32)

	metadataTs, err := db.Metadata().GetCommitTimestamp()
	require.NoError(t, err)
	blobTs, err := db.Blob().GetCommitTimestamp()
	require.NoError(t, err)
	assert.Equal(t, metadataTs, blobTs)
	assert.Positive(t, metadataTs)
}

func TestUpdateRollsBackOnError(t *testing.T) {
	db := newTestDatabase(t, "")
	testErr := errors.New("precondition failed")
	err := db.Update(context.Background(), func(txn *database.Txn) error {
		if err := db.Metadata().SetUser(&models.User{Identity: "alice"}, txn.Metadata()); err != nil {
			return err
		}
		if _, err := db.AppendJournal(txn, issue("alice", 1000, 1000)); err != nil {
			return err
		}
		return testErr
	})
	require.ErrorIs(t, err, testErr)
	users, err := db.Metadata().GetUsers(nil)
	require.NoError(t, err)
	assert.Empty(t, users)
	head, err := db.GetJournalHead(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), head.Seq)
}

func TestUpdateRetriesTransient(t *testing.T) {
	db := newTestDatabase(t, "")
	attempts := 0
	err := db.Update(context.Background(), func(txn *database.Txn) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("write: %w", badger.ErrConflict)
		}
		_, err := db.AppendJournal(txn, issue("alice", 5, 5))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	head, err := db.GetJournalHead(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), head.Seq)

	// Retries are bounded
	attempts = 0
	err = db.Update(context.Background(), func(*database.Txn) error {
		attempts++
		return badger.ErrConflict
	})
	require.ErrorIs(t, err, badger.ErrConflict)
	assert.Equal(t, database.DefaultMaxRetries+1, attempts)
	assert.True(t, database.IsTransient(err))

	// The blob store already holds a partial commit, so running it again
	// would append its journal entries twice
	partial := fmt.Errorf(
		"%w: %w",
		database.ErrPartialCommit,
		errors.New("database is locked"),
	)
	assert.False(t, database.IsTransient(partial))
}

func TestJournalReadAndVerify(t *testing.T) {
	db := newTestDatabase(t, "")
	entries := []*models.JournalEntry{
		issue("alice", 1000, 1000),
		issue("bob", 1000, 2000),
		{Kind: models.JournalEntryKindTransfer, From: "alice", To: "bob", Amount: 300, SupplyAfter: 2000, Reason: "transfer"},
		{Kind: models.JournalEntryKindBurn, From: "bob", Amount: 100, SupplyAfter: 1900, Reason: "burn"},
	}
	for _, entry := range entries {
		err := db.Update(context.Background(), func(txn *database.Txn) error {
			_, err := db.AppendJournal(txn, entry)
			return err
		})
		require.NoError(t, err)
	}
	all, err := db.Journal(0, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, entry := range all {
		assert.Equal(t, uint64(i+1), entry.Seq)
	}
	assert.Equal(t, all[0].Hash, all[1].PrevHash)

	page, err := db.Journal(2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(2), page[0].Seq)
	assert.Equal(t, uint64(3), page[1].Seq)

	summary, err := db.VerifyJournal()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), summary.Entries)
	assert.Equal(t, uint64(2000), summary.Issued)
	assert.Equal(t, uint64(100), summary.Burned)
	assert.Equal(t, uint64(1900), summary.Supply)
}

func TestVerifyJournalDetectsTampering(t *testing.T) {
	db := newTestDatabase(t, "")
	err := db.Update(context.Background(), func(txn *database.Txn) error {
		_, err := db.AppendJournal(txn, issue("alice", 1000, 1000), issue("bob", 1000, 2000))
		return err
	})
	require.NoError(t, err)

	// Rewrite the first entry with a larger amount
	entries, err := db.Journal(1, 1)
	require.NoError(t, err)
	forged := entries[0]
	forged.Amount = 5000
	data, err := forged.MarshalCBOR()
	require.NoError(t, err)
	txn := db.Blob().NewTransaction(true)
	require.NoError(t, db.Blob().Set(txn, types.JournalBlobKey(1), data))
	require.NoError(t, txn.Commit())

	_, err = db.VerifyJournal()
	assert.ErrorIs(t, err, database.ErrJournalCorrupt)
}

func TestReopenPersists(t *testing.T) {
	dataDir := t.TempDir()
	db, err := database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	err = db.Update(context.Background(), func(txn *database.Txn) error {
		if err := db.Metadata().SetUser(&models.User{Identity: "alice", Balance: 1000}, txn.Metadata()); err != nil {
			return err
		}
		_, err := db.AppendJournal(txn, issue("alice", 1000, 1000))
		return err
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db = newTestDatabase(t, dataDir)
	user, err := db.Metadata().GetUser("alice", nil)
	require.NoError(t, err)
	assert.Equal(t, types.Uint64(1000), user.Balance)
	summary, err := db.VerifyJournal()
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), summary.Supply)
}

func TestCommitTimestampMismatch(t *testing.T) {
	dataDir := t.TempDir()
	db, err := database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	err = db.Update(context.Background(), func(txn *database.Txn) error {
		_, err := db.AppendJournal(txn, issue("alice", 1000, 1000))
		return err
	})
	require.NoError(t, err)
	// Advance the blob timestamp alone, as a partial commit would
	txn := db.Blob().NewTransaction(true)
	require.NoError(t, db.Blob().SetCommitTimestamp(1, txn))
	require.NoError(t, txn.Commit())
	require.NoError(t, db.Close())

	db, err = database.New(&database.Config{DataDir: dataDir})
	var tsErr database.CommitTimestampError
	require.ErrorAs(t, err, &tsErr)
	assert.Equal(t, int64(1), tsErr.BlobTimestamp)
	require.NotNil(t, db)
	require.NoError(t, db.Close())
}

func TestUnknownPlugin(t *testing.T) {
	_, err := database.New(&database.Config{MetadataPlugin: "nosuchdb"})
	assert.ErrorContains(t, err, "not found")
}

func TestRecoverJournal(t *testing.T) {
	dataDir := t.TempDir()
	db := newTestDatabase(t, dataDir)
	err := db.Update(context.Background(), func(txn *database.Txn) error {
		_, err := db.AppendJournal(txn, issue("alice", 1000, 1000))
		return err
	})
	require.NoError(t, err)
	head, err := db.GetJournalHead(nil)
	require.NoError(t, err)
	err = db.Update(context.Background(), func(txn *database.Txn) error {
		_, err := db.AppendJournal(txn, issue("bob", 500, 1500))
		return err
	})
	require.NoError(t, err)
	// Wind the metadata timestamp back, as if its commit never landed
	mtxn := db.Metadata().Transaction()
	require.NoError(t, db.Metadata().SetCommitTimestamp(1, mtxn))
	require.NoError(t, mtxn.Commit())
	require.NoError(t, db.Close())

	db, err = database.New(&database.Config{DataDir: dataDir})
	var tsErr database.CommitTimestampError
	require.ErrorAs(t, err, &tsErr)
	require.NoError(t, db.RecoverJournal(head))
	summary, err := db.VerifyJournal()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), summary.Head.Seq)
	assert.Equal(t, uint64(1000), summary.Supply)
	require.NoError(t, db.Close())

	db = newTestDatabase(t, dataDir)
	entries, err := db.Journal(1, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
