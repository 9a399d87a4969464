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

package sqlite_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/A-10-g/EcoChain-DAO/database/models"
	"github.com/A-10-g/EcoChain-DAO/database/plugin/metadata/sqlite"
	"github.com/A-10-g/EcoChain-DAO/database/types"
	gsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T, dataDir string) *sqlite.MetadataStoreSqlite {
	t.Helper()
	store, err := sqlite.New(sqlite.WithDataDir(dataDir))
	require.NoError(t, err)
	require.NoError(t, store.Start())
	t.Cleanup(func() {
		_ = store.Stop()
	})
	return store
}

func TestInMemoryStoresAreIsolated(t *testing.T) {
	store1 := newTestStore(t, "")
	store2 := newTestStore(t, "")
	require.NoError(t, store1.SetUser(&models.User{Identity: "alice", Balance: 1000}, nil))
	users, err := store2.GetUsers(nil)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestUserUpsert(t *testing.T) {
	store := newTestStore(t, "")
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.SetUser(&models.User{
		Identity:     "alice",
		Name:         "Alice",
		Balance:      1000,
		RegisteredAt: now,
	}, nil))
	require.NoError(t, store.SetUser(&models.User{
		Identity:        "alice",
		Name:            "Alice",
		Balance:         1050,
		DataSubmissions: 1,
		RegisteredAt:    now,
	}, nil))
	users, err := store.GetUsers(nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, types.Uint64(1050), users[0].Balance)
	assert.Equal(t, uint64(1), users[0].DataSubmissions)

	user, err := store.GetUser("alice", nil)
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)
	_, err = store.GetUser("bob", nil)
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestSubmissionLifecycle(t *testing.T) {
	store := newTestStore(t, "")
	value := 42.5
	sub := &models.Submission{
		ID:          1,
		Submitter:   "alice",
		Data:        "pm2.5 reading",
		DataType:    "air_quality",
		Value:       &value,
		Unit:        "AQI",
		Metadata:    map[string]string{"sensor": "v2"},
		SubmittedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SetSubmission(sub, nil))
	validatedAt := time.Now().UTC()
	sub.Validated = true
	sub.Validator = "bob"
	sub.ValidatedAt = &validatedAt
	require.NoError(t, store.SetSubmission(sub, nil))

	subs, err := store.GetSubmissions(nil)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.True(t, subs[0].Validated)
	assert.Equal(t, "bob", subs[0].Validator)
	assert.Equal(t, map[string]string{"sensor": "v2"}, subs[0].Metadata)
	require.NotNil(t, subs[0].Value)
	assert.InDelta(t, 42.5, *subs[0].Value, 0.0001)

	require.NoError(t, store.DeleteSubmission(1, nil))
	assert.ErrorIs(t, store.DeleteSubmission(1, nil), models.ErrSubmissionNotFound)
}

func TestProposalVoteUnique(t *testing.T) {
	store := newTestStore(t, "")
	require.NoError(t, store.SetProposal(&models.Proposal{
		ID:          1,
		Creator:     "alice",
		Description: "plant trees",
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}, nil))
	require.NoError(t, store.AddProposalVote(&models.ProposalVote{ProposalID: 1, Voter: "bob", Choice: "yes"}, nil))
	assert.Error(t, store.AddProposalVote(&models.ProposalVote{ProposalID: 1, Voter: "bob", Choice: "no"}, nil))
	require.NoError(t, store.AddProposalVote(&models.ProposalVote{ProposalID: 1, Voter: "carol", Choice: "no"}, nil))
	votes, err := store.GetProposalVotes(nil)
	require.NoError(t, err)
	assert.Len(t, votes, 2)

	// Closing keeps the row and flips the flag
	require.NoError(t, store.SetProposal(&models.Proposal{
		ID:          1,
		Creator:     "alice",
		Description: "plant trees",
		YesVotes:    1,
		NoVotes:     1,
		Active:      false,
	}, nil))
	proposals, err := store.GetProposals(nil)
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.False(t, proposals[0].Active)
	assert.Equal(t, uint64(1), proposals[0].YesVotes)
}

func TestLedgerStateAndRollback(t *testing.T) {
	store := newTestStore(t, "")
	state, err := store.GetLedgerState(nil)
	require.NoError(t, err)
	assert.Equal(t, types.Uint64(0), state.TotalSupply)

	txn := store.Transaction()
	state.TotalSupply = 2000
	state.NextProposalID = 3
	require.NoError(t, store.SetLedgerState(state, txn))
	require.NoError(t, txn.Rollback())
	state, err = store.GetLedgerState(nil)
	require.NoError(t, err)
	assert.Equal(t, types.Uint64(0), state.TotalSupply)

	txn = store.Transaction()
	state.TotalSupply = 2000
	require.NoError(t, store.SetLedgerState(state, txn))
	require.NoError(t, store.SetCommitTimestamp(12345, txn))
	require.NoError(t, txn.Commit())
	state, err = store.GetLedgerState(nil)
	require.NoError(t, err)
	assert.Equal(t, types.Uint64(2000), state.TotalSupply)
	ts, err := store.GetCommitTimestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(12345), ts)
}

func TestDiskBackup(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	require.NoError(t, store.SetUser(&models.User{Identity: "alice", Balance: 1000}, nil))
	backupPath := filepath.Join(t.TempDir(), "backup.sqlite")
	require.NoError(t, store.Backup(backupPath))
	require.FileExists(t, backupPath)

	backupDb, err := gorm.Open(gsqlite.Open(backupPath), &gorm.Config{})
	require.NoError(t, err)
	var count int64
	require.NoError(t, backupDb.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	sqlDB, err := backupDb.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}
