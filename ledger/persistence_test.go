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

package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/A-10-g/EcoChain-DAO/database/models"
	"github.com/A-10-g/EcoChain-DAO/database/types"
	"github.com/A-10-g/EcoChain-DAO/ledger"
)

func TestPersistenceAcrossRestart(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	cfg := ledger.LedgerStateConfig{DataDir: dataDir}

	ls, err := ledger.NewLedgerState(cfg)
	require.NoError(t, err)
	register(t, ls, "alice")
	register(t, ls, "bob")
	register(t, ls, "carol")
	pending, err := ls.SubmitData(ctx, "alice", ledger.Payload{
		Data:     "soil moisture",
		Type:     "soil_analysis",
		Metadata: map[string]string{"depth": "10cm"},
	})
	require.NoError(t, err)
	validated, err := ls.SubmitData(ctx, "alice", ledger.Payload{Data: "birds"})
	require.NoError(t, err)
	rejected, err := ls.SubmitData(ctx, "bob", ledger.Payload{Data: "spam"})
	require.NoError(t, err)
	_, err = ls.ValidateData(ctx, "bob", validated.ID)
	require.NoError(t, err)
	require.NoError(t, ls.RejectData(ctx, "carol", rejected.ID))
	prop, err := ls.CreateProposal(ctx, "alice", "Solar panels")
	require.NoError(t, err)
	_, err = ls.Vote(ctx, "bob", prop.ID, ledger.VoteYes)
	require.NoError(t, err)
	require.NoError(t, ls.Transfer(ctx, "carol", "alice", 300))
	wantUsers := ls.ListUsers()
	wantStats := ls.SystemStats()
	require.NoError(t, ls.Close())

	ls = newTestLedger(t, cfg)
	require.Len(t, ls.ListUsers(), len(wantUsers))
	for _, want := range wantUsers {
		got, err := ls.LookupUser(want.Identity)
		require.NoError(t, err)
		assert.Equal(t, want.Balance, got.Balance)
		assert.Equal(t, want.DataSubmissions, got.DataSubmissions)
		assert.Equal(t, want.ProposalsCreated, got.ProposalsCreated)
		assert.Equal(t, want.VotesCast, got.VotesCast)
	}
	assert.Equal(t, wantStats, ls.SystemStats())
	assertSupplyMatchesBalances(t, ls)

	sub, err := ls.GetSubmission(pending.ID)
	require.NoError(t, err)
	assert.Equal(t, "10cm", sub.Payload.Metadata["depth"])
	sub, err = ls.GetSubmission(validated.ID)
	require.NoError(t, err)
	assert.True(t, sub.Validated)
	assert.Equal(t, "bob", sub.Validator)
	_, err = ls.GetSubmission(rejected.ID)
	assert.ErrorIs(t, err, ledger.ErrDataNotFound)

	// Rules still hold for state loaded from disk
	_, err = ls.ValidateData(ctx, "carol", validated.ID)
	assert.ErrorIs(t, err, ledger.ErrAlreadyValidated)
	_, err = ls.Vote(ctx, "bob", prop.ID, ledger.VoteNo)
	assert.ErrorIs(t, err, ledger.ErrAlreadyVoted)
	_, err = ls.Register(ctx, "alice", "")
	assert.ErrorIs(t, err, ledger.ErrAlreadyRegistered)

	// New records continue the ID sequences
	next, err := ls.SubmitData(ctx, "carol", ledger.Payload{Data: "more"})
	require.NoError(t, err)
	assert.Equal(t, rejected.ID+1, next.ID)

	summary, err := ls.VerifyJournal()
	require.NoError(t, err)
	assert.Equal(t, ls.TotalSupply(), summary.Supply)
	entries, err := ls.Journal(0, 0)
	require.NoError(t, err)
	assert.Len(t, entries, int(summary.Entries))
}

func TestJournalRecordsMovements(t *testing.T) {
	ctx := context.Background()
	ls := newTestLedger(t, ledger.LedgerStateConfig{})
	register(t, ls, "alice")
	register(t, ls, "bob")
	require.NoError(t, ls.Transfer(ctx, "alice", "bob", 100))
	_, err := ls.Debit(ctx, "bob", 50, "fee")
	require.NoError(t, err)

	entries, err := ls.Journal(1, 0)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, models.JournalEntryKindIssue, entries[0].Kind)
	assert.Equal(t, "alice", entries[0].To)
	assert.Equal(t, models.JournalEntryKindTransfer, entries[2].Kind)
	assert.Equal(t, uint64(2000), entries[2].SupplyAfter)
	assert.Equal(t, models.JournalEntryKindBurn, entries[3].Kind)
	assert.Equal(t, "fee", entries[3].Reason)
	assert.Equal(t, uint64(1950), entries[3].SupplyAfter)

	limited, err := ls.Journal(2, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, uint64(2), limited[0].Seq)

	summary, err := ls.VerifyJournal()
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), summary.Issued)
	assert.Equal(t, uint64(50), summary.Burned)
}

func TestStartupRejectsInconsistentSupply(t *testing.T) {
	dataDir := t.TempDir()
	cfg := ledger.LedgerStateConfig{DataDir: dataDir}
	ls, err := ledger.NewLedgerState(cfg)
	require.NoError(t, err)
	register(t, ls, "alice")
	// Edit a balance behind the ledger's back
	meta := ls.Database().Metadata()
	user, err := meta.GetUser("alice", nil)
	require.NoError(t, err)
	user.Balance = types.Uint64(5000)
	require.NoError(t, meta.SetUser(user, nil))
	require.NoError(t, ls.Close())

	_, err = ledger.NewLedgerState(cfg)
	assert.ErrorIs(t, err, ledger.ErrStateInconsistent)
}
