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
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/A-10-g/EcoChain-DAO/database"
	"github.com/A-10-g/EcoChain-DAO/database/models"
	"github.com/A-10-g/EcoChain-DAO/database/plugin"
	"github.com/A-10-g/EcoChain-DAO/database/plugin/metadata"
	"github.com/A-10-g/EcoChain-DAO/database/plugin/metadata/sqlite"
	"github.com/A-10-g/EcoChain-DAO/database/types"
	"github.com/A-10-g/EcoChain-DAO/ledger"
)

const flakyMetadataPlugin = "flaky-sqlite"

var failNextMetadataCommit atomic.Bool

// flakyMetadataStore is a sqlite store whose next commit can be made to fail
type flakyMetadataStore struct {
	metadata.MetadataStore
}

type flakyTxn struct {
	types.Txn
}

func (t *flakyTxn) Commit() error {
	if failNextMetadataCommit.CompareAndSwap(true, false) {
		return errors.New("metadata commit failed")
	}
	return t.Txn.Commit()
}

func unwrapTxn(txn types.Txn) types.Txn {
	if tmpTxn, ok := txn.(*flakyTxn); ok {
		return tmpTxn.Txn
	}
	return txn
}

func (s *flakyMetadataStore) Transaction() types.Txn {
	return &flakyTxn{Txn: s.MetadataStore.Transaction()}
}

func (s *flakyMetadataStore) SetCommitTimestamp(ts int64, txn types.Txn) error {
	return s.MetadataStore.SetCommitTimestamp(ts, unwrapTxn(txn))
}

func (s *flakyMetadataStore) SetLedgerState(
	state *models.LedgerState,
	txn types.Txn,
) error {
	return s.MetadataStore.SetLedgerState(state, unwrapTxn(txn))
}

func (s *flakyMetadataStore) SetUser(user *models.User, txn types.Txn) error {
	return s.MetadataStore.SetUser(user, unwrapTxn(txn))
}

func (s *flakyMetadataStore) SetSubmission(
	sub *models.Submission,
	txn types.Txn,
) error {
	return s.MetadataStore.SetSubmission(sub, unwrapTxn(txn))
}

func (s *flakyMetadataStore) DeleteSubmission(id uint64, txn types.Txn) error {
	return s.MetadataStore.DeleteSubmission(id, unwrapTxn(txn))
}

func (s *flakyMetadataStore) SetProposal(
	prop *models.Proposal,
	txn types.Txn,
) error {
	return s.MetadataStore.SetProposal(prop, unwrapTxn(txn))
}

func (s *flakyMetadataStore) AddProposalVote(
	vote *models.ProposalVote,
	txn types.Txn,
) error {
	return s.MetadataStore.AddProposalVote(vote, unwrapTxn(txn))
}

func registerFlakyMetadataPlugin() {
	plugin.Register(
		plugin.PluginEntry{
			Type:        plugin.PluginTypeMetadata,
			Name:        flakyMetadataPlugin,
			Description: "sqlite with injectable commit failures",
			NewFunc: func(opts plugin.PluginOptions) (plugin.Plugin, error) {
				p, err := sqlite.NewFromPluginOptions(opts)
				if err != nil {
					return nil, err
				}
				store, ok := p.(metadata.MetadataStore)
				if !ok {
					return nil, fmt.Errorf("unexpected plugin type %T", p)
				}
				return &flakyMetadataStore{MetadataStore: store}, nil
			},
		},
	)
}

func TestPartialCommitRollsBackJournal(t *testing.T) {
	registerFlakyMetadataPlugin()
	t.Cleanup(func() {
		failNextMetadataCommit.Store(false)
	})
	ctx := context.Background()
	cfg := ledger.LedgerStateConfig{
		DataDir:        t.TempDir(),
		MetadataPlugin: flakyMetadataPlugin,
	}
	ls, err := ledger.NewLedgerState(cfg)
	require.NoError(t, err)
	register(t, ls, "alice")

	// The blob store commits bob's grant, the metadata store does not
	failNextMetadataCommit.Store(true)
	_, err = ls.Register(ctx, "bob", "")
	require.ErrorIs(t, err, database.ErrPartialCommit)
	assert.False(t, ls.IsUserRegistered("bob"))
	assert.Equal(t, uint64(1000), ls.TotalSupply())

	// Later changes chain onto the installed head
	register(t, ls, "carol")
	_, err = ls.Register(ctx, "bob", "")
	require.NoError(t, err)
	summary, err := ls.VerifyJournal()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), summary.Entries)
	assert.Equal(t, uint64(3000), summary.Supply)
	assert.Equal(t, ls.TotalSupply(), summary.Supply)
	require.NoError(t, ls.Close())

	ls = newTestLedger(t, cfg)
	assert.Equal(t, uint64(3000), ls.TotalSupply())
	assertSupplyMatchesBalances(t, ls)
	summary, err = ls.VerifyJournal()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), summary.Head.Seq)
}
