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

package metadata

import (
	"fmt"

	"github.com/A-10-g/EcoChain-DAO/database/models"
	"github.com/A-10-g/EcoChain-DAO/database/plugin"
	"github.com/A-10-g/EcoChain-DAO/database/types"
	"gorm.io/gorm"
)

type MetadataStore interface {
	plugin.Plugin

	// Database
	Close() error
	DB() *gorm.DB
	Dialect() string
	GetCommitTimestamp() (int64, error)
	SetCommitTimestamp(int64, types.Txn) error
	Transaction() types.Txn
	Backup(path string) error

	// Ledger state
	GetLedgerState(types.Txn) (*models.LedgerState, error)
	SetLedgerState(*models.LedgerState, types.Txn) error
	GetUsers(types.Txn) ([]models.User, error)
	GetUser(string, types.Txn) (*models.User, error)
	SetUser(*models.User, types.Txn) error
	GetSubmissions(types.Txn) ([]models.Submission, error)
	SetSubmission(*models.Submission, types.Txn) error
	DeleteSubmission(uint64, types.Txn) error
	GetProposals(types.Txn) ([]models.Proposal, error)
	SetProposal(*models.Proposal, types.Txn) error
	GetProposalVotes(types.Txn) ([]models.ProposalVote, error)
	AddProposalVote(*models.ProposalVote, types.Txn) error
}

// New returns the started metadata plugin selected by name
func New(pluginName string, opts plugin.PluginOptions) (MetadataStore, error) {
	p, err := plugin.StartPlugin(plugin.PluginTypeMetadata, pluginName, opts)
	if err != nil {
		return nil, err
	}
	metadataStore, ok := p.(MetadataStore)
	if !ok {
		_ = p.Stop()
		return nil, fmt.Errorf(
			"plugin '%s' does not implement MetadataStore interface",
			pluginName,
		)
	}
	return metadataStore, nil
}
