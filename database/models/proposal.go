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

package models

import (
	"errors"
	"time"
)

var ErrProposalNotFound = errors.New("proposal not found")

type Proposal struct {
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	ClosedAt    *time.Time
	Creator     string `gorm:"index;size:128"`
	Description string
	ID          uint64 `gorm:"primaryKey;autoIncrement:false"`
	YesVotes    uint64
	NoVotes     uint64
	Active      bool `gorm:"index"`
}

func (Proposal) TableName() string {
	return "proposal"
}

// ProposalVote records a single voter on a proposal. The unique index on
// (proposal_id, voter) backs the one-vote-per-identity rule in storage
type ProposalVote struct {
	CastAt     time.Time
	Voter      string `gorm:"uniqueIndex:idx_proposal_vote_voter;size:128"`
	Choice     string `gorm:"size:8"`
	ID         uint   `gorm:"primarykey"`
	ProposalID uint64 `gorm:"uniqueIndex:idx_proposal_vote_voter"`
}

func (ProposalVote) TableName() string {
	return "proposal_vote"
}
