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
	"github.com/A-10-g/EcoChain-DAO/event"
)

const (
	UserRegisteredEventType  event.EventType = "ledger.user_registered"
	TokensMovedEventType     event.EventType = "ledger.tokens_moved"
	DataSubmittedEventType   event.EventType = "ledger.data_submitted"
	DataValidatedEventType   event.EventType = "ledger.data_validated"
	DataRejectedEventType    event.EventType = "ledger.data_rejected"
	ProposalCreatedEventType event.EventType = "ledger.proposal_created"
	VoteCastEventType        event.EventType = "ledger.vote_cast"
	ProposalClosedEventType  event.EventType = "ledger.proposal_closed"
)

type UserRegisteredEvent struct {
	User User `json:"user"`
}

// TokensMovedEvent mirrors a journal entry. Issuance has no From and burns
// have no To
type TokensMovedEvent struct {
	Kind        string `json:"kind"`
	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
	Reason      string `json:"reason"`
	Amount      uint64 `json:"amount"`
	SupplyAfter uint64 `json:"supplyAfter"`
}

type DataSubmittedEvent struct {
	Submission Submission `json:"submission"`
}

type DataValidatedEvent struct {
	Submission Submission `json:"submission"`
}

type DataRejectedEvent struct {
	Rejecter     string `json:"rejecter"`
	Submitter    string `json:"submitter"`
	SubmissionID uint64 `json:"submissionId"`
}

type ProposalCreatedEvent struct {
	Proposal Proposal `json:"proposal"`
}

type VoteCastEvent struct {
	Voter      string     `json:"voter"`
	Choice     VoteChoice `json:"choice"`
	ProposalID uint64     `json:"proposalId"`
	YesVotes   uint64     `json:"yesVotes"`
	NoVotes    uint64     `json:"noVotes"`
}

type ProposalClosedEvent struct {
	Proposal Proposal `json:"proposal"`
}
