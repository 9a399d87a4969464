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
	"maps"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/A-10-g/EcoChain-DAO/database/models"
)

const (
	reasonProposal = "proposal"
	reasonVote     = "vote"
)

// CreateProposal opens a proposal for voting. The creator must hold at
// least the minimum proposal balance
func (ls *LedgerState) CreateProposal(
	ctx context.Context,
	creator string,
	description string,
) (Proposal, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Proposal{}, fmt.Errorf("%w: empty description", ErrInvalidArgument)
	}
	policy := ls.config.Policy
	var ret Proposal
	err := ls.mutate(
		ctx,
		"create_proposal",
		func(m *mutation) error {
			user := m.user(creator)
			if user == nil {
				return fmt.Errorf("%w: %s", ErrUserNotFound, creator)
			}
			if user.Balance < policy.MinProposalBalance {
				return fmt.Errorf(
					"%w: proposals need a balance of %d, %s holds %d",
					ErrInsufficientBalance,
					policy.MinProposalBalance,
					creator,
					user.Balance,
				)
			}
			prop := &proposalState{
				proposal: Proposal{
					CreatedAt:   m.now,
					Creator:     creator,
					Description: description,
					Voters:      []string{},
					ID:          m.totals.nextProposalID,
					Active:      true,
				},
				votes: make(map[string]VoteChoice),
			}
			if policy.VotingPeriod > 0 {
				expiresAt := m.now.Add(policy.VotingPeriod)
				prop.proposal.ExpiresAt = &expiresAt
			}
			m.totals.nextProposalID++
			m.proposals[prop.proposal.ID] = prop
			user.ProposalsCreated++
			if err := m.credit(creator, policy.ProposalReward, reasonProposal); err != nil {
				return err
			}
			ret = prop.snapshot()
			m.publish(ProposalCreatedEventType, ProposalCreatedEvent{Proposal: prop.snapshot()})
			return nil
		},
		attribute.String("identity", creator),
	)
	if err != nil {
		return Proposal{}, err
	}
	ls.logger.Info(
		"created proposal",
		"id", ret.ID,
		"creator", creator,
	)
	return ret, nil
}

// Vote records voter's choice on an active proposal and pays the voting
// reward. Each identity votes at most once per proposal
func (ls *LedgerState) Vote(
	ctx context.Context,
	voter string,
	id uint64,
	choice VoteChoice,
) (Proposal, error) {
	if choice != VoteYes && choice != VoteNo {
		return Proposal{}, fmt.Errorf("%w: vote choice %q", ErrInvalidArgument, choice)
	}
	var ret Proposal
	err := ls.mutate(
		ctx,
		"vote",
		func(m *mutation) error {
			user := m.user(voter)
			if user == nil {
				return fmt.Errorf("%w: %s", ErrUserNotFound, voter)
			}
			current, ok := ls.proposals[id]
			if !ok {
				return fmt.Errorf("%w: %d", ErrProposalNotFound, id)
			}
			if !current.proposal.Active || current.proposal.Expired(m.now) {
				return fmt.Errorf("%w: %d", ErrProposalNotActive, id)
			}
			if _, ok := current.votes[voter]; ok {
				return fmt.Errorf("%w: %s on %d", ErrAlreadyVoted, voter, id)
			}
			prop := m.proposal(id)
			prop.votes[voter] = choice
			prop.proposal.Voters = append(prop.proposal.Voters, voter)
			switch choice {
			case VoteYes:
				prop.proposal.YesVotes++
			case VoteNo:
				prop.proposal.NoVotes++
			}
			m.votes = append(m.votes, &models.ProposalVote{
				CastAt:     m.now,
				Voter:      voter,
				Choice:     string(choice),
				ProposalID: id,
			})
			m.totals.votes++
			user.VotesCast++
			if err := m.credit(voter, ls.config.Policy.VotingReward, reasonVote); err != nil {
				return err
			}
			ret = prop.snapshot()
			m.publish(VoteCastEventType, VoteCastEvent{
				Voter:      voter,
				Choice:     choice,
				ProposalID: id,
				YesVotes:   prop.proposal.YesVotes,
				NoVotes:    prop.proposal.NoVotes,
			})
			return nil
		},
		attribute.String("identity", voter),
		attribute.Int64("proposal", int64(id)),
		attribute.String("choice", string(choice)),
	)
	if err != nil {
		return Proposal{}, err
	}
	return ret, nil
}

// CloseProposal stops a proposal from accepting votes. Closing a proposal
// that is already closed changes nothing and returns it as is
func (ls *LedgerState) CloseProposal(ctx context.Context, id uint64) (Proposal, error) {
	var ret Proposal
	err := ls.mutate(
		ctx,
		"close_proposal",
		func(m *mutation) error {
			current, ok := ls.proposals[id]
			if !ok {
				return fmt.Errorf("%w: %d", ErrProposalNotFound, id)
			}
			if !current.proposal.Active {
				ret = current.snapshot()
				return nil
			}
			prop := m.proposal(id)
			m.closeProposal(prop)
			ret = prop.snapshot()
			return nil
		},
		attribute.Int64("proposal", int64(id)),
	)
	if err != nil {
		return Proposal{}, err
	}
	return ret, nil
}

// CloseExpiredProposals closes every active proposal whose voting period
// has ended and returns them
func (ls *LedgerState) CloseExpiredProposals(ctx context.Context) ([]Proposal, error) {
	var ret []Proposal
	err := ls.mutate(
		ctx,
		"close_expired_proposals",
		func(m *mutation) error {
			for _, id := range slices.Sorted(maps.Keys(ls.proposals)) {
				if !ls.proposals[id].proposal.Expired(m.now) {
					continue
				}
				prop := m.proposal(id)
				m.closeProposal(prop)
				ret = append(ret, prop.snapshot())
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	if len(ret) > 0 {
		ls.logger.Info(
			"closed expired proposals",
			"count", len(ret),
		)
	}
	return ret, nil
}

func (m *mutation) closeProposal(prop *proposalState) {
	now := m.now
	prop.proposal.Active = false
	prop.proposal.ClosedAt = &now
	m.publish(ProposalClosedEventType, ProposalClosedEvent{Proposal: prop.snapshot()})
}

func (ls *LedgerState) GetProposal(id uint64) (Proposal, error) {
	ls.RLock()
	defer ls.RUnlock()
	prop, ok := ls.proposals[id]
	if !ok {
		return Proposal{}, fmt.Errorf("%w: %d", ErrProposalNotFound, id)
	}
	return prop.snapshot(), nil
}

// ListActiveProposals returns proposals still accepting votes, by ID
func (ls *LedgerState) ListActiveProposals() []Proposal {
	now := ls.config.Clock()
	return ls.listProposals(func(p *Proposal) bool {
		return p.Active && !p.Expired(now)
	})
}

// ListAllProposals returns every proposal, by ID
func (ls *LedgerState) ListAllProposals() []Proposal {
	return ls.listProposals(func(*Proposal) bool {
		return true
	})
}

func (ls *LedgerState) listProposals(filter func(*Proposal) bool) []Proposal {
	ls.RLock()
	ret := make([]Proposal, 0, len(ls.proposals))
	for _, prop := range ls.proposals {
		if filter(&prop.proposal) {
			ret = append(ret, prop.snapshot())
		}
	}
	ls.RUnlock()
	slices.SortFunc(ret, func(a, b Proposal) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return ret
}
