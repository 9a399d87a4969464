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
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

const (
	DefaultRegistrationGrant  = 1000
	DefaultSubmissionReward   = 50
	DefaultValidationReward   = 25
	DefaultVotingReward       = 10
	DefaultMinProposalBalance = 1000
	DefaultMaxSupply          = 100_000_000
	DefaultLockTimeout        = 5 * time.Second

	MaxNameLength     = 64
	MaxIdentityLength = 128
)

// Policy holds the reward amounts and limits applied by the ledger
type Policy struct {
	RegistrationGrant  uint64
	SubmissionReward   uint64
	ValidationReward   uint64
	RejectionReward    uint64
	VotingReward       uint64
	ProposalReward     uint64
	MinProposalBalance uint64
	// MaxSupply caps the total supply. Zero means no cap
	MaxSupply uint64
	// VotingPeriod is how long a proposal accepts votes. Zero means no limit
	VotingPeriod time.Duration
	// LockTimeout bounds the wait for exclusive access to the ledger
	LockTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		RegistrationGrant:  DefaultRegistrationGrant,
		SubmissionReward:   DefaultSubmissionReward,
		ValidationReward:   DefaultValidationReward,
		VotingReward:       DefaultVotingReward,
		MinProposalBalance: DefaultMinProposalBalance,
		MaxSupply:          DefaultMaxSupply,
		LockTimeout:        DefaultLockTimeout,
	}
}

type User struct {
	RegisteredAt     time.Time `json:"registeredAt"`
	Identity         string    `json:"identity"`
	Name             string    `json:"name,omitempty"`
	Balance          uint64    `json:"balance"`
	ProposalsCreated uint64    `json:"proposalsCreated"`
	VotesCast        uint64    `json:"votesCast"`
	DataSubmissions  uint64    `json:"dataSubmissions"`
}

// Payload is the observation carried by a submission. Only Data is
// required; everything else is stored as given
type Payload struct {
	Metadata   map[string]string `json:"metadata,omitempty"`
	Value      *float64          `json:"value,omitempty"`
	Latitude   *float64          `json:"latitude,omitempty"`
	Longitude  *float64          `json:"longitude,omitempty"`
	MeasuredAt *time.Time        `json:"measuredAt,omitempty"`
	Data       string            `json:"data"`
	Type       string            `json:"type,omitempty"`
	Unit       string            `json:"unit,omitempty"`
	Location   string            `json:"location,omitempty"`
	DeviceID   string            `json:"deviceId,omitempty"`
}

func (p Payload) clone() Payload {
	ret := p
	if p.Metadata != nil {
		ret.Metadata = maps.Clone(p.Metadata)
	}
	ret.Value = clonePtr(p.Value)
	ret.Latitude = clonePtr(p.Latitude)
	ret.Longitude = clonePtr(p.Longitude)
	ret.MeasuredAt = clonePtr(p.MeasuredAt)
	return ret
}

type Submission struct {
	SubmittedAt time.Time  `json:"submittedAt"`
	ValidatedAt *time.Time `json:"validatedAt,omitempty"`
	Submitter   string     `json:"submitter"`
	Validator   string     `json:"validator,omitempty"`
	Payload     Payload    `json:"payload"`
	ID          uint64     `json:"id"`
	Validated   bool       `json:"validated"`
}

func (s *Submission) clone() *Submission {
	ret := *s
	ret.Payload = s.Payload.clone()
	ret.ValidatedAt = clonePtr(s.ValidatedAt)
	return &ret
}

type VoteChoice string

const (
	VoteYes VoteChoice = "yes"
	VoteNo  VoteChoice = "no"
)

// ParseVoteChoice accepts "yes" or "no" in any case
func ParseVoteChoice(s string) (VoteChoice, error) {
	switch VoteChoice(strings.ToLower(strings.TrimSpace(s))) {
	case VoteYes:
		return VoteYes, nil
	case VoteNo:
		return VoteNo, nil
	default:
		return "", fmt.Errorf("%w: vote choice %q", ErrInvalidArgument, s)
	}
}

type Proposal struct {
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
	Creator     string     `json:"creator"`
	Description string     `json:"description"`
	// Voters lists identities in the order their votes were cast
	Voters   []string `json:"voters"`
	ID       uint64   `json:"id"`
	YesVotes uint64   `json:"yesVotes"`
	NoVotes  uint64   `json:"noVotes"`
	Active   bool     `json:"active"`
}

// Expired reports whether the voting period of an active proposal has
// passed at now
func (p *Proposal) Expired(now time.Time) bool {
	return p.Active && p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// HasVoted reports whether identity has voted on the proposal
func (p *Proposal) HasVoted(identity string) bool {
	return slices.Contains(p.Voters, identity)
}

// proposalState is the in-memory record of a proposal with its voter index
type proposalState struct {
	proposal Proposal
	votes    map[string]VoteChoice
}

func (p *proposalState) clone() *proposalState {
	ret := &proposalState{
		proposal: p.proposal,
		votes:    maps.Clone(p.votes),
	}
	ret.proposal.Voters = slices.Clone(p.proposal.Voters)
	ret.proposal.ExpiresAt = clonePtr(p.proposal.ExpiresAt)
	ret.proposal.ClosedAt = clonePtr(p.proposal.ClosedAt)
	return ret
}

// snapshot returns a copy safe to hand to callers
func (p *proposalState) snapshot() Proposal {
	return p.clone().proposal
}

var defaultUnits = map[string]string{
	"air_quality":     "AQI",
	"water_quality":   "pH",
	"soil_analysis":   "%",
	"weather":         "°C",
	"noise_pollution": "dB",
	"biodiversity":    "count",
}

// DefaultUnit returns the customary unit for a known observation type
func DefaultUnit(dataType string) (string, bool) {
	unit, ok := defaultUnits[dataType]
	return unit, ok
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
