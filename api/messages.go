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

package api

import (
	"encoding/json"
	"time"

	"github.com/A-10-g/EcoChain-DAO/ledger"
)

const LedgerServiceName = "ecochain.v1.LedgerService"

const (
	RegisterProcedure           = "/" + LedgerServiceName + "/Register"
	GetUserInfoProcedure        = "/" + LedgerServiceName + "/GetUserInfo"
	GetUserBalanceProcedure     = "/" + LedgerServiceName + "/GetUserBalance"
	IsUserRegisteredProcedure   = "/" + LedgerServiceName + "/IsUserRegistered"
	ListUsersProcedure          = "/" + LedgerServiceName + "/ListUsers"
	TransferTokensProcedure     = "/" + LedgerServiceName + "/TransferTokens"
	SubmitDataProcedure         = "/" + LedgerServiceName + "/SubmitData"
	ValidateDataProcedure       = "/" + LedgerServiceName + "/ValidateData"
	RejectDataProcedure         = "/" + LedgerServiceName + "/RejectData"
	GetSubmissionProcedure      = "/" + LedgerServiceName + "/GetSubmission"
	GetUnvalidatedDataProcedure = "/" + LedgerServiceName + "/GetUnvalidatedData"
	CreateProposalProcedure     = "/" + LedgerServiceName + "/CreateProposal"
	VoteOnProposalProcedure     = "/" + LedgerServiceName + "/VoteOnProposal"
	GetProposalProcedure        = "/" + LedgerServiceName + "/GetProposal"
	GetActiveProposalsProcedure = "/" + LedgerServiceName + "/GetActiveProposals"
	GetAllProposalsProcedure    = "/" + LedgerServiceName + "/GetAllProposals"
	CloseProposalProcedure      = "/" + LedgerServiceName + "/CloseProposal"
	GetTotalSupplyProcedure     = "/" + LedgerServiceName + "/GetTotalSupply"
	GetSystemStatsProcedure     = "/" + LedgerServiceName + "/GetSystemStats"
	WatchEventsProcedure        = "/" + LedgerServiceName + "/WatchEvents"
)

type Empty struct{}

type RegisterRequest struct {
	Name string `json:"name,omitempty"`
}

// UserRequest names a user. An empty identity means the caller
type UserRequest struct {
	Identity string `json:"identity,omitempty"`
}

type UserResponse struct {
	User ledger.User `json:"user"`
}

type BalanceResponse struct {
	Identity string `json:"identity"`
	Balance  uint64 `json:"balance"`
}

type IsUserRegisteredResponse struct {
	Registered bool `json:"registered"`
}

type ListUsersResponse struct {
	Users []ledger.User `json:"users"`
}

type TransferTokensRequest struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type TransferTokensResponse struct {
	From ledger.User `json:"from"`
}

type SubmitDataRequest struct {
	Payload ledger.Payload `json:"payload"`
}

type SubmissionRequest struct {
	ID uint64 `json:"id"`
}

type SubmissionResponse struct {
	Submission ledger.Submission `json:"submission"`
}

type SubmissionsResponse struct {
	Submissions []ledger.Submission `json:"submissions"`
}

type CreateProposalRequest struct {
	Description string `json:"description"`
}

type VoteOnProposalRequest struct {
	Choice     string `json:"choice"`
	ProposalID uint64 `json:"proposalId"`
}

type ProposalRequest struct {
	ID uint64 `json:"id"`
}

type ProposalResponse struct {
	Proposal ledger.Proposal `json:"proposal"`
}

type ProposalsResponse struct {
	Proposals []ledger.Proposal `json:"proposals"`
}

type TotalSupplyResponse struct {
	TotalSupply uint64 `json:"totalSupply"`
}

type SystemStatsResponse struct {
	Stats map[string]uint64 `json:"stats"`
}

// WatchEventsRequest selects event types to stream. No types means all
// ledger events
type WatchEventsRequest struct {
	Types []string `json:"types,omitempty"`
}

type EventMessage struct {
	Timestamp time.Time       `json:"timestamp"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
}
