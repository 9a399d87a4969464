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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"connectrpc.com/connect"

	"github.com/A-10-g/EcoChain-DAO/event"
	"github.com/A-10-g/EcoChain-DAO/ledger"
)

// ledgerServiceServer implements the LedgerService API
type ledgerServiceServer struct {
	api *Api
}

func (s *ledgerServiceServer) register(
	mux *http.ServeMux,
	opts ...connect.HandlerOption,
) {
	handleUnary(mux, RegisterProcedure, s.Register, opts...)
	handleUnary(mux, GetUserInfoProcedure, s.GetUserInfo, opts...)
	handleUnary(mux, GetUserBalanceProcedure, s.GetUserBalance, opts...)
	handleUnary(mux, IsUserRegisteredProcedure, s.IsUserRegistered, opts...)
	handleUnary(mux, ListUsersProcedure, s.ListUsers, opts...)
	handleUnary(mux, TransferTokensProcedure, s.TransferTokens, opts...)
	handleUnary(mux, SubmitDataProcedure, s.SubmitData, opts...)
	handleUnary(mux, ValidateDataProcedure, s.ValidateData, opts...)
	handleUnary(mux, RejectDataProcedure, s.RejectData, opts...)
	handleUnary(mux, GetSubmissionProcedure, s.GetSubmission, opts...)
	handleUnary(mux, GetUnvalidatedDataProcedure, s.GetUnvalidatedData, opts...)
	handleUnary(mux, CreateProposalProcedure, s.CreateProposal, opts...)
	handleUnary(mux, VoteOnProposalProcedure, s.VoteOnProposal, opts...)
	handleUnary(mux, GetProposalProcedure, s.GetProposal, opts...)
	handleUnary(mux, GetActiveProposalsProcedure, s.GetActiveProposals, opts...)
	handleUnary(mux, GetAllProposalsProcedure, s.GetAllProposals, opts...)
	handleUnary(mux, CloseProposalProcedure, s.CloseProposal, opts...)
	handleUnary(mux, GetTotalSupplyProcedure, s.GetTotalSupply, opts...)
	handleUnary(mux, GetSystemStatsProcedure, s.GetSystemStats, opts...)
	mux.Handle(
		WatchEventsProcedure,
		connect.NewServerStreamHandler(
			WatchEventsProcedure,
			s.WatchEvents,
			opts...,
		),
	)
}

func handleUnary[Req, Res any](
	mux *http.ServeMux,
	procedure string,
	fn func(context.Context, *Req) (*Res, error),
	opts ...connect.HandlerOption,
) {
	mux.Handle(
		procedure,
		connect.NewUnaryHandler(
			procedure,
			func(
				ctx context.Context,
				req *connect.Request[Req],
			) (*connect.Response[Res], error) {
				res, err := fn(ctx, req.Msg)
				if err != nil {
					return nil, toConnectError(err)
				}
				return connect.NewResponse(res), nil
			},
			opts...,
		),
	)
}

func (s *ledgerServiceServer) ledger() *ledger.LedgerState {
	return s.api.config.LedgerState
}

// Register registers the caller. When authentication is off and no
// identity is supplied, the ledger assigns one
func (s *ledgerServiceServer) Register(
	ctx context.Context,
	req *RegisterRequest,
) (*UserResponse, error) {
	identity := CallerFromContext(ctx)
	if s.api.config.JwtSecret != "" {
		var err error
		if identity, err = requireCaller(ctx); err != nil {
			return nil, err
		}
	}
	user, err := s.ledger().Register(ctx, identity, req.Name)
	if err != nil {
		return nil, err
	}
	return &UserResponse{User: user}, nil
}

func targetIdentity(ctx context.Context, identity string) (string, error) {
	if identity != "" {
		return identity, nil
	}
	return requireCaller(ctx)
}

func (s *ledgerServiceServer) GetUserInfo(
	ctx context.Context,
	req *UserRequest,
) (*UserResponse, error) {
	identity, err := targetIdentity(ctx, req.Identity)
	if err != nil {
		return nil, err
	}
	user, err := s.ledger().LookupUser(identity)
	if err != nil {
		return nil, err
	}
	return &UserResponse{User: user}, nil
}

func (s *ledgerServiceServer) GetUserBalance(
	ctx context.Context,
	req *UserRequest,
) (*BalanceResponse, error) {
	identity, err := targetIdentity(ctx, req.Identity)
	if err != nil {
		return nil, err
	}
	balance, err := s.ledger().Balance(identity)
	if err != nil {
		return nil, err
	}
	return &BalanceResponse{Identity: identity, Balance: balance}, nil
}

func (s *ledgerServiceServer) IsUserRegistered(
	ctx context.Context,
	req *UserRequest,
) (*IsUserRegisteredResponse, error) {
	identity, err := targetIdentity(ctx, req.Identity)
	if err != nil {
		return nil, err
	}
	return &IsUserRegisteredResponse{
		Registered: s.ledger().IsUserRegistered(identity),
	}, nil
}

func (s *ledgerServiceServer) ListUsers(
	context.Context,
	*Empty,
) (*ListUsersResponse, error) {
	return &ListUsersResponse{Users: s.ledger().ListUsers()}, nil
}

func (s *ledgerServiceServer) TransferTokens(
	ctx context.Context,
	req *TransferTokensRequest,
) (*TransferTokensResponse, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.ledger().Transfer(ctx, caller, req.To, req.Amount); err != nil {
		return nil, err
	}
	user, err := s.ledger().LookupUser(caller)
	if err != nil {
		return nil, err
	}
	return &TransferTokensResponse{From: user}, nil
}

func (s *ledgerServiceServer) SubmitData(
	ctx context.Context,
	req *SubmitDataRequest,
) (*SubmissionResponse, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := s.ledger().SubmitData(ctx, caller, req.Payload)
	if err != nil {
		return nil, err
	}
	return &SubmissionResponse{Submission: sub}, nil
}

func (s *ledgerServiceServer) ValidateData(
	ctx context.Context,
	req *SubmissionRequest,
) (*SubmissionResponse, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := s.ledger().ValidateData(ctx, caller, req.ID)
	if err != nil {
		return nil, err
	}
	return &SubmissionResponse{Submission: sub}, nil
}

func (s *ledgerServiceServer) RejectData(
	ctx context.Context,
	req *SubmissionRequest,
) (*Empty, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.ledger().RejectData(ctx, caller, req.ID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *ledgerServiceServer) GetSubmission(
	_ context.Context,
	req *SubmissionRequest,
) (*SubmissionResponse, error) {
	sub, err := s.ledger().GetSubmission(req.ID)
	if err != nil {
		return nil, err
	}
	return &SubmissionResponse{Submission: sub}, nil
}

func (s *ledgerServiceServer) GetUnvalidatedData(
	context.Context,
	*Empty,
) (*SubmissionsResponse, error) {
	return &SubmissionsResponse{Submissions: s.ledger().ListUnvalidated()}, nil
}

func (s *ledgerServiceServer) CreateProposal(
	ctx context.Context,
	req *CreateProposalRequest,
) (*ProposalResponse, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	prop, err := s.ledger().CreateProposal(ctx, caller, req.Description)
	if err != nil {
		return nil, err
	}
	return &ProposalResponse{Proposal: prop}, nil
}

func (s *ledgerServiceServer) VoteOnProposal(
	ctx context.Context,
	req *VoteOnProposalRequest,
) (*ProposalResponse, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	choice, err := ledger.ParseVoteChoice(req.Choice)
	if err != nil {
		return nil, err
	}
	prop, err := s.ledger().Vote(ctx, caller, req.ProposalID, choice)
	if err != nil {
		return nil, err
	}
	return &ProposalResponse{Proposal: prop}, nil
}

func (s *ledgerServiceServer) GetProposal(
	_ context.Context,
	req *ProposalRequest,
) (*ProposalResponse, error) {
	prop, err := s.ledger().GetProposal(req.ID)
	if err != nil {
		return nil, err
	}
	return &ProposalResponse{Proposal: prop}, nil
}

func (s *ledgerServiceServer) GetActiveProposals(
	context.Context,
	*Empty,
) (*ProposalsResponse, error) {
	return &ProposalsResponse{Proposals: s.ledger().ListActiveProposals()}, nil
}

func (s *ledgerServiceServer) GetAllProposals(
	context.Context,
	*Empty,
) (*ProposalsResponse, error) {
	return &ProposalsResponse{Proposals: s.ledger().ListAllProposals()}, nil
}

// CloseProposal is restricted to the configured admin identities
func (s *ledgerServiceServer) CloseProposal(
	ctx context.Context,
	req *ProposalRequest,
) (*ProposalResponse, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if !s.api.isAdmin(caller) {
		return nil, connect.NewError(
			connect.CodePermissionDenied,
			fmt.Errorf("%s may not close proposals", caller),
		)
	}
	prop, err := s.ledger().CloseProposal(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	s.api.config.Logger.Info(
		"closed proposal",
		"proposal", prop.ID,
		"caller", caller,
	)
	return &ProposalResponse{Proposal: prop}, nil
}

func (s *ledgerServiceServer) GetTotalSupply(
	context.Context,
	*Empty,
) (*TotalSupplyResponse, error) {
	return &TotalSupplyResponse{TotalSupply: s.ledger().TotalSupply()}, nil
}

func (s *ledgerServiceServer) GetSystemStats(
	context.Context,
	*Empty,
) (*SystemStatsResponse, error) {
	return &SystemStatsResponse{Stats: s.ledger().SystemStats()}, nil
}

// WatchEvents streams ledger events committed after the call starts
func (s *ledgerServiceServer) WatchEvents(
	ctx context.Context,
	req *connect.Request[WatchEventsRequest],
	stream *connect.ServerStream[EventMessage],
) error {
	eventBus := s.api.config.EventBus
	if eventBus == nil {
		return connect.NewError(
			connect.CodeUnavailable,
			errors.New("event bus not configured"),
		)
	}
	wanted := req.Msg.Types
	subId, evtCh := eventBus.Subscribe(event.AllEventsType)
	defer eventBus.Unsubscribe(event.AllEventsType, subId)
	s.api.config.Logger.Debug(
		"event stream opened",
		"caller", CallerFromContext(ctx),
		"types", wanted,
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.api.closing:
			return nil
		case evt, ok := <-evtCh:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return connect.NewError(
					connect.CodeResourceExhausted,
					errors.New("event stream fell behind"),
				)
			}
			evtType := string(evt.Type)
			if !strings.HasPrefix(evtType, "ledger.") {
				continue
			}
			if len(wanted) > 0 && !slices.Contains(wanted, evtType) {
				continue
			}
			data, err := json.Marshal(evt.Data)
			if err != nil {
				return toConnectError(err)
			}
			msg := &EventMessage{
				Timestamp: evt.Timestamp,
				Type:      evtType,
				Data:      data,
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}
