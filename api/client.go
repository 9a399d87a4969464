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
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/A-10-g/EcoChain-DAO/ledger"
)

// Client is a typed client for the ledger service. Ledger errors returned
// by the server can be matched against the ledger sentinels with errors.Is
type Client struct {
	register           *connect.Client[RegisterRequest, UserResponse]
	getUserInfo        *connect.Client[UserRequest, UserResponse]
	getUserBalance     *connect.Client[UserRequest, BalanceResponse]
	isUserRegistered   *connect.Client[UserRequest, IsUserRegisteredResponse]
	listUsers          *connect.Client[Empty, ListUsersResponse]
	transferTokens     *connect.Client[TransferTokensRequest, TransferTokensResponse]
	submitData         *connect.Client[SubmitDataRequest, SubmissionResponse]
	validateData       *connect.Client[SubmissionRequest, SubmissionResponse]
	rejectData         *connect.Client[SubmissionRequest, Empty]
	getSubmission      *connect.Client[SubmissionRequest, SubmissionResponse]
	getUnvalidatedData *connect.Client[Empty, SubmissionsResponse]
	createProposal     *connect.Client[CreateProposalRequest, ProposalResponse]
	voteOnProposal     *connect.Client[VoteOnProposalRequest, ProposalResponse]
	getProposal        *connect.Client[ProposalRequest, ProposalResponse]
	getActiveProposals *connect.Client[Empty, ProposalsResponse]
	getAllProposals    *connect.Client[Empty, ProposalsResponse]
	closeProposal      *connect.Client[ProposalRequest, ProposalResponse]
	getTotalSupply     *connect.Client[Empty, TotalSupplyResponse]
	getSystemStats     *connect.Client[Empty, SystemStatsResponse]
	watchEvents        *connect.Client[WatchEventsRequest, EventMessage]
}

type clientOptions struct {
	header http.Header
}

type ClientOptionFunc func(*clientOptions)

// WithIdentity sends identity in the identity header
func WithIdentity(identity string) ClientOptionFunc {
	return func(o *clientOptions) {
		o.header.Set(IdentityHeader, identity)
	}
}

// WithBearerToken sends a JWT in the Authorization header
func WithBearerToken(token string) ClientOptionFunc {
	return func(o *clientOptions) {
		o.header.Set("Authorization", "Bearer "+token)
	}
}

func NewClient(
	httpClient connect.HTTPClient,
	baseURL string,
	opts ...ClientOptionFunc,
) *Client {
	o := clientOptions{header: make(http.Header)}
	for _, opt := range opts {
		opt(&o)
	}
	baseURL = strings.TrimRight(baseURL, "/")
	clientOpts := []connect.ClientOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(&headerInterceptor{header: o.header}),
	}
	return &Client{
		register: connect.NewClient[RegisterRequest, UserResponse](
			httpClient,
			baseURL+RegisterProcedure,
			clientOpts...,
		),
		getUserInfo: connect.NewClient[UserRequest, UserResponse](
			httpClient,
			baseURL+GetUserInfoProcedure,
			clientOpts...,
		),
		getUserBalance: connect.NewClient[UserRequest, BalanceResponse](
			httpClient,
			baseURL+GetUserBalanceProcedure,
			clientOpts...,
		),
		isUserRegistered: connect.NewClient[UserRequest, IsUserRegisteredResponse](
			httpClient,
			baseURL+IsUserRegisteredProcedure,
			clientOpts...,
		),
		listUsers: connect.NewClient[Empty, ListUsersResponse](
			httpClient,
			baseURL+ListUsersProcedure,
			clientOpts...,
		),
		transferTokens: connect.NewClient[TransferTokensRequest, TransferTokensResponse](
			httpClient,
			baseURL+TransferTokensProcedure,
			clientOpts...,
		),
		submitData: connect.NewClient[SubmitDataRequest, SubmissionResponse](
			httpClient,
			baseURL+SubmitDataProcedure,
			clientOpts...,
		),
		validateData: connect.NewClient[SubmissionRequest, SubmissionResponse](
			httpClient,
			baseURL+ValidateDataProcedure,
			clientOpts...,
		),
		rejectData: connect.NewClient[SubmissionRequest, Empty](
			httpClient,
			baseURL+RejectDataProcedure,
			clientOpts...,
		),
		getSubmission: connect.NewClient[SubmissionRequest, SubmissionResponse](
			httpClient,
			baseURL+GetSubmissionProcedure,
			clientOpts...,
		),
		getUnvalidatedData: connect.NewClient[Empty, SubmissionsResponse](
			httpClient,
			baseURL+GetUnvalidatedDataProcedure,
			clientOpts...,
		),
		createProposal: connect.NewClient[CreateProposalRequest, ProposalResponse](
			httpClient,
			baseURL+CreateProposalProcedure,
			clientOpts...,
		),
		voteOnProposal: connect.NewClient[VoteOnProposalRequest, ProposalResponse](
			httpClient,
			baseURL+VoteOnProposalProcedure,
			clientOpts...,
		),
		getProposal: connect.NewClient[ProposalRequest, ProposalResponse](
			httpClient,
			baseURL+GetProposalProcedure,
			clientOpts...,
		),
		getActiveProposals: connect.NewClient[Empty, ProposalsResponse](
			httpClient,
			baseURL+GetActiveProposalsProcedure,
			clientOpts...,
		),
		getAllProposals: connect.NewClient[Empty, ProposalsResponse](
			httpClient,
			baseURL+GetAllProposalsProcedure,
			clientOpts...,
		),
		closeProposal: connect.NewClient[ProposalRequest, ProposalResponse](
			httpClient,
			baseURL+CloseProposalProcedure,
			clientOpts...,
		),
		getTotalSupply: connect.NewClient[Empty, TotalSupplyResponse](
			httpClient,
			baseURL+GetTotalSupplyProcedure,
			clientOpts...,
		),
		getSystemStats: connect.NewClient[Empty, SystemStatsResponse](
			httpClient,
			baseURL+GetSystemStatsProcedure,
			clientOpts...,
		),
		watchEvents: connect.NewClient[WatchEventsRequest, EventMessage](
			httpClient,
			baseURL+WatchEventsProcedure,
			clientOpts...,
		),
	}
}

func call[Req, Res any](
	ctx context.Context,
	client *connect.Client[Req, Res],
	req *Req,
) (*Res, error) {
	res, err := client.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return res.Msg, nil
}

func (c *Client) Register(ctx context.Context, name string) (ledger.User, error) {
	res, err := call(ctx, c.register, &RegisterRequest{Name: name})
	if err != nil {
		return ledger.User{}, err
	}
	return res.User, nil
}

// GetUserInfo looks up identity, or the caller when identity is empty
func (c *Client) GetUserInfo(ctx context.Context, identity string) (ledger.User, error) {
	res, err := call(ctx, c.getUserInfo, &UserRequest{Identity: identity})
	if err != nil {
		return ledger.User{}, err
	}
	return res.User, nil
}

func (c *Client) GetUserBalance(ctx context.Context, identity string) (uint64, error) {
	res, err := call(ctx, c.getUserBalance, &UserRequest{Identity: identity})
	if err != nil {
		return 0, err
	}
	return res.Balance, nil
}

func (c *Client) IsUserRegistered(ctx context.Context, identity string) (bool, error) {
	res, err := call(ctx, c.isUserRegistered, &UserRequest{Identity: identity})
	if err != nil {
		return false, err
	}
	return res.Registered, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]ledger.User, error) {
	res, err := call(ctx, c.listUsers, &Empty{})
	if err != nil {
		return nil, err
	}
	return res.Users, nil
}

// TransferTokens moves amount from the caller to to and returns the caller
func (c *Client) TransferTokens(
	ctx context.Context,
	to string,
	amount uint64,
) (ledger.User, error) {
	res, err := call(ctx, c.transferTokens, &TransferTokensRequest{To: to, Amount: amount})
	if err != nil {
		return ledger.User{}, err
	}
	return res.From, nil
}

func (c *Client) SubmitData(
	ctx context.Context,
	payload ledger.Payload,
) (ledger.Submission, error) {
	res, err := call(ctx, c.submitData, &SubmitDataRequest{Payload: payload})
	if err != nil {
		return ledger.Submission{}, err
	}
	return res.Submission, nil
}

func (c *Client) ValidateData(ctx context.Context, id uint64) (ledger.Submission, error) {
	res, err := call(ctx, c.validateData, &SubmissionRequest{ID: id})
	if err != nil {
		return ledger.Submission{}, err
	}
	return res.Submission, nil
}

func (c *Client) RejectData(ctx context.Context, id uint64) error {
	_, err := call(ctx, c.rejectData, &SubmissionRequest{ID: id})
	return err
}

func (c *Client) GetSubmission(ctx context.Context, id uint64) (ledger.Submission, error) {
	res, err := call(ctx, c.getSubmission, &SubmissionRequest{ID: id})
	if err != nil {
		return ledger.Submission{}, err
	}
	return res.Submission, nil
}

func (c *Client) GetUnvalidatedData(ctx context.Context) ([]ledger.Submission, error) {
	res, err := call(ctx, c.getUnvalidatedData, &Empty{})
	if err != nil {
		return nil, err
	}
	return res.Submissions, nil
}

func (c *Client) CreateProposal(
	ctx context.Context,
	description string,
) (ledger.Proposal, error) {
	res, err := call(ctx, c.createProposal, &CreateProposalRequest{Description: description})
	if err != nil {
		return ledger.Proposal{}, err
	}
	return res.Proposal, nil
}

func (c *Client) VoteOnProposal(
	ctx context.Context,
	id uint64,
	choice ledger.VoteChoice,
) (ledger.Proposal, error) {
	res, err := call(
		ctx,
		c.voteOnProposal,
		&VoteOnProposalRequest{ProposalID: id, Choice: string(choice)},
	)
	if err != nil {
		return ledger.Proposal{}, err
	}
	return res.Proposal, nil
}

func (c *Client) GetProposal(ctx context.Context, id uint64) (ledger.Proposal, error) {
	res, err := call(ctx, c.getProposal, &ProposalRequest{ID: id})
	if err != nil {
		return ledger.Proposal{}, err
	}
	return res.Proposal, nil
}

func (c *Client) GetActiveProposals(ctx context.Context) ([]ledger.Proposal, error) {
	res, err := call(ctx, c.getActiveProposals, &Empty{})
	if err != nil {
		return nil, err
	}
	return res.Proposals, nil
}

func (c *Client) GetAllProposals(ctx context.Context) ([]ledger.Proposal, error) {
	res, err := call(ctx, c.getAllProposals, &Empty{})
	if err != nil {
		return nil, err
	}
	return res.Proposals, nil
}

func (c *Client) CloseProposal(ctx context.Context, id uint64) (ledger.Proposal, error) {
	res, err := call(ctx, c.closeProposal, &ProposalRequest{ID: id})
	if err != nil {
		return ledger.Proposal{}, err
	}
	return res.Proposal, nil
}

func (c *Client) GetTotalSupply(ctx context.Context) (uint64, error) {
	res, err := call(ctx, c.getTotalSupply, &Empty{})
	if err != nil {
		return 0, err
	}
	return res.TotalSupply, nil
}

func (c *Client) GetSystemStats(ctx context.Context) (map[string]uint64, error) {
	res, err := call(ctx, c.getSystemStats, &Empty{})
	if err != nil {
		return nil, err
	}
	return res.Stats, nil
}

// WatchEvents opens an event stream. The caller must Close the stream
func (c *Client) WatchEvents(
	ctx context.Context,
	types ...string,
) (*connect.ServerStreamForClient[EventMessage], error) {
	stream, err := c.watchEvents.CallServerStream(
		ctx,
		connect.NewRequest(&WatchEventsRequest{Types: types}),
	)
	if err != nil {
		return nil, fromConnectError(err)
	}
	return stream, nil
}

type headerInterceptor struct {
	header http.Header
}

func (h *headerInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(
		ctx context.Context,
		req connect.AnyRequest,
	) (connect.AnyResponse, error) {
		for k, v := range h.header {
			req.Header()[k] = v
		}
		return next(ctx, req)
	}
}

func (h *headerInterceptor) WrapStreamingClient(
	next connect.StreamingClientFunc,
) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		for k, v := range h.header {
			conn.RequestHeader()[k] = v
		}
		return conn
	}
}

func (h *headerInterceptor) WrapStreamingHandler(
	next connect.StreamingHandlerFunc,
) connect.StreamingHandlerFunc {
	return next
}
