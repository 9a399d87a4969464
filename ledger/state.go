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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/A-10-g/EcoChain-DAO/database"
	"github.com/A-10-g/EcoChain-DAO/database/models"
	"github.com/A-10-g/EcoChain-DAO/database/types"
	"github.com/A-10-g/EcoChain-DAO/event"
)

// ErrStateInconsistent is returned at startup when the stored ledger fails
// its consistency checks
var ErrStateInconsistent = errors.New("ledger state inconsistent")

type LedgerStateConfig struct {
	Logger         *slog.Logger
	EventBus       *event.EventBus
	PromRegistry   prometheus.Registerer
	Clock          func() time.Time
	DataDir        string
	BlobPlugin     string
	MetadataPlugin string
	MetadataDsn    string
	Policy         Policy
}

// ledgerTotals holds the running counters stored in the ledger state row
type ledgerTotals struct {
	journal          database.JournalHead
	supply           uint64
	issued           uint64
	burned           uint64
	nextSubmissionID uint64
	nextProposalID   uint64
	rejected         uint64
	votes            uint64
}

// LedgerState is the authoritative ledger. All mutations are serialized
// through a single writer slot and persisted before they become visible.
// Readers take the embedded read lock and copy what they return
type LedgerState struct {
	sync.RWMutex
	config      LedgerStateConfig
	logger      *slog.Logger
	db          *database.Database
	writer      *semaphore.Weighted
	tracer      trace.Tracer
	metrics     stateMetrics
	users       map[string]*User
	submissions map[uint64]*Submission
	proposals   map[uint64]*proposalState
	totals      ledgerTotals
	closeOnce   sync.Once
	closeErr    error
	// writeErr disables writes after a partial commit that could not be
	// rolled back. Guarded by the writer slot
	writeErr error
	ownsBus  bool
}

func NewLedgerState(cfg LedgerStateConfig) (*LedgerState, error) {
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	ownsEventBus := false
	if cfg.EventBus == nil {
		cfg.EventBus = event.NewEventBus(nil, cfg.Logger)
		ownsEventBus = true
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.Policy.LockTimeout <= 0 {
		cfg.Policy.LockTimeout = DefaultLockTimeout
	}
	ls := &LedgerState{
		config:      cfg,
		logger:      cfg.Logger.With("component", "ledger"),
		writer:      semaphore.NewWeighted(1),
		tracer:      otel.Tracer("github.com/A-10-g/EcoChain-DAO/ledger"),
		users:       make(map[string]*User),
		submissions: make(map[uint64]*Submission),
		proposals:   make(map[uint64]*proposalState),
		ownsBus:     ownsEventBus,
	}
	// Init metrics
	ls.metrics.init(cfg.PromRegistry, ls)
	// Load database
	needsRecovery := false
	db, err := database.New(&database.Config{
		Logger:         cfg.Logger,
		PromRegistry:   cfg.PromRegistry,
		DataDir:        cfg.DataDir,
		BlobPlugin:     cfg.BlobPlugin,
		MetadataPlugin: cfg.MetadataPlugin,
		MetadataDsn:    cfg.MetadataDsn,
	})
	if db == nil {
		ls.stopEventBus()
		return nil, fmt.Errorf("open database: %w", err)
	}
	ls.db = db
	if err != nil {
		var dbErr database.CommitTimestampError
		if !errors.As(err, &dbErr) {
			_ = db.Close()
			ls.stopEventBus()
			return nil, err
		}
		ls.logger.Warn(
			"database initialization error, needs recovery",
			"error", err,
		)
		needsRecovery = true
	}
	if err := ls.load(needsRecovery); err != nil {
		_ = db.Close()
		ls.stopEventBus()
		return nil, err
	}
	ls.logger.Info(
		"loaded ledger",
		"users", len(ls.users),
		"submissions", len(ls.submissions),
		"proposals", len(ls.proposals),
		"total_supply", ls.totals.supply,
		"journal_seq", ls.totals.journal.Seq,
	)
	return ls, nil
}

// load reads the persisted ledger into memory and checks it for consistency
func (ls *LedgerState) load(needsRecovery bool) error {
	meta := ls.db.Metadata()
	row, err := meta.GetLedgerState(nil)
	if err != nil {
		return fmt.Errorf("load ledger state: %w", err)
	}
	recorded := database.JournalHead{Seq: row.JournalSeq, Hash: row.JournalHead}
	if needsRecovery {
		if err := ls.db.RecoverJournal(recorded); err != nil {
			return fmt.Errorf("failed to recover database: %w", err)
		}
	}
	head, err := ls.db.GetJournalHead(nil)
	if err != nil {
		return fmt.Errorf("load journal head: %w", err)
	}
	if head.Seq != recorded.Seq || !bytes.Equal(head.Hash, recorded.Hash) {
		return fmt.Errorf(
			"%w: journal head %d does not match recorded head %d",
			ErrStateInconsistent,
			head.Seq,
			recorded.Seq,
		)
	}
	ls.totals = ledgerTotals{
		journal:          head,
		supply:           uint64(row.TotalSupply),
		issued:           uint64(row.TotalIssued),
		burned:           uint64(row.TotalBurned),
		nextSubmissionID: max(row.NextSubmissionID, 1),
		nextProposalID:   max(row.NextProposalID, 1),
		rejected:         row.RejectedSubmissions,
	}
	users, err := meta.GetUsers(nil)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	var balances uint64
	for i := range users {
		user := userFromModel(&users[i])
		ls.users[user.Identity] = user
		balances += user.Balance
	}
	if balances != ls.totals.supply {
		return fmt.Errorf(
			"%w: total supply %d does not match balance sum %d",
			ErrStateInconsistent,
			ls.totals.supply,
			balances,
		)
	}
	submissions, err := meta.GetSubmissions(nil)
	if err != nil {
		return fmt.Errorf("load submissions: %w", err)
	}
	for i := range submissions {
		sub := submissionFromModel(&submissions[i])
		ls.submissions[sub.ID] = sub
	}
	proposals, err := meta.GetProposals(nil)
	if err != nil {
		return fmt.Errorf("load proposals: %w", err)
	}
	for i := range proposals {
		ls.proposals[proposals[i].ID] = &proposalState{
			proposal: proposalFromModel(&proposals[i]),
			votes:    make(map[string]VoteChoice),
		}
	}
	votes, err := meta.GetProposalVotes(nil)
	if err != nil {
		return fmt.Errorf("load votes: %w", err)
	}
	for _, vote := range votes {
		prop, ok := ls.proposals[vote.ProposalID]
		if !ok {
			return fmt.Errorf(
				"%w: vote by %s references unknown proposal %d",
				ErrStateInconsistent,
				vote.Voter,
				vote.ProposalID,
			)
		}
		prop.votes[vote.Voter] = VoteChoice(vote.Choice)
		prop.proposal.Voters = append(prop.proposal.Voters, vote.Voter)
		ls.totals.votes++
	}
	for id, prop := range ls.proposals {
		if prop.proposal.YesVotes+prop.proposal.NoVotes != uint64(len(prop.votes)) {
			return fmt.Errorf(
				"%w: proposal %d tallies do not match its %d voters",
				ErrStateInconsistent,
				id,
				len(prop.votes),
			)
		}
	}
	return nil
}

// Database returns the underlying storage
func (ls *LedgerState) Database() *database.Database {
	return ls.db
}

// Policy returns the policy in effect
func (ls *LedgerState) Policy() Policy {
	return ls.config.Policy
}

// EventBus returns the bus ledger events are published on
func (ls *LedgerState) EventBus() *event.EventBus {
	return ls.config.EventBus
}

// Close waits for any in-flight mutation and closes the database
func (ls *LedgerState) Close() error {
	ls.closeOnce.Do(func() {
		// Keep the writer slot so that nothing else can start
		_ = ls.writer.Acquire(context.Background(), 1)
		ls.closeErr = ls.db.Close()
		ls.stopEventBus()
	})
	return ls.closeErr
}

// stopEventBus stops the bus if the ledger created it
func (ls *LedgerState) stopEventBus() {
	if ls.ownsBus {
		ls.config.EventBus.Stop()
	}
}

func userFromModel(m *models.User) *User {
	return &User{
		RegisteredAt:     m.RegisteredAt,
		Identity:         m.Identity,
		Name:             m.Name,
		Balance:          uint64(m.Balance),
		ProposalsCreated: m.ProposalsCreated,
		VotesCast:        m.VotesCast,
		DataSubmissions:  m.DataSubmissions,
	}
}

func userToModel(u *User) *models.User {
	return &models.User{
		RegisteredAt:     u.RegisteredAt,
		Identity:         u.Identity,
		Name:             u.Name,
		Balance:          types.Uint64(u.Balance),
		ProposalsCreated: u.ProposalsCreated,
		VotesCast:        u.VotesCast,
		DataSubmissions:  u.DataSubmissions,
	}
}

func submissionFromModel(m *models.Submission) *Submission {
	return &Submission{
		SubmittedAt: m.SubmittedAt,
		ValidatedAt: m.ValidatedAt,
		Submitter:   m.Submitter,
		Validator:   m.Validator,
		ID:          m.ID,
		Validated:   m.Validated,
		Payload: Payload{
			Metadata:   m.Metadata,
			Value:      m.Value,
			Latitude:   m.Latitude,
			Longitude:  m.Longitude,
			MeasuredAt: m.MeasuredAt,
			Data:       m.Data,
			Type:       m.DataType,
			Unit:       m.Unit,
			Location:   m.Location,
			DeviceID:   m.DeviceID,
		},
	}
}

func submissionToModel(s *Submission) *models.Submission {
	return &models.Submission{
		SubmittedAt: s.SubmittedAt,
		Metadata:    s.Payload.Metadata,
		Value:       s.Payload.Value,
		Latitude:    s.Payload.Latitude,
		Longitude:   s.Payload.Longitude,
		MeasuredAt:  s.Payload.MeasuredAt,
		ValidatedAt: s.ValidatedAt,
		Submitter:   s.Submitter,
		Validator:   s.Validator,
		Data:        s.Payload.Data,
		DataType:    s.Payload.Type,
		Unit:        s.Payload.Unit,
		Location:    s.Payload.Location,
		DeviceID:    s.Payload.DeviceID,
		ID:          s.ID,
		Validated:   s.Validated,
	}
}

func proposalFromModel(m *models.Proposal) Proposal {
	return Proposal{
		CreatedAt:   m.CreatedAt,
		ExpiresAt:   m.ExpiresAt,
		ClosedAt:    m.ClosedAt,
		Creator:     m.Creator,
		Description: m.Description,
		ID:          m.ID,
		YesVotes:    m.YesVotes,
		NoVotes:     m.NoVotes,
		Active:      m.Active,
	}
}

func proposalToModel(p *Proposal) *models.Proposal {
	return &models.Proposal{
		CreatedAt:   p.CreatedAt,
		ExpiresAt:   p.ExpiresAt,
		ClosedAt:    p.ClosedAt,
		Creator:     p.Creator,
		Description: p.Description,
		ID:          p.ID,
		YesVotes:    p.YesVotes,
		NoVotes:     p.NoVotes,
		Active:      p.Active,
	}
}
