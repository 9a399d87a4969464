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
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/A-10-g/EcoChain-DAO/database"
	"github.com/A-10-g/EcoChain-DAO/database/models"
	"github.com/A-10-g/EcoChain-DAO/database/types"
	"github.com/A-10-g/EcoChain-DAO/event"
)

// mutation stages the changes of a single ledger operation. Records are
// copied on first touch so the installed state is never modified in place
type mutation struct {
	ls          *LedgerState
	now         time.Time
	users       map[string]*User
	submissions map[uint64]*Submission
	deleted     []uint64
	proposals   map[uint64]*proposalState
	votes       []*models.ProposalVote
	journal     []*models.JournalEntry
	events      []event.Event
	totals      ledgerTotals
}

func (ls *LedgerState) newMutation() *mutation {
	return &mutation{
		ls:          ls,
		now:         ls.config.Clock(),
		users:       make(map[string]*User),
		submissions: make(map[uint64]*Submission),
		proposals:   make(map[uint64]*proposalState),
		totals:      ls.totals,
	}
}

func (m *mutation) empty() bool {
	return len(m.users) == 0 &&
		len(m.submissions) == 0 &&
		len(m.deleted) == 0 &&
		len(m.proposals) == 0 &&
		len(m.votes) == 0 &&
		len(m.journal) == 0
}

// user returns the staged copy of a user, or nil if the identity is unknown
func (m *mutation) user(identity string) *User {
	if u, ok := m.users[identity]; ok {
		return u
	}
	u, ok := m.ls.users[identity]
	if !ok {
		return nil
	}
	tmpUser := *u
	m.users[identity] = &tmpUser
	return &tmpUser
}

func (m *mutation) addUser(u *User) {
	m.users[u.Identity] = u
}

func (m *mutation) submission(id uint64) *Submission {
	if s, ok := m.submissions[id]; ok {
		return s
	}
	s, ok := m.ls.submissions[id]
	if !ok {
		return nil
	}
	tmpSub := s.clone()
	m.submissions[id] = tmpSub
	return tmpSub
}

func (m *mutation) deleteSubmission(id uint64) {
	delete(m.submissions, id)
	m.deleted = append(m.deleted, id)
}

func (m *mutation) proposal(id uint64) *proposalState {
	if p, ok := m.proposals[id]; ok {
		return p
	}
	p, ok := m.ls.proposals[id]
	if !ok {
		return nil
	}
	tmpProp := p.clone()
	m.proposals[id] = tmpProp
	return tmpProp
}

func (m *mutation) publish(eventType event.EventType, data any) {
	m.events = append(m.events, event.NewEvent(eventType, data))
}

// credit issues new tokens to identity
func (m *mutation) credit(identity string, amount uint64, reason string) error {
	if amount == 0 {
		return nil
	}
	u := m.user(identity)
	if u == nil {
		return ErrUserNotFound
	}
	maxSupply := m.ls.config.Policy.MaxSupply
	if maxSupply == 0 {
		maxSupply = math.MaxUint64
	}
	if m.totals.supply > maxSupply || amount > maxSupply-m.totals.supply {
		return fmt.Errorf(
			"%w: issuing %d would exceed the maximum supply of %d",
			ErrSupplyExhausted,
			amount,
			maxSupply,
		)
	}
	u.Balance += amount
	m.totals.supply += amount
	m.totals.issued += amount
	m.appendJournal(models.JournalEntryKindIssue, "", identity, amount, reason)
	return nil
}

// debit burns tokens held by identity
func (m *mutation) debit(identity string, amount uint64, reason string) error {
	if amount == 0 {
		return nil
	}
	u := m.user(identity)
	if u == nil {
		return ErrUserNotFound
	}
	if u.Balance < amount {
		return fmt.Errorf(
			"%w: %s holds %d, needs %d",
			ErrInsufficientBalance,
			identity,
			u.Balance,
			amount,
		)
	}
	u.Balance -= amount
	m.totals.supply -= amount
	m.totals.burned += amount
	m.appendJournal(models.JournalEntryKindBurn, identity, "", amount, reason)
	return nil
}

func (m *mutation) transfer(from string, to string, amount uint64, reason string) error {
	fromUser := m.user(from)
	if fromUser == nil {
		return fmt.Errorf("%w: %s", ErrUserNotFound, from)
	}
	toUser := m.user(to)
	if toUser == nil {
		return fmt.Errorf("%w: %s", ErrUserNotFound, to)
	}
	if fromUser.Balance < amount {
		return fmt.Errorf(
			"%w: %s holds %d, needs %d",
			ErrInsufficientBalance,
			from,
			fromUser.Balance,
			amount,
		)
	}
	fromUser.Balance -= amount
	toUser.Balance += amount
	m.appendJournal(models.JournalEntryKindTransfer, from, to, amount, reason)
	return nil
}

func (m *mutation) appendJournal(
	kind models.JournalEntryKind,
	from string,
	to string,
	amount uint64,
	reason string,
) {
	entry := &models.JournalEntry{
		From:        from,
		To:          to,
		Reason:      reason,
		Amount:      amount,
		SupplyAfter: m.totals.supply,
		Timestamp:   m.now.UnixMilli(),
		Kind:        kind,
	}
	m.journal = append(m.journal, entry)
	m.publish(TokensMovedEventType, TokensMovedEvent{
		Kind:        kind.String(),
		From:        from,
		To:          to,
		Reason:      reason,
		Amount:      amount,
		SupplyAfter: m.totals.supply,
	})
}

// mutate runs fn with exclusive write access to the ledger. A nil return
// from fn persists the staged changes in one storage transaction, installs
// them in memory and publishes their events. Any error leaves the ledger
// untouched
func (ls *LedgerState) mutate(
	ctx context.Context,
	operation string,
	fn func(*mutation) error,
	attrs ...attribute.KeyValue,
) error {
	ctx, span := ls.tracer.Start(
		ctx,
		"ledger."+operation,
		trace.WithAttributes(attrs...),
	)
	defer span.End()
	start := time.Now()
	err := ls.runMutation(ctx, fn)
	ls.metrics.observe(operation, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		ls.logger.Debug(
			"ledger operation failed",
			"operation", operation,
			"error", err,
		)
	}
	return err
}

func (ls *LedgerState) runMutation(
	ctx context.Context,
	fn func(*mutation) error,
) error {
	if err := ls.acquireWriter(ctx); err != nil {
		return err
	}
	defer ls.writer.Release(1)
	if ls.writeErr != nil {
		return fmt.Errorf(
			"%w: writes disabled: %w",
			ErrStateInconsistent,
			ls.writeErr,
		)
	}
	m := ls.newMutation()
	if err := fn(m); err != nil {
		return err
	}
	if m.empty() {
		return nil
	}
	if err := ls.persist(ctx, m); err != nil {
		return err
	}
	ls.install(m)
	// Publish while still holding the writer so events keep commit order
	for _, evt := range m.events {
		ls.config.EventBus.PublishAsync(evt.Type, evt)
	}
	return nil
}

func (ls *LedgerState) acquireWriter(ctx context.Context) error {
	timeout := ls.config.Policy.LockTimeout
	acquireCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ls.writer.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf(
			"%w: no write access within %s",
			ErrUnavailable,
			timeout,
		)
	}
	return nil
}

// persist writes the staged changes and journal entries in one transaction
func (ls *LedgerState) persist(ctx context.Context, m *mutation) error {
	meta := ls.db.Metadata()
	err := ls.db.Update(ctx, func(txn *database.Txn) error {
		mtxn := txn.Metadata()
		for _, identity := range slices.Sorted(maps.Keys(m.users)) {
			if err := meta.SetUser(userToModel(m.users[identity]), mtxn); err != nil {
				return err
			}
		}
		for _, id := range slices.Sorted(maps.Keys(m.submissions)) {
			if err := meta.SetSubmission(submissionToModel(m.submissions[id]), mtxn); err != nil {
				return err
			}
		}
		for _, id := range m.deleted {
			if err := meta.DeleteSubmission(id, mtxn); err != nil {
				return err
			}
		}
		for _, id := range slices.Sorted(maps.Keys(m.proposals)) {
			if err := meta.SetProposal(proposalToModel(&m.proposals[id].proposal), mtxn); err != nil {
				return err
			}
		}
		for _, vote := range m.votes {
			// Retried transactions must insert afresh
			vote.ID = 0
			if err := meta.AddProposalVote(vote, mtxn); err != nil {
				return err
			}
		}
		head := ls.totals.journal
		if len(m.journal) > 0 {
			var err error
			head, err = ls.db.AppendJournal(txn, m.journal...)
			if err != nil {
				return err
			}
		}
		m.totals.journal = head
		return meta.SetLedgerState(
			&models.LedgerState{
				JournalHead:         head.Hash,
				TotalSupply:         types.Uint64(m.totals.supply),
				TotalIssued:         types.Uint64(m.totals.issued),
				TotalBurned:         types.Uint64(m.totals.burned),
				NextSubmissionID:    m.totals.nextSubmissionID,
				NextProposalID:      m.totals.nextProposalID,
				RejectedSubmissions: m.totals.rejected,
				JournalSeq:          head.Seq,
			},
			mtxn,
		)
	})
	if err != nil {
		if errors.Is(err, database.ErrPartialCommit) {
			ls.recoverPartialCommit(err)
			return fmt.Errorf("persist ledger change: %w", err)
		}
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return err
		}
		if database.IsTransient(err) {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return fmt.Errorf("persist ledger change: %w", err)
	}
	return nil
}

// recoverPartialCommit drops the journal entries of a change that reached the
// blob store only, so the next change chains onto the installed head. Must be
// called while holding the writer slot
func (ls *LedgerState) recoverPartialCommit(cause error) {
	head := ls.totals.journal
	if err := ls.db.RecoverJournal(head); err != nil {
		ls.writeErr = errors.Join(cause, err)
		ls.logger.Error(
			"journal rollback failed, refusing further writes",
			"error", err,
		)
		return
	}
	ls.logger.Warn(
		"rolled back journal after partial commit",
		"journal_seq", head.Seq,
	)
}

// install makes a persisted mutation visible to readers
func (ls *LedgerState) install(m *mutation) {
	ls.Lock()
	defer ls.Unlock()
	for identity, u := range m.users {
		ls.users[identity] = u
	}
	for id, s := range m.submissions {
		ls.submissions[id] = s
	}
	for _, id := range m.deleted {
		delete(ls.submissions, id)
	}
	for id, p := range m.proposals {
		ls.proposals[id] = p
	}
	ls.totals = m.totals
}
