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
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

const (
	reasonSubmission = "submission"
	reasonValidation = "validation"
	reasonRejection  = "rejection"
)

// SubmitData records a pending observation for submitter and pays the
// submission reward
func (ls *LedgerState) SubmitData(
	ctx context.Context,
	submitter string,
	payload Payload,
) (Submission, error) {
	if strings.TrimSpace(payload.Data) == "" {
		return Submission{}, fmt.Errorf("%w: empty data", ErrInvalidArgument)
	}
	payload = payload.clone()
	var ret Submission
	err := ls.mutate(
		ctx,
		"submit",
		func(m *mutation) error {
			user := m.user(submitter)
			if user == nil {
				return fmt.Errorf("%w: %s", ErrUserNotFound, submitter)
			}
			sub := &Submission{
				SubmittedAt: m.now,
				Submitter:   submitter,
				Payload:     payload,
				ID:          m.totals.nextSubmissionID,
			}
			m.totals.nextSubmissionID++
			m.submissions[sub.ID] = sub
			user.DataSubmissions++
			if err := m.credit(submitter, ls.config.Policy.SubmissionReward, reasonSubmission); err != nil {
				return err
			}
			ret = *sub.clone()
			m.publish(DataSubmittedEventType, DataSubmittedEvent{Submission: *sub.clone()})
			return nil
		},
		attribute.String("identity", submitter),
	)
	if err != nil {
		return Submission{}, err
	}
	return ret, nil
}

// ValidateData marks a pending submission validated by validator and pays
// the validation reward. A submission is validated at most once and never
// by its submitter
func (ls *LedgerState) ValidateData(
	ctx context.Context,
	validator string,
	id uint64,
) (Submission, error) {
	var ret Submission
	err := ls.mutate(
		ctx,
		"validate",
		func(m *mutation) error {
			if m.user(validator) == nil {
				return fmt.Errorf("%w: %s", ErrUserNotFound, validator)
			}
			sub := m.submission(id)
			if sub == nil {
				return fmt.Errorf("%w: %d", ErrDataNotFound, id)
			}
			if sub.Validated {
				return fmt.Errorf("%w: %d validated by %s", ErrAlreadyValidated, id, sub.Validator)
			}
			if sub.Submitter == validator {
				return fmt.Errorf("%w: submitters cannot validate their own data", ErrUnauthorized)
			}
			now := m.now
			sub.Validated = true
			sub.Validator = validator
			sub.ValidatedAt = &now
			if err := m.credit(validator, ls.config.Policy.ValidationReward, reasonValidation); err != nil {
				return err
			}
			ret = *sub.clone()
			m.publish(DataValidatedEventType, DataValidatedEvent{Submission: *sub.clone()})
			return nil
		},
		attribute.String("identity", validator),
		attribute.Int64("submission", int64(id)),
	)
	if err != nil {
		return Submission{}, err
	}
	return ret, nil
}

// RejectData removes a pending submission. The rejecting user receives the
// rejection reward if one is configured. Submitters may not reject their own
// data, which keeps the reward from being self-dealt
func (ls *LedgerState) RejectData(
	ctx context.Context,
	rejecter string,
	id uint64,
) error {
	return ls.mutate(
		ctx,
		"reject",
		func(m *mutation) error {
			if m.user(rejecter) == nil {
				return fmt.Errorf("%w: %s", ErrUserNotFound, rejecter)
			}
			sub := m.submission(id)
			if sub == nil {
				return fmt.Errorf("%w: %d", ErrDataNotFound, id)
			}
			if sub.Validated {
				return fmt.Errorf("%w: %d validated by %s", ErrAlreadyValidated, id, sub.Validator)
			}
			if sub.Submitter == rejecter {
				return fmt.Errorf("%w: submitters cannot reject their own data", ErrUnauthorized)
			}
			m.deleteSubmission(id)
			m.totals.rejected++
			if err := m.credit(rejecter, ls.config.Policy.RejectionReward, reasonRejection); err != nil {
				return err
			}
			m.publish(DataRejectedEventType, DataRejectedEvent{
				Rejecter:     rejecter,
				Submitter:    sub.Submitter,
				SubmissionID: id,
			})
			return nil
		},
		attribute.String("identity", rejecter),
		attribute.Int64("submission", int64(id)),
	)
}

func (ls *LedgerState) GetSubmission(id uint64) (Submission, error) {
	ls.RLock()
	defer ls.RUnlock()
	sub, ok := ls.submissions[id]
	if !ok {
		return Submission{}, fmt.Errorf("%w: %d", ErrDataNotFound, id)
	}
	return *sub.clone(), nil
}

// ListUnvalidated returns pending submissions, oldest first
func (ls *LedgerState) ListUnvalidated() []Submission {
	ls.RLock()
	ret := make([]Submission, 0, ls.pendingCount())
	for _, sub := range ls.submissions {
		if !sub.Validated {
			ret = append(ret, *sub.clone())
		}
	}
	ls.RUnlock()
	slices.SortFunc(ret, func(a, b Submission) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return ret
}

// pendingCount must be called with the read lock held
func (ls *LedgerState) pendingCount() int {
	count := 0
	for _, sub := range ls.submissions {
		if !sub.Validated {
			count++
		}
	}
	return count
}
