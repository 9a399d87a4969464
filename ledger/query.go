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
	"fmt"

	"github.com/A-10-g/EcoChain-DAO/database"
	"github.com/A-10-g/EcoChain-DAO/database/models"
)

const (
	StatTotalUsers           = "total_users"
	StatTotalProposals       = "total_proposals"
	StatActiveProposals      = "active_proposals"
	StatTotalDataSubmissions = "total_data_submissions"
	StatValidatedData        = "validated_data"
	StatPendingData          = "pending_data"
	StatRejectedData         = "rejected_data"
	StatTotalVotes           = "total_votes"
	StatTotalSupply          = "total_supply"
)

// SystemStats returns aggregate counters taken from a single snapshot.
// Submission totals include rejected submissions
func (ls *LedgerState) SystemStats() map[string]uint64 {
	now := ls.config.Clock()
	ls.RLock()
	defer ls.RUnlock()
	var validated, active uint64
	for _, sub := range ls.submissions {
		if sub.Validated {
			validated++
		}
	}
	for _, prop := range ls.proposals {
		if prop.proposal.Active && !prop.proposal.Expired(now) {
			active++
		}
	}
	pending := uint64(len(ls.submissions)) - validated
	return map[string]uint64{
		StatTotalUsers:           uint64(len(ls.users)),
		StatTotalProposals:       uint64(len(ls.proposals)),
		StatActiveProposals:      active,
		StatTotalDataSubmissions: ls.totals.nextSubmissionID - 1,
		StatValidatedData:        validated,
		StatPendingData:          pending,
		StatRejectedData:         ls.totals.rejected,
		StatTotalVotes:           ls.totals.votes,
		StatTotalSupply:          ls.totals.supply,
	}
}

// Journal returns up to limit journal entries starting at fromSeq. A limit
// of 0 returns all of them
func (ls *LedgerState) Journal(fromSeq uint64, limit int) ([]*models.JournalEntry, error) {
	return ls.db.Journal(max(fromSeq, 1), limit)
}

// VerifyJournal replays the journal and checks it against the live ledger
func (ls *LedgerState) VerifyJournal() (database.JournalSummary, error) {
	// Hold the writer so the journal and the in-memory totals line up
	if err := ls.acquireWriter(context.Background()); err != nil {
		return database.JournalSummary{}, err
	}
	defer ls.writer.Release(1)
	summary, err := ls.db.VerifyJournal()
	if err != nil {
		return summary, err
	}
	ls.RLock()
	totals := ls.totals
	ls.RUnlock()
	if summary.Supply != totals.supply {
		return summary, fmt.Errorf(
			"%w: journal replays to supply %d, ledger holds %d",
			ErrStateInconsistent,
			summary.Supply,
			totals.supply,
		)
	}
	if summary.Head.Seq != totals.journal.Seq {
		return summary, fmt.Errorf(
			"%w: journal ends at %d, ledger recorded %d",
			ErrStateInconsistent,
			summary.Head.Seq,
			totals.journal.Seq,
		)
	}
	return summary, nil
}
