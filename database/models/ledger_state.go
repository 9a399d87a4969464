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

package models

import (
	"github.com/A-10-g/EcoChain-DAO/database/types"
)

const LedgerStateRowId = 1

// LedgerState is a single row holding the running totals and ID counters
type LedgerState struct {
	JournalHead         []byte `gorm:"size:32"`
	ID                  uint   `gorm:"primarykey"`
	TotalSupply         types.Uint64
	TotalIssued         types.Uint64
	TotalBurned         types.Uint64
	NextSubmissionID    uint64
	NextProposalID      uint64
	RejectedSubmissions uint64
	JournalSeq          uint64
}

func (LedgerState) TableName() string {
	return "ledger_state"
}
