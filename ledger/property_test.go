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

package ledger_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/A-10-g/EcoChain-DAO/ledger"
)

const propertyUsers = 4

// applyOp decodes code into a ledger operation and runs it. Failures are
// expected and ignored; only the invariants afterwards matter
func applyOp(ctx context.Context, ls *ledger.LedgerState, code int) {
	actor := fmt.Sprintf("p%d", code%propertyUsers)
	other := fmt.Sprintf("p%d", (code/propertyUsers)%propertyUsers)
	arg := uint64(code / (propertyUsers * propertyUsers) % 8)
	switch code % 7 {
	case 0:
		_, _ = ls.Register(ctx, actor, "")
	case 1:
		_ = ls.Transfer(ctx, actor, other, arg*300)
	case 2:
		_, _ = ls.SubmitData(ctx, actor, ledger.Payload{Data: "reading"})
	case 3:
		_, _ = ls.ValidateData(ctx, actor, arg)
	case 4:
		_ = ls.RejectData(ctx, actor, arg)
	case 5:
		_, _ = ls.CreateProposal(ctx, actor, "proposal")
	case 6:
		choice := ledger.VoteYes
		if arg%2 == 1 {
			choice = ledger.VoteNo
		}
		_, _ = ls.Vote(ctx, actor, arg%3+1, choice)
	}
}

// checkInvariants reports the first broken ledger invariant
func checkInvariants(ls *ledger.LedgerState) error {
	var sum uint64
	for _, user := range ls.ListUsers() {
		sum += user.Balance
	}
	if sum != ls.TotalSupply() {
		return fmt.Errorf("supply %d != balances %d", ls.TotalSupply(), sum)
	}
	for _, p := range ls.ListAllProposals() {
		if p.YesVotes+p.NoVotes != uint64(len(p.Voters)) {
			return fmt.Errorf("proposal %d tallies do not match voters", p.ID)
		}
		seen := make(map[string]bool)
		for _, voter := range p.Voters {
			if seen[voter] {
				return fmt.Errorf("proposal %d has duplicate voter %s", p.ID, voter)
			}
			seen[voter] = true
			if !ls.IsUserRegistered(voter) {
				return fmt.Errorf("proposal %d voter %s not registered", p.ID, voter)
			}
		}
	}
	for _, sub := range ls.ListUnvalidated() {
		if sub.Validator != "" {
			return fmt.Errorf("pending submission %d has a validator", sub.ID)
		}
	}
	return nil
}

func TestLedgerInvariantsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	properties.Property("invariants hold after every operation", prop.ForAll(
		func(codes []int) string {
			ctx := context.Background()
			ls, err := ledger.NewLedgerState(ledger.LedgerStateConfig{})
			if err != nil {
				return err.Error()
			}
			defer ls.Close()
			for i, code := range codes {
				applyOp(ctx, ls, code)
				if err := checkInvariants(ls); err != nil {
					return fmt.Sprintf("after op %d (%d): %s", i, code, err)
				}
			}
			summary, err := ls.VerifyJournal()
			if err != nil {
				return err.Error()
			}
			if summary.Supply != ls.TotalSupply() {
				return "journal replay disagrees with total supply"
			}
			return ""
		},
		gen.SliceOfN(40, gen.IntRange(0, 1<<16)),
	))

	properties.TestingRun(t)
}
