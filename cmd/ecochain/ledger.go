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

package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/A-10-g/EcoChain-DAO/database/models"
	"github.com/A-10-g/EcoChain-DAO/internal/config"
	"github.com/A-10-g/EcoChain-DAO/ledger"
)

// openLedger loads the local ledger. The server must not be running against
// the same database
func openLedger(cmd *cobra.Command) (*ledger.LedgerState, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return nil, errors.New("no config found in context")
	}
	policy, err := cfg.Policy.LedgerPolicy()
	if err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	ls, err := ledger.NewLedgerState(ledger.LedgerStateConfig{
		Logger:         newLogger(os.Stderr),
		DataDir:        cfg.DatabasePath,
		BlobPlugin:     cfg.BlobPlugin,
		MetadataPlugin: cfg.MetadataPlugin,
		MetadataDsn:    cfg.MetadataDsn,
		Policy:         policy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	return ls, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print ledger statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ls, err := openLedger(cmd)
			if err != nil {
				return err
			}
			defer ls.Close()
			return writeJSON(cmd.OutOrStdout(), ls.SystemStats())
		},
	}
}

type journalEntryOutput struct {
	Time        time.Time `json:"time"`
	Kind        string    `json:"kind"`
	From        string    `json:"from,omitempty"`
	To          string    `json:"to,omitempty"`
	Reason      string    `json:"reason"`
	PrevHash    string    `json:"prevHash"`
	Hash        string    `json:"hash"`
	Seq         uint64    `json:"seq"`
	Amount      uint64    `json:"amount"`
	SupplyAfter uint64    `json:"supplyAfter"`
}

func newJournalEntryOutput(entry *models.JournalEntry) journalEntryOutput {
	return journalEntryOutput{
		Time:        time.UnixMilli(entry.Timestamp).UTC(),
		Kind:        entry.Kind.String(),
		From:        entry.From,
		To:          entry.To,
		Reason:      entry.Reason,
		PrevHash:    hex.EncodeToString(entry.PrevHash),
		Hash:        hex.EncodeToString(entry.Hash),
		Seq:         entry.Seq,
		Amount:      entry.Amount,
		SupplyAfter: entry.SupplyAfter,
	}
}

func journalCommand() *cobra.Command {
	var fromSeq uint64
	var limit int
	var verify bool
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print token journal entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ls, err := openLedger(cmd)
			if err != nil {
				return err
			}
			defer ls.Close()
			out := cmd.OutOrStdout()
			if verify {
				summary, err := ls.VerifyJournal()
				if err != nil {
					return fmt.Errorf("journal verification failed: %w", err)
				}
				return writeJSON(out, map[string]any{
					"entries": summary.Entries,
					"issued":  summary.Issued,
					"burned":  summary.Burned,
					"supply":  summary.Supply,
					"headSeq": summary.Head.Seq,
					"head":    hex.EncodeToString(summary.Head.Hash),
				})
			}
			entries, err := ls.Journal(fromSeq, limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			for _, entry := range entries {
				if err := enc.Encode(newJournalEntryOutput(entry)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&fromSeq, "from", 1, "first journal sequence number")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum entries to print, 0 for all")
	cmd.Flags().BoolVar(&verify, "verify", false, "verify the hash chain and replayed supply")
	return cmd
}

func proposalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proposal",
		Short: "Operator proposal commands",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "close <id>",
			Short: "Close a proposal",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid proposal ID %q: %w", args[0], err)
				}
				ls, err := openLedger(cmd)
				if err != nil {
					return err
				}
				defer ls.Close()
				prop, err := ls.CloseProposal(cmd.Context(), id)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), prop)
			},
		},
		&cobra.Command{
			Use:   "close-expired",
			Short: "Close every proposal past its voting period",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ls, err := openLedger(cmd)
				if err != nil {
					return err
				}
				defer ls.Close()
				closed, err := ls.CloseExpiredProposals(cmd.Context())
				if err != nil {
					return err
				}
				if closed == nil {
					closed = []ledger.Proposal{}
				}
				return writeJSON(cmd.OutOrStdout(), closed)
			},
		},
	)
	return cmd
}
