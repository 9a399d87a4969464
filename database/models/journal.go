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
	"bytes"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

type JournalEntryKind uint8

const (
	JournalEntryKindIssue    JournalEntryKind = 1
	JournalEntryKindBurn     JournalEntryKind = 2
	JournalEntryKindTransfer JournalEntryKind = 3
)

func (k JournalEntryKind) String() string {
	switch k {
	case JournalEntryKindIssue:
		return "issue"
	case JournalEntryKindBurn:
		return "burn"
	case JournalEntryKindTransfer:
		return "transfer"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

var ErrJournalHashMismatch = errors.New("journal entry hash mismatch")

var journalEncMode cbor.EncMode

func init() {
	var err error
	journalEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to build CBOR encoding mode: %s", err))
	}
}

// JournalEntry is a single balance movement recorded in the blob store.
// Issue entries credit To, burn entries debit From, transfers do both.
// Each entry commits to its predecessor through PrevHash
type JournalEntry struct {
	_           struct{} `cbor:",toarray"`
	From        string
	To          string
	Reason      string
	PrevHash    []byte
	Hash        []byte
	Seq         uint64
	Amount      uint64
	SupplyAfter uint64
	Timestamp   int64
	Kind        JournalEntryKind
}

// ComputeHash returns the blake3 hash of the entry with the Hash field cleared
func (e *JournalEntry) ComputeHash() ([]byte, error) {
	tmpEntry := *e
	tmpEntry.Hash = nil
	data, err := journalEncMode.Marshal(&tmpEntry)
	if err != nil {
		return nil, err
	}
	sum := blake3.Sum256(data)
	return sum[:], nil
}

// Seal fills in the entry hash
func (e *JournalEntry) Seal() error {
	hash, err := e.ComputeHash()
	if err != nil {
		return err
	}
	e.Hash = hash
	return nil
}

// Verify checks the stored hash and the link to the previous entry hash
func (e *JournalEntry) Verify(prevHash []byte) error {
	if !bytes.Equal(e.PrevHash, prevHash) {
		return fmt.Errorf("%w: entry %d does not link to previous entry", ErrJournalHashMismatch, e.Seq)
	}
	hash, err := e.ComputeHash()
	if err != nil {
		return err
	}
	if !bytes.Equal(hash, e.Hash) {
		return fmt.Errorf("%w: entry %d", ErrJournalHashMismatch, e.Seq)
	}
	return nil
}

func (e *JournalEntry) MarshalCBOR() ([]byte, error) {
	type tmpJournalEntry JournalEntry
	return journalEncMode.Marshal((*tmpJournalEntry)(e))
}

func DecodeJournalEntry(data []byte) (*JournalEntry, error) {
	type tmpJournalEntry JournalEntry
	var tmp tmpJournalEntry
	if err := cbor.Unmarshal(data, &tmp); err != nil {
		return nil, fmt.Errorf("decode journal entry: %w", err)
	}
	ret := JournalEntry(tmp)
	return &ret, nil
}
