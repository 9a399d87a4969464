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

package database

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/A-10-g/EcoChain-DAO/database/models"
	"github.com/A-10-g/EcoChain-DAO/database/types"
)

var ErrJournalCorrupt = errors.New("journal corrupt")

// JournalHead identifies the newest journal entry
type JournalHead struct {
	Hash []byte
	Seq  uint64
}

// JournalSummary is the result of replaying the whole journal
type JournalSummary struct {
	Head    JournalHead
	Entries uint64
	Issued  uint64
	Burned  uint64
	Supply  uint64
}

func decodeJournalHead(val []byte) (JournalHead, error) {
	if len(val) < 8 {
		return JournalHead{}, fmt.Errorf("%w: short head record", ErrJournalCorrupt)
	}
	return JournalHead{
		Seq:  binary.BigEndian.Uint64(val[:8]),
		Hash: append([]byte(nil), val[8:]...),
	}, nil
}

func encodeJournalHead(head JournalHead) []byte {
	ret := make([]byte, 8, 8+len(head.Hash))
	binary.BigEndian.PutUint64(ret, head.Seq)
	return append(ret, head.Hash...)
}

// GetJournalHead returns the newest journal entry position. An empty journal
// has sequence 0 and no hash
func (d *Database) GetJournalHead(txn *Txn) (JournalHead, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	val, err := d.blob.Get(txn.Blob(), []byte(types.JournalHeadBlobKey))
	if err != nil {
		if errors.Is(err, types.ErrBlobKeyNotFound) {
			return JournalHead{}, nil
		}
		return JournalHead{}, err
	}
	return decodeJournalHead(val)
}

// AppendJournal assigns sequence numbers to the entries, chains and seals
// them, and writes them after the current head. The entries are updated in
// place and the new head is returned
func (d *Database) AppendJournal(
	txn *Txn,
	entries ...*models.JournalEntry,
) (JournalHead, error) {
	head, err := d.GetJournalHead(txn)
	if err != nil {
		return JournalHead{}, err
	}
	for _, entry := range entries {
		entry.Seq = head.Seq + 1
		entry.PrevHash = head.Hash
		if err := entry.Seal(); err != nil {
			return JournalHead{}, err
		}
		data, err := entry.MarshalCBOR()
		if err != nil {
			return JournalHead{}, err
		}
		if err := d.blob.Set(txn.Blob(), types.JournalBlobKey(entry.Seq), data); err != nil {
			return JournalHead{}, err
		}
		head = JournalHead{Seq: entry.Seq, Hash: entry.Hash}
	}
	if err := d.blob.Set(
		txn.Blob(),
		[]byte(types.JournalHeadBlobKey),
		encodeJournalHead(head),
	); err != nil {
		return JournalHead{}, err
	}
	return head, nil
}

// iterateJournal calls fn for every entry starting at fromSeq until fn
// returns false
func (d *Database) iterateJournal(
	fromSeq uint64,
	fn func(*models.JournalEntry) (bool, error),
) error {
	txn := d.Transaction(false)
	defer txn.Release()
	prefix := []byte(types.JournalBlobKeyPrefix)
	iter := d.blob.NewIterator(
		txn.Blob(),
		types.BlobIteratorOptions{Prefix: prefix},
	)
	defer iter.Close()
	for iter.Seek(types.JournalBlobKey(fromSeq)); iter.ValidForPrefix(prefix); iter.Next() {
		item := iter.Item()
		seq, ok := types.JournalSeqFromKey(item.Key())
		if !ok {
			continue
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		entry, err := models.DecodeJournalEntry(val)
		if err != nil {
			return fmt.Errorf("%w: entry %d: %w", ErrJournalCorrupt, seq, err)
		}
		if entry.Seq != seq {
			return fmt.Errorf("%w: entry stored at %d claims sequence %d", ErrJournalCorrupt, seq, entry.Seq)
		}
		cont, err := fn(entry)
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return iter.Err()
}

// Journal returns up to limit entries starting at fromSeq. A limit of 0
// returns everything
func (d *Database) Journal(fromSeq uint64, limit int) ([]*models.JournalEntry, error) {
	var ret []*models.JournalEntry
	err := d.iterateJournal(fromSeq, func(entry *models.JournalEntry) (bool, error) {
		ret = append(ret, entry)
		return limit <= 0 || len(ret) < limit, nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// VerifyJournal walks the journal from the start, checking sequence
// continuity, the hash chain and the running supply recorded in each entry
func (d *Database) VerifyJournal() (JournalSummary, error) {
	var summary JournalSummary
	err := d.iterateJournal(1, func(entry *models.JournalEntry) (bool, error) {
		if entry.Seq != summary.Head.Seq+1 {
			return false, fmt.Errorf(
				"%w: expected entry %d, found %d",
				ErrJournalCorrupt,
				summary.Head.Seq+1,
				entry.Seq,
			)
		}
		if err := entry.Verify(summary.Head.Hash); err != nil {
			return false, fmt.Errorf("%w: %w", ErrJournalCorrupt, err)
		}
		switch entry.Kind {
		case models.JournalEntryKindIssue:
			summary.Issued += entry.Amount
			summary.Supply += entry.Amount
		case models.JournalEntryKindBurn:
			if entry.Amount > summary.Supply {
				return false, fmt.Errorf(
					"%w: entry %d burns more than the supply",
					ErrJournalCorrupt,
					entry.Seq,
				)
			}
			summary.Burned += entry.Amount
			summary.Supply -= entry.Amount
		case models.JournalEntryKindTransfer:
		default:
			return false, fmt.Errorf(
				"%w: entry %d has unknown kind %d",
				ErrJournalCorrupt,
				entry.Seq,
				entry.Kind,
			)
		}
		if entry.SupplyAfter != summary.Supply {
			return false, fmt.Errorf(
				"%w: entry %d records supply %d, replay gives %d",
				ErrJournalCorrupt,
				entry.Seq,
				entry.SupplyAfter,
				summary.Supply,
			)
		}
		summary.Entries++
		summary.Head = JournalHead{Seq: entry.Seq, Hash: entry.Hash}
		return true, nil
	})
	if err != nil {
		return summary, err
	}
	head, err := d.GetJournalHead(nil)
	if err != nil {
		return summary, err
	}
	if head.Seq != summary.Head.Seq {
		return summary, fmt.Errorf(
			"%w: head points at %d, last entry is %d",
			ErrJournalCorrupt,
			head.Seq,
			summary.Head.Seq,
		)
	}
	return summary, nil
}
