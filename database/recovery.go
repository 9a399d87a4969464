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
	"fmt"

	"github.com/A-10-g/EcoChain-DAO/database/types"
)

// RecoverJournal rolls the journal back to head after an interrupted commit
// left the blob store ahead of the metadata store. Entries past head.Seq are
// removed and both commit timestamps are realigned
func (d *Database) RecoverJournal(head JournalHead) error {
	current, err := d.GetJournalHead(nil)
	if err != nil {
		return err
	}
	if current.Seq < head.Seq {
		return fmt.Errorf(
			"%w: journal ends at %d, before recorded head %d",
			ErrJournalCorrupt,
			current.Seq,
			head.Seq,
		)
	}
	txn := d.Transaction(true)
	return txn.Do(func(txn *Txn) error {
		prefix := []byte(types.JournalBlobKeyPrefix)
		var staleKeys [][]byte
		iter := d.blob.NewIterator(
			txn.Blob(),
			types.BlobIteratorOptions{Prefix: prefix},
		)
		for iter.Seek(types.JournalBlobKey(head.Seq + 1)); iter.ValidForPrefix(prefix); iter.Next() {
			staleKeys = append(staleKeys, append([]byte(nil), iter.Item().Key()...))
		}
		iterErr := iter.Err()
		iter.Close()
		if iterErr != nil {
			return iterErr
		}
		for _, key := range staleKeys {
			if err := d.blob.Delete(txn.Blob(), key); err != nil {
				return err
			}
		}
		if err := d.blob.Set(
			txn.Blob(),
			[]byte(types.JournalHeadBlobKey),
			encodeJournalHead(head),
		); err != nil {
			return err
		}
		d.logger.Warn(
			"rolled back journal after interrupted commit",
			"component", "database",
			"removed_entries", len(staleKeys),
			"head", head.Seq,
		)
		return nil
	})
}
