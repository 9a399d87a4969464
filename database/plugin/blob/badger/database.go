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

package badger

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/A-10-g/EcoChain-DAO/database/types"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/prometheus/client_golang/prometheus"
)

// Default cache sizes for BadgerDB (in bytes)
const (
	DefaultBlockCacheSize = 67108864 // 64MB
	DefaultIndexCacheSize = 33554432 // 32MB
	DefaultGcInterval     = 5 * time.Minute
)

// badgerTxn wraps a badger transaction and implements types.Txn
type badgerTxn struct {
	store     *BlobStoreBadger
	tx        *badger.Txn
	finished  bool
	readWrite bool
}

func (t *badgerTxn) Commit() error {
	if t.finished {
		return nil
	}
	t.finished = true
	if err := t.tx.Commit(); err != nil {
		t.store.metrics.txnTotal.WithLabelValues("failed").Inc()
		return err
	}
	if t.readWrite {
		t.store.metrics.txnTotal.WithLabelValues("committed").Inc()
	}
	return nil
}

func (t *badgerTxn) Rollback() error {
	if t.finished {
		return nil
	}
	t.tx.Discard()
	t.finished = true
	if t.readWrite {
		t.store.metrics.txnTotal.WithLabelValues("discarded").Inc()
	}
	return nil
}

type badgerIterator struct {
	iter *badger.Iterator
}

func (it *badgerIterator) Rewind()                      { it.iter.Rewind() }
func (it *badgerIterator) Seek(key []byte)              { it.iter.Seek(key) }
func (it *badgerIterator) Valid() bool                  { return it.iter.Valid() }
func (it *badgerIterator) ValidForPrefix(p []byte) bool { return it.iter.ValidForPrefix(p) }
func (it *badgerIterator) Next()                        { it.iter.Next() }
func (it *badgerIterator) Item() types.BlobItem         { return &badgerItem{item: it.iter.Item()} }
func (it *badgerIterator) Close()                       { it.iter.Close() }
func (it *badgerIterator) Err() error                   { return nil }

type errorIterator struct {
	err error
}

func (it *errorIterator) Rewind()                    {}
func (it *errorIterator) Seek([]byte)                {}
func (it *errorIterator) Valid() bool                { return false }
func (it *errorIterator) ValidForPrefix([]byte) bool { return false }
func (it *errorIterator) Next()                      {}
func (it *errorIterator) Item() types.BlobItem       { return nil }
func (it *errorIterator) Close()                     {}
func (it *errorIterator) Err() error                 { return it.err }

type badgerItem struct {
	item *badger.Item
}

func (i *badgerItem) Key() []byte {
	return i.item.KeyCopy(nil)
}

func (i *badgerItem) ValueCopy(dst []byte) ([]byte, error) {
	return i.item.ValueCopy(dst)
}

// BlobStoreBadger stores the ledger journal and commit timestamp in badger
type BlobStoreBadger struct {
	promRegistry   prometheus.Registerer
	db             *badger.DB
	logger         *slog.Logger
	gcStopCh       chan struct{}
	metrics        blobMetrics
	dataDir        string
	gcWg           sync.WaitGroup
	closeOnce      sync.Once
	blockCacheSize uint64
	indexCacheSize uint64
	gcInterval     time.Duration
	gcEnabled      bool
}

// New creates a new database
func New(opts ...BlobStoreBadgerOptionFunc) (*BlobStoreBadger, error) {
	db := &BlobStoreBadger{
		// Set defaults
		gcEnabled:      true,
		gcInterval:     DefaultGcInterval,
		blockCacheSize: DefaultBlockCacheSize,
		indexCacheSize: DefaultIndexCacheSize,
	}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var badgerOpts badger.Options
	if db.dataDir == "" {
		badgerOpts = badger.DefaultOptions("").
			WithInMemory(true)
		// Value log GC does not apply to in-memory stores
		db.gcEnabled = false
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(db.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(db.dataDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		badgerOpts = badger.DefaultOptions(filepath.Join(db.dataDir, "blob")).
			WithBlockCacheSize(int64(db.blockCacheSize)). //nolint:gosec
			WithIndexCacheSize(int64(db.indexCacheSize)). //nolint:gosec
			WithCompression(options.Snappy)
	}
	badgerOpts = badgerOpts.
		WithLogger(NewBadgerLogger(db.logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	blobDb, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	db.db = blobDb
	db.registerBlobMetrics()
	if db.gcEnabled && db.gcInterval > 0 {
		db.gcStopCh = make(chan struct{})
		db.gcWg.Add(1)
		go db.blobGc(db.gcInterval, db.gcStopCh)
	}
	return db, nil
}

func (d *BlobStoreBadger) blobGc(interval time.Duration, stop <-chan struct{}) {
	defer d.gcWg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			// Keep going while badger finds files worth rewriting
			for {
				err := d.db.RunValueLogGC(0.5)
				if err == nil {
					d.metrics.gcRuns.Inc()
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					d.logger.Warn(
						fmt.Sprintf("blob DB: GC failure: %s", err),
						"component", "database",
					)
				}
				break
			}
		case <-stop:
			return
		}
	}
}

// Start implements the plugin.Plugin interface
func (d *BlobStoreBadger) Start() error {
	// Database is already opened in New(), so this is a no-op
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *BlobStoreBadger) Stop() error {
	return d.Close()
}

// Close stops the GC goroutine and closes the database
func (d *BlobStoreBadger) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.gcStopCh != nil {
			close(d.gcStopCh)
			d.gcWg.Wait()
		}
		err = d.db.Close()
	})
	return err
}

// DB returns the database handle
func (d *BlobStoreBadger) DB() *badger.DB {
	return d.db
}

// NewTransaction creates a new badger transaction
func (d *BlobStoreBadger) NewTransaction(readWrite bool) types.Txn {
	return &badgerTxn{
		store:     d,
		tx:        d.db.NewTransaction(readWrite),
		readWrite: readWrite,
	}
}

// validateTxn returns the underlying *badgerTxn for a types.Txn from this store
func (d *BlobStoreBadger) validateTxn(txn types.Txn) (*badgerTxn, error) {
	if txn == nil {
		return nil, types.ErrNilTxn
	}
	tmpTxn, ok := txn.(*badgerTxn)
	if !ok {
		return nil, types.ErrTxnWrongType
	}
	if tmpTxn.store != d {
		return nil, errors.New("transaction from different store")
	}
	if tmpTxn.finished {
		return nil, errors.New("transaction already finished")
	}
	return tmpTxn, nil
}

// Get retrieves a value from badger within a transaction
func (d *BlobStoreBadger) Get(txn types.Txn, key []byte) ([]byte, error) {
	tmpTxn, err := d.validateTxn(txn)
	if err != nil {
		return nil, err
	}
	item, err := tmpTxn.tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, types.ErrBlobKeyNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

// Set stores a key-value pair in badger within a transaction
func (d *BlobStoreBadger) Set(txn types.Txn, key, val []byte) error {
	tmpTxn, err := d.validateTxn(txn)
	if err != nil {
		return err
	}
	if !tmpTxn.readWrite {
		return types.ErrReadOnlyTxn
	}
	return tmpTxn.tx.Set(key, val)
}

// Delete removes a key from badger within a transaction
func (d *BlobStoreBadger) Delete(txn types.Txn, key []byte) error {
	tmpTxn, err := d.validateTxn(txn)
	if err != nil {
		return err
	}
	if !tmpTxn.readWrite {
		return types.ErrReadOnlyTxn
	}
	return tmpTxn.tx.Delete(key)
}

// NewIterator creates an iterator for badger within a transaction
func (d *BlobStoreBadger) NewIterator(
	txn types.Txn,
	opts types.BlobIteratorOptions,
) types.BlobIterator {
	tmpTxn, err := d.validateTxn(txn)
	if err != nil {
		return &errorIterator{err: err}
	}
	iterOpts := badger.DefaultIteratorOptions
	iterOpts.Prefix = opts.Prefix
	iterOpts.Reverse = opts.Reverse
	return &badgerIterator{iter: tmpTxn.tx.NewIterator(iterOpts)}
}

// Backup writes a full backup stream to w. The stream can be loaded with
// badger's DB.Load
func (d *BlobStoreBadger) Backup(w io.Writer) error {
	if _, err := d.db.Backup(w, 0); err != nil {
		return fmt.Errorf("blob backup: %w", err)
	}
	d.metrics.backups.Inc()
	return nil
}
