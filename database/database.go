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
	"errors"
	"io"
	"log/slog"

	"github.com/A-10-g/EcoChain-DAO/database/plugin"
	"github.com/A-10-g/EcoChain-DAO/database/plugin/blob"
	"github.com/A-10-g/EcoChain-DAO/database/plugin/metadata"
	"github.com/prometheus/client_golang/prometheus"

	// Register storage plugins
	_ "github.com/A-10-g/EcoChain-DAO/database/plugin/blob/badger"
	_ "github.com/A-10-g/EcoChain-DAO/database/plugin/metadata/mysql"
	_ "github.com/A-10-g/EcoChain-DAO/database/plugin/metadata/postgres"
	_ "github.com/A-10-g/EcoChain-DAO/database/plugin/metadata/sqlite"
)

const (
	DefaultBlobPlugin     = "badger"
	DefaultMetadataPlugin = "sqlite"
	DefaultMaxRetries     = 3
)

type Config struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	// DataDir is the storage directory. Leave empty for in-memory storage
	DataDir        string
	BlobPlugin     string
	MetadataPlugin string
	// MetadataDsn is the connection string for the postgres and mysql plugins
	MetadataDsn string
	// MaxRetries bounds the retries of a transaction that hit a transient conflict
	MaxRetries uint64
}

type Database struct {
	logger     *slog.Logger
	blob       blob.BlobStore
	metadata   metadata.MetadataStore
	dataDir    string
	maxRetries uint64
}

// Blob returns the underling blob store instance
func (d *Database) Blob() blob.BlobStore {
	return d.blob
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.dataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Metadata returns the underlying metadata store instance
func (d *Database) Metadata() metadata.MetadataStore {
	return d.metadata
}

// Transaction starts a new database transaction and returns a handle to it
func (d *Database) Transaction(readWrite bool) *Txn {
	return NewTxn(d, readWrite)
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	if d.metadata != nil {
		err = errors.Join(err, d.metadata.Close())
	}
	if d.blob != nil {
		err = errors.Join(err, d.blob.Close())
	}
	return err
}

// New opens the configured blob and metadata stores. When the stores
// disagree on the last commit a CommitTimestampError is returned along with
// the database so that the caller can inspect or close it
func New(config *Config) (*Database, error) {
	if config == nil {
		config = &Config{}
	}
	logger := config.Logger
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	blobPlugin := config.BlobPlugin
	if blobPlugin == "" {
		blobPlugin = DefaultBlobPlugin
	}
	metadataPlugin := config.MetadataPlugin
	if metadataPlugin == "" {
		metadataPlugin = DefaultMetadataPlugin
	}
	maxRetries := config.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	pluginOpts := plugin.PluginOptions{
		Logger:       logger,
		PromRegistry: config.PromRegistry,
		DataDir:      config.DataDir,
		Dsn:          config.MetadataDsn,
	}
	metadataDb, err := metadata.New(metadataPlugin, pluginOpts)
	if err != nil {
		return nil, err
	}
	blobDb, err := blob.New(blobPlugin, pluginOpts)
	if err != nil {
		_ = metadataDb.Close()
		return nil, err
	}
	db := &Database{
		logger:     logger,
		blob:       blobDb,
		metadata:   metadataDb,
		dataDir:    config.DataDir,
		maxRetries: maxRetries,
	}
	if err := db.checkCommitTimestamp(); err != nil {
		return db, err
	}
	logger.Debug(
		"opened database",
		"component", "database",
		"blob", blobPlugin,
		"metadata", metadataPlugin,
		"data_dir", config.DataDir,
	)
	return db, nil
}
