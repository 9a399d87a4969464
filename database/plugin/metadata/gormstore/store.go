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

// Package gormstore implements the metadata store on top of gorm. The
// sqlite, postgres and mysql plugins differ only in how they open the
// connection
package gormstore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/A-10-g/EcoChain-DAO/database/models"
	"github.com/A-10-g/EcoChain-DAO/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"
)

var ErrBackupUnsupported = errors.New("metadata backup not supported by this backend")

// gormTxn wraps a gorm transaction and implements types.Txn
type gormTxn struct {
	db       *gorm.DB
	beginErr error
	finished bool
}

func (t *gormTxn) Commit() error {
	if t.beginErr != nil {
		return t.beginErr
	}
	if t.finished {
		return nil
	}
	t.finished = true
	if result := t.db.Commit(); result.Error != nil {
		return result.Error
	}
	return nil
}

func (t *gormTxn) Rollback() error {
	if t.beginErr != nil {
		return t.beginErr
	}
	if t.finished {
		return nil
	}
	t.finished = true
	if result := t.db.Rollback(); result.Error != nil {
		return result.Error
	}
	return nil
}

// Store stores ledger records through gorm
type Store struct {
	db      *gorm.DB
	logger  *slog.Logger
	dialect string
}

// New wraps an open gorm connection, installs tracing and migrates the schema
func New(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s := &Store{
		db:      db,
		logger:  logger,
		dialect: db.Name(),
	}
	// Configure tracing for GORM
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	// Create table schemas
	s.logger.Debug(
		fmt.Sprintf("creating table: %#v", &CommitTimestamp{}),
		"component", "database",
	)
	if err := db.AutoMigrate(&CommitTimestamp{}); err != nil {
		return nil, err
	}
	for _, model := range models.MigrateModels {
		s.logger.Debug(
			fmt.Sprintf("creating table: %#v", model),
			"component", "database",
		)
		if err := db.AutoMigrate(model); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// DB returns the gorm handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Dialect returns the name of the gorm dialect in use
func (s *Store) Dialect() string {
	return s.dialect
}

// Close closes the underlying database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction begins a new metadata transaction
func (s *Store) Transaction() types.Txn {
	tx := s.db.Begin()
	if tx.Error != nil {
		return &gormTxn{beginErr: tx.Error}
	}
	return &gormTxn{db: tx}
}

// resolveDB returns the gorm handle for the transaction, or the base handle
// when txn is nil
func (s *Store) resolveDB(txn types.Txn) (*gorm.DB, error) {
	if txn == nil {
		return s.db, nil
	}
	tmpTxn, ok := txn.(*gormTxn)
	if !ok {
		return nil, types.ErrTxnWrongType
	}
	if tmpTxn.beginErr != nil {
		return nil, tmpTxn.beginErr
	}
	if tmpTxn.finished {
		return nil, errors.New("transaction already finished")
	}
	return tmpTxn.db, nil
}

// Backup writes a consistent copy of the metadata database to path. Only
// sqlite supports this
func (s *Store) Backup(path string) error {
	if s.dialect != "sqlite" {
		return ErrBackupUnsupported
	}
	if result := s.db.Exec("VACUUM INTO ?", path); result.Error != nil {
		return fmt.Errorf("metadata backup: %w", result.Error)
	}
	return nil
}

// RegisterMetrics exposes the connection pool statistics
func (s *Store) RegisterMetrics(registry prometheus.Registerer) error {
	if registry == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return registry.Register(
		collectors.NewDBStatsCollector(sqlDB, "metadata_"+s.dialect),
	)
}
