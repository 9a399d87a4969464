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

package postgres

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/A-10-g/EcoChain-DAO/database/plugin/metadata/gormstore"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// MetadataStorePostgres stores metadata in Postgres
type MetadataStorePostgres struct {
	*gormstore.Store
	promRegistry prometheus.Registerer
	logger       *slog.Logger
	dsn          string
}

// New creates a new database. The connection is opened by Start()
func New(opts ...PostgresOptionFunc) (*MetadataStorePostgres, error) {
	db := &MetadataStorePostgres{}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return db, nil
}

// Start implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Start() error {
	dsn := strings.TrimSpace(d.dsn)
	if dsn == "" {
		return errors.New("postgres metadata: DSN not set")
	}
	metadataDb, err := gorm.Open(
		postgres.Open(dsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
			PrepareStmt:            true,
		},
	)
	if err != nil {
		return err
	}
	// Configure connection pool
	sqlDB, err := metadataDb.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetMaxOpenConns(16)
	sqlDB.SetConnMaxLifetime(time.Hour)
	store, err := gormstore.New(metadataDb, d.logger)
	if err != nil {
		_ = sqlDB.Close()
		return err
	}
	if err := store.RegisterMetrics(d.promRegistry); err != nil {
		_ = sqlDB.Close()
		return err
	}
	d.Store = store
	d.logger.Info(
		"connected to postgres metadata store",
		"component", "database",
	)
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Stop() error {
	return d.Close()
}

// Close closes the database if it was opened
func (d *MetadataStorePostgres) Close() error {
	if d.Store == nil {
		return nil
	}
	return d.Store.Close()
}
