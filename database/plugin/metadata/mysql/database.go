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

package mysql

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/A-10-g/EcoChain-DAO/database/plugin/metadata/gormstore"
	"github.com/prometheus/client_golang/prometheus"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// MetadataStoreMysql stores metadata in MySQL
type MetadataStoreMysql struct {
	*gormstore.Store
	promRegistry prometheus.Registerer
	logger       *slog.Logger
	dsn          string
}

// New creates a new database. The connection is opened by Start()
func New(opts ...MysqlOptionFunc) (*MetadataStoreMysql, error) {
	db := &MetadataStoreMysql{}
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

// normalizeDsn makes sure time columns scan into time.Time
func normalizeDsn(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" || strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}

// Start implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Start() error {
	dsn := normalizeDsn(d.dsn)
	if dsn == "" {
		return errors.New("mysql metadata: DSN not set")
	}
	metadataDb, err := gorm.Open(
		gormmysql.Open(dsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
		},
	)
	if err != nil {
		return err
	}
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
		"connected to mysql metadata store",
		"component", "database",
	)
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Stop() error {
	return d.Close()
}

// Close closes the database if it was opened
func (d *MetadataStoreMysql) Close() error {
	if d.Store == nil {
		return nil
	}
	return d.Store.Close()
}
