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
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"

	"github.com/A-10-g/EcoChain-DAO/database"
	"github.com/A-10-g/EcoChain-DAO/internal/config"
)

type backupFlags struct {
	output    string
	gcsBucket string
	gcsObject string
}

func backupCommand() *cobra.Command {
	var flags backupFlags
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a backup of the blob store to a file or a GCS object",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (flags.output == "") == (flags.gcsBucket == "") {
				return errors.New("specify exactly one of --output or --gcs-bucket")
			}
			if flags.gcsBucket != "" && flags.gcsObject == "" {
				return errors.New("--gcs-object is required with --gcs-bucket")
			}
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				return errors.New("no config found in context")
			}
			return backupRun(cmd.Context(), cfg, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "backup file path")
	cmd.Flags().StringVar(&flags.gcsBucket, "gcs-bucket", "", "GCS bucket to upload the backup to")
	cmd.Flags().StringVar(&flags.gcsObject, "gcs-object", "", "GCS object name for the backup")
	return cmd
}

func backupRun(ctx context.Context, cfg *config.Config, flags backupFlags) error {
	logger := newLogger(os.Stderr)
	db, err := database.New(&database.Config{
		Logger:         logger,
		DataDir:        cfg.DatabasePath,
		BlobPlugin:     cfg.BlobPlugin,
		MetadataPlugin: cfg.MetadataPlugin,
		MetadataDsn:    cfg.MetadataDsn,
	})
	if err != nil {
		var tsErr database.CommitTimestampError
		if db == nil || !errors.As(err, &tsErr) {
			return fmt.Errorf("failed to open database: %w", err)
		}
		// The blob store is still readable, back it up as it is
		logger.Warn(
			"database needs recovery, backing up as-is",
			"error", err,
		)
	}
	defer db.Close()

	if flags.output != "" {
		f, err := os.Create(flags.output)
		if err != nil {
			return err
		}
		if err := writeBackup(db, f); err != nil {
			f.Close()
			return fmt.Errorf("backup failed: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		logger.Info("wrote backup", "path", flags.output)
		return nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create GCS client: %w", err)
	}
	defer client.Close()
	uploadCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := client.Bucket(flags.gcsBucket).Object(flags.gcsObject).NewWriter(uploadCtx)
	w.ContentType = "application/octet-stream"
	if err := writeBackup(db, w); err != nil {
		// Abort the upload
		cancel()
		_ = w.Close()
		return fmt.Errorf("backup failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish upload: %w", err)
	}
	logger.Info(
		"uploaded backup",
		"bucket", flags.gcsBucket,
		"object", flags.gcsObject,
	)
	return nil
}

func writeBackup(db *database.Database, w io.Writer) error {
	return db.Blob().Backup(w)
}
