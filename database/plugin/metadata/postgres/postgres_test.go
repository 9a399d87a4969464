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

package postgres_test

import (
	"testing"

	"github.com/A-10-g/EcoChain-DAO/database/plugin"
	"github.com/A-10-g/EcoChain-DAO/database/plugin/metadata/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartWithoutDsn(t *testing.T) {
	store, err := postgres.New(postgres.WithDsn("  "))
	require.NoError(t, err)
	assert.ErrorContains(t, store.Start(), "DSN not set")
	assert.NoError(t, store.Stop())
}

func TestPluginRegistered(t *testing.T) {
	entry, ok := plugin.GetPluginEntry(plugin.PluginTypeMetadata, "postgres")
	require.True(t, ok)
	p, err := entry.NewFunc(plugin.PluginOptions{Dsn: "host=localhost"})
	require.NoError(t, err)
	assert.IsType(t, &postgres.MetadataStorePostgres{}, p)
}
