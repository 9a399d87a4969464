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

package plugin_test

import (
	"errors"
	"testing"

	"github.com/A-10-g/EcoChain-DAO/database/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPlugin struct {
	startErr error
	started  bool
}

func (m *mockPlugin) Start() error {
	m.started = true
	return m.startErr
}

func (m *mockPlugin) Stop() error { return nil }

func TestRegisterAndGetPlugins(t *testing.T) {
	blobName1 := "blob-b-" + t.Name()
	blobName2 := "blob-a-" + t.Name()
	metaName := "meta-" + t.Name()
	newFunc := func(plugin.PluginOptions) (plugin.Plugin, error) {
		return &mockPlugin{}, nil
	}
	plugin.Register(plugin.PluginEntry{Type: plugin.PluginTypeBlob, Name: blobName1, NewFunc: newFunc})
	plugin.Register(plugin.PluginEntry{Type: plugin.PluginTypeBlob, Name: blobName2, NewFunc: newFunc})
	plugin.Register(plugin.PluginEntry{Type: plugin.PluginTypeMetadata, Name: metaName, NewFunc: newFunc})

	var blobNames []string
	for _, entry := range plugin.GetPlugins(plugin.PluginTypeBlob) {
		assert.Equal(t, plugin.PluginTypeBlob, entry.Type)
		blobNames = append(blobNames, entry.Name)
	}
	assert.Contains(t, blobNames, blobName1)
	assert.Contains(t, blobNames, blobName2)
	assert.NotContains(t, blobNames, metaName)
	assert.IsNonDecreasing(t, blobNames)

	_, ok := plugin.GetPluginEntry(plugin.PluginTypeMetadata, metaName)
	assert.True(t, ok)
	_, ok = plugin.GetPluginEntry(plugin.PluginTypeBlob, metaName)
	assert.False(t, ok)
}

func TestRegisterReplaces(t *testing.T) {
	name := "replace-" + t.Name()
	plugin.Register(plugin.PluginEntry{Type: plugin.PluginTypeBlob, Name: name, Description: "first"})
	plugin.Register(plugin.PluginEntry{Type: plugin.PluginTypeBlob, Name: name, Description: "second"})
	entry, ok := plugin.GetPluginEntry(plugin.PluginTypeBlob, name)
	require.True(t, ok)
	assert.Equal(t, "second", entry.Description)
	count := 0
	for _, tmpEntry := range plugin.GetPlugins(plugin.PluginTypeBlob) {
		if tmpEntry.Name == name {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestStartPlugin(t *testing.T) {
	name := "start-" + t.Name()
	mock := &mockPlugin{}
	plugin.Register(plugin.PluginEntry{
		Type: plugin.PluginTypeMetadata,
		Name: name,
		NewFunc: func(plugin.PluginOptions) (plugin.Plugin, error) {
			return mock, nil
		},
	})
	p, err := plugin.StartPlugin(plugin.PluginTypeMetadata, name, plugin.PluginOptions{})
	require.NoError(t, err)
	assert.Same(t, mock, p)
	assert.True(t, mock.started)

	_, err = plugin.StartPlugin(plugin.PluginTypeMetadata, "missing-"+name, plugin.PluginOptions{})
	assert.ErrorContains(t, err, "not found")
}

func TestStartPluginError(t *testing.T) {
	name := "fail-" + t.Name()
	startErr := errors.New("boom")
	plugin.Register(plugin.PluginEntry{
		Type: plugin.PluginTypeBlob,
		Name: name,
		NewFunc: func(plugin.PluginOptions) (plugin.Plugin, error) {
			return &mockPlugin{startErr: startErr}, nil
		},
	})
	_, err := plugin.StartPlugin(plugin.PluginTypeBlob, name, plugin.PluginOptions{})
	assert.ErrorIs(t, err, startErr)
}
