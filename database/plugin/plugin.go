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

package plugin

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Plugin interface {
	Start() error
	Stop() error
}

type PluginType int

const (
	PluginTypeBlob PluginType = iota + 1
	PluginTypeMetadata
)

func PluginTypeName(pluginType PluginType) string {
	switch pluginType {
	case PluginTypeBlob:
		return "blob"
	case PluginTypeMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// PluginOptions carries the settings shared by the storage plugins. Each
// plugin uses the fields relevant to it
type PluginOptions struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	// DataDir is the storage directory. An empty value selects in-memory storage
	DataDir string
	// Dsn is the connection string for networked metadata stores
	Dsn string
}

type PluginEntry struct {
	NewFunc     func(PluginOptions) (Plugin, error)
	Name        string
	Description string
	Type        PluginType
}

var (
	pluginEntries      []PluginEntry
	pluginEntriesMutex sync.RWMutex
)

// Register adds a plugin to the registry. Registering the same type and name
// again replaces the earlier entry
func Register(pluginEntry PluginEntry) {
	pluginEntriesMutex.Lock()
	defer pluginEntriesMutex.Unlock()
	for i, tmpEntry := range pluginEntries {
		if tmpEntry.Type == pluginEntry.Type &&
			tmpEntry.Name == pluginEntry.Name {
			pluginEntries[i] = pluginEntry
			return
		}
	}
	pluginEntries = append(pluginEntries, pluginEntry)
}

// GetPlugins returns the registered plugins of the given type sorted by name
func GetPlugins(pluginType PluginType) []PluginEntry {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	var ret []PluginEntry
	for _, tmpEntry := range pluginEntries {
		if tmpEntry.Type == pluginType {
			ret = append(ret, tmpEntry)
		}
	}
	slices.SortFunc(ret, func(a, b PluginEntry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return ret
}

func GetPluginEntry(
	pluginType PluginType,
	pluginName string,
) (PluginEntry, bool) {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	for _, tmpEntry := range pluginEntries {
		if tmpEntry.Type == pluginType && tmpEntry.Name == pluginName {
			return tmpEntry, true
		}
	}
	return PluginEntry{}, false
}

// StartPlugin creates a plugin from the registry and starts it
func StartPlugin(
	pluginType PluginType,
	pluginName string,
	opts PluginOptions,
) (Plugin, error) {
	entry, ok := GetPluginEntry(pluginType, pluginName)
	if !ok {
		return nil, fmt.Errorf(
			"%s plugin '%s' not found",
			PluginTypeName(pluginType),
			pluginName,
		)
	}
	p, err := entry.NewFunc(opts)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to create %s plugin '%s': %w",
			PluginTypeName(pluginType),
			pluginName,
			err,
		)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf(
			"failed to start %s plugin '%s': %w",
			PluginTypeName(pluginType),
			pluginName,
			err,
		)
	}
	return p, nil
}
