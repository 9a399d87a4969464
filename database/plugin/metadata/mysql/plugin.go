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
	"github.com/A-10-g/EcoChain-DAO/database/plugin"
)

// Register plugin
func init() {
	plugin.Register(
		plugin.PluginEntry{
			Type:        plugin.PluginTypeMetadata,
			Name:        "mysql",
			Description: "MySQL relational database",
			NewFunc:     NewFromPluginOptions,
		},
	)
}

func NewFromPluginOptions(opts plugin.PluginOptions) (plugin.Plugin, error) {
	return New(
		WithDsn(opts.Dsn),
		WithLogger(opts.Logger),
		WithPromRegistry(opts.PromRegistry),
	)
}
