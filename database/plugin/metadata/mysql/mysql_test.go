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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDsn(t *testing.T) {
	testDefs := []struct {
		dsn      string
		expected string
	}{
		{dsn: "", expected: ""},
		{
			dsn:      "user:pass@tcp(localhost:3306)/ecochain",
			expected: "user:pass@tcp(localhost:3306)/ecochain?parseTime=true",
		},
		{
			dsn:      "user:pass@tcp(localhost:3306)/ecochain?charset=utf8mb4",
			expected: "user:pass@tcp(localhost:3306)/ecochain?charset=utf8mb4&parseTime=true",
		},
		{
			dsn:      " user@tcp(db)/ecochain?parseTime=false ",
			expected: "user@tcp(db)/ecochain?parseTime=false",
		},
	}
	for _, testDef := range testDefs {
		assert.Equal(t, testDef.expected, normalizeDsn(testDef.dsn))
	}
}

func TestStartWithoutDsn(t *testing.T) {
	store, err := New()
	assert.NoError(t, err)
	assert.ErrorContains(t, store.Start(), "DSN not set")
	assert.NoError(t, store.Close())
}
