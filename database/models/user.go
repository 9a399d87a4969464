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

package models

import (
	"errors"
	"time"

	"github.com/A-10-g/EcoChain-DAO/database/types"
)

var ErrUserNotFound = errors.New("user not found")

type User struct {
	RegisteredAt     time.Time
	Identity         string `gorm:"uniqueIndex;size:128"`
	Name             string `gorm:"size:64"`
	ID               uint   `gorm:"primarykey"`
	Balance          types.Uint64
	ProposalsCreated uint64
	VotesCast        uint64
	DataSubmissions  uint64
}

func (User) TableName() string {
	return "user_account"
}
