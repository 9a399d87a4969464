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
)

var ErrSubmissionNotFound = errors.New("submission not found")

// Submission is a pending or validated data submission. Rejected submissions
// are deleted
type Submission struct {
	SubmittedAt time.Time
	Metadata    map[string]string `gorm:"serializer:json"`
	Value       *float64
	Latitude    *float64
	Longitude   *float64
	MeasuredAt  *time.Time
	ValidatedAt *time.Time
	Submitter   string `gorm:"index;size:128"`
	Validator   string `gorm:"size:128"`
	Data        string
	DataType    string `gorm:"size:64"`
	Unit        string `gorm:"size:32"`
	Location    string `gorm:"size:255"`
	DeviceID    string `gorm:"size:128"`
	ID          uint64 `gorm:"primaryKey;autoIncrement:false"`
	Validated   bool   `gorm:"index"`
}

func (Submission) TableName() string {
	return "submission"
}
