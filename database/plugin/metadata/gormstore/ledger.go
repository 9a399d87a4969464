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

package gormstore

import (
	"errors"
	"fmt"

	"github.com/A-10-g/EcoChain-DAO/database/models"
	"github.com/A-10-g/EcoChain-DAO/database/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetLedgerState returns the ledger state row. A fresh database yields a
// zero-valued row
func (s *Store) GetLedgerState(txn types.Txn) (*models.LedgerState, error) {
	db, err := s.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	ret := &models.LedgerState{}
	result := db.Where("id = ?", models.LedgerStateRowId).First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return &models.LedgerState{ID: models.LedgerStateRowId}, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

// SetLedgerState saves the ledger state row
func (s *Store) SetLedgerState(
	state *models.LedgerState,
	txn types.Txn,
) error {
	db, err := s.resolveDB(txn)
	if err != nil {
		return err
	}
	state.ID = models.LedgerStateRowId
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(state)
	if result.Error != nil {
		return fmt.Errorf("failed to save ledger state: %w", result.Error)
	}
	return nil
}

// GetUsers returns all users ordered by registration
func (s *Store) GetUsers(txn types.Txn) ([]models.User, error) {
	db, err := s.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	var ret []models.User
	result := db.Order("id").Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetUser returns the user with the given identity
func (s *Store) GetUser(identity string, txn types.Txn) (*models.User, error) {
	db, err := s.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	ret := &models.User{}
	result := db.Where("identity = ?", identity).First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrUserNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

// SetUser inserts or updates a user keyed by identity
func (s *Store) SetUser(user *models.User, txn types.Txn) error {
	db, err := s.resolveDB(txn)
	if err != nil {
		return err
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity"}},
		UpdateAll: true,
	}).Create(user)
	if result.Error != nil {
		return fmt.Errorf("failed to save user: %w", result.Error)
	}
	return nil
}

// GetSubmissions returns all stored submissions ordered by ID
func (s *Store) GetSubmissions(txn types.Txn) ([]models.Submission, error) {
	db, err := s.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	var ret []models.Submission
	result := db.Order("id").Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// SetSubmission inserts or updates a submission
func (s *Store) SetSubmission(
	submission *models.Submission,
	txn types.Txn,
) error {
	db, err := s.resolveDB(txn)
	if err != nil {
		return err
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(submission)
	if result.Error != nil {
		return fmt.Errorf("failed to save submission: %w", result.Error)
	}
	return nil
}

// DeleteSubmission removes a submission
func (s *Store) DeleteSubmission(id uint64, txn types.Txn) error {
	db, err := s.resolveDB(txn)
	if err != nil {
		return err
	}
	result := db.Where("id = ?", id).Delete(&models.Submission{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete submission: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrSubmissionNotFound
	}
	return nil
}

// GetProposals returns all proposals ordered by ID
func (s *Store) GetProposals(txn types.Txn) ([]models.Proposal, error) {
	db, err := s.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	var ret []models.Proposal
	result := db.Order("id").Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// SetProposal inserts or updates a proposal
func (s *Store) SetProposal(proposal *models.Proposal, txn types.Txn) error {
	db, err := s.resolveDB(txn)
	if err != nil {
		return err
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(proposal)
	if result.Error != nil {
		return fmt.Errorf("failed to save proposal: %w", result.Error)
	}
	return nil
}

// GetProposalVotes returns every recorded vote in casting order
func (s *Store) GetProposalVotes(txn types.Txn) ([]models.ProposalVote, error) {
	db, err := s.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	var ret []models.ProposalVote
	result := db.Order("id").Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// AddProposalVote records a vote. A second vote by the same voter on the same
// proposal violates the unique index and fails
func (s *Store) AddProposalVote(vote *models.ProposalVote, txn types.Txn) error {
	db, err := s.resolveDB(txn)
	if err != nil {
		return err
	}
	if result := db.Create(vote); result.Error != nil {
		return fmt.Errorf("failed to save vote: %w", result.Error)
	}
	return nil
}
