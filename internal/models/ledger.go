package models

import (
	"time"

	"github.com/lib/pq"
)

// Ledger представляет единственную запись казначейства: суммарные фонды
// и политики финансирования. Создаётся один раз при миграции.
type Ledger struct {
	ID              int            `db:"id" json:"-"`
	AvailableFunds  int64          `db:"available_funds" json:"available_funds"`
	ReservedFunds   int64          `db:"reserved_funds" json:"reserved_funds"`
	DepositedFunds  int64          `db:"deposited_funds" json:"deposited_funds"`
	PaidFunds       int64          `db:"paid_funds" json:"paid_funds"`
	LastProposalID  int64          `db:"last_proposal_id" json:"last_proposal_id"`
	VoteDuration    int64          `db:"vote_duration" json:"vote_duration"`
	QuorumThreshold float64        `db:"quorum_threshold" json:"quorum_threshold"`
	YesThreshold    float64        `db:"yes_threshold" json:"yes_threshold"`
	MinRequested    int64          `db:"min_requested" json:"min_requested"`
	MaxRequested    int64          `db:"max_requested" json:"max_requested"`
	Categories      pq.StringArray `db:"categories" json:"categories"`
	CatDeprecated   pq.StringArray `db:"cat_deprecated" json:"cat_deprecated"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// IsActiveCategory проверяет, что категория включена и не выведена из
// употребления.
func (l *Ledger) IsActiveCategory(category string) bool {
	for _, c := range l.CatDeprecated {
		if c == category {
			return false
		}
	}
	for _, c := range l.Categories {
		if c == category {
			return true
		}
	}
	return false
}
