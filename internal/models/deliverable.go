package models

import (
	"time"

	"github.com/google/uuid"
)

// Deliverable представляет этап работ внутри предложения со своей
// запрошенной суммой, получателем и циклом проверки.
type Deliverable struct {
	ProposalID       int64      `db:"proposal_id" json:"proposal_id"`
	DeliverableID    int64      `db:"deliverable_id" json:"deliverable_id"`
	Status           string     `db:"status" json:"status"`
	Requested        int64      `db:"requested" json:"requested"`
	Recipient        uuid.UUID  `db:"recipient" json:"recipient"`
	Report           string     `db:"report" json:"report"`
	SmallDescription string     `db:"small_description" json:"small_description"`
	DaysToComplete   int        `db:"days_to_complete" json:"days_to_complete"`
	StatusComment    *string    `db:"status_comment" json:"status_comment,omitempty"`
	ReviewTime       *time.Time `db:"review_time" json:"review_time,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// DeliverableInput параметры создания или редактирования этапа.
type DeliverableInput struct {
	Requested        int64
	Recipient        uuid.UUID
	SmallDescription string
	DaysToComplete   int
}
