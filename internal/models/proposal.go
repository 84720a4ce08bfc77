package models

import (
	"time"

	"github.com/google/uuid"
)

// Proposal представляет предложение о финансировании. Владеет набором
// этапов (Deliverable) и проходит жизненный цикл из constants.go.
type Proposal struct {
	ID                    int64      `db:"id" json:"id"`
	Proposer              uuid.UUID  `db:"proposer" json:"proposer"`
	Category              string     `db:"category" json:"category"`
	Status                string     `db:"status" json:"status"`
	Title                 string     `db:"title" json:"title"`
	Description           string     `db:"description" json:"description"`
	ImageURL              string     `db:"image_url" json:"image_url"`
	RoadMap               string     `db:"road_map" json:"road_map"`
	EstimatedTime         int        `db:"estimated_time" json:"estimated_time"`
	TotalRequestedFunds   int64      `db:"total_requested_funds" json:"total_requested_funds"`
	RemainingFunds        int64      `db:"remaining_funds" json:"remaining_funds"`
	Deliverables          int        `db:"deliverables" json:"deliverables"`
	DeliverablesCompleted int        `db:"deliverables_completed" json:"deliverables_completed"`
	Reviewer              *uuid.UUID `db:"reviewer" json:"reviewer,omitempty"`
	BallotHandle          *string    `db:"ballot_handle" json:"ballot_handle,omitempty"`
	BallotYes             int64      `db:"ballot_yes" json:"ballot_yes"`
	BallotNo              int64      `db:"ballot_no" json:"ballot_no"`
	StatusComment         *string    `db:"status_comment" json:"status_comment,omitempty"`
	VoteEndTime           *time.Time `db:"vote_end_time" json:"vote_end_time,omitempty"`
	UpdateTS              time.Time  `db:"update_ts" json:"update_ts"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
}

// ProposalBody длинное описание предложения в Markdown. Хранится отдельно
// от основной записи, чтобы не читать тяжёлый текст при каждой операции.
type ProposalBody struct {
	ProposalID int64  `db:"proposal_id" json:"proposal_id"`
	Content    string `db:"content" json:"content"`
}

// ProposalDraftInput параметры создания черновика.
type ProposalDraftInput struct {
	Title         string
	Description   string
	Content       string
	ImageURL      string
	RoadMap       string
	EstimatedTime int
	Category      string
}

// ProposalEditInput параметры частичного редактирования черновика.
// nil означает «оставить текущее значение».
type ProposalEditInput struct {
	Title         *string
	Description   *string
	Content       *string
	ImageURL      *string
	RoadMap       *string
	EstimatedTime *int
	Category      *string
}
