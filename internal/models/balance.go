package models

import (
	"time"

	"github.com/google/uuid"
)

// Balance представляет свободный баланс участника: средства на депозите,
// доступные для вывода или оплаты сборов.
type Balance struct {
	Owner     uuid.UUID `db:"owner" json:"owner"`
	Amount    int64     `db:"amount" json:"amount"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
