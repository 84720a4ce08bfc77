package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/grantflow/grantflow-backend/internal/models"
)

var (
	// ErrInsufficientFunds возвращается при списании сверх свободного баланса.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrBalanceNotFound возвращается, когда запись баланса отсутствует.
	ErrBalanceNotFound = errors.New("balance not found")
	// ErrBalanceNotEmpty возвращается при удалении ненулевого баланса.
	ErrBalanceNotEmpty = errors.New("balance must be empty to delete")
)

// BalanceRepository отвечает за свободные балансы участников и их связь
// с суммарными фондами казначейства.
type BalanceRepository struct {
	db *sqlx.DB
}

func NewBalanceRepository(db *sqlx.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// Get возвращает баланс владельца.
func (r *BalanceRepository) Get(ctx context.Context, owner uuid.UUID) (*models.Balance, error) {
	var balance models.Balance
	query := `SELECT owner, amount, updated_at FROM balances WHERE owner = $1`
	if err := r.db.GetContext(ctx, &balance, query, owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBalanceNotFound
		}
		return nil, fmt.Errorf("balance repository: get %w", err)
	}
	return &balance, nil
}

// Deposit обрабатывает уведомление о входящем переводе. Депозит зачисляется
// на баланс отправителя, и та же сумма прибавляется к deposited_funds —
// эти два значения всегда меняются вместе.
func (r *BalanceRepository) Deposit(ctx context.Context, from uuid.UUID, amount int64) (*models.Balance, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := lockLedger(ctx, tx); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE ledger SET deposited_funds = deposited_funds + $1, updated_at = NOW() WHERE id = 1`,
		amount)
	if err != nil {
		return nil, fmt.Errorf("balance repository: deposit ledger %w", err)
	}

	var balance models.Balance
	err = tx.GetContext(ctx, &balance, `
		INSERT INTO balances (owner, amount)
		VALUES ($1, $2)
		ON CONFLICT (owner) DO UPDATE SET amount = balances.amount + $2, updated_at = NOW()
		RETURNING owner, amount, updated_at
	`, from, amount)
	if err != nil {
		return nil, fmt.Errorf("balance repository: deposit credit %w", err)
	}

	return &balance, tx.Commit()
}

// Donate зачисляет перевод с пометкой "fund" напрямую в доступные фонды
// казначейства, минуя балансы.
func (r *BalanceRepository) Donate(ctx context.Context, amount int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE ledger SET available_funds = available_funds + $1, updated_at = NOW() WHERE id = 1`,
		amount)
	if err != nil {
		return fmt.Errorf("balance repository: donate %w", err)
	}
	return nil
}

// Withdraw списывает сумму со свободного баланса владельца и уменьшает
// deposited_funds: средства покидают систему.
func (r *BalanceRepository) Withdraw(ctx context.Context, owner uuid.UUID, amount int64) (*models.Balance, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := lockLedger(ctx, tx); err != nil {
		return nil, err
	}

	balance, err := debitBalance(ctx, tx, owner, amount)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE ledger SET deposited_funds = deposited_funds - $1, updated_at = NOW() WHERE id = 1`,
		amount)
	if err != nil {
		return nil, fmt.Errorf("balance repository: withdraw ledger %w", err)
	}

	return balance, tx.Commit()
}

// Delete удаляет запись баланса. Разрешено только при нулевом остатке,
// автоматического удаления при списании до нуля нет.
func (r *BalanceRepository) Delete(ctx context.Context, owner uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var balance models.Balance
	err = tx.GetContext(ctx, &balance,
		`SELECT owner, amount, updated_at FROM balances WHERE owner = $1 FOR UPDATE`, owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrBalanceNotFound
		}
		return fmt.Errorf("balance repository: delete get %w", err)
	}

	if balance.Amount != 0 {
		return ErrBalanceNotEmpty
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM balances WHERE owner = $1`, owner); err != nil {
		return fmt.Errorf("balance repository: delete %w", err)
	}

	return tx.Commit()
}

// debitBalance списывает сумму внутри открытой транзакции. Баланс
// блокируется FOR UPDATE, отрицательный остаток невозможен.
func debitBalance(ctx context.Context, tx *sqlx.Tx, owner uuid.UUID, amount int64) (*models.Balance, error) {
	var balance models.Balance
	err := tx.GetContext(ctx, &balance,
		`SELECT owner, amount, updated_at FROM balances WHERE owner = $1 FOR UPDATE`, owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInsufficientFunds
		}
		return nil, fmt.Errorf("balance repository: debit get %w", err)
	}

	if balance.Amount < amount {
		return nil, ErrInsufficientFunds
	}

	err = tx.GetContext(ctx, &balance, `
		UPDATE balances SET amount = amount - $2, updated_at = NOW()
		WHERE owner = $1
		RETURNING owner, amount, updated_at
	`, owner, amount)
	if err != nil {
		return nil, fmt.Errorf("balance repository: debit %w", err)
	}

	return &balance, nil
}

// creditBalance зачисляет сумму внутри открытой транзакции, создавая
// запись при первом зачислении.
func creditBalance(ctx context.Context, tx *sqlx.Tx, owner uuid.UUID, amount int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO balances (owner, amount)
		VALUES ($1, $2)
		ON CONFLICT (owner) DO UPDATE SET amount = balances.amount + $2, updated_at = NOW()
	`, owner, amount)
	if err != nil {
		return fmt.Errorf("balance repository: credit %w", err)
	}
	return nil
}
