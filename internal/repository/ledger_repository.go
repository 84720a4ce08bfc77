package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/grantflow/grantflow-backend/internal/models"
)

var (
	// ErrCategoryExists возвращается при добавлении уже активной категории.
	ErrCategoryExists = errors.New("category already exists")
	// ErrCategoryNotFound возвращается, когда категория не числится активной.
	ErrCategoryNotFound = errors.New("category not found")
)

const ledgerColumns = `id, available_funds, reserved_funds, deposited_funds, paid_funds,
		last_proposal_id, vote_duration, quorum_threshold, yes_threshold,
		min_requested, max_requested, categories, cat_deprecated, updated_at`

// LedgerRepository отвечает за единственную запись казначейства.
type LedgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Get возвращает текущее состояние казначейства.
func (r *LedgerRepository) Get(ctx context.Context) (*models.Ledger, error) {
	var ledger models.Ledger
	query := `SELECT ` + ledgerColumns + ` FROM ledger WHERE id = 1`
	if err := r.db.GetContext(ctx, &ledger, query); err != nil {
		return nil, fmt.Errorf("ledger repository: get %w", err)
	}
	return &ledger, nil
}

// SetVoteDuration обновляет длительность голосования (в секундах).
func (r *LedgerRepository) SetVoteDuration(ctx context.Context, seconds int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE ledger SET vote_duration = $1, updated_at = NOW() WHERE id = 1`, seconds)
	if err != nil {
		return fmt.Errorf("ledger repository: set vote duration %w", err)
	}
	return nil
}

// SetThresholds обновляет пороги кворума и одобрения (в процентах).
func (r *LedgerRepository) SetThresholds(ctx context.Context, quorum, yes float64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE ledger SET quorum_threshold = $1, yes_threshold = $2, updated_at = NOW() WHERE id = 1`,
		quorum, yes)
	if err != nil {
		return fmt.Errorf("ledger repository: set thresholds %w", err)
	}
	return nil
}

// SetRequestedBounds обновляет границы запрашиваемой суммы предложения.
func (r *LedgerRepository) SetRequestedBounds(ctx context.Context, min, max int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE ledger SET min_requested = $1, max_requested = $2, updated_at = NOW() WHERE id = 1`,
		min, max)
	if err != nil {
		return fmt.Errorf("ledger repository: set requested bounds %w", err)
	}
	return nil
}

// AddCategory добавляет новую категорию или возвращает выведенную из
// употребления обратно в активный список.
func (r *LedgerRepository) AddCategory(ctx context.Context, category string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ledger, err := lockLedger(ctx, tx)
	if err != nil {
		return err
	}

	deprecated := false
	for _, c := range ledger.CatDeprecated {
		if c == category {
			deprecated = true
			break
		}
	}

	if !deprecated {
		for _, c := range ledger.Categories {
			if c == category {
				return ErrCategoryExists
			}
		}
	}

	if deprecated {
		// Реактивация: убираем из списка выведенных.
		remaining := make([]string, 0, len(ledger.CatDeprecated))
		for _, c := range ledger.CatDeprecated {
			if c != category {
				remaining = append(remaining, c)
			}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE ledger SET cat_deprecated = $1, updated_at = NOW() WHERE id = 1`,
			pq.StringArray(remaining))
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE ledger SET categories = array_append(categories, $1), updated_at = NOW() WHERE id = 1`,
			category)
	}
	if err != nil {
		return fmt.Errorf("ledger repository: add category %w", err)
	}

	return tx.Commit()
}

// DeprecateCategory помечает категорию как выведенную из употребления.
// Существующие предложения её сохраняют, новые создавать нельзя.
func (r *LedgerRepository) DeprecateCategory(ctx context.Context, category string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ledger, err := lockLedger(ctx, tx)
	if err != nil {
		return err
	}

	if !ledger.IsActiveCategory(category) {
		return ErrCategoryNotFound
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE ledger SET cat_deprecated = array_append(cat_deprecated, $1), updated_at = NOW() WHERE id = 1`,
		category)
	if err != nil {
		return fmt.Errorf("ledger repository: deprecate category %w", err)
	}

	return tx.Commit()
}

// lockLedger читает запись казначейства под блокировкой FOR UPDATE.
// Порядок блокировок во всех транзакциях: казначейство раньше предложения.
func lockLedger(ctx context.Context, tx *sqlx.Tx) (*models.Ledger, error) {
	var ledger models.Ledger
	query := `SELECT ` + ledgerColumns + ` FROM ledger WHERE id = 1 FOR UPDATE`
	if err := tx.GetContext(ctx, &ledger, query); err != nil {
		return nil, fmt.Errorf("ledger repository: lock %w", err)
	}
	return &ledger, nil
}
