package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/grantflow/grantflow-backend/internal/models"
)

var (
	// ErrDeliverableNotFound возвращается, когда этап не найден.
	ErrDeliverableNotFound = errors.New("deliverable not found")
	// ErrDeliverableStatus возвращается при переходе этапа вне таблицы переходов.
	ErrDeliverableStatus = errors.New("deliverable is not in required status")
	// ErrDeliverableLimit возвращается при превышении лимита этапов.
	ErrDeliverableLimit = errors.New("too many deliverables")
	// ErrLastDeliverable возвращается при удалении последнего этапа.
	ErrLastDeliverable = errors.New("proposal must keep at least one deliverable")
	// ErrRequestedBounds возвращается, когда суммарная запрошенная сумма
	// выходит за границы политики.
	ErrRequestedBounds = errors.New("total requested funds out of policy bounds")
)

const deliverableColumns = `proposal_id, deliverable_id, status, requested, recipient, report,
		small_description, days_to_complete, status_comment, review_time, created_at`

// DeliverableRepository отвечает за этапы работ. Операции, меняющие
// запрошенные суммы или двигающие средства, выполняются в одной
// транзакции с владеющим предложением и казначейством.
type DeliverableRepository struct {
	db *sqlx.DB
}

func NewDeliverableRepository(db *sqlx.DB) *DeliverableRepository {
	return &DeliverableRepository{db: db}
}

// Get возвращает этап предложения.
func (r *DeliverableRepository) Get(ctx context.Context, proposalID, deliverableID int64) (*models.Deliverable, error) {
	var deliv models.Deliverable
	query := `SELECT ` + deliverableColumns + ` FROM deliverables WHERE proposal_id = $1 AND deliverable_id = $2`
	if err := r.db.GetContext(ctx, &deliv, query, proposalID, deliverableID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeliverableNotFound
		}
		return nil, fmt.Errorf("deliverable repository: get %w", err)
	}
	return &deliv, nil
}

// ListByProposal возвращает все этапы предложения в порядке идентификаторов.
func (r *DeliverableRepository) ListByProposal(ctx context.Context, proposalID int64) ([]models.Deliverable, error) {
	var delivs []models.Deliverable
	query := `SELECT ` + deliverableColumns + ` FROM deliverables WHERE proposal_id = $1 ORDER BY deliverable_id`
	if err := r.db.SelectContext(ctx, &delivs, query, proposalID); err != nil {
		return nil, fmt.Errorf("deliverable repository: list %w", err)
	}
	return delivs, nil
}

// Add добавляет этап к черновику предложения и увеличивает его суммарную
// запрошенную сумму. Проверяет лимит этапов и верхнюю границу политики.
func (r *DeliverableRepository) Add(ctx context.Context, proposalID int64, in models.DeliverableInput) (*models.Deliverable, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ledger, err := lockLedger(ctx, tx)
	if err != nil {
		return nil, err
	}

	prop, err := lockProposal(ctx, tx, proposalID)
	if err != nil {
		return nil, err
	}

	if prop.Status != models.ProposalStatusDrafting {
		return nil, ErrInvalidStatus
	}
	if prop.Deliverables >= models.MaxDeliverables {
		return nil, ErrDeliverableLimit
	}
	if prop.TotalRequestedFunds+in.Requested > ledger.MaxRequested {
		return nil, ErrRequestedBounds
	}

	var deliv models.Deliverable
	err = tx.GetContext(ctx, &deliv, `
		INSERT INTO deliverables (proposal_id, deliverable_id, requested, recipient, small_description, days_to_complete)
		VALUES ($1, COALESCE((SELECT MAX(deliverable_id) FROM deliverables WHERE proposal_id = $1), 0) + 1, $2, $3, $4, $5)
		RETURNING `+deliverableColumns+`
	`, proposalID, in.Requested, in.Recipient, in.SmallDescription, in.DaysToComplete)
	if err != nil {
		return nil, fmt.Errorf("deliverable repository: add %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE proposals
		SET total_requested_funds = total_requested_funds + $2, deliverables = deliverables + 1, update_ts = NOW()
		WHERE id = $1
	`, proposalID, in.Requested)
	if err != nil {
		return nil, fmt.Errorf("deliverable repository: add update proposal %w", err)
	}

	return &deliv, tx.Commit()
}

// Edit изменяет этап черновика. Суммарная запрошенная сумма предложения
// пересчитывается точной дельтой new - old.
func (r *DeliverableRepository) Edit(ctx context.Context, proposalID, deliverableID int64, in models.DeliverableInput) (*models.Deliverable, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ledger, err := lockLedger(ctx, tx)
	if err != nil {
		return nil, err
	}

	prop, err := lockProposal(ctx, tx, proposalID)
	if err != nil {
		return nil, err
	}

	deliv, err := lockDeliverable(ctx, tx, proposalID, deliverableID)
	if err != nil {
		return nil, err
	}

	if prop.Status != models.ProposalStatusDrafting {
		return nil, ErrInvalidStatus
	}
	if deliv.Status != models.DeliverableStatusDrafting {
		return nil, ErrDeliverableStatus
	}

	delta := in.Requested - deliv.Requested
	newTotal := prop.TotalRequestedFunds + delta
	if newTotal <= 0 || newTotal > ledger.MaxRequested {
		return nil, ErrRequestedBounds
	}

	var updated models.Deliverable
	err = tx.GetContext(ctx, &updated, `
		UPDATE deliverables
		SET requested = $3, recipient = $4, small_description = $5, days_to_complete = $6
		WHERE proposal_id = $1 AND deliverable_id = $2
		RETURNING `+deliverableColumns+`
	`, proposalID, deliverableID, in.Requested, in.Recipient, in.SmallDescription, in.DaysToComplete)
	if err != nil {
		return nil, fmt.Errorf("deliverable repository: edit %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE proposals SET total_requested_funds = $2, update_ts = NOW() WHERE id = $1`,
		proposalID, newTotal)
	if err != nil {
		return nil, fmt.Errorf("deliverable repository: edit update proposal %w", err)
	}

	return &updated, tx.Commit()
}

// Remove удаляет этап черновика. Предложение обязано сохранить хотя бы
// один этап, а остаточная сумма — остаться положительной.
func (r *DeliverableRepository) Remove(ctx context.Context, proposalID, deliverableID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	prop, err := lockProposal(ctx, tx, proposalID)
	if err != nil {
		return err
	}

	deliv, err := lockDeliverable(ctx, tx, proposalID, deliverableID)
	if err != nil {
		return err
	}

	if prop.Status != models.ProposalStatusDrafting {
		return ErrInvalidStatus
	}
	if prop.Deliverables <= 1 {
		return ErrLastDeliverable
	}
	if prop.TotalRequestedFunds-deliv.Requested <= 0 {
		return ErrRequestedBounds
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM deliverables WHERE proposal_id = $1 AND deliverable_id = $2`,
		proposalID, deliverableID)
	if err != nil {
		return fmt.Errorf("deliverable repository: remove %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE proposals
		SET total_requested_funds = total_requested_funds - $2, deliverables = deliverables - 1, update_ts = NOW()
		WHERE id = $1
	`, proposalID, deliv.Requested)
	if err != nil {
		return fmt.Errorf("deliverable repository: remove update proposal %w", err)
	}

	return tx.Commit()
}

// SubmitReport сохраняет отчёт и переводит этап в состояние reported.
// Повторная подача после отклонения разрешена.
func (r *DeliverableRepository) SubmitReport(ctx context.Context, proposalID, deliverableID int64, report string) (*models.Deliverable, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	prop, err := lockProposal(ctx, tx, proposalID)
	if err != nil {
		return nil, err
	}

	deliv, err := lockDeliverable(ctx, tx, proposalID, deliverableID)
	if err != nil {
		return nil, err
	}

	if prop.Status != models.ProposalStatusInProgress {
		return nil, ErrInvalidStatus
	}
	if deliv.Status != models.DeliverableStatusInProgress && deliv.Status != models.DeliverableStatusRejected {
		return nil, ErrDeliverableStatus
	}

	var updated models.Deliverable
	err = tx.GetContext(ctx, &updated, `
		UPDATE deliverables SET status = 'reported', report = $3
		WHERE proposal_id = $1 AND deliverable_id = $2
		RETURNING `+deliverableColumns+`
	`, proposalID, deliverableID, report)
	if err != nil {
		return nil, fmt.Errorf("deliverable repository: submit report %w", err)
	}

	if err := touchProposal(ctx, tx, proposalID); err != nil {
		return nil, err
	}

	return &updated, tx.Commit()
}

// Review фиксирует решение ревьюера по отчёту: accepted либо rejected
// (возврат в цикл повторной подачи). Время проверки ставится в обоих случаях.
func (r *DeliverableRepository) Review(ctx context.Context, proposalID, deliverableID int64, accept bool, memo string) (*models.Deliverable, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	prop, err := lockProposal(ctx, tx, proposalID)
	if err != nil {
		return nil, err
	}

	deliv, err := lockDeliverable(ctx, tx, proposalID, deliverableID)
	if err != nil {
		return nil, err
	}

	if prop.Status != models.ProposalStatusInProgress {
		return nil, ErrInvalidStatus
	}
	if deliv.Status != models.DeliverableStatusReported {
		return nil, ErrDeliverableStatus
	}

	newStatus := models.DeliverableStatusRejected
	if accept {
		newStatus = models.DeliverableStatusAccepted
	}

	var updated models.Deliverable
	err = tx.GetContext(ctx, &updated, `
		UPDATE deliverables SET status = $3, status_comment = $4, review_time = NOW()
		WHERE proposal_id = $1 AND deliverable_id = $2
		RETURNING `+deliverableColumns+`
	`, proposalID, deliverableID, newStatus, memo)
	if err != nil {
		return nil, fmt.Errorf("deliverable repository: review %w", err)
	}

	if err := touchProposal(ctx, tx, proposalID); err != nil {
		return nil, err
	}

	return &updated, tx.Commit()
}

// ClaimFunds выплачивает принятый этап: единственный путь, которым
// средства покидают казначейство на свободный баланс получателя.
// Если этап последний, предложение автоматически завершается.
func (r *DeliverableRepository) ClaimFunds(ctx context.Context, proposalID, deliverableID int64) (*models.Deliverable, *models.Proposal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	if _, err := lockLedger(ctx, tx); err != nil {
		return nil, nil, err
	}

	prop, err := lockProposal(ctx, tx, proposalID)
	if err != nil {
		return nil, nil, err
	}

	deliv, err := lockDeliverable(ctx, tx, proposalID, deliverableID)
	if err != nil {
		return nil, nil, err
	}

	if prop.Status != models.ProposalStatusInProgress {
		return nil, nil, ErrInvalidStatus
	}
	if deliv.Status != models.DeliverableStatusAccepted {
		return nil, nil, ErrDeliverableStatus
	}

	var updated models.Deliverable
	err = tx.GetContext(ctx, &updated, `
		UPDATE deliverables SET status = 'claimed'
		WHERE proposal_id = $1 AND deliverable_id = $2
		RETURNING `+deliverableColumns+`
	`, proposalID, deliverableID)
	if err != nil {
		return nil, nil, fmt.Errorf("deliverable repository: claim %w", err)
	}

	newStatus := models.ProposalStatusInProgress
	if prop.DeliverablesCompleted == prop.Deliverables-1 {
		newStatus = models.ProposalStatusCompleted
	}

	var updatedProp models.Proposal
	err = tx.GetContext(ctx, &updatedProp, `
		UPDATE proposals
		SET status = $2, remaining_funds = remaining_funds - $3,
			deliverables_completed = deliverables_completed + 1, update_ts = NOW()
		WHERE id = $1
		RETURNING `+proposalColumns+`
	`, proposalID, newStatus, deliv.Requested)
	if err != nil {
		return nil, nil, fmt.Errorf("deliverable repository: claim update proposal %w", err)
	}

	// Выплата уходит из резерва в paid_funds, а зачисление на свободный
	// баланс зеркалируется в deposited_funds: deposited_funds всегда равен
	// сумме свободных балансов.
	_, err = tx.ExecContext(ctx, `
		UPDATE ledger
		SET reserved_funds = reserved_funds - $1, paid_funds = paid_funds + $1,
			deposited_funds = deposited_funds + $1, updated_at = NOW()
		WHERE id = 1
	`, deliv.Requested)
	if err != nil {
		return nil, nil, fmt.Errorf("deliverable repository: claim update ledger %w", err)
	}

	if err := creditBalance(ctx, tx, deliv.Recipient, deliv.Requested); err != nil {
		return nil, nil, err
	}

	return &updated, &updatedProp, tx.Commit()
}

// touchProposal обновляет метку последнего изменения предложения.
func touchProposal(ctx context.Context, tx *sqlx.Tx, proposalID int64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE proposals SET update_ts = NOW() WHERE id = $1`, proposalID); err != nil {
		return fmt.Errorf("deliverable repository: touch proposal %w", err)
	}
	return nil
}

// lockDeliverable читает этап под блокировкой FOR UPDATE.
func lockDeliverable(ctx context.Context, tx *sqlx.Tx, proposalID, deliverableID int64) (*models.Deliverable, error) {
	var deliv models.Deliverable
	query := `SELECT ` + deliverableColumns + ` FROM deliverables WHERE proposal_id = $1 AND deliverable_id = $2 FOR UPDATE`
	if err := tx.GetContext(ctx, &deliv, query, proposalID, deliverableID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeliverableNotFound
		}
		return nil, fmt.Errorf("deliverable repository: lock %w", err)
	}
	return &deliv, nil
}
