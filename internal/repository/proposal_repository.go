package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/grantflow/grantflow-backend/internal/models"
)

var (
	// ErrProposalNotFound возвращается, когда предложение не найдено.
	ErrProposalNotFound = errors.New("proposal not found")
	// ErrInvalidStatus возвращается при попытке перехода вне таблицы переходов.
	ErrInvalidStatus = errors.New("proposal is not in required status")
	// ErrReviewerNotSet возвращается при одобрении без назначенного ревьюера.
	ErrReviewerNotSet = errors.New("reviewer is not assigned")
	// ErrTreasuryInsufficient возвращается, когда доступных фондов казначейства
	// не хватает для резервирования под предложение.
	ErrTreasuryInsufficient = errors.New("treasury has insufficient available funds")
	// ErrDepositedInsufficient возвращается, когда суммарных депозитов не
	// хватает на оплату сбора за голосование.
	ErrDepositedInsufficient = errors.New("deposited funds are insufficient for the fee")
	// ErrProposalLimit возвращается при исчерпании диапазона идентификаторов.
	ErrProposalLimit = errors.New("proposal id limit reached")
)

const proposalColumns = `id, proposer, category, status, title, description, image_url, road_map,
		estimated_time, total_requested_funds, remaining_funds, deliverables, deliverables_completed,
		reviewer, ballot_handle, ballot_yes, ballot_no, status_comment, vote_end_time, update_ts, created_at`

// ProposalRepository отвечает за жизненный цикл предложений. Каждая
// операция-переход выполняется в одной транзакции: блокировка казначейства
// берётся раньше блокировки предложения.
type ProposalRepository struct {
	db *sqlx.DB
}

func NewProposalRepository(db *sqlx.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

// GetByID возвращает предложение по идентификатору.
func (r *ProposalRepository) GetByID(ctx context.Context, id int64) (*models.Proposal, error) {
	var prop models.Proposal
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE id = $1`
	if err := r.db.GetContext(ctx, &prop, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, fmt.Errorf("proposal repository: get by id %w", err)
	}
	return &prop, nil
}

// GetBody возвращает длинное Markdown описание предложения.
func (r *ProposalRepository) GetBody(ctx context.Context, id int64) (*models.ProposalBody, error) {
	var body models.ProposalBody
	err := r.db.GetContext(ctx, &body,
		`SELECT proposal_id, content FROM proposal_bodies WHERE proposal_id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, fmt.Errorf("proposal repository: get body %w", err)
	}
	return &body, nil
}

// GetByBallotHandle находит предложение по идентификатору голосования.
func (r *ProposalRepository) GetByBallotHandle(ctx context.Context, handle string) (*models.Proposal, error) {
	var prop models.Proposal
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE ballot_handle = $1`
	if err := r.db.GetContext(ctx, &prop, query, handle); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, fmt.Errorf("proposal repository: get by ballot %w", err)
	}
	return &prop, nil
}

// ListByStatusCategory возвращает предложения по статусу и, опционально,
// категории. Запрос ложится на индекс (status, category, id).
func (r *ProposalRepository) ListByStatusCategory(ctx context.Context, status, category string, limit, offset int) ([]models.Proposal, error) {
	var props []models.Proposal
	var err error
	if category == "" {
		query := `SELECT ` + proposalColumns + ` FROM proposals WHERE status = $1 ORDER BY id LIMIT $2 OFFSET $3`
		err = r.db.SelectContext(ctx, &props, query, status, limit, offset)
	} else {
		query := `SELECT ` + proposalColumns + ` FROM proposals WHERE status = $1 AND category = $2 ORDER BY id LIMIT $3 OFFSET $4`
		err = r.db.SelectContext(ctx, &props, query, status, category, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("proposal repository: list by status %w", err)
	}
	return props, nil
}

// ListByProposer возвращает предложения автора.
func (r *ProposalRepository) ListByProposer(ctx context.Context, proposer uuid.UUID, limit, offset int) ([]models.Proposal, error) {
	var props []models.Proposal
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE proposer = $1 ORDER BY status, id LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &props, query, proposer, limit, offset); err != nil {
		return nil, fmt.Errorf("proposal repository: list by proposer %w", err)
	}
	return props, nil
}

// ListByReviewer возвращает предложения, назначенные ревьюеру.
func (r *ProposalRepository) ListByReviewer(ctx context.Context, reviewer uuid.UUID, limit, offset int) ([]models.Proposal, error) {
	var props []models.Proposal
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE reviewer = $1 ORDER BY status, id LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &props, query, reviewer, limit, offset); err != nil {
		return nil, fmt.Errorf("proposal repository: list by reviewer %w", err)
	}
	return props, nil
}

// ListRecentlyUpdated возвращает предложения в порядке последнего изменения.
func (r *ProposalRepository) ListRecentlyUpdated(ctx context.Context, limit, offset int) ([]models.Proposal, error) {
	var props []models.Proposal
	query := `SELECT ` + proposalColumns + ` FROM proposals ORDER BY update_ts DESC, id DESC LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &props, query, limit, offset); err != nil {
		return nil, fmt.Errorf("proposal repository: list recent %w", err)
	}
	return props, nil
}

// CreateDraft создаёт черновик предложения. В одной транзакции списывается
// плата за черновик с баланса автора и переносится в доступные фонды
// казначейства, выдаётся следующий последовательный идентификатор.
func (r *ProposalRepository) CreateDraft(ctx context.Context, proposer uuid.UUID, in models.ProposalDraftInput) (*models.Proposal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ledger, err := lockLedger(ctx, tx)
	if err != nil {
		return nil, err
	}

	if ledger.LastProposalID >= models.MaxProposalID {
		return nil, ErrProposalLimit
	}

	if _, err := debitBalance(ctx, tx, proposer, models.DraftFee); err != nil {
		return nil, err
	}

	// Плата за черновик уходит из депозитов в доступные фонды.
	newID := ledger.LastProposalID + 1
	_, err = tx.ExecContext(ctx, `
		UPDATE ledger
		SET deposited_funds = deposited_funds - $1,
			available_funds = available_funds + $1,
			last_proposal_id = $2,
			updated_at = NOW()
		WHERE id = 1
	`, models.DraftFee, newID)
	if err != nil {
		return nil, fmt.Errorf("proposal repository: create draft ledger %w", err)
	}

	var prop models.Proposal
	err = tx.GetContext(ctx, &prop, `
		INSERT INTO proposals (id, proposer, category, status, title, description, image_url, road_map, estimated_time)
		VALUES ($1, $2, $3, 'drafting', $4, $5, $6, $7, $8)
		RETURNING `+proposalColumns+`
	`, newID, proposer, in.Category, in.Title, in.Description, in.ImageURL, in.RoadMap, in.EstimatedTime)
	if err != nil {
		return nil, fmt.Errorf("proposal repository: create draft %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO proposal_bodies (proposal_id, content) VALUES ($1, $2)`, newID, in.Content)
	if err != nil {
		return nil, fmt.Errorf("proposal repository: create draft body %w", err)
	}

	return &prop, tx.Commit()
}

// UpdateDraft сохраняет отредактированные поля черновика. Значения уже
// сведены сервисом; статус перепроверяется под блокировкой.
func (r *ProposalRepository) UpdateDraft(ctx context.Context, prop *models.Proposal, content *string) (*models.Proposal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	current, err := lockProposal(ctx, tx, prop.ID)
	if err != nil {
		return nil, err
	}
	if current.Status != models.ProposalStatusDrafting {
		return nil, ErrInvalidStatus
	}

	var updated models.Proposal
	err = tx.GetContext(ctx, &updated, `
		UPDATE proposals
		SET category = $2, title = $3, description = $4, image_url = $5, road_map = $6,
			estimated_time = $7, update_ts = NOW()
		WHERE id = $1
		RETURNING `+proposalColumns+`
	`, prop.ID, prop.Category, prop.Title, prop.Description, prop.ImageURL, prop.RoadMap, prop.EstimatedTime)
	if err != nil {
		return nil, fmt.Errorf("proposal repository: update draft %w", err)
	}

	if content != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO proposal_bodies (proposal_id, content) VALUES ($1, $2)
			ON CONFLICT (proposal_id) DO UPDATE SET content = EXCLUDED.content
		`, prop.ID, *content)
		if err != nil {
			return nil, fmt.Errorf("proposal repository: update draft body %w", err)
		}
	}

	return &updated, tx.Commit()
}

// Submit переводит черновик в состояние submitted. Требуется хотя бы один
// этап и сумма в границах политики; средства не двигаются.
func (r *ProposalRepository) Submit(ctx context.Context, id int64) (*models.Proposal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ledger, err := lockLedger(ctx, tx)
	if err != nil {
		return nil, err
	}

	prop, err := lockProposal(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if prop.Status != models.ProposalStatusDrafting {
		return nil, ErrInvalidStatus
	}
	if prop.Deliverables < 1 {
		return nil, errors.New("proposal must have at least one deliverable")
	}
	if prop.TotalRequestedFunds < ledger.MinRequested || prop.TotalRequestedFunds > ledger.MaxRequested {
		return nil, fmt.Errorf("total requested funds must be within [%d, %d]", ledger.MinRequested, ledger.MaxRequested)
	}

	updated, err := setProposalStatus(ctx, tx, id, models.ProposalStatusSubmitted, nil)
	if err != nil {
		return nil, err
	}

	return updated, tx.Commit()
}

// Review фиксирует решение админа по поданному предложению: approved либо
// failed. Одобрение требует назначенного ревьюера.
func (r *ProposalRepository) Review(ctx context.Context, id int64, approve bool, memo string) (*models.Proposal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	prop, err := lockProposal(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if prop.Status != models.ProposalStatusSubmitted {
		return nil, ErrInvalidStatus
	}

	newStatus := models.ProposalStatusFailed
	if approve {
		if prop.Reviewer == nil {
			return nil, ErrReviewerNotSet
		}
		newStatus = models.ProposalStatusApproved
	}

	updated, err := setProposalStatus(ctx, tx, id, newStatus, &memo)
	if err != nil {
		return nil, err
	}

	return updated, tx.Commit()
}

// SetReviewer назначает ревьюера предложения.
func (r *ProposalRepository) SetReviewer(ctx context.Context, id int64, reviewer uuid.UUID) (*models.Proposal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	prop, err := lockProposal(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if models.IsTerminalProposalStatus(prop.Status) {
		return nil, ErrInvalidStatus
	}

	var updated models.Proposal
	err = tx.GetContext(ctx, &updated, `
		UPDATE proposals SET reviewer = $2, update_ts = NOW() WHERE id = $1
		RETURNING `+proposalColumns+`
	`, id, reviewer)
	if err != nil {
		return nil, fmt.Errorf("proposal repository: set reviewer %w", err)
	}

	return &updated, tx.Commit()
}

// BeginVoting переводит одобренное предложение в состояние voting. Сбор за
// голосование списывается с баланса автора и с deposited_funds; сами
// запрошенные средства на этом шаге не резервируются.
func (r *ProposalRepository) BeginVoting(ctx context.Context, id int64, ballotHandle string, voteEndTime time.Time) (*models.Proposal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ledger, err := lockLedger(ctx, tx)
	if err != nil {
		return nil, err
	}

	prop, err := lockProposal(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if prop.Status != models.ProposalStatusApproved {
		return nil, ErrInvalidStatus
	}
	if prop.TotalRequestedFunds > ledger.MaxRequested {
		return nil, fmt.Errorf("total requested funds exceed allowed maximum %d", ledger.MaxRequested)
	}
	if ledger.DepositedFunds < models.BallotFee {
		return nil, ErrDepositedInsufficient
	}

	if _, err := debitBalance(ctx, tx, prop.Proposer, models.BallotFee); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE ledger SET deposited_funds = deposited_funds - $1, updated_at = NOW() WHERE id = 1`,
		models.BallotFee)
	if err != nil {
		return nil, fmt.Errorf("proposal repository: begin voting ledger %w", err)
	}

	var updated models.Proposal
	err = tx.GetContext(ctx, &updated, `
		UPDATE proposals
		SET status = 'voting', ballot_handle = $2, vote_end_time = $3, update_ts = NOW()
		WHERE id = $1
		RETURNING `+proposalColumns+`
	`, id, ballotHandle, voteEndTime)
	if err != nil {
		return nil, fmt.Errorf("proposal repository: begin voting %w", err)
	}

	return &updated, tx.Commit()
}

// SkipVoting переводит поданное предложение сразу в работу, минуя
// голосование. Выполняет то же резервирование средств, что и успешный
// итог голосования.
func (r *ProposalRepository) SkipVoting(ctx context.Context, id int64, memo string) (*models.Proposal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ledger, err := lockLedger(ctx, tx)
	if err != nil {
		return nil, err
	}

	prop, err := lockProposal(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if prop.Status != models.ProposalStatusSubmitted {
		return nil, ErrInvalidStatus
	}

	updated, err := reserveAndStart(ctx, tx, ledger, prop, &memo)
	if err != nil {
		return nil, err
	}

	return updated, tx.Commit()
}

// Cancel отменяет предложение из любого нетерминального состояния до
// начала работ. Все этапы принудительно переводятся в rejected.
func (r *ProposalRepository) Cancel(ctx context.Context, id int64, memo string) (*models.Proposal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	prop, err := lockProposal(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if !models.IsCancellableProposalStatus(prop.Status) {
		return nil, ErrInvalidStatus
	}

	updated, err := setProposalStatus(ctx, tx, id, models.ProposalStatusCancelled, &memo)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE deliverables SET status = 'rejected' WHERE proposal_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("proposal repository: cancel deliverables %w", err)
	}

	// Прежний статус нужен сервису: из voting дополнительно отменяется
	// голосование у внешней службы.
	updated.BallotHandle = prop.BallotHandle
	return updated, tx.Commit()
}

// Delete удаляет предложение в терминальном состоянии. Неизрасходованный
// остаток возвращается из резерва в доступные фонды.
func (r *ProposalRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := lockLedger(ctx, tx); err != nil {
		return err
	}

	prop, err := lockProposal(ctx, tx, id)
	if err != nil {
		return err
	}

	if !models.IsTerminalProposalStatus(prop.Status) {
		return ErrInvalidStatus
	}

	if prop.RemainingFunds > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE ledger
			SET reserved_funds = reserved_funds - $1,
				available_funds = available_funds + $1,
				updated_at = NOW()
			WHERE id = 1
		`, prop.RemainingFunds)
		if err != nil {
			return fmt.Errorf("proposal repository: delete ledger %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM deliverables WHERE proposal_id = $1`, id); err != nil {
		return fmt.Errorf("proposal repository: delete deliverables %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM proposal_bodies WHERE proposal_id = $1`, id); err != nil {
		return fmt.Errorf("proposal repository: delete body %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM proposals WHERE id = $1`, id); err != nil {
		return fmt.Errorf("proposal repository: delete %w", err)
	}

	return tx.Commit()
}

// ApplyVotePass фиксирует успешный итог голосования: резервирует полную
// запрошенную сумму и запускает предложение в работу.
func (r *ProposalRepository) ApplyVotePass(ctx context.Context, id int64, yes, no int64) (*models.Proposal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ledger, err := lockLedger(ctx, tx)
	if err != nil {
		return nil, err
	}

	prop, err := lockProposal(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if prop.Status != models.ProposalStatusVoting {
		return nil, ErrInvalidStatus
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE proposals SET ballot_yes = $2, ballot_no = $3 WHERE id = $1`, id, yes, no); err != nil {
		return nil, fmt.Errorf("proposal repository: apply vote results %w", err)
	}

	updated, err := reserveAndStart(ctx, tx, ledger, prop, nil)
	if err != nil {
		return nil, err
	}

	return updated, tx.Commit()
}

// ApplyVoteFail фиксирует неуспешный итог голосования. Средства не
// двигаются: под голосующее предложение ничего не резервировалось.
func (r *ProposalRepository) ApplyVoteFail(ctx context.Context, id int64, yes, no int64) (*models.Proposal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	prop, err := lockProposal(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if prop.Status != models.ProposalStatusVoting {
		return nil, ErrInvalidStatus
	}

	var updated models.Proposal
	err = tx.GetContext(ctx, &updated, `
		UPDATE proposals
		SET status = 'failed', ballot_yes = $2, ballot_no = $3, update_ts = NOW()
		WHERE id = $1
		RETURNING `+proposalColumns+`
	`, id, yes, no)
	if err != nil {
		return nil, fmt.Errorf("proposal repository: apply vote fail %w", err)
	}

	return &updated, tx.Commit()
}

// reserveAndStart перемещает полную запрошенную сумму из доступных фондов
// в резерв и переводит предложение со всеми этапами в работу. Единственная
// точка проверки платёжеспособности казначейства.
func reserveAndStart(ctx context.Context, tx *sqlx.Tx, ledger *models.Ledger, prop *models.Proposal, memo *string) (*models.Proposal, error) {
	if ledger.AvailableFunds < prop.TotalRequestedFunds {
		return nil, ErrTreasuryInsufficient
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE ledger
		SET available_funds = available_funds - $1,
			reserved_funds = reserved_funds + $1,
			updated_at = NOW()
		WHERE id = 1
	`, prop.TotalRequestedFunds)
	if err != nil {
		return nil, fmt.Errorf("proposal repository: reserve funds %w", err)
	}

	var updated models.Proposal
	err = tx.GetContext(ctx, &updated, `
		UPDATE proposals
		SET status = 'inprogress', remaining_funds = total_requested_funds,
			status_comment = COALESCE($2, status_comment), update_ts = NOW()
		WHERE id = $1
		RETURNING `+proposalColumns+`
	`, prop.ID, memo)
	if err != nil {
		return nil, fmt.Errorf("proposal repository: start proposal %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE deliverables SET status = 'inprogress' WHERE proposal_id = $1`, prop.ID)
	if err != nil {
		return nil, fmt.Errorf("proposal repository: start deliverables %w", err)
	}

	return &updated, nil
}

// setProposalStatus обновляет статус и комментарий внутри транзакции.
func setProposalStatus(ctx context.Context, tx *sqlx.Tx, id int64, status string, memo *string) (*models.Proposal, error) {
	var updated models.Proposal
	err := tx.GetContext(ctx, &updated, `
		UPDATE proposals
		SET status = $2, status_comment = COALESCE($3, status_comment), update_ts = NOW()
		WHERE id = $1
		RETURNING `+proposalColumns+`
	`, id, status, memo)
	if err != nil {
		return nil, fmt.Errorf("proposal repository: set status %w", err)
	}
	return &updated, nil
}

// lockProposal читает предложение под блокировкой FOR UPDATE.
func lockProposal(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Proposal, error) {
	var prop models.Proposal
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &prop, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, fmt.Errorf("proposal repository: lock %w", err)
	}
	return &prop, nil
}
