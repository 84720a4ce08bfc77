package models

// ProposalStatus константы статусов предложений о финансировании
const (
	ProposalStatusDrafting   = "drafting"
	ProposalStatusSubmitted  = "submitted"
	ProposalStatusApproved   = "approved"
	ProposalStatusVoting     = "voting"
	ProposalStatusInProgress = "inprogress"
	ProposalStatusFailed     = "failed"
	ProposalStatusCancelled  = "cancelled"
	ProposalStatusCompleted  = "completed"
)

// DeliverableStatus константы статусов этапов работ
const (
	DeliverableStatusDrafting   = "drafting"
	DeliverableStatusInProgress = "inprogress"
	DeliverableStatusReported   = "reported"
	DeliverableStatusAccepted   = "accepted"
	DeliverableStatusRejected   = "rejected"
	DeliverableStatusClaimed    = "claimed"
)

// Роли пользователей
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Тарифы и ограничения казначейства. Суммы хранятся в минимальных
// единицах актива (8 знаков после запятой).
const (
	AssetPrecision = 100_000_000 // множитель минимальных единиц

	DraftFee  int64 = 100 * AssetPrecision // плата за создание черновика
	BallotFee int64 = 10 * AssetPrecision  // плата за создание голосования

	MaxDeliverables = 20
	MaxProposalID   = 0xFFFFFFFF
)

// Ограничения длины полей предложения
const (
	MaxTitleLen     = 64
	MaxDescrLen     = 160
	MaxImageURLLen  = 256
	MaxBodyLen      = 4096
	MaxRoadMapLen   = 2048
	MaxSmallDescLen = 80
)

// ValidProposalStatuses список валидных статусов предложений
var ValidProposalStatuses = map[string]struct{}{
	ProposalStatusDrafting:   {},
	ProposalStatusSubmitted:  {},
	ProposalStatusApproved:   {},
	ProposalStatusVoting:     {},
	ProposalStatusInProgress: {},
	ProposalStatusFailed:     {},
	ProposalStatusCancelled:  {},
	ProposalStatusCompleted:  {},
}

// ValidDeliverableStatuses список валидных статусов этапов
var ValidDeliverableStatuses = map[string]struct{}{
	DeliverableStatusDrafting:   {},
	DeliverableStatusInProgress: {},
	DeliverableStatusReported:   {},
	DeliverableStatusAccepted:   {},
	DeliverableStatusRejected:   {},
	DeliverableStatusClaimed:    {},
}

// proposalTransitions таблица допустимых переходов предложения.
// Любой переход вне таблицы запрещён.
var proposalTransitions = map[string]map[string]struct{}{
	ProposalStatusDrafting: {
		ProposalStatusSubmitted: {},
		ProposalStatusCancelled: {},
	},
	ProposalStatusSubmitted: {
		ProposalStatusApproved:   {},
		ProposalStatusInProgress: {}, // пропуск голосования админом
		ProposalStatusFailed:     {},
		ProposalStatusCancelled:  {},
	},
	ProposalStatusApproved: {
		ProposalStatusVoting:    {},
		ProposalStatusFailed:    {},
		ProposalStatusCancelled: {},
	},
	ProposalStatusVoting: {
		ProposalStatusInProgress: {},
		ProposalStatusFailed:     {},
		ProposalStatusCancelled:  {},
	},
	ProposalStatusInProgress: {
		ProposalStatusCompleted: {},
	},
}

// deliverableTransitions таблица допустимых переходов этапа.
var deliverableTransitions = map[string]map[string]struct{}{
	DeliverableStatusDrafting: {
		DeliverableStatusInProgress: {},
		DeliverableStatusRejected:   {}, // принудительно при отмене предложения
	},
	DeliverableStatusInProgress: {
		DeliverableStatusReported: {},
		DeliverableStatusRejected: {},
	},
	DeliverableStatusReported: {
		DeliverableStatusAccepted: {},
		DeliverableStatusRejected: {},
	},
	DeliverableStatusRejected: {
		DeliverableStatusReported: {},
	},
	DeliverableStatusAccepted: {
		DeliverableStatusClaimed: {},
	},
}

// CanTransitionProposal проверяет переход статуса предложения по таблице.
func CanTransitionProposal(from, to string) bool {
	next, ok := proposalTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// CanTransitionDeliverable проверяет переход статуса этапа по таблице.
func CanTransitionDeliverable(from, to string) bool {
	next, ok := deliverableTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// IsTerminalProposalStatus возвращает true для статусов, из которых
// предложение можно только удалить.
func IsTerminalProposalStatus(status string) bool {
	return status == ProposalStatusFailed ||
		status == ProposalStatusCancelled ||
		status == ProposalStatusCompleted
}

// IsCancellableProposalStatus возвращает true для статусов, из которых
// предложение можно отменить.
func IsCancellableProposalStatus(status string) bool {
	return status == ProposalStatusDrafting ||
		status == ProposalStatusSubmitted ||
		status == ProposalStatusApproved ||
		status == ProposalStatusVoting
}
