package entity

import (
	"time"

	"github.com/google/uuid"
)

type ItemStatus string

const (
	ItemStatusPending      ItemStatus = "pending"
	ItemStatusTranscribing ItemStatus = "transcribing"
	ItemStatusAnswering    ItemStatus = "answering"
	ItemStatusComplete     ItemStatus = "complete"
	ItemStatusFailed       ItemStatus = "failed"
)

// nextStatus is the single forward step of the happy path.
var nextStatus = map[ItemStatus]ItemStatus{
	ItemStatusPending:      ItemStatusTranscribing,
	ItemStatusTranscribing: ItemStatusAnswering,
	ItemStatusAnswering:    ItemStatusComplete,
}

func (s ItemStatus) Valid() bool {
	switch s {
	case ItemStatusPending, ItemStatusTranscribing, ItemStatusAnswering, ItemStatusComplete, ItemStatusFailed:
		return true
	}
	return false
}

func (s ItemStatus) IsTerminal() bool {
	return s == ItemStatusComplete || s == ItemStatusFailed
}

// CanTransitionTo reports whether to is directly reachable from s.
// Re-entering the current status is not a transition.
func (s ItemStatus) CanTransitionTo(to ItemStatus) bool {
	if s.IsTerminal() || !to.Valid() || s == to {
		return false
	}
	if to == ItemStatusFailed {
		return true
	}
	return nextStatus[s] == to
}

// ChatItem is one question/answer exchange inside a session.
type ChatItem struct {
	Id            uuid.UUID
	ChatSessionId string
	Position      int
	Question      *string
	Answer        *string
	Status        ItemStatus
	FailureReason *string
	Metadata      map[string]interface{}
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ItemUpdate is a partial update; nil fields are left untouched.
type ItemUpdate struct {
	Status        *ItemStatus
	Question      *string
	Answer        *string
	FailureReason *string
	Metadata      map[string]interface{}
}

func (u ItemUpdate) WithStatus(status ItemStatus) ItemUpdate {
	u.Status = &status
	return u
}
