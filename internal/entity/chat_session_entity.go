package entity

import (
	"time"
)

type ChatSession struct {
	Id             string
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// ChatSessionSummary is a session together with the size of its history.
type ChatSessionSummary struct {
	Id             string
	ItemCount      int64
	CreatedAt      time.Time
	LastActivityAt time.Time
}
