package dto

import (
	"time"

	"github.com/google/uuid"
)

// RecordRequest is the JSON submission body. audio_data is base64 or a data URL.
// chatid is accepted as an alias of session_id for older clients.
type RecordRequest struct {
	AudioData string `json:"audio_data" validate:"required"`
	SessionId string `json:"session_id" validate:"omitempty,max=128,printascii"`
	ChatId    string `json:"chatid" validate:"omitempty,max=128,printascii"`
	MimeType  string `json:"mime_type" validate:"omitempty,max=100"`
}

type RecordResponse struct {
	SessionId string    `json:"session_id"`
	ItemId    uuid.UUID `json:"item_id"`
	Status    string    `json:"status"`
	Duplicate bool      `json:"duplicate,omitempty"`
}

type ChatItemResponse struct {
	Id            uuid.UUID              `json:"id"`
	SessionId     string                 `json:"session_id"`
	Position      int                    `json:"position"`
	Question      *string                `json:"question"`
	Answer        *string                `json:"answer"`
	Status        string                 `json:"status"`
	FailureReason *string                `json:"failure_reason"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

type ListItemsQuery struct {
	Status string `json:"status" query:"status" validate:"omitempty,oneof=pending transcribing answering complete failed"`
	Limit  int    `json:"limit" query:"limit" validate:"gte=0,lte=500"`
	Offset int    `json:"offset" query:"offset" validate:"gte=0"`
}

type SessionSummaryResponse struct {
	SessionId      string    `json:"session_id"`
	ItemCount      int64     `json:"item_count"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type ClearHistoryRequest struct {
	SessionId string `json:"session_id" validate:"omitempty,max=128,printascii"`
}

type ClearHistoryResponse struct {
	SessionId    string `json:"session_id,omitempty"`
	DeletedCount int64  `json:"deleted_count"`
	BeforeCount  int64  `json:"before_count"`
	AfterCount   int64  `json:"after_count"`
}

type QueryStatusResponse struct {
	SessionId string     `json:"session_id"`
	ItemId    *uuid.UUID `json:"item_id"`
	HasQuery  bool       `json:"has_query"`
	Question  *string    `json:"question"`
	Status    string     `json:"status"`
}

type AnswerStatusResponse struct {
	SessionId     string     `json:"session_id"`
	ItemId        *uuid.UUID `json:"item_id"`
	HasAnswer     bool       `json:"has_answer"`
	IsProcessing  bool       `json:"is_processing"`
	Question      *string    `json:"question"`
	Answer        *string    `json:"answer"`
	Status        string     `json:"status"`
	FailureReason *string    `json:"failure_reason"`
}

type HealthResponse struct {
	Status            string `json:"status"`
	InFlightPipelines int    `json:"in_flight_pipelines"`
}
