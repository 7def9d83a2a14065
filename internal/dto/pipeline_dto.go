package dto

import (
	"time"

	"github.com/google/uuid"
)

// PipelineJobMessage is the payload queued for the pipeline worker.
type PipelineJobMessage struct {
	ItemId      uuid.UUID `json:"item_id"`
	SessionId   string    `json:"session_id"`
	Audio       []byte    `json:"audio"`
	MimeType    string    `json:"mime_type"`
	SubmittedAt time.Time `json:"submitted_at"`
}
