package transcription

import (
	"context"
	"errors"
	"strings"
)

// Audio is an opaque recording handed to a speech-to-text backend.
type Audio struct {
	Data     []byte
	MimeType string
}

// ErrEmptyTranscript means the backend heard nothing it could transcribe. Retrying will not help.
var ErrEmptyTranscript = errors.New("transcription is empty")

type Provider interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

var extensions = map[string]string{
	"audio/webm":   "webm",
	"audio/wav":    "wav",
	"audio/x-wav":  "wav",
	"audio/wave":   "wav",
	"audio/mpeg":   "mp3",
	"audio/mp3":    "mp3",
	"audio/mp4":    "m4a",
	"audio/x-m4a":  "m4a",
	"audio/ogg":    "ogg",
	"audio/flac":   "flac",
	"audio/x-flac": "flac",
}

// BaseMimeType strips parameters such as ";codecs=opus".
func BaseMimeType(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	if base == "" {
		return "audio/webm"
	}
	return base
}

// FileName picks an upload name whose extension matches the mime type.
func FileName(mimeType string) string {
	if ext, ok := extensions[BaseMimeType(mimeType)]; ok {
		return "recording." + ext
	}
	return "recording.webm"
}

// StatusError is a non-2xx answer from a transcription backend.
type StatusError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return e.Provider + " transcription failed: " + e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
