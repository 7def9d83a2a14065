package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChatItemEventRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)
	event := NewChatItemEvent("complete", map[string]interface{}{"item_id": "abc"}, at)

	assert.Equal(t, "chat.item.complete", event.EventType())
	assert.Equal(t, "abc", event.Payload()["item_id"])

	rebuilt := FromPayload("events.chat.item.complete", event.Payload())
	assert.Equal(t, "chat.item.complete", rebuilt.EventType())
	assert.True(t, at.Equal(rebuilt.Timestamp()))
}

func TestFromPayloadFallsBack(t *testing.T) {
	event := FromPayload("events.unknown", map[string]interface{}{})
	assert.Equal(t, "events.unknown", event.EventType())
	assert.False(t, event.Timestamp().IsZero())
}
