package events

import "time"

const (
	ChatItemEventPrefix  = "chat.item."
	HistoryClearedEvent  = "chat.history.cleared"
	OccurredAtPayloadKey = "occurred_at"
	EventTypePayloadKey  = "event_type"
)

// NewChatItemEvent names the event after the item's new status, e.g. "chat.item.answering".
func NewChatItemEvent(status string, data map[string]interface{}, at time.Time) BaseEvent {
	return newEvent(ChatItemEventPrefix+status, data, at)
}

func NewHistoryClearedEvent(data map[string]interface{}, at time.Time) BaseEvent {
	return newEvent(HistoryClearedEvent, data, at)
}

func newEvent(eventType string, data map[string]interface{}, at time.Time) BaseEvent {
	payload := make(map[string]interface{}, len(data)+2)
	for k, v := range data {
		payload[k] = v
	}
	payload[EventTypePayloadKey] = eventType
	payload[OccurredAtPayloadKey] = at.UTC().Format(time.RFC3339Nano)
	return BaseEvent{Type: eventType, Data: payload, OccurredAt: at}
}

// FromPayload rebuilds an event received off the wire.
func FromPayload(fallbackType string, payload map[string]interface{}) BaseEvent {
	event := BaseEvent{Type: fallbackType, Data: payload, OccurredAt: time.Now()}
	if t, ok := payload[EventTypePayloadKey].(string); ok && t != "" {
		event.Type = t
	}
	if ts, ok := payload[OccurredAtPayloadKey].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			event.OccurredAt = parsed
		}
	}
	return event
}
