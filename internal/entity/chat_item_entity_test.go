package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemStatusTransitions(t *testing.T) {
	tests := []struct {
		from ItemStatus
		to   ItemStatus
		want bool
	}{
		{ItemStatusPending, ItemStatusTranscribing, true},
		{ItemStatusTranscribing, ItemStatusAnswering, true},
		{ItemStatusAnswering, ItemStatusComplete, true},
		{ItemStatusPending, ItemStatusFailed, true},
		{ItemStatusTranscribing, ItemStatusFailed, true},
		{ItemStatusAnswering, ItemStatusFailed, true},

		{ItemStatusPending, ItemStatusPending, false},
		{ItemStatusTranscribing, ItemStatusTranscribing, false},
		{ItemStatusAnswering, ItemStatusAnswering, false},
		{ItemStatusPending, ItemStatusAnswering, false},
		{ItemStatusPending, ItemStatusComplete, false},
		{ItemStatusAnswering, ItemStatusTranscribing, false},
		{ItemStatusTranscribing, ItemStatusPending, false},
		{ItemStatusComplete, ItemStatusFailed, false},
		{ItemStatusComplete, ItemStatusComplete, false},
		{ItemStatusFailed, ItemStatusPending, false},
		{ItemStatusFailed, ItemStatusFailed, false},
		{ItemStatusPending, ItemStatus("archived"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestItemStatusTerminal(t *testing.T) {
	assert.True(t, ItemStatusComplete.IsTerminal())
	assert.True(t, ItemStatusFailed.IsTerminal())
	assert.False(t, ItemStatusPending.IsTerminal())
	assert.False(t, ItemStatusAnswering.IsTerminal())
}

func TestItemUpdateWithStatus(t *testing.T) {
	base := ItemUpdate{}
	u := base.WithStatus(ItemStatusAnswering)

	assert.Nil(t, base.Status)
	if assert.NotNil(t, u.Status) {
		assert.Equal(t, ItemStatusAnswering, *u.Status)
	}
}
