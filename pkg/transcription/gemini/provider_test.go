package gemini

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
)

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("What is "), genai.Text("the time?")}}},
			{Content: nil},
		},
	}
	assert.Equal(t, "What is the time?", responseText(resp))
	assert.Equal(t, "", responseText(nil))
}
