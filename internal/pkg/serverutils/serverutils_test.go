package serverutils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"voice-qa-be/internal/pkg/apperror"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandlerMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware())
	app.Get("/validation", func(ctx *fiber.Ctx) error { return apperror.Validation("audio_data", "is required") })
	app.Get("/missing", func(ctx *fiber.Ctx) error { return apperror.NotFound("item", "x") })
	app.Get("/boom", func(ctx *fiber.Ctx) error { return errors.New("db down") })
	app.Get("/ok", func(ctx *fiber.Ctx) error { return ctx.JSON(SuccessResponse("ok", nil)) })

	tests := []struct {
		path     string
		wantCode int
		wantMsg  string
	}{
		{"/validation", 400, "audio_data: is required"},
		{"/missing", 404, `item "x" not found`},
		{"/boom", 500, "internal server error"},
		{"/ok", 200, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, resp.StatusCode)

			body, _ := io.ReadAll(resp.Body)
			var out BaseResponse
			require.NoError(t, json.Unmarshal(body, &out))
			assert.Equal(t, tt.wantMsg, out.Message)
			assert.Equal(t, tt.wantCode == 200, out.Success)
		})
	}
}

func TestValidateRequest(t *testing.T) {
	type request struct {
		SessionId string `json:"session_id" validate:"omitempty,max=4,printascii"`
		AudioData string `json:"audio_data" validate:"required"`
	}

	err := ValidateRequest(request{})
	var validationErr *apperror.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "audio_data", validationErr.Field)
	assert.Equal(t, "is required", validationErr.Message)

	err = ValidateRequest(request{AudioData: "x", SessionId: "toolong"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Contains(t, err.Error(), "session_id")

	assert.NoError(t, ValidateRequest(request{AudioData: "x", SessionId: "abc"}))
}
