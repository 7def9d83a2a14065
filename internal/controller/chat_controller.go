package controller

import (
	"io"
	"strings"

	"voice-qa-be/internal/dto"
	"voice-qa-be/internal/pkg/apperror"
	"voice-qa-be/internal/pkg/serverutils"
	"voice-qa-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const idempotencyHeader = "Idempotency-Key"

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Record(ctx *fiber.Ctx) error
	GetSession(ctx *fiber.Ctx) error
	ListAll(ctx *fiber.Ctx) error
	ListSessions(ctx *fiber.Ctx) error
	ClearHistory(ctx *fiber.Ctx) error
	QueryStatus(ctx *fiber.Ctx) error
	AnswerStatus(ctx *fiber.Ctx) error
	Health(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
}

func NewChatController(chatService service.IChatService) IChatController {
	return &chatController{
		chatService: chatService,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	r.Get("/health", c.Health)
	r.Post("/record", c.Record)
	r.Get("/results", c.ListAll)
	r.Get("/results/:session_id", c.GetSession)
	r.Get("/sessions", c.ListSessions)
	r.Post("/clear_history", c.ClearHistory)
	r.Get("/query_status/:session_id", c.QueryStatus)
	r.Get("/answer_status/:session_id", c.AnswerStatus)
}

// Record accepts either a JSON body with base64 audio or a multipart upload in audio_file.
func (c *chatController) Record(ctx *fiber.Ctx) error {
	var (
		input *service.SubmitAudioInput
		err   error
	)
	if strings.HasPrefix(ctx.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		input, err = parseMultipartRecord(ctx)
	} else {
		input, err = parseJSONRecord(ctx)
	}
	if err != nil {
		return err
	}
	// The key outlives the request in the idempotency cache; header bytes are reused by fasthttp.
	input.IdempotencyKey = utils.CopyString(strings.TrimSpace(ctx.Get(idempotencyHeader)))

	res, err := c.chatService.Submit(ctx.UserContext(), input)
	if err != nil {
		return err
	}

	if res.Duplicate {
		return ctx.JSON(serverutils.SuccessResponse("Duplicate submission", res))
	}
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.AcceptedResponse("Audio accepted for processing", res))
}

func parseJSONRecord(ctx *fiber.Ctx) (*service.SubmitAudioInput, error) {
	var req dto.RecordRequest
	if err := ctx.BodyParser(&req); err != nil {
		return nil, apperror.Validation("", "request body must be JSON or multipart form data")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return nil, err
	}

	audio, mimeType, err := service.DecodeAudioData(req.AudioData)
	if err != nil {
		return nil, err
	}
	if req.MimeType != "" {
		mimeType = req.MimeType
	}

	sessionId := req.SessionId
	if sessionId == "" {
		sessionId = req.ChatId
	}
	return &service.SubmitAudioInput{SessionId: sessionId, Audio: audio, MimeType: mimeType}, nil
}

func parseMultipartRecord(ctx *fiber.Ctx) (*service.SubmitAudioInput, error) {
	header, err := ctx.FormFile("audio_file")
	if err != nil {
		return nil, apperror.Validation("audio_file", "is required")
	}

	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	sessionId := utils.CopyString(ctx.FormValue("session_id"))
	if sessionId == "" {
		sessionId = utils.CopyString(ctx.FormValue("chatid"))
	}
	return &service.SubmitAudioInput{
		SessionId: sessionId,
		Audio:     audio,
		MimeType:  header.Header.Get(fiber.HeaderContentType),
	}, nil
}

func (c *chatController) GetSession(ctx *fiber.Ctx) error {
	res, err := c.chatService.GetSession(ctx.UserContext(), ctx.Params("session_id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get session history", res))
}

func (c *chatController) ListAll(ctx *fiber.Ctx) error {
	var query dto.ListItemsQuery
	if err := ctx.QueryParser(&query); err != nil {
		return apperror.Validation("", "invalid query parameters")
	}
	if err := serverutils.ValidateRequest(query); err != nil {
		return err
	}

	res, err := c.chatService.ListAll(ctx.UserContext(), &query)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success list results", res))
}

func (c *chatController) ListSessions(ctx *fiber.Ctx) error {
	res, err := c.chatService.ListSessions(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success list sessions", res))
}

// ClearHistory takes session_id from the JSON body or the query string; neither means everything.
func (c *chatController) ClearHistory(ctx *fiber.Ctx) error {
	var req dto.ClearHistoryRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return apperror.Validation("", "invalid request body")
		}
	}
	if req.SessionId == "" {
		req.SessionId = ctx.Query("session_id")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.ClearHistory(ctx.UserContext(), req.SessionId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("History cleared", res))
}

func (c *chatController) QueryStatus(ctx *fiber.Ctx) error {
	res, err := c.chatService.QueryStatus(ctx.UserContext(), ctx.Params("session_id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get query status", res))
}

func (c *chatController) AnswerStatus(ctx *fiber.Ctx) error {
	res, err := c.chatService.AnswerStatus(ctx.UserContext(), ctx.Params("session_id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get answer status", res))
}

func (c *chatController) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("ok", c.chatService.Health(ctx.UserContext())))
}
