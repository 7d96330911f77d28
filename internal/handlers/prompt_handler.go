package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"gemini-relay-api/internal/middleware"
	"gemini-relay-api/internal/models"
	"gemini-relay-api/internal/services"
	"gemini-relay-api/pkg/lambda"
)

// PromptHandler exposes the prompt relay over gin and Lambda
type PromptHandler struct {
	relay services.PromptRelay
}

// NewPromptHandler creates a new prompt handler
func NewPromptHandler(relay services.PromptRelay) *PromptHandler {
	return &PromptHandler{
		relay: relay,
	}
}

// @Summary Relay a prompt to Gemini
// @Description Sends the prompt to the configured Gemini model and returns the generated text.
// @Description The optional model is honoured only when it is on the deployment's allow-list.
// @Tags relay
// @Accept json
// @Produce json
// @Param request body models.PromptPayload true "Prompt and optional model"
// @Success 200 {object} models.TextBody
// @Failure 400 {object} models.ErrorBody
// @Failure 401 {object} models.ErrorBody
// @Failure 405 {object} models.ErrorBody
// @Failure 429 {object} models.ErrorBody
// @Failure 500 {object} models.ErrorBody
// @Security BearerAuth
// @Router /api/gemini [post]
func (h *PromptHandler) Relay(c *gin.Context) {
	body, err := readBody(c.Request.Body)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"request_id": c.GetString(middleware.RequestIDKey),
			"error":      err.Error(),
		}).Warn("Failed to read request body")
		c.JSON(http.StatusBadRequest, models.ErrorBody{Error: "unreadable request body"})
		return
	}

	resp := h.relay.Handle(c.Request.Context(), &models.InboundRequest{
		Method:     c.Request.Method,
		Body:       body,
		Credential: middleware.BearerToken(c.GetHeader("Authorization")),
	})

	writeResponse(c, resp)
}

// HandleRelay is the framework-agnostic entrypoint used by the Lambda function
func (h *PromptHandler) HandleRelay(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	resp := h.relay.Handle(ctx, &models.InboundRequest{
		Method:     req.Method,
		Body:       req.Body,
		Credential: middleware.BearerToken(req.Header("Authorization")),
	})

	return &lambda.Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       resp.Body,
	}, nil
}

// readBody reads at most one byte past the limit so the relay can reject oversize bodies
func readBody(body io.ReadCloser) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	defer body.Close()
	return io.ReadAll(io.LimitReader(body, models.MaxRequestBodyBytes+1))
}

func writeResponse(c *gin.Context, resp *models.OutboundResponse) {
	contentType := ""
	for name, value := range resp.Headers {
		if http.CanonicalHeaderKey(name) == "Content-Type" {
			contentType = value
			continue
		}
		c.Header(name, value)
	}

	if len(resp.Body) == 0 {
		c.Status(resp.StatusCode)
		return
	}
	c.Data(resp.StatusCode, contentType, resp.Body)
}
