package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"gemini-relay-api/internal/metrics"
	"gemini-relay-api/internal/models"
)

// Relay outcomes used in logs and metrics besides the error kinds
const (
	OutcomeSuccess     = "success"
	OutcomePreflight   = "preflight"
	OutcomeHealthcheck = "healthcheck"
)

const redacted = "[REDACTED]"

// RelayOptions holds the per-deployment behaviour of the relay
type RelayOptions struct {
	Projection  models.Projection
	Healthcheck bool
	ServiceName string
	CORS        models.CORSPolicy
	Models      ModelPolicy
	Generation  models.GenerationParameters
	// Authorizer is optional; when nil POST requests are not authenticated
	Authorizer Authorizer
	Logger     logrus.FieldLogger
	// Now is used for healthcheck timestamps
	Now func() time.Time
}

// DefaultRelayOptions returns the options of a deployment with nothing configured
func DefaultRelayOptions() RelayOptions {
	return RelayOptions{
		Projection:  models.ProjectionText,
		Healthcheck: true,
		ServiceName: models.DefaultServiceName,
		CORS:        models.DefaultCORSPolicy(),
		Models:      DefaultModelPolicy(),
		Generation:  models.DefaultGenerationParameters(),
		Logger:      logrus.StandardLogger(),
		Now:         time.Now,
	}
}

// promptRelay implements the PromptRelay interface
type promptRelay struct {
	upstream UpstreamClient
	keys     KeySource
	opts     RelayOptions
}

// invocation collects what gets logged about a single call
type invocation struct {
	method      string
	model       string
	promptChars int
	outcome     string
	upstream    int
	err         *RelayError
}

// NewPromptRelay creates a new prompt relay instance
func NewPromptRelay(upstream UpstreamClient, keys KeySource, opts RelayOptions) (PromptRelay, error) {
	if upstream == nil {
		return nil, fmt.Errorf("upstream client cannot be nil")
	}
	if keys == nil {
		return nil, fmt.Errorf("key source cannot be nil")
	}

	defaults := DefaultRelayOptions()
	if opts.Projection == "" {
		opts.Projection = defaults.Projection
	}
	if !opts.Projection.IsValid() {
		return nil, fmt.Errorf("unknown response projection %q", opts.Projection)
	}
	if opts.ServiceName == "" {
		opts.ServiceName = defaults.ServiceName
	}
	if opts.Models.Fallback == "" {
		opts.Models.Fallback = models.FallbackModelID
	}
	if opts.Generation == (models.GenerationParameters{}) {
		opts.Generation = defaults.Generation
	}
	if opts.Logger == nil {
		opts.Logger = defaults.Logger
	}
	if opts.Now == nil {
		opts.Now = defaults.Now
	}

	return &promptRelay{
		upstream: upstream,
		keys:     keys,
		opts:     opts,
	}, nil
}

// Handle validates the request, performs at most one upstream call and normalizes the result
func (r *promptRelay) Handle(ctx context.Context, req *models.InboundRequest) (resp *models.OutboundResponse) {
	start := time.Now()
	inv := &invocation{}

	defer func() {
		if rec := recover(); rec != nil {
			relayErr := NewInternalError(MsgInternalError, fmt.Sprint(rec), fmt.Errorf("panic: %v", rec))
			r.opts.Logger.WithField("stack", string(debug.Stack())).Error("Recovered from panic in prompt relay")
			inv.err = relayErr
			inv.outcome = string(relayErr.Kind)
			resp = r.errorResponse(relayErr)
		}
		r.finish(inv, resp, time.Since(start))
	}()

	if req == nil {
		relayErr := NewInternalError(MsgInternalError, "nil request", nil)
		inv.err = relayErr
		inv.outcome = string(relayErr.Kind)
		return r.errorResponse(relayErr)
	}

	inv.method = strings.ToUpper(strings.TrimSpace(req.Method))

	switch inv.method {
	case http.MethodOptions:
		inv.outcome = OutcomePreflight
		return &models.OutboundResponse{
			StatusCode: http.StatusNoContent,
			Headers:    r.headers(false),
		}
	case http.MethodGet:
		if r.opts.Healthcheck {
			inv.outcome = OutcomeHealthcheck
			return r.healthResponse()
		}
	case http.MethodPost:
		out, relayErr := r.relay(ctx, req, inv)
		if relayErr != nil {
			inv.err = relayErr
			inv.outcome = string(relayErr.Kind)
			return r.errorResponse(relayErr)
		}
		inv.outcome = OutcomeSuccess
		return out
	}

	relayErr := NewMethodNotAllowedError(inv.method)
	inv.err = relayErr
	inv.outcome = string(relayErr.Kind)
	return r.errorResponse(relayErr)
}

// relay runs the POST path: auth, body, key, model, upstream call, normalization
func (r *promptRelay) relay(ctx context.Context, req *models.InboundRequest, inv *invocation) (*models.OutboundResponse, *RelayError) {
	if r.opts.Authorizer != nil {
		if err := r.opts.Authorizer.Authorize(req.Credential); err != nil {
			return nil, NewUnauthorizedError(err)
		}
	}

	if len(req.Body) > models.MaxRequestBodyBytes {
		return nil, NewInvalidArgumentError(MsgBodyTooLarge, fmt.Errorf("body exceeds %d bytes", models.MaxRequestBodyBytes))
	}

	payload, err := models.ParsePromptPayload(req.Body)
	if err != nil {
		if errors.Is(err, models.ErrInvalidBody) {
			return nil, NewInvalidArgumentError(MsgInvalidBody, err)
		}
		return nil, NewInvalidArgumentError(MsgMissingPrompt, err)
	}
	inv.promptChars = len([]rune(payload.Prompt))

	apiKey, err := r.keys.APIKey(ctx)
	if err != nil || strings.TrimSpace(apiKey) == "" {
		if err == nil {
			err = errors.New("key source returned an empty key")
		}
		return nil, NewMisconfiguredServiceError(MsgMissingAPIKey, err)
	}

	inv.model = ResolveModel(payload.Model, r.opts.Models)

	call := &models.UpstreamCall{
		APIKey:  apiKey,
		ModelID: inv.model,
		Request: models.NewGenerateContentRequest(payload.Prompt, r.opts.Generation),
	}

	callStart := time.Now()
	result, err := r.upstream.GenerateContent(ctx, call)
	if err != nil {
		metrics.ObserveUpstreamDuration(inv.model, 0, time.Since(callStart))
		return nil, NewInternalError(MsgInternalError, redactKey(err.Error(), apiKey), err)
	}
	if result == nil {
		metrics.ObserveUpstreamDuration(inv.model, 0, time.Since(callStart))
		return nil, NewInternalError(MsgInternalError, "upstream returned no result", nil)
	}
	inv.upstream = result.StatusCode
	metrics.ObserveUpstreamDuration(inv.model, result.StatusCode, time.Since(callStart))

	return r.normalize(result, inv.model, apiKey)
}

// normalize maps an upstream result onto the relay's response shapes
func (r *promptRelay) normalize(result *models.UpstreamResult, model, apiKey string) (*models.OutboundResponse, *RelayError) {
	if !json.Valid(result.Body) {
		return nil, NewInternalError(MsgMalformedUpstream,
			fmt.Sprintf("upstream returned status %d with a body that is not valid JSON", result.StatusCode), nil)
	}

	if !result.IsSuccess() {
		var envelope models.ErrorEnvelope
		// The body is valid JSON but may not be an object; the fallback message covers that.
		_ = json.Unmarshal(result.Body, &envelope)
		return nil, NewUpstreamError(result.StatusCode, redactKey(envelope.Message(), apiKey), json.RawMessage(result.Body))
	}

	var generated models.GenerateContentResponse
	if err := json.Unmarshal(result.Body, &generated); err != nil {
		return nil, NewInternalError(MsgMalformedUpstream, err.Error(), err)
	}
	if usage := generated.UsageMetadata; usage != nil {
		metrics.RecordTokens(model, usage.PromptTokenCount, usage.CandidatesTokenCount)
	}

	var body []byte
	switch r.opts.Projection {
	case models.ProjectionRaw:
		body = append([]byte(nil), result.Body...)
	default:
		encoded, err := models.EncodeJSON(models.TextBody{Text: generated.Text()})
		if err != nil {
			return nil, NewInternalError(MsgInternalError, err.Error(), err)
		}
		body = encoded
	}

	return &models.OutboundResponse{
		StatusCode: http.StatusOK,
		Headers:    r.headers(true),
		Body:       body,
	}, nil
}

func (r *promptRelay) healthResponse() *models.OutboundResponse {
	body, err := models.EncodeJSON(models.HealthBody{
		OK:        true,
		Service:   r.opts.ServiceName,
		Timestamp: r.opts.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return r.errorResponse(NewInternalError(MsgInternalError, err.Error(), err))
	}
	return &models.OutboundResponse{
		StatusCode: http.StatusOK,
		Headers:    r.headers(true),
		Body:       body,
	}
}

// errorResponse renders a RelayError. Only upstream errors carry raw, only internal errors carry detail.
func (r *promptRelay) errorResponse(relayErr *RelayError) *models.OutboundResponse {
	errBody := models.ErrorBody{Error: relayErr.Message}
	switch relayErr.Kind {
	case KindUpstreamError:
		errBody.Raw = relayErr.Raw
	case KindInternalError:
		errBody.Detail = relayErr.Detail
	}

	body, err := models.EncodeJSON(errBody)
	if err != nil {
		body = []byte(`{"error":"internal error"}`)
	}

	status := relayErr.Status
	if status < 100 || status > 599 {
		status = http.StatusInternalServerError
	}

	return &models.OutboundResponse{
		StatusCode: status,
		Headers:    r.headers(true),
		Body:       body,
	}
}

func (r *promptRelay) headers(withBody bool) map[string]string {
	headers := r.opts.CORS.Headers()
	if withBody {
		headers["Content-Type"] = "application/json; charset=utf-8"
	}
	return headers
}

// finish logs and counts the invocation. Neither the prompt nor the key is ever logged.
func (r *promptRelay) finish(inv *invocation, resp *models.OutboundResponse, dur time.Duration) {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}

	fields := logrus.Fields{
		"method":      inv.method,
		"outcome":     inv.outcome,
		"status_code": status,
		"latency_ms":  dur.Milliseconds(),
	}
	if inv.model != "" {
		fields["model"] = inv.model
	}
	if inv.promptChars > 0 {
		fields["prompt_chars"] = inv.promptChars
	}
	if inv.upstream > 0 {
		fields["upstream_status"] = inv.upstream
	}

	entry := r.opts.Logger.WithFields(fields)
	switch {
	case inv.err == nil:
		entry.Debug("Prompt relay completed")
	case inv.err.Kind == KindInternalError || inv.err.Kind == KindMisconfiguredService:
		entry.WithFields(logrus.Fields{
			"error": inv.err.Message,
			"cause": inv.err.cause(),
		}).Error("Prompt relay failed")
	default:
		entry.WithField("error", inv.err.Message).Warn("Prompt relay rejected request")
	}

	method := inv.method
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodOptions:
	default:
		method = "OTHER"
	}
	metrics.RecordRelayOutcome(method, inv.outcome, status, dur)
}

// redactKey removes the API key, raw or URL-escaped, from diagnostic text
func redactKey(text, apiKey string) string {
	if apiKey == "" || text == "" {
		return text
	}
	text = strings.ReplaceAll(text, apiKey, redacted)
	if escaped := url.QueryEscape(apiKey); escaped != apiKey {
		text = strings.ReplaceAll(text, escaped, redacted)
	}
	return text
}
