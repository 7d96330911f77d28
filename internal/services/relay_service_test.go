package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gemini-relay-api/internal/models"
)

const testAPIKey = "AIza-test-key/with+chars"

// MockUpstream is a mock implementation of UpstreamClient
type MockUpstream struct {
	mock.Mock
}

func (m *MockUpstream) GenerateContent(ctx context.Context, call *models.UpstreamCall) (*models.UpstreamResult, error) {
	args := m.Called(ctx, call)
	result, _ := args.Get(0).(*models.UpstreamResult)
	return result, args.Error(1)
}

func staticKey(key string) KeySource {
	return KeyFunc(func(ctx context.Context) (string, error) { return key, nil })
}

func successBody(text string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"candidates": []interface{}{
			map[string]interface{}{
				"content": map[string]interface{}{
					"role":  "model",
					"parts": []interface{}{map[string]interface{}{"text": text}},
				},
			},
		},
		"usageMetadata": map[string]interface{}{"promptTokenCount": 3, "candidatesTokenCount": 1, "totalTokenCount": 4},
	})
	return body
}

func newTestRelay(t *testing.T, upstream UpstreamClient, keys KeySource, mutate func(*RelayOptions)) (PromptRelay, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	opts := DefaultRelayOptions()
	opts.Logger = logger
	opts.Now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	if mutate != nil {
		mutate(&opts)
	}

	relay, err := NewPromptRelay(upstream, keys, opts)
	require.NoError(t, err)
	return relay, hook
}

func post(body string) *models.InboundRequest {
	return &models.InboundRequest{Method: http.MethodPost, Body: []byte(body)}
}

func decodeError(t *testing.T, resp *models.OutboundResponse) models.ErrorBody {
	t.Helper()
	var body models.ErrorBody
	require.NoError(t, json.Unmarshal(resp.Body, &body))
	return body
}

func TestPromptRelay_Options(t *testing.T) {
	upstream := new(MockUpstream)
	relay, _ := newTestRelay(t, upstream, staticKey(testAPIKey), nil)

	resp := relay.Handle(context.Background(), &models.InboundRequest{Method: http.MethodOptions})

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, resp.Body)
	assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
	assert.Equal(t, "POST, OPTIONS", resp.Headers["Access-Control-Allow-Methods"])
	assert.Equal(t, "Content-Type", resp.Headers["Access-Control-Allow-Headers"])
	upstream.AssertNumberOfCalls(t, "GenerateContent", 0)
}

func TestPromptRelay_Healthcheck(t *testing.T) {
	t.Run("Enabled", func(t *testing.T) {
		upstream := new(MockUpstream)
		relay, _ := newTestRelay(t, upstream, staticKey(testAPIKey), nil)

		resp := relay.Handle(context.Background(), &models.InboundRequest{Method: http.MethodGet})

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"ok":true,"service":"gemini","ts":"2025-03-01T12:00:00Z"}`, string(resp.Body))
		upstream.AssertNotCalled(t, "GenerateContent", mock.Anything, mock.Anything)
	})

	t.Run("Disabled", func(t *testing.T) {
		upstream := new(MockUpstream)
		relay, _ := newTestRelay(t, upstream, staticKey(testAPIKey), func(o *RelayOptions) { o.Healthcheck = false })

		resp := relay.Handle(context.Background(), &models.InboundRequest{Method: http.MethodGet})

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.Equal(t, MsgMethodNotAllowed, decodeError(t, resp).Error)
	})
}

func TestPromptRelay_MethodNotAllowed(t *testing.T) {
	upstream := new(MockUpstream)
	relay, _ := newTestRelay(t, upstream, staticKey(testAPIKey), nil)

	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodHead, "TRACE", "BREW", ""} {
		t.Run(method, func(t *testing.T) {
			resp := relay.Handle(context.Background(), &models.InboundRequest{Method: method, Body: []byte(`{"prompt":"hi"}`)})
			assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
			assert.Equal(t, MsgMethodNotAllowed, decodeError(t, resp).Error)
			assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
		})
	}
	upstream.AssertNumberOfCalls(t, "GenerateContent", 0)
}

func TestPromptRelay_InvalidPrompt(t *testing.T) {
	upstream := new(MockUpstream)
	relay, _ := newTestRelay(t, upstream, staticKey(testAPIKey), nil)

	bodies := map[string]string{
		"absent":     `{"model":"gemini-2.5-pro"}`,
		"null":       `{"prompt":null}`,
		"number":     `{"prompt":7}`,
		"boolean":    `{"prompt":true}`,
		"array":      `{"prompt":["hi"]}`,
		"empty":      `{"prompt":""}`,
		"whitespace": `{"prompt":"   \t\n"}`,
		"no body":    ``,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			resp := relay.Handle(context.Background(), post(body))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, MsgMissingPrompt, decodeError(t, resp).Error)
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		resp := relay.Handle(context.Background(), post(`{"prompt":`))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, MsgInvalidBody, decodeError(t, resp).Error)
	})

	t.Run("oversized body", func(t *testing.T) {
		big := `{"prompt":"` + strings.Repeat("a", models.MaxRequestBodyBytes) + `"}`
		resp := relay.Handle(context.Background(), post(big))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, MsgBodyTooLarge, decodeError(t, resp).Error)
	})

	upstream.AssertNumberOfCalls(t, "GenerateContent", 0)
}

func TestPromptRelay_MissingAPIKey(t *testing.T) {
	sources := map[string]KeySource{
		"empty":      staticKey(""),
		"blank":      staticKey("  "),
		"source err": KeyFunc(func(ctx context.Context) (string, error) { return "", errors.New("secret not found") }),
	}

	for name, keys := range sources {
		t.Run(name, func(t *testing.T) {
			upstream := new(MockUpstream)
			relay, _ := newTestRelay(t, upstream, keys, nil)

			resp := relay.Handle(context.Background(), post(`{"prompt":"hi"}`))

			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			body := decodeError(t, resp)
			assert.Equal(t, MsgMissingAPIKey, body.Error)
			assert.Empty(t, body.Detail)
			upstream.AssertNumberOfCalls(t, "GenerateContent", 0)
		})
	}
}

func TestPromptRelay_ModelResolution(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		configDef string
		want      string
	}{
		{name: "allowed caller model", body: `{"prompt":"hi","model":"gemini-2.5-pro"}`, configDef: "gemini-2.0-flash", want: "gemini-2.5-pro"},
		{name: "disallowed caller model uses default", body: `{"prompt":"hi","model":"gpt-4"}`, configDef: "gemini-2.0-flash", want: "gemini-2.0-flash"},
		{name: "absent model uses default", body: `{"prompt":"hi"}`, configDef: "gemini-2.0-flash", want: "gemini-2.0-flash"},
		{name: "disallowed caller model without default", body: `{"prompt":"hi","model":"gpt-4"}`, want: models.FallbackModelID},
		{name: "absent model without default", body: `{"prompt":"hi"}`, want: models.FallbackModelID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := new(MockUpstream)
			upstream.On("GenerateContent", mock.Anything, mock.MatchedBy(func(call *models.UpstreamCall) bool {
				return call.ModelID == tt.want
			})).Return(&models.UpstreamResult{StatusCode: 200, Body: successBody("ok")}, nil).Once()

			relay, _ := newTestRelay(t, upstream, staticKey(testAPIKey), func(o *RelayOptions) { o.Models.Default = tt.configDef })

			resp := relay.Handle(context.Background(), post(tt.body))

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			upstream.AssertExpectations(t)
		})
	}
}

func TestPromptRelay_UpstreamCallShape(t *testing.T) {
	upstream := new(MockUpstream)
	var captured *models.UpstreamCall
	upstream.On("GenerateContent", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*models.UpstreamCall) }).
		Return(&models.UpstreamResult{StatusCode: 200, Body: successBody("ok")}, nil)

	params := models.GenerationParameters{Temperature: 0.1, TopP: 0.5, MaxOutputTokens: 64}
	relay, _ := newTestRelay(t, upstream, staticKey(testAPIKey), func(o *RelayOptions) { o.Generation = params })

	relay.Handle(context.Background(), post(`{"prompt":"  spaced prompt  "}`))

	require.NotNil(t, captured)
	assert.Equal(t, testAPIKey, captured.APIKey)
	require.Len(t, captured.Request.Contents, 1)
	assert.Equal(t, models.RoleUser, captured.Request.Contents[0].Role)
	assert.Equal(t, "  spaced prompt  ", captured.Request.Contents[0].Parts[0].Text)
	assert.Equal(t, &params, captured.Request.GenerationConfig)
	upstream.AssertNumberOfCalls(t, "GenerateContent", 1)
}

func TestPromptRelay_UpstreamError(t *testing.T) {
	t.Run("RateLimited", func(t *testing.T) {
		raw := `{"error":{"code":429,"message":"rate limited","status":"RESOURCE_EXHAUSTED"}}`
		upstream := new(MockUpstream)
		upstream.On("GenerateContent", mock.Anything, mock.Anything).
			Return(&models.UpstreamResult{StatusCode: 429, Body: []byte(raw)}, nil)
		relay, _ := newTestRelay(t, upstream, staticKey(testAPIKey), nil)

		resp := relay.Handle(context.Background(), post(`{"prompt":"hi"}`))

		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, "rate limited", body.Error)
		assert.JSONEq(t, raw, string(body.Raw))
		assert.Empty(t, body.Detail)
	})

	t.Run("FallbackMessage", func(t *testing.T) {
		upstream := new(MockUpstream)
		upstream.On("GenerateContent", mock.Anything, mock.Anything).
			Return(&models.UpstreamResult{StatusCode: 503, Body: []byte(`{"unexpected":"shape"}`)}, nil)
		relay, _ := newTestRelay(t, upstream, staticKey(testAPIKey), nil)

		resp := relay.Handle(context.Background(), post(`{"prompt":"hi"}`))

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, MsgUpstreamFallback, decodeError(t, resp).Error)
	})

	t.Run("NonJSONBody", func(t *testing.T) {
		upstream := new(MockUpstream)
		upstream.On("GenerateContent", mock.Anything, mock.Anything).
			Return(&models.UpstreamResult{StatusCode: 502, Body: []byte(`<html>Bad Gateway</html>`)}, nil)
		relay, _ := newTestRelay(t, upstream, staticKey(testAPIKey), nil)

		resp := relay.Handle(context.Background(), post(`{"prompt":"hi"}`))

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, MsgMalformedUpstream, body.Error)
		assert.NotEmpty(t, body.Detail)
	})
}

func TestPromptRelay_TransportFailure(t *testing.T) {
	upstream := new(MockUpstream)
	upstream.On("GenerateContent", mock.Anything, mock.Anything).
		Return(nil, errors.New("dial tcp: lookup failed for https://example.test/?key="+testAPIKey))
	relay, hook := newTestRelay(t, upstream, staticKey(testAPIKey), nil)

	resp := relay.Handle(context.Background(), post(`{"prompt":"hi"}`))

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decodeError(t, resp)
	assert.Equal(t, MsgInternalError, body.Error)
	assert.Contains(t, body.Detail, "dial tcp")
	assert.NotContains(t, string(resp.Body), testAPIKey)

	for _, entry := range hook.AllEntries() {
		line, err := entry.String()
		require.NoError(t, err)
		assert.NotContains(t, line, testAPIKey)
	}
}

func TestPromptRelay_Success(t *testing.T) {
	t.Run("TextProjection", func(t *testing.T) {
		upstream := new(MockUpstream)
		upstream.On("GenerateContent", mock.Anything, mock.Anything).
			Return(&models.UpstreamResult{StatusCode: 200, Body: successBody("hello")}, nil)
		relay, _ := newTestRelay(t, upstream, staticKey(testAPIKey), nil)

		resp := relay.Handle(context.Background(), post(`{"prompt":"hi"}`))

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, `{"text":"hello"}`, string(resp.Body))
		assert.Equal(t, "application/json; charset=utf-8", resp.Headers["Content-Type"])
		assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
	})

	t.Run("TextPreservesWhitespace", func(t *testing.T) {
		upstream := new(MockUpstream)
		upstream.On("GenerateContent", mock.Anything, mock.Anything).
			Return(&models.UpstreamResult{StatusCode: 200, Body: successBody("  hello \n")}, nil)
		relay, _ := newTestRelay(t, upstream, staticKey(testAPIKey), nil)

		resp := relay.Handle(context.Background(), post(`{"prompt":"hi"}`))

		var body models.TextBody
		require.NoError(t, json.Unmarshal(resp.Body, &body))
		assert.Equal(t, "  hello \n", body.Text)
	})

	t.Run("RawProjection", func(t *testing.T) {
		raw := successBody("hello")
		upstream := new(MockUpstream)
		upstream.On("GenerateContent", mock.Anything, mock.Anything).
			Return(&models.UpstreamResult{StatusCode: 200, Body: raw}, nil)
		relay, _ := newTestRelay(t, upstream, staticKey(testAPIKey), func(o *RelayOptions) { o.Projection = models.ProjectionRaw })

		resp := relay.Handle(context.Background(), post(`{"prompt":"hi"}`))

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, raw, resp.Body)
	})

	t.Run("NoCandidates", func(t *testing.T) {
		upstream := new(MockUpstream)
		upstream.On("GenerateContent", mock.Anything, mock.Anything).
			Return(&models.UpstreamResult{StatusCode: 200, Body: []byte(`{"candidates":[]}`)}, nil)
		relay, _ := newTestRelay(t, upstream, staticKey(testAPIKey), nil)

		resp := relay.Handle(context.Background(), post(`{"prompt":"hi"}`))

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, `{"text":""}`, string(resp.Body))
	})
}

func TestPromptRelay_Idempotent(t *testing.T) {
	upstream := new(MockUpstream)
	upstream.On("GenerateContent", mock.Anything, mock.Anything).
		Return(&models.UpstreamResult{StatusCode: 200, Body: successBody("same answer")}, nil)
	relay, _ := newTestRelay(t, upstream, staticKey(testAPIKey), nil)

	first := relay.Handle(context.Background(), post(`{"prompt":"hi","model":"gemini-2.5-pro"}`))
	second := relay.Handle(context.Background(), post(`{"prompt":"hi","model":"gemini-2.5-pro"}`))

	assert.Equal(t, first, second)
	upstream.AssertNumberOfCalls(t, "GenerateContent", 2)
}

type tokenAuthorizer struct{}

func (tokenAuthorizer) Authorize(token string) error {
	if token == "let-me-in" {
		return nil
	}
	return errors.New("invalid token")
}

func TestPromptRelay_Authorization(t *testing.T) {
	upstream := new(MockUpstream)
	upstream.On("GenerateContent", mock.Anything, mock.Anything).
		Return(&models.UpstreamResult{StatusCode: 200, Body: successBody("ok")}, nil)
	relay, _ := newTestRelay(t, upstream, staticKey(testAPIKey), func(o *RelayOptions) { o.Authorizer = tokenAuthorizer{} })

	resp := relay.Handle(context.Background(), post(`{"prompt":"hi"}`))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, MsgUnauthorized, decodeError(t, resp).Error)
	upstream.AssertNumberOfCalls(t, "GenerateContent", 0)

	// Method validation still comes first
	resp = relay.Handle(context.Background(), &models.InboundRequest{Method: http.MethodPut})
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	// Preflight stays open
	resp = relay.Handle(context.Background(), &models.InboundRequest{Method: http.MethodOptions})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	req := post(`{"prompt":"hi"}`)
	req.Credential = "let-me-in"
	resp = relay.Handle(context.Background(), req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	upstream.AssertNumberOfCalls(t, "GenerateContent", 1)
}

func TestPromptRelay_RecoversPanics(t *testing.T) {
	upstream := UpstreamFunc(func(ctx context.Context, call *models.UpstreamCall) (*models.UpstreamResult, error) {
		panic("boom")
	})
	relay, hook := newTestRelay(t, upstream, staticKey(testAPIKey), nil)

	resp := relay.Handle(context.Background(), post(`{"prompt":"hi"}`))

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decodeError(t, resp)
	assert.Equal(t, MsgInternalError, body.Error)
	assert.Equal(t, "boom", body.Detail)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestPromptRelay_LogHygiene(t *testing.T) {
	const secretPrompt = "my very private prompt"
	upstream := new(MockUpstream)
	upstream.On("GenerateContent", mock.Anything, mock.Anything).
		Return(&models.UpstreamResult{StatusCode: 200, Body: successBody("hello")}, nil)
	relay, hook := newTestRelay(t, upstream, staticKey(testAPIKey), nil)

	relay.Handle(context.Background(), post(`{"prompt":"`+secretPrompt+`"}`))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, OutcomeSuccess, entry.Data["outcome"])
	assert.Equal(t, models.FallbackModelID, entry.Data["model"])
	assert.Equal(t, len(secretPrompt), entry.Data["prompt_chars"])

	line, err := entry.String()
	require.NoError(t, err)
	assert.NotContains(t, line, secretPrompt)
	assert.NotContains(t, line, testAPIKey)
}

func TestPromptRelay_ContextCancellation(t *testing.T) {
	upstream := UpstreamFunc(func(ctx context.Context, call *models.UpstreamCall) (*models.UpstreamResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	relay, _ := newTestRelay(t, upstream, staticKey(testAPIKey), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := relay.Handle(ctx, post(`{"prompt":"hi"}`))

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, decodeError(t, resp).Detail, context.Canceled.Error())
}

func TestNewPromptRelay_Validation(t *testing.T) {
	_, err := NewPromptRelay(nil, staticKey("k"), RelayOptions{})
	assert.Error(t, err)

	_, err = NewPromptRelay(new(MockUpstream), nil, RelayOptions{})
	assert.Error(t, err)

	_, err = NewPromptRelay(new(MockUpstream), staticKey("k"), RelayOptions{Projection: "markdown"})
	assert.Error(t, err)

	relay, err := NewPromptRelay(new(MockUpstream), staticKey("k"), RelayOptions{})
	require.NoError(t, err)
	assert.NotNil(t, relay)
}
