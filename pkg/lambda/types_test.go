package lambda

import (
	"encoding/base64"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestHeader(t *testing.T) {
	req := &Request{Headers: map[string]string{"authorization": "Bearer abc"}}

	assert.Equal(t, "Bearer abc", req.Header("Authorization"))
	assert.Equal(t, "Bearer abc", req.Header("authorization"))
	assert.Empty(t, req.Header("X-Missing"))

	var nilReq *Request
	assert.Empty(t, nilReq.Header("Authorization"))
}

func TestFromAPIGatewayRequest(t *testing.T) {
	t.Run("plain body", func(t *testing.T) {
		req, err := FromAPIGatewayRequest(events.APIGatewayProxyRequest{
			HTTPMethod: "POST",
			Path:       "/api/gemini",
			Headers:    map[string]string{"Content-Type": "application/json"},
			MultiValueHeaders: map[string][]string{
				"Content-Type":  {"text/plain"},
				"Authorization": {"Bearer one", "Bearer two"},
			},
			Body: `{"prompt":"hi"}`,
		})
		require.NoError(t, err)

		assert.Equal(t, "POST", req.Method)
		assert.Equal(t, "/api/gemini", req.Path)
		assert.Equal(t, `{"prompt":"hi"}`, string(req.Body))
		assert.Equal(t, "application/json", req.Header("Content-Type"))
		assert.Equal(t, "Bearer one", req.Header("Authorization"))
	})

	t.Run("base64 body", func(t *testing.T) {
		req, err := FromAPIGatewayRequest(events.APIGatewayProxyRequest{
			HTTPMethod:      "POST",
			Body:            base64.StdEncoding.EncodeToString([]byte(`{"prompt":"hi"}`)),
			IsBase64Encoded: true,
		})
		require.NoError(t, err)
		assert.Equal(t, `{"prompt":"hi"}`, string(req.Body))
	})

	t.Run("invalid base64 body", func(t *testing.T) {
		_, err := FromAPIGatewayRequest(events.APIGatewayProxyRequest{
			HTTPMethod:      "POST",
			Body:            "not base64!",
			IsBase64Encoded: true,
		})
		assert.Error(t, err)
	})
}

func TestToAPIGatewayResponse(t *testing.T) {
	resp := &Response{
		StatusCode: 204,
		Headers:    map[string]string{"Access-Control-Allow-Origin": "*"},
	}

	out := resp.ToAPIGatewayResponse()

	assert.Equal(t, 204, out.StatusCode)
	assert.Empty(t, out.Body)
	assert.Equal(t, "*", out.Headers["Access-Control-Allow-Origin"])

	out.Headers["X-Extra"] = "1"
	assert.NotContains(t, resp.Headers, "X-Extra")
}
