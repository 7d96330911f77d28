package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"gemini-relay-api/internal/models"
)

// Config holds upstream client settings
type Config struct {
	BaseURL             string
	Timeout             time.Duration
	MaxResponseBodySize int
	MaxConnsPerHost     int
}

// Client calls the generateContent endpoint over a pooled fasthttp client
type Client struct {
	baseURL string
	timeout time.Duration
	client  *fasthttp.Client
	logger  logrus.FieldLogger
}

// NewClient creates a new upstream client
func NewClient(cfg Config, logger logrus.FieldLogger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = models.DefaultUpstreamBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = models.DefaultUpstreamTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		client: &fasthttp.Client{
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxConnsPerHost:     cfg.MaxConnsPerHost,
			MaxResponseBodySize: cfg.MaxResponseBodySize,
		},
		logger: logger,
	}
}

// exchange is what the request goroutine hands back
type exchange struct {
	result *models.UpstreamResult
	err    error
}

// GenerateContent sends one POST to models/{model}:generateContent.
// The request and response objects are released by the goroutine that uses them, so a
// cancelled caller returns immediately without leaking them.
func (c *Client) GenerateContent(ctx context.Context, call *models.UpstreamCall) (*models.UpstreamResult, error) {
	if call == nil || call.Request == nil || call.ModelID == "" || call.APIKey == "" {
		return nil, ErrInvalidCall
	}

	body, err := json.Marshal(call.Request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeRequest, err)
	}

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	endpoint := c.endpoint(call.ModelID, call.APIKey)
	done := make(chan exchange, 1)

	go func() {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(endpoint)
		req.Header.SetMethod(http.MethodPost)
		req.Header.SetContentType("application/json")
		req.SetBody(body)

		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			done <- exchange{err: classify(err)}
			return
		}

		// resp.Body() is only valid until the response is released
		done <- exchange{result: &models.UpstreamResult{
			StatusCode: resp.StatusCode(),
			Body:       append([]byte(nil), resp.Body()...),
		}}
	}()

	select {
	case <-ctx.Done():
		c.logger.WithField("model", call.ModelID).Debug("Caller went away before upstream responded")
		return nil, fmt.Errorf("%w: %v", ErrRequestCancelled, ctx.Err())
	case ex := <-done:
		return ex.result, ex.err
	}
}

// CloseIdleConnections drops pooled keep-alive connections
func (c *Client) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}

func (c *Client) endpoint(model, apiKey string) string {
	return c.baseURL + "/v1beta/models/" + url.PathEscape(model) + ":generateContent?key=" + url.QueryEscape(apiKey)
}

func classify(err error) error {
	if errors.Is(err, fasthttp.ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrRequestTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrRequestFailed, err)
}
