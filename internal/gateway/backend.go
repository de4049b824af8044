package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/GriffinCanCode/AgentOS/agentsys/internal/infrastructure/resilience"
)

// Request is one model completion request.
type Request struct {
	Prompt    string `json:"prompt"`
	MaxTokens uint32 `json:"max_tokens"`
}

// Response is a completed request, tagged with the backend that served it.
type Response struct {
	Backend    string `json:"backend"`
	Text       string `json:"text"`
	TokensUsed uint32 `json:"tokens_used"`
}

// Backend serves completion requests. Implementations classify their own
// failures as *BackendError so the chain knows to advance.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// HTTPBackend talks to a real provider endpoint over HTTP. Transport-level
// retries live in the retryable transport; persistent failure trips the
// circuit breaker and takes the backend out of rotation for a while.
type HTTPBackend struct {
	name    string
	client  *resty.Client
	breaker *resilience.Breaker
}

// HTTPBackendConfig configures one provider endpoint.
type HTTPBackendConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewHTTPBackend builds a provider client with retrying transport and a
// circuit breaker.
func NewHTTPBackend(cfg HTTPBackendConfig, breaker *resilience.Breaker) *HTTPBackend {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "AgentSys-Gateway/1.0").
		SetTransport(retryClient.HTTPClient.Transport)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &HTTPBackend{
		name:    cfg.Name,
		client:  client,
		breaker: breaker,
	}
}

// Name returns the backend's chain name.
func (b *HTTPBackend) Name() string {
	return b.name
}

// Complete posts the request to the provider's completion endpoint.
func (b *HTTPBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	var out Response
	err := b.breaker.Do(func() error {
		resp, err := b.client.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&out).
			Post("/v1/complete")
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return &BackendError{Backend: b.name, Kind: KindTimeout, Err: err}
			}
			return &BackendError{Backend: b.name, Kind: KindUnavailable, Err: err}
		}
		switch {
		case resp.StatusCode() == http.StatusTooManyRequests:
			return &BackendError{Backend: b.name, Kind: KindRateLimitedUpstream}
		case resp.StatusCode() >= 500:
			return &BackendError{Backend: b.name, Kind: KindUnavailable,
				Err: fmt.Errorf("status %d", resp.StatusCode())}
		case resp.StatusCode() != http.StatusOK:
			return &BackendError{Backend: b.name, Kind: KindInvalidResponse,
				Err: fmt.Errorf("status %d", resp.StatusCode())}
		case out.Text == "":
			return &BackendError{Backend: b.name, Kind: KindInvalidResponse,
				Err: errors.New("empty completion")}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, resilience.ErrOpen) {
			return nil, &BackendError{Backend: b.name, Kind: KindUnavailable, Err: err}
		}
		return nil, err
	}
	out.Backend = b.name
	return &out, nil
}
