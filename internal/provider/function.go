package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultInvokeTimeout = 30 * time.Second

var _ JobTrigger = (*FunctionInvoker)(nil)

// FunctionInvoker starts a remote job by POSTing its detail to a function
// endpoint.
type FunctionInvoker struct {
	client   *resty.Client
	endpoint string
}

func NewFunctionInvoker(endpoint string) (*FunctionInvoker, error) {
	client := resty.New()
	client.SetTimeout(defaultInvokeTimeout)
	client.SetRetryCount(0)

	return NewFunctionInvokerWithClient(endpoint, client)
}

func NewFunctionInvokerWithClient(endpoint string, client *resty.Client) (*FunctionInvoker, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("function endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid function endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultInvokeTimeout)
	}
	client.SetRetryCount(0)

	return &FunctionInvoker{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (p *FunctionInvoker) Trigger(ctx context.Context, req JobRequest) (*JobResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("function invoker is not initialized")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job request: %w", err)
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Trigger-ID", req.TriggerID).
		SetBody(req.Detail()).
		Post(p.endpoint)
	if err != nil {
		return nil, deliveryError("function invocation failed", err)
	}
	if response == nil {
		return nil, &ProviderError{
			Message:   "function returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &JobResponse{
			TriggerID:  req.TriggerID,
			StatusCode: statusCode,
			Body:       responseBody,
			MessageID:  responseRequestID(response),
		}, nil
	}

	return nil, statusError(statusCode, responseBody)
}

func responseRequestID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Request-ID", "X-Request-Id", "X-Amz-Request-Id", "X-Correlation-ID"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
