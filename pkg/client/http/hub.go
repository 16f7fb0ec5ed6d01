package httpclient

import (
	"context"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/caikit/caikit-huggingface-demo/config"
	"github.com/caikit/caikit-huggingface-demo/pkg/logger"
)

const (
	defaultReqTimeout = time.Second * 60
	maxRetryCount     = 3
	retryDelay        = 500 * time.Millisecond
)

// HubClient calls the Hugging Face hosted inference endpoint.
type HubClient struct {
	*resty.Client
	token string
}

// NewHubClient returns an initialized hub HTTP client.
func NewHubClient(ctx context.Context, cfg config.HubConfig) *HubClient {
	logger, _ := logger.GetZapLogger(ctx)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultReqTimeout
	}

	r := resty.New().
		SetLogger(logger.Sugar()).
		SetBaseURL(strings.TrimSuffix(cfg.InferenceURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(maxRetryCount).
		SetRetryWaitTime(retryDelay)

	return &HubClient{Client: r, token: cfg.Token}
}

type inferPayload struct {
	Inputs     any            `json:"inputs"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Infer calls POST /models/<model> with a JSON body and decodes the JSON
// answer into result. The revision is forwarded as a query parameter.
func (c *HubClient) Infer(ctx context.Context, model string, revision string, inputs any, parameters map[string]any, result any) error {
	r := c.R().
		SetContext(ctx).
		SetRawPathParam("model", model).
		SetBody(inferPayload{Inputs: inputs, Parameters: parameters}).
		SetResult(result)
	if revision != "" {
		r.SetQueryParam("revision", revision)
	}
	// the token is only sent to the hub, never to downloaded URLs
	if c.token != "" {
		r.SetAuthToken(c.token)
	}

	resp, err := r.Post("/models/{model}")
	if err != nil {
		return errors.Wrap(err, "couldn't connect with the hub")
	}
	if resp.IsError() {
		return errors.Errorf("hub inference with %s failed: %s %s", model, resp.Status(), strings.TrimSpace(resp.String()))
	}

	return nil
}

// InferBinary calls POST /models/<model> with raw bytes, e.g. an image.
func (c *HubClient) InferBinary(ctx context.Context, model string, revision string, data []byte, result any) error {
	r := c.R().
		SetContext(ctx).
		SetRawPathParam("model", model).
		SetHeader("Content-Type", mimetype.Detect(data).String()).
		SetBody(data).
		SetResult(result)
	if revision != "" {
		r.SetQueryParam("revision", revision)
	}
	// the token is only sent to the hub, never to downloaded URLs
	if c.token != "" {
		r.SetAuthToken(c.token)
	}

	resp, err := r.Post("/models/{model}")
	if err != nil {
		return errors.Wrap(err, "couldn't connect with the hub")
	}
	if resp.IsError() {
		return errors.Errorf("hub inference with %s failed: %s %s", model, resp.Status(), strings.TrimSpace(resp.String()))
	}

	return nil
}

// Download fetches an absolute URL, e.g. an image given by URL.
func (c *HubClient) Download(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.R().SetContext(ctx).SetHeader("Accept", "*/*").Get(url)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to download %s", url)
	}
	if resp.IsError() {
		return nil, errors.Errorf("unable to download %s: %s", url, resp.Status())
	}
	return resp.Body(), nil
}
