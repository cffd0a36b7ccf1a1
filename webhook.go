package amaterasu

import (
	"fmt"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// WebhookClient executes webhooks outside the bot's rate-limit state;
// webhook URLs carry their own token and their own budget. fasthttp
// keeps the fire-and-forget path allocation-light.
type WebhookClient struct {
	client *fasthttp.Client
	log    *zap.Logger
}

// NewWebhookClient constructs a WebhookClient.
func NewWebhookClient(opts ...WebhookOpt) *WebhookClient {
	w := &WebhookClient{
		client: &fasthttp.Client{},
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WebhookOpt customizes a WebhookClient.
type WebhookOpt func(*WebhookClient)

// WithWebhookLogger attaches a logger.
func WithWebhookLogger(log *zap.Logger) WebhookOpt {
	return func(w *WebhookClient) { w.log = log }
}

// Execute posts the payload to the webhook URL.
func (w *WebhookClient) Execute(webhookURL string, payload *WebhookPayload) error {
	if err := checkLength("content", payload.Content, maxContentLength); err != nil {
		return err
	}
	body, err := jsonCodec.Marshal(payload)
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(webhookURL)
	req.Header.Set("User-Agent", userAgent)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := w.client.Do(req, resp); err != nil {
		return err
	}
	if code := resp.StatusCode(); code >= fasthttp.StatusBadRequest {
		w.log.Warn("webhook rejected", zap.Int("status", code))
		return fmt.Errorf("amaterasu: webhook http %d", code)
	}
	return nil
}
