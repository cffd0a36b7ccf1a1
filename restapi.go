package amaterasu

import (
	"context"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// The helper catalog. Each helper validates its inputs before any I/O
// and hands the limiter a (method, route template, path) triple.

// GetGateway asks the API for the gateway URL without touching the
// process-wide cache. Mostly useful as a connectivity check.
func (c *RESTClient) GetGateway(ctx context.Context) (string, error) {
	path, route := endpointGateway()
	var gr gatewayResponse
	if err := c.do(ctx, http.MethodGet, path, route, nil, &gr, ""); err != nil {
		return "", err
	}
	return gr.URL, nil
}

// GetChannel fetches a channel by id.
func (c *RESTClient) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	if err := checkSnowflake("channel id", channelID); err != nil {
		return nil, err
	}
	path, route := endpointChannel(channelID)
	var ch Channel
	if err := c.do(ctx, http.MethodGet, path, route, nil, &ch, ""); err != nil {
		return nil, err
	}
	return &ch, nil
}

// CreateMessage posts content to a channel. The nonce makes retries
// after ambiguous failures safe to deduplicate server side.
func (c *RESTClient) CreateMessage(ctx context.Context, channelID, content string) (*Message, error) {
	return c.CreateMessageComplex(ctx, channelID, &MessageSend{
		Content: content,
		Nonce:   uuid.NewString(),
	})
}

// CreateMessageComplex posts a full message payload.
func (c *RESTClient) CreateMessageComplex(ctx context.Context, channelID string, send *MessageSend) (*Message, error) {
	if err := checkSnowflake("channel id", channelID); err != nil {
		return nil, err
	}
	if err := checkLength("content", send.Content, maxContentLength); err != nil {
		return nil, err
	}
	path, route := endpointChannelMessages(channelID)
	var m Message
	if err := c.do(ctx, http.MethodPost, path, route, send, &m, ""); err != nil {
		return nil, err
	}
	return &m, nil
}

// EditMessage replaces a message's content.
func (c *RESTClient) EditMessage(ctx context.Context, channelID, messageID, content string) (*Message, error) {
	if err := checkSnowflake("channel id", channelID); err != nil {
		return nil, err
	}
	if err := checkSnowflake("message id", messageID); err != nil {
		return nil, err
	}
	if err := checkLength("content", content, maxContentLength); err != nil {
		return nil, err
	}
	path, route := endpointChannelMessage(channelID, messageID)
	var m Message
	if err := c.do(ctx, http.MethodPatch, path, route, &MessageEdit{Content: &content}, &m, ""); err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteMessage removes a message, with an optional audit-log reason.
func (c *RESTClient) DeleteMessage(ctx context.Context, channelID, messageID, reason string) error {
	if err := checkSnowflake("channel id", channelID); err != nil {
		return err
	}
	if err := checkSnowflake("message id", messageID); err != nil {
		return err
	}
	path, route := endpointChannelMessage(channelID, messageID)
	return c.do(ctx, http.MethodDelete, path, route, nil, nil, reason)
}

// CreateReaction adds the bot's reaction to a message.
func (c *RESTClient) CreateReaction(ctx context.Context, channelID, messageID, emoji string) error {
	if err := checkSnowflake("channel id", channelID); err != nil {
		return err
	}
	if err := checkSnowflake("message id", messageID); err != nil {
		return err
	}
	path, route := endpointMessageReactionSelf(channelID, messageID, url.PathEscape(emoji))
	return c.do(ctx, http.MethodPut, path, route, nil, nil, "")
}

// TriggerTyping shows the typing indicator in a channel.
func (c *RESTClient) TriggerTyping(ctx context.Context, channelID string) error {
	if err := checkSnowflake("channel id", channelID); err != nil {
		return err
	}
	path, route := endpointChannelTyping(channelID)
	return c.do(ctx, http.MethodPost, path, route, nil, nil, "")
}

// CreateApplicationCommand registers a slash command under the bot's
// application id, normally the user id captured from READY.
func (c *RESTClient) CreateApplicationCommand(ctx context.Context, applicationID string, cmd ApplicationCommand) (*ApplicationCommand, error) {
	if err := checkSnowflake("application id", applicationID); err != nil {
		return nil, err
	}
	path, route := endpointApplicationCommands(applicationID)
	var out ApplicationCommand
	if err := c.do(ctx, http.MethodPost, path, route, &cmd, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteApplicationCommand unregisters a slash command.
func (c *RESTClient) DeleteApplicationCommand(ctx context.Context, applicationID, commandID string) error {
	if err := checkSnowflake("application id", applicationID); err != nil {
		return err
	}
	if err := checkSnowflake("command id", commandID); err != nil {
		return err
	}
	path, route := endpointApplicationCommand(applicationID, commandID)
	return c.do(ctx, http.MethodDelete, path, route, nil, nil, "")
}
