package amaterasu

import (
	"encoding/json"
)

// Event is a single gateway frame. The payload is kept raw; the
// session only decodes the frames it has to act on.
type Event struct {
	Operation int             `json:"op"`
	Sequence  *int64          `json:"s,omitempty"`
	Type      string          `json:"t,omitempty"`
	RawData   json.RawMessage `json:"d,omitempty"`
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type identifyData struct {
	Token      string             `json:"token"`
	Intents    int64              `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyFrame struct {
	Op   int          `json:"op"`
	Data identifyData `json:"d"`
}

type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Sequence  int64  `json:"seq"`
}

type resumeFrame struct {
	Op   int        `json:"op"`
	Data resumeData `json:"d"`
}

type heartbeatFrame struct {
	Op   int    `json:"op"`
	Data *int64 `json:"d"`
}

type readyData struct {
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
	User             User   `json:"user"`
}

type gatewayResponse struct {
	URL string `json:"url"`
}

// User is the slice of a Discord user the library itself needs.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	Bot           bool   `json:"bot"`
}

// Message is a channel message as returned by the REST surface.
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
	Author    User   `json:"author"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Channel carries the channel fields bots commonly branch on.
type Channel struct {
	ID      string `json:"id"`
	Type    int    `json:"type"`
	GuildID string `json:"guild_id,omitempty"`
	Name    string `json:"name,omitempty"`
	Topic   string `json:"topic,omitempty"`
}

// MessageSend is the request body for creating a message.
type MessageSend struct {
	Content string `json:"content,omitempty"`
	Nonce   string `json:"nonce,omitempty"`
	TTS     bool   `json:"tts,omitempty"`
}

// MessageEdit is the request body for editing a message.
type MessageEdit struct {
	Content *string `json:"content,omitempty"`
}

// ApplicationCommand registers a slash command for the bot user.
type ApplicationCommand struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        int    `json:"type,omitempty"`
}

// WebhookPayload is the body for executing a webhook.
type WebhookPayload struct {
	Content   string  `json:"content,omitempty"`
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Embeds    []Embed `json:"embeds,omitempty"`
}

// Embed is a rich-content block inside a webhook or message payload.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

// EmbedField is one name/value row of an Embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}
