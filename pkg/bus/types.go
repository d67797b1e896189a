package bus

// InboundMessage is one normalized chat event handed to the relay handler.
type InboundMessage struct {
	Channel  string            `json:"channel"`
	SenderID string            `json:"sender_id,omitempty"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	ImageURL string            `json:"image_url,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is the reply produced for one inbound event.
type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}
