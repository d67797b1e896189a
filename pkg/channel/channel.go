package channel

import (
	"context"

	"splitrelay/pkg/bus"
)

// Handler processes one inbound channel message and returns an outbound reply.
type Handler func(context.Context, bus.InboundMessage) (bus.OutboundMessage, error)

// Adapter bridges one external transport (for example Telegram) into the relay.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}
