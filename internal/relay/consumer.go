package relay

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/blobcode/novaGround/internal/transport"
)

// CommandHandler reacts to one inbound command message. Handlers run on
// the consumer goroutine, after the message has been logged.
type CommandHandler func(ctx context.Context, msg transport.Message)

// Consumer drains the inbound command stream. Every message is logged with
// its topic and payload; an optional handler is the dispatch extension
// point on top of that. Receiving blocks on the transport channel, so a
// quiet or disconnected link costs nothing.
type Consumer struct {
	source  <-chan transport.Message
	handler CommandHandler

	handled atomic.Uint64
}

// NewConsumer wires a consumer to the inbound stream. handler may be nil.
func NewConsumer(source <-chan transport.Message, handler CommandHandler) *Consumer {
	return &Consumer{source: source, handler: handler}
}

// Run consumes until ctx is cancelled or the source closes.
func (c *Consumer) Run(ctx context.Context) {
	slog.Info("command consumer started")

	for {
		select {
		case <-ctx.Done():
			slog.Info("command consumer stopping", "handled", c.handled.Load())
			return
		case msg, ok := <-c.source:
			if !ok {
				slog.Info("command stream closed", "handled", c.handled.Load())
				return
			}
			slog.Info("command received", "topic", msg.Topic, "payload", string(msg.Payload))
			if c.handler != nil {
				c.handler(ctx, msg)
			}
			c.handled.Add(1)
		}
	}
}

// Handled returns the number of consumed messages.
func (c *Consumer) Handled() uint64 { return c.handled.Load() }
