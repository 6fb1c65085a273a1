package ws

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const aiAuthor = "AI"

// fallbackReply is delivered whenever the generative service fails, times
// out or returns something unusable. The client always gets a well-formed
// reply envelope, never a protocol error.
const fallbackReply = "Sorry, something went wrong. Please try again later."

// replyGenerator produces a reply for a single user message. Each call is
// independent; no conversation history is kept between calls.
type replyGenerator interface {
	GenerateReply(ctx context.Context, message string) (string, error)
}

// aiBridge relays one chat message to the generative service and delivers
// the reply to the originating connection only. The sender id is captured
// before the call, so delivery stays correct however membership changes
// while the request is in flight; a sender that disconnected in the
// meantime is a silent no-op inside Hub.SendTo.
type aiBridge struct {
	gen     replyGenerator
	hub     *Hub
	timeout time.Duration
	now     func() string
}

func newAIBridge(gen replyGenerator, hub *Hub, timeout time.Duration, now func() string) *aiBridge {
	return &aiBridge{gen: gen, hub: hub, timeout: timeout, now: now}
}

func (b *aiBridge) handle(ctx context.Context, senderID, message string) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	text, err := b.gen.GenerateReply(ctx, message)
	if err != nil {
		zap.L().Warn("ai.reply_failed", zap.String("conn_id", senderID), zap.Error(err))
		text = fallbackReply
	}

	b.hub.SendTo(senderID, outEnvelope{
		Event: "receive_ai_message",
		Body:  ChatMessage{Author: aiAuthor, Message: text, Time: b.now()},
	})
}
