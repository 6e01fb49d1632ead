package collector

import (
	"context"
	"fmt"

	"calobot.app/bot/internal/model"
)

// Bot is the outbound side of one conversation turn. Reactions and finish
// steps use it to queue messages, enqueue further parameters, and override
// prompts. Queued messages ride along with the next Reply.
type Bot struct {
	transport  Transport
	sess       *model.Session
	replyToken string
	queued     []model.Message
	replied    bool
}

func newBot(transport Transport, sess *model.Session, replyToken string) *Bot {
	return &Bot{transport: transport, sess: sess, replyToken: replyToken}
}

// Collect enqueues parameters for confirmation, skipping any that are already
// pending or confirmed.
func (b *Bot) Collect(names ...string) {
	b.sess.PushPending(names...)
}

// SetPrompt overrides the confirmation prompt for a parameter within this
// session.
func (b *Bot) SetPrompt(name string, msg model.Message) {
	b.sess.SetPrompt(name, msg)
}

// Queue buffers a message for delivery with the next Reply.
func (b *Bot) Queue(msgs ...model.Message) {
	b.queued = append(b.queued, msgs...)
}

// Reply sends the queued messages plus msgs using the turn's reply token.
// Once the token is spent, later calls within the same turn fall back to
// push delivery.
func (b *Bot) Reply(ctx context.Context, msgs ...model.Message) error {
	out := append(b.queued, msgs...)
	b.queued = nil
	if len(out) == 0 {
		return nil
	}

	var err error
	if b.replied || b.replyToken == "" {
		err = b.transport.Push(ctx, b.sess.UserID, out)
	} else {
		err = b.transport.Reply(ctx, b.replyToken, out)
		b.replied = true
	}
	if err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}

	for _, m := range out {
		b.sess.AppendTurn(model.TurnSourceBot, m.Type, m)
	}
	return nil
}

// Send pushes messages to an arbitrary user, independent of the current
// conversation. It touches no session state, so it is safe to run
// concurrently with Reply.
func (b *Bot) Send(ctx context.Context, userID string, msgs ...model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := b.transport.Push(ctx, userID, msgs); err != nil {
		return fmt.Errorf("pushing to %s: %w", userID, err)
	}
	return nil
}
