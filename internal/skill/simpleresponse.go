package skill

import (
	"context"
	"log/slog"
	"math/rand/v2"

	"calobot.app/bot/internal/collector"
	"calobot.app/bot/internal/model"
)

const SimpleResponseName = "simple-response"

// SimpleResponse replies with one of the NLU intent's fulfillment messages,
// chosen uniformly at random. It collects nothing.
type SimpleResponse struct{}

func NewSimpleResponse() *SimpleResponse { return &SimpleResponse{} }

func (s *SimpleResponse) Name() string { return SimpleResponseName }

func (s *SimpleResponse) Required() []collector.Parameter { return nil }

func (s *SimpleResponse) Optional() []collector.Parameter { return nil }

func (s *SimpleResponse) ClearContextOnFinish() bool { return true }

func (s *SimpleResponse) Finish(ctx context.Context, sess *model.Session, bot *collector.Bot) error {
	candidates := sess.Intent.Fulfillment.Messages
	if len(candidates) == 0 {
		// The NLU configured no response for this intent. Intentional
		// silence; replying with a fallback would mask the configuration gap.
		slog.WarnContext(ctx, "intent has no fulfillment messages, sending nothing",
			"intent", sess.Intent.Name)
		return nil
	}

	picked := candidates[rand.IntN(len(candidates))]
	switch picked.Type {
	case model.FulfillmentTypeSpeech:
		return bot.Reply(ctx, model.NewTextMessage(picked.Speech))
	case model.FulfillmentTypePayload:
		return bot.Reply(ctx, model.NewRawMessage(picked.Payload))
	}

	slog.WarnContext(ctx, "unsupported fulfillment message type, sending nothing",
		"intent", sess.Intent.Name, "type", picked.Type)
	return nil
}
