package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"calobot.app/bot/common/logger"
	"calobot.app/bot/internal/collector"
	"calobot.app/bot/internal/model"
	"calobot.app/bot/internal/skill"
)

// IntentDetector classifies an inbound message.
type IntentDetector interface {
	Detect(ctx context.Context, sessionID, text string) (model.Intent, error)
}

// WebhookService routes each inbound event: open sessions are resumed, NLU
// hits start their skill, and everything else goes through the diet-logging
// pipeline.
type WebhookService struct {
	engine    *collector.Engine
	intents   IntentDetector
	diet      *DietService
	transport collector.Transport
}

func NewWebhookService(engine *collector.Engine, intents IntentDetector, diet *DietService, transport collector.Transport) *WebhookService {
	return &WebhookService{engine: engine, intents: intents, diet: diet, transport: transport}
}

// HandleEvent processes one webhook event. Errors are for the caller to log;
// the transport acknowledgement never depends on them.
func (s *WebhookService) HandleEvent(ctx context.Context, ev model.Event) error {
	if ev.UserID == "" {
		slog.DebugContext(ctx, "skipping event without user id", "event_type", ev.Type)
		return nil
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		UserID:    logger.Ptr(ev.UserID),
		EventType: logger.Ptr(ev.Type),
	})

	open, err := s.engine.HasOpenSession(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("checking open session: %w", err)
	}
	if open {
		if err := s.engine.Resume(ctx, ev); err != nil && !errors.Is(err, collector.ErrNoSession) {
			return fmt.Errorf("resuming session: %w", err)
		}
		return nil
	}

	if ev.Type != model.EventTypeMessage || ev.Message == nil || ev.Message.Type != model.MessageTypeText {
		slog.DebugContext(ctx, "ignoring non-text event outside a session")
		return nil
	}

	intent, err := s.intents.Detect(ctx, ev.UserID, ev.Message.Text)
	if err != nil {
		return fmt.Errorf("detecting intent: %w", err)
	}
	if s.engine.HasSkill(intent.Name) {
		if err := s.engine.Start(ctx, ev, intent.Name, intent, intent.Parameters); err != nil {
			return fmt.Errorf("starting %s: %w", intent.Name, err)
		}
		return nil
	}

	return s.logMeal(ctx, ev)
}

// logMeal runs the diet pipeline for a plain text message. When the clock
// does not pin the meal type, the diet-log skill asks the user instead.
func (s *WebhookService) logMeal(ctx context.Context, ev model.Event) error {
	foods, err := s.diet.ExtractFoods(ctx, ev.Message.Text)
	if err != nil {
		return fmt.Errorf("extracting foods: %w", err)
	}
	if len(foods) == 0 {
		slog.DebugContext(ctx, "no identifiable food in message",
			"text", logger.Truncate(ev.Message.Text, 64))
		return nil
	}

	if mealType, ok := MealTypeForTime(s.diet.now()); ok {
		reply, err := s.diet.RecordMeal(ctx, ev.UserID, mealType, foods)
		if err != nil {
			return fmt.Errorf("recording meal: %w", err)
		}
		if err := s.transport.Reply(ctx, ev.ReplyToken, []model.Message{reply}); err != nil {
			return fmt.Errorf("sending calorie reply: %w", err)
		}
		return nil
	}

	err = s.engine.Start(ctx, ev, skill.DietLogName, model.Intent{Name: skill.DietLogName},
		map[string]any{"foods": foods})
	if err != nil {
		return fmt.Errorf("asking meal type: %w", err)
	}
	return nil
}
