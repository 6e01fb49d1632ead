// Package skill holds the conversation skills registered with the collector
// engine: the human-reply escalation flow, the NLU simple-response flow, and
// the one-off meal-type question used by the diet pipeline.
package skill

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"calobot.app/bot/internal/collector"
	"calobot.app/bot/internal/model"
)

const HumanReplyName = "human-reply"

const intentActionRobotReply = "robot-reply"

// Intents registered for internal flow control; they never appear in the
// numbered intent menu.
var skipIntents = []string{
	"Default Fallback Intent",
	"Default Welcome Intent",
	"escalate",
	"human-reply",
	"robot-reply",
}

// IntentRegistry is the slice of intent management the learning flow needs.
type IntentRegistry interface {
	List(ctx context.Context) ([]model.RegisteredIntent, error)
	Add(ctx context.Context, name, action, trainingPhrase, responseText string) error
	AddTrainingPhrase(ctx context.Context, intentID, phrase string) error
}

// HumanReply lets an operator answer an escalated user question, optionally
// teaching the answer back to the NLU as a new or existing Q&A intent.
type HumanReply struct {
	intents IntentRegistry
}

func NewHumanReply(intents IntentRegistry) *HumanReply {
	return &HumanReply{intents: intents}
}

func (s *HumanReply) Name() string { return HumanReplyName }

func (s *HumanReply) ClearContextOnFinish() bool { return true }

func (s *HumanReply) Required() []collector.Parameter {
	answerPrompt := model.NewTextMessage("ではメッセージをお願いします。")
	return []collector.Parameter{
		{Name: "user_id"},
		{
			Name:   "answer_message",
			Prompt: &answerPrompt,
			Parse:  parseAnswerMessage,
			React: func(_ context.Context, value any, _ *model.Session, bot *collector.Bot) error {
				// Learning only works for text answers.
				if msg, ok := value.(model.Message); ok && msg.Type == model.MessageTypeText {
					bot.Collect("enable_learning")
				}
				return nil
			},
		},
	}
}

func (s *HumanReply) Optional() []collector.Parameter {
	enableLearningPrompt := model.NewConfirmMessage(
		"このQ&AをChatbotに学習させますか？（はい・いいえ）",
		"このQ&AをChatbotに学習させますか？",
		"はい", "いいえ",
	)
	isNewIntentPrompt := model.NewButtonsMessage(
		"この質問は新しいQ&Aですか？あるいは既存のQ&Aですか？（新規・既存・わからない）",
		"この質問は新しいQ&Aですか？あるいは既存のQ&Aですか？",
		"新規", "既存", "わからない",
	)

	return []collector.Parameter{
		{Name: "question"},
		{Name: "intent_list"},
		{
			Name:   "enable_learning",
			Prompt: &enableLearningPrompt,
			Parse: func(_ context.Context, ev model.Event, _ *model.Session) (any, error) {
				switch ev.InputText() {
				case "はい":
					return true, nil
				case "いいえ":
					return false, nil
				}
				return nil, collector.ErrParse
			},
			React: func(_ context.Context, value any, _ *model.Session, bot *collector.Bot) error {
				if value == true {
					bot.Collect("is_new_intent")
				}
				return nil
			},
		},
		{
			Name:   "is_new_intent",
			Prompt: &isNewIntentPrompt,
			Parse: func(_ context.Context, ev model.Event, _ *model.Session) (any, error) {
				input := ev.InputText()
				if !slices.Contains([]string{"新規", "既存", "わからない"}, input) {
					return nil, collector.ErrParse
				}
				return input, nil
			},
			React: func(ctx context.Context, value any, sess *model.Session, bot *collector.Bot) error {
				if value == "新規" {
					return s.registerIntent(ctx, sess, bot)
				}
				return s.offerIntentMenu(ctx, sess, bot)
			},
		},
		{
			Name:  "intent_id",
			Parse: parseIntentChoice,
			React: func(ctx context.Context, value any, sess *model.Session, bot *collector.Bot) error {
				if value == nil {
					return s.registerIntent(ctx, sess, bot)
				}
				id, ok := value.(string)
				if !ok {
					return fmt.Errorf("unexpected intent id type %T", value)
				}
				question, err := model.ConfirmedAs[string](sess, "question")
				if err != nil {
					return err
				}
				if err := s.intents.AddTrainingPhrase(ctx, id, question); err != nil {
					return fmt.Errorf("adding training phrase: %w", err)
				}
				bot.Queue(model.NewTextMessage("では例文として追加しておきます。"))
				return nil
			},
		},
	}
}

// Finish sends the confirmed answer to the original user and confirms to the
// operator, concurrently. Neither send is cross-checked against the other.
func (s *HumanReply) Finish(ctx context.Context, sess *model.Session, bot *collector.Bot) error {
	userID, err := model.ConfirmedAs[string](sess, "user_id")
	if err != nil {
		return err
	}
	answer, err := model.ConfirmedAs[model.Message](sess, "answer_message")
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = bot.Reply(ctx, model.NewTextMessage("いただいた内容でユーザーへ返信しておきます。"))
	}()
	go func() {
		defer wg.Done()
		errs[1] = bot.Send(ctx, userID, answer)
	}()
	wg.Wait()

	return errors.Join(errs...)
}

// parseAnswerMessage accepts text, sticker, and location messages as the
// operator's answer; everything else re-prompts.
func parseAnswerMessage(_ context.Context, ev model.Event, _ *model.Session) (any, error) {
	if ev.Message == nil {
		return nil, collector.ErrParse
	}
	switch ev.Message.Type {
	case model.MessageTypeText, model.MessageTypeSticker, model.MessageTypeLocation:
		return ev.Message.WithoutID(), nil
	}
	return nil, collector.ErrParse
}

// parseIntentChoice reads the number the operator picked from the intent
// menu: 1..N selects that intent's id, N+1 means "register as new" (nil
// sentinel).
func parseIntentChoice(_ context.Context, ev model.Event, sess *model.Session) (any, error) {
	n, err := strconv.Atoi(strings.TrimSpace(ev.InputText()))
	if err != nil || n <= 0 {
		return nil, collector.ErrParse
	}
	list, err := model.ConfirmedAs[[]model.RegisteredIntent](sess, "intent_list")
	if err != nil {
		return nil, collector.ErrParse
	}
	switch {
	case n <= len(list):
		return list[n-1].ID, nil
	case n == len(list)+1:
		return nil, nil
	}
	return nil, collector.ErrParse
}

// registerIntent creates a new Q&A intent from the recorded question and
// answer text.
func (s *HumanReply) registerIntent(ctx context.Context, sess *model.Session, bot *collector.Bot) error {
	question, err := model.ConfirmedAs[string](sess, "question")
	if err != nil {
		return err
	}
	answer, err := model.ConfirmedAs[model.Message](sess, "answer_message")
	if err != nil {
		return err
	}
	if err := s.intents.Add(ctx, question, intentActionRobotReply, question, answer.Text); err != nil {
		return fmt.Errorf("registering intent: %w", err)
	}
	bot.Queue(model.NewTextMessage("では新規Q&Aとして追加しておきます。"))
	return nil
}

// offerIntentMenu fetches the intent catalog, stores it in the session, and
// rewrites the intent_id prompt into a numbered menu before collecting it.
func (s *HumanReply) offerIntentMenu(ctx context.Context, sess *model.Session, bot *collector.Bot) error {
	all, err := s.intents.List(ctx)
	if err != nil {
		return fmt.Errorf("fetching intent list: %w", err)
	}

	list := make([]model.RegisteredIntent, 0, len(all))
	for _, it := range all {
		if !slices.Contains(skipIntents, it.Name) {
			list = append(list, it)
		}
	}
	sess.Confirm("intent_list", list)

	var menu strings.Builder
	menu.WriteString("この例文を追加する質問の番号を教えてください。\n")
	for i, it := range list {
		fmt.Fprintf(&menu, "%d %s\n", i+1, it.Name)
	}
	fmt.Fprintf(&menu, "%d 新しいQ&Aとして登録", len(list)+1)

	bot.SetPrompt("intent_id", model.NewTextMessage(menu.String()))
	bot.Collect("intent_id")
	return nil
}
