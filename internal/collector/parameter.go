// Package collector implements the conversation parameter collector: a
// per-user state machine that walks a skill's declared parameters, parses one
// inbound message per pending parameter, and hands the completed session to
// the skill's finish step.
package collector

import (
	"context"
	"errors"

	"calobot.app/bot/internal/model"
)

// ErrParse marks user input that does not satisfy the active parameter's
// parser. The engine recovers by re-issuing the confirmation prompt; it is
// never surfaced to the dispatcher.
var ErrParse = errors.New("input not accepted")

// Parser turns a raw inbound event into the parameter's value. Any returned
// error is treated as a parse failure.
type Parser func(ctx context.Context, ev model.Event, sess *model.Session) (any, error)

// Reaction runs after a parameter is confirmed. It may enqueue follow-up
// parameters or send messages through the bot; errors propagate to the
// dispatcher with the session kept as-is.
type Reaction func(ctx context.Context, value any, sess *model.Session, bot *Bot) error

// Parameter declares one user-suppliable value of a skill.
//
// A nil Prompt falls back to a generic text prompt. A nil Parse accepts the
// event's input text verbatim. A nil React is a no-op.
type Parameter struct {
	Name   string
	Prompt *model.Message
	Parse  Parser
	React  Reaction
}

// Skill is a named, stateless conversation policy: its parameter definitions
// plus a terminal finish step. Required parameters are enqueued when the
// skill starts; optional ones only when a reaction collects them.
type Skill interface {
	Name() string
	Required() []Parameter
	Optional() []Parameter
	Finish(ctx context.Context, sess *model.Session, bot *Bot) error
	ClearContextOnFinish() bool
}

// Transport delivers outbound messages to the messaging platform.
type Transport interface {
	Reply(ctx context.Context, replyToken string, msgs []model.Message) error
	Push(ctx context.Context, userID string, msgs []model.Message) error
}
