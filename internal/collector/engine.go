package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"calobot.app/bot/internal/model"
	"calobot.app/bot/internal/session"
)

// ErrNoSession is returned by Resume when the user has no open session.
var ErrNoSession = errors.New("no open session")

// ErrUnknownSkill is returned when a session or start request names a skill
// that is not registered.
var ErrUnknownSkill = errors.New("unknown skill")

type compiledSkill struct {
	skill  Skill
	params map[string]Parameter
}

// Engine drives conversations: it opens sessions for detected intents,
// resumes open sessions with inbound events, and runs skill finish steps once
// every required parameter is confirmed.
type Engine struct {
	sessions  session.Store
	transport Transport
	skills    map[string]compiledSkill
}

func NewEngine(sessions session.Store, transport Transport, skills ...Skill) *Engine {
	compiled := make(map[string]compiledSkill, len(skills))
	for _, sk := range skills {
		params := make(map[string]Parameter)
		for _, p := range sk.Required() {
			params[p.Name] = p
		}
		for _, p := range sk.Optional() {
			params[p.Name] = p
		}
		compiled[sk.Name()] = compiledSkill{skill: sk, params: params}
	}
	return &Engine{sessions: sessions, transport: transport, skills: compiled}
}

// HasSkill reports whether a skill is registered under the given name.
func (e *Engine) HasSkill(name string) bool {
	_, ok := e.skills[name]
	return ok
}

// HasOpenSession reports whether the user is mid-conversation.
func (e *Engine) HasOpenSession(ctx context.Context, userID string) (bool, error) {
	if _, err := e.sessions.Get(ctx, userID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Cancel drops the user's open session, if any.
func (e *Engine) Cancel(ctx context.Context, userID string) error {
	return e.sessions.Delete(ctx, userID)
}

// Start opens a session for the named skill and walks it as far as it can go.
// Seed values from the detected intent confirm their parameters up front, so
// a fully-seeded skill finishes within the same turn.
func (e *Engine) Start(ctx context.Context, ev model.Event, skillName string, intent model.Intent, seed map[string]any) error {
	cs, ok := e.skills[skillName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSkill, skillName)
	}

	sess := model.NewSession(ev.UserID, skillName, intent)
	sess.AppendTurn(model.TurnSourceUser, ev.Type, ev.Message)

	for _, p := range cs.skill.Required() {
		sess.PushPending(p.Name)
	}
	for name, value := range seed {
		if _, defined := cs.params[name]; !defined {
			slog.DebugContext(ctx, "ignoring undeclared seed parameter",
				"skill", skillName, "parameter", name)
			continue
		}
		sess.Confirm(name, value)
		sess.RemovePending(name)
	}

	bot := newBot(e.transport, sess, ev.ReplyToken)
	return e.advance(ctx, cs, sess, bot)
}

// Resume applies one inbound event to the user's open session: the event is
// parsed against the active parameter, a failed parse re-issues the prompt,
// and a successful parse runs the parameter's reaction before moving on.
func (e *Engine) Resume(ctx context.Context, ev model.Event) error {
	sess, err := e.sessions.Get(ctx, ev.UserID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrNoSession
		}
		return fmt.Errorf("loading session: %w", err)
	}

	cs, ok := e.skills[sess.Skill]
	if !ok {
		// A deploy removed the skill mid-conversation. Drop the session so
		// the user is not stuck.
		if delErr := e.sessions.Delete(ctx, ev.UserID); delErr != nil {
			slog.ErrorContext(ctx, "failed to delete orphaned session", "error", delErr)
		}
		return fmt.Errorf("%w: %s", ErrUnknownSkill, sess.Skill)
	}

	name, ok := sess.ActiveParameter()
	if !ok {
		// Nothing left to collect; the session should have finished already.
		return e.finish(ctx, cs, sess, newBot(e.transport, sess, ev.ReplyToken))
	}
	param := cs.params[name]

	sess.AppendTurn(model.TurnSourceUser, ev.Type, ev.Message)
	bot := newBot(e.transport, sess, ev.ReplyToken)

	value, err := parseInput(ctx, param, ev, sess)
	if err != nil {
		slog.DebugContext(ctx, "input not accepted, re-prompting",
			"skill", sess.Skill, "parameter", name, "error", err)
		return e.prompt(ctx, sess, bot, param)
	}

	sess.Confirm(name, value)
	sess.RemovePending(name)

	if param.React != nil {
		if err := param.React(ctx, value, sess, bot); err != nil {
			if putErr := e.sessions.Put(ctx, sess); putErr != nil {
				slog.ErrorContext(ctx, "failed to store session", "error", putErr)
			}
			return fmt.Errorf("reaction for %s: %w", name, err)
		}
	}

	return e.advance(ctx, cs, sess, bot)
}

func parseInput(ctx context.Context, param Parameter, ev model.Event, sess *model.Session) (any, error) {
	if param.Parse == nil {
		return ev.InputText(), nil
	}
	return param.Parse(ctx, ev, sess)
}

// advance prompts for the next collectable parameter, or finishes the skill
// when the queue is empty. Pending names no parameter declares are dropped.
func (e *Engine) advance(ctx context.Context, cs compiledSkill, sess *model.Session, bot *Bot) error {
	for {
		name, ok := sess.ActiveParameter()
		if !ok {
			return e.finish(ctx, cs, sess, bot)
		}
		param, defined := cs.params[name]
		if !defined {
			slog.WarnContext(ctx, "dropping undeclared pending parameter",
				"skill", sess.Skill, "parameter", name)
			sess.RemovePending(name)
			continue
		}
		return e.prompt(ctx, sess, bot, param)
	}
}

// prompt persists the session and sends the parameter's confirmation prompt.
// Session-scoped prompt overrides win over the static declaration.
func (e *Engine) prompt(ctx context.Context, sess *model.Session, bot *Bot, param Parameter) error {
	msg := promptFor(sess, param)

	if err := e.sessions.Put(ctx, sess); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	if err := bot.Reply(ctx, msg); err != nil {
		return fmt.Errorf("prompting for %s: %w", param.Name, err)
	}
	return nil
}

func promptFor(sess *model.Session, param Parameter) model.Message {
	if override, ok := sess.Prompts[param.Name]; ok {
		return override
	}
	if param.Prompt != nil {
		return *param.Prompt
	}
	return model.NewTextMessage(fmt.Sprintf("%sを教えてください。", param.Name))
}

// finish runs the skill's terminal step. The session is closed afterwards
// regardless of the finish outcome, so a skill finishes at most once.
func (e *Engine) finish(ctx context.Context, cs compiledSkill, sess *model.Session, bot *Bot) error {
	finishErr := cs.skill.Finish(ctx, sess, bot)

	if cs.skill.ClearContextOnFinish() {
		if err := e.sessions.Delete(ctx, sess.UserID); err != nil {
			slog.ErrorContext(ctx, "failed to delete finished session", "error", err)
		}
	} else {
		sess.Pending = nil
		if err := e.sessions.Put(ctx, sess); err != nil {
			slog.ErrorContext(ctx, "failed to store finished session", "error", err)
		}
	}

	if finishErr != nil {
		return fmt.Errorf("finishing %s: %w", sess.Skill, finishErr)
	}
	return nil
}
