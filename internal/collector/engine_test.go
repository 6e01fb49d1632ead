package collector_test

import (
	"context"
	"errors"
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"calobot.app/bot/internal/collector"
	"calobot.app/bot/internal/model"
	"calobot.app/bot/internal/session"
)

type sentBatch struct {
	replyToken string
	userID     string
	msgs       []model.Message
}

type mockTransport struct {
	replyFn func(ctx context.Context, replyToken string, msgs []model.Message) error
	pushFn  func(ctx context.Context, userID string, msgs []model.Message) error
	sent    []sentBatch
}

func (m *mockTransport) Reply(ctx context.Context, replyToken string, msgs []model.Message) error {
	m.sent = append(m.sent, sentBatch{replyToken: replyToken, msgs: msgs})
	if m.replyFn != nil {
		return m.replyFn(ctx, replyToken, msgs)
	}
	return nil
}

func (m *mockTransport) Push(ctx context.Context, userID string, msgs []model.Message) error {
	m.sent = append(m.sent, sentBatch{userID: userID, msgs: msgs})
	if m.pushFn != nil {
		return m.pushFn(ctx, userID, msgs)
	}
	return nil
}

func (m *mockTransport) allTexts() []string {
	var texts []string
	for _, batch := range m.sent {
		for _, msg := range batch.msgs {
			texts = append(texts, msg.Text)
		}
	}
	return texts
}

type testSkill struct {
	name         string
	required     []collector.Parameter
	optional     []collector.Parameter
	finishFn     func(ctx context.Context, sess *model.Session, bot *collector.Bot) error
	keepContext  bool
	finishCalled int
}

func (s *testSkill) Name() string                            { return s.name }
func (s *testSkill) Required() []collector.Parameter         { return s.required }
func (s *testSkill) Optional() []collector.Parameter         { return s.optional }
func (s *testSkill) ClearContextOnFinish() bool              { return !s.keepContext }
func (s *testSkill) Finish(ctx context.Context, sess *model.Session, bot *collector.Bot) error {
	s.finishCalled++
	if s.finishFn != nil {
		return s.finishFn(ctx, sess, bot)
	}
	return nil
}

func textEvent(userID, text string) model.Event {
	return model.Event{
		Type:       model.EventTypeMessage,
		UserID:     userID,
		ReplyToken: "token-" + text,
		Message:    &model.Message{Type: model.MessageTypeText, Text: text},
	}
}

var _ = Describe("Engine", func() {
	var (
		ctx       context.Context
		sessions  session.Store
		transport *mockTransport
	)

	BeforeEach(func() {
		ctx = context.Background()
		sessions = session.NewMemoryStore()
		transport = &mockTransport{}
	})

	newEngine := func(skills ...collector.Skill) *collector.Engine {
		return collector.NewEngine(sessions, transport, skills...)
	}

	Describe("Start", func() {
		It("prompts for the first required parameter", func() {
			sk := &testSkill{
				name: "order",
				required: []collector.Parameter{
					{Name: "size", Prompt: &model.Message{Type: model.MessageTypeText, Text: "サイズは？"}},
					{Name: "count", Prompt: &model.Message{Type: model.MessageTypeText, Text: "何個？"}},
				},
			}
			engine := newEngine(sk)

			err := engine.Start(ctx, textEvent("U1", "start"), "order", model.Intent{Name: "order"}, nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(transport.sent).To(HaveLen(1))
			Expect(transport.sent[0].msgs[0].Text).To(Equal("サイズは？"))

			sess, err := sessions.Get(ctx, "U1")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Pending).To(Equal([]string{"size", "count"}))
		})

		It("skips seeded parameters and prompts the next one", func() {
			sk := &testSkill{
				name: "order",
				required: []collector.Parameter{
					{Name: "size", Prompt: &model.Message{Type: model.MessageTypeText, Text: "サイズは？"}},
					{Name: "count", Prompt: &model.Message{Type: model.MessageTypeText, Text: "何個？"}},
				},
			}
			engine := newEngine(sk)

			err := engine.Start(ctx, textEvent("U1", "start"), "order", model.Intent{Name: "order"},
				map[string]any{"size": "L"})

			Expect(err).NotTo(HaveOccurred())
			Expect(transport.sent[0].msgs[0].Text).To(Equal("何個？"))

			sess, err := sessions.Get(ctx, "U1")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Confirmed).To(HaveKeyWithValue("size", "L"))
			Expect(sess.Pending).To(Equal([]string{"count"}))
		})

		It("ignores seed values for undeclared parameters", func() {
			sk := &testSkill{
				name:     "order",
				required: []collector.Parameter{{Name: "size"}},
			}
			engine := newEngine(sk)

			err := engine.Start(ctx, textEvent("U1", "start"), "order", model.Intent{Name: "order"},
				map[string]any{"bogus": "x"})

			Expect(err).NotTo(HaveOccurred())
			sess, err := sessions.Get(ctx, "U1")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Confirmed).NotTo(HaveKey("bogus"))
		})

		It("finishes immediately when every required parameter is seeded", func() {
			sk := &testSkill{
				name:     "greet",
				required: []collector.Parameter{{Name: "who"}},
				finishFn: func(_ context.Context, sess *model.Session, bot *collector.Bot) error {
					who, err := model.ConfirmedAs[string](sess, "who")
					Expect(err).NotTo(HaveOccurred())
					return bot.Reply(ctx, model.NewTextMessage("こんにちは、"+who))
				},
			}
			engine := newEngine(sk)

			err := engine.Start(ctx, textEvent("U1", "hi"), "greet", model.Intent{Name: "greet"},
				map[string]any{"who": "Taro"})

			Expect(err).NotTo(HaveOccurred())
			Expect(sk.finishCalled).To(Equal(1))
			Expect(transport.allTexts()).To(ConsistOf("こんにちは、Taro"))

			_, err = sessions.Get(ctx, "U1")
			Expect(err).To(MatchError(session.ErrNotFound))
		})

		It("rejects an unregistered skill", func() {
			engine := newEngine()
			err := engine.Start(ctx, textEvent("U1", "hi"), "missing", model.Intent{}, nil)
			Expect(err).To(MatchError(collector.ErrUnknownSkill))
		})
	})

	Describe("Resume", func() {
		It("returns ErrNoSession when the user has no open session", func() {
			engine := newEngine()
			err := engine.Resume(ctx, textEvent("U1", "hello"))
			Expect(err).To(MatchError(collector.ErrNoSession))
		})

		It("confirms the active parameter and prompts the next", func() {
			sk := &testSkill{
				name: "order",
				required: []collector.Parameter{
					{Name: "size"},
					{Name: "count", Prompt: &model.Message{Type: model.MessageTypeText, Text: "何個？"}},
				},
			}
			engine := newEngine(sk)
			Expect(engine.Start(ctx, textEvent("U1", "start"), "order", model.Intent{}, nil)).To(Succeed())

			err := engine.Resume(ctx, textEvent("U1", "L"))

			Expect(err).NotTo(HaveOccurred())
			sess, err := sessions.Get(ctx, "U1")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Confirmed).To(HaveKeyWithValue("size", "L"))
			Expect(sess.Pending).To(Equal([]string{"count"}))
			Expect(transport.allTexts()).To(ContainElement("何個？"))
		})

		It("re-prompts without confirming when the parser rejects the input", func() {
			prompt := model.NewTextMessage("何個？")
			sk := &testSkill{
				name: "order",
				required: []collector.Parameter{{
					Name:   "count",
					Prompt: &prompt,
					Parse: func(_ context.Context, ev model.Event, _ *model.Session) (any, error) {
						if !strings.HasPrefix(ev.InputText(), "n") {
							return nil, collector.ErrParse
						}
						return ev.InputText(), nil
					},
				}},
			}
			engine := newEngine(sk)
			Expect(engine.Start(ctx, textEvent("U1", "start"), "order", model.Intent{}, nil)).To(Succeed())

			err := engine.Resume(ctx, textEvent("U1", "bad"))

			Expect(err).NotTo(HaveOccurred())
			Expect(sk.finishCalled).To(BeZero())
			sess, getErr := sessions.Get(ctx, "U1")
			Expect(getErr).NotTo(HaveOccurred())
			Expect(sess.Confirmed).NotTo(HaveKey("count"))
			Expect(sess.Pending).To(Equal([]string{"count"}))
			// Prompt sent twice: once on start, once on re-prompt.
			Expect(transport.allTexts()).To(Equal([]string{"何個？", "何個？"}))
		})

		It("treats any parser error as a parse failure", func() {
			sk := &testSkill{
				name: "order",
				required: []collector.Parameter{{
					Name: "count",
					Parse: func(_ context.Context, _ model.Event, _ *model.Session) (any, error) {
						return nil, errors.New("boom")
					},
				}},
			}
			engine := newEngine(sk)
			Expect(engine.Start(ctx, textEvent("U1", "start"), "order", model.Intent{}, nil)).To(Succeed())

			err := engine.Resume(ctx, textEvent("U1", "anything"))

			Expect(err).NotTo(HaveOccurred())
			Expect(sk.finishCalled).To(BeZero())
		})

		It("runs the reaction after confirmation and collects follow-up parameters", func() {
			sk := &testSkill{
				name:     "quiz",
				required: []collector.Parameter{{Name: "answer"}},
				optional: []collector.Parameter{{
					Name:   "detail",
					Prompt: &model.Message{Type: model.MessageTypeText, Text: "詳しく教えてください。"},
				}},
			}
			sk.required[0].React = func(_ context.Context, value any, _ *model.Session, bot *collector.Bot) error {
				if value == "yes" {
					bot.Collect("detail")
				}
				return nil
			}
			engine := newEngine(sk)
			Expect(engine.Start(ctx, textEvent("U1", "start"), "quiz", model.Intent{}, nil)).To(Succeed())

			Expect(engine.Resume(ctx, textEvent("U1", "yes"))).To(Succeed())

			Expect(sk.finishCalled).To(BeZero())
			sess, err := sessions.Get(ctx, "U1")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Pending).To(Equal([]string{"detail"}))
			Expect(transport.allTexts()).To(ContainElement("詳しく教えてください。"))
		})

		It("uses prompt overrides set by a reaction", func() {
			sk := &testSkill{
				name:     "quiz",
				required: []collector.Parameter{{Name: "answer"}},
				optional: []collector.Parameter{{
					Name:   "detail",
					Prompt: &model.Message{Type: model.MessageTypeText, Text: "static"},
				}},
			}
			sk.required[0].React = func(_ context.Context, _ any, _ *model.Session, bot *collector.Bot) error {
				bot.SetPrompt("detail", model.NewTextMessage("override"))
				bot.Collect("detail")
				return nil
			}
			engine := newEngine(sk)
			Expect(engine.Start(ctx, textEvent("U1", "start"), "quiz", model.Intent{}, nil)).To(Succeed())

			Expect(engine.Resume(ctx, textEvent("U1", "yes"))).To(Succeed())

			Expect(transport.allTexts()).To(ContainElement("override"))
			Expect(transport.allTexts()).NotTo(ContainElement("static"))
		})

		It("delivers queued messages ahead of the next prompt in one batch", func() {
			sk := &testSkill{
				name: "quiz",
				required: []collector.Parameter{
					{Name: "a"},
					{Name: "b", Prompt: &model.Message{Type: model.MessageTypeText, Text: "b?"}},
				},
			}
			sk.required[0].React = func(_ context.Context, _ any, _ *model.Session, bot *collector.Bot) error {
				bot.Queue(model.NewTextMessage("了解です。"))
				return nil
			}
			engine := newEngine(sk)
			Expect(engine.Start(ctx, textEvent("U1", "start"), "quiz", model.Intent{}, nil)).To(Succeed())

			Expect(engine.Resume(ctx, textEvent("U1", "ok"))).To(Succeed())

			last := transport.sent[len(transport.sent)-1]
			Expect(last.msgs).To(HaveLen(2))
			Expect(last.msgs[0].Text).To(Equal("了解です。"))
			Expect(last.msgs[1].Text).To(Equal("b?"))
		})

		It("surfaces reaction errors and keeps the session open", func() {
			sk := &testSkill{
				name:     "quiz",
				required: []collector.Parameter{{Name: "a"}, {Name: "b"}},
			}
			sk.required[0].React = func(_ context.Context, _ any, _ *model.Session, _ *collector.Bot) error {
				return errors.New("downstream unavailable")
			}
			engine := newEngine(sk)
			Expect(engine.Start(ctx, textEvent("U1", "start"), "quiz", model.Intent{}, nil)).To(Succeed())

			err := engine.Resume(ctx, textEvent("U1", "ok"))

			Expect(err).To(MatchError(ContainSubstring("downstream unavailable")))
			Expect(sk.finishCalled).To(BeZero())
			_, getErr := sessions.Get(ctx, "U1")
			Expect(getErr).NotTo(HaveOccurred())
		})

		It("preserves confirmation order across parameters", func() {
			sk := &testSkill{
				name:     "order",
				required: []collector.Parameter{{Name: "first"}, {Name: "second"}, {Name: "third"}},
			}
			engine := newEngine(sk)
			Expect(engine.Start(ctx, textEvent("U1", "start"), "order", model.Intent{}, nil)).To(Succeed())

			Expect(engine.Resume(ctx, textEvent("U1", "1"))).To(Succeed())
			Expect(engine.Resume(ctx, textEvent("U1", "2"))).To(Succeed())

			sess, err := sessions.Get(ctx, "U1")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.ConfirmedOrder).To(Equal([]string{"first", "second"}))
		})

		It("drops the session when its skill is no longer registered", func() {
			sk := &testSkill{name: "gone", required: []collector.Parameter{{Name: "a"}}}
			engine := newEngine(sk)
			Expect(engine.Start(ctx, textEvent("U1", "start"), "gone", model.Intent{}, nil)).To(Succeed())

			rebuilt := collector.NewEngine(sessions, transport)
			err := rebuilt.Resume(ctx, textEvent("U1", "x"))

			Expect(err).To(MatchError(collector.ErrUnknownSkill))
			_, getErr := sessions.Get(ctx, "U1")
			Expect(getErr).To(MatchError(session.ErrNotFound))
		})
	})

	Describe("finish", func() {
		completeSkill := func(finishFn func(context.Context, *model.Session, *collector.Bot) error, keepContext bool) *testSkill {
			return &testSkill{
				name:        "done",
				required:    []collector.Parameter{{Name: "only"}},
				finishFn:    finishFn,
				keepContext: keepContext,
			}
		}

		It("invokes finish exactly once and clears the session", func() {
			sk := completeSkill(nil, false)
			engine := newEngine(sk)
			Expect(engine.Start(ctx, textEvent("U1", "start"), "done", model.Intent{}, nil)).To(Succeed())

			Expect(engine.Resume(ctx, textEvent("U1", "value"))).To(Succeed())

			Expect(sk.finishCalled).To(Equal(1))
			_, err := sessions.Get(ctx, "U1")
			Expect(err).To(MatchError(session.ErrNotFound))
		})

		It("clears the session even when finish fails", func() {
			sk := completeSkill(func(context.Context, *model.Session, *collector.Bot) error {
				return errors.New("callback down")
			}, false)
			engine := newEngine(sk)
			Expect(engine.Start(ctx, textEvent("U1", "start"), "done", model.Intent{}, nil)).To(Succeed())

			err := engine.Resume(ctx, textEvent("U1", "value"))

			Expect(err).To(MatchError(ContainSubstring("callback down")))
			_, getErr := sessions.Get(ctx, "U1")
			Expect(getErr).To(MatchError(session.ErrNotFound))
		})

		It("keeps the session when the skill retains context", func() {
			sk := completeSkill(nil, true)
			engine := newEngine(sk)
			Expect(engine.Start(ctx, textEvent("U1", "start"), "done", model.Intent{}, nil)).To(Succeed())

			Expect(engine.Resume(ctx, textEvent("U1", "value"))).To(Succeed())

			sess, err := sessions.Get(ctx, "U1")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Pending).To(BeEmpty())
			Expect(sess.Confirmed).To(HaveKeyWithValue("only", "value"))
		})

		It("passes the turn's reply token to finish replies", func() {
			sk := completeSkill(func(ctx context.Context, _ *model.Session, bot *collector.Bot) error {
				return bot.Reply(ctx, model.NewTextMessage("bye"))
			}, false)
			engine := newEngine(sk)
			Expect(engine.Start(ctx, textEvent("U1", "start"), "done", model.Intent{}, nil)).To(Succeed())

			Expect(engine.Resume(ctx, textEvent("U1", "value"))).To(Succeed())

			last := transport.sent[len(transport.sent)-1]
			Expect(last.replyToken).To(Equal("token-value"))
			Expect(last.msgs[0].Text).To(Equal("bye"))
		})
	})

	Describe("HasOpenSession", func() {
		It("reports sessions opened by Start", func() {
			sk := &testSkill{name: "order", required: []collector.Parameter{{Name: "size"}}}
			engine := newEngine(sk)

			open, err := engine.HasOpenSession(ctx, "U1")
			Expect(err).NotTo(HaveOccurred())
			Expect(open).To(BeFalse())

			Expect(engine.Start(ctx, textEvent("U1", "start"), "order", model.Intent{}, nil)).To(Succeed())

			open, err = engine.HasOpenSession(ctx, "U1")
			Expect(err).NotTo(HaveOccurred())
			Expect(open).To(BeTrue())
		})
	})

	Describe("Cancel", func() {
		It("drops the open session", func() {
			sk := &testSkill{name: "order", required: []collector.Parameter{{Name: "size"}}}
			engine := newEngine(sk)
			Expect(engine.Start(ctx, textEvent("U1", "start"), "order", model.Intent{}, nil)).To(Succeed())

			Expect(engine.Cancel(ctx, "U1")).To(Succeed())

			_, err := sessions.Get(ctx, "U1")
			Expect(err).To(MatchError(session.ErrNotFound))
		})
	})
})

var _ = Describe("Bot", func() {
	It("falls back to push delivery once the reply token is spent", func() {
		transport := &mockTransport{}
		sessions := session.NewMemoryStore()
		calls := 0
		sk := &testSkill{
			name:     "multi",
			required: []collector.Parameter{{Name: "only"}},
			finishFn: func(ctx context.Context, _ *model.Session, bot *collector.Bot) error {
				calls++
				if err := bot.Reply(ctx, model.NewTextMessage(fmt.Sprintf("first %d", calls))); err != nil {
					return err
				}
				return bot.Reply(ctx, model.NewTextMessage("second"))
			},
		}
		engine := collector.NewEngine(sessions, transport, sk)
		ctx := context.Background()

		Expect(engine.Start(ctx, textEvent("U1", "go"), "multi", model.Intent{}, map[string]any{"only": "v"})).To(Succeed())

		Expect(transport.sent).To(HaveLen(2))
		Expect(transport.sent[0].replyToken).NotTo(BeEmpty())
		Expect(transport.sent[1].replyToken).To(BeEmpty())
		Expect(transport.sent[1].userID).To(Equal("U1"))
	})
})
