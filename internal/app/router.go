package app

import (
	"context"
	"strings"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/conversation"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// Router connects incoming transport updates to the conversation machine and
// pushes its replies back out. Updates are handled one at a time, which also
// serializes access to each session.
type Router struct {
	adapter transport.Adapter
	machine *conversation.Machine
	store   *conversation.Store
	log     logx.Logger
}

func NewRouter(adapter transport.Adapter, machine *conversation.Machine, store *conversation.Store, log logx.Logger) *Router {
	return &Router{adapter: adapter, machine: machine, store: store, log: log}
}

// Run consumes updates until the channel closes or the context is cancelled.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			switch up.Kind {
			case transport.UpdateMessage:
				if up.Message != nil {
					r.handleMessage(ctx, up.Message)
				}
			case transport.UpdateCallback:
				if up.Callback != nil {
					r.handleCallback(ctx, up.Callback)
				}
			}
		}
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *transport.Message) {
	sess := r.store.Get(msg.ChatID)

	ev := conversation.Event{
		Kind:      conversation.EventText,
		Text:      msg.Text,
		FromID:    msg.FromID,
		FirstName: msg.FromName,
		Username:  msg.FromUsername,
	}
	switch command(msg.Text) {
	case "/start":
		ev.Kind = conversation.EventStart
	case "/help":
		ev.Kind = conversation.EventHelp
	}

	reply := r.machine.Handle(ctx, sess, ev)
	if _, err := r.adapter.SendText(ctx, transport.ChatTarget{ChatID: msg.ChatID}, reply.Text, sendOptions(reply)); err != nil {
		r.log.Warn("reply send failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
	}
}

func (r *Router) handleCallback(ctx context.Context, cb *transport.Callback) {
	action, targetID, ok := conversation.ParseAction(cb.Data)
	if !ok {
		r.log.Debug("unknown callback data", logx.Int64("chat_id", cb.ChatID), logx.String("data", cb.Data))
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	// Ack first so the client stops its spinner even if rendering fails.
	if err := r.adapter.AnswerCallback(ctx, cb.ID, ""); err != nil {
		r.log.Debug("callback ack failed", logx.Int64("chat_id", cb.ChatID), logx.Err(err))
	}

	sess := r.store.Get(cb.ChatID)
	reply := r.machine.Handle(ctx, sess, conversation.Event{
		Kind:      conversation.EventAction,
		Action:    action,
		TargetID:  targetID,
		FromID:    cb.FromID,
		FirstName: cb.FromName,
		Username:  cb.FromUsername,
	})

	// Edit the menu message in place; fall back to a fresh message when the
	// edit is refused (deleted message, unchanged content).
	ref := transport.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	if err := r.adapter.EditText(ctx, ref, reply.Text, sendOptions(reply)); err != nil {
		if _, err := r.adapter.SendText(ctx, transport.ChatTarget{ChatID: cb.ChatID}, reply.Text, sendOptions(reply)); err != nil {
			r.log.Warn("reply send failed", logx.Int64("chat_id", cb.ChatID), logx.Err(err))
		}
	}
}

func command(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(text, " ")
	// strip the @botname suffix used in groups
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd)
}

func sendOptions(reply conversation.Reply) *transport.SendOptions {
	opt := &transport.SendOptions{ParseMode: tele.ModeHTML, DisablePreview: true}
	if len(reply.Keyboard) > 0 {
		kb := tgui.NewInline()
		for _, row := range reply.Keyboard {
			btns := make([]tele.Btn, 0, len(row))
			for _, b := range row {
				btns = append(btns, tgui.Btn(b.Label, b.Data))
			}
			kb.Row(btns...)
		}
		opt.ReplyMarkup = kb.Markup()
	}
	return opt
}
