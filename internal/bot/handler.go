package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/eliseohh/echobot/internal/age"
	"github.com/eliseohh/echobot/internal/metrics"
	"github.com/eliseohh/echobot/internal/session"
	tele "gopkg.in/telebot.v3"
)

const (
	msgWelcome   = "👋 Welcome! Choose a mode below:"
	msgEchoOn    = "✅ Echo Mode activated."
	msgReverseOn = "✅ Reverse Mode activated."
	msgTryAgain  = "⚠️ Something went wrong. Please try again."
)

const msgHelp = `ℹ️ Pick a mode from the menu:
🗣 Echo Mode repeats your messages
🔁 Reverse Mode mirrors them
🕓 Age in Seconds asks for your birth date
💰 Currency Rates shows Monobank rates
/cancel stops the age dialogue and returns to Echo Mode`

func (b *Bot) handleStart(c tele.Context) error {
	return b.send(c, msgWelcome, mainMenu())
}

func (b *Bot) handleHelp(c tele.Context) error {
	return b.send(c, msgHelp, mainMenu())
}

func (b *Bot) handleCancel(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	id := c.Message().Chat.ID

	if err := b.store.DeleteAgeSession(ctx, id); err != nil {
		return b.fail(c, err)
	}
	return b.switchMode(ctx, c, session.ModeEcho, msgEchoOn)
}

func (b *Bot) handleRates(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	text := b.rates.Text(ctx)
	return b.send(c, text, &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: mainMenu()})
}

// handleText routes menu buttons first, then answers according to the chat's mode.
func (b *Bot) handleText(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	msg := c.Message()
	id := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch text {
	case BtnRates:
		return b.handleRates(c)
	case BtnEcho:
		return b.switchMode(ctx, c, session.ModeEcho, msgEchoOn)
	case BtnReverse:
		return b.switchMode(ctx, c, session.ModeReverse, msgReverseOn)
	case BtnAge:
		if err := b.store.SaveAgeSession(ctx, id, age.NewSession()); err != nil {
			return b.fail(c, err)
		}
		if err := b.store.SetMode(ctx, id, session.ModeAge); err != nil {
			return b.fail(c, err)
		}
		return b.send(c, age.PromptYear)
	}

	mode, err := b.store.Mode(ctx, id)
	if err != nil {
		return b.fail(c, err)
	}
	metrics.RecordUpdate(string(mode))

	switch mode {
	case session.ModeReverse:
		return b.send(c, "Reverse: "+reverse(text), mainMenu())
	case session.ModeAge:
		return b.advanceAge(ctx, c, id, text)
	default:
		return b.send(c, "Echo: "+text, mainMenu())
	}
}

func (b *Bot) advanceAge(ctx context.Context, c tele.Context, id int64, text string) error {
	sess, err := b.store.AgeSession(ctx, id)
	if err != nil {
		return b.fail(c, err)
	}

	reply := sess.Advance(text, b.now().In(b.cfg.Location))
	if reply.Done {
		err = b.store.DeleteAgeSession(ctx, id)
	} else {
		err = b.store.SaveAgeSession(ctx, id, sess)
	}
	if err != nil {
		return b.fail(c, err)
	}

	if m := markup(reply.Keyboard); m != nil {
		return b.send(c, reply.Text, m)
	}
	return b.send(c, reply.Text)
}

func (b *Bot) switchMode(ctx context.Context, c tele.Context, mode session.Mode, confirm string) error {
	if err := b.store.SetMode(ctx, c.Message().Chat.ID, mode); err != nil {
		return b.fail(c, err)
	}
	return b.send(c, confirm, mainMenu())
}

// send delivers a reply. Delivery failures are logged and counted but not
// returned, so one unreachable chat never surfaces as a handler error.
func (b *Bot) send(c tele.Context, what interface{}, opts ...interface{}) error {
	if err := c.Send(what, opts...); err != nil {
		metrics.RecordSendError()
		ev := b.logger.Warn().Err(err)
		if id, ok := chatID(c); ok {
			ev = ev.Int64("chat_id", id)
		}
		ev.Msg("send failed")
	}
	return nil
}

// fail tells the user something broke and hands the cause to OnError.
func (b *Bot) fail(c tele.Context, err error) error {
	_ = b.send(c, msgTryAgain)
	if id, ok := chatID(c); ok {
		return fmt.Errorf("chat %d: %w", id, err)
	}
	return err
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
