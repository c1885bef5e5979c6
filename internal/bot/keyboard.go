package bot

import (
	"github.com/eliseohh/echobot/internal/age"
	tele "gopkg.in/telebot.v3"
)

const (
	BtnEcho    = "🗣 Echo Mode"
	BtnReverse = "🔁 Reverse Mode"
	BtnAge     = "🕓 Age in Seconds"
	BtnRates   = "💰 Currency Rates"
)

func mainMenu() *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{ResizeKeyboard: true}
	m.Reply(
		m.Row(m.Text(BtnEcho), m.Text(BtnReverse)),
		m.Row(m.Text(BtnAge), m.Text(BtnRates)),
	)
	return m
}

func monthMenu() *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{ResizeKeyboard: true}
	btns := make([]tele.Btn, 0, len(age.Months))
	for _, name := range age.Months {
		btns = append(btns, m.Text(name))
	}
	m.Reply(m.Split(4, btns)...)
	return m
}

func timeChoiceMenu() *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{ResizeKeyboard: true}
	m.Reply(m.Row(m.Text(age.ChoiceYes), m.Text(age.ChoiceSkip)))
	return m
}

// markup maps a wizard keyboard to its Telegram markup; nil keeps whatever
// keyboard the client is already showing.
func markup(kb age.Keyboard) *tele.ReplyMarkup {
	switch kb {
	case age.KeyboardMenu:
		return mainMenu()
	case age.KeyboardMonths:
		return monthMenu()
	case age.KeyboardTimeChoice:
		return timeChoiceMenu()
	}
	return nil
}
