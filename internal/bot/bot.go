package bot

import (
	"context"
	"time"

	"github.com/eliseohh/echobot/internal/age"
	"github.com/eliseohh/echobot/internal/log"
	"github.com/eliseohh/echobot/internal/session"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v3"
)

// Store is the per-chat state the handlers need.
type Store interface {
	Mode(ctx context.Context, chatID int64) (session.Mode, error)
	SetMode(ctx context.Context, chatID int64, mode session.Mode) error
	AgeSession(ctx context.Context, chatID int64) (*age.Session, error)
	SaveAgeSession(ctx context.Context, chatID int64, sess *age.Session) error
	DeleteAgeSession(ctx context.Context, chatID int64) error
}

// Rates produces the currency message. It reports failures as text.
type Rates interface {
	Text(ctx context.Context) string
}

type Config struct {
	Token       string
	PollTimeout time.Duration
	Location    *time.Location
	ChatRate    rate.Limit
	ChatBurst   int
}

type Bot struct {
	api    *tele.Bot
	store  Store
	rates  Rates
	cfg    Config
	now    func() time.Time
	queues *chatQueues
	limit  *chatLimiter
	logger zerolog.Logger
}

const handlerTimeout = 30 * time.Second

func New(cfg Config, store Store, rates Rates) (*Bot, error) {
	b := newBot(cfg, store, rates)

	// Updates are dispatched to per-chat queues by enqueue, so telebot itself
	// must hand them over in arrival order.
	pref := tele.Settings{
		Token:       cfg.Token,
		Poller:      &tele.LongPoller{Timeout: cfg.PollTimeout},
		Synchronous: true,
		OnError:     b.onError,
	}
	api, err := tele.NewBot(pref)
	if err != nil {
		return nil, err
	}
	b.api = api
	b.register()
	return b, nil
}

func newBot(cfg Config, store Store, rates Rates) *Bot {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.ChatRate <= 0 {
		cfg.ChatRate = 1
	}
	if cfg.ChatBurst < 1 {
		cfg.ChatBurst = 5
	}
	return &Bot{
		store:  store,
		rates:  rates,
		cfg:    cfg,
		now:    time.Now,
		queues: newChatQueues(),
		limit:  newChatLimiter(cfg.ChatRate, cfg.ChatBurst),
		logger: log.WithComponent("bot"),
	}
}

// Start blocks, polling Telegram until Stop is called.
func (b *Bot) Start() {
	b.logger.Info().Str("username", b.api.Me.Username).Msg("bot started")
	b.api.Start()
}

// Stop ends polling and waits for handlers already queued to finish.
func (b *Bot) Stop() {
	b.api.Stop()
	b.queues.Close()
}

func (b *Bot) register() {
	b.api.Use(b.throttle, b.enqueue)

	b.api.Handle("/start", b.handleStart)
	b.api.Handle("/help", b.handleHelp)
	b.api.Handle("/cancel", b.handleCancel)
	b.api.Handle("/rates", b.handleRates)

	// Menu buttons arrive as plain text and are routed there.
	b.api.Handle(tele.OnText, b.handleText)
}

func (b *Bot) onError(err error, c tele.Context) {
	ev := b.logger.Error().Err(err)
	if c != nil && c.Message() != nil && c.Message().Chat != nil {
		ev = ev.Int64("chat_id", c.Message().Chat.ID)
	}
	ev.Msg("handler failed")
}
