package bot

import (
	"sync"
	"time"

	"github.com/eliseohh/echobot/internal/metrics"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v3"
)

// chatLimiter keeps one token bucket per chat.
type chatLimiter struct {
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	chats       map[int64]*chatBucket
	idle        time.Duration
	lastCleanup time.Time
	now         func() time.Time
}

type chatBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newChatLimiter(limit rate.Limit, burst int) *chatLimiter {
	return &chatLimiter{
		limit: limit,
		burst: burst,
		chats: make(map[int64]*chatBucket),
		idle:  10 * time.Minute,
		now:   time.Now,
	}
}

func (l *chatLimiter) Allow(chatID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastCleanup) > l.idle {
		for id, b := range l.chats {
			if now.Sub(b.lastSeen) > l.idle {
				delete(l.chats, id)
			}
		}
		l.lastCleanup = now
	}

	b, ok := l.chats[chatID]
	if !ok {
		b = &chatBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.chats[chatID] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

// chatQueues runs each chat's jobs one at a time in submission order on a
// worker that lives while the chat has pending work. Different chats run in
// parallel.
type chatQueues struct {
	mu     sync.Mutex
	queues map[int64][]func()
	closed bool
	wg     sync.WaitGroup
}

func newChatQueues() *chatQueues {
	return &chatQueues{queues: make(map[int64][]func())}
}

// Submit appends job to the chat's queue. It reports false once Close has
// been called.
func (q *chatQueues) Submit(chatID int64, job func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if pending, ok := q.queues[chatID]; ok {
		q.queues[chatID] = append(pending, job)
		return true
	}
	q.queues[chatID] = []func(){job}
	q.wg.Add(1)
	go q.drain(chatID)
	return true
}

// drain owns the chat's entry in queues until it finds the queue empty.
func (q *chatQueues) drain(chatID int64) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		pending := q.queues[chatID]
		if len(pending) == 0 {
			delete(q.queues, chatID)
			q.mu.Unlock()
			return
		}
		job := pending[0]
		q.queues[chatID] = pending[1:]
		q.mu.Unlock()

		job()
	}
}

// Close rejects new jobs and waits for queued and running ones to finish.
func (q *chatQueues) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}

func chatID(c tele.Context) (int64, bool) {
	m := c.Message()
	if m == nil || m.Chat == nil {
		return 0, false
	}
	return m.Chat.ID, true
}

// throttle drops updates from chats that exceed their rate.
func (b *Bot) throttle(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		id, ok := chatID(c)
		if ok && !b.limit.Allow(id) {
			metrics.RecordThrottled()
			b.logger.Warn().Int64("chat_id", id).Msg("update dropped by flood control")
			return nil
		}
		return next(c)
	}
}

// enqueue hands the update to its chat's queue. Errors from queued handlers
// go to onError since telebot has already moved on.
func (b *Bot) enqueue(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		id, ok := chatID(c)
		if !ok {
			return next(c)
		}
		accepted := b.queues.Submit(id, func() {
			if err := next(c); err != nil {
				b.onError(err, c)
			}
		})
		if !accepted {
			b.logger.Warn().Int64("chat_id", id).Msg("update dropped during shutdown")
		}
		return nil
	}
}
