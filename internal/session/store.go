// Package session persists per-chat bot state: the active reply mode and
// any age wizard in progress.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eliseohh/echobot/internal/age"
	"github.com/eliseohh/echobot/internal/log"
)

type Mode string

const (
	ModeEcho    Mode = "ECHO"
	ModeReverse Mode = "REVERSE"
	ModeAge     Mode = "AGE"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeEcho, ModeReverse, ModeAge:
		return true
	}
	return false
}

type Stats struct {
	Chats      int
	ByMode     map[Mode]int
	AgeWizards int
}

type Store struct {
	db  *DB
	now func() time.Time
}

func NewStore(db *DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Mode returns the chat's mode, ECHO for chats never seen before.
func (s *Store) Mode(ctx context.Context, chatID int64) (Mode, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT mode FROM chats WHERE chat_id = ?", chatID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ModeEcho, nil
	}
	if err != nil {
		return "", fmt.Errorf("load mode for chat %d: %w", chatID, err)
	}
	m := Mode(raw)
	if !m.Valid() {
		return ModeEcho, nil
	}
	return m, nil
}

func (s *Store) SetMode(ctx context.Context, chatID int64, mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("set mode for chat %d: unknown mode %q", chatID, mode)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (chat_id, mode, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET mode = excluded.mode, updated_at = excluded.updated_at`,
		chatID, string(mode), s.now().Unix())
	if err != nil {
		return fmt.Errorf("set mode for chat %d: %w", chatID, err)
	}
	return nil
}

// AgeSession loads the chat's wizard, or a fresh one waiting for the year.
func (s *Store) AgeSession(ctx context.Context, chatID int64) (*age.Session, error) {
	var (
		sess age.Session
		step string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT year, month, day, hour, minute, step FROM age_sessions WHERE chat_id = ?", chatID).
		Scan(&sess.Year, &sess.Month, &sess.Day, &sess.Hour, &sess.Minute, &step)
	if errors.Is(err, sql.ErrNoRows) {
		return age.NewSession(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load age session for chat %d: %w", chatID, err)
	}
	sess.Step = age.Step(step)
	return &sess, nil
}

func (s *Store) SaveAgeSession(ctx context.Context, chatID int64, sess *age.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO age_sessions (chat_id, year, month, day, hour, minute, step, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			year = excluded.year, month = excluded.month, day = excluded.day,
			hour = excluded.hour, minute = excluded.minute, step = excluded.step,
			updated_at = excluded.updated_at`,
		chatID, sess.Year, sess.Month, sess.Day, sess.Hour, sess.Minute, string(sess.Step), s.now().Unix())
	if err != nil {
		return fmt.Errorf("save age session for chat %d: %w", chatID, err)
	}
	return nil
}

func (s *Store) DeleteAgeSession(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM age_sessions WHERE chat_id = ?", chatID); err != nil {
		return fmt.Errorf("delete age session for chat %d: %w", chatID, err)
	}
	return nil
}

// PruneAgeSessions drops wizards untouched for longer than olderThan and
// reports how many were removed.
func (s *Store) PruneAgeSessions(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan).Unix()
	res, err := s.db.ExecContext(ctx, "DELETE FROM age_sessions WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune age sessions: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByMode: make(map[Mode]int)}

	rows, err := s.db.QueryContext(ctx, "SELECT mode, COUNT(*) FROM chats GROUP BY mode")
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			mode  string
			count int
		)
		if err := rows.Scan(&mode, &count); err != nil {
			return Stats{}, fmt.Errorf("stats: %w", err)
		}
		st.ByMode[Mode(mode)] = count
		st.Chats += count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM age_sessions").Scan(&st.AgeWizards); err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// RunJanitor prunes stale age wizards every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval, ttl time.Duration) {
	logger := log.WithComponent("janitor")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PruneAgeSessions(ctx, ttl)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error().Err(err).Msg("prune failed")
				continue
			}
			if n > 0 {
				logger.Info().Int64("removed", n).Msg("pruned stale age sessions")
			}
		}
	}
}
