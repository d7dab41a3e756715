// Package subscriber maintains the delivery audience: who receives signals,
// and the fan-out that sends them. The registry lives in SQLite regardless of
// the signal-store backend.
package subscriber

import (
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS subscribers (
	chat_id          INTEGER PRIMARY KEY,
	username         TEXT NOT NULL DEFAULT '',
	joined_at        INTEGER NOT NULL,
	active           INTEGER NOT NULL DEFAULT 1,
	signals_received INTEGER NOT NULL DEFAULT 0
);`

// Subscriber is one registered chat.
type Subscriber struct {
	ChatID          int64
	Username        string
	JoinedAt        time.Time
	Active          bool
	SignalsReceived int64
}

type subscriberRow struct {
	ChatID          int64  `db:"chat_id"`
	Username        string `db:"username"`
	JoinedAt        int64  `db:"joined_at"`
	Active          int    `db:"active"`
	SignalsReceived int64  `db:"signals_received"`
}

// Manager owns the subscriber registry.
type Manager struct {
	db *sqlx.DB
}

// NewManager ensures the subscribers table exists.
func NewManager(db *sqlx.DB) (*Manager, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("subscriber: create schema: %w", err)
	}
	return &Manager{db: db}, nil
}

// Subscribe registers a chat (or re-activates it). Returns true when the
// chat was not active before.
func (m *Manager) Subscribe(chatID int64, username string) (bool, error) {
	var row subscriberRow
	err := m.db.Get(&row, `SELECT chat_id, username, joined_at, active, signals_received
		FROM subscribers WHERE chat_id = ?`, chatID)
	if err == nil {
		if row.Active == 1 {
			return false, nil
		}
		_, err = m.db.Exec(`UPDATE subscribers SET active = 1, username = ? WHERE chat_id = ?`,
			username, chatID)
		if err != nil {
			return false, fmt.Errorf("subscriber: reactivate %d: %w", chatID, err)
		}
		log.Printf("[subscriber] reactivated chat %d", chatID)
		return true, nil
	}

	_, err = m.db.Exec(`INSERT INTO subscribers (chat_id, username, joined_at, active, signals_received)
		VALUES (?, ?, ?, 1, 0)`, chatID, username, time.Now().Unix())
	if err != nil {
		return false, fmt.Errorf("subscriber: insert %d: %w", chatID, err)
	}
	log.Printf("[subscriber] new subscriber chat %d (%s)", chatID, username)
	return true, nil
}

// Unsubscribe deactivates a chat. Returns true when it was active.
func (m *Manager) Unsubscribe(chatID int64) (bool, error) {
	res, err := m.db.Exec(`UPDATE subscribers SET active = 0 WHERE chat_id = ? AND active = 1`, chatID)
	if err != nil {
		return false, fmt.Errorf("subscriber: unsubscribe %d: %w", chatID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Active returns all active subscribers.
func (m *Manager) Active() ([]Subscriber, error) {
	var rows []subscriberRow
	err := m.db.Select(&rows, `SELECT chat_id, username, joined_at, active, signals_received
		FROM subscribers WHERE active = 1 ORDER BY joined_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("subscriber: load active: %w", err)
	}

	subs := make([]Subscriber, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, Subscriber{
			ChatID:          r.ChatID,
			Username:        r.Username,
			JoinedAt:        time.Unix(r.JoinedAt, 0).UTC(),
			Active:          r.Active == 1,
			SignalsReceived: r.SignalsReceived,
		})
	}
	return subs, nil
}

// Count returns the number of active subscribers.
func (m *Manager) Count() (int, error) {
	var n int
	if err := m.db.Get(&n, `SELECT COUNT(*) FROM subscribers WHERE active = 1`); err != nil {
		return 0, fmt.Errorf("subscriber: count: %w", err)
	}
	return n, nil
}

// IncrementDelivered bumps the per-subscriber delivery counter.
func (m *Manager) IncrementDelivered(chatID int64) error {
	_, err := m.db.Exec(`UPDATE subscribers SET signals_received = signals_received + 1
		WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("subscriber: increment %d: %w", chatID, err)
	}
	return nil
}
