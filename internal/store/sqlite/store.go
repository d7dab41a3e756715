// Package sqlite implements the SignalStore port on an embedded SQLite
// database. The open set is replaced wholesale on save; the performance log
// is append-only. WAL mode with a single writer connection keeps the
// lifecycle's single-writer discipline intact at the storage layer too.
package sqlite

import (
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"signal-servicev1/internal/model"
)

// Store persists signals in SQLite via sqlx.
type Store struct {
	db *sqlx.DB
}

// DB exposes the underlying handle for health checks and shared tables
// (the subscriber manager reuses the same database file).
func (s *Store) DB() *sqlx.DB { return s.db }

// New opens (or creates) the database at path and initializes the schema.
func New(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", path)
	return &Store{db: db}, nil
}

func createSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS signals_open (
			signal_id   TEXT PRIMARY KEY,
			symbol      TEXT    NOT NULL,
			direction   TEXT    NOT NULL,
			entry_price REAL    NOT NULL,
			confidence  REAL    NOT NULL,
			stop_loss   REAL    NOT NULL,
			take_profit REAL    NOT NULL,
			atr         REAL    NOT NULL,
			risk_reward REAL    NOT NULL,
			created_at  INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS signals_closed (
			signal_id        TEXT PRIMARY KEY,
			symbol           TEXT    NOT NULL,
			direction        TEXT    NOT NULL,
			entry_price      REAL    NOT NULL,
			confidence       REAL    NOT NULL,
			stop_loss        REAL    NOT NULL,
			take_profit      REAL    NOT NULL,
			atr              REAL    NOT NULL,
			risk_reward      REAL    NOT NULL,
			status           TEXT    NOT NULL,
			created_at       INTEGER NOT NULL,
			closed_at        INTEGER NOT NULL,
			close_price      REAL    NOT NULL,
			pnl_percent      REAL    NOT NULL,
			duration_minutes REAL    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_closed_at ON signals_closed (closed_at);
	`)
	return err
}

// openRow mirrors signals_open. Timestamps are stored as unix seconds.
type openRow struct {
	SignalID   string  `db:"signal_id"`
	Symbol     string  `db:"symbol"`
	Direction  string  `db:"direction"`
	EntryPrice float64 `db:"entry_price"`
	Confidence float64 `db:"confidence"`
	StopLoss   float64 `db:"stop_loss"`
	TakeProfit float64 `db:"take_profit"`
	ATR        float64 `db:"atr"`
	RiskReward float64 `db:"risk_reward"`
	CreatedAt  int64   `db:"created_at"`
}

type closedRow struct {
	openRow
	Status          string  `db:"status"`
	ClosedAt        int64   `db:"closed_at"`
	ClosePrice      float64 `db:"close_price"`
	PnlPercent      float64 `db:"pnl_percent"`
	DurationMinutes float64 `db:"duration_minutes"`
}

// LoadOpen returns the persisted open set keyed by signal ID.
func (s *Store) LoadOpen() (map[string]model.Signal, error) {
	var rows []openRow
	if err := s.db.Select(&rows, `SELECT * FROM signals_open`); err != nil {
		return nil, fmt.Errorf("sqlite load open: %w", err)
	}

	out := make(map[string]model.Signal, len(rows))
	for _, r := range rows {
		out[r.SignalID] = model.Signal{
			ID:         r.SignalID,
			Symbol:     r.Symbol,
			Direction:  model.Direction(r.Direction),
			EntryPrice: r.EntryPrice,
			Confidence: r.Confidence,
			StopLoss:   r.StopLoss,
			TakeProfit: r.TakeProfit,
			ATR:        r.ATR,
			RiskReward: r.RiskReward,
			Status:     model.StatusActive,
			CreatedAt:  time.Unix(r.CreatedAt, 0).UTC(),
		}
	}
	return out, nil
}

// SaveOpen replaces the persisted open set in one transaction.
func (s *Store) SaveOpen(signals map[string]model.Signal) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("sqlite save open: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM signals_open`); err != nil {
		return fmt.Errorf("sqlite save open: %w", err)
	}

	stmt, err := tx.PrepareNamed(`
		INSERT INTO signals_open
			(signal_id, symbol, direction, entry_price, confidence,
			 stop_loss, take_profit, atr, risk_reward, created_at)
		VALUES
			(:signal_id, :symbol, :direction, :entry_price, :confidence,
			 :stop_loss, :take_profit, :atr, :risk_reward, :created_at)
	`)
	if err != nil {
		return fmt.Errorf("sqlite save open: %w", err)
	}
	defer stmt.Close()

	for _, sig := range signals {
		row := openRow{
			SignalID:   sig.ID,
			Symbol:     sig.Symbol,
			Direction:  string(sig.Direction),
			EntryPrice: sig.EntryPrice,
			Confidence: sig.Confidence,
			StopLoss:   sig.StopLoss,
			TakeProfit: sig.TakeProfit,
			ATR:        sig.ATR,
			RiskReward: sig.RiskReward,
			CreatedAt:  sig.CreatedAt.Unix(),
		}
		if _, err := stmt.Exec(row); err != nil {
			return fmt.Errorf("sqlite save open %s: %w", sig.ID, err)
		}
	}

	return tx.Commit()
}

// LoadClosed returns the performance log, oldest first.
func (s *Store) LoadClosed() ([]model.Signal, error) {
	var rows []closedRow
	if err := s.db.Select(&rows, `SELECT * FROM signals_closed ORDER BY closed_at ASC`); err != nil {
		return nil, fmt.Errorf("sqlite load closed: %w", err)
	}

	out := make([]model.Signal, 0, len(rows))
	for _, r := range rows {
		closedAt := time.Unix(r.ClosedAt, 0).UTC()
		out = append(out, model.Signal{
			ID:              r.SignalID,
			Symbol:          r.Symbol,
			Direction:       model.Direction(r.Direction),
			EntryPrice:      r.EntryPrice,
			Confidence:      r.Confidence,
			StopLoss:        r.StopLoss,
			TakeProfit:      r.TakeProfit,
			ATR:             r.ATR,
			RiskReward:      r.RiskReward,
			Status:          model.Status(r.Status),
			CreatedAt:       time.Unix(r.CreatedAt, 0).UTC(),
			ClosedAt:        &closedAt,
			ClosePrice:      r.ClosePrice,
			PnlPercent:      r.PnlPercent,
			DurationMinutes: r.DurationMinutes,
		})
	}
	return out, nil
}

// AppendClosed appends one closed signal to the performance log.
func (s *Store) AppendClosed(sig model.Signal) error {
	if sig.ClosedAt == nil || !sig.Status.Terminal() {
		return fmt.Errorf("sqlite append closed: signal %s is not closed", sig.ID)
	}

	row := closedRow{
		openRow: openRow{
			SignalID:   sig.ID,
			Symbol:     sig.Symbol,
			Direction:  string(sig.Direction),
			EntryPrice: sig.EntryPrice,
			Confidence: sig.Confidence,
			StopLoss:   sig.StopLoss,
			TakeProfit: sig.TakeProfit,
			ATR:        sig.ATR,
			RiskReward: sig.RiskReward,
			CreatedAt:  sig.CreatedAt.Unix(),
		},
		Status:          string(sig.Status),
		ClosedAt:        sig.ClosedAt.Unix(),
		ClosePrice:      sig.ClosePrice,
		PnlPercent:      sig.PnlPercent,
		DurationMinutes: sig.DurationMinutes,
	}

	// INSERT OR REPLACE keeps a crash-retry of the same closure idempotent.
	_, err := s.db.NamedExec(`
		INSERT OR REPLACE INTO signals_closed
			(signal_id, symbol, direction, entry_price, confidence,
			 stop_loss, take_profit, atr, risk_reward, status,
			 created_at, closed_at, close_price, pnl_percent, duration_minutes)
		VALUES
			(:signal_id, :symbol, :direction, :entry_price, :confidence,
			 :stop_loss, :take_profit, :atr, :risk_reward, :status,
			 :created_at, :closed_at, :close_price, :pnl_percent, :duration_minutes)
	`, row)
	if err != nil {
		return fmt.Errorf("sqlite append closed %s: %w", sig.ID, err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ model.SignalStore = (*Store)(nil)
