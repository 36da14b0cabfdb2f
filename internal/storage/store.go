// Package storage is the write-behind persistence sink: accepted
// market snapshots, order transitions, and strategy signals are logged
// as append-style records, and historical price series can be read
// back for scanner seeding and backtesting.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"github.com/aretelew/pm-bot/internal/domain"
)

// Store wraps a SQLite database with WAL mode enabled.
type Store struct {
	db *sql.DB
}

// PricePoint is one historical price observation.
type PricePoint struct {
	Ticker  string
	Price   int
	Volume  int
	Source  string
	TsUnixM int64
}

// NewStore opens (creating if needed) the SQLite store at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS markets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			event_ticker TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			yes_bid INTEGER NOT NULL,
			yes_ask INTEGER NOT NULL,
			last_price INTEGER NOT NULL,
			volume INTEGER NOT NULL,
			open_interest INTEGER NOT NULL,
			source TEXT NOT NULL,
			ts INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_markets_ticker_ts ON markets(ticker, ts);`,
		`CREATE TABLE IF NOT EXISTS orderbooks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL,
			yes_levels TEXT NOT NULL,
			no_levels TEXT NOT NULL,
			ts INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS prices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker TEXT NOT NULL,
			price INTEGER NOT NULL,
			volume INTEGER NOT NULL DEFAULT 0,
			source TEXT NOT NULL DEFAULT '',
			ts INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_prices_ticker_ts ON prices(ticker, ts);`,
		`CREATE TABLE IF NOT EXISTS orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_id TEXT NOT NULL,
			exchange_id TEXT NOT NULL DEFAULT '',
			ticker TEXT NOT NULL,
			action TEXT NOT NULL,
			side TEXT NOT NULL,
			price INTEGER NOT NULL,
			quantity INTEGER NOT NULL,
			state TEXT NOT NULL,
			strategy TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			ts INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS signals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			strategy TEXT NOT NULL,
			ticker TEXT NOT NULL,
			action TEXT NOT NULL,
			side TEXT NOT NULL,
			price INTEGER NOT NULL,
			quantity INTEGER NOT NULL,
			confidence REAL NOT NULL,
			reason TEXT NOT NULL,
			executed INTEGER NOT NULL,
			ts INTEGER NOT NULL
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// SaveMarket appends one accepted market snapshot.
func (s *Store) SaveMarket(ctx context.Context, m domain.Market) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO markets (ticker, title, event_ticker, status, yes_bid, yes_ask, last_price, volume, open_interest, source, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Ticker, m.Title, m.EventTicker, m.Status, m.YesBid, m.YesAsk,
		m.LastPrice, m.Volume, m.OpenInterest, string(m.Source), m.UpdatedUnixM)
	if err != nil {
		return fmt.Errorf("failed to save market: %w", err)
	}
	return nil
}

// SaveOrderbook appends one orderbook snapshot, levels as JSON.
func (s *Store) SaveOrderbook(ctx context.Context, ticker string, book domain.OrderBook, ts int64) error {
	yes, err := json.Marshal(book.Yes)
	if err != nil {
		return err
	}
	no, err := json.Marshal(book.No)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orderbooks (ticker, yes_levels, no_levels, ts) VALUES (?, ?, ?, ?)`,
		ticker, string(yes), string(no), ts)
	if err != nil {
		return fmt.Errorf("failed to save orderbook: %w", err)
	}
	return nil
}

// SavePrice appends one price observation.
func (s *Store) SavePrice(ctx context.Context, p PricePoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prices (ticker, price, volume, source, ts) VALUES (?, ?, ?, ?, ?)`,
		p.Ticker, p.Price, p.Volume, p.Source, p.TsUnixM)
	if err != nil {
		return fmt.Errorf("failed to save price: %w", err)
	}
	return nil
}

// LogOrder appends one order state transition.
func (s *Store) LogOrder(ctx context.Context, o *domain.Order) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (client_id, exchange_id, ticker, action, side, price, quantity, state, strategy, reason, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ClientID, o.ExchangeID, o.Intent.Ticker, string(o.Intent.Action), string(o.Intent.Side),
		o.Intent.Price, o.RequestedQty, string(o.State), o.Intent.Strategy, o.Intent.Reason, o.UpdatedUnixM)
	if err != nil {
		return fmt.Errorf("failed to log order: %w", err)
	}
	return nil
}

// LogSignal appends one strategy signal with its risk outcome.
func (s *Store) LogSignal(ctx context.Context, in domain.Intent, executed bool) error {
	exec := 0
	if executed {
		exec = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO signals (strategy, ticker, action, side, price, quantity, confidence, reason, executed, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Strategy, in.Ticker, string(in.Action), string(in.Side),
		in.Price, in.Quantity, in.Confidence, in.Reason, exec, in.CreatedUnixM)
	if err != nil {
		return fmt.Errorf("failed to log signal: %w", err)
	}
	return nil
}

// PriceSeries reads back the most recent price observations for a
// ticker, oldest first.
func (s *Store) PriceSeries(ctx context.Context, ticker string, limit int) ([]PricePoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ticker, price, volume, source, ts FROM
		 (SELECT ticker, price, volume, source, ts FROM prices WHERE ticker = ? ORDER BY ts DESC LIMIT ?)
		 ORDER BY ts ASC`,
		ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var out []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.Ticker, &p.Price, &p.Volume, &p.Source, &p.TsUnixM); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarketHistory reads back stored market snapshots for a ticker in
// time order, for replay.
func (s *Store) MarketHistory(ctx context.Context, ticker string) ([]domain.Market, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ticker, title, event_ticker, status, yes_bid, yes_ask, last_price, volume, open_interest, source, ts
		 FROM markets WHERE ticker = ? OR ? = '' ORDER BY ts ASC`,
		ticker, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to query markets: %w", err)
	}
	defer rows.Close()

	var out []domain.Market
	for rows.Next() {
		var m domain.Market
		var source string
		if err := rows.Scan(&m.Ticker, &m.Title, &m.EventTicker, &m.Status, &m.YesBid, &m.YesAsk,
			&m.LastPrice, &m.Volume, &m.OpenInterest, &source, &m.UpdatedUnixM); err != nil {
			return nil, fmt.Errorf("failed to scan market: %w", err)
		}
		m.Source = domain.DataSource(source)
		out = append(out, m)
	}
	return out, rows.Err()
}

// OrderbookAt returns the latest stored orderbook for ticker at or
// before ts, or ErrNotFound.
func (s *Store) OrderbookAt(ctx context.Context, ticker string, ts int64) (domain.OrderBook, error) {
	var yes, no string
	err := s.db.QueryRowContext(ctx,
		`SELECT yes_levels, no_levels FROM orderbooks WHERE ticker = ? AND ts <= ? ORDER BY ts DESC LIMIT 1`,
		ticker, ts).Scan(&yes, &no)
	if err == sql.ErrNoRows {
		return domain.OrderBook{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("failed to query orderbook: %w", err)
	}

	var book domain.OrderBook
	if err := json.Unmarshal([]byte(yes), &book.Yes); err != nil {
		return domain.OrderBook{}, fmt.Errorf("failed to decode yes levels: %w", err)
	}
	if err := json.Unmarshal([]byte(no), &book.No); err != nil {
		return domain.OrderBook{}, fmt.Errorf("failed to decode no levels: %w", err)
	}
	return book, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
