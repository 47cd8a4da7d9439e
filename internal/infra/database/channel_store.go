package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"youtrack_notification_bot/internal/domain/channel"
)

// Dialect selects the placeholder syntax of the underlying driver.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

const createSettingsTable = `CREATE TABLE IF NOT EXISTS channel_settings (
	position      INTEGER NOT NULL,
	setting_key   TEXT PRIMARY KEY,
	setting_value TEXT NOT NULL
)`

// SQLChannelStore keeps the flat channel key-value form in a single table.
// Row order is preserved through the position column.
type SQLChannelStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLChannelStore wraps db and makes sure the settings table exists.
func NewSQLChannelStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLChannelStore, error) {
	if _, err := db.ExecContext(ctx, createSettingsTable); err != nil {
		return nil, fmt.Errorf("error creating channel_settings table: %w", err)
	}
	return &SQLChannelStore{db: db, dialect: dialect}, nil
}

func (s *SQLChannelStore) Load(ctx context.Context) ([]*channel.Channel, error) {
	query := `SELECT setting_key, setting_value FROM channel_settings ORDER BY position`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error loading channel settings: %w", err)
	}
	defer rows.Close()

	var entries []channel.Entry
	for rows.Next() {
		var e channel.Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, fmt.Errorf("error scanning channel setting row: %w", err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channel setting rows: %w", err)
	}

	channels, err := channel.Unflatten(entries)
	if err != nil {
		return nil, fmt.Errorf("error decoding channel settings: %w", err)
	}
	return channels, nil
}

// Save replaces the stored settings with channels in one transaction.
func (s *SQLChannelStore) Save(ctx context.Context, channels []*channel.Channel) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	if _, err = tx.ExecContext(ctx, `DELETE FROM channel_settings`); err != nil {
		return fmt.Errorf("error clearing channel settings: %w", err)
	}

	insert := s.rebind(`INSERT INTO channel_settings (position, setting_key, setting_value) VALUES ($1, $2, $3)`)
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("error preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range channel.Flatten(channels) {
		if _, err = stmt.ExecContext(ctx, i, e.Key, e.Value); err != nil {
			return fmt.Errorf("error saving setting %q: %w", e.Key, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("error committing channel settings: %w", err)
	}
	return nil
}

func (s *SQLChannelStore) Close() error {
	return s.db.Close()
}

// rebind turns $N placeholders into ?N for SQLite.
func (s *SQLChannelStore) rebind(query string) string {
	if s.dialect != DialectSQLite {
		return query
	}
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
