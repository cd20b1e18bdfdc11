package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/browser-bridge/bridge/internal/model"
)

const journalColumns = `id, connection_id, connected_at, disconnected_at, message_count, last_message_type, close_reason`

// JournalRepository provides data access for connection sessions.
type JournalRepository struct {
	db *sql.DB
}

// NewJournalRepository creates a new JournalRepository.
func NewJournalRepository(db *sql.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

// Open records a new connection session and returns its row id.
func (r *JournalRepository) Open(ctx context.Context, connectionID string, connectedAt time.Time) (int64, error) {
	query := `
		INSERT INTO connection_sessions (connection_id, connected_at)
		VALUES (?, ?)
	`

	result, err := r.db.ExecContext(ctx, query, connectionID, connectedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to open journal entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get journal entry id: %w", err)
	}
	return id, nil
}

// Close marks a session as ended.
func (r *JournalRepository) Close(ctx context.Context, id int64, disconnectedAt time.Time, messageCount int, lastMessageType, reason string) error {
	query := `
		UPDATE connection_sessions
		SET disconnected_at = ?, message_count = ?, last_message_type = ?, close_reason = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		disconnectedAt.UTC(),
		messageCount,
		nullString(lastMessageType),
		nullString(reason),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to close journal entry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrJournalEntryNotFound
	}

	return nil
}

// GetByID retrieves one session.
func (r *JournalRepository) GetByID(ctx context.Context, id int64) (*model.JournalEntry, error) {
	query := `SELECT ` + journalColumns + ` FROM connection_sessions WHERE id = ?`

	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, model.ErrJournalEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get journal entry: %w", err)
	}
	return entry, nil
}

// Recent lists the newest sessions, newest first. A non-empty
// connectionID restricts the result to that identity.
func (r *JournalRepository) Recent(ctx context.Context, connectionID string, limit int) ([]*model.JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + journalColumns + ` FROM connection_sessions`
	args := []any{}
	if connectionID != "" {
		query += ` WHERE connection_id = ?`
		args = append(args, connectionID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	defer rows.Close()

	entries := []*model.JournalEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal entries: %w", err)
	}

	return entries, nil
}

// CountOpen returns the number of sessions without a disconnect time.
func (r *JournalRepository) CountOpen(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM connection_sessions WHERE disconnected_at IS NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open journal entries: %w", err)
	}
	return count, nil
}

// CloseDangling marks sessions left open by a previous process as ended.
func (r *JournalRepository) CloseDangling(ctx context.Context, at time.Time) (int64, error) {
	query := `
		UPDATE connection_sessions
		SET disconnected_at = ?, close_reason = 'restart'
		WHERE disconnected_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to close dangling journal entries: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*model.JournalEntry, error) {
	entry := &model.JournalEntry{}
	var disconnectedAt sql.NullTime
	var lastType sql.NullString
	var reason sql.NullString

	err := row.Scan(
		&entry.ID,
		&entry.ConnectionID,
		&entry.ConnectedAt,
		&disconnectedAt,
		&entry.MessageCount,
		&lastType,
		&reason,
	)
	if err != nil {
		return nil, err
	}

	if disconnectedAt.Valid {
		t := disconnectedAt.Time
		entry.DisconnectedAt = &t
	}
	if lastType.Valid {
		entry.LastMessageType = lastType.String
	}
	if reason.Valid {
		entry.CloseReason = reason.String
	}

	return entry, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
