// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jamcast/jamd/internal/domain/session/model"
	"github.com/jamcast/jamd/internal/persistence/sqlite"
)

const schemaVersion = 1

// SqliteStore implements Store using SQLite.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (or creates) the database at dbPath and migrates it.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session store: migration failed: %w", err)
	}

	return s, nil
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

func (s *SqliteStore) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		owner TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		current_track_ref TEXT NOT NULL DEFAULT '',
		position_ms INTEGER NOT NULL DEFAULT 0,
		playing_since_ms INTEGER,
		next_seq INTEGER NOT NULL DEFAULT 1,
		created_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL,
		last_idle_at_ms INTEGER
	);

	CREATE TABLE IF NOT EXISTS queue_entries (
		entry_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		track_ref TEXT NOT NULL,
		contributor TEXT NOT NULL,
		seq INTEGER NOT NULL,
		enqueued_at_ms INTEGER NOT NULL,
		UNIQUE(session_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_queue_session_seq ON queue_entries(session_id, seq);

	CREATE TABLE IF NOT EXISTS participants (
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		participant_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		joined_at_ms INTEGER NOT NULL,
		PRIMARY KEY (session_id, participant_id)
	);

	CREATE TABLE IF NOT EXISTS idempotency (
		key TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL,
		seq INTEGER NOT NULL DEFAULT 0,
		expires_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_idempotency_expires ON idempotency(expires_at_ms);
	`

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Session CRUD ---

func (s *SqliteStore) CreateSession(ctx context.Context, rec *model.SessionRecord) error {
	query := `
	INSERT INTO sessions (
		session_id, name, description, owner, state, current_track_ref,
		position_ms, playing_since_ms, next_seq, created_at_ms, updated_at_ms, last_idle_at_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.DB.ExecContext(ctx, query,
		rec.ID, rec.Name, rec.Description, rec.Owner, rec.State, rec.CurrentTrackRef,
		rec.PositionMS, timeToNullMS(rec.PlayingSince), rec.NextSeq,
		rec.CreatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli(), timeToNullMS(rec.LastIdleAt),
	)
	return err
}

func (s *SqliteStore) GetSession(ctx context.Context, id string) (*model.SessionRecord, error) {
	row := s.DB.QueryRowContext(ctx, sessionSelect+" WHERE session_id = ?", id)
	return scanSession(row)
}

func (s *SqliteStore) UpdateSession(ctx context.Context, rec *model.SessionRecord) error {
	rec.UpdatedAt = time.Now()
	// next_seq is owned by Enqueue and intentionally not written here, so a
	// record loaded before an enqueue cannot rewind the counter.
	query := `
	UPDATE sessions SET
		name = ?, description = ?, owner = ?, state = ?, current_track_ref = ?,
		position_ms = ?, playing_since_ms = ?, updated_at_ms = ?, last_idle_at_ms = ?
	WHERE session_id = ?
	`
	res, err := s.DB.ExecContext(ctx, query,
		rec.Name, rec.Description, rec.Owner, rec.State, rec.CurrentTrackRef,
		rec.PositionMS, timeToNullMS(rec.PlayingSince),
		rec.UpdatedAt.UnixMilli(), timeToNullMS(rec.LastIdleAt),
		rec.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}

func (s *SqliteStore) ListSessions(ctx context.Context) ([]*model.SessionRecord, error) {
	rows, err := s.DB.QueryContext(ctx, sessionSelect+" ORDER BY created_at_ms")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []*model.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func (s *SqliteStore) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Cascades are declared, but delete children explicitly so the store does
	// not depend on the foreign_keys pragma being live on this connection.
	if _, err := tx.ExecContext(ctx, "DELETE FROM queue_entries WHERE session_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM participants WHERE session_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Queue ---

func (s *SqliteStore) Enqueue(ctx context.Context, e *model.QueueEntry) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var next int64
	err = tx.QueryRowContext(ctx, "SELECT next_seq FROM sessions WHERE session_id = ?", e.SessionID).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrSessionNotFound
	}
	if err != nil {
		return err
	}

	e.Seq = next
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO queue_entries (entry_id, session_id, track_ref, contributor, seq, enqueued_at_ms) VALUES (?, ?, ?, ?, ?, ?)",
		e.ID, e.SessionID, e.TrackRef, e.Contributor, e.Seq, e.EnqueuedAt.UnixMilli(),
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE sessions SET next_seq = ? WHERE session_id = ?", next+1, e.SessionID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) PeekNext(ctx context.Context, sessionID string) (*model.QueueEntry, error) {
	row := s.DB.QueryRowContext(ctx,
		"SELECT entry_id, session_id, track_ref, contributor, seq, enqueued_at_ms FROM queue_entries WHERE session_id = ? ORDER BY seq LIMIT 1",
		sessionID)
	return scanEntry(row)
}

func (s *SqliteStore) Dequeue(ctx context.Context, sessionID string) (*model.QueueEntry, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	e, err := scanEntry(tx.QueryRowContext(ctx,
		"SELECT entry_id, session_id, track_ref, contributor, seq, enqueued_at_ms FROM queue_entries WHERE session_id = ? ORDER BY seq LIMIT 1",
		sessionID))
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM queue_entries WHERE entry_id = ?", e.ID); err != nil {
		return nil, err
	}
	return e, tx.Commit()
}

func (s *SqliteStore) RemoveEntry(ctx context.Context, sessionID, entryID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		"DELETE FROM queue_entries WHERE session_id = ? AND entry_id = ?", sessionID, entryID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SqliteStore) ListQueue(ctx context.Context, sessionID string) ([]*model.QueueEntry, error) {
	rows, err := s.DB.QueryContext(ctx,
		"SELECT entry_id, session_id, track_ref, contributor, seq, enqueued_at_ms FROM queue_entries WHERE session_id = ? ORDER BY seq",
		sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []*model.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Participants ---

func (s *SqliteStore) AddParticipant(ctx context.Context, p *model.Participant) error {
	_, err := s.DB.ExecContext(ctx,
		"INSERT OR REPLACE INTO participants (session_id, participant_id, display_name, joined_at_ms) VALUES (?, ?, ?, ?)",
		p.SessionID, p.ID, p.DisplayName, p.JoinedAt.UnixMilli())
	return err
}

func (s *SqliteStore) RemoveParticipant(ctx context.Context, sessionID, participantID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		"DELETE FROM participants WHERE session_id = ? AND participant_id = ?", sessionID, participantID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SqliteStore) ListParticipants(ctx context.Context, sessionID string) ([]*model.Participant, error) {
	rows, err := s.DB.QueryContext(ctx,
		"SELECT session_id, participant_id, display_name, joined_at_ms FROM participants WHERE session_id = ? ORDER BY joined_at_ms",
		sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var parts []*model.Participant
	for rows.Next() {
		var p model.Participant
		var joined int64
		if err := rows.Scan(&p.SessionID, &p.ID, &p.DisplayName, &joined); err != nil {
			return nil, err
		}
		p.JoinedAt = time.UnixMilli(joined)
		parts = append(parts, &p)
	}
	return parts, rows.Err()
}

// --- Idempotency ---

func (s *SqliteStore) GetIdempotency(ctx context.Context, key string) (*IdemRecord, error) {
	var rec IdemRecord
	var expiresAt int64
	err := s.DB.QueryRowContext(ctx,
		"SELECT entry_id, seq, expires_at_ms FROM idempotency WHERE key = ?", key).Scan(&rec.EntryID, &rec.Seq, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if expiresAt < time.Now().UnixMilli() {
		return nil, nil
	}
	return &rec, nil
}

func (s *SqliteStore) PutIdempotency(ctx context.Context, key string, rec IdemRecord, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl).UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		"INSERT OR REPLACE INTO idempotency (key, entry_id, seq, expires_at_ms) VALUES (?, ?, ?, ?)",
		key, rec.EntryID, rec.Seq, expiresAt)
	return err
}

// --- Helpers ---

const sessionSelect = `SELECT session_id, name, description, owner, state, current_track_ref,
	position_ms, playing_since_ms, next_seq, created_at_ms, updated_at_ms, last_idle_at_ms
	FROM sessions`

func scanSession(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.SessionRecord, error) {
	var rec model.SessionRecord
	var state string
	var playingSince, lastIdle sql.NullInt64
	var createdAt, updatedAt int64

	err := scanner.Scan(
		&rec.ID, &rec.Name, &rec.Description, &rec.Owner, &state, &rec.CurrentTrackRef,
		&rec.PositionMS, &playingSince, &rec.NextSeq, &createdAt, &updatedAt, &lastIdle,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rec.State = model.PlaybackState(state)
	rec.PlayingSince = nullMSToTime(playingSince)
	rec.LastIdleAt = nullMSToTime(lastIdle)
	rec.CreatedAt = time.UnixMilli(createdAt)
	rec.UpdatedAt = time.UnixMilli(updatedAt)
	return &rec, nil
}

func scanEntry(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.QueueEntry, error) {
	var e model.QueueEntry
	var enqueued int64
	err := scanner.Scan(&e.ID, &e.SessionID, &e.TrackRef, &e.Contributor, &e.Seq, &enqueued)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	e.EnqueuedAt = time.UnixMilli(enqueued)
	return &e, nil
}

func timeToNullMS(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func nullMSToTime(ms sql.NullInt64) time.Time {
	if !ms.Valid {
		return time.Time{}
	}
	return time.UnixMilli(ms.Int64)
}

var _ Store = (*SqliteStore)(nil)
