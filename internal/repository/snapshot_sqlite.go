package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stemsi/exstem-runner/internal/model"
)

// SQLiteSnapshotRepository stores snapshot entries in a local SQLite file.
// It is the default driver for a single-user runner.
type SQLiteSnapshotRepository struct {
	db *sql.DB
}

// NewSQLiteSnapshotRepository creates a new SQLiteSnapshotRepository.
func NewSQLiteSnapshotRepository(db *sql.DB) *SQLiteSnapshotRepository {
	return &SQLiteSnapshotRepository{db: db}
}

func (r *SQLiteSnapshotRepository) Save(ctx context.Context, sessionID string, state model.AnnotationState) error {
	enc, err := encodeSnapshot(state)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO annotation_snapshots (session_id, entry, payload, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_id, entry)
		 DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, sessionID, EntryHighlights, string(enc.highlights), now); err != nil {
		return fmt.Errorf("upsert highlights: %w", err)
	}
	if _, err := stmt.ExecContext(ctx, sessionID, EntryStruck, string(enc.struck), now); err != nil {
		return fmt.Errorf("upsert struck: %w", err)
	}

	return tx.Commit()
}

func (r *SQLiteSnapshotRepository) Load(ctx context.Context, sessionID string) (model.AnnotationState, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT entry, payload FROM annotation_snapshots WHERE session_id = ?`, sessionID)
	if err != nil {
		return model.AnnotationState{}, fmt.Errorf("load snapshot: %w", err)
	}
	defer rows.Close()

	var highlights, struck []byte
	for rows.Next() {
		var entry, payload string
		if err := rows.Scan(&entry, &payload); err != nil {
			return model.AnnotationState{}, err
		}
		switch entry {
		case EntryHighlights:
			highlights = []byte(payload)
		case EntryStruck:
			struck = []byte(payload)
		}
	}
	if err := rows.Err(); err != nil {
		return model.AnnotationState{}, err
	}
	return decodeSnapshot(highlights, struck)
}

func (r *SQLiteSnapshotRepository) Purge(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM annotation_snapshots WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("purge snapshot: %w", err)
	}
	return nil
}
