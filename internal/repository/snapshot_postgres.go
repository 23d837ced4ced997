package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-runner/internal/model"
)

// PostgresSnapshotRepository stores snapshot entries in annotation_snapshots.
type PostgresSnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSnapshotRepository creates a new PostgresSnapshotRepository.
func NewPostgresSnapshotRepository(pool *pgxpool.Pool) *PostgresSnapshotRepository {
	return &PostgresSnapshotRepository{pool: pool}
}

// Save upserts both entries in a single transaction.
func (r *PostgresSnapshotRepository) Save(ctx context.Context, sessionID string, state model.AnnotationState) error {
	enc, err := encodeSnapshot(state)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range []struct {
		entry   string
		payload []byte
	}{
		{EntryHighlights, enc.highlights},
		{EntryStruck, enc.struck},
	} {
		batch.Queue(
			`INSERT INTO annotation_snapshots (session_id, entry, payload, updated_at)
			 VALUES ($1, $2, $3, NOW())
			 ON CONFLICT (session_id, entry)
			 DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`,
			sessionID, e.entry, string(e.payload),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *PostgresSnapshotRepository) Load(ctx context.Context, sessionID string) (model.AnnotationState, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT entry, payload::text
		 FROM annotation_snapshots
		 WHERE session_id = $1`, sessionID,
	)
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

func (r *PostgresSnapshotRepository) Purge(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM annotation_snapshots WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("purge snapshot: %w", err)
	}
	return nil
}
