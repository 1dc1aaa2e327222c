package persist

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// JournalEntry is one runtime event as recorded in entity_journal.
type JournalEntry struct {
	Runner      uuid.UUID
	World       uuid.UUID
	Tick        int64
	Kind        string // runtime event name, e.g. "init_component"
	Entity      int32
	Component   *int32 // nil for entity events
	Placeholder *int32 // set for entity creation only
	Payload     []byte
	Fields      map[string]float64 // decoded payload, nil when unknown
}

type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

const insertJournal = `INSERT INTO entity_journal
	(runner_id, world_id, tick, kind, entity, component, placeholder, payload, fields)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// WriteBatch writes entries in a single transaction.
func (r *JournalRepo) WriteBatch(ctx context.Context, entries []JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range entries {
		var fields any
		if e.Fields != nil {
			fields = e.Fields
		}
		batch.Queue(insertJournal,
			pgUUID(e.Runner), pgUUID(e.World), e.Tick, e.Kind, e.Entity,
			e.Component, e.Placeholder, e.Payload, fields,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("journal commit: %w", err)
	}
	return nil
}

// CountForRunner returns how many entries a runner has written.
func (r *JournalRepo) CountForRunner(ctx context.Context, runner uuid.UUID) (int64, error) {
	var n int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM entity_journal WHERE runner_id = $1`, pgUUID(runner),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("journal count: %w", err)
	}
	return n, nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
