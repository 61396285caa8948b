package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Guizzs26/go-textmend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS legacy_records (
	unit_id    INTEGER     NOT NULL,
	table_name TEXT        NOT NULL,
	pk_value   TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	repaired   TEXT[]      NOT NULL DEFAULT '{}',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (unit_id, table_name, pk_value)
);

CREATE TABLE IF NOT EXISTS sync_control (
	event_id     UUID        PRIMARY KEY,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS conversion_rejects (
	event_id    UUID        PRIMARY KEY,
	unit_id     INTEGER     NOT NULL,
	table_name  TEXT        NOT NULL,
	operation   TEXT        NOT NULL,
	pk_value    TEXT        NOT NULL,
	column_name TEXT        NOT NULL,
	byte_offset INTEGER     NOT NULL,
	byte_value  SMALLINT    NOT NULL,
	reason      TEXT        NOT NULL,
	rejected_at TIMESTAMPTZ NOT NULL
);
`

// PostgresRepository stores the repaired rows at HQ
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresRepository opens a pgx pool and pings it before returning
func NewPostgresRepository(ctx context.Context, connString string, logger *slog.Logger) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("postgres is not responding: %w", err)
	}

	logger.Info("Connected to Postgres successfully")
	return &PostgresRepository{pool: p, logger: logger}, nil
}

// EnsureSchema creates the sink tables when missing
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// IsProcessed checks if an event has already been applied
func (r *PostgresRepository) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists int
	err := r.pool.QueryRow(ctx, `SELECT 1 FROM sync_control WHERE event_id = $1`, eventID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency: %w", err)
	}
	return true, nil
}

// ApplyEvent upserts (or deletes) the row and records the event id in one transaction
func (r *PostgresRepository) ApplyEvent(ctx context.Context, ev models.FBEventPayload) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	// Rollback is a no-op after Commit
	defer tx.Rollback(ctx)

	switch ev.Operation {
	case "D":
		_, err = tx.Exec(ctx,
			`DELETE FROM legacy_records WHERE unit_id = $1 AND table_name = $2 AND pk_value = $3`,
			ev.UnitID, ev.TableName, ev.PKValue)
	default:
		repaired := ev.Repaired
		if repaired == nil {
			repaired = []string{}
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO legacy_records (unit_id, table_name, pk_value, data, repaired, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (unit_id, table_name, pk_value)
			DO UPDATE SET data = EXCLUDED.data, repaired = EXCLUDED.repaired, updated_at = EXCLUDED.updated_at`,
			ev.UnitID, ev.TableName, ev.PKValue, ev.Data, repaired, ev.Timestamp)
	}
	if err != nil {
		return fmt.Errorf("failed to apply %s on %s: %w", ev.Operation, ev.TableName, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO sync_control (event_id) VALUES ($1) ON CONFLICT DO NOTHING`, ev.EventID); err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

// SaveRejection records a row the collector refused to decode
func (r *PostgresRepository) SaveRejection(ctx context.Context, rej models.RejectPayload) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversion_rejects
			(event_id, unit_id, table_name, operation, pk_value, column_name, byte_offset, byte_value, reason, rejected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id) DO NOTHING`,
		rej.EventID, rej.UnitID, rej.TableName, rej.Operation, rej.PKValue,
		rej.Column, rej.Offset, int16(rej.Byte), rej.Reason, rej.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save rejection: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() {
	r.logger.Info("Closing Postgres connection pool")
	r.pool.Close()
}
