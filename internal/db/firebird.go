package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/Guizzs26/go-textmend/internal/models"
	_ "github.com/nakagami/firebirdsql"
)

var identifierPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_$]{0,62}$`)

// FirebirdRepository reads the legacy database at the branch level.
// Text columns are declared CHARACTER SET NONE there, so values come back as raw bytes.
type FirebirdRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewFirebirdRepository initializes a connection pool for Firebird 2.5
func NewFirebirdRepository(connString string, logger *slog.Logger) (*FirebirdRepository, error) {
	db, err := sql.Open("firebirdsql", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open firebird connection: %w", err)
	}

	// Connection pool settings optimized for legacy systems
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("firebird ping failed: %w", err)
	}

	logger.Info("Connected to Firebird successfully", "dialect", 3)

	return &FirebirdRepository{
		db:     db,
		logger: logger,
	}, nil
}

// FetchOutboxPending returns the oldest outbox rows, in trigger order
func (r *FirebirdRepository) FetchOutboxPending(ctx context.Context, limit int) ([]models.FBOutboxRecord, error) {
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := fmt.Sprintf(`SELECT FIRST %d ID, TABLE_NAME, OP_TYPE, PK_VALUE, CREATED_AT
		FROM FB_SYNC_OUTBOX ORDER BY ID`, limit)

	rows, err := r.db.QueryContext(opCtx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var records []models.FBOutboxRecord
	for rows.Next() {
		var rec models.FBOutboxRecord
		if err := rows.Scan(&rec.ID, &rec.TableName, &rec.OpType, &rec.PKValue, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("outbox scan failed: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// FetchFullRecord loads a snapshot of one row as column -> value.
// It returns sql.ErrNoRows (wrapped) when the row no longer exists.
func (r *FirebirdRepository) FetchFullRecord(ctx context.Context, tableName, pkColumn, pkValue string) (map[string]any, error) {
	if !identifierPattern.MatchString(tableName) || !identifierPattern.MatchString(pkColumn) {
		return nil, fmt.Errorf("refusing to query non-identifier %q.%q", tableName, pkColumn)
	}

	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := fmt.Sprintf(`SELECT * FROM %s WHERE %s = ?`, tableName, pkColumn)
	rows, err := r.db.QueryContext(opCtx, query, pkValue)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", tableName, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", tableName, err)
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%s %s=%s: %w", tableName, pkColumn, pkValue, sql.ErrNoRows)
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("snapshot scan failed: %w", err)
	}

	record := make(map[string]any, len(columns))
	for i, col := range columns {
		record[col] = values[i]
	}
	return record, nil
}

// DeleteOutbox removes a processed entry from the outbox
func (r *FirebirdRepository) DeleteOutbox(ctx context.Context, id int64) error {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.db.ExecContext(opCtx, `DELETE FROM FB_SYNC_OUTBOX WHERE ID = ?`, id); err != nil {
		return fmt.Errorf("failed to delete outbox entry %d: %w", id, err)
	}
	return nil
}

// Close gracefully shuts down the database connection pool
func (r *FirebirdRepository) Close() error {
	r.logger.Info("Closing Firebird connection pool")
	return r.db.Close()
}
