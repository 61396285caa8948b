package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Guizzs26/go-textmend/internal/broker"
	"github.com/Guizzs26/go-textmend/internal/models"
	"github.com/Guizzs26/go-textmend/pkg/encoding"
	"github.com/Guizzs26/go-textmend/pkg/metrics"
	"github.com/google/uuid"
)

// CollectorRepository defines the data access contract for the Collector
type CollectorRepository interface {
	FetchOutboxPending(ctx context.Context, limit int) ([]models.FBOutboxRecord, error)
	FetchFullRecord(ctx context.Context, tableName, pkColumn, pkValue string) (map[string]any, error)
	DeleteOutbox(ctx context.Context, id int64) error
}

// MessageBroker defines the publishing contract
type MessageBroker interface {
	PublishToExchange(ctx context.Context, exchange, routingKey string, payload any) error
	IsHealthy() bool
}

// CollectorOptions carries the per-unit settings of a collector
type CollectorOptions struct {
	UnitID       int
	BatchSize    int
	PollInterval time.Duration
	Policy       encoding.Policy
	// Tables maps upper-cased table names to their primary key column
	Tables map[string]string
	// Binary holds upper-cased "TABLE.COLUMN" keys left as raw bytes
	Binary map[string]bool
}

// FBCollectorService moves legacy Firebird rows to RabbitMQ, decoding their text on the way
type FBCollectorService struct {
	repo   CollectorRepository
	broker MessageBroker
	logger *slog.Logger
	opts   CollectorOptions
}

// NewFBCollectorService creates a new instance of the collector service
func NewFBCollectorService(repo CollectorRepository, broker MessageBroker, opts CollectorOptions, logger *slog.Logger) *FBCollectorService {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &FBCollectorService{
		repo:   repo,
		broker: broker,
		logger: logger,
		opts:   opts,
	}
}

// Run starts the polling loop. It blocks until the context is canceled
func (s *FBCollectorService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	s.logger.Info("🔥 Firebird Collector Service started",
		"unit_id", s.opts.UnitID,
		"policy", s.opts.Policy.String(),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Collector shutting down...")
			return
		case <-ticker.C:
			if !s.broker.IsHealthy() {
				s.logger.Warn("Broker is offline, skipping collection cycle")
				continue
			}

			if err := s.processBatch(ctx); err != nil {
				s.logger.Error("Collector batch cycle failed", "error", err)
			}
		}
	}
}

func (s *FBCollectorService) processBatch(ctx context.Context) error {
	records, err := s.repo.FetchOutboxPending(ctx, s.opts.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch outbox: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	start := time.Now()
	defer func() { metrics.BatchDuration.Observe(time.Since(start).Seconds()) }()

	s.logger.Debug("Processing outbox batch", "count", len(records))

	// FIFO: a failure stops the batch and the next tick retries the same record
	for _, rec := range records {
		if err := s.processSingleRecord(ctx, rec); err != nil {
			metrics.EventsCollected.WithLabelValues("error", rec.TableName).Inc()
			return fmt.Errorf("failed to process record ID %d: %w", rec.ID, err)
		}
	}

	return nil
}

func (s *FBCollectorService) processSingleRecord(ctx context.Context, rec models.FBOutboxRecord) error {
	table := strings.ToUpper(strings.TrimSpace(rec.TableName))
	l := s.logger.With("outbox_id", rec.ID, "table", table, "pk", rec.PKValue)

	pkColumn, allowed := s.opts.Tables[table]
	if !allowed || !models.IsValidOperation(rec.OpType) {
		l.Error("Outbox entry has invalid metadata, discarding", "operation", rec.OpType)
		metrics.EventsCollected.WithLabelValues("error", table).Inc()
		return s.repo.DeleteOutbox(ctx, rec.ID)
	}

	payload := models.FBEventPayload{
		EventID:   uuid.NewString(),
		UnitID:    s.opts.UnitID,
		TableName: table,
		Operation: rec.OpType,
		PKValue:   rec.PKValue,
		Timestamp: time.Now(),
	}

	// DELETE carries only the PK
	if rec.OpType != "D" {
		data, err := s.repo.FetchFullRecord(ctx, table, pkColumn, rec.PKValue)
		if err != nil {
			// Row deleted from the source before we could read it
			if errors.Is(err, sql.ErrNoRows) {
				l.Warn("Record missing in source table (Ghost Record). Skipping.")
				metrics.EventsCollected.WithLabelValues("ghost", table).Inc()
				return s.repo.DeleteOutbox(ctx, rec.ID)
			}
			return fmt.Errorf("failed to fetch snapshot: %w", err)
		}

		repaired, err := s.decodeRecord(table, data)
		if err != nil {
			return s.reject(ctx, l, rec, payload, err)
		}
		if len(repaired) > 0 {
			l.Debug("Repaired legacy text", "columns", repaired)
		}
		payload.Data = data
		payload.Repaired = repaired
	}

	routingKey := fmt.Sprintf("unit.%d.%s", s.opts.UnitID, models.KindSync)
	if err := s.broker.PublishToExchange(ctx, broker.ExchangeFBtoHQ, routingKey, payload); err != nil {
		return fmt.Errorf("broker publish failed: %w", err)
	}

	// At-least-once: if this delete fails the event is sent again and HQ dedupes on event_id
	if err := s.repo.DeleteOutbox(ctx, rec.ID); err != nil {
		return fmt.Errorf("failed to delete outbox entry: %w", err)
	}

	metrics.EventsCollected.WithLabelValues("sent", table).Inc()
	return nil
}

// columnError ties a decoder failure to the column that produced it
type columnError struct {
	column string
	err    *encoding.InvalidByteError
}

func (e *columnError) Error() string {
	return fmt.Sprintf("column %s: %v", e.column, e.err)
}

func (e *columnError) Unwrap() error {
	return e.err
}

// decodeRecord replaces every text value of data with its UTF-8 decoding.
// Columns listed in Binary keep their bytes. It returns the columns whose content changed.
func (s *FBCollectorService) decodeRecord(table string, data map[string]any) ([]string, error) {
	columns := make([]string, 0, len(data))
	for col := range data {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	var repaired []string
	for _, col := range columns {
		if s.opts.Binary[table+"."+strings.ToUpper(col)] {
			metrics.FieldsDecoded.WithLabelValues("binary", table).Inc()
			continue
		}

		var raw []byte
		switch v := data[col].(type) {
		case []byte:
			raw = v
		case string:
			raw = []byte(v)
		default:
			continue
		}

		metrics.DecodedBytes.Observe(float64(len(raw)))

		text, err := encoding.Convert(raw)
		if err != nil {
			var ibe *encoding.InvalidByteError
			if !errors.As(err, &ibe) {
				return nil, fmt.Errorf("column %s: %w", col, err)
			}
			metrics.InvalidLegacyValues.WithLabelValues(s.opts.Policy.String()).Inc()
			if s.opts.Policy == encoding.PolicyStrict {
				metrics.FieldsDecoded.WithLabelValues("invalid", table).Inc()
				return nil, &columnError{column: col, err: ibe}
			}
			if text, err = encoding.ToUTF8(raw, s.opts.Policy); err != nil {
				return nil, fmt.Errorf("column %s: %w", col, err)
			}
		}

		data[col] = text
		if text == string(raw) {
			metrics.FieldsDecoded.WithLabelValues("unchanged", table).Inc()
			continue
		}
		metrics.FieldsDecoded.WithLabelValues("repaired", table).Inc()
		repaired = append(repaired, col)
	}

	return repaired, nil
}

// reject publishes a RejectPayload in place of the event and drops the outbox row
func (s *FBCollectorService) reject(ctx context.Context, l *slog.Logger, rec models.FBOutboxRecord, ev models.FBEventPayload, decodeErr error) error {
	var colErr *columnError
	if !errors.As(decodeErr, &colErr) {
		return fmt.Errorf("failed to decode record: %w", decodeErr)
	}

	l.Error("Undefined Windows-1252 byte in legacy text, rejecting row",
		"column", colErr.column,
		"offset", colErr.err.Offset,
		"byte", fmt.Sprintf("0x%02X", colErr.err.Byte),
	)

	rej := models.RejectPayload{
		EventID:   ev.EventID,
		UnitID:    ev.UnitID,
		TableName: ev.TableName,
		Operation: ev.Operation,
		PKValue:   ev.PKValue,
		Column:    colErr.column,
		Offset:    colErr.err.Offset,
		Byte:      colErr.err.Byte,
		Reason:    colErr.err.Error(),
		Timestamp: ev.Timestamp,
	}

	routingKey := fmt.Sprintf("unit.%d.%s", s.opts.UnitID, models.KindReject)
	if err := s.broker.PublishToExchange(ctx, broker.ExchangeFBtoHQ, routingKey, rej); err != nil {
		return fmt.Errorf("broker publish of rejection failed: %w", err)
	}

	if err := s.repo.DeleteOutbox(ctx, rec.ID); err != nil {
		return fmt.Errorf("failed to delete outbox entry: %w", err)
	}

	metrics.EventsCollected.WithLabelValues("rejected", ev.TableName).Inc()
	return nil
}
