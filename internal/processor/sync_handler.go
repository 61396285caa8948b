package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Guizzs26/go-textmend/internal/models"
	"github.com/Guizzs26/go-textmend/pkg/infra"
	"github.com/Guizzs26/go-textmend/pkg/metrics"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrFatal marks messages that can never succeed and must not be requeued
var ErrFatal = errors.New("FATAL")

// SinkRepository is the HQ persistence used by the handler
type SinkRepository interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	ApplyEvent(ctx context.Context, ev models.FBEventPayload) error
	SaveRejection(ctx context.Context, rej models.RejectPayload) error
}

// SyncHandler applies collector events to the HQ database
type SyncHandler struct {
	repo       SinkRepository
	logger     *slog.Logger
	maxRetries int
	retryStep  time.Duration
}

// NewSyncHandler creates a new instance of the synchronization orchestrator
func NewSyncHandler(repo SinkRepository, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		repo:       repo,
		logger:     logger,
		maxRetries: 3,
		retryStep:  200 * time.Millisecond,
	}
}

// Handle dispatches on the last segment of the routing key ("unit.<id>.<kind>")
func (h *SyncHandler) Handle(ctx context.Context, routingKey string, body []byte) (err error) {
	start := time.Now()
	kind := routingKey[strings.LastIndexByte(routingKey, '.')+1:]

	defer func() {
		status := "success"
		if err != nil {
			status = "transient_error"
			if errors.Is(err, ErrFatal) {
				status = "fatal_error"
			}
		}
		metrics.SinkDuration.WithLabelValues(status, kind).Observe(time.Since(start).Seconds())
		metrics.SinkMessages.WithLabelValues(status, kind).Inc()
	}()

	switch kind {
	case models.KindSync:
		return h.handleSync(ctx, body)
	case models.KindReject:
		return h.handleReject(ctx, body)
	default:
		return fmt.Errorf("%w: unexpected routing key %q", ErrFatal, routingKey)
	}
}

func (h *SyncHandler) handleSync(ctx context.Context, body []byte) error {
	var ev models.FBEventPayload
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: payload unmarshal error: %v", ErrFatal, err)
	}
	if ev.EventID == "" || ev.TableName == "" || !models.IsValidOperation(ev.Operation) {
		return fmt.Errorf("%w: incomplete event metadata", ErrFatal)
	}
	// Collectors decode before publishing; anything else is a bug upstream
	if !utf8.Valid(body) {
		return fmt.Errorf("%w: event %s is not valid UTF-8", ErrFatal, ev.EventID)
	}

	l := h.logger.With(
		"event_id", ev.EventID,
		"unit_id", ev.UnitID,
		"table", ev.TableName,
		"operation", ev.Operation,
	)

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	alreadyProcessed, err := h.repo.IsProcessed(checkCtx, ev.EventID)
	cancel()
	if err != nil {
		return fmt.Errorf("idempotency check failed: %w", err)
	}
	if alreadyProcessed {
		l.Info("Event already processed, skipping to ACK")
		return nil
	}

	backoff := infra.NewBackoff(h.retryStep, 8*h.retryStep, 2.0)
	conflict := func(err error) bool {
		if !isRetryable(err) {
			return false
		}
		metrics.SinkRetries.Inc()
		l.Warn("Postgres serialization conflict, retrying internally",
			"attempt", backoff.Attempts()+1,
			"error", err,
		)
		return true
	}

	err = backoff.Retry(ctx, h.maxRetries, conflict, func() error {
		txCtx, txCancel := context.WithTimeout(ctx, 10*time.Second)
		defer txCancel()
		return h.repo.ApplyEvent(txCtx, ev)
	})
	if err != nil {
		return err
	}

	l.Info("Synchronized to Postgres", "repaired_columns", len(ev.Repaired))
	return nil
}

func (h *SyncHandler) handleReject(ctx context.Context, body []byte) error {
	var rej models.RejectPayload
	if err := json.Unmarshal(body, &rej); err != nil {
		return fmt.Errorf("%w: reject unmarshal error: %v", ErrFatal, err)
	}
	if rej.EventID == "" {
		return fmt.Errorf("%w: reject without event id", ErrFatal)
	}

	h.logger.Warn("Unit reported undecodable legacy text",
		"event_id", rej.EventID,
		"unit_id", rej.UnitID,
		"table", rej.TableName,
		"pk", rej.PKValue,
		"column", rej.Column,
		"offset", rej.Offset,
		"byte", fmt.Sprintf("0x%02X", rej.Byte),
	)

	return h.repo.SaveRejection(ctx, rej)
}

// isRetryable detects Postgres serialization failures and deadlocks
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
