package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/Guizzs26/go-textmend/internal/broker"
	"github.com/Guizzs26/go-textmend/internal/models"
	"github.com/Guizzs26/go-textmend/pkg/encoding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	pending   []models.FBOutboxRecord
	snapshots map[string]map[string]any
	deleted   []int64
	fetchErr  error
}

func (f *fakeRepo) FetchOutboxPending(_ context.Context, limit int) ([]models.FBOutboxRecord, error) {
	return f.pending[:min(limit, len(f.pending))], nil
}

func (f *fakeRepo) FetchFullRecord(_ context.Context, table, pkColumn, pkValue string) (map[string]any, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	snap, ok := f.snapshots[table+"/"+pkValue]
	if !ok {
		return nil, fmt.Errorf("%s %s=%s: %w", table, pkColumn, pkValue, sql.ErrNoRows)
	}
	return snap, nil
}

func (f *fakeRepo) DeleteOutbox(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type published struct {
	exchange   string
	routingKey string
	payload    any
}

type fakeBroker struct {
	messages []published
	err      error
}

func (f *fakeBroker) PublishToExchange(_ context.Context, exchange, routingKey string, payload any) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, published{exchange, routingKey, payload})
	return nil
}

func (f *fakeBroker) IsHealthy() bool { return true }

func newTestCollector(repo *fakeRepo, b *fakeBroker, policy encoding.Policy) *FBCollectorService {
	return NewFBCollectorService(repo, b, CollectorOptions{
		UnitID: 7,
		Policy: policy,
		Tables: map[string]string{"CLIENTES": "CODIGO"},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCollectorDecodesMixedText(t *testing.T) {
	repo := &fakeRepo{
		pending: []models.FBOutboxRecord{{ID: 1, TableName: "clientes", OpType: "U", PKValue: "42"}},
		snapshots: map[string]map[string]any{
			"CLIENTES/42": {
				"CODIGO": int64(42),
				// "Jos" + legacy é + " " + UTF-8 ™
				"NOME":   []byte{0x4A, 0x6F, 0x73, 0xE9, 0x20, 0xE2, 0x84, 0xA2},
				"CIDADE": "Curitiba",
			},
		},
	}
	b := &fakeBroker{}

	require.NoError(t, newTestCollector(repo, b, encoding.PolicyStrict).processBatch(context.Background()))

	require.Len(t, b.messages, 1)
	msg := b.messages[0]
	assert.Equal(t, broker.ExchangeFBtoHQ, msg.exchange)
	assert.Equal(t, "unit.7.sync", msg.routingKey)

	ev, ok := msg.payload.(models.FBEventPayload)
	require.True(t, ok)
	assert.Equal(t, "CLIENTES", ev.TableName)
	assert.Equal(t, "José ™", ev.Data["NOME"])
	assert.Equal(t, "Curitiba", ev.Data["CIDADE"])
	assert.Equal(t, int64(42), ev.Data["CODIGO"])
	assert.Equal(t, []string{"NOME"}, ev.Repaired)
	assert.NotEmpty(t, ev.EventID)

	assert.Equal(t, []int64{1}, repo.deleted)
}

func TestCollectorRejectsUndefinedByteUnderStrictPolicy(t *testing.T) {
	repo := &fakeRepo{
		pending: []models.FBOutboxRecord{{ID: 3, TableName: "CLIENTES", OpType: "I", PKValue: "9"}},
		snapshots: map[string]map[string]any{
			"CLIENTES/9": {"NOME": []byte{0x41, 0x9D, 0x42}},
		},
	}
	b := &fakeBroker{}

	require.NoError(t, newTestCollector(repo, b, encoding.PolicyStrict).processBatch(context.Background()))

	require.Len(t, b.messages, 1)
	assert.Equal(t, "unit.7.reject", b.messages[0].routingKey)

	rej, ok := b.messages[0].payload.(models.RejectPayload)
	require.True(t, ok)
	assert.Equal(t, "NOME", rej.Column)
	assert.Equal(t, 1, rej.Offset)
	assert.Equal(t, byte(0x9D), rej.Byte)
	assert.Equal(t, "9", rej.PKValue)

	assert.Equal(t, []int64{3}, repo.deleted)
}

func TestCollectorReplacePolicy(t *testing.T) {
	repo := &fakeRepo{
		pending: []models.FBOutboxRecord{{ID: 4, TableName: "CLIENTES", OpType: "I", PKValue: "9"}},
		snapshots: map[string]map[string]any{
			"CLIENTES/9": {"NOME": []byte{0x41, 0x9D, 0x42}},
		},
	}
	b := &fakeBroker{}

	require.NoError(t, newTestCollector(repo, b, encoding.PolicyReplace).processBatch(context.Background()))

	require.Len(t, b.messages, 1)
	ev := b.messages[0].payload.(models.FBEventPayload)
	assert.Equal(t, "A�B", ev.Data["NOME"])
	assert.Equal(t, []string{"NOME"}, ev.Repaired)
}

func TestCollectorLeavesBinaryColumnsUndecoded(t *testing.T) {
	blob := []byte{0x89, 0x50, 0x4E, 0x47, 0x81, 0x9D}
	repo := &fakeRepo{
		pending: []models.FBOutboxRecord{{ID: 5, TableName: "CLIENTES", OpType: "U", PKValue: "9"}},
		snapshots: map[string]map[string]any{
			"CLIENTES/9": {"NOME": []byte{0x4A, 0x6F, 0x73, 0xE9}, "foto": blob},
		},
	}
	b := &fakeBroker{}
	c := newTestCollector(repo, b, encoding.PolicyStrict)
	c.opts.Binary = map[string]bool{"CLIENTES.FOTO": true}

	require.NoError(t, c.processBatch(context.Background()))

	require.Len(t, b.messages, 1)
	assert.Equal(t, "unit.7.sync", b.messages[0].routingKey)
	ev := b.messages[0].payload.(models.FBEventPayload)
	assert.Equal(t, "José", ev.Data["NOME"])
	assert.Equal(t, blob, ev.Data["foto"])
	assert.Equal(t, []string{"NOME"}, ev.Repaired)
}

func TestCollectorDeleteSkipsSnapshot(t *testing.T) {
	repo := &fakeRepo{
		pending:  []models.FBOutboxRecord{{ID: 5, TableName: "CLIENTES", OpType: "D", PKValue: "1"}},
		fetchErr: errors.New("must not be called"),
	}
	b := &fakeBroker{}

	require.NoError(t, newTestCollector(repo, b, encoding.PolicyStrict).processBatch(context.Background()))

	require.Len(t, b.messages, 1)
	ev := b.messages[0].payload.(models.FBEventPayload)
	assert.Equal(t, "D", ev.Operation)
	assert.Nil(t, ev.Data)
}

func TestCollectorGhostRecord(t *testing.T) {
	repo := &fakeRepo{
		pending: []models.FBOutboxRecord{{ID: 6, TableName: "CLIENTES", OpType: "U", PKValue: "404"}},
	}
	b := &fakeBroker{}

	require.NoError(t, newTestCollector(repo, b, encoding.PolicyStrict).processBatch(context.Background()))

	assert.Empty(t, b.messages)
	assert.Equal(t, []int64{6}, repo.deleted)
}

func TestCollectorDiscardsUnknownTable(t *testing.T) {
	repo := &fakeRepo{
		pending: []models.FBOutboxRecord{{ID: 8, TableName: "USUARIOS", OpType: "U", PKValue: "1"}},
	}
	b := &fakeBroker{}

	require.NoError(t, newTestCollector(repo, b, encoding.PolicyStrict).processBatch(context.Background()))

	assert.Empty(t, b.messages)
	assert.Equal(t, []int64{8}, repo.deleted)
}

func TestCollectorStopsBatchOnBrokerFailure(t *testing.T) {
	repo := &fakeRepo{
		pending: []models.FBOutboxRecord{
			{ID: 10, TableName: "CLIENTES", OpType: "D", PKValue: "1"},
			{ID: 11, TableName: "CLIENTES", OpType: "D", PKValue: "2"},
		},
	}
	b := &fakeBroker{err: errors.New("connection reset")}

	err := newTestCollector(repo, b, encoding.PolicyStrict).processBatch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record ID 10")
	assert.Empty(t, repo.deleted)
}
