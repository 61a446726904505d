// Package gorm implements outbox.Store and inbox.Store over GORM,
// ported from contrib/database/gorm/driver.go's plain CRUD shape but
// specialized to the outbox/inbox schemas instead of generic
// entity persistence, so MarkDispatched can express the
// conditional `WHERE state = 'OUTSTANDING'` update the mediator's
// concurrency-safety depends on.
package gorm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/madcok-co/conduit/core/pkg/message"
	"github.com/madcok-co/conduit/core/pkg/outbox"
	"github.com/madcok-co/conduit/core/pkg/rterrors"
)

// outboxRow is the GORM model backing the outbox table.
type outboxRow struct {
	MessageID    string `gorm:"primaryKey"`
	Header       []byte
	Body         []byte
	State        string `gorm:"index"`
	DispatchedAt *time.Time
	ContextKey   string
	Attempts     int
	CreatedAt    time.Time `gorm:"index"`
}

func (outboxRow) TableName() string { return "conduit_outbox" }

// OutboxStore implements outbox.Store over a *gorm.DB.
type OutboxStore struct {
	db *gorm.DB
}

// NewOutboxStore wraps db. Callers are expected to have already run
// AutoMigrate(&outboxRow{}) (see Migrate).
func NewOutboxStore(db *gorm.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

// Migrate creates/updates the outbox and inbox tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&outboxRow{}); err != nil {
		return fmt.Errorf("gorm store: migrate outbox: %w", err)
	}
	if err := db.AutoMigrate(&inboxRow{}); err != nil {
		return fmt.Errorf("gorm store: migrate inbox: %w", err)
	}
	return nil
}

func dbFromTxn(db *gorm.DB, txn any) *gorm.DB {
	if tx, ok := txn.(*gorm.DB); ok && tx != nil {
		return tx
	}
	return db
}

func (s *OutboxStore) Add(ctx context.Context, txn any, entry outbox.Entry) error {
	header, err := json.Marshal(entry.Message.Header)
	if err != nil {
		return fmt.Errorf("gorm outbox store: marshal header: %w", err)
	}
	row := outboxRow{
		MessageID:  entry.MessageID,
		Header:     header,
		Body:       entry.Message.Body,
		State:      string(entry.State),
		ContextKey: entry.ContextKey,
		Attempts:   entry.Attempts,
		CreatedAt:  entry.Message.Header.Timestamp,
	}
	if row.State == "" {
		row.State = string(outbox.Outstanding)
	}
	return dbFromTxn(s.db, txn).WithContext(ctx).Create(&row).Error
}

func (s *OutboxStore) Get(ctx context.Context, id string) (*outbox.Entry, error) {
	var row outboxRow
	err := s.db.WithContext(ctx).Where("message_id = ?", id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, &rterrors.RequestNotFound{ID: id}
	}
	if err != nil {
		return nil, err
	}
	return rowToEntry(row)
}

func (s *OutboxStore) Outstanding(ctx context.Context, olderThan time.Time, limit int) ([]outbox.Entry, error) {
	q := s.db.WithContext(ctx).
		Where("state = ? AND created_at <= ?", string(outbox.Outstanding), olderThan).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []outboxRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]outbox.Entry, 0, len(rows))
	for _, row := range rows {
		e, err := rowToEntry(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, nil
}

func (s *OutboxStore) MarkDispatched(ctx context.Context, id string, at time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&outboxRow{}).
		Where("message_id = ? AND state = ?", id, string(outbox.Outstanding)).
		Updates(map[string]any{"state": string(outbox.Dispatched), "dispatched_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *OutboxStore) IncrementAttempts(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&outboxRow{}).
		Where("message_id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
}

func rowToEntry(row outboxRow) (*outbox.Entry, error) {
	var header message.Header
	if err := json.Unmarshal(row.Header, &header); err != nil {
		return nil, fmt.Errorf("gorm outbox store: unmarshal header: %w", err)
	}
	msg := &message.Message{Header: header, Body: row.Body}
	return &outbox.Entry{
		MessageID:    row.MessageID,
		Message:      msg,
		State:        outbox.State(row.State),
		DispatchedAt: row.DispatchedAt,
		ContextKey:   row.ContextKey,
		Attempts:     row.Attempts,
	}, nil
}

var _ outbox.Store = (*OutboxStore)(nil)
