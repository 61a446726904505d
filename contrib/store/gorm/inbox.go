package gorm

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/madcok-co/conduit/core/pkg/inbox"
)

type inboxRow struct {
	RequestID   string `gorm:"primaryKey"`
	ContextKey  string `gorm:"primaryKey"`
	RequestBody []byte
	Timestamp   time.Time
}

func (inboxRow) TableName() string { return "conduit_inbox" }

// InboxStore implements inbox.Store over a *gorm.DB, using the
// composite primary key to make Add idempotent via an insert-or-ignore.
type InboxStore struct {
	db *gorm.DB
}

// NewInboxStore wraps db. Callers are expected to have already run
// Migrate.
func NewInboxStore(db *gorm.DB) *InboxStore {
	return &InboxStore{db: db}
}

func (s *InboxStore) Add(ctx context.Context, e inbox.Entry) (bool, error) {
	row := inboxRow{
		RequestID:   e.RequestID,
		ContextKey:  e.ContextKey,
		RequestBody: e.RequestBody,
		Timestamp:   time.Now(),
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *InboxStore) Get(ctx context.Context, requestID, contextKey string) (*inbox.Entry, error) {
	var row inboxRow
	err := s.db.WithContext(ctx).
		Where("request_id = ? AND context_key = ?", requestID, contextKey).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inbox.Entry{
		RequestID:   row.RequestID,
		ContextKey:  row.ContextKey,
		RequestBody: row.RequestBody,
		Timestamp:   row.Timestamp,
	}, nil
}

var _ inbox.Store = (*InboxStore)(nil)
