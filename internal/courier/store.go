// Package courier implements the delivery client: an HTTP API client backed
// by a durable offline queue. Mutating calls made while the device is offline
// are captured locally and replayed in creation order on reconnect.
package courier

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// QueuedRequest is one deferred API call.
type QueuedRequest struct {
	ID         string
	Method     string
	Path       string
	Body       []byte
	AuthToken  string
	CreatedAt  time.Time
	RetryCount int
}

// Store persists queued requests so they survive process restarts. All must
// return entries in ascending creation order.
type Store interface {
	Append(req QueuedRequest) error
	All() ([]QueuedRequest, error)
	Update(req QueuedRequest) error
	Remove(id string) error
}

// queuedRow is the SQLite row for a queued request.
type queuedRow struct {
	ID         string    `gorm:"primaryKey"`
	Method     string    `gorm:"not null"`
	Path       string    `gorm:"not null"`
	Body       []byte    `gorm:"type:blob"`
	AuthToken  string    `gorm:"column:auth_token"`
	CreatedAt  time.Time `gorm:"index;not null"`
	RetryCount int       `gorm:"not null;default:0"`
}

func (queuedRow) TableName() string {
	return "queued_requests"
}

// sqliteStore persists the queue in a local SQLite database file.
type sqliteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (creating if needed) the local queue database.
func NewSQLiteStore(path string) (Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open queue database")
	}
	if err := db.AutoMigrate(&queuedRow{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate queue database")
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Append(req QueuedRequest) error {
	row := queuedRow{
		ID:         req.ID,
		Method:     req.Method,
		Path:       req.Path,
		Body:       req.Body,
		AuthToken:  req.AuthToken,
		CreatedAt:  req.CreatedAt,
		RetryCount: req.RetryCount,
	}
	return s.db.Create(&row).Error
}

func (s *sqliteStore) All() ([]QueuedRequest, error) {
	var rows []queuedRow
	if err := s.db.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	reqs := make([]QueuedRequest, 0, len(rows))
	for _, row := range rows {
		reqs = append(reqs, QueuedRequest{
			ID:         row.ID,
			Method:     row.Method,
			Path:       row.Path,
			Body:       row.Body,
			AuthToken:  row.AuthToken,
			CreatedAt:  row.CreatedAt,
			RetryCount: row.RetryCount,
		})
	}
	return reqs, nil
}

func (s *sqliteStore) Update(req QueuedRequest) error {
	return s.db.Model(&queuedRow{}).
		Where("id = ?", req.ID).
		Update("retry_count", req.RetryCount).Error
}

func (s *sqliteStore) Remove(id string) error {
	return s.db.Where("id = ?", id).Delete(&queuedRow{}).Error
}

// MemoryStore is an in-memory Store used by tests and as a fallback when no
// durable path is available.
type MemoryStore struct {
	mu   sync.Mutex
	rows []QueuedRequest
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(req QueuedRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, req)
	return nil
}

func (s *MemoryStore) All() ([]QueuedRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]QueuedRequest, len(s.rows))
	copy(out, s.rows)
	sortByCreatedAt(out)
	return out, nil
}

func (s *MemoryStore) Update(req QueuedRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == req.ID {
			s.rows[i] = req
			return nil
		}
	}
	return errors.New("queued request not found")
}

func (s *MemoryStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func sortByCreatedAt(reqs []QueuedRequest) {
	for i := 1; i < len(reqs); i++ {
		for j := i; j > 0 && reqs[j].CreatedAt.Before(reqs[j-1].CreatedAt); j-- {
			reqs[j], reqs[j-1] = reqs[j-1], reqs[j]
		}
	}
}

// NewRequestID generates a unique local id for a queued request.
func NewRequestID() string {
	return uuid.New().String()
}
