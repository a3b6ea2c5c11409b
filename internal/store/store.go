package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("record not found")

type RecordType string

const (
	TypeResults RecordType = "results"
	TypeContext RecordType = "context"
)

// Record is one row of the conversations table. Messages holds the history
// exactly as persisted; callers sanitize it before use.
type Record struct {
	ID          string
	Company     string
	Type        RecordType
	SocialEntry string
	Context     string
	Title       string
	Messages    json.RawMessage
	CreatedAt   time.Time
}

// Query is a conjunction of equality filters. CompanyVariants match when the
// company column equals any of them. Zero-valued fields do not filter.
type Query struct {
	Type            RecordType
	CompanyVariants []string
	Title           string
	SocialEntry     string
	ExcludeID       string
	Descending      bool
	Limit           int
}

type Store interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, query Query) ([]Record, error)
	Upsert(ctx context.Context, record Record) (Record, error)
	Delete(ctx context.Context, id string) error
	DeleteContexts(ctx context.Context, companyVariants []string) error
}

// StatusError reports a non-2xx answer from a remote store.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("store returned status %d: %s", e.Status, e.Body)
}

// Matches reports whether record satisfies every filter in q.
func (q Query) Matches(record Record) bool {
	if q.Type != "" && record.Type != q.Type {
		return false
	}
	if q.Title != "" && record.Title != q.Title {
		return false
	}
	if q.SocialEntry != "" && record.SocialEntry != q.SocialEntry {
		return false
	}
	if q.ExcludeID != "" && record.ID == q.ExcludeID {
		return false
	}
	if len(q.CompanyVariants) > 0 {
		for _, variant := range q.CompanyVariants {
			if record.Company == variant {
				return true
			}
		}
		return false
	}
	return true
}
