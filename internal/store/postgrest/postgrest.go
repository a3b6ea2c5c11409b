package postgrest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/companyurl"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/store"
)

const upsertPreference = "resolution=merge-duplicates,return=representation"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
}

// Store talks to a PostgREST endpoint exposing the conversations table.
type Store struct {
	table      string
	httpClient *resty.Client
	logger     zerolog.Logger
}

type row struct {
	ID          string          `json:"id"`
	Company     *string         `json:"company"`
	Type        string          `json:"type"`
	SocialEntry *string         `json:"social_entry"`
	Context     *string         `json:"context"`
	Title       *string         `json:"title"`
	Messages    json.RawMessage `json:"messages"`
	CreatedAt   string          `json:"created_at,omitempty"`
}

func New(baseURL, apiKey, table string, timeout time.Duration, logger zerolog.Logger) *Store {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("apikey", apiKey).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	return &Store{
		table:      table,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "postgrest").Str("table", table).Logger(),
	}
}

func (s *Store) path() string {
	return "/" + s.table
}

func (s *Store) Ping(ctx context.Context) error {
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"select": "id", "limit": "1"}).
		Get(s.path())
	if err != nil {
		return fmt.Errorf("store ping failed: %w", err)
	}
	if resp.IsError() {
		return &store.StatusError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (store.Record, error) {
	var rows []row
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"select": "*", "id": "eq." + id}).
		SetResult(&rows).
		Get(s.path())
	if err != nil {
		return store.Record{}, fmt.Errorf("store get failed: %w", err)
	}
	if resp.IsError() {
		return store.Record{}, &store.StatusError{Status: resp.StatusCode(), Body: resp.String()}
	}
	if len(rows) == 0 {
		return store.Record{}, store.ErrNotFound
	}
	return rows[0].record(), nil
}

func (s *Store) List(ctx context.Context, query store.Query) ([]store.Record, error) {
	params := filterParams(query)
	params["select"] = "*"
	if query.Descending {
		params["order"] = "created_at.desc"
	} else {
		params["order"] = "created_at.asc"
	}
	if query.Limit > 0 {
		params["limit"] = fmt.Sprintf("%d", query.Limit)
	}

	var rows []row
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&rows).
		Get(s.path())
	if err != nil {
		return nil, fmt.Errorf("store list failed: %w", err)
	}
	if resp.IsError() {
		return nil, &store.StatusError{Status: resp.StatusCode(), Body: resp.String()}
	}
	records := make([]store.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.record())
	}
	return records, nil
}

func (s *Store) Upsert(ctx context.Context, record store.Record) (store.Record, error) {
	var rows []row
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetHeader("Prefer", upsertPreference).
		SetBody([]row{fromRecord(record)}).
		SetResult(&rows).
		Post(s.path())
	if err != nil {
		return store.Record{}, fmt.Errorf("store upsert failed: %w", err)
	}
	if resp.IsError() {
		return store.Record{}, &store.StatusError{Status: resp.StatusCode(), Body: resp.String()}
	}
	if len(rows) == 0 {
		s.logger.Warn().Str("id", record.ID).Msg("upsert returned no representation")
		return record, nil
	}
	return rows[0].record(), nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.delete(ctx, map[string]string{"id": "eq." + id})
}

func (s *Store) DeleteContexts(ctx context.Context, companyVariants []string) error {
	if len(companyVariants) == 0 {
		return nil
	}
	return s.delete(ctx, filterParams(store.Query{Type: store.TypeContext, CompanyVariants: companyVariants}))
}

func (s *Store) delete(ctx context.Context, params map[string]string) error {
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetQueryParams(params).
		Delete(s.path())
	if err != nil {
		return fmt.Errorf("store delete failed: %w", err)
	}
	if resp.IsError() {
		return &store.StatusError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// filterParams renders a query in PostgREST's filter grammar. A single
// company variant becomes a plain equality, several become an or=() group.
func filterParams(query store.Query) map[string]string {
	params := map[string]string{}
	if query.Type != "" {
		params["type"] = "eq." + string(query.Type)
	}
	if query.Title != "" {
		params["title"] = "eq." + query.Title
	}
	if query.SocialEntry != "" {
		params["social_entry"] = "eq." + query.SocialEntry
	}
	if query.ExcludeID != "" {
		params["id"] = "neq." + query.ExcludeID
	}
	if filter, ok := companyurl.BuildOrFilter(query.CompanyVariants); ok {
		params["or"] = filter
	} else if len(query.CompanyVariants) == 1 {
		params[companyurl.CompanyColumn] = "eq." + query.CompanyVariants[0]
	}
	return params
}

func (r row) record() store.Record {
	return store.Record{
		ID:          r.ID,
		Company:     deref(r.Company),
		Type:        store.RecordType(r.Type),
		SocialEntry: deref(r.SocialEntry),
		Context:     deref(r.Context),
		Title:       deref(r.Title),
		Messages:    r.Messages,
		CreatedAt:   parseTimestamp(r.CreatedAt),
	}
}

func fromRecord(record store.Record) row {
	messages := record.Messages
	if len(strings.TrimSpace(string(messages))) == 0 {
		messages = json.RawMessage("[]")
	}
	r := row{
		ID:          record.ID,
		Company:     optional(record.Company),
		Type:        string(record.Type),
		SocialEntry: optional(record.SocialEntry),
		Context:     optional(record.Context),
		Title:       optional(record.Title),
		Messages:    messages,
	}
	if !record.CreatedAt.IsZero() {
		r.CreatedAt = record.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return r
}

func parseTimestamp(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

func optional(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
