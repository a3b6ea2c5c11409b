package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/store"
)

const recordColumns = "id, company, type, social_entry, context, title, messages, created_at"

type PostgresStore struct {
	db    *sql.DB
	table string
}

var openDB = sql.Open

func New(conn, table string) (*PostgresStore, error) {
	db, err := openDB("pgx", conn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := verifySchema(ctx, db, table); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db, table: quoteTable(table)}, nil
}

func verifySchema(ctx context.Context, db *sql.DB, table string) error {
	var regclass sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT to_regclass($1)", fmt.Sprintf("public.%s", table)).Scan(&regclass); err != nil {
		return err
	}
	if !regclass.Valid {
		return fmt.Errorf("database schema missing: %s table not found", table)
	}
	return nil
}

func quoteTable(table string) string {
	return pgx.Identifier{"public", table}.Sanitize()
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) Get(ctx context.Context, id string) (store.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", recordColumns, p.table)
	record, err := scanRecord(p.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, store.ErrNotFound
	}
	return record, err
}

func (p *PostgresStore) List(ctx context.Context, q store.Query) ([]store.Record, error) {
	where, args := buildWhere(q)
	query := fmt.Sprintf("SELECT %s FROM %s", recordColumns, p.table)
	if where != "" {
		query += " WHERE " + where
	}
	if q.Descending {
		query += " ORDER BY created_at DESC"
	} else {
		query += " ORDER BY created_at ASC"
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []store.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Upsert inserts or merges by id. created_at is never rewritten on conflict.
func (p *PostgresStore) Upsert(ctx context.Context, record store.Record) (store.Record, error) {
	messages := []byte(record.Messages)
	if strings.TrimSpace(string(messages)) == "" {
		messages = []byte("[]")
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, company, type, social_entry, context, title, messages, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			company = EXCLUDED.company,
			type = EXCLUDED.type,
			social_entry = EXCLUDED.social_entry,
			context = EXCLUDED.context,
			title = EXCLUDED.title,
			messages = EXCLUDED.messages
		RETURNING %s
	`, p.table, recordColumns)
	return scanRecord(p.db.QueryRowContext(
		ctx,
		query,
		record.ID,
		nullString(record.Company),
		string(record.Type),
		nullString(record.SocialEntry),
		nullString(record.Context),
		nullString(record.Title),
		messages,
		createdAt,
	))
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", p.table), id)
	return err
}

func (p *PostgresStore) DeleteContexts(ctx context.Context, companyVariants []string) error {
	if len(companyVariants) == 0 {
		return nil
	}
	where, args := buildWhere(store.Query{Type: store.TypeContext, CompanyVariants: companyVariants})
	_, err := p.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", p.table, where), args...)
	return err
}

func buildWhere(q store.Query) (string, []any) {
	clauses := []string{}
	args := []any{}
	add := func(column string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if q.Type != "" {
		add("type", string(q.Type))
	}
	if q.Title != "" {
		add("title", q.Title)
	}
	if q.SocialEntry != "" {
		add("social_entry", q.SocialEntry)
	}
	if q.ExcludeID != "" {
		args = append(args, q.ExcludeID)
		clauses = append(clauses, fmt.Sprintf("id <> $%d", len(args)))
	}
	if len(q.CompanyVariants) > 0 {
		placeholders := make([]string, 0, len(q.CompanyVariants))
		for _, variant := range q.CompanyVariants {
			args = append(args, variant)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		clauses = append(clauses, fmt.Sprintf("company IN (%s)", strings.Join(placeholders, ", ")))
	}
	return strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (store.Record, error) {
	var (
		record      store.Record
		company     sql.NullString
		recordType  string
		socialEntry sql.NullString
		contextText sql.NullString
		title       sql.NullString
		messages    []byte
		createdAt   time.Time
	)
	if err := row.Scan(&record.ID, &company, &recordType, &socialEntry, &contextText, &title, &messages, &createdAt); err != nil {
		return store.Record{}, err
	}
	record.Company = company.String
	record.Type = store.RecordType(recordType)
	record.SocialEntry = socialEntry.String
	record.Context = contextText.String
	record.Title = title.String
	record.Messages = json.RawMessage(messages)
	record.CreatedAt = createdAt
	return record, nil
}

func nullString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
