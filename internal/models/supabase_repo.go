package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

type SupabaseRepo struct {
	supabaseClient *supabase.Client
	url            string
	key            string
}

func SupabaseNewRepo(supabaseClient *supabase.Client, url, key string) *SupabaseRepo {
	return &SupabaseRepo{
		supabaseClient: supabaseClient,
		url:            url,
		key:            key,
	}
}

// GetAuthenticatedClient returns a Supabase client with the given access token
func (su *SupabaseRepo) GetAuthenticatedClient(accessToken string) (*supabase.Client, error) {
	if su.url == "" || su.key == "" {
		return su.supabaseClient, nil
	}

	options := &supabase.ClientOptions{
		Headers: map[string]string{
			"Authorization": "Bearer " + accessToken,
		},
	}

	return supabase.NewClient(su.url, su.key, options)
}

// from starts a query on collection, under the caller's session when ctx carries an access token.
func (su *SupabaseRepo) from(ctx context.Context, collection string) (*postgrest.QueryBuilder, error) {
	token := AccessTokenFrom(ctx)
	if token == "" {
		return su.supabaseClient.From(collection), nil
	}
	client, err := su.GetAuthenticatedClient(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticated client: %v", err)
	}
	return client.From(collection), nil
}

func eqValue(v any) string {
	return fmt.Sprint(plainValue(v))
}

func decodeRows(raw []byte) ([]Record, error) {
	var rows []Record
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rows: %v", err)
	}
	return rows, nil
}

// postgrestError keeps the response body next to the error so callers can tell what the database said.
func postgrestError(raw []byte, err error) error {
	if len(raw) > 0 {
		return fmt.Errorf("postgrest error: body=%s err=%v", string(raw), err)
	}
	return err
}

func isDuplicate(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "23505")
}

func (su *SupabaseRepo) insertRow(ctx context.Context, collection, id string, payload Record) error {
	qb, err := su.from(ctx, collection)
	if err != nil {
		return err
	}
	row := stamp(payload, id, now())
	raw, _, err := qb.
		Insert(row, false, "", "minimal", "").
		Execute()
	if err != nil {
		return postgrestError(raw, err)
	}
	return nil
}

func (su *SupabaseRepo) Create(ctx context.Context, collection string, payload Record) (string, error) {
	id := newID()
	if err := su.insertRow(ctx, collection, id, payload); err != nil {
		return "", writeErr("create", collection, err)
	}
	return id, nil
}

func (su *SupabaseRepo) CreateWithID(ctx context.Context, collection, id string, payload Record) (bool, error) {
	if err := su.insertRow(ctx, collection, id, payload); err != nil {
		if isDuplicate(err) {
			return false, nil
		}
		return false, writeErr("create", collection, err)
	}
	return true, nil
}

func (su *SupabaseRepo) ListRecent(ctx context.Context, collection string, limit int, filter *Filter) ([]Record, error) {
	if limit <= 0 {
		return []Record{}, nil
	}
	qb, err := su.from(ctx, collection)
	if err != nil {
		return nil, readErr("list", collection, err)
	}
	query := qb.Select("*", "", false)
	if filter != nil {
		query = query.Eq(filter.Field, eqValue(filter.Value))
	}
	raw, _, err := query.
		Order(FieldCreatedAt, &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		Execute()
	if err != nil {
		return nil, readErr("list", collection, postgrestError(raw, err))
	}
	rows, err := decodeRows(raw)
	if err != nil {
		return nil, readErr("list", collection, err)
	}
	return rows, nil
}

func (su *SupabaseRepo) GetByID(ctx context.Context, collection, id string) (Record, error) {
	qb, err := su.from(ctx, collection)
	if err != nil {
		return nil, readErr("get", collection, err)
	}
	raw, _, err := qb.
		Select("*", "", false).
		Eq(FieldID, id).
		Execute()
	if err != nil {
		// postgrest rejects malformed uuids with 400; for the caller that is still "no such record"
		if strings.Contains(err.Error(), "22P02") || strings.Contains(string(raw), "22P02") {
			return nil, ErrNotFound
		}
		return nil, readErr("get", collection, postgrestError(raw, err))
	}

	// Supabase returns an array even for single results
	rows, err := decodeRows(raw)
	if err != nil {
		return nil, readErr("get", collection, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func (su *SupabaseRepo) GetMany(ctx context.Context, collection string, ids []string) (map[string]Record, error) {
	out := make(map[string]Record)
	ids = distinct(ids)
	if len(ids) == 0 {
		return out, nil
	}
	qb, err := su.from(ctx, collection)
	if err != nil {
		return nil, readErr("get many", collection, err)
	}
	raw, _, err := qb.
		Select("*", "", false).
		In(FieldID, ids).
		Execute()
	if err != nil {
		return nil, readErr("get many", collection, postgrestError(raw, err))
	}
	rows, err := decodeRows(raw)
	if err != nil {
		return nil, readErr("get many", collection, err)
	}
	for _, row := range rows {
		out[row.ID()] = row
	}
	return out, nil
}

func (su *SupabaseRepo) CountWhere(ctx context.Context, collection, field string, value any) (int64, error) {
	qb, err := su.from(ctx, collection)
	if err != nil {
		return 0, readErr("count", collection, err)
	}
	raw, count, err := qb.
		Select("id", "exact", true).
		Eq(field, eqValue(value)).
		Execute()
	if err != nil {
		return 0, readErr("count", collection, postgrestError(raw, err))
	}
	return count, nil
}

func (su *SupabaseRepo) FindOne(ctx context.Context, collection string, match Record) (Record, error) {
	qb, err := su.from(ctx, collection)
	if err != nil {
		return nil, readErr("find", collection, err)
	}
	query := qb.Select("*", "", false)
	for k, v := range match {
		query = query.Eq(k, eqValue(v))
	}
	raw, _, err := query.
		Order(FieldCreatedAt, &postgrest.OrderOpts{Ascending: false}).
		Limit(1, "").
		Execute()
	if err != nil {
		return nil, readErr("find", collection, postgrestError(raw, err))
	}
	rows, err := decodeRows(raw)
	if err != nil {
		return nil, readErr("find", collection, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func (su *SupabaseRepo) Update(ctx context.Context, collection, id string, fields Record) (Record, error) {
	set := make(Record, len(fields))
	for k, v := range fields {
		if k == FieldID || k == FieldCreatedAt {
			continue
		}
		set[k] = v
	}
	qb, err := su.from(ctx, collection)
	if err != nil {
		return nil, writeErr("update", collection, err)
	}
	raw, count, err := qb.
		Update(set, "representation", "exact").
		Eq(FieldID, id).
		Execute()
	if err != nil {
		return nil, writeErr("update", collection, postgrestError(raw, err))
	}
	if count == 0 {
		return nil, ErrNotFound
	}
	rows, err := decodeRows(raw)
	if err != nil {
		return nil, writeErr("update", collection, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Upsert looks the record up first and then updates or inserts. PostgREST's
// on_conflict needs a unique constraint, which append-mode RSVPs cannot have,
// so the schema adds one only for upsert mode. An insert that loses the race
// on that constraint is retried as an update.
func (su *SupabaseRepo) Upsert(ctx context.Context, collection string, match, fields Record) (string, bool, error) {
	payload := make(Record, len(match)+len(fields))
	for k, v := range match {
		payload[k] = v
	}
	for k, v := range fields {
		payload[k] = v
	}

	for attempt := 0; ; attempt++ {
		existing, err := su.FindOne(ctx, collection, match)
		switch {
		case err == nil:
			if _, err := su.Update(ctx, collection, existing.ID(), fields); err != nil {
				return "", false, err
			}
			return existing.ID(), false, nil
		case !errors.Is(err, ErrNotFound):
			return "", false, writeErr("upsert", collection, err)
		}

		id, err := su.Create(ctx, collection, payload)
		if err != nil {
			if attempt == 0 && isDuplicate(err) {
				continue
			}
			return "", false, err
		}
		return id, true, nil
	}
}
