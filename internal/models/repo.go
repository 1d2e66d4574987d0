package models

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var Validate = validator.New()

const (
	HivesCollection     = "hives"
	BuzzCollection      = "buzz"
	AttendeesCollection = "hive_attendees"
	ProfilesCollection  = "users"
)

// Collections lists every collection a gateway is expected to serve.
var Collections = []string{
	HivesCollection,
	BuzzCollection,
	AttendeesCollection,
	ProfilesCollection,
}

const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// Record is a single document as it travels through the gateway.
// On read it always carries "id" and "created_at".
type Record map[string]any

func (r Record) ID() string {
	id, _ := r[FieldID].(string)
	return id
}

func (r Record) String(field string) string {
	v, _ := r[field].(string)
	return v
}

// CreatedAt returns the creation timestamp regardless of how the backend
// handed it back (time.Time or an RFC3339 string).
func (r Record) CreatedAt() time.Time {
	return timeValue(r[FieldCreatedAt])
}

// Filter is a single equality predicate.
type Filter struct {
	Field string
	Value any
}

func Eq(field string, value any) *Filter {
	return &Filter{Field: field, Value: value}
}

// Gateway is the record contract every page-level service is written against.
type Gateway interface {
	Create(ctx context.Context, collection string, payload Record) (string, error)
	ListRecent(ctx context.Context, collection string, limit int, filter *Filter) ([]Record, error)
	GetByID(ctx context.Context, collection, id string) (Record, error)
	CountWhere(ctx context.Context, collection, field string, value any) (int64, error)

	GetMany(ctx context.Context, collection string, ids []string) (map[string]Record, error)
	FindOne(ctx context.Context, collection string, match Record) (Record, error)
	Update(ctx context.Context, collection, id string, fields Record) (Record, error)
	Upsert(ctx context.Context, collection string, match, fields Record) (string, bool, error)
	CreateWithID(ctx context.Context, collection, id string, payload Record) (bool, error)
}

type accessTokenKey struct{}

// ContextWithAccessToken attaches the caller's access token. Backends that
// enforce per-user access rules run the request under it; others ignore it.
func ContextWithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

func AccessTokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}

// newID returns the identifier assigned to gateway-created records.
func newID() string {
	return uuid.NewString()
}

func now() time.Time {
	return time.Now().UTC()
}

// stamp copies payload and adds the id and creation time. Caller-supplied
// id/created_at values are overwritten.
func stamp(payload Record, id string, at time.Time) Record {
	out := make(Record, len(payload)+2)
	for k, v := range payload {
		out[k] = v
	}
	out[FieldID] = id
	out[FieldCreatedAt] = at
	return out
}

func cloneRecord(r Record) Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// distinct drops empty and repeated ids, keeping first-seen order.
func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func timeValue(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case *time.Time:
		if t != nil {
			return *t
		}
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

// ToRecord converts a typed model into a Record through its json tags.
func ToRecord(v any) (Record, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return rec, nil
}

// FromRecord decodes a Record into a typed model through its json tags.
func FromRecord[T any](rec Record) (*T, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return out, nil
}

// plainValue reduces named string/number types to their base kind so that
// Visibility("public") and "public" compare equal in filters.
func plainValue(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Bool:
		return rv.Bool()
	}
	return v
}

func plainRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = plainValue(v)
	}
	return out
}
