package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// fixed width so that text ordering equals time ordering
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepo keeps each collection in its own table: one JSON document per row.
type SQLiteRepo struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path. ":memory:" is accepted.
func OpenSQLite(path string) (*SQLiteRepo, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	repo := &SQLiteRepo{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite db: %w", err)
	}
	return repo, nil
}

func (s *SQLiteRepo) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteRepo) migrate(ctx context.Context) error {
	for _, name := range Collections {
		stmts := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				id TEXT NOT NULL UNIQUE,
				created_at TEXT NOT NULL,
				doc TEXT NOT NULL
			)`, name),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (created_at DESC, seq DESC)`, name+"_created_idx", name),
		}
		for _, stmt := range stmts {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create %s: %w", name, err)
			}
		}
	}
	return nil
}

func table(collection string) (string, error) {
	for _, name := range Collections {
		if name == collection {
			return fmt.Sprintf("%q", name), nil
		}
	}
	return "", fmt.Errorf("unknown collection %q", collection)
}

func encodeDoc(rec Record) (string, error) {
	doc := make(Record, len(rec))
	for k, v := range rec {
		if k == FieldID || k == FieldCreatedAt {
			continue
		}
		doc[k] = v
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(raw), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var id, createdAt, doc string
	if err := row.Scan(&id, &createdAt, &doc); err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if rec == nil {
		rec = Record{}
	}
	rec[FieldID] = id
	at, err := time.Parse(sqliteTimeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	rec[FieldCreatedAt] = at
	return rec, nil
}

// whereClause turns an equality match into SQL over the JSON document.
func whereClause(match Record) (string, []any) {
	if len(match) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(match))
	args := make([]any, 0, len(match))
	for k, v := range match {
		if k == FieldID {
			parts = append(parts, "id = ?")
		} else {
			parts = append(parts, "json_extract(doc, ?) = ?")
			args = append(args, "$."+k)
		}
		args = append(args, plainValue(v))
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteRepo) insert(ctx context.Context, ex execer, collection, id string, payload Record) error {
	tbl, err := table(collection)
	if err != nil {
		return err
	}
	doc, err := encodeDoc(payload)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO `+tbl+` (id, created_at, doc) VALUES (?, ?, ?)`,
		id, now().Format(sqliteTimeLayout), doc,
	)
	return err
}

func (s *SQLiteRepo) Create(ctx context.Context, collection string, payload Record) (string, error) {
	id := newID()
	if err := s.insert(ctx, s.db, collection, id, payload); err != nil {
		return "", writeErr("create", collection, err)
	}
	return id, nil
}

func (s *SQLiteRepo) CreateWithID(ctx context.Context, collection, id string, payload Record) (bool, error) {
	tbl, err := table(collection)
	if err != nil {
		return false, writeErr("create", collection, err)
	}
	doc, err := encodeDoc(payload)
	if err != nil {
		return false, writeErr("create", collection, err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO `+tbl+` (id, created_at, doc) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		id, now().Format(sqliteTimeLayout), doc,
	)
	if err != nil {
		return false, writeErr("create", collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, writeErr("create", collection, err)
	}
	return n == 1, nil
}

func (s *SQLiteRepo) query(ctx context.Context, op, collection string, match Record, limit int) ([]Record, error) {
	tbl, err := table(collection)
	if err != nil {
		return nil, readErr(op, collection, err)
	}
	where, args := whereClause(match)
	q := `SELECT id, created_at, doc FROM ` + tbl + where + ` ORDER BY created_at DESC, seq DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, readErr(op, collection, err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, readErr(op, collection, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, readErr(op, collection, err)
	}
	return out, nil
}

func (s *SQLiteRepo) ListRecent(ctx context.Context, collection string, limit int, filter *Filter) ([]Record, error) {
	if limit <= 0 {
		return []Record{}, nil
	}
	var match Record
	if filter != nil {
		match = Record{filter.Field: filter.Value}
	}
	return s.query(ctx, "list", collection, match, limit)
}

func (s *SQLiteRepo) GetByID(ctx context.Context, collection, id string) (Record, error) {
	recs, err := s.query(ctx, "get", collection, Record{FieldID: id}, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

func (s *SQLiteRepo) GetMany(ctx context.Context, collection string, ids []string) (map[string]Record, error) {
	out := make(map[string]Record)
	ids = distinct(ids)
	if len(ids) == 0 {
		return out, nil
	}
	tbl, err := table(collection)
	if err != nil {
		return nil, readErr("get many", collection, err)
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := `SELECT id, created_at, doc FROM ` + tbl +
		` WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, readErr("get many", collection, err)
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, readErr("get many", collection, err)
		}
		out[rec.ID()] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, readErr("get many", collection, err)
	}
	return out, nil
}

func (s *SQLiteRepo) CountWhere(ctx context.Context, collection, field string, value any) (int64, error) {
	tbl, err := table(collection)
	if err != nil {
		return 0, readErr("count", collection, err)
	}
	where, args := whereClause(Record{field: value})
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+tbl+where, args...).Scan(&n); err != nil {
		return 0, readErr("count", collection, err)
	}
	return n, nil
}

func (s *SQLiteRepo) FindOne(ctx context.Context, collection string, match Record) (Record, error) {
	recs, err := s.query(ctx, "find", collection, match, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

func mergeFields(rec, fields Record) Record {
	out := cloneRecord(rec)
	for k, v := range fields {
		if k == FieldID || k == FieldCreatedAt {
			continue
		}
		out[k] = v
	}
	return out
}

func (s *SQLiteRepo) writeDoc(ctx context.Context, ex execer, collection string, rec Record) error {
	tbl, err := table(collection)
	if err != nil {
		return err
	}
	doc, err := encodeDoc(rec)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `UPDATE `+tbl+` SET doc = ? WHERE id = ?`, doc, rec.ID())
	return err
}

func (s *SQLiteRepo) Update(ctx context.Context, collection, id string, fields Record) (Record, error) {
	current, err := s.GetByID(ctx, collection, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, writeErr("update", collection, err)
	}
	updated := mergeFields(current, fields)
	if err := s.writeDoc(ctx, s.db, collection, updated); err != nil {
		return nil, writeErr("update", collection, err)
	}
	return updated, nil
}

func (s *SQLiteRepo) Upsert(ctx context.Context, collection string, match, fields Record) (string, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, writeErr("upsert", collection, err)
	}
	defer tx.Rollback()

	tbl, err := table(collection)
	if err != nil {
		return "", false, writeErr("upsert", collection, err)
	}
	where, args := whereClause(match)
	row := tx.QueryRowContext(ctx,
		`SELECT id, created_at, doc FROM `+tbl+where+` ORDER BY created_at DESC, seq DESC LIMIT 1`, args...)
	existing, err := scanRecord(row)
	switch {
	case err == nil:
		if err := s.writeDoc(ctx, tx, collection, mergeFields(existing, fields)); err != nil {
			return "", false, writeErr("upsert", collection, err)
		}
		if err := tx.Commit(); err != nil {
			return "", false, writeErr("upsert", collection, err)
		}
		return existing.ID(), false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", false, writeErr("upsert", collection, err)
	}

	payload := mergeFields(match, fields)
	id := newID()
	if err := s.insert(ctx, tx, collection, id, payload); err != nil {
		return "", false, writeErr("upsert", collection, err)
	}
	if err := tx.Commit(); err != nil {
		return "", false, writeErr("upsert", collection, err)
	}
	return id, true, nil
}

func (s *SQLiteRepo) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
