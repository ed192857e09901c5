// Package sqldoc stores documents as JSON rows in a single SQL table. Filters
// are pushed down as far as the dialect's JSON functions allow and finished in
// memory.
package sqldoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore"
	"github.com/charm-corp/ai-value-matching-sub001/internal/log"
	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
	_ "github.com/charm-corp/ai-value-matching-sub001/internal/pkg/sqlite"
	"github.com/charm-corp/ai-value-matching-sub001/internal/query"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db      *sql.DB
	q       querier
	tx      *sql.Tx
	dialect Dialect
}

var _ docstore.Store = (*Store)(nil)

// Open connects to the database and creates the documents table.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	if dialect == SQLite {
		// sqlite allows a single writer and in-memory databases live per connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	s := New(db, dialect)

	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// New wraps an existing connection pool. The schema is not touched.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, q: db, dialect: dialect}
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.q.ExecContext(ctx, s.dialect.createTable()); err != nil {
		return fmt.Errorf("migrate documents table: %w", err)
	}

	log.Debug(ctx, "documents table ready", log.String("dialect", string(s.dialect)))

	return nil
}

func (s *Store) exec(ctx context.Context, stmt string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.dialect.rebind(stmt), args...)
}

func (s *Store) Find(ctx context.Context, collection string, filter query.Filter, opts ...docstore.FindOption) ([]objects.Document, error) {
	if filter.IsNone() {
		return []objects.Document{}, nil
	}

	where, args := compile(s.dialect, filter)
	stmt := "SELECT doc FROM documents WHERE collection = ? AND " + where

	rows, err := s.q.QueryContext(ctx, s.dialect.rebind(stmt), append([]any{collection}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer rows.Close()

	docs := make([]objects.Document, 0)

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}

		doc, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", collection, err)
		}

		if filter.Match(doc) {
			docs = append(docs, doc)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return docstore.ApplyOptions(docs, opts...), nil
}

func (s *Store) FindOne(ctx context.Context, collection string, id objects.ID) (objects.Document, error) {
	raw, err := s.load(ctx, collection, id, false)
	if err != nil {
		return nil, err
	}

	return decode(raw)
}

func (s *Store) load(ctx context.Context, collection string, id objects.ID, lock bool) ([]byte, error) {
	stmt := "SELECT doc FROM documents WHERE collection = ? AND id = ?"
	if lock {
		stmt += s.dialect.forUpdate()
	}

	var raw []byte

	err := s.q.QueryRowContext(ctx, s.dialect.rebind(stmt), collection, id.String()).Scan(&raw)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("load %s/%s: %w", collection, id, err)
	}

	if stored := gjson.GetBytes(raw, objects.FieldID).String(); stored != id.String() {
		return nil, fmt.Errorf("load %s/%s: stored document carries id %q", collection, id, stored)
	}

	return raw, nil
}

func (s *Store) Insert(ctx context.Context, collection string, doc objects.Document) (objects.Document, error) {
	id := doc.ID()
	if id.IsZero() {
		return nil, fmt.Errorf("docstore: insert into %s without id", collection)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}

	stmt := "INSERT INTO documents (collection, id, doc) VALUES (?, ?, " + s.dialect.docParam() + ")"
	if _, err := s.exec(ctx, stmt, collection, id.String(), string(raw)); err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrConflict)
		}

		return nil, fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}

	return decode(raw)
}

// Update patches the stored JSON in place. Outside a transaction the
// read-modify-write runs in its own one.
func (s *Store) Update(ctx context.Context, collection string, id objects.ID, patch objects.Document) (objects.Document, error) {
	if s.tx == nil {
		var updated objects.Document

		err := s.RunInTx(ctx, func(ctx context.Context, tx docstore.Store) error {
			var err error

			updated, err = tx.Update(ctx, collection, id, patch)

			return err
		})
		if err != nil {
			return nil, err
		}

		return updated, nil
	}

	raw, err := s.load(ctx, collection, id, true)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(patch))
	for k := range patch {
		if k != objects.FieldID {
			keys = append(keys, k)
		}
	}

	slices.Sort(keys)

	for _, k := range keys {
		raw, err = sjson.SetBytes(raw, escapePath(k), patch[k])
		if err != nil {
			return nil, fmt.Errorf("patch %s/%s field %s: %w", collection, id, k, err)
		}
	}

	stmt := "UPDATE documents SET doc = " + s.dialect.docParam() + " WHERE collection = ? AND id = ?"
	if _, err := s.exec(ctx, stmt, string(raw), collection, id.String()); err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}

	return decode(raw)
}

func (s *Store) Delete(ctx context.Context, collection string, id objects.ID) error {
	res, err := s.exec(ctx, "DELETE FROM documents WHERE collection = ? AND id = ?", collection, id.String())
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}

	return nil
}

func (s *Store) Count(ctx context.Context, collection string, filter query.Filter) (int64, error) {
	docs, err := s.Find(ctx, collection, filter)
	if err != nil {
		return 0, err
	}

	return int64(len(docs)), nil
}

// RunInTx runs fn in a database transaction, joining the current one if the
// store is already transactional.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx docstore.Store) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	committed := false

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()

			panic(r)
		}

		if !committed {
			_ = tx.Rollback()
		}
	}()

	txStore := &Store{db: s.db, q: tx, tx: tx, dialect: s.dialect}

	if err := fn(docstore.NewContext(ctx, txStore), txStore); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", docstore.ErrTxAborted, err)
	}

	committed = true

	return nil
}

// Close releases the pool. Transactional views leave it open.
func (s *Store) Close() error {
	if s.tx != nil {
		return nil
	}

	return s.db.Close()
}

func decode(raw []byte) (objects.Document, error) {
	var doc objects.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	return doc, nil
}

var pathEscaper = strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)

// escapePath turns a top-level key into an sjson path.
func escapePath(key string) string {
	return pathEscaper.Replace(key)
}
