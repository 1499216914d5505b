// Package pg implements the document store on Postgres. Documents and
// collection rows live in jsonb columns; serializable transactions provide
// the abort-on-conflict primitive.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"chariotek.org/internal/docstore"
	"chariotek.org/internal/ids"
)

type Store struct {
	db *sql.DB
}

var _ docstore.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection pool (used by tests and cmd wiring).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Get(ctx context.Context, path string) (map[string]any, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `select doc from documents where path=$1`, path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeDoc(raw)
}

type pgTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *pgTx) Get(path string) (map[string]any, error) {
	var raw []byte
	err := t.tx.QueryRowContext(t.ctx, `select doc from documents where path=$1`, path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeDoc(raw)
}

func (t *pgTx) Set(path string, value map[string]any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(t.ctx, `
		insert into documents(path, doc, updated_at)
		values ($1,$2,now())
		on conflict (path) do update
		set doc = excluded.doc, updated_at = now()
	`, path, data)
	return err
}

func (t *pgTx) Delete(path string) error {
	_, err := t.tx.ExecContext(t.ctx, `delete from documents where path=$1`, path)
	return err
}

// RunTransaction runs fn inside a serializable transaction. Serialization
// failures surface as ErrConflict so callers see one conflict error
// regardless of the backing store.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&pgTx{ctx: ctx, tx: tx}); err != nil {
		return translateErr(err)
	}
	if err := tx.Commit(); err != nil {
		return translateErr(err)
	}
	return nil
}

func (s *Store) AddToCollection(ctx context.Context, collection string, value map[string]any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	id := ids.New()
	if _, err := s.db.ExecContext(ctx, `
		insert into collection_rows(id, collection, doc, created_at)
		values ($1,$2,$3,now())
	`, id, collection, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) QueryCollection(ctx context.Context, collection string, q docstore.Query) ([]docstore.Row, error) {
	args := []any{collection}
	conds := []string{"collection = $1"}

	for _, f := range q.Filters {
		op := "="
		switch f.Op {
		case docstore.OpAtLeast:
			op = ">="
		case docstore.OpAtMost:
			op = "<="
		}
		args = append(args, f.Field)
		fieldPh := len(args)
		args = append(args, fmt.Sprintf("%v", f.Value))
		conds = append(conds, fmt.Sprintf("doc->>$%d %s $%d", fieldPh, op, len(args)))
	}

	orderExpr := "id"
	if q.OrderBy != "" {
		args = append(args, q.OrderBy)
		orderExpr = fmt.Sprintf("doc->>$%d", len(args))
		if q.OrderNumeric {
			orderExpr = fmt.Sprintf("(doc->>$%d)::numeric", len(args))
		}
	}

	// Keyset cursor: resume strictly after the named row in sort order.
	if q.AfterID != "" {
		cmp := ">"
		if q.Desc {
			cmp = "<"
		}
		args = append(args, q.AfterID)
		ph := len(args)
		if q.OrderBy == "" {
			conds = append(conds, fmt.Sprintf("id %s $%d", cmp, ph))
		} else {
			conds = append(conds, fmt.Sprintf(
				"(%s, id) %s ((select %s from collection_rows where id = $%d), $%d)",
				orderExpr, cmp, orderExpr, ph, ph))
		}
	}

	dir := ""
	if q.Desc {
		dir = " desc"
	}
	query := fmt.Sprintf(`
		select id, doc from collection_rows
		where %s
		order by %s%s, id%s
	`, strings.Join(conds, " and "), orderExpr, dir, dir)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" limit $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []docstore.Row
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, docstore.Row{ID: id, Value: doc})
	}
	return out, rows.Err()
}

func (s *Store) DeleteFromCollection(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from collection_rows where collection=$1 and id=$2`, collection, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func decodeDoc(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// translateErr maps Postgres serialization failures (SQLSTATE 40001) onto
// the store-level conflict error.
func translateErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "40001" {
		return docstore.ErrConflict
	}
	return err
}
