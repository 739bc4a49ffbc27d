package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"doc-scanner/api/internal/document"
)

// DocumentRepo — документы в Postgres (pgx через database/sql).
type DocumentRepo struct{ DB *sql.DB }

func NewDocumentRepo(db *sql.DB) *DocumentRepo { return &DocumentRepo{DB: db} }

const schema = `
create table if not exists scanned_documents (
  id          text primary key,
  owner_id    bigint not null,
  title       text not null,
  data        jsonb not null,
  created_at  timestamptz not null default now(),
  updated_at  timestamptz not null default now()
);
create index if not exists scanned_documents_owner_idx on scanned_documents (owner_id, created_at desc);`

// EnsureSchema создаёт таблицу, если её нет.
func (r *DocumentRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, schema)
	return err
}

func (r *DocumentRepo) Create(ctx context.Context, owner int64, doc document.Document) (document.Document, error) {
	if err := doc.Validate(); err != nil {
		return document.Document{}, err
	}
	js, err := json.Marshal(doc.Body().Data)
	if err != nil {
		return document.Document{}, err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	const q = `
insert into scanned_documents (id, owner_id, title, data)
values ($1, $2, $3, $4)
returning created_at, updated_at`
	if err := r.DB.QueryRowContext(ctx, q, doc.ID, owner, doc.Title, js).Scan(&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return document.Document{}, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepo) Get(ctx context.Context, owner int64, id string) (document.Document, error) {
	const q = `
select id, title, data, created_at, updated_at
from scanned_documents
where owner_id = $1 and id = $2`
	return scanDocument(r.DB.QueryRowContext(ctx, q, owner, id))
}

func (r *DocumentRepo) List(ctx context.Context, owner int64, skip, limit int) ([]document.Document, error) {
	skip, limit = clampPage(skip, limit)
	const q = `
select id, title, data, created_at, updated_at
from scanned_documents
where owner_id = $1
order by created_at desc
offset $2 limit $3`
	rows, err := r.DB.QueryContext(ctx, q, owner, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []document.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DocumentRepo) Update(ctx context.Context, owner int64, doc document.Document) (document.Document, error) {
	if err := doc.Validate(); err != nil {
		return document.Document{}, err
	}
	js, err := json.Marshal(doc.Body().Data)
	if err != nil {
		return document.Document{}, err
	}
	const q = `
update scanned_documents
set title = $3, data = $4, updated_at = now()
where owner_id = $1 and id = $2
returning created_at, updated_at`
	if err := r.DB.QueryRowContext(ctx, q, owner, doc.ID, doc.Title, js).Scan(&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return document.Document{}, err
	}
	return doc, nil
}

func (r *DocumentRepo) Delete(ctx context.Context, owner int64, id string) error {
	const q = `delete from scanned_documents where owner_id = $1 and id = $2`
	res, err := r.DB.ExecContext(ctx, q, owner, id)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (document.Document, error) {
	var (
		d  document.Document
		js []byte
		ts [2]time.Time
	)
	if err := row.Scan(&d.ID, &d.Title, &js, &ts[0], &ts[1]); err != nil {
		return document.Document{}, err
	}
	var data document.BodyData
	if err := json.Unmarshal(js, &data); err != nil {
		return document.Document{}, fmt.Errorf("document %s: bad data: %w", d.ID, err)
	}
	d.Pages = data.Pages
	d.CreatedAt, d.UpdatedAt = ts[0], ts[1]
	return d, nil
}
