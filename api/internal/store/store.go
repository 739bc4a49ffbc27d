// Package store — сохранение документов: своя Postgres-таблица или бэкенд /documents.
package store

import (
	"context"
	"database/sql"

	"doc-scanner/api/internal/document"
)

var ErrNotFound = sql.ErrNoRows

// Documents — хранилище документов одного владельца (чата).
type Documents interface {
	Create(ctx context.Context, owner int64, doc document.Document) (document.Document, error)
	Get(ctx context.Context, owner int64, id string) (document.Document, error)
	List(ctx context.Context, owner int64, skip, limit int) ([]document.Document, error)
	Update(ctx context.Context, owner int64, doc document.Document) (document.Document, error)
	Delete(ctx context.Context, owner int64, id string) error
}

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

func clampPage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return skip, limit
}
