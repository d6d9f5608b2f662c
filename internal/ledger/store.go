package ledger

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/hbomb79/Reel/internal/database"
)

const ledgerTable = "job_ledger"

var ledgerColumns = []string{"id", "job_id", "url", "mode", "stage", "status", "filename", "error_kind", "error", "created_at"}

// Store is a Sink backed by the 'job_ledger' table in PostgreSQL.
type Store struct {
	db func() database.Queryable
}

// NewStore constructs a Store which obtains it's connection from the function
// provided. The function is called for each operation, allowing the store to
// be constructed before the database connection is established.
func NewStore(db func() database.Queryable) *Store {
	return &Store{db: db}
}

func (store *Store) Append(ctx context.Context, record Record) error {
	query, args, err := squirrel.Insert(ledgerTable).
		Columns(ledgerColumns...).
		Values(record.ID, record.JobID, record.URL, record.Mode, record.Stage, record.Status, record.Filename, record.ErrorKind, record.Error, record.CreatedAt).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build ledger insert: %w", err)
	}

	if _, err := store.db().ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert ledger record %s: %w", record.ID, err)
	}

	return nil
}

func (store *Store) QueryByURL(ctx context.Context, url string) ([]Record, error) {
	query, args, err := squirrel.Select(ledgerColumns...).
		From(ledgerTable).
		Where(squirrel.Eq{"url": url}).
		OrderBy("created_at DESC", "seq DESC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build ledger query: %w", err)
	}

	records := make([]Record, 0)
	if err := store.db().SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query ledger for url %s: %w", url, err)
	}

	return records, nil
}
