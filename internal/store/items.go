package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lazypower/crisp/internal/engagement"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrConflict is returned by ReplaceItem when another writer committed a new
// version of the document between our read and our write.
var ErrConflict = errors.New("content item version conflict")

// NewID returns a fresh opaque identifier for items and answers.
func NewID() string {
	return uuid.NewString()
}

// CreateItem inserts a new content item. Missing item and answer IDs are
// generated; an existing ID is rejected.
func (db *DB) CreateItem(ctx context.Context, item *engagement.ContentItem) error {
	now := time.Now().UnixMilli()
	if item.ID == "" {
		item.ID = NewID()
	}
	for i := range item.Answers {
		if item.Answers[i].ID == "" {
			item.Answers[i].ID = NewID()
		}
	}
	if item.CreatedAt == 0 {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	if err := item.Validate(); err != nil {
		return err
	}

	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item %s: %w", item.ID, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO content_items (id, doc, version, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
	`, item.ID, string(doc), item.CreatedAt, item.UpdatedAt)
	if isDuplicateKey(err) {
		return fmt.Errorf("create item %s: %w", item.ID, engagement.ErrItemExists)
	}
	if err != nil {
		return fmt.Errorf("create item %s: %w", item.ID, err)
	}
	return nil
}

// GetItem returns the stored document. A missing item is engagement.ErrNotFound.
func (db *DB) GetItem(ctx context.Context, id string) (*engagement.ContentItem, error) {
	item, _, err := getItem(ctx, db.DB, id)
	return item, err
}

// ReplaceItem runs a read-modify-write of one document inside a transaction.
// mutate receives the value read in the same transaction; returning an error
// aborts without writing. The write only succeeds if the version read is
// still current, otherwise ErrConflict is returned and nothing is written.
func (db *DB) ReplaceItem(ctx context.Context, id string, mutate func(*engagement.ContentItem) error) (*engagement.ContentItem, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin replace %s: %w", id, err)
	}
	defer tx.Rollback()

	item, version, err := getItem(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(item); err != nil {
		return nil, err
	}
	item.ID = id
	item.UpdatedAt = time.Now().UnixMilli()

	doc, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode item %s: %w", id, err)
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE content_items SET doc = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, string(doc), item.UpdatedAt, id, version)
	if isBusy(err) {
		return nil, fmt.Errorf("replace item %s: %w", id, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("replace item %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("replace item %s: %w", id, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("replace item %s: %w", id, ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		if isBusy(err) {
			return nil, fmt.Errorf("commit item %s: %w", id, ErrConflict)
		}
		return nil, fmt.Errorf("commit item %s: %w", id, err)
	}
	return item, nil
}

// ListItemIDs returns all item IDs, most recently updated first.
func (db *DB) ListItemIDs(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM content_items ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan item id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ItemVersion returns the current version counter of an item.
func (db *DB) ItemVersion(ctx context.Context, id string) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, `SELECT version FROM content_items WHERE id = ?`, id).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("item %s: %w", id, engagement.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("item version %s: %w", id, err)
	}
	return v, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getItem(ctx context.Context, q querier, id string) (*engagement.ContentItem, int64, error) {
	var doc string
	var version int64
	err := q.QueryRowContext(ctx, `SELECT doc, version FROM content_items WHERE id = ?`, id).Scan(&doc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("item %s: %w", id, engagement.ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get item %s: %w", id, err)
	}

	var item engagement.ContentItem
	if err := json.Unmarshal([]byte(doc), &item); err != nil {
		return nil, 0, fmt.Errorf("decode item %s: %w", id, err)
	}
	return &item, version, nil
}

// isBusy reports whether err is SQLite refusing a write because another
// connection holds the lock or committed past our read snapshot.
func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

func isDuplicateKey(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
