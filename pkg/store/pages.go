package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/pennsieve/agent/internal/agenterrors"
	"github.com/pennsieve/agent/internal/telemetry"
)

// PageRecord mirrors the page_record table: one row per cached page,
// keyed by the page's content-addressed id (see pkg/pagefile).
type PageRecord struct {
	ID        string
	NanFilled bool
	Complete  bool
	Size      int64
	LastUsed  string
}

// UpsertPage inserts a new page row or, if id already exists, replaces
// it in place (last_used bumped to now by the caller via the record's
// LastUsed field).
func (s *Store) UpsertPage(ctx context.Context, p PageRecord) error {
	ctx, span := telemetry.StartStoreSpan(ctx, "upsert_page", telemetry.PageID(p.ID), telemetry.StoreTable("page_record"))
	defer span.End()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO page_record (id, nan_filled, complete, size, last_used)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			nan_filled = excluded.nan_filled,
			complete = excluded.complete,
			size = excluded.size,
			last_used = excluded.last_used
	`, p.ID, p.NanFilled, p.Complete, p.Size, p.LastUsed)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return agenterrors.Wrap(agenterrors.CodeIO, "upserting page record", err)
	}
	return nil
}

// WriteNanFilled marks an existing page as NaN-filled and sets its
// completeness, without touching size or last_used.
func (s *Store) WriteNanFilled(ctx context.Context, id string, complete bool) error {
	ctx, span := telemetry.StartStoreSpan(ctx, "write_nan_filled", telemetry.PageID(id))
	defer span.End()

	res, err := s.db.ExecContext(ctx, `
		UPDATE page_record SET nan_filled = 1, complete = ? WHERE id = ?
	`, complete, id)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return agenterrors.Wrap(agenterrors.CodeIO, "writing nan-filled page", err)
	}
	return requireRowsAffected(res, id)
}

// TouchLastUsed bumps a page's last_used timestamp to now. Per
// spec.md §4.1, this runs on every touched page including cache
// misses that subsequently populate the page, so a freshly-written
// page is never immediately eviction-eligible.
func (s *Store) TouchLastUsed(ctx context.Context, id string) error {
	ctx, span := telemetry.StartStoreSpan(ctx, "touch_last_used", telemetry.PageID(id))
	defer span.End()

	res, err := s.db.ExecContext(ctx, `
		UPDATE page_record SET last_used = ? WHERE id = ?
	`, nowTimestamp(), id)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return agenterrors.Wrap(agenterrors.CodeIO, "touching page last_used", err)
	}
	return requireRowsAffected(res, id)
}

// GetPage returns the page row for id, or a CodeNotFound error if no
// such page is tracked.
func (s *Store) GetPage(ctx context.Context, id string) (*PageRecord, error) {
	ctx, span := telemetry.StartStoreSpan(ctx, "get_page", telemetry.PageID(id))
	defer span.End()

	var p PageRecord
	row := s.db.QueryRowContext(ctx, `
		SELECT id, nan_filled, complete, size, last_used FROM page_record WHERE id = ?
	`, id)
	if err := row.Scan(&p.ID, &p.NanFilled, &p.Complete, &p.Size, &p.LastUsed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, agenterrors.New(agenterrors.CodeNotFound, "page not found: "+id)
		}
		telemetry.RecordError(ctx, err)
		return nil, agenterrors.Wrap(agenterrors.CodeIO, "getting page record", err)
	}
	return &p, nil
}

// DeletePage removes a page's metadata row. Callers delete the backing
// PageFile afterwards (the collector deletes the row, then the file),
// so a crash mid-eviction may leak a file but never leaves a row
// pointing at a missing file.
func (s *Store) DeletePage(ctx context.Context, id string) error {
	ctx, span := telemetry.StartStoreSpan(ctx, "delete_page", telemetry.PageID(id))
	defer span.End()

	_, err := s.db.ExecContext(ctx, `DELETE FROM page_record WHERE id = ?`, id)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return agenterrors.Wrap(agenterrors.CodeIO, "deleting page record", err)
	}
	return nil
}

// IsPageCached reports whether a row for id exists at all.
func (s *Store) IsPageCached(ctx context.Context, id string) (bool, error) {
	var exists bool
	row := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM page_record WHERE id = ?)`, id)
	if err := row.Scan(&exists); err != nil {
		return false, agenterrors.Wrap(agenterrors.CodeIO, "checking page cached", err)
	}
	return exists, nil
}

// IsPageNan reports whether the page for id is marked nan_filled. It
// returns CodeNotFound if the page isn't tracked.
func (s *Store) IsPageNan(ctx context.Context, id string) (bool, error) {
	p, err := s.GetPage(ctx, id)
	if err != nil {
		return false, err
	}
	return p.NanFilled, nil
}

// GetTotalSize returns the sum of size across all tracked pages,
// i.e. the cache's current on-disk footprint.
func (s *Store) GetTotalSize(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	row := s.db.QueryRowContext(ctx, `SELECT SUM(size) FROM page_record`)
	if err := row.Scan(&total); err != nil {
		return 0, agenterrors.Wrap(agenterrors.CodeIO, "summing page sizes", err)
	}
	if !total.Valid {
		return 0, nil
	}
	return total.Int64, nil
}

// GetSoftAgedPages returns pages eligible for soft eviction: never
// NaN-filled (a NaN-filled page represents "known gap" metadata, not
// reusable disk content, so the soft pass leaves it alone) and not
// used since olderThan, oldest-first.
func (s *Store) GetSoftAgedPages(ctx context.Context, olderThan string) ([]PageRecord, error) {
	ctx, span := telemetry.StartCacheSpan(ctx, "soft_aged_pages")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, nan_filled, complete, size, last_used
		FROM page_record
		WHERE nan_filled = 0 AND last_used < ?
		ORDER BY last_used ASC
	`, olderThan)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, agenterrors.Wrap(agenterrors.CodeIO, "querying soft-aged pages", err)
	}
	defer rows.Close()
	return scanPageRows(rows)
}

// GetHardAgedPages returns all pages not used since olderThan,
// regardless of nan_filled, oldest-first. Used by the collector's
// hard eviction cycle when the soft pass alone didn't free enough
// space.
func (s *Store) GetHardAgedPages(ctx context.Context, olderThan string) ([]PageRecord, error) {
	ctx, span := telemetry.StartCacheSpan(ctx, "hard_aged_pages")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, nan_filled, complete, size, last_used
		FROM page_record
		WHERE last_used < ?
		ORDER BY last_used ASC
	`, olderThan)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, agenterrors.Wrap(agenterrors.CodeIO, "querying hard-aged pages", err)
	}
	defer rows.Close()
	return scanPageRows(rows)
}

func scanPageRows(rows *sql.Rows) ([]PageRecord, error) {
	var out []PageRecord
	for rows.Next() {
		var p PageRecord
		if err := rows.Scan(&p.ID, &p.NanFilled, &p.Complete, &p.Size, &p.LastUsed); err != nil {
			return nil, agenterrors.Wrap(agenterrors.CodeIO, "scanning page record", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, agenterrors.Wrap(agenterrors.CodeIO, "iterating page records", err)
	}
	return out, nil
}

func requireRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return agenterrors.Wrap(agenterrors.CodeIO, "checking rows affected", err)
	}
	if n == 0 {
		return agenterrors.New(agenterrors.CodeNotFound, "page not found: "+id)
	}
	return nil
}
