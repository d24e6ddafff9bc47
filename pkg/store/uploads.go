package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/pennsieve/agent/internal/agenterrors"
	"github.com/pennsieve/agent/internal/telemetry"
)

// UploadStatus is the upload_record.status state machine value
// (spec.md §4.5): Queued -> InProgress -> Completed, with InProgress
// able to fall back to Queued (stall retry) or Failed (aged out), and
// Failed able to return to Queued if the user resumes it.
type UploadStatus string

const (
	StatusQueued     UploadStatus = "Queued"
	StatusInProgress UploadStatus = "InProgress"
	StatusCompleted  UploadStatus = "Completed"
	StatusFailed     UploadStatus = "Failed"
)

// UploadRecord mirrors the upload_record table, including the columns
// added by migration 0001 (append, upload_service, organization_id,
// chunk_size, multipart_upload_id).
type UploadRecord struct {
	ID                int64
	FilePath          string
	DatasetID         string
	PackageID         sql.NullString
	ImportID          string
	Progress          int64
	Status            UploadStatus
	CreatedAt         string
	UpdatedAt         string
	Append            bool
	UploadService     bool
	OrganizationID    string
	ChunkSize         sql.NullInt64
	MultipartUploadID sql.NullString
}

// InsertUpload creates a new upload_record row in the Queued state.
// CreatedAt/UpdatedAt are stamped to now; the caller supplies every
// other field.
func (s *Store) InsertUpload(ctx context.Context, u UploadRecord) (int64, error) {
	ctx, span := telemetry.StartStoreSpan(ctx, "insert_upload", telemetry.StoreTable("upload_record"))
	defer span.End()

	now := nowTimestamp()
	createdAt, updatedAt := now, now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO upload_record (
			file_path, dataset_id, package_id, import_id, progress, status,
			created_at, updated_at, append, upload_service, organization_id,
			chunk_size, multipart_upload_id
		) VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.FilePath, u.DatasetID, u.PackageID, u.ImportID, StatusQueued,
		createdAt, updatedAt, u.Append, u.UploadService, u.OrganizationID, u.ChunkSize, u.MultipartUploadID)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return 0, agenterrors.Wrap(agenterrors.CodeIO, "inserting upload record", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, agenterrors.Wrap(agenterrors.CodeIO, "reading inserted upload id", err)
	}
	return id, nil
}

// GetUpload returns a single upload_record row by id.
func (s *Store) GetUpload(ctx context.Context, id int64) (*UploadRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_path, dataset_id, package_id, import_id, progress, status,
			created_at, updated_at, append, upload_service, organization_id,
			chunk_size, multipart_upload_id
		FROM upload_record WHERE id = ?
	`, id)
	u, err := scanUploadRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, agenterrors.New(agenterrors.CodeNotFound, "upload not found")
		}
		return nil, agenterrors.Wrap(agenterrors.CodeIO, "getting upload record", err)
	}
	return u, nil
}

// ListUploadsByImport returns every upload_record row sharing
// importID, for import-group-level status rollups.
func (s *Store) ListUploadsByImport(ctx context.Context, importID string) ([]UploadRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_path, dataset_id, package_id, import_id, progress, status,
			created_at, updated_at, append, upload_service, organization_id,
			chunk_size, multipart_upload_id
		FROM upload_record WHERE import_id = ?
	`, importID)
	if err != nil {
		return nil, agenterrors.Wrap(agenterrors.CodeIO, "listing uploads by import", err)
	}
	defer rows.Close()
	return scanUploadRows(rows)
}

// ListQueuedUploads returns every Queued upload, grouped implicitly by
// import_id via the caller's own aggregation (spec.md §4.5 step:
// "snapshot Queued (by import_id)").
func (s *Store) ListQueuedUploads(ctx context.Context) ([]UploadRecord, error) {
	return s.listUploadsByStatus(ctx, StatusQueued)
}

// ListInProgressUploads returns every InProgress upload.
func (s *Store) ListInProgressUploads(ctx context.Context) ([]UploadRecord, error) {
	return s.listUploadsByStatus(ctx, StatusInProgress)
}

func (s *Store) listUploadsByStatus(ctx context.Context, status UploadStatus) ([]UploadRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_path, dataset_id, package_id, import_id, progress, status,
			created_at, updated_at, append, upload_service, organization_id,
			chunk_size, multipart_upload_id
		FROM upload_record WHERE status = ?
		ORDER BY created_at ASC
	`, status)
	if err != nil {
		return nil, agenterrors.Wrap(agenterrors.CodeIO, "listing uploads by status", err)
	}
	defer rows.Close()
	return scanUploadRows(rows)
}

// ListWatchedUploads returns every upload that is still active
// (Queued or InProgress) plus any upload created at or after since,
// regardless of status. This is the UploadWatcher's snapshot query:
// it needs to keep reporting on a row after it reaches a terminal
// state, but only for uploads queued during the current watch.
func (s *Store) ListWatchedUploads(ctx context.Context, since string) ([]UploadRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_path, dataset_id, package_id, import_id, progress, status,
			created_at, updated_at, append, upload_service, organization_id,
			chunk_size, multipart_upload_id
		FROM upload_record
		WHERE status IN (?, ?) OR created_at >= ?
		ORDER BY created_at ASC
	`, StatusQueued, StatusInProgress, since)
	if err != nil {
		return nil, agenterrors.Wrap(agenterrors.CodeIO, "listing watched uploads", err)
	}
	defer rows.Close()
	return scanUploadRows(rows)
}

// UpdateImportStatus transitions every upload in importID to status,
// bumping updated_at.
func (s *Store) UpdateImportStatus(ctx context.Context, importID string, status UploadStatus) error {
	ctx, span := telemetry.StartStoreSpan(ctx, "update_import_status", telemetry.ImportID(importID))
	defer span.End()

	_, err := s.db.ExecContext(ctx, `
		UPDATE upload_record SET status = ?, updated_at = ? WHERE import_id = ?
	`, status, nowTimestamp(), importID)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return agenterrors.Wrap(agenterrors.CodeIO, "updating import status", err)
	}
	return nil
}

// UpdateImportStatusAndProgress transitions every upload in importID
// to status and resets progress, bumping updated_at. Used when
// starting a group (status=InProgress, progress=0).
func (s *Store) UpdateImportStatusAndProgress(ctx context.Context, importID string, status UploadStatus, progress int64) error {
	ctx, span := telemetry.StartStoreSpan(ctx, "update_import_status_and_progress", telemetry.ImportID(importID))
	defer span.End()

	_, err := s.db.ExecContext(ctx, `
		UPDATE upload_record SET status = ?, progress = ?, updated_at = ? WHERE import_id = ?
	`, status, progress, nowTimestamp(), importID)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return agenterrors.Wrap(agenterrors.CodeIO, "updating import status and progress", err)
	}
	return nil
}

// UpdateFileProgress advances a single upload's progress. Per
// spec.md §4.1 this is monotonic: a write with progress <= the
// current stored value is rejected rather than silently ignored, so
// a stale/out-of-order callback from a retried chunk can never move
// progress backwards.
func (s *Store) UpdateFileProgress(ctx context.Context, id int64, progress int64) error {
	ctx, span := telemetry.StartStoreSpan(ctx, "update_file_progress", telemetry.UploadID(id))
	defer span.End()

	res, err := s.db.ExecContext(ctx, `
		UPDATE upload_record SET progress = ?, updated_at = ?
		WHERE id = ? AND progress < ?
	`, progress, nowTimestamp(), id, progress)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return agenterrors.Wrap(agenterrors.CodeIO, "updating file progress", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return agenterrors.Wrap(agenterrors.CodeIO, "checking file progress rows affected", err)
	}
	if n == 0 {
		return agenterrors.New(agenterrors.CodeInvalidArgument, "upload progress must be strictly increasing")
	}
	return nil
}

// ResetStalledUploads moves every InProgress row back to Queued,
// zeroing progress for rows where upload_service is false (a
// service-side multipart upload can resume from its recorded
// chunk_size/multipart_upload_id, so its progress is preserved; a
// client-streamed upload has no resumable handle and must restart
// from zero). Called once at agent startup per spec.md §4.5.
func (s *Store) ResetStalledUploads(ctx context.Context) (int64, error) {
	ctx, span := telemetry.StartStoreSpan(ctx, "reset_stalled_uploads", telemetry.StoreTable("upload_record"))
	defer span.End()

	now := nowTimestamp()
	res, err := s.db.ExecContext(ctx, `
		UPDATE upload_record
		SET status = ?, updated_at = ?,
			progress = CASE WHEN upload_service = 0 THEN 0 ELSE progress END
		WHERE status = ?
	`, StatusQueued, now, StatusInProgress)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return 0, agenterrors.Wrap(agenterrors.CodeIO, "resetting stalled uploads", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, agenterrors.Wrap(agenterrors.CodeIO, "checking reset rows affected", err)
	}
	return n, nil
}

// ResumeFailedUpload moves a Failed upload back to Queued, but only
// if it had made partial progress; a Failed upload stuck at progress
// 0 is left alone since resuming it would just repeat the same
// immediate failure.
func (s *Store) ResumeFailedUpload(ctx context.Context, id int64) error {
	ctx, span := telemetry.StartStoreSpan(ctx, "resume_failed_upload", telemetry.UploadID(id))
	defer span.End()

	res, err := s.db.ExecContext(ctx, `
		UPDATE upload_record SET status = ?, updated_at = ?
		WHERE id = ? AND status = ? AND progress > 0
	`, StatusQueued, nowTimestamp(), id, StatusFailed)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return agenterrors.Wrap(agenterrors.CodeIO, "resuming failed upload", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return agenterrors.Wrap(agenterrors.CodeIO, "checking resume rows affected", err)
	}
	if n == 0 {
		return agenterrors.New(agenterrors.CodeInvalidArgument, "upload is not a resumable failed upload")
	}
	return nil
}

// CancelUpload deletes an upload row, but only if it is still Queued
// or InProgress; a Completed or Failed upload is left as a durable
// record of what happened. The upload engine discovers a cancellation
// lazily: it simply stops finding the row on its next scan.
func (s *Store) CancelUpload(ctx context.Context, id int64) error {
	ctx, span := telemetry.StartStoreSpan(ctx, "cancel_upload", telemetry.UploadID(id))
	defer span.End()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM upload_record WHERE id = ? AND status IN (?, ?)
	`, id, StatusQueued, StatusInProgress)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return agenterrors.Wrap(agenterrors.CodeIO, "cancelling upload", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return agenterrors.Wrap(agenterrors.CodeIO, "checking cancel rows affected", err)
	}
	if n == 0 {
		return agenterrors.New(agenterrors.CodeInvalidArgument, "upload is not cancellable")
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanUploadRow(row scannable) (*UploadRecord, error) {
	var u UploadRecord
	if err := row.Scan(
		&u.ID, &u.FilePath, &u.DatasetID, &u.PackageID, &u.ImportID, &u.Progress, &u.Status,
		&u.CreatedAt, &u.UpdatedAt, &u.Append, &u.UploadService, &u.OrganizationID,
		&u.ChunkSize, &u.MultipartUploadID,
	); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanUploadRows(rows *sql.Rows) ([]UploadRecord, error) {
	var out []UploadRecord
	for rows.Next() {
		u, err := scanUploadRow(rows)
		if err != nil {
			return nil, agenterrors.Wrap(agenterrors.CodeIO, "scanning upload record", err)
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, agenterrors.Wrap(agenterrors.CodeIO, "iterating upload records", err)
	}
	return out, nil
}
