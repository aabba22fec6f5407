// Package tracker provides PostgreSQL-backed storage for moderation
// transactions and the records that map them back to content.
package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/whisper/moderation/internal/entity"
)

// ErrDuplicate is returned when a transaction handle is already tracked.
var ErrDuplicate = errors.New("tracker: duplicate handle")

const uniqueViolation = "23505"

// Store manages moderation transactions and records in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a tracker store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateSubmission inserts tx and rec in one database transaction.
func (s *Store) CreateSubmission(ctx context.Context, tx *entity.Transaction, rec *entity.Record) error {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tracker: begin: %w", err)
	}
	defer dbtx.Rollback() //nolint:errcheck

	const insertTx = `
		INSERT INTO moderation_transactions
			(handle, app_handle, kind, provider, submitted_at, request_payload,
			 provider_job_id, callback_address, responded_at, response_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = dbtx.ExecContext(ctx, insertTx,
		tx.Handle,
		tx.AppHandle,
		string(tx.Kind),
		tx.Provider,
		tx.SubmittedAt,
		tx.RequestPayload,
		tx.ProviderJobID,
		tx.CallbackAddress,
		tx.RespondedAt,
		tx.ResponsePayload,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicate, tx.Handle)
		}
		return fmt.Errorf("tracker: insert transaction: %w", err)
	}

	contentType := rec.ContentType
	if contentType == "" {
		contentType = entity.ContentUnknown
	}

	const insertRec = `
		INSERT INTO moderation_records
			(handle, app_handle, content_type, content_handle, user_handle,
			 image_handle, image_kind, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = dbtx.ExecContext(ctx, insertRec,
		rec.Handle,
		rec.AppHandle,
		string(contentType),
		rec.ContentHandle,
		rec.UserHandle,
		rec.ImageHandle,
		string(rec.ImageKind),
		string(rec.Status),
	)
	if err != nil {
		return fmt.Errorf("tracker: insert record: %w", err)
	}

	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("tracker: commit: %w", err)
	}
	return nil
}

// ReadTransaction returns the transaction for handle, or nil if there is none.
func (s *Store) ReadTransaction(ctx context.Context, handle string) (*entity.Transaction, error) {
	const query = `
		SELECT handle, app_handle, kind, provider, submitted_at, request_payload,
		       provider_job_id, callback_address, responded_at, response_payload
		FROM moderation_transactions
		WHERE handle = $1`

	var (
		tx          entity.Transaction
		kind        string
		respondedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, handle).Scan(
		&tx.Handle,
		&tx.AppHandle,
		&kind,
		&tx.Provider,
		&tx.SubmittedAt,
		&tx.RequestPayload,
		&tx.ProviderJobID,
		&tx.CallbackAddress,
		&respondedAt,
		&tx.ResponsePayload,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tracker: read transaction: %w", err)
	}
	tx.Kind = entity.ModerationKind(kind)
	if respondedAt.Valid {
		t := respondedAt.Time
		tx.RespondedAt = &t
	}
	return &tx, nil
}

// TransactionExists reports whether a transaction for handle was stored.
func (s *Store) TransactionExists(ctx context.Context, handle string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM moderation_transactions WHERE handle = $1)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, handle).Scan(&exists); err != nil {
		return false, fmt.Errorf("tracker: transaction exists: %w", err)
	}
	return exists, nil
}

// RecordResponse stores the provider response, replacing any earlier one.
func (s *Store) RecordResponse(ctx context.Context, handle string, payload []byte, at time.Time) error {
	const query = `
		UPDATE moderation_transactions
		SET response_payload = $2, responded_at = $3
		WHERE handle = $1`

	res, err := s.db.ExecContext(ctx, query, handle, payload, at)
	if err != nil {
		return fmt.Errorf("tracker: record response: %w", err)
	}
	return expectOne(res, "record response", handle)
}

// ReadRecord returns the record for handle, or nil if there is none.
func (s *Store) ReadRecord(ctx context.Context, handle string) (*entity.Record, error) {
	const query = `
		SELECT handle, app_handle, content_type, content_handle, user_handle,
		       image_handle, image_kind, status
		FROM moderation_records
		WHERE handle = $1`

	var (
		rec                            entity.Record
		contentType, imageKind, status string
	)
	err := s.db.QueryRowContext(ctx, query, handle).Scan(
		&rec.Handle,
		&rec.AppHandle,
		&contentType,
		&rec.ContentHandle,
		&rec.UserHandle,
		&rec.ImageHandle,
		&imageKind,
		&status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tracker: read record: %w", err)
	}
	rec.ContentType = entity.ParseContentType(contentType)
	rec.ImageKind = entity.ImageKind(imageKind)
	rec.Status = entity.RecordStatus(status)
	return &rec, nil
}

// UpdateRecordStatus sets the processing status of a record.
func (s *Store) UpdateRecordStatus(ctx context.Context, handle string, status entity.RecordStatus) error {
	const query = `
		UPDATE moderation_records
		SET status = $2, updated_at = NOW()
		WHERE handle = $1`

	res, err := s.db.ExecContext(ctx, query, handle, string(status))
	if err != nil {
		return fmt.Errorf("tracker: update record status: %w", err)
	}
	return expectOne(res, "update record status", handle)
}

func expectOne(res sql.Result, op, handle string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("tracker: %s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("tracker: %s: no row for %s", op, handle)
	}
	return nil
}
