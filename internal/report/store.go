// Package report provides PostgreSQL-backed storage for abuse reports filed
// against content and users.
package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/whisper/moderation/internal/entity"
)

// Store manages abuse reports in PostgreSQL. The schema is created by
// tracker.Migrate.
type Store struct {
	db *sql.DB
}

// NewStore creates a new report store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateReport inserts entry. ReporterHasPriorComplaint is computed in the
// same statement from earlier reports by the same reporter against the same
// target, and written back to entry.
func (s *Store) CreateReport(ctx context.Context, entry *entity.ReportEntry) error {
	if !entity.ValidReason(entry.Reason) {
		return fmt.Errorf("report: invalid reason %q", entry.Reason)
	}

	const query = `
		INSERT INTO report_entries
			(report_handle, kind, app_handle, content_type, content_handle,
			 reported_user_handle, reporter_handle, reason, created_at,
			 reporter_has_prior_complaint)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9,
			EXISTS (
				SELECT 1 FROM report_entries
				WHERE kind = $2 AND app_handle = $3 AND reporter_handle = $7
				  AND CASE WHEN $2 = 'user' THEN reported_user_handle = $6
				           ELSE content_type = $4 AND content_handle = $5 END))
		RETURNING reporter_has_prior_complaint`

	err := s.db.QueryRowContext(ctx, query,
		entry.ReportHandle,
		string(entry.Kind),
		entry.AppHandle,
		string(entry.ContentType),
		entry.ContentHandle,
		entry.ReportedUserHandle,
		entry.ReporterHandle,
		entry.Reason,
		entry.CreatedAt,
	).Scan(&entry.ReporterHasPriorComplaint)
	if err != nil {
		return fmt.Errorf("report: insert: %w", err)
	}
	return nil
}

// ReadReport returns the report with the given handle, or nil if there is none.
func (s *Store) ReadReport(ctx context.Context, reportHandle string) (*entity.ReportEntry, error) {
	const query = `
		SELECT report_handle, kind, app_handle, content_type, content_handle,
		       reported_user_handle, reporter_handle, reason, created_at,
		       reporter_has_prior_complaint
		FROM report_entries
		WHERE report_handle = $1`

	var (
		e                 entity.ReportEntry
		kind, contentType string
	)
	err := s.db.QueryRowContext(ctx, query, reportHandle).Scan(
		&e.ReportHandle,
		&kind,
		&e.AppHandle,
		&contentType,
		&e.ContentHandle,
		&e.ReportedUserHandle,
		&e.ReporterHandle,
		&e.Reason,
		&e.CreatedAt,
		&e.ReporterHasPriorComplaint,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("report: read: %w", err)
	}
	e.Kind = entity.ReportKind(kind)
	if contentType != "" {
		e.ContentType = entity.ParseContentType(contentType)
	}
	return &e, nil
}

// CountReports returns the number of reports filed against the same target
// as entry within its app, over all time. Content targets are keyed by
// content type and handle, user targets by the reported user.
func (s *Store) CountReports(ctx context.Context, entry *entity.ReportEntry) (int, error) {
	var (
		count int
		err   error
	)
	if entry.Kind == entity.ReportUser {
		const query = `SELECT COUNT(*) FROM report_entries WHERE kind = $1 AND app_handle = $2 AND reported_user_handle = $3`
		err = s.db.QueryRowContext(ctx, query, string(entry.Kind), entry.AppHandle, entry.ReportedUserHandle).Scan(&count)
	} else {
		const query = `SELECT COUNT(*) FROM report_entries WHERE kind = $1 AND app_handle = $2 AND content_handle = $3 AND content_type = $4`
		err = s.db.QueryRowContext(ctx, query, string(entry.Kind), entry.AppHandle, entry.ContentHandle, string(entry.ContentType)).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("report: count: %w", err)
	}
	return count, nil
}
