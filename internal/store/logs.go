package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"jobscout-engine/internal/domain"
)

const logCols = `id, session_id, company_id, company_name, platform, status,
jobs_found, jobs_added, jobs_updated, jobs_filtered, jobs_archived, error_message,
matcher_status, matcher_jobs_total, matcher_jobs_completed, matcher_error_count, matcher_duration_ms,
started_at, completed_at, duration_ms`

func scanLog(row interface{ Scan(...any) error }) (domain.ScrapingLog, error) {
	var l domain.ScrapingLog
	var started string
	var completed sql.NullString
	if err := row.Scan(&l.ID, &l.SessionID, &l.CompanyID, &l.CompanyName, &l.Platform, &l.Status,
		&l.JobsFound, &l.JobsAdded, &l.JobsUpdated, &l.JobsFiltered, &l.JobsArchived, &l.ErrorMessage,
		&l.MatcherStatus, &l.MatcherJobsTotal, &l.MatcherJobsCompleted, &l.MatcherErrorCount, &l.MatcherDurationMS,
		&started, &completed, &l.DurationMS); err != nil {
		return domain.ScrapingLog{}, err
	}
	l.StartedAt = parseTimeText(started)
	l.CompletedAt = parseTimeTextPtr(completed)
	return l, nil
}

func (d *DB) CreateScrapingLog(ctx context.Context, row *domain.ScrapingLog) (int64, error) {
	if row.StartedAt.IsZero() {
		row.StartedAt = time.Now().UTC()
	}
	res, err := d.Pool.ExecContext(ctx, `
INSERT INTO scraping_logs (session_id, company_id, company_name, platform, status,
  jobs_found, jobs_added, jobs_updated, jobs_filtered, jobs_archived, error_message,
  matcher_status, matcher_jobs_total, matcher_jobs_completed, matcher_error_count, matcher_duration_ms,
  started_at, completed_at, duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		row.SessionID, row.CompanyID, row.CompanyName, row.Platform, row.Status,
		row.JobsFound, row.JobsAdded, row.JobsUpdated, row.JobsFiltered, row.JobsArchived, row.ErrorMessage,
		row.MatcherStatus, row.MatcherJobsTotal, row.MatcherJobsCompleted, row.MatcherErrorCount, row.MatcherDurationMS,
		timeText(row.StartedAt), timeTextPtr(row.CompletedAt), row.DurationMS)
	if err != nil {
		return 0, fmt.Errorf("insert scraping log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	row.ID = id
	return id, nil
}

// UpdateScrapingLog applies a partial patch; nil fields are left alone.
func (d *DB) UpdateScrapingLog(ctx context.Context, id int64, patch domain.ScrapingLogUpdate) error {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.JobsFound != nil {
		add("jobs_found", *patch.JobsFound)
	}
	if patch.JobsAdded != nil {
		add("jobs_added", *patch.JobsAdded)
	}
	if patch.JobsUpdated != nil {
		add("jobs_updated", *patch.JobsUpdated)
	}
	if patch.JobsFiltered != nil {
		add("jobs_filtered", *patch.JobsFiltered)
	}
	if patch.JobsArchived != nil {
		add("jobs_archived", *patch.JobsArchived)
	}
	if patch.ErrorMessage != nil {
		add("error_message", *patch.ErrorMessage)
	}
	if patch.MatcherStatus != nil {
		add("matcher_status", *patch.MatcherStatus)
	}
	if patch.MatcherJobsTotal != nil {
		add("matcher_jobs_total", *patch.MatcherJobsTotal)
	}
	if patch.MatcherJobsCompleted != nil {
		add("matcher_jobs_completed", *patch.MatcherJobsCompleted)
	}
	if patch.MatcherErrorCount != nil {
		add("matcher_error_count", *patch.MatcherErrorCount)
	}
	if patch.MatcherDurationMS != nil {
		add("matcher_duration_ms", *patch.MatcherDurationMS)
	}
	if patch.CompletedAt != nil {
		add("completed_at", timeText(*patch.CompletedAt))
	}
	if patch.DurationMS != nil {
		add("duration_ms", *patch.DurationMS)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	_, err := d.Pool.ExecContext(ctx,
		`UPDATE scraping_logs SET `+strings.Join(sets, ", ")+` WHERE id = ?;`, args...)
	if err != nil {
		return fmt.Errorf("update scraping log %d: %w", id, err)
	}
	return nil
}

// GetSessionLogs lists the per-company rows of one session, oldest first.
func (d *DB) GetSessionLogs(ctx context.Context, sessionID string) ([]domain.ScrapingLog, error) {
	return d.queryLogs(ctx,
		`SELECT `+logCols+` FROM scraping_logs WHERE session_id = ? ORDER BY started_at, id;`, sessionID)
}

func (d *DB) ListScrapingLogs(ctx context.Context, limit int) ([]domain.ScrapingLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return d.queryLogs(ctx,
		`SELECT `+logCols+` FROM scraping_logs ORDER BY started_at DESC, id DESC LIMIT ?;`, limit)
}

func (d *DB) queryLogs(ctx context.Context, query string, args ...any) ([]domain.ScrapingLog, error) {
	rows, err := d.Pool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ScrapingLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
