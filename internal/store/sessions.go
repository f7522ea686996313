package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jobscout-engine/internal/domain"
)

const sessionCols = `id, trigger_source, status, companies_total, companies_completed,
total_jobs_found, total_jobs_added, total_jobs_filtered, total_jobs_archived,
started_at, completed_at`

func scanSession(row interface{ Scan(...any) error }) (domain.Session, error) {
	var s domain.Session
	var started string
	var completed sql.NullString
	if err := row.Scan(&s.ID, &s.TriggerSource, &s.Status, &s.CompaniesTotal, &s.CompaniesCompleted,
		&s.TotalJobsFound, &s.TotalJobsAdded, &s.TotalJobsFiltered, &s.TotalJobsArchived,
		&started, &completed); err != nil {
		return domain.Session{}, err
	}
	s.StartedAt = parseTimeText(started)
	s.CompletedAt = parseTimeTextPtr(completed)
	return s, nil
}

func (d *DB) CreateSession(ctx context.Context, s *domain.Session) error {
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}
	_, err := d.Pool.ExecContext(ctx, `
INSERT INTO scrape_sessions (id, trigger_source, status, companies_total, companies_completed,
  total_jobs_found, total_jobs_added, total_jobs_filtered, total_jobs_archived, started_at, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		s.ID, s.TriggerSource, s.Status, s.CompaniesTotal, s.CompaniesCompleted,
		s.TotalJobsFound, s.TotalJobsAdded, s.TotalJobsFiltered, s.TotalJobsArchived,
		timeText(s.StartedAt), timeTextPtr(s.CompletedAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession returns nil for an unknown id.
func (d *DB) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := d.Pool.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM scrape_sessions WHERE id = ?;`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (d *DB) ListSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+sessionCols+` FROM scrape_sessions ORDER BY started_at DESC, id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (d *DB) IsSessionInProgress(ctx context.Context, id string) (bool, error) {
	var status string
	err := d.Pool.QueryRowContext(ctx,
		`SELECT status FROM scrape_sessions WHERE id = ?;`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status == domain.SessionInProgress, nil
}

// StopSession marks an in-progress session stopped; workers observe the
// change at their next task pickup. Returns false when the session was
// already terminal or unknown.
func (d *DB) StopSession(ctx context.Context, id string) (bool, error) {
	res, err := d.Pool.ExecContext(ctx, `
UPDATE scrape_sessions SET status = ?, completed_at = ?
WHERE id = ? AND status = ?;`,
		domain.SessionStopped, timeText(time.Now()), id, domain.SessionInProgress)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (d *DB) UpdateSessionProgress(ctx context.Context, id string, p domain.SessionProgress) error {
	_, err := d.Pool.ExecContext(ctx, `
UPDATE scrape_sessions SET companies_completed = ?, total_jobs_found = ?,
  total_jobs_added = ?, total_jobs_filtered = ?, total_jobs_archived = ?
WHERE id = ?;`,
		p.CompaniesCompleted, p.TotalJobsFound, p.TotalJobsAdded, p.TotalJobsFiltered, p.TotalJobsArchived, id)
	if err != nil {
		return fmt.Errorf("update session progress: %w", err)
	}
	return nil
}

// CompleteSession terminalizes the session unless an external stop already
// did; a stopped session keeps its status.
func (d *DB) CompleteSession(ctx context.Context, id string, status string) error {
	_, err := d.Pool.ExecContext(ctx, `
UPDATE scrape_sessions SET status = ?, completed_at = ?
WHERE id = ? AND status = ?;`,
		status, timeText(time.Now()), id, domain.SessionInProgress)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	return nil
}
