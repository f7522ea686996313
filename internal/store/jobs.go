package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/scrape/types"
)

const jobCols = `id, company_id, external_id, title, url, location, location_type, department,
description, description_format, employment_type, seniority, salary, status,
archived_by_scraper, match_status, posted_at, created_at, updated_at`

func scanJob(row interface{ Scan(...any) error }, extra ...any) (domain.Job, error) {
	var j domain.Job
	var archived int
	var posted sql.NullString
	var created, updated string
	dest := []any{
		&j.ID, &j.CompanyID, &j.ExternalID, &j.Title, &j.URL, &j.Location, &j.LocationType,
		&j.Department, &j.Description, &j.DescriptionFormat, &j.EmploymentType, &j.Seniority,
		&j.Salary, &j.Status, &archived, &j.MatchStatus, &posted, &created, &updated,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Job{}, err
	}
	j.ArchivedByScraper = archived != 0
	j.PostedAt = parseTimeTextPtr(posted)
	j.CreatedAt = parseTimeText(created)
	j.UpdatedAt = parseTimeText(updated)
	return j, nil
}

// GetExistingJobs returns the slim per-company view the scrape pipeline
// dedupes against. All statuses, archived included.
func (d *DB) GetExistingJobs(ctx context.Context, companyID int64) ([]domain.ExistingJob, error) {
	rows, err := d.Pool.QueryContext(ctx, `
SELECT id, external_id, title, url, status, description
FROM jobs
WHERE company_id = ?;`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ExistingJob
	for rows.Next() {
		var j domain.ExistingJob
		if err := rows.Scan(&j.ID, &j.ExternalID, &j.Title, &j.URL, &j.Status, &j.Description); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// InsertJobs stores freshly scraped jobs as status new and returns the ids
// of the rows actually inserted, in input order. The unique index on
// (company_id, external_id) absorbs races with a concurrent scrape of the
// same company; ignored rows simply yield no id.
func (d *DB) InsertJobs(ctx context.Context, companyID int64, jobs []types.ScrapedJob) ([]int64, error) {
	if len(jobs) == 0 {
		return nil, nil
	}
	tx, err := d.Pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT OR IGNORE INTO jobs (company_id, external_id, title, url, location, location_type,
  department, description, description_format, employment_type, seniority, salary,
  status, archived_by_scraper, posted_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'new', 0, ?, ?, ?);`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	now := timeText(time.Now())
	ids := make([]int64, 0, len(jobs))
	for _, j := range jobs {
		res, err := stmt.ExecContext(ctx,
			companyID, j.ExternalID, j.Title, j.URL, j.Location, string(j.LocationType),
			j.Department, j.Description, string(j.DescriptionFormat), string(j.EmploymentType),
			string(j.Seniority), j.Salary, timeTextPtr(j.PostedAt), now, now)
		if err != nil {
			return nil, fmt.Errorf("insert job %q: %w", j.ExternalID, err)
		}
		// rows affected is unreliable with OR IGNORE across drivers; ask
		// sqlite directly
		var changes int
		if err := tx.QueryRowContext(ctx, `SELECT changes();`).Scan(&changes); err != nil {
			return nil, err
		}
		if changes > 0 {
			id, err := res.LastInsertId()
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// UpdateExistingJobsFromScrape backfills descriptions onto known rows.
func (d *DB) UpdateExistingJobsFromScrape(ctx context.Context, updates []domain.JobUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	tx, err := d.Pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	now := timeText(time.Now())
	total := 0
	for _, u := range updates {
		res, err := tx.ExecContext(ctx, `
UPDATE jobs SET description = ?, description_format = ?, updated_at = ?
WHERE id = ?;`, u.Description, u.DescriptionFormat, now, u.ID)
		if err != nil {
			return 0, fmt.Errorf("hydrate job %d: %w", u.ID, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

// ReopenScraperArchivedJobs flips scraper-archived rows back to new when
// their external ids show up open again. Manually archived rows stay put.
func (d *DB) ReopenScraperArchivedJobs(ctx context.Context, companyID int64, externalIDs []string) (int, error) {
	if len(externalIDs) == 0 {
		return 0, nil
	}
	now := timeText(time.Now())
	total := 0
	for _, chunk := range chunkStrings(externalIDs, inChunk) {
		args := make([]any, 0, len(chunk)+2)
		args = append(args, now, companyID)
		for _, id := range chunk {
			args = append(args, id)
		}
		res, err := d.Pool.ExecContext(ctx, `
UPDATE jobs SET status = 'new', archived_by_scraper = 0, updated_at = ?
WHERE company_id = ?
  AND status = 'archived'
  AND archived_by_scraper = 1
  AND external_id IN (`+placeholders(len(chunk))+`);`, args...)
		if err != nil {
			return total, fmt.Errorf("reopen jobs: %w", err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	return total, nil
}

// ArchiveMissingJobs archives rows in an archivable status whose external
// ids are no longer open at the source. Candidates are selected first and
// the open set subtracted in memory, so the open list size never hits
// sqlite's variable limit.
func (d *DB) ArchiveMissingJobs(ctx context.Context, companyID int64, openExternalIDs []string, archivableStatuses []string) (int, error) {
	if len(archivableStatuses) == 0 {
		return 0, nil
	}
	open := make(map[string]bool, len(openExternalIDs))
	for _, id := range openExternalIDs {
		open[id] = true
	}

	tx, err := d.Pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	args := make([]any, 0, len(archivableStatuses)+1)
	args = append(args, companyID)
	for _, s := range archivableStatuses {
		args = append(args, s)
	}
	rows, err := tx.QueryContext(ctx, `
SELECT id, external_id FROM jobs
WHERE company_id = ?
  AND external_id != ''
  AND status IN (`+placeholders(len(archivableStatuses))+`);`, args...)
	if err != nil {
		return 0, err
	}
	var missing []int64
	for rows.Next() {
		var id int64
		var ext string
		if err := rows.Scan(&id, &ext); err != nil {
			rows.Close()
			return 0, err
		}
		if !open[ext] {
			missing = append(missing, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	now := timeText(time.Now())
	total := 0
	for _, chunk := range chunkInt64s(missing, inChunk) {
		args := make([]any, 0, len(chunk)+1)
		args = append(args, now)
		for _, id := range chunk {
			args = append(args, id)
		}
		res, err := tx.ExecContext(ctx, `
UPDATE jobs SET status = 'archived', archived_by_scraper = 1, updated_at = ?
WHERE id IN (`+placeholders(len(chunk))+`);`, args...)
		if err != nil {
			return 0, fmt.Errorf("archive jobs: %w", err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

// GetMatchableJobIDs keeps the ids whose rows carry a non-empty
// description, preserving input order.
func (d *DB) GetMatchableJobIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ok := make(map[int64]bool, len(ids))
	for _, chunk := range chunkInt64s(ids, inChunk) {
		args := make([]any, 0, len(chunk))
		for _, id := range chunk {
			args = append(args, id)
		}
		rows, err := d.Pool.QueryContext(ctx, `
SELECT id FROM jobs
WHERE id IN (`+placeholders(len(chunk))+`)
  AND TRIM(description) != '';`, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			ok[id] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if ok[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// JobQuery filters and orders the API job listing.
type JobQuery struct {
	Status       string
	CompanyID    int64
	Search       string
	LocationType string
	Sort         string // created | posted | title | company
	Limit        int
	Offset       int
}

// JobRow is a job plus its company name, the shape the API returns.
type JobRow struct {
	domain.Job
	CompanyName string `json:"companyName"`
}

func (d *DB) ListJobs(ctx context.Context, q JobQuery) ([]JobRow, error) {
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 100
	}

	// whitelist sort columns (prevents SQL injection)
	sortCol := map[string]string{
		"created": "j.created_at DESC",
		"posted":  "j.posted_at DESC",
		"title":   "j.title COLLATE NOCASE ASC",
		"company": "c.name COLLATE NOCASE ASC, j.created_at DESC",
	}[q.Sort]
	if sortCol == "" {
		sortCol = "j.created_at DESC"
	}

	where := []string{"1=1"}
	var args []any
	if q.Status != "" {
		where = append(where, "j.status = ?")
		args = append(args, q.Status)
	} else {
		where = append(where, "j.status != 'archived'")
	}
	if q.CompanyID > 0 {
		where = append(where, "j.company_id = ?")
		args = append(args, q.CompanyID)
	}
	if q.LocationType != "" {
		where = append(where, "j.location_type = ?")
		args = append(args, q.LocationType)
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		where = append(where, "(j.title LIKE ? OR c.name LIKE ?)")
		like := "%" + s + "%"
		args = append(args, like, like)
	}
	args = append(args, q.Limit, q.Offset)

	query := fmt.Sprintf(`
SELECT %s, c.name
FROM jobs j
JOIN companies c ON c.id = j.company_id
WHERE %s
ORDER BY %s
LIMIT ? OFFSET ?;`, prefixCols(jobCols, "j."), strings.Join(where, " AND "), sortCol)

	rows, err := d.Pool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobRow
	for rows.Next() {
		var name string
		j, err := scanJob(rows, &name)
		if err != nil {
			return nil, err
		}
		out = append(out, JobRow{Job: j, CompanyName: name})
	}
	return out, rows.Err()
}

func (d *DB) GetJob(ctx context.Context, id int64) (*JobRow, error) {
	row := d.Pool.QueryRowContext(ctx, `
SELECT `+prefixCols(jobCols, "j.")+`, c.name
FROM jobs j
JOIN companies c ON c.id = j.company_id
WHERE j.id = ?;`, id)
	var name string
	j, err := scanJob(row, &name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &JobRow{Job: j, CompanyName: name}, nil
}

// UpdateJobStatus is the manual status transition. It always clears the
// scraper-archived flag so a later scrape cannot silently reopen the row.
func (d *DB) UpdateJobStatus(ctx context.Context, id int64, status string) (bool, error) {
	res, err := d.Pool.ExecContext(ctx, `
UPDATE jobs SET status = ?, archived_by_scraper = 0, updated_at = ?
WHERE id = ?;`, status, timeText(time.Now()), id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// PruneArchivedJobs deletes scraper-archived rows untouched for longer
// than the retention window.
func (d *DB) PruneArchivedJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := timeText(time.Now().Add(-olderThan))
	res, err := d.Pool.ExecContext(ctx, `
DELETE FROM jobs
WHERE status = 'archived'
  AND archived_by_scraper = 1
  AND updated_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune archived jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// prefixCols rewrites "a, b,\nc" into "j.a, j.b, j.c" for joined queries.
func prefixCols(cols, prefix string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
