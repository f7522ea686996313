package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"jobscout-engine/internal/domain"
)

const companyCols = `id, name, career_url, platform, board_token, active, last_scraped_at, created_at`

func scanCompany(row interface{ Scan(...any) error }) (domain.Company, error) {
	var c domain.Company
	var active int
	var lastScraped sql.NullString
	var created string
	if err := row.Scan(&c.ID, &c.Name, &c.CareerURL, &c.Platform, &c.BoardToken, &active, &lastScraped, &created); err != nil {
		return domain.Company{}, err
	}
	c.Active = active != 0
	c.LastScrapedAt = parseTimeTextPtr(lastScraped)
	c.CreatedAt = parseTimeText(created)
	return c, nil
}

// GetCompany returns nil when the id is unknown.
func (d *DB) GetCompany(ctx context.Context, id int64) (*domain.Company, error) {
	row := d.Pool.QueryRowContext(ctx,
		`SELECT `+companyCols+` FROM companies WHERE id = ?;`, id)
	c, err := scanCompany(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCompanyByName returns nil when no company carries the name.
// Matching is case-insensitive.
func (d *DB) GetCompanyByName(ctx context.Context, name string) (*domain.Company, error) {
	row := d.Pool.QueryRowContext(ctx,
		`SELECT `+companyCols+` FROM companies WHERE name = ? COLLATE NOCASE;`, name)
	c, err := scanCompany(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (d *DB) GetActiveCompanies(ctx context.Context) ([]domain.Company, error) {
	return d.queryCompanies(ctx,
		`SELECT `+companyCols+` FROM companies WHERE active = 1 ORDER BY name COLLATE NOCASE, id;`)
}

// ListCompanies returns every company, active or not, for the API.
func (d *DB) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	return d.queryCompanies(ctx,
		`SELECT `+companyCols+` FROM companies ORDER BY name COLLATE NOCASE, id;`)
}

func (d *DB) queryCompanies(ctx context.Context, query string, args ...any) ([]domain.Company, error) {
	rows, err := d.Pool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (d *DB) CreateCompany(ctx context.Context, c *domain.Company) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	active := 0
	if c.Active {
		active = 1
	}
	res, err := d.Pool.ExecContext(ctx, `
INSERT INTO companies (name, career_url, platform, board_token, active, last_scraped_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?);`,
		c.Name, c.CareerURL, c.Platform, c.BoardToken, active, timeTextPtr(c.LastScrapedAt), timeText(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert company: %w", err)
	}
	c.ID, _ = res.LastInsertId()
	return nil
}

// UpdateCompany applies a partial patch; nil fields are left alone.
func (d *DB) UpdateCompany(ctx context.Context, id int64, patch domain.CompanyUpdate) error {
	var sets []string
	var args []any
	if patch.LastScrapedAt != nil {
		sets = append(sets, "last_scraped_at = ?")
		args = append(args, timeText(*patch.LastScrapedAt))
	}
	if patch.Platform != nil {
		sets = append(sets, "platform = ?")
		args = append(args, *patch.Platform)
	}
	if patch.BoardToken != nil {
		sets = append(sets, "board_token = ?")
		args = append(args, *patch.BoardToken)
	}
	if patch.Active != nil {
		active := 0
		if *patch.Active {
			active = 1
		}
		sets = append(sets, "active = ?")
		args = append(args, active)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	_, err := d.Pool.ExecContext(ctx,
		`UPDATE companies SET `+strings.Join(sets, ", ")+` WHERE id = ?;`, args...)
	if err != nil {
		return fmt.Errorf("update company %d: %w", id, err)
	}
	return nil
}

// DeleteCompany removes the company; its jobs cascade.
func (d *DB) DeleteCompany(ctx context.Context, id int64) error {
	_, err := d.Pool.ExecContext(ctx, `DELETE FROM companies WHERE id = ?;`, id)
	return err
}
