package store

import (
	"context"
	"time"
)

// AcquireSchedulerLock claims a named lock for owner until the TTL runs
// out. The claim succeeds when the lock is free, expired, or already held
// by the same owner; one upsert makes the check-and-set atomic.
func (d *DB) AcquireSchedulerLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := time.Now()
	res, err := d.Pool.ExecContext(ctx, `
INSERT INTO scheduler_locks (name, owner, expires_at)
VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
  owner = excluded.owner,
  expires_at = excluded.expires_at
WHERE scheduler_locks.owner = excluded.owner
   OR scheduler_locks.expires_at < ?;
`, name, owner, timeText(now.Add(ttl)), timeText(now))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RefreshSchedulerLock extends a lock the owner still holds.
func (d *DB) RefreshSchedulerLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	res, err := d.Pool.ExecContext(ctx, `
UPDATE scheduler_locks SET expires_at = ?
WHERE name = ? AND owner = ?;`,
		timeText(time.Now().Add(ttl)), name, owner)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ReleaseSchedulerLock drops the lock if this owner still holds it.
func (d *DB) ReleaseSchedulerLock(ctx context.Context, name, owner string) error {
	_, err := d.Pool.ExecContext(ctx, `
DELETE FROM scheduler_locks WHERE name = ? AND owner = ?;`, name, owner)
	return err
}
