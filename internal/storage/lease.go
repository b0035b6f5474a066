package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// AcquireLease takes the lease for holder. Re-acquiring by the same holder
// succeeds; any other holder gets ErrLeaseHeld.
func (s *SQLiteStorage) AcquireLease(key, holder string) error {
	res, err := s.db.Exec(`INSERT OR IGNORE INTO generation_leases (lease_key, holder, acquired_at) VALUES (?, ?, ?)`,
		key, holder, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to acquire lease: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	lease, err := s.GetLease(key)
	if err != nil {
		return err
	}
	if lease != nil && lease.Holder == holder {
		return nil
	}
	return ErrLeaseHeld
}

// ReleaseLease drops the lease only if holder owns it.
func (s *SQLiteStorage) ReleaseLease(key, holder string) error {
	if _, err := s.db.Exec(`DELETE FROM generation_leases WHERE lease_key = ? AND holder = ?`, key, holder); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

// BreakLease drops the lease regardless of holder.
func (s *SQLiteStorage) BreakLease(key string) error {
	if _, err := s.db.Exec(`DELETE FROM generation_leases WHERE lease_key = ?`, key); err != nil {
		return fmt.Errorf("failed to break lease: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetLease(key string) (*Lease, error) {
	var l Lease
	var acquiredAt int64
	err := s.db.QueryRow(`SELECT lease_key, holder, acquired_at FROM generation_leases WHERE lease_key = ?`, key).
		Scan(&l.Key, &l.Holder, &acquiredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lease: %w", err)
	}
	l.AcquiredAt = time.UnixMilli(acquiredAt)
	return &l, nil
}
