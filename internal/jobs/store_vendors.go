package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertVendorStatus writes the probed health for one vendor. Only the health
// monitor calls this.
func (s *Store) UpsertVendorStatus(ctx context.Context, status VendorStatus) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO vendor_status (vendor_type, vendor_name, health, detail, last_checked_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(vendor_type, vendor_name) DO UPDATE SET
             health = excluded.health,
             detail = excluded.detail,
             last_checked_at = excluded.last_checked_at`,
		status.VendorType,
		status.VendorName,
		status.Health,
		nullableString(status.Detail),
		formatTime(status.LastCheckedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert vendor status: %w", err)
	}
	return nil
}

// GetVendorStatus fetches the stored health for one vendor.
func (s *Store) GetVendorStatus(ctx context.Context, vendorType, vendorName string) (*VendorStatus, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT vendor_type, vendor_name, health, COALESCE(detail, ''), last_checked_at
         FROM vendor_status WHERE vendor_type = ? AND vendor_name = ?`,
		vendorType,
		vendorName,
	)
	status, err := scanVendorStatus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vendor status: %w", err)
	}
	return status, nil
}

// ListVendorStatus returns the stored health of every known vendor.
func (s *Store) ListVendorStatus(ctx context.Context) ([]VendorStatus, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT vendor_type, vendor_name, health, COALESCE(detail, ''), last_checked_at
         FROM vendor_status ORDER BY vendor_type, vendor_name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list vendor status: %w", err)
	}
	defer rows.Close()

	var statuses []VendorStatus
	for rows.Next() {
		status, err := scanVendorStatus(rows)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, *status)
	}
	return statuses, rows.Err()
}

func scanVendorStatus(scanner interface{ Scan(dest ...any) error }) (*VendorStatus, error) {
	var (
		status     VendorStatus
		healthStr  string
		checkedRaw string
	)
	if err := scanner.Scan(
		&status.VendorType,
		&status.VendorName,
		&healthStr,
		&status.Detail,
		&checkedRaw,
	); err != nil {
		return nil, err
	}
	status.Health = VendorHealth(healthStr)
	if checked, err := parseTimeString(checkedRaw); err == nil {
		status.LastCheckedAt = checked
	}
	return &status, nil
}
