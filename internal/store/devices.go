package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/deckd/internal/device"
)

var (
	// ErrNotFound is returned when a device, profile or setting row does not
	// exist.
	ErrNotFound = errors.New("not found")
	// ErrSelectedProfile is returned when deleting the profile a device has
	// selected.
	ErrSelectedProfile = errors.New("profile is selected")
	// ErrCorruptDocument is returned when a stored profile no longer matches
	// its digest.
	ErrCorruptDocument = errors.New("profile document does not match digest")
)

// UpsertDevice records a device and its layout. The selected profile of an
// existing device is kept.
func (s *Store) UpsertDevice(ctx context.Context, info device.Info) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, type, grid_rows, grid_columns, dials)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			grid_rows = excluded.grid_rows,
			grid_columns = excluded.grid_columns,
			dials = excluded.dials
	`,
		info.ID,
		info.Name,
		info.Type,
		info.Layout.Rows,
		info.Layout.Columns,
		info.Layout.Dials,
	)
	if err != nil {
		return fmt.Errorf("upsert device %s: %w", info.ID, err)
	}
	return nil
}

// ReadDevice returns a known device.
func (s *Store) ReadDevice(ctx context.Context, id string) (device.Info, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, grid_rows, grid_columns, dials
		FROM devices
		WHERE id = ?
	`, id)

	info, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return device.Info{}, fmt.Errorf("device %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return device.Info{}, fmt.Errorf("read device %s: %w", id, err)
	}
	return info, nil
}

// ListDevices returns every known device ordered by id.
func (s *Store) ListDevices(ctx context.Context) ([]device.Info, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, grid_rows, grid_columns, dials
		FROM devices
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	devices := []device.Info{}
	for rows.Next() {
		info, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return devices, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (device.Info, error) {
	var info device.Info
	err := row.Scan(
		&info.ID,
		&info.Name,
		&info.Type,
		&info.Layout.Rows,
		&info.Layout.Columns,
		&info.Layout.Dials,
	)
	return info, err
}

// SelectedProfile returns the profile id selected on a device, or the
// default profile id when none has been selected.
func (s *Store) SelectedProfile(ctx context.Context, deviceID string) (string, error) {
	var selected sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT selected_profile FROM devices WHERE id = ?
	`, deviceID).Scan(&selected)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("selected profile of %s: %w", deviceID, err)
	}
	if !selected.Valid || selected.String == "" {
		return s.defaultProfile, nil
	}
	return selected.String, nil
}

// SelectProfile makes id the active profile of a device. Both the device
// and the profile must exist.
func (s *Store) SelectProfile(ctx context.Context, deviceID, id string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM profiles WHERE device = ? AND id = ?
	`, deviceID, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("profile %s/%s: %w", deviceID, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("select profile %s/%s: %w", deviceID, id, err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE devices SET selected_profile = ? WHERE id = ?
	`, id, deviceID)
	if err != nil {
		return fmt.Errorf("select profile %s/%s: %w", deviceID, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("select profile %s/%s: %w", deviceID, id, err)
	}
	if n == 0 {
		return fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}
	return nil
}
