package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/deckd/internal/device"
	"github.com/roach88/deckd/internal/profile"
)

// SaveProfile writes a profile. It reports false, and writes nothing, when
// the stored document already has the same digest.
func (s *Store) SaveProfile(ctx context.Context, p *profile.Profile) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, fmt.Errorf("save profile: %w", err)
	}

	doc, err := profile.Encode(p)
	if err != nil {
		return false, fmt.Errorf("save profile %s/%s: %w", p.Device, p.ID, err)
	}
	digest := profile.DigestDocument(doc)

	// The digest guard makes an unchanged save a no-op, seq included.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (device, id, document, digest, seq)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(device, id) DO UPDATE SET
			document = excluded.document,
			digest = excluded.digest,
			seq = profiles.seq + 1
		WHERE profiles.digest != excluded.digest
	`, p.Device, p.ID, string(doc), digest)
	if err != nil {
		return false, fmt.Errorf("save profile %s/%s: %w", p.Device, p.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("save profile %s/%s: %w", p.Device, p.ID, err)
	}
	return n > 0, nil
}

// ReadProfile loads a profile and checks it against its stored digest.
func (s *Store) ReadProfile(ctx context.Context, deviceID, id string) (*profile.Profile, error) {
	var doc, digest string
	err := s.db.QueryRowContext(ctx, `
		SELECT document, digest FROM profiles WHERE device = ? AND id = ?
	`, deviceID, id).Scan(&doc, &digest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s/%s: %w", deviceID, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read profile %s/%s: %w", deviceID, id, err)
	}

	if profile.DigestDocument([]byte(doc)) != digest {
		return nil, fmt.Errorf("profile %s/%s: %w", deviceID, id, ErrCorruptDocument)
	}

	p, err := profile.Decode([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("read profile %s/%s: %w", deviceID, id, err)
	}
	return p, nil
}

// ProfileSeq returns how many times a profile has been written.
func (s *Store) ProfileSeq(ctx context.Context, deviceID, id string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT seq FROM profiles WHERE device = ? AND id = ?
	`, deviceID, id).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("profile %s/%s: %w", deviceID, id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("profile seq %s/%s: %w", deviceID, id, err)
	}
	return seq, nil
}

// ListProfiles returns the profile ids of a device ordered by id.
func (s *Store) ListProfiles(ctx context.Context, deviceID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM profiles
		WHERE device = ?
		ORDER BY id COLLATE BINARY ASC
	`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan profile id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return ids, nil
}

// DeleteProfile removes a profile. The selected profile of a device cannot
// be deleted.
func (s *Store) DeleteProfile(ctx context.Context, deviceID, id string) error {
	selected, err := s.SelectedProfile(ctx, deviceID)
	if err != nil {
		return err
	}
	if selected == id {
		return fmt.Errorf("delete profile %s/%s: %w", deviceID, id, ErrSelectedProfile)
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM profiles WHERE device = ? AND id = ?
	`, deviceID, id)
	if err != nil {
		return fmt.Errorf("delete profile %s/%s: %w", deviceID, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete profile %s/%s: %w", deviceID, id, err)
	}
	if n == 0 {
		return fmt.Errorf("profile %s/%s: %w", deviceID, id, ErrNotFound)
	}
	return nil
}

// EnsureProfile returns the stored profile, creating an empty one sized to
// the device when it does not exist yet.
func (s *Store) EnsureProfile(ctx context.Context, info device.Info, id string) (*profile.Profile, error) {
	p, err := s.ReadProfile(ctx, info.ID, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	p = info.NewProfile(id)
	if _, err := s.SaveProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
