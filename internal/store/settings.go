package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/deckd/internal/profile"
)

// GlobalSettings returns the settings a plugin stored for itself. A plugin
// that never stored any gets an empty object.
func (s *Store) GlobalSettings(ctx context.Context, plugin string) (profile.Object, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT settings FROM global_settings WHERE plugin = ?
	`, plugin).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.Object{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("global settings %s: %w", plugin, err)
	}

	var obj profile.Object
	if err := obj.UnmarshalJSON([]byte(data)); err != nil {
		return nil, fmt.Errorf("global settings %s: %w", plugin, err)
	}
	return obj, nil
}

// SetGlobalSettings replaces a plugin's global settings.
func (s *Store) SetGlobalSettings(ctx context.Context, plugin string, settings profile.Object) error {
	data, err := profile.MarshalCanonical(settings)
	if err != nil {
		return fmt.Errorf("set global settings %s: %w", plugin, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO global_settings (plugin, settings)
		VALUES (?, ?)
		ON CONFLICT(plugin) DO UPDATE SET settings = excluded.settings
	`, plugin, string(data))
	if err != nil {
		return fmt.Errorf("set global settings %s: %w", plugin, err)
	}
	return nil
}
