package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/usprobe/internal/config"
)

// ErrPresetNotFound is returned when no preset matches the lookup.
var ErrPresetNotFound = errors.New("preset not found")

// Preset is a named set of acquisition parameters.
type Preset struct {
	ID        uuid.UUID                 `json:"id"`
	Name      string                    `json:"name"`
	Mode      string                    `json:"mode,omitempty"`
	Config    *config.AcquisitionConfig `json:"config"`
	CreatedAt time.Time                 `json:"created_at"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// SavePreset stores cfg under name, replacing an existing preset of the same
// name but keeping its ID. Host settings in cfg are not stored.
func (db *DB) SavePreset(name string, cfg *config.AcquisitionConfig) (*Preset, error) {
	if name == "" {
		return nil, fmt.Errorf("preset name must not be empty")
	}
	if cfg == nil {
		cfg = config.EmptyAcquisitionConfig()
	}
	stored := cfg.AcquisitionOnly()
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to encode preset %q: %w", name, err)
	}
	mode := ""
	if stored.Mode != nil {
		mode = *stored.Mode
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	p := &Preset{Name: name, Mode: mode, Config: stored, CreatedAt: now, UpdatedAt: now}

	existing, err := db.GetPresetByName(name)
	switch {
	case err == nil:
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
		_, err = db.Exec(`UPDATE presets SET mode = ?, config_json = ?, updated_at = ? WHERE preset_id = ?`,
			mode, string(data), now.UnixMilli(), p.ID.String())
	case errors.Is(err, ErrPresetNotFound):
		p.ID = uuid.New()
		_, err = db.Exec(`INSERT INTO presets (preset_id, name, mode, config_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID.String(), name, mode, string(data), now.UnixMilli(), now.UnixMilli())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save preset %q: %w", name, err)
	}
	return p, nil
}

const presetColumns = `preset_id, name, mode, config_json, created_at, updated_at`

// GetPreset returns the preset with the given ID.
func (db *DB) GetPreset(id uuid.UUID) (*Preset, error) {
	row := db.QueryRow(`SELECT `+presetColumns+` FROM presets WHERE preset_id = ?`, id.String())
	return scanPreset(row)
}

// GetPresetByName returns the preset with the given name.
func (db *DB) GetPresetByName(name string) (*Preset, error) {
	row := db.QueryRow(`SELECT `+presetColumns+` FROM presets WHERE name = ?`, name)
	return scanPreset(row)
}

// ListPresets returns every preset ordered by name.
func (db *DB) ListPresets() ([]Preset, error) {
	rows, err := db.Query(`SELECT ` + presetColumns + ` FROM presets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var presets []Preset
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		presets = append(presets, *p)
	}
	return presets, rows.Err()
}

// DeletePreset removes a preset.
func (db *DB) DeletePreset(id uuid.UUID) error {
	res, err := db.Exec(`DELETE FROM presets WHERE preset_id = ?`, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrPresetNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPreset(row rowScanner) (*Preset, error) {
	var (
		id, name, mode, data string
		created, updated     int64
	)
	if err := row.Scan(&id, &name, &mode, &data, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPresetNotFound
		}
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("preset %q has invalid id %q: %w", name, id, err)
	}
	cfg := config.EmptyAcquisitionConfig()
	if err := json.Unmarshal([]byte(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to decode preset %q: %w", name, err)
	}
	return &Preset{
		ID:        parsed,
		Name:      name,
		Mode:      mode,
		Config:    cfg,
		CreatedAt: time.UnixMilli(created).UTC(),
		UpdatedAt: time.UnixMilli(updated).UTC(),
	}, nil
}
