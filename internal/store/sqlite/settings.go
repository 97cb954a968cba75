package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/grabarr/grabarr/internal/store/types"
)

// GetSetting returns the raw JSON-encoded value for key, or ErrNotFound.
func (d *Database) GetSetting(key string) (string, error) {
	var value string
	err := d.readDb.QueryRow("SELECT value FROM system_settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("GetSetting: %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("GetSetting: error reading %s: %w", key, err)
	}
	return value, nil
}

// GetSettingInt decodes an integer setting, returning fallback when the key is
// absent or not numeric.
func (d *Database) GetSettingInt(key string, fallback int) int {
	value, err := d.GetSetting(key)
	if err != nil {
		return fallback
	}
	var raw any
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return fallback
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// GetSettingString decodes a string setting with fallback.
func (d *Database) GetSettingString(key, fallback string) string {
	value, err := d.GetSetting(key)
	if err != nil {
		return fallback
	}
	var s string
	if err := json.Unmarshal([]byte(value), &s); err != nil {
		// Stored unquoted by an older writer.
		if value != "" {
			return value
		}
		return fallback
	}
	return s
}

// GetSettingBool decodes a boolean setting with fallback.
func (d *Database) GetSettingBool(key string, fallback bool) bool {
	value, err := d.GetSetting(key)
	if err != nil {
		return fallback
	}
	var b bool
	if err := json.Unmarshal([]byte(value), &b); err != nil {
		return fallback
	}
	return b
}

// SetSetting upserts one key with a JSON-encoded value.
func (d *Database) SetSetting(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("SetSetting: error encoding %s: %w", key, err)
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	_, err = d.writeDb.Exec(`
        INSERT INTO system_settings (key, value) VALUES (?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value
    `, key, string(raw))
	if err != nil {
		return fmt.Errorf("SetSetting: error writing %s: %w", key, err)
	}
	return nil
}

func (d *Database) GetAllSettings() ([]types.SystemSetting, error) {
	rows, err := d.readDb.Query("SELECT key, value FROM system_settings ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("GetAllSettings: error querying settings: %w", err)
	}
	defer rows.Close()

	var settings []types.SystemSetting
	for rows.Next() {
		var s types.SystemSetting
		if err := rows.Scan(&s.Key, &s.Value); err != nil {
			return nil, fmt.Errorf("GetAllSettings: error scanning setting: %w", err)
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

func (d *Database) CreateScheduleTemplate(tmpl *types.ScheduleTemplate) error {
	switch tmpl.ScheduleType {
	case "cron", "interval":
	default:
		return fmt.Errorf("CreateScheduleTemplate: invalid schedule type: %s", tmpl.ScheduleType)
	}
	config, err := json.Marshal(tmpl.Config)
	if err != nil {
		return fmt.Errorf("CreateScheduleTemplate: error encoding config: %w", err)
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.writeDb.Exec(
		"INSERT INTO schedule_templates (name, schedule_type, config) VALUES (?, ?, ?)",
		tmpl.Name, tmpl.ScheduleType, string(config))
	if err != nil {
		return fmt.Errorf("CreateScheduleTemplate: error inserting template: %w", err)
	}
	tmpl.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("CreateScheduleTemplate: error reading template id: %w", err)
	}
	return nil
}

func (d *Database) GetScheduleTemplateByName(name string) (types.ScheduleTemplate, error) {
	var tmpl types.ScheduleTemplate
	var config string
	err := d.readDb.QueryRow(
		"SELECT id, name, schedule_type, config FROM schedule_templates WHERE name = ?", name).
		Scan(&tmpl.ID, &tmpl.Name, &tmpl.ScheduleType, &config)
	if errors.Is(err, sql.ErrNoRows) {
		return tmpl, fmt.Errorf("GetScheduleTemplateByName: %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return tmpl, fmt.Errorf("GetScheduleTemplateByName: error scanning template: %w", err)
	}
	if err := json.Unmarshal([]byte(config), &tmpl.Config); err != nil {
		return tmpl, fmt.Errorf("GetScheduleTemplateByName: error decoding config: %w", err)
	}
	return tmpl, nil
}

func (d *Database) GetAllScheduleTemplates() ([]types.ScheduleTemplate, error) {
	rows, err := d.readDb.Query(
		"SELECT id, name, schedule_type, config FROM schedule_templates ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("GetAllScheduleTemplates: error querying templates: %w", err)
	}
	defer rows.Close()

	var templates []types.ScheduleTemplate
	for rows.Next() {
		var tmpl types.ScheduleTemplate
		var config string
		if err := rows.Scan(&tmpl.ID, &tmpl.Name, &tmpl.ScheduleType, &config); err != nil {
			return nil, fmt.Errorf("GetAllScheduleTemplates: error scanning template: %w", err)
		}
		if err := json.Unmarshal([]byte(config), &tmpl.Config); err != nil {
			return nil, fmt.Errorf("GetAllScheduleTemplates: error decoding config: %w", err)
		}
		templates = append(templates, tmpl)
	}
	return templates, rows.Err()
}

func (d *Database) DeleteScheduleTemplate(id int64) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.writeDb.Exec("DELETE FROM schedule_templates WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("DeleteScheduleTemplate: error deleting template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("DeleteScheduleTemplate: template %d: %w", id, ErrNotFound)
	}
	return nil
}
