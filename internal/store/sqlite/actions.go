package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/grabarr/grabarr/internal/store/types"
)

// validateActionConfig rejects unknown type tags and malformed typed configs
// at creation time rather than at execution time.
func validateActionConfig(actionType string, config json.RawMessage) error {
	if len(config) == 0 {
		config = json.RawMessage("{}")
	}
	switch actionType {
	case types.ActionWebhook:
		var cfg types.WebhookConfig
		if err := json.Unmarshal(config, &cfg); err != nil {
			return fmt.Errorf("invalid webhook config: %w", err)
		}
		if cfg.URL == "" {
			return errors.New("webhook config requires a url")
		}
	case types.ActionDelay:
		var cfg types.DelayConfig
		if err := json.Unmarshal(config, &cfg); err != nil {
			return fmt.Errorf("invalid delay config: %w", err)
		}
		if cfg.Seconds <= 0 {
			return errors.New("delay config requires positive seconds")
		}
	case types.ActionRclone:
		var cfg types.RcloneConfig
		if err := json.Unmarshal(config, &cfg); err != nil {
			return fmt.Errorf("invalid rclone config: %w", err)
		}
		if cfg.Command == "" {
			return errors.New("rclone config requires a command")
		}
	case types.ActionDocker:
		var cfg types.DockerConfig
		if err := json.Unmarshal(config, &cfg); err != nil {
			return fmt.Errorf("invalid docker config: %w", err)
		}
		if cfg.Container == "" {
			return errors.New("docker config requires a container")
		}
		switch cfg.Operation {
		case types.ContainerStart, types.ContainerStop, types.ContainerRestart:
		default:
			return fmt.Errorf("invalid docker operation: %s", cfg.Operation)
		}
	case types.ActionNotification:
		var cfg types.NotificationConfig
		if err := json.Unmarshal(config, &cfg); err != nil {
			return fmt.Errorf("invalid notification config: %w", err)
		}
	case types.ActionCommand:
		// Legacy tag. Accepted at rest, refused at execution.
	default:
		return fmt.Errorf("unknown action type: %s", actionType)
	}
	return nil
}

func (d *Database) CreateAction(action *types.Action) error {
	if err := validateActionConfig(action.Type, action.Config); err != nil {
		return fmt.Errorf("CreateAction: %w: %s", ErrValidation, err)
	}
	if len(action.Config) == 0 {
		action.Config = json.RawMessage("{}")
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.writeDb.Exec(
		"INSERT INTO actions (name, type, config) VALUES (?, ?, ?)",
		action.Name, action.Type, string(action.Config))
	if err != nil {
		return fmt.Errorf("CreateAction: error inserting action: %w", err)
	}
	action.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("CreateAction: error reading action id: %w", err)
	}
	return nil
}

func (d *Database) GetAction(id int64) (types.Action, error) {
	var action types.Action
	var config string
	err := d.readDb.QueryRow(
		"SELECT id, name, type, config FROM actions WHERE id = ?", id).
		Scan(&action.ID, &action.Name, &action.Type, &config)
	if errors.Is(err, sql.ErrNoRows) {
		return action, fmt.Errorf("GetAction: action %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return action, fmt.Errorf("GetAction: error scanning action: %w", err)
	}
	action.Config = json.RawMessage(config)
	return action, nil
}

func (d *Database) GetAllActions() ([]types.Action, error) {
	rows, err := d.readDb.Query("SELECT id, name, type, config FROM actions ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("GetAllActions: error querying actions: %w", err)
	}
	defer rows.Close()

	var actions []types.Action
	for rows.Next() {
		var action types.Action
		var config string
		if err := rows.Scan(&action.ID, &action.Name, &action.Type, &config); err != nil {
			return nil, fmt.Errorf("GetAllActions: error scanning action: %w", err)
		}
		action.Config = json.RawMessage(config)
		actions = append(actions, action)
	}
	return actions, rows.Err()
}

func (d *Database) UpdateAction(action types.Action) error {
	if err := validateActionConfig(action.Type, action.Config); err != nil {
		return fmt.Errorf("UpdateAction: %w: %s", ErrValidation, err)
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.writeDb.Exec(
		"UPDATE actions SET name = ?, type = ?, config = ? WHERE id = ?",
		action.Name, action.Type, string(action.Config), action.ID)
	if err != nil {
		return fmt.Errorf("UpdateAction: error updating action: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("UpdateAction: action %d: %w", action.ID, ErrNotFound)
	}
	return nil
}

func (d *Database) DeleteAction(id int64) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.writeDb.Exec("DELETE FROM actions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("DeleteAction: error deleting action: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("DeleteAction: action %d: %w", id, ErrNotFound)
	}
	return nil
}

func (d *Database) CreateJobAction(binding *types.JobAction) error {
	if !types.ValidTriggers[binding.Trigger] {
		return fmt.Errorf("CreateJobAction: %w: invalid trigger: %s", ErrValidation, binding.Trigger)
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.writeDb.Exec(
		"INSERT INTO job_actions (job_id, action_id, trigger_name, sort_order) VALUES (?, ?, ?, ?)",
		binding.JobID, binding.ActionID, binding.Trigger, binding.Order)
	if err != nil {
		return fmt.Errorf("CreateJobAction: error inserting binding: %w", err)
	}
	binding.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("CreateJobAction: error reading binding id: %w", err)
	}
	return nil
}

func (d *Database) DeleteJobAction(id int64) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.writeDb.Exec("DELETE FROM job_actions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("DeleteJobAction: error deleting binding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("DeleteJobAction: binding %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetJobActions returns the job's bindings for one trigger, ordered ascending,
// each with its action loaded.
func (d *Database) GetJobActions(jobID int64, trigger string) ([]types.JobAction, error) {
	rows, err := d.readDb.Query(`
        SELECT ja.id, ja.job_id, ja.action_id, ja.trigger_name, ja.sort_order,
               a.id, a.name, a.type, a.config
        FROM job_actions ja
        JOIN actions a ON a.id = ja.action_id
        WHERE ja.job_id = ? AND ja.trigger_name = ?
        ORDER BY ja.sort_order ASC, ja.id ASC
    `, jobID, trigger)
	if err != nil {
		return nil, fmt.Errorf("GetJobActions: error querying bindings: %w", err)
	}
	defer rows.Close()

	var bindings []types.JobAction
	for rows.Next() {
		var binding types.JobAction
		var action types.Action
		var config string
		err := rows.Scan(&binding.ID, &binding.JobID, &binding.ActionID,
			&binding.Trigger, &binding.Order,
			&action.ID, &action.Name, &action.Type, &config)
		if err != nil {
			return nil, fmt.Errorf("GetJobActions: error scanning binding: %w", err)
		}
		action.Config = json.RawMessage(config)
		binding.Action = &action
		bindings = append(bindings, binding)
	}
	return bindings, rows.Err()
}
