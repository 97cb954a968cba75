package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/grabarr/grabarr/internal/store/types"
)

// CreateHistory appends one run-attempt row and prunes the table down to
// maxEntries, oldest first.
func (d *Database) CreateHistory(entry *types.JobHistory, maxEntries int) error {
	details, err := marshalNullable(entry.Details)
	if err != nil {
		return fmt.Errorf("CreateHistory: error encoding details: %w", err)
	}
	files, err := marshalNullable(entry.FilesTransferred)
	if err != nil {
		return fmt.Errorf("CreateHistory: error encoding file list: %w", err)
	}
	snapshot, err := marshalNullable(entry.JobSnapshot)
	if err != nil {
		return fmt.Errorf("CreateHistory: error encoding snapshot: %w", err)
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.CompletedAt == nil {
		now := time.Now().UTC()
		entry.CompletedAt = &now
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.writeDb.Exec(`
        INSERT INTO job_history (
            job_id, status, details, timestamp, avg_speed,
            files_transferred, job_snapshot, started_at, completed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, entry.JobID, entry.Status, details, entry.Timestamp, entry.AvgSpeed,
		files, snapshot, nullableTime(entry.StartedAt), nullableTime(entry.CompletedAt))
	if err != nil {
		return fmt.Errorf("CreateHistory: error inserting history: %w", err)
	}
	entry.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("CreateHistory: error reading history id: %w", err)
	}

	return d.pruneHistoryLocked(maxEntries)
}

// pruneHistoryLocked deletes the oldest rows until at most maxEntries remain.
// Caller holds writeMu.
func (d *Database) pruneHistoryLocked(maxEntries int) error {
	if maxEntries <= 0 {
		return nil
	}

	var total int
	if err := d.writeDb.QueryRow("SELECT COUNT(*) FROM job_history").Scan(&total); err != nil {
		return fmt.Errorf("pruneHistory: error counting rows: %w", err)
	}
	if total <= maxEntries {
		return nil
	}

	_, err := d.writeDb.Exec(`
        DELETE FROM job_history WHERE id IN (
            SELECT id FROM job_history ORDER BY timestamp ASC, id ASC LIMIT ?
        )
    `, total-maxEntries)
	if err != nil {
		return fmt.Errorf("pruneHistory: error deleting rows: %w", err)
	}
	return nil
}

func (d *Database) GetHistory(jobID int64, limit int) ([]types.JobHistory, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if jobID > 0 {
		rows, err = d.readDb.Query(`
            SELECT id, job_id, status, details, timestamp, avg_speed,
                   files_transferred, job_snapshot, started_at, completed_at
            FROM job_history WHERE job_id = ?
            ORDER BY timestamp DESC, id DESC LIMIT ?
        `, jobID, limit)
	} else {
		rows, err = d.readDb.Query(`
            SELECT id, job_id, status, details, timestamp, avg_speed,
                   files_transferred, job_snapshot, started_at, completed_at
            FROM job_history
            ORDER BY timestamp DESC, id DESC LIMIT ?
        `, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("GetHistory: error querying history: %w", err)
	}
	defer rows.Close()

	var entries []types.JobHistory
	for rows.Next() {
		var entry types.JobHistory
		var details, files, snapshot sql.NullString
		var avgSpeed sql.NullInt64
		var startedAt, completedAt sql.NullTime

		err := rows.Scan(&entry.ID, &entry.JobID, &entry.Status, &details,
			&entry.Timestamp, &avgSpeed, &files, &snapshot, &startedAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("GetHistory: error scanning history: %w", err)
		}

		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &entry.Details); err != nil {
				return nil, fmt.Errorf("GetHistory: error decoding details: %w", err)
			}
		}
		if files.Valid && files.String != "" {
			if err := json.Unmarshal([]byte(files.String), &entry.FilesTransferred); err != nil {
				return nil, fmt.Errorf("GetHistory: error decoding file list: %w", err)
			}
		}
		if snapshot.Valid && snapshot.String != "" {
			entry.JobSnapshot = &types.JobSnapshot{}
			if err := json.Unmarshal([]byte(snapshot.String), entry.JobSnapshot); err != nil {
				return nil, fmt.Errorf("GetHistory: error decoding snapshot: %w", err)
			}
		}
		if avgSpeed.Valid {
			v := avgSpeed.Int64
			entry.AvgSpeed = &v
		}
		if startedAt.Valid {
			t := startedAt.Time
			entry.StartedAt = &t
		}
		if completedAt.Valid {
			t := completedAt.Time
			entry.CompletedAt = &t
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (d *Database) CountHistory() (int, error) {
	var total int
	if err := d.readDb.QueryRow("SELECT COUNT(*) FROM job_history").Scan(&total); err != nil {
		return 0, fmt.Errorf("CountHistory: error counting rows: %w", err)
	}
	return total, nil
}

func marshalNullable(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if t == nil {
			return nil, nil
		}
	case []string:
		if t == nil {
			return nil, nil
		}
	case *types.JobSnapshot:
		if t == nil {
			return nil, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
