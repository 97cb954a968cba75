package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"

	"github.com/grabarr/grabarr/internal/store/types"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrValidation = errors.New("validation failed")
)

func validateJob(job *types.Job) error {
	switch job.Operation {
	case types.OperationCopy, types.OperationSync, types.OperationMove:
	default:
		return fmt.Errorf("%w: invalid operation: %s", ErrValidation, job.Operation)
	}
	if job.CopyMode == "" {
		job.CopyMode = types.CopyModeFolder
	}
	switch job.CopyMode {
	case types.CopyModeFolder, types.CopyModeContents:
	default:
		return fmt.Errorf("%w: invalid copy_mode: %s", ErrValidation, job.CopyMode)
	}
	if job.TransferMethod == "" {
		job.TransferMethod = types.TransferDirect
	}
	switch job.TransferMethod {
	case types.TransferDirect, types.TransferProxy:
	default:
		return fmt.Errorf("%w: invalid transfer_method: %s", ErrValidation, job.TransferMethod)
	}
	if job.MaxConcurrentRuns <= 0 {
		job.MaxConcurrentRuns = 1
	}
	if job.Schedule == "" {
		job.Schedule = types.ScheduleManual
	}
	for _, pattern := range job.Excludes {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("%w: invalid exclude pattern %q: %s", ErrValidation, pattern, err)
		}
	}
	return nil
}

// CreateJob inserts a new job row and fills in the generated id and embed key.
// When tx is non-nil the caller holds writeMu.
func (d *Database) CreateJob(tx *sql.Tx, job *types.Job) (err error) {
	if tx == nil {
		// writeMu before BeginTx: the write pool has a single connection and
		// every writer queues on the mutex first.
		d.writeMu.Lock()
		defer d.writeMu.Unlock()

		tx, err = d.NewTransaction()
		if err != nil {
			return fmt.Errorf("CreateJob: failed to begin transaction: %w", err)
		}
		defer func() {
			if err != nil {
				_ = tx.Rollback()
				return
			}
			if cErr := tx.Commit(); cErr != nil {
				err = fmt.Errorf("CreateJob: failed to commit transaction: %w", cErr)
			}
		}()
	}

	if err = validateJob(job); err != nil {
		return fmt.Errorf("CreateJob: %w", err)
	}
	if job.EmbedKey == "" {
		job.EmbedKey = uuid.NewString()
	}

	excludes, err := json.Marshal(job.Excludes)
	if err != nil {
		return fmt.Errorf("CreateJob: error encoding excludes: %w", err)
	}

	res, err := tx.Exec(`
        INSERT INTO jobs (
            name, source_remote_id, dest_remote_id, operation, schedule,
            source_path, dest_path, excludes, transfer_method, copy_mode,
            use_checksum, sequential, preserve_metadata,
            allow_concurrent_runs, max_concurrent_runs, enabled, embed_key
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, job.Name, job.SourceRemoteID, job.DestRemoteID, job.Operation, job.Schedule,
		job.SourcePath, job.DestPath, string(excludes), job.TransferMethod, job.CopyMode,
		job.UseChecksum, job.Sequential, job.PreserveMetadata,
		job.AllowConcurrentRuns, job.MaxConcurrentRuns, job.Enabled, job.EmbedKey)
	if err != nil {
		return fmt.Errorf("CreateJob: error inserting job: %w", err)
	}

	job.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("CreateJob: error reading job id: %w", err)
	}
	return nil
}

const jobColumns = `
    id, name, source_remote_id, dest_remote_id, operation, schedule,
    source_path, dest_path, excludes, transfer_method, copy_mode,
    use_checksum, sequential, preserve_metadata,
    allow_concurrent_runs, max_concurrent_runs, enabled,
    last_run, last_status, last_error, embed_key`

func scanJob(row interface{ Scan(...any) error }) (types.Job, error) {
	var job types.Job
	var excludes string
	var lastRun sql.NullTime
	var lastStatus, lastError sql.NullString

	err := row.Scan(
		&job.ID, &job.Name, &job.SourceRemoteID, &job.DestRemoteID, &job.Operation,
		&job.Schedule, &job.SourcePath, &job.DestPath, &excludes,
		&job.TransferMethod, &job.CopyMode, &job.UseChecksum, &job.Sequential,
		&job.PreserveMetadata, &job.AllowConcurrentRuns, &job.MaxConcurrentRuns,
		&job.Enabled, &lastRun, &lastStatus, &lastError, &job.EmbedKey,
	)
	if err != nil {
		return job, err
	}

	if err := json.Unmarshal([]byte(excludes), &job.Excludes); err != nil {
		return job, fmt.Errorf("scanJob: error decoding excludes: %w", err)
	}
	if lastRun.Valid {
		t := lastRun.Time
		job.LastRun = &t
	}
	job.LastStatus = lastStatus.String
	job.LastError = lastError.String
	return job, nil
}

func (d *Database) GetJob(id int64) (types.Job, error) {
	row := d.readDb.QueryRow("SELECT"+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return job, fmt.Errorf("GetJob: job %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return job, fmt.Errorf("GetJob: error scanning job: %w", err)
	}
	return job, nil
}

func (d *Database) GetAllJobs() ([]types.Job, error) {
	rows, err := d.readDb.Query("SELECT" + jobColumns + " FROM jobs ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("GetAllJobs: error querying jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("GetAllJobs: error scanning job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetEnabledJobs returns every enabled job, the schedule synchronizer's input.
func (d *Database) GetEnabledJobs() ([]types.Job, error) {
	rows, err := d.readDb.Query("SELECT" + jobColumns + " FROM jobs WHERE enabled = 1 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("GetEnabledJobs: error querying jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("GetEnabledJobs: error scanning job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (d *Database) UpdateJob(job types.Job) error {
	if err := validateJob(&job); err != nil {
		return fmt.Errorf("UpdateJob: %w", err)
	}
	excludes, err := json.Marshal(job.Excludes)
	if err != nil {
		return fmt.Errorf("UpdateJob: error encoding excludes: %w", err)
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.writeDb.Exec(`
        UPDATE jobs SET
            name = ?, source_remote_id = ?, dest_remote_id = ?, operation = ?,
            schedule = ?, source_path = ?, dest_path = ?, excludes = ?,
            transfer_method = ?, copy_mode = ?, use_checksum = ?, sequential = ?,
            preserve_metadata = ?, allow_concurrent_runs = ?,
            max_concurrent_runs = ?, enabled = ?
        WHERE id = ?
    `, job.Name, job.SourceRemoteID, job.DestRemoteID, job.Operation, job.Schedule,
		job.SourcePath, job.DestPath, string(excludes), job.TransferMethod, job.CopyMode,
		job.UseChecksum, job.Sequential, job.PreserveMetadata,
		job.AllowConcurrentRuns, job.MaxConcurrentRuns, job.Enabled, job.ID)
	if err != nil {
		return fmt.Errorf("UpdateJob: error updating job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("UpdateJob: job %d: %w", job.ID, ErrNotFound)
	}
	return nil
}

// UpdateJobStatus mutates only the engine-owned status fields.
func (d *Database) UpdateJobStatus(id int64, status, lastError string, lastRun *time.Time) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	var err error
	if lastRun != nil {
		_, err = d.writeDb.Exec(
			"UPDATE jobs SET last_status = ?, last_error = ?, last_run = ? WHERE id = ?",
			status, lastError, lastRun.UTC(), id)
	} else {
		_, err = d.writeDb.Exec(
			"UPDATE jobs SET last_status = ?, last_error = ? WHERE id = ?",
			status, lastError, id)
	}
	if err != nil {
		return fmt.Errorf("UpdateJobStatus: error updating job %d: %w", id, err)
	}
	return nil
}

func (d *Database) DeleteJob(id int64) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.writeDb.Exec("DELETE FROM jobs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("DeleteJob: error deleting job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("DeleteJob: job %d: %w", id, ErrNotFound)
	}
	return nil
}

// RotateEmbedKey replaces the job's status-embedding secret and returns it.
func (d *Database) RotateEmbedKey(id int64) (string, error) {
	key := uuid.NewString()

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.writeDb.Exec("UPDATE jobs SET embed_key = ? WHERE id = ?", key, id)
	if err != nil {
		return "", fmt.Errorf("RotateEmbedKey: error updating job %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", fmt.Errorf("RotateEmbedKey: job %d: %w", id, ErrNotFound)
	}
	return key, nil
}
