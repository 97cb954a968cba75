package types

import "time"

// Operation values accepted for a job. They map one-to-one onto the daemon's
// sync/copy, sync/sync and sync/move commands.
const (
	OperationCopy = "copy"
	OperationSync = "sync"
	OperationMove = "move"
)

// CopyMode controls how the source sub-path is applied to the destination.
const (
	CopyModeFolder   = "folder"
	CopyModeContents = "contents"
)

// TransferMethod selects between letting backends talk to each other and
// proxying every byte through the daemon.
const (
	TransferDirect = "direct"
	TransferProxy  = "proxy"
)

// ScheduleManual marks a job that only runs when asked.
const ScheduleManual = "Manual"

type Job struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	SourceRemoteID int64  `json:"source_remote_id"`
	DestRemoteID   int64  `json:"dest_remote_id"`
	Operation      string `json:"operation"`

	// Schedule is a raw cron expression, a ScheduleTemplate name, or "Manual".
	Schedule string `json:"schedule"`

	SourcePath string   `json:"source_path,omitempty"`
	DestPath   string   `json:"dest_path,omitempty"`
	Excludes   []string `json:"excludes,omitempty"`

	TransferMethod   string `json:"transfer_method"`
	CopyMode         string `json:"copy_mode"`
	UseChecksum      bool   `json:"use_checksum"`
	Sequential       bool   `json:"sequential"`
	PreserveMetadata bool   `json:"preserve_metadata"`

	AllowConcurrentRuns bool `json:"allow_concurrent_runs"`
	MaxConcurrentRuns   int  `json:"max_concurrent_runs"`

	Enabled    bool       `json:"enabled"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
	LastError  string     `json:"last_error,omitempty"`

	// EmbedKey authorizes unauthenticated status widgets. Rotated on demand.
	EmbedKey string `json:"embed_key,omitempty"`
}

// JobSnapshot is the job configuration captured at dispatch time, stored
// verbatim on the history row the run produces.
type JobSnapshot struct {
	Name                string   `json:"name"`
	Operation           string   `json:"operation"`
	SourceRemoteID      int64    `json:"source_remote_id"`
	SourceRemoteName    string   `json:"source_remote_name"`
	DestRemoteID        int64    `json:"dest_remote_id"`
	DestRemoteName      string   `json:"dest_remote_name"`
	SourcePath          string   `json:"source_path,omitempty"`
	DestPath            string   `json:"dest_path,omitempty"`
	TransferMethod      string   `json:"transfer_method"`
	CopyMode            string   `json:"copy_mode"`
	Excludes            []string `json:"excludes,omitempty"`
	ScheduleName        string   `json:"schedule_name"`
	ScheduleID          *int64   `json:"schedule_id,omitempty"`
	AllowConcurrentRuns bool     `json:"allow_concurrent_runs"`
	MaxConcurrentRuns   int      `json:"max_concurrent_runs"`
	UseChecksum         bool     `json:"use_checksum"`
	ExecutionType       string   `json:"execution_type"`
}

type JobHistory struct {
	ID        int64  `json:"id"`
	JobID     int64  `json:"job_id"`
	Status    string `json:"status"`
	// Details holds the daemon's raw final status payload (or a synthesized
	// {"error": ...} object for runs that never dispatched).
	Details          map[string]any `json:"details,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
	AvgSpeed         *int64         `json:"avg_speed,omitempty"`
	FilesTransferred []string       `json:"files_transferred,omitempty"`
	JobSnapshot      *JobSnapshot   `json:"job_snapshot,omitempty"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}
